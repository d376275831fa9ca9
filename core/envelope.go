package core

import "net/http"

// Result is a value a handler may return instead of raw data to control
// the response code.
type Result interface {
	StatusCode() int
}

// Ok is the bare success envelope.
type Ok struct {
	OK   bool `json:"ok"`
	Code int  `json:"code"`
}

// NewOk returns a 200 success envelope.
func NewOk() Ok { return Ok{OK: true, Code: http.StatusOK} }

// StatusCode implements Result.
func (o Ok) StatusCode() int { return o.Code }

// OkResult wraps a single success payload.
type OkResult struct {
	Ok
	Result any `json:"result"`
}

// NewOkResult wraps a payload at the given code.
func NewOkResult(result any, code int) OkResult {
	return OkResult{Ok: Ok{OK: true, Code: code}, Result: result}
}

// OkListResult wraps a list success payload.
type OkListResult struct {
	Ok
	Result any `json:"result"`
}

// NewOkListResult wraps a list payload at the given code.
func NewOkListResult(result any, code int) OkListResult {
	return OkListResult{Ok: Ok{OK: true, Code: code}, Result: result}
}

// ErrorMessage is the failure envelope. Message is a string, or a list
// of traceback lines when the server runs in debug mode.
type ErrorMessage struct {
	OK      bool `json:"ok"`
	Code    int  `json:"code"`
	Message any  `json:"message"`
}

// NewErrorMessage builds a failure envelope.
func NewErrorMessage(message any, code int) ErrorMessage {
	return ErrorMessage{OK: false, Code: code, Message: message}
}

// StatusCode implements Result.
func (e ErrorMessage) StatusCode() int { return e.Code }
