/*
Package client provides easy and fast access to a yrest backend.

Against a mux router the client talks directly to the handlers without
marshalling HTTP over a socket, which makes it the tool of choice for
unit tests. Against a URL it is a thin wrapper around net/http with the
response envelope decoded for the caller.
*/
package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/yrest-dev/yrest/core"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string

	defaultHeaders map[string]string
}

// NewWithRouter creates a client that makes pseudo-REST requests to the
// backend, straight through the mux router.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client that makes REST requests to a deployed
// backend.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithToken returns a new client carrying the bearer token.
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithHeader returns a new client with a default header added.
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	c.defaultHeaders = headers
	return c
}

// Envelope is the decoded response body.
type Envelope struct {
	OK          bool            `json:"ok"`
	Code        int             `json:"code"`
	Result      json.RawMessage `json:"result"`
	Message     json.RawMessage `json:"message"`
	PrefCounter float64         `json:"pref_counter"`
	ProcessTime float64         `json:"process_time"`
}

// Error turns a failure envelope into an error, classified by the
// response code.
func (e *Envelope) Error() error {
	if e.OK {
		return nil
	}
	var message string
	if err := json.Unmarshal(e.Message, &message); err != nil {
		message = string(e.Message)
	}
	switch e.Code {
	case http.StatusBadRequest:
		return core.Errorf(core.KindValidation, "%s", message)
	case http.StatusUnauthorized:
		return core.Errorf(core.KindUnauthorized, "%s", message)
	case http.StatusNotFound:
		return core.Errorf(core.KindNotFound, "%s", message)
	case http.StatusConflict:
		return core.Errorf(core.KindDuplicateKey, "%s", message)
	default:
		return core.Errorf(core.KindInternal, "%s", message)
	}
}

// Get retrieves a path and decodes the envelope's result into result,
// which may be nil.
func (c Client) Get(path string, result any) (int, error) {
	return c.do(http.MethodGet, path, nil, result)
}

// Post sends body to a factory or auth path.
func (c Client) Post(path string, body, result any) (int, error) {
	return c.do(http.MethodPost, path, body, result)
}

// Put sends body to an updating path.
func (c Client) Put(path string, body, result any) (int, error) {
	return c.do(http.MethodPut, path, body, result)
}

// Delete removes the node at path and its subtree.
func (c Client) Delete(path string) (int, error) {
	return c.do(http.MethodDelete, path, nil, nil)
}

// RawGet retrieves a path and returns the undecoded response body,
// e.g. for /openapi.
func (c Client) RawGet(path string) (int, []byte, error) {
	return c.roundTrip(http.MethodGet, path, nil)
}

func (c Client) do(method, path string, body, result any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(encoded)
	}

	status, raw, err := c.roundTrip(method, path, reader)
	if err != nil {
		return status, err
	}

	envelope := Envelope{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return status, fmt.Errorf("undecodable response for %s %s: %w", method, path, err)
	}
	if !envelope.OK && envelope.Code != 0 {
		return status, envelope.Error()
	}
	if result == nil {
		return status, nil
	}
	if len(envelope.Result) > 0 {
		return status, json.Unmarshal(envelope.Result, result)
	}
	// bare bodies, e.g. the token exchange, decode as a whole
	return status, json.Unmarshal(raw, result)
}

func (c Client) roundTrip(method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequest(method, c.url+path, body)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, value := range c.defaultHeaders {
		req.Header.Set(key, value)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, req)
		return rec.Code, rec.Body.Bytes(), nil
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	return response.StatusCode, raw, err
}
