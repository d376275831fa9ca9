package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	testCases := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindDuplicateKey, http.StatusConflict},
		{KindURIAlreadyExists, http.StatusConflict},
		{KindExists, http.StatusUnprocessableEntity},
		{KindAlreadyRequested, http.StatusTooManyRequests},
		{KindChildAmbiguity, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.status, tc.kind.Status(), string(tc.kind))
	}
}

func TestKindOf(t *testing.T) {
	err := Errorf(KindNotFound, "%s not found", "/a")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "/a not found", err.Error())
	assert.True(t, IsNotFound(err))

	wrapped := fmt.Errorf("while resolving: %w", err)
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))

	assert.True(t, IsDuplicateKey(Errorf(KindURIAlreadyExists, "taken")))
	assert.False(t, IsDuplicateKey(err))
}

func TestChildAmbiguity(t *testing.T) {
	err := ChildAmbiguity("Project", "alpha", "Task", []string{"tasks", "backlog"})
	assert.Equal(t, KindChildAmbiguity, KindOf(err))
	assert.Equal(t,
		"Project (alpha) defines tasks and backlog that can store Task. Use the as parameter to disambiguate it",
		err.Error())

	err = ChildAmbiguity("Project", "alpha", "Task", nil)
	assert.Equal(t, "Project (alpha) can't store Task", err.Error())
}

func TestEnvelopes(t *testing.T) {
	ok := NewOk()
	assert.True(t, ok.OK)
	assert.Equal(t, http.StatusOK, ok.StatusCode())

	created := NewOkResult(map[string]any{"slug": "a"}, http.StatusCreated)
	assert.True(t, created.OK)
	assert.Equal(t, http.StatusCreated, created.StatusCode())

	list := NewOkListResult([]string{"a", "b"}, http.StatusOK)
	assert.True(t, list.OK)

	failure := NewErrorMessage("denied", http.StatusUnauthorized)
	assert.False(t, failure.OK)
	assert.Equal(t, http.StatusUnauthorized, failure.StatusCode())
	assert.Equal(t, "denied", failure.Message)
}
