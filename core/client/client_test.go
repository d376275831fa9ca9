package client

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yrest-dev/yrest/core"
)

func stubRouter(t *testing.T) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true, "code": 200,
			"result":       map[string]any{"name": "workspace"},
			"pref_counter": 0.001, "process_time": 0.001,
		})
	}).Methods(http.MethodGet)
	router.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "code": 404, "message": "/missing not found",
		})
	}).Methods(http.MethodGet)
	router.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "abc"})
	}).Methods(http.MethodPost)
	return router
}

func TestClientDecodesResult(t *testing.T) {
	c := NewWithRouter(stubRouter(t)).WithToken("token-123")

	var result struct {
		Name string `json:"name"`
	}
	status, err := c.Get("/", &result)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "workspace", result.Name)
}

func TestClientClassifiesFailures(t *testing.T) {
	c := NewWithRouter(stubRouter(t)).WithToken("token-123")

	status, err := c.Get("/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
	assert.Equal(t, "/missing not found", err.Error())
}

func TestClientDecodesBareBodies(t *testing.T) {
	c := NewWithRouter(stubRouter(t)).WithToken("token-123")

	var token struct {
		AccessToken string `json:"access_token"`
	}
	status, err := c.Post("/auth", map[string]any{"email": "a@b.c", "password": "x"}, &token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "abc", token.AccessToken)
}
