package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := New(srv.URL, "manifold-alerts")
	require.NoError(t, c.Send("Storage", "commit failed"))
	assert.Equal(t, map[string]string{"topic": "manifold-alerts", "title": "Storage", "message": "commit failed"}, got)
}

func TestSend_Disabled(t *testing.T) {
	assert.ErrorIs(t, New("", "").Send("t", "m"), ErrDisabled)

	var c *Client
	assert.False(t, c.Enabled())
	assert.ErrorIs(t, c.Send("t", "m"), ErrDisabled)
}

func TestSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := New(srv.URL, "x").Send("t", "m")
	assert.ErrorContains(t, err, "429")
}
