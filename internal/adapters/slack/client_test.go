package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/issue-unfurl/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(config.Config{SlackAPIURL: url, HTTPTimeout: 2 * time.Second}, zerolog.Nop())
}

func TestClient_Unfurl(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.unfurl", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	unfurls := map[string]map[string]string{"https://example.io/issues/1/": {"title": "boom"}}
	err := newTestClient(srv.URL).Unfurl(context.Background(), "xoxb-1", "C123", "1700000000.000100", unfurls)
	require.NoError(t, err)
	assert.Equal(t, "C123", got["channel"])
	assert.Equal(t, "1700000000.000100", got["ts"])
	assert.Contains(t, got["unfurls"], "https://example.io/issues/1/")
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"cannot_unfurl_url"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Unfurl(context.Background(), "xoxb-1", "C1", "1", map[string]any{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "chat.unfurl", apiErr.Method)
	assert.Equal(t, "cannot_unfurl_url", apiErr.Code)
}

func TestClient_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Unfurl(context.Background(), "xoxb-1", "C1", "1", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestClient_MissingToken(t *testing.T) {
	err := newTestClient("http://127.0.0.1:0").Unfurl(context.Background(), "", "C1", "1", nil)
	assert.ErrorIs(t, err, ErrMissingToken)
}
