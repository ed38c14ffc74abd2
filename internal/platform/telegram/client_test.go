package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("123:abc", srv.URL, time.Second)
}

func TestIsMember(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{`{"ok":true,"result":{"status":"member"}}`, true},
		{`{"ok":true,"result":{"status":"creator"}}`, true},
		{`{"ok":true,"result":{"status":"restricted","is_member":true}}`, true},
		{`{"ok":true,"result":{"status":"restricted","is_member":false}}`, false},
		{`{"ok":true,"result":{"status":"left"}}`, false},
		{`{"ok":true,"result":{"status":"kicked"}}`, false},
	}
	for _, tt := range tests {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bot123:abc/getChatMember", r.URL.Path)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "-100", r.PostForm.Get("chat_id"))
			assert.Equal(t, "42", r.PostForm.Get("user_id"))
			_, _ = w.Write([]byte(tt.body))
		})
		got, err := c.IsMember(context.Background(), 42, -100)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.body)
	}
}

func TestGetBoostCount(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/getUserChatBoosts", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"boosts":[{"boost_id":"a"},{"boost_id":"b"},{"boost_id":"c"}]}}`))
	})
	n, err := c.GetBoostCount(context.Background(), 42, -100)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestErrors(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`))
	})
	_, err := c.IsMember(context.Background(), 42, -100)
	var rps *RPSError
	require.True(t, errors.As(err, &rps))
	assert.Equal(t, 7*time.Second, rps.RetryAfter)

	c = newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})
	_, err = c.GetBoostCount(context.Background(), 42, -100)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, "getUserChatBoosts", apiErr.Method)
}
