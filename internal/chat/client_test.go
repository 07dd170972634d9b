package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Book the venue early. "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL, APIKey: "key-123", Model: "m1", Temperature: 0.3, MaxTokens: 500})
	reply, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "tips?"}})
	require.NoError(t, err)
	assert.Equal(t, "Book the venue early.", reply)
	assert.Equal(t, "m1", got.Model)
	assert.Equal(t, 0.3, got.Temperature)
	assert.Equal(t, 500, got.MaxTokens)
	assert.Equal(t, "tips?", got.Messages[0].Content)
}

func TestClient_Errors(t *testing.T) {
	_, err := NewClient(ClientConfig{URL: "http://unused"}).Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	_, err = NewClient(ClientConfig{URL: failing.URL, APIKey: "k"}).Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUpstream)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	_, err = NewClient(ClientConfig{URL: empty.URL, APIKey: "k"}).Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUpstream)

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)
	_, err = NewClient(ClientConfig{URL: slow.URL, APIKey: "k", Timeout: 50 * time.Millisecond}).Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTimeout)
}
