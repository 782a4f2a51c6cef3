package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewOpenAIClient(Config{
		APIKey:  "test",
		BaseURL: srv.URL + "/v1",
		Model:   "test-model",
	})
	c.sleep = func(ctx context.Context, d time.Duration) {}
	return c
}

func TestCompleteSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(completionBody("  Paris  ")))
	})

	resp, err := c.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "capital of France?"},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Paris", resp.Content)
	assert.False(t, resp.Failed)
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(completionBody("ok")))
	})

	resp, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, Options{MaxTries: 3})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteExhaustionReturnsSentinel(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	})

	resp, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, Options{
		MaxTries:        3,
		FailureSentinel: "Error: LLM server failed after all retries.",
	})
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Equal(t, "Error: LLM server failed after all retries.", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteAuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, http.StatusUnauthorized)
	})

	resp, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, Options{MaxTries: 5})
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 12; attempt++ {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 30*time.Second)
	}
	// Early attempts stay near 2^attempt seconds.
	assert.GreaterOrEqual(t, Backoff(0), 1*time.Second)
	assert.LessOrEqual(t, Backoff(0), 2*time.Second)
	assert.GreaterOrEqual(t, Backoff(2), 4*time.Second)
	assert.LessOrEqual(t, Backoff(2), 5*time.Second)
}

func TestCountMessagesMonotone(t *testing.T) {
	short := []Message{{Role: RoleUser, Content: "hello"}}
	long := []Message{
		{Role: RoleSystem, Content: "You are a research assistant with a long preamble."},
		{Role: RoleUser, Content: "hello there, much longer message with many more words"},
	}
	assert.Less(t, CountMessages(short, "gpt-4o"), CountMessages(long, "gpt-4o"))
}

func TestTruncateToTokensNoopUnderLimit(t *testing.T) {
	s := "short text"
	assert.Equal(t, s, TruncateToTokens(s, 1000, "gpt-4o"))
}
