package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "test_model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

type recorded struct {
	calls int32
	body  atomic.Value
}

func newServer(t *testing.T, rec *recorded, handler func(n int32, w http.ResponseWriter)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&rec.calls, 1)
		b, _ := io.ReadAll(r.Body)
		rec.body.Store(string(b))
		w.Header().Set("Content-Type", "application/json")
		handler(n, w)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:     "mock_key_for_error_testing",
		Model:      "test_model",
		BaseURL:    srv.URL + "/v1/",
		Providers:  []string{"fast", "cheap"},
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Model: "m"})
	assert.Error(t, err, "missing API key")

	_, err = New(Config{APIKey: "k"})
	assert.Error(t, err, "missing model")
}

func TestQueryVision(t *testing.T) {
	rec := &recorded{}
	c := newServer(t, rec, func(_ int32, w http.ResponseWriter) {
		fmt.Fprint(w, completion("Hello World</image>"))
	})

	text, err := c.QueryVision(context.Background(), []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.body.Load().(string)), &sent))
	assert.Equal(t, "test_model", sent["model"])
	provider, ok := sent["provider"].(map[string]any)
	require.True(t, ok, "provider preferences should be sent")
	assert.Equal(t, []any{"fast", "cheap"}, provider["order"])
	assert.Equal(t, false, provider["allow_fallbacks"])
}

func TestQueryVisionNoText(t *testing.T) {
	rec := &recorded{}
	c := newServer(t, rec, func(_ int32, w http.ResponseWriter) {
		fmt.Fprint(w, completion("NO_TEXT_FOUND"))
	})

	_, err := c.QueryVision(context.Background(), []byte{1})
	assert.True(t, errors.Is(err, ErrNoText))
}

func TestAskRetriesServerErrors(t *testing.T) {
	rec := &recorded{}
	c := newServer(t, rec, func(n int32, w http.ResponseWriter) {
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"error":{"message":"upstream","type":"server_error"}}`)
			return
		}
		fmt.Fprint(w, completion("English"))
	})

	answer, err := c.Ask(context.Background(), "Hello World", "What language is this?")
	require.NoError(t, err)
	assert.Equal(t, "English", answer)
	assert.Equal(t, int32(3), atomic.LoadInt32(&rec.calls))
	assert.Contains(t, rec.body.Load().(string), "What language is this?")
}

func TestAskDoesNotRetryAuthErrors(t *testing.T) {
	rec := &recorded{}
	c := newServer(t, rec, func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"auth"}}`)
	})

	_, err := c.Ask(context.Background(), "x", "y")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.calls))
}

func TestPing(t *testing.T) {
	rec := &recorded{}
	c := newServer(t, rec, func(_ int32, w http.ResponseWriter) {
		fmt.Fprint(w, completion("OK"))
	})
	assert.NoError(t, c.Ping(context.Background()))
}

func TestCleanExtractedText(t *testing.T) {
	assert.Equal(t, "", cleanExtractedText("</image>"))
	assert.Equal(t, "abc", cleanExtractedText("abc</image>"))
	assert.Equal(t, "abc", cleanExtractedText("abc"))
}
