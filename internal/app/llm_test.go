package app

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

	"talk_rag/internal/config"
)

func completionServer(t *testing.T, failures int32, answer string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
		}

		if n <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestGenerator(url string, retries int) *OpenAIGenerator {
	return NewOpenAIGenerator(config.LLM{
		URL:        url + "/v1",
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
	}, nil)
}

func TestOpenAIGeneratorGenerate(t *testing.T) {
	srv, calls := completionServer(t, 0, "  Paris.  ")
	g := newTestGenerator(srv.URL, 2)

	answer, err := g.Generate(context.Background(), "Where?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIGeneratorRetries(t *testing.T) {
	srv, calls := completionServer(t, 2, "ok")
	g := newTestGenerator(srv.URL, 2)

	answer, err := g.Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIGeneratorGivesUp(t *testing.T) {
	srv, calls := completionServer(t, 10, "never")
	g := newTestGenerator(srv.URL, 1)

	_, err := g.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIGeneratorEmptyAnswer(t *testing.T) {
	srv, _ := completionServer(t, 0, "   ")
	g := newTestGenerator(srv.URL, 0)

	_, err := g.Generate(context.Background(), "q")
	assert.ErrorIs(t, err, errEmptyCompletion)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Zero(t, calculateBackoff(time.Second, 0))
	assert.Zero(t, calculateBackoff(0, 3))

	for attempt := 1; attempt <= 4; attempt++ {
		base := 100 * time.Millisecond * time.Duration(1<<attempt)
		d := calculateBackoff(100*time.Millisecond, attempt)
		assert.GreaterOrEqual(t, d, base*3/4, "attempt %d", attempt)
		assert.LessOrEqual(t, d, base*5/4, "attempt %d", attempt)
	}
	assert.LessOrEqual(t, calculateBackoff(time.Second, 40), maxBackoff*5/4)
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("User: hi\n\nchunk text", "What is it?")
	assert.Contains(t, p, "Answer ONLY using the information provided below")
	assert.Contains(t, p, "Context:\nUser: hi\n\nchunk text\n\nQuestion:\nWhat is it?\n\nAnswer:")
}
