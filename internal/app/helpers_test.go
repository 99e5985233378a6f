package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/require"

	"talk_rag/internal/chunker"
	"talk_rag/internal/history"
	"talk_rag/internal/tokenizer"
)

// letterEmbedding maps text to normalized letter frequencies plus a bias
// dimension, so texts sharing letters are similar.
func letterEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 27)
	vec[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

func newTestStore(t *testing.T, ef chromem.EmbeddingFunc) *VectorStore {
	t.Helper()
	if ef == nil {
		ef = letterEmbedding
	}
	coll, err := chromem.NewDB().CreateCollection(collectionName, nil, guardEmbedding(ef))
	require.NoError(t, err)
	return NewVectorStore(coll, 0)
}

func newTestChunker(t *testing.T, maxTokens, overlap int) *chunker.TokenChunker {
	t.Helper()
	c, err := chunker.NewTokenChunker(tokenizer.NewWords(), chunker.Config{MaxTokens: maxTokens, Overlap: overlap}, nil)
	require.NoError(t, err)
	return c
}

type fakeRetriever struct {
	results []SearchResult
	err     error
	topK    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, topK int) ([]SearchResult, error) {
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type failingHistory struct{}

func (failingHistory) Append(context.Context, string, history.Turn) error {
	return errors.New("history is down")
}

func (failingHistory) FetchRecent(context.Context, string, int) ([]history.Turn, error) {
	return nil, errors.New("history is down")
}
