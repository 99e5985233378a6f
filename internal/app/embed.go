package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/philippgille/chromem-go"
)

// ErrEmptyEmbedding aborts ingestion; a chunk stored without a vector
// could never be retrieved.
var ErrEmptyEmbedding = errors.New("embedding service returned an empty vector")

func guardEmbedding(next chromem.EmbeddingFunc) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := next(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, ErrEmptyEmbedding
		}
		return vec, nil
	}
}

// cacheEmbedding keeps recent vectors keyed by text hash. A non-positive
// size or ttl disables the cache.
func cacheEmbedding(next chromem.EmbeddingFunc, size int, ttl time.Duration) chromem.EmbeddingFunc {
	if size <= 0 || ttl <= 0 {
		return next
	}
	cache := expirable.NewLRU[string, []float32](size, nil, ttl)
	return func(ctx context.Context, text string) ([]float32, error) {
		key := embeddingKey(text)
		if cached, ok := cache.Get(key); ok {
			return cloneEmbedding(cached), nil
		}
		vec, err := next(ctx, text)
		if err != nil {
			return nil, err
		}
		cache.Add(key, cloneEmbedding(vec))
		return vec, nil
	}
}

func embeddingKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
