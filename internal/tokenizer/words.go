package tokenizer

import (
	"strings"
	"sync"
)

// Words treats every whitespace-separated field as one token.
// Decode joins fields with a single space, so Decode(Encode(s)) equals
// strings.Join(strings.Fields(s), " ") and repeated round-trips are stable.
type Words struct {
	mu    sync.RWMutex
	ids   map[string]int
	vocab []string
}

func NewWords() *Words {
	return &Words{ids: make(map[string]int)}
}

func (w *Words) Encode(text string) []int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	out := make([]int, len(fields))
	for i, f := range fields {
		out[i] = w.id(f)
	}
	return out
}

func (w *Words) Decode(ids []int) string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(w.vocab) {
			parts = append(parts, w.vocab[id])
		}
	}
	return strings.Join(parts, " ")
}

func (w *Words) Count(text string) int {
	return len(strings.Fields(text))
}

func (w *Words) id(field string) int {
	w.mu.RLock()
	id, ok := w.ids[field]
	w.mu.RUnlock()
	if ok {
		return id
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.ids[field]; ok {
		return id
	}
	id = len(w.vocab)
	w.vocab = append(w.vocab, field)
	w.ids[field] = id
	return id
}
