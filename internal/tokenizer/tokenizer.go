package tokenizer

import (
	"fmt"
	"strings"
)

// Tokenizer converts text to token ids and back.
// Implementations must be safe for concurrent use.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
	Count(text string) int
}

const (
	NameTiktoken = "tiktoken"
	NameWords    = "words"

	DefaultEncoding = "cl100k_base"
)

// New returns a tokenizer by configuration name.
func New(name, encoding string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameTiktoken, "bpe":
		return NewTiktoken(encoding)
	case NameWords, "whitespace":
		return NewWords(), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer: %s", name)
	}
}
