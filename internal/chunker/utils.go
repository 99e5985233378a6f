package chunker

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// AssignIDs sets a content hash ID on every chunk. The part index joins
// the hash input so identical repeated text (e.g. table headers) stays distinct.
func AssignIDs(chunks []Chunk, source string) []Chunk {
	for i := range chunks {
		chunks[i].ID = chunkID(chunks[i], source)
	}
	return chunks
}

func chunkID(ch Chunk, source string) string {
	key := fmt.Sprintf("%s\x00%s\x00%d\x00%d", strings.TrimSpace(ch.Text), source, ch.SourceBlockOrder, ch.PartIndex)
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash[:8])
}

// Texts returns the chunk texts in order
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}
