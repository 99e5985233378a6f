package chunker

import "errors"

// BlockKind is the semantic class of a block of document text
type BlockKind string

const (
	KindHeading   BlockKind = "heading"
	KindTable     BlockKind = "table"
	KindList      BlockKind = "list"
	KindParagraph BlockKind = "paragraph"
)

// Block is a contiguous, homogeneous span of source text.
// Order is its position among the blocks of one document.
type Block struct {
	Kind  BlockKind
	Text  string
	Order int
}

// Chunk is a token-bounded unit derived from one block
type Chunk struct {
	ID               string    // content hash, set by CreateChunk
	Text             string    // chunk text
	TokenCount       int       // tokens in Text, never above Config.MaxTokens
	SourceBlockOrder int       // Block.Order this chunk came from
	PartIndex        int       // position among the chunks of the same block
	Kind             BlockKind // kind of the source block
	Section          string    // nearest preceding heading
}

// Config holds the token limits of the chunker
type Config struct {
	MaxTokens int // chunk size ceiling in tokens
	Overlap   int // tokens shared by adjacent windows of an oversized unit
}

const (
	DefaultMaxTokens = 512
	DefaultOverlap   = 64
)

var ErrInvalidConfig = errors.New("invalid chunker config")
