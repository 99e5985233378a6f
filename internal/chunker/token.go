package chunker

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"talk_rag/internal/tokenizer"
)

// TokenChunker turns blocks into chunks of at most MaxTokens tokens
type TokenChunker struct {
	tok    tokenizer.Tokenizer
	config Config
	logger *zap.Logger
}

// NewTokenChunker validates the limits and returns a chunker.
// MaxTokens must be positive and Overlap must be in [0, MaxTokens).
func NewTokenChunker(tok tokenizer.Tokenizer, config Config, logger *zap.Logger) (*TokenChunker, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", ErrInvalidConfig)
	}
	if config.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, config.MaxTokens)
	}
	if config.Overlap < 0 || config.Overlap >= config.MaxTokens {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, config.MaxTokens, config.Overlap)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenChunker{tok: tok, config: config, logger: logger}, nil
}

func (c *TokenChunker) Config() Config {
	return c.config
}

// ChunkDocument chunks every block in order and runs the safety pass
// over the whole result.
func (c *TokenChunker) ChunkDocument(blocks []Block) []Chunk {
	var chunks []Chunk
	section := ""
	for _, b := range blocks {
		if b.Kind == KindHeading {
			section = headingTitle(b.Text)
		}
		for _, ch := range c.Chunk(b) {
			ch.Section = section
			chunks = append(chunks, ch)
		}
	}
	chunks = c.EnforceBound(chunks)
	c.logger.Debug("document chunked",
		zap.Int("blocks", len(blocks)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks
}

// Chunk splits one block. Blocks without letters or digits yield nothing.
func (c *TokenChunker) Chunk(block Block) []Chunk {
	if !hasContent(block.Text) {
		return nil
	}

	if n := c.tok.Count(block.Text); n <= c.config.MaxTokens {
		return []Chunk{c.newChunk(block, 0, block.Text, n)}
	}

	var parts []string
	if block.Kind == KindTable {
		parts = c.splitTable(block.Text)
	} else {
		parts = c.splitSentences(block.Text)
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		chunks = append(chunks, c.newChunk(block, len(chunks), p, c.tok.Count(p)))
	}
	c.logger.Debug("block split",
		zap.Int("order", block.Order),
		zap.String("kind", string(block.Kind)),
		zap.Int("parts", len(chunks)),
	)
	return chunks
}

// splitSentences packs sentences greedily, measuring the joined text so
// the separating spaces are counted too. A sentence longer than MaxTokens
// is cut into overlapping windows on its own.
func (c *TokenChunker) splitSentences(text string) []string {
	var parts []string
	var buf []string

	flush := func() {
		if len(buf) > 0 {
			parts = append(parts, strings.Join(buf, " "))
		}
		buf = nil
	}

	for _, s := range splitSentences(text) {
		if next := append(buf[:len(buf):len(buf)], s); c.tok.Count(strings.Join(next, " ")) <= c.config.MaxTokens {
			buf = next
			continue
		}
		flush()
		if c.tok.Count(s) <= c.config.MaxTokens {
			buf = []string{s}
			continue
		}
		parts = append(parts, c.fitWindows(c.tok.Encode(s), "", c.config.MaxTokens)...)
	}
	flush()
	return parts
}

// EnforceBound re-tokenizes every chunk and slices any chunk above
// MaxTokens into overlapping windows. Part indexes are renumbered per
// source block. Chunks already within the bound are left untouched, so
// running it twice gives the same result.
func (c *TokenChunker) EnforceBound(chunks []Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	resliced := 0
	for _, ch := range chunks {
		ids := c.tok.Encode(ch.Text)
		if len(ids) <= c.config.MaxTokens {
			ch.TokenCount = len(ids)
			out = append(out, ch)
			continue
		}
		resliced++
		for _, piece := range c.fitWindows(ids, "", c.config.MaxTokens) {
			next := ch
			next.Text = piece
			next.TokenCount = c.tok.Count(piece)
			out = append(out, next)
		}
	}

	if resliced > 0 {
		c.logger.Debug("safety pass resliced chunks", zap.Int("count", resliced))
		part := 0
		for i := range out {
			if i > 0 && out[i].SourceBlockOrder != out[i-1].SourceBlockOrder {
				part = 0
			}
			out[i].PartIndex = part
			part++
		}
	}
	return out
}

// fitWindows cuts ids into overlapping windows of at most size tokens.
// The window narrows while any decoded piece, joined to prefix, re-encodes
// above MaxTokens.
func (c *TokenChunker) fitWindows(ids []int, prefix string, size int) []string {
	overlap := c.config.Overlap
	for ; size > 0; size-- {
		if overlap >= size {
			overlap = size - 1
		}
		var pieces []string
		fits := true
		for _, w := range slidingWindows(ids, size, overlap) {
			piece := c.tok.Decode(w)
			if c.tok.Count(prefix+piece) > c.config.MaxTokens {
				fits = false
				break
			}
			pieces = append(pieces, piece)
		}
		if fits {
			return pieces
		}
	}
	return nil
}

func (c *TokenChunker) newChunk(block Block, part int, text string, tokens int) Chunk {
	return Chunk{
		Text:             text,
		TokenCount:       tokens,
		SourceBlockOrder: block.Order,
		PartIndex:        part,
		Kind:             block.Kind,
	}
}

// slidingWindows cuts ids into windows of size tokens whose starts advance
// by size-overlap, so neighbours share exactly overlap tokens. The last
// window ends at len(ids).
func slidingWindows(ids []int, size, overlap int) [][]int {
	if len(ids) == 0 || size <= 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}
	var windows [][]int
	for start := 0; ; start += step {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		windows = append(windows, ids[start:end])
		if end == len(ids) {
			break
		}
	}
	return windows
}
