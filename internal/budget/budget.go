package budget

import (
	"fmt"
	"slices"
	"strings"

	"talk_rag/internal/history"
	"talk_rag/internal/tokenizer"
)

// Policy decides what happens after a retrieved chunk does not fit
type Policy string

const (
	// StopAtOverflow drops the first chunk that does not fit and every chunk after it
	StopAtOverflow Policy = "stop"
	// SkipOverflow drops only the chunks that do not fit and keeps evaluating the rest
	SkipOverflow Policy = "skip"
)

const (
	DefaultModelMaxTokens  = 512
	DefaultReservedTokens  = 4
	DefaultMaxHistoryTurns = 5

	separator = "\n\n"
)

type Config struct {
	ModelMaxTokens  int    // input limit of the downstream model
	ReservedTokens  int    // special and separator tokens added by the model input format
	MaxHistoryTurns int    // most recent turns considered
	Policy          Policy // behaviour after a chunk overflows
}

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StopAtOverflow:
		return StopAtOverflow, nil
	case SkipOverflow:
		return SkipOverflow, nil
	default:
		return "", fmt.Errorf("unknown budget policy: %s", s)
	}
}

// Window is the bounded context handed to the answer step
type Window struct {
	Segments     []string // history block first (if any), then accepted chunks
	TotalTokens  int      // tokens of Text()
	Budget       int      // tokens available for the context
	HistoryTurns int      // turns rendered into the history block
	Accepted     []int    // indexes of retrieved chunks that were included
	Dropped      []int    // indexes of retrieved chunks that were left out
}

func (w Window) Text() string {
	return strings.Join(w.Segments, separator)
}

// Budgeter assembles context windows within a fixed token ceiling
type Budgeter struct {
	tok    tokenizer.Tokenizer
	config Config
}

func New(tok tokenizer.Tokenizer, config Config) *Budgeter {
	if config.Policy == "" {
		config.Policy = StopAtOverflow
	}
	return &Budgeter{tok: tok, config: config}
}

func (b *Budgeter) Config() Config {
	return b.config
}

// Budget is the number of context tokens left after the query and the
// reserved model tokens.
func (b *Budgeter) Budget(query string) int {
	return b.config.ModelMaxTokens - b.tok.Count(query) - b.config.ReservedTokens
}

// BuildContext renders the last MaxHistoryTurns turns as a history block,
// then adds retrieved chunks in the given order while they fit. Chunks are
// never truncated. History that alone exceeds the budget loses its oldest
// turns first.
func (b *Budgeter) BuildContext(query string, turns []history.Turn, chunks []string) Window {
	w := Window{Budget: b.Budget(query)}
	if w.Budget <= 0 {
		w.Dropped = allIndexes(len(chunks))
		return w
	}

	recent := history.Last(turns, b.config.MaxHistoryTurns)
	for len(recent) > 0 {
		text := history.Render(recent)
		if n := b.tok.Count(text); n <= w.Budget {
			w.Segments = append(w.Segments, text)
			w.HistoryTurns = len(recent)
			break
		}
		recent = recent[1:]
	}

	running := 0
	if len(w.Segments) > 0 {
		running = b.tok.Count(w.Segments[0])
	}
	b.fill(&w, chunks, running)
	return w
}

// BuildExtractiveContext fills the budget with retrieved chunks only, for
// models that pair the query and context in a single input.
func (b *Budgeter) BuildExtractiveContext(query string, chunks []string) Window {
	w := Window{Budget: b.Budget(query)}
	if w.Budget <= 0 {
		w.Dropped = allIndexes(len(chunks))
		return w
	}
	b.fill(&w, chunks, 0)
	return w
}

func (b *Budgeter) fill(w *Window, chunks []string, running int) {
	for i, chunk := range chunks {
		n := b.tok.Count(chunk)
		if running+n+1 <= w.Budget {
			w.Segments = append(w.Segments, chunk)
			w.Accepted = append(w.Accepted, i)
			running += n
			continue
		}
		if b.config.Policy == StopAtOverflow {
			for j := i; j < len(chunks); j++ {
				w.Dropped = append(w.Dropped, j)
			}
			break
		}
		w.Dropped = append(w.Dropped, i)
	}

	// the joined text is measured again; separators may cost more than the
	// one token per chunk allowed above
	for w.TotalTokens = b.tok.Count(w.Text()); w.TotalTokens > w.Budget && len(w.Segments) > 0; w.TotalTokens = b.tok.Count(w.Text()) {
		if n := len(w.Accepted); n > 0 {
			w.Dropped = append(w.Dropped, w.Accepted[n-1])
			w.Accepted = w.Accepted[:n-1]
		} else {
			w.HistoryTurns = 0
		}
		w.Segments = w.Segments[:len(w.Segments)-1]
	}
	slices.Sort(w.Dropped)
}

func allIndexes(n int) []int {
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
