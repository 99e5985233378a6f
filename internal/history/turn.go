package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the speaker of a conversation turn
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Turn is one stored conversation message. Raw turns could not be decoded
// into role and content and are rendered verbatim.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Order   int    `json:"-"`
	Raw     bool   `json:"-"`
}

// Store persists conversation turns per session
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	// FetchRecent returns at most maxTurns of the latest turns, oldest first
	FetchRecent(ctx context.Context, sessionID string, maxTurns int) ([]Turn, error)
}

// DecodeOutcome tells how a stored entry was read
type DecodeOutcome int

const (
	DecodedStructured DecodeOutcome = iota
	DecodedRaw
)

func (o DecodeOutcome) String() string {
	if o == DecodedRaw {
		return "raw"
	}
	return "structured"
}

// Encode serializes a turn for storage
func Encode(turn Turn) (string, error) {
	data, err := json.Marshal(turn)
	if err != nil {
		return "", fmt.Errorf("encode turn: %w", err)
	}
	return string(data), nil
}

// Decode reads a stored entry. Entries that are not a JSON object with a
// role and content become raw turns holding the entry text.
func Decode(entry string, order int) (Turn, DecodeOutcome) {
	var turn Turn
	if err := json.Unmarshal([]byte(entry), &turn); err == nil && turn.Role != "" {
		turn.Order = order
		return turn, DecodedStructured
	}
	return Turn{Content: entry, Order: order, Raw: true}, DecodedRaw
}

// Line renders a turn as "<Role>: <content>"
func (t Turn) Line() string {
	if t.Raw || t.Role == "" {
		return t.Content
	}
	role := string(t.Role)
	return strings.ToUpper(role[:1]) + role[1:] + ": " + t.Content
}

// Render joins turn lines with newlines
func Render(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.Line()
	}
	return strings.Join(lines, "\n")
}

// Last returns the trailing n turns, oldest first
func Last(turns []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}
