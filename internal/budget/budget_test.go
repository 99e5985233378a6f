package budget

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk_rag/internal/history"
	"talk_rag/internal/tokenizer"
)

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func conversation(n int) []history.Turn {
	turns := make([]history.Turn, n)
	for i := range turns {
		role := history.RoleUser
		if i%2 == 1 {
			role = history.RoleSystem
		}
		turns[i] = history.Turn{Role: role, Content: fmt.Sprintf("turn%d", i), Order: i}
	}
	return turns
}

func TestBudget(t *testing.T) {
	b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 512, ReservedTokens: 4})
	assert.Equal(t, 505, b.Budget("what is five"))
	assert.Equal(t, StopAtOverflow, b.Config().Policy)
}

func TestBuildContextHistoryWindow(t *testing.T) {
	b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 512, ReservedTokens: 4, MaxHistoryTurns: 5})

	w := b.BuildContext("question", conversation(6), nil)
	require.Len(t, w.Segments, 1)
	assert.Equal(t, 5, w.HistoryTurns)
	assert.Equal(t, "System: turn1\nUser: turn2\nSystem: turn3\nUser: turn4\nSystem: turn5", w.Segments[0])
	assert.Equal(t, 10, w.TotalTokens)
}

func TestBuildContextChunkPolicies(t *testing.T) {
	chunks := []string{words("a", 80), words("b", 90), words("c", 40)}

	t.Run("stop at first overflow", func(t *testing.T) {
		// budget: 155 - 1 (query) - 4 = 150
		b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 155, ReservedTokens: 4})
		w := b.BuildContext("q", nil, chunks)
		assert.Equal(t, 150, w.Budget)
		assert.Equal(t, []int{0}, w.Accepted)
		assert.Equal(t, []int{1, 2}, w.Dropped)
		assert.Equal(t, 80, w.TotalTokens)
	})

	t.Run("skip overflowing chunk", func(t *testing.T) {
		b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 155, ReservedTokens: 4, Policy: SkipOverflow})
		w := b.BuildContext("q", nil, chunks)
		assert.Equal(t, []int{0, 2}, w.Accepted)
		assert.Equal(t, []int{1}, w.Dropped)
		assert.Equal(t, 120, w.TotalTokens)
		assert.Equal(t, chunks[0]+"\n\n"+chunks[2], w.Text())
	})
}

func TestBuildContextHistoryComesFirst(t *testing.T) {
	b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 40, ReservedTokens: 4, MaxHistoryTurns: 2})
	w := b.BuildContext("q", conversation(3), []string{words("x", 20), words("y", 20)})

	// budget 35, history "System: turn1\nUser: turn2" = 4 tokens
	require.Len(t, w.Segments, 2)
	assert.True(t, strings.HasPrefix(w.Text(), "System: turn1\nUser: turn2\n\n"))
	assert.Equal(t, []int{0}, w.Accepted)
	assert.Equal(t, 24, w.TotalTokens)
}

func TestBuildContextTrimsOversizedHistory(t *testing.T) {
	b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 20, ReservedTokens: 4, MaxHistoryTurns: 5})
	turns := []history.Turn{
		{Role: history.RoleUser, Content: words("old", 12)},
		{Role: history.RoleSystem, Content: "short answer"},
	}

	w := b.BuildContext("q", turns, nil)
	assert.Equal(t, 1, w.HistoryTurns)
	assert.Equal(t, "System: short answer", w.Text())

	huge := []history.Turn{{Role: history.RoleUser, Content: words("big", 40)}}
	w = b.BuildContext("q", huge, []string{"fits"})
	assert.Equal(t, 0, w.HistoryTurns)
	assert.Equal(t, "fits", w.Text())
}

func TestBuildContextDegradesOnEmptyInputs(t *testing.T) {
	b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 512, ReservedTokens: 4, MaxHistoryTurns: 5})

	w := b.BuildContext("q", nil, nil)
	assert.Empty(t, w.Segments)
	assert.Equal(t, "", w.Text())
	assert.Equal(t, 0, w.TotalTokens)

	w = b.BuildContext("q", conversation(2), nil)
	assert.Equal(t, "User: turn0\nSystem: turn1", w.Text())

	raw := []history.Turn{{Content: "legacy entry", Raw: true}}
	w = b.BuildContext("q", raw, nil)
	assert.Equal(t, "legacy entry", w.Text())
}

func TestBuildContextQueryExhaustsBudget(t *testing.T) {
	b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 10, ReservedTokens: 4})
	w := b.BuildContext(words("q", 8), conversation(2), []string{"a", "b"})
	assert.Equal(t, -2, w.Budget)
	assert.Empty(t, w.Segments)
	assert.Equal(t, []int{0, 1}, w.Dropped)
}

func TestBuildContextNeverExceedsBudget(t *testing.T) {
	tok := tokenizer.NewWords()
	chunks := []string{words("a", 7), words("b", 30), words("c", 3), words("d", 12), "", words("e", 1)}
	for _, policy := range []Policy{StopAtOverflow, SkipOverflow} {
		for modelMax := 0; modelMax <= 80; modelMax += 3 {
			for historyTurns := 0; historyTurns <= 6; historyTurns += 2 {
				b := New(tok, Config{ModelMaxTokens: modelMax, ReservedTokens: 4, MaxHistoryTurns: historyTurns, Policy: policy})
				query := "how many tokens"
				w := b.BuildContext(query, conversation(7), chunks)

				limit := modelMax - tok.Count(query) - 4
				assert.LessOrEqual(t, tok.Count(w.Text()), max(limit, 0), "policy=%s max=%d turns=%d", policy, modelMax, historyTurns)
				assert.Equal(t, tok.Count(w.Text()), w.TotalTokens)
				assert.Len(t, append(append([]int{}, w.Accepted...), w.Dropped...), len(chunks))

				if policy == StopAtOverflow && len(w.Dropped) > 0 {
					for _, a := range w.Accepted {
						assert.Less(t, a, w.Dropped[0], "accepted chunk after a dropped one")
					}
				}
			}
		}
	}
}

func TestBuildExtractiveContext(t *testing.T) {
	b := New(tokenizer.NewWords(), Config{ModelMaxTokens: 30, ReservedTokens: 4, MaxHistoryTurns: 5})
	w := b.BuildExtractiveContext("two words", []string{words("a", 10), words("b", 14), words("c", 3)})

	assert.Equal(t, 24, w.Budget)
	assert.Equal(t, []int{0}, w.Accepted)
	assert.Equal(t, []int{1, 2}, w.Dropped)
	assert.Equal(t, 0, w.HistoryTurns)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, StopAtOverflow, p)

	p, err = ParsePolicy(" SKIP ")
	require.NoError(t, err)
	assert.Equal(t, SkipOverflow, p)

	_, err = ParsePolicy("truncate")
	assert.Error(t, err)
}
