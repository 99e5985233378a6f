package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"talk_rag/internal/budget"
	"talk_rag/internal/history"
)

// FallbackAnswer replaces the answer when generation fails
const FallbackAnswer = "Could not generate a fluent answer."

var ErrEmptyQuery = errors.New("query is empty")

// Outcome tells a generated answer apart from the fallback
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeDegraded Outcome = "degraded"
)

type Answer struct {
	Text    string
	Outcome Outcome
	Window  budget.Window
	Sources []SearchResult // retrieved chunks that made it into the context

	RetrievalErr  error // context was built from history only
	GenerationErr error // Text is FallbackAnswer
}

// QA answers questions over retrieved chunks and the session history
type QA struct {
	retriever Retriever
	generator Generator
	history   history.Store
	budgeter  *budget.Budgeter
	topK      int
	logger    *zap.Logger
}

func NewQA(retriever Retriever, generator Generator, store history.Store, budgeter *budget.Budgeter, topK int, logger *zap.Logger) *QA {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QA{
		retriever: retriever,
		generator: generator,
		history:   store,
		budgeter:  budgeter,
		topK:      topK,
		logger:    logger,
	}
}

// Answer builds a budgeted context from recent turns of the session and the
// retrieved chunks, then asks the generator. A failed retrieval or history
// read narrows the context; a failed generation yields FallbackAnswer with
// OutcomeDegraded. Both turns are appended to the session afterwards. An
// empty sessionID disables history.
func (q *QA) Answer(ctx context.Context, sessionID, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, ErrEmptyQuery
	}
	log := q.logger.With(zap.String("session", sessionID))

	var turns []history.Turn
	if sessionID != "" && q.history != nil {
		fetched, err := q.history.FetchRecent(ctx, sessionID, q.budgeter.Config().MaxHistoryTurns)
		if err != nil {
			log.Warn("history unavailable", zap.Error(err))
		} else {
			turns = fetched
		}
	}

	var ans Answer
	results, err := q.retriever.Retrieve(ctx, query, q.topK)
	if err != nil {
		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}
		log.Warn("retrieval failed, answering from history only", zap.Error(err))
		ans.RetrievalErr = err
		results = nil
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Content
	}
	ans.Window = q.budgeter.BuildContext(query, turns, texts)
	for _, i := range ans.Window.Accepted {
		ans.Sources = append(ans.Sources, results[i])
	}
	log.Debug("context built",
		zap.Int("budget", ans.Window.Budget),
		zap.Int("tokens", ans.Window.TotalTokens),
		zap.Int("history_turns", ans.Window.HistoryTurns),
		zap.Ints("accepted", ans.Window.Accepted),
		zap.Ints("dropped", ans.Window.Dropped),
	)

	text, err := q.generator.Generate(ctx, buildPrompt(ans.Window.Text(), query))
	if err != nil {
		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}
		log.Error("generation failed", zap.Error(err))
		ans.Text = FallbackAnswer
		ans.Outcome = OutcomeDegraded
		ans.GenerationErr = err
	} else {
		ans.Text = text
		ans.Outcome = OutcomeAnswered
	}

	q.remember(ctx, sessionID, query, ans.Text)
	return ans, nil
}

func (q *QA) remember(ctx context.Context, sessionID, query, answer string) {
	if sessionID == "" || q.history == nil {
		return
	}
	for _, turn := range []history.Turn{
		{Role: history.RoleUser, Content: query},
		{Role: history.RoleSystem, Content: answer},
	} {
		if err := q.history.Append(ctx, sessionID, turn); err != nil {
			q.logger.Warn("failed to save turn", zap.String("session", sessionID), zap.Error(err))
			return
		}
	}
}
