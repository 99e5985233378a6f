package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"talk_rag/internal/config"
)

const maxBackoff = 30 * time.Second

var errEmptyCompletion = errors.New("model returned an empty answer")

// Generator produces an answer for a fully built prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint
type OpenAIGenerator struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewOpenAIGenerator(cfg config.LLM, logger *zap.Logger) *OpenAIGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := openai.DefaultConfig(cfg.Key)
	clientCfg.BaseURL = strings.TrimSuffix(cfg.URL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIGenerator{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

// Generate sends the prompt as a single user message, retrying failed
// attempts with exponential backoff.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, calculateBackoff(g.retryDelay, attempt)); err != nil {
				return "", err
			}
		}

		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			g.logger.Warn("llm request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("attempt %d: no completion choices returned", attempt+1)
			continue
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, errEmptyCompletion)
			continue
		}
		return content, nil
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", g.maxRetries+1, lastErr)
}

// calculateBackoff doubles the base delay each attempt, capped at 30s,
// with up to 25% jitter either way.
func calculateBackoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	if backoff < 4 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const answerInstruction = "You are a helpful assistant. Answer ONLY using the information provided below. " +
	"If the answer is not in the context, say: 'The document does not provide this information.'"

// buildPrompt wraps the budgeted context and the question
func buildPrompt(contextText, query string) string {
	var buf strings.Builder
	buf.WriteString(answerInstruction)
	buf.WriteString("\n\nContext:\n")
	buf.WriteString(contextText)
	buf.WriteString("\n\nQuestion:\n")
	buf.WriteString(query)
	buf.WriteString("\n\nAnswer:")
	return buf.String()
}
