package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"talk_rag/internal/document"
)

// Run reads lines from stdin until EOF or cancellation. A line naming an
// existing supported file is ingested; any other line is a question.
func (a *App) Run(ctx context.Context, sessionID string) error {
	a.logger.Info("chat started", zap.String("session", sessionID))
	fmt.Fprintln(a.out, "Ask a question (one per line) or enter a file path to ingest it. Ctrl+C to exit.")

	scanner := bufio.NewScanner(a.in)

	const maxLineSize = 1024 * 1024
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down chat")
			return nil
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("stdin error: %w", err)
				}
				a.logger.Debug("stdin closed")
				return nil
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			a.handleLine(ctx, sessionID, line)
		}
	}
}

func (a *App) handleLine(ctx context.Context, sessionID, line string) {
	if info, err := os.Stat(line); err == nil && !info.IsDir() && document.Supported(line) {
		results, err := a.Ingest(ctx, line, false)
		if err != nil {
			fmt.Fprintf(a.out, "❌ Ingestion failed: %v\n", err)
			return
		}
		PrintIngestResults(a.out, results)
		return
	}

	ans, err := a.Ask(ctx, sessionID, line)
	if err != nil {
		fmt.Fprintf(a.out, "❌ %v\n", err)
		return
	}
	PrintAnswer(a.out, ans)
}
