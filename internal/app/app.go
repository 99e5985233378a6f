package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"talk_rag/internal/budget"
	"talk_rag/internal/chunker"
	"talk_rag/internal/config"
	"talk_rag/internal/document"
	"talk_rag/internal/history"
	"talk_rag/internal/tokenizer"
)

type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	tok           tokenizer.Tokenizer
	db            *chromem.DB
	embeddingFunc chromem.EmbeddingFunc
	store         *VectorStore
	indexer       *Indexer
	history       history.Store
	qa            *QA
	closers       []io.Closer

	in  io.Reader
	out io.Writer
}

// New wires the pipeline from configuration. It opens the vector database
// and the history backend but does not contact the model server; see Init.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, in: os.Stdin, out: os.Stdout}

	tok, chunkr, err := newChunker(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.tok = tok

	policy, err := budget.ParsePolicy(cfg.BudgetPolicy)
	if err != nil {
		return nil, err
	}
	budgeter := budget.New(tok, budget.Config{
		ModelMaxTokens:  cfg.ModelMaxTokens,
		ReservedTokens:  cfg.ReservedTokens,
		MaxHistoryTurns: cfg.MaxHistoryTurns,
		Policy:          policy,
	})

	// Initialize embedding function
	ollamaEmbeddingURL := cfg.OllamaURL + "/api"
	app.embeddingFunc = guardEmbedding(cacheEmbedding(
		chromem.NewEmbeddingFuncOllama(cfg.OllamaEmbedModel, ollamaEmbeddingURL),
		cfg.EmbedCacheSize, cfg.EmbedCacheTTL,
	))

	// Initialize vector database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	app.db, err = chromem.NewPersistentDB(cfg.DBPath(), false)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	coll, err := app.db.GetOrCreateCollection(collectionName, nil, app.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", collectionName, err)
	}
	app.store = NewVectorStore(coll, cfg.MinSimilarity)
	logger.Info("vector database ready", zap.String("path", cfg.DBPath()), zap.Int("chunks", coll.Count()))

	app.indexer, err = NewIndexer(chunkr, app.store, filepath.Join(cfg.DataDir, "metadata.json"), logger.Named("indexer"))
	if err != nil {
		return nil, err
	}

	if err := app.openHistory(ctx); err != nil {
		return nil, err
	}

	generator := NewOpenAIGenerator(cfg.LlmMain, logger.Named("llm"))
	app.qa = NewQA(app.store, generator, app.history, budgeter, cfg.TopK, logger.Named("qa"))
	return app, nil
}

func (a *App) openHistory(ctx context.Context) error {
	switch a.cfg.HistoryBackend {
	case config.HistoryPostgres:
		db, err := history.OpenPostgres(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("history database: %w", err)
		}
		a.closers = append(a.closers, db)
		store := history.NewPostgresStore(db, a.logger.Named("history"))
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
		a.history = store
	default:
		store, err := history.NewMemoryStore(a.cfg.MaxSessions, a.logger.Named("history"))
		if err != nil {
			return fmt.Errorf("history store: %w", err)
		}
		a.history = store
	}
	return nil
}

// Init makes sure the model server is reachable and has the models
func (a *App) Init(ctx context.Context) error {
	if a.cfg.SkipModelCheck {
		return nil
	}
	models := []string{a.cfg.OllamaEmbedModel}
	if strings.HasPrefix(a.cfg.LlmMain.URL, a.cfg.OllamaURL) {
		models = append(models, a.cfg.LlmMain.Model)
	}
	if err := ensureOllamaAndModels(ctx, http.DefaultClient, a.cfg.OllamaURL, models, a.logger); err != nil {
		return fmt.Errorf("ollama model check failed: %w", err)
	}
	return nil
}

// Close releases the history backend. The vector database is persisted on write.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Ask answers one question in the session
func (a *App) Ask(ctx context.Context, sessionID, query string) (Answer, error) {
	return a.qa.Answer(ctx, sessionID, query)
}

// ChunkFile runs the chunking pipeline on one file without opening the
// vector database, the history backend or the model server.
func ChunkFile(cfg *config.Config, logger *zap.Logger, path string) ([]chunker.Chunk, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	_, chunkr, err := newChunker(cfg, logger)
	if err != nil {
		return nil, err
	}
	text, err := document.Load(path)
	if err != nil {
		return nil, err
	}
	_, chunks := chunkText(chunkr, text, filepath.Base(path))
	return chunks, nil
}

func newChunker(cfg *config.Config, logger *zap.Logger) (tokenizer.Tokenizer, *chunker.TokenChunker, error) {
	tok, err := tokenizer.New(cfg.Tokenizer, cfg.TokenizerEncoding)
	if err != nil {
		return nil, nil, fmt.Errorf("tokenizer: %w", err)
	}
	chunkr, err := chunker.NewTokenChunker(tok, chunker.Config{
		MaxTokens: cfg.ChunkTokens,
		Overlap:   cfg.ChunkOverlap,
	}, logger.Named("chunker"))
	if err != nil {
		return nil, nil, err
	}
	return tok, chunkr, nil
}

type ollamaModel struct {
	Name string `json:"name"`
}

func ensureOllamaAndModels(ctx context.Context, client *http.Client, baseURL string, models []string, logger *zap.Logger) error {
	type ollamaPullRequest struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}

	available, err := listOllamaModels(ctx, client, baseURL)
	if err != nil {
		return fmt.Errorf("ollama is not running or not reachable at %s: %w", baseURL, err)
	}

	for _, model := range models {
		if hasModel(available, model) {
			logger.Info("model is available", zap.String("model", model))
			continue
		}

		logger.Info("model not found, pulling", zap.String("model", model))
		b, err := json.Marshal(ollamaPullRequest{Name: model, Stream: false})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/pull", bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to pull model %s: %w", model, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to pull model %s: status %d", model, resp.StatusCode)
		}
		logger.Info("model pulled successfully", zap.String("model", model))
	}
	return nil
}

func listOllamaModels(ctx context.Context, client *http.Client, baseURL string) ([]ollamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var tags struct {
		Models []ollamaModel `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	return tags.Models, nil
}

// hasModel matches an exact tag or an untagged name against its :latest tag
func hasModel(available []ollamaModel, model string) bool {
	for _, m := range available {
		if m.Name == model || (!strings.Contains(model, ":") && m.Name == model+":latest") {
			return true
		}
	}
	return false
}
