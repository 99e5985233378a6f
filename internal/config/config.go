package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"

	"talk_rag/internal/budget"
)

const (
	HistoryMemory   = "memory"
	HistoryPostgres = "postgres"
)

type Config struct {
	DataDir          string `env:"DATA_DIR" envDefault:"./data"`
	OllamaURL        string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel      string `env:"OLLAMA_MODEL" envDefault:"qwen2.5:0.5b"`
	OllamaEmbedModel string `env:"OLLAMA_EMBED_MODEL" envDefault:"nomic-embed-text"`
	SkipModelCheck   bool   `env:"SKIP_MODEL_CHECK" envDefault:"false"`

	LlmMain LLM

	Tokenizer         string `env:"TOKENIZER" envDefault:"tiktoken"`
	TokenizerEncoding string `env:"TOKENIZER_ENCODING" envDefault:"cl100k_base"`

	ChunkTokens     int     `env:"CHUNK_TOKENS" envDefault:"512"`
	ChunkOverlap    int     `env:"CHUNK_OVERLAP" envDefault:"64"`
	ModelMaxTokens  int     `env:"MODEL_MAX_TOKENS" envDefault:"512"`
	ReservedTokens  int     `env:"RESERVED_TOKENS" envDefault:"4"`
	MaxHistoryTurns int     `env:"MAX_HISTORY_TURNS" envDefault:"5"`
	TopK            int     `env:"TOP_K" envDefault:"5"`
	MinSimilarity   float32 `env:"MIN_SIMILARITY" envDefault:"0"`
	BudgetPolicy    string  `env:"BUDGET_POLICY" envDefault:"stop"`

	HistoryBackend string `env:"HISTORY_BACKEND" envDefault:"memory"`
	DatabaseURL    string `env:"DATABASE_URL"`
	MaxSessions    int    `env:"MAX_SESSIONS" envDefault:"1024"`

	MaxConcurrency int `env:"MAX_CONCURRENCY" envDefault:"4"`

	EmbedCacheSize int           `env:"EMBED_CACHE_SIZE" envDefault:"1024"`
	EmbedCacheTTL  time.Duration `env:"EMBED_CACHE_TTL" envDefault:"30m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LLM is an OpenAI-compatible chat endpoint. Empty URL means Ollama's /v1.
type LLM struct {
	URL        string        `env:"LLM_URL"`
	Key        string        `env:"LLM_KEY"`
	Model      string        `env:"LLM_MODEL"`
	Timeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	MaxRetries int           `env:"LLM_MAX_RETRIES" envDefault:"2"`
	RetryDelay time.Duration `env:"LLM_RETRY_DELAY" envDefault:"500ms"`
}

func Init(cfg interface{}) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if c, ok := cfg.(*Config); ok {
		c.fillDerived()
	}
	return nil
}

func (c *Config) fillDerived() {
	if c.LlmMain.URL == "" {
		c.LlmMain.URL = c.OllamaURL + "/v1"
	}
	if c.LlmMain.Model == "" {
		c.LlmMain.Model = c.OllamaModel
	}
}

// DBPath is the directory of the persistent vector collection
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "vectors")
}

func (c *Config) Validate() error {
	var errs []error
	if c.ChunkTokens <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_TOKENS must be positive, got %d", c.ChunkTokens))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkTokens {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, %d), got %d", c.ChunkTokens, c.ChunkOverlap))
	}
	if c.ModelMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("MODEL_MAX_TOKENS must be positive, got %d", c.ModelMaxTokens))
	}
	if c.ReservedTokens < 0 {
		errs = append(errs, fmt.Errorf("RESERVED_TOKENS must not be negative, got %d", c.ReservedTokens))
	}
	if c.MaxHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("MAX_HISTORY_TURNS must not be negative, got %d", c.MaxHistoryTurns))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive, got %d", c.TopK))
	}
	if _, err := budget.ParsePolicy(c.BudgetPolicy); err != nil {
		errs = append(errs, err)
	}
	switch c.HistoryBackend {
	case HistoryMemory:
	case HistoryPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres history backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown HISTORY_BACKEND: %s", c.HistoryBackend))
	}
	return errors.Join(errs...)
}
