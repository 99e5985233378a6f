package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"talk_rag/internal/app"
	"talk_rag/internal/config"
	"talk_rag/internal/logger"
)

type options struct {
	envFile   string
	dataDir   string
	sessionID string
	force     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "talk_rag",
		Short: "Chat with your documents",
		Long: `talk_rag ingests PDF, markdown and text documents into a local vector
store and answers questions with a token-budgeted context built from the
retrieved chunks and the recent conversation.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "Optional .env file with configuration")
	root.PersistentFlags().StringVar(&opts.dataDir, "data", "", "Data directory for the vector DB (overrides DATA_DIR)")

	root.AddCommand(
		newIngestCmd(opts),
		newChunkCmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
	)
	return root
}

func newIngestCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file-or-dir>",
		Short: "Chunk, embed and store documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(ctx context.Context, a *app.App) error {
				results, err := a.Ingest(ctx, args[0], opts.force)
				app.PrintIngestResults(cmd.OutOrStdout(), results)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-index files even if unchanged")
	return cmd
}

func newChunkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chunk <file>",
		Short: "Print the chunks of a document without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			chunks, err := app.ChunkFile(cfg, log, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, ch := range chunks {
				fmt.Fprintf(out, "--- chunk %d [%s] block=%d part=%d tokens=%d section=%q\n",
					i, ch.Kind, ch.SourceBlockOrder, ch.PartIndex, ch.TokenCount, ch.Section)
				fmt.Fprintln(out, ch.Text)
			}
			fmt.Fprintf(out, "--- %d chunks\n", len(chunks))
			return nil
		},
	}
}

func newAskCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(ctx context.Context, a *app.App) error {
				ans, err := a.Ask(ctx, opts.sessionID, strings.Join(args, " "))
				if err != nil {
					return err
				}
				app.PrintAnswer(cmd.OutOrStdout(), ans)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Conversation session to read and extend")
	return cmd
}

func newChatCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.sessionID == "" {
				opts.sessionID = uuid.NewString()
			}
			return withApp(cmd, opts, true, func(ctx context.Context, a *app.App) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n", opts.sessionID)
				return a.Run(ctx, opts.sessionID)
			})
		},
	}
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Conversation session (a new one if empty)")
	return cmd
}

// setup loads configuration and builds the logger
func setup(opts *options) (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load(opts.envFile)

	cfg := &config.Config{}
	if err := config.Init(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("config loaded", zap.String("data_dir", cfg.DataDir), zap.String("tokenizer", cfg.Tokenizer))
	return cfg, log, nil
}

// withApp builds the app and runs fn until it returns or the process is
// interrupted.
func withApp(cmd *cobra.Command, opts *options, checkModels bool, fn func(context.Context, *app.App) error) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()

	if checkModels {
		if err := a.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
	}
	return fn(ctx, a)
}
