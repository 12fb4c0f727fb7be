// Package cli wires configuration, logging, the store backend and the
// tokenizer into the prompt-sync commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prompt-sync/internal/config"
	"prompt-sync/internal/logger"
	"prompt-sync/internal/store"
	"prompt-sync/internal/tokenizer"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Env       string
	ConfigDir string
}

// deps are the collaborators a command opens. Tests replace them.
type deps struct {
	openStore     func(ctx context.Context, cfg *config.Config) (store.Store, error)
	loadTokenizer func(path, encoding string) (tokenizer.Encoder, error)
}

func defaultDeps() deps {
	return deps{
		openStore:     openStore,
		loadTokenizer: loadTokenizer,
	}
}

// NewRootCommand creates the prompt-sync command. Running it without a
// subcommand syncs the prompts tree into the store.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, defaultDeps())
}

func newRootCommand(version string, d deps) *cobra.Command {
	opts := &RootOptions{}
	syncOpts := &SyncOptions{}

	cmd := &cobra.Command{
		Use:   "prompt-sync",
		Short: "Sync prompt files into the prompts store",
		Long: `Walk prompts/<namespace>/ and insert every prompt file whose prefix and
suffix are not yet stored in the namespace's collection of <env>_prompts.

One line per inserted record is written to stdout; everything else goes to
stderr.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, syncOpts, version, d)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Env, "env", config.DefaultEnv, "environment; selects .env.<env> and the <env>_prompts database")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", ".", "directory holding the .env.<env> settings files")

	cmd.Flags().StringVar(&syncOpts.Root, "root", "", "prompts directory (overrides PROMPTS_DIR)")
	cmd.Flags().StringVar(&syncOpts.Dedup, "dedup", "fields", "duplicate rule: fields (prefix and suffix each stored) or pair (stored together)")
	cmd.Flags().BoolVar(&syncOpts.TrackInserted, "track-inserted", false, "count prompts inserted during this run as stored")
	cmd.Flags().BoolVar(&syncOpts.Batch, "batch", false, "insert each namespace's new records in one request")

	cmd.AddCommand(newPurgeCommand(opts, d))

	return cmd
}

// session is what every command needs once settings are loaded.
type session struct {
	cfg   *config.Config
	log   *zap.Logger
	store store.Store
}

func (s *session) close(ctx context.Context) {
	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			s.log.Warn("Closing store failed", zap.Error(err))
		}
	}
	_ = s.log.Sync()
}

// openSession loads the settings for opts.Env, builds the logger and opens
// the store with the environment's database selected.
func openSession(ctx context.Context, opts *RootOptions, d deps) (*session, error) {
	cfg, err := config.Load(opts.Env, opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		return nil, err
	}
	redacted := cfg.Redacted()
	log.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("backend", cfg.StoreBackend),
		zap.String("database", cfg.DatabaseName()),
		zap.String("mongodb_url", redacted.MongoURL),
		zap.String("meili_url", redacted.MeiliURL),
	)

	s, err := d.openStore(ctx, cfg)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	sess := &session{cfg: cfg, log: log, store: s}
	if err := s.SelectDatabase(cfg.DatabaseName()); err != nil {
		sess.close(ctx)
		return nil, err
	}
	return sess, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreBackend == config.BackendMeili {
		ms, err := store.NewMeiliStore(cfg.MeiliURL, cfg.MeiliKey, "")
		if err != nil {
			return nil, err
		}
		return ms, nil
	}
	ms, err := store.NewMongoStore(ctx, store.MongoConfig{
		Host:     cfg.MongoURL,
		Port:     cfg.MongoPort,
		Username: cfg.MongoUser,
		Password: cfg.MongoPassword,
	})
	if err != nil {
		return nil, err
	}
	return ms, nil
}

func loadTokenizer(path, encoding string) (tokenizer.Encoder, error) {
	tok, err := tokenizer.Load(path, encoding)
	if err != nil {
		return nil, err
	}
	return tok, nil
}
