package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prompt-sync/internal/batch"
	"prompt-sync/internal/report"
)

// SyncOptions holds the flags of the sync run.
type SyncOptions struct {
	Root          string
	Dedup         string
	TrackInserted bool
	Batch         bool
}

func runSync(cmd *cobra.Command, opts *RootOptions, syncOpts *SyncOptions, version string, d deps) error {
	ctx := cmd.Context()

	mode, err := batch.ParseDedupMode(syncOpts.Dedup)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, opts, d)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	enc, err := d.loadTokenizer(sess.cfg.Tokenizer, sess.cfg.TokenizerEncoding)
	if err != nil {
		sess.log.Error("Loading tokenizer failed", zap.String("path", sess.cfg.Tokenizer), zap.Error(err))
		return err
	}

	root := syncOpts.Root
	if root == "" {
		root = sess.cfg.PromptsDir
	}

	report.Banner(cmd.ErrOrStderr(), report.Info{
		Version:  version,
		Env:      sess.cfg.Env,
		Backend:  sess.cfg.StoreBackend,
		Database: sess.store.Database(),
		Root:     root,
		Encoding: sess.cfg.TokenizerEncoding,
		Dedup:    mode,
	})

	driver := batch.New(sess.store, enc, sess.log, batch.Options{
		Root:          root,
		Dedup:         mode,
		TrackInserted: syncOpts.TrackInserted,
		Batch:         syncOpts.Batch,
		Out:           cmd.OutOrStdout(),
	})
	sum, err := driver.Run(ctx)
	report.Summary(cmd.ErrOrStderr(), sum, err)
	if err != nil {
		sess.log.Error("Sync failed", zap.Error(err))
		return err
	}
	return nil
}
