package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prompt-sync/internal/batch"
	"prompt-sync/internal/report"
	"prompt-sync/internal/store"
)

var errNotConfirmed = errors.New("purge deletes records; pass --yes to confirm")

// PurgeOptions holds the flags of the purge command.
type PurgeOptions struct {
	Prefix string
	Suffix string
	Yes    bool
}

func newPurgeCommand(rootOpts *RootOptions, d deps) *cobra.Command {
	opts := &PurgeOptions{}

	cmd := &cobra.Command{
		Use:   "purge <namespace>",
		Short: "Delete records from a namespace",
		Long: `Delete the records of one namespace matching --prefix and --suffix.
Without either flag every record in the namespace is deleted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd, rootOpts, opts, args[0], d)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "only delete records with this prefix")
	cmd.Flags().StringVar(&opts.Suffix, "suffix", "", "only delete records with this suffix")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the deletion")

	return cmd
}

func runPurge(cmd *cobra.Command, rootOpts *RootOptions, opts *PurgeOptions, namespace string, d deps) error {
	if !opts.Yes {
		return errNotConfirmed
	}
	ctx := cmd.Context()

	// An explicitly empty --prefix still filters.
	q := store.Query{}
	if cmd.Flags().Changed("prefix") {
		q["prefix"] = opts.Prefix
	}
	if cmd.Flags().Changed("suffix") {
		q["suffix"] = opts.Suffix
	}

	sess, err := openSession(ctx, rootOpts, d)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	driver := batch.New(sess.store, nil, sess.log, batch.Options{})
	n, err := driver.Purge(ctx, namespace, q)
	if err != nil {
		sess.log.Error("Purge failed", zap.String("namespace", namespace), zap.Error(err))
		return err
	}
	report.Purged(cmd.ErrOrStderr(), sess.store.Database()+"."+namespace, n)
	return nil
}
