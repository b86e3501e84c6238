package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// TruncateOptions holds flags for the truncate-db command.
type TruncateOptions struct {
	*RootOptions
	Yes bool
}

// NewTruncateCommand creates the truncate-db command.
func NewTruncateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TruncateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "truncate-db",
		Short: "Delete all data",
		Long: `Delete every position, event, model and id reservation. Meant for
development and tests; requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTruncate(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deleting all data")

	return cmd
}

func runTruncate(ctx context.Context, opts *TruncateOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to truncate without --yes")
	}
	out := newOutputFormatter(opts.RootOptions, cmd)

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return out.Fail("failed to open datastore", err)
	}
	defer a.Close()

	if err := a.service.TruncateDB(ctx); err != nil {
		return out.Fail("truncate failed", err)
	}
	return out.Success("Datastore truncated")
}
