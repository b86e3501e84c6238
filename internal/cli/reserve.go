package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// ReserveResult is the output of the reserve-ids command.
type ReserveResult struct {
	Collection string  `json:"collection"`
	IDs        []int64 `json:"ids"`
}

func (r ReserveResult) String() string {
	return fmt.Sprintf("Reserved %s ids %v", r.Collection, r.IDs)
}

// NewReserveIDsCommand creates the reserve-ids command.
func NewReserveIDsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reserve-ids <collection> <count>",
		Short: "Reserve new ids in a collection",
		Long: `Reserve count consecutive ids in a collection. Reserved ids are never
handed out again and are never used by a create of another caller.

Examples:
  datastore-writer reserve-ids motion 3`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReserveIDs(cmd.Context(), rootOpts, args[0], args[1], cmd)
		},
	}
}

func runReserveIDs(ctx context.Context, opts *RootOptions, collection, countArg string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newOutputFormatter(opts, cmd)

	count, err := strconv.Atoi(countArg)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid count %q", countArg), err)
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return out.Fail("failed to open datastore", err)
	}
	defer a.Close()

	ids, err := a.service.ReserveIDs(ctx, collection, count)
	if err != nil {
		return out.Fail("reserve ids failed", err)
	}
	return out.Success(ReserveResult{Collection: collection, IDs: ids})
}
