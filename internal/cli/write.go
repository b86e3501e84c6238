package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// WriteResult is the output of the write command.
type WriteResult struct {
	Requests      int   `json:"requests"`
	FirstPosition int64 `json:"first_position"`
	LastPosition  int64 `json:"last_position"`
}

func (r WriteResult) String() string {
	if r.FirstPosition == r.LastPosition {
		return fmt.Sprintf("Wrote 1 request at position %d", r.FirstPosition)
	}
	return fmt.Sprintf("Wrote %d requests at positions %d-%d", r.Requests, r.FirstPosition, r.LastPosition)
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write <request-file>",
		Short: "Persist write requests",
		Long: `Persist the write requests in a JSON, YAML or CUE file.

The file holds one request or a list of them. All requests are written
atomically under consecutive positions, or none is.

Exit codes:
  0 - Requests persisted
  1 - Requests rejected (model exists, locked fields changed, ...)
  2 - Command error (bad file, database unavailable, etc.)

Examples:
  datastore-writer write request.json
  datastore-writer write --format json requests.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
}

func runWrite(ctx context.Context, opts *RootOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newOutputFormatter(opts, cmd)

	requests, err := LoadRequests(path)
	if err != nil {
		return out.Fail("failed to load requests", WrapExitError(ExitCommandError, "failed to load requests", err))
	}
	out.VerboseLog("loaded %d requests from %s", len(requests), path)

	a, err := openApp(ctx, opts)
	if err != nil {
		return out.Fail("failed to open datastore", err)
	}
	defer a.Close()

	// The broker delivers one message per committed write, carrying the
	// positions of this call.
	sub := a.broker.Subscribe()
	defer sub.Close()

	if err := a.service.Write(ctx, requests); err != nil {
		return out.Fail("write failed", err)
	}

	msg, ok := sub.TryNext()
	if !ok || len(msg.Positions) == 0 {
		return WrapExitError(ExitCommandError, "write committed without notification", nil)
	}
	return out.Success(WriteResult{
		Requests:      len(msg.Positions),
		FirstPosition: msg.Positions[0].Position,
		LastPosition:  msg.Positions[len(msg.Positions)-1].Position,
	})
}
