package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/store"
)

// PositionResult is the output of the position command.
type PositionResult struct {
	MigrationIndex int64       `json:"migration_index"`
	Position       int64       `json:"position,omitempty"`
	Timestamp      *time.Time  `json:"timestamp,omitempty"`
	UserID         int64       `json:"user_id,omitempty"`
	Information    ir.Value    `json:"information,omitempty"`
	Events         []ir.Object `json:"events,omitempty"`
}

func (r PositionResult) String() string {
	if r.Position == 0 {
		return fmt.Sprintf("Migration index: %d (empty datastore)", r.MigrationIndex)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Migration index: %d\n", r.MigrationIndex)
	fmt.Fprintf(&b, "Position %d at %s by user %d\n", r.Position, r.Timestamp.Format(time.RFC3339), r.UserID)
	for _, e := range r.Events {
		data, _ := ir.MarshalCanonical(e)
		fmt.Fprintf(&b, "  %s\n", data)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewPositionCommand creates the position command.
func NewPositionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "position [position]",
		Short: "Show the migration index and a position",
		Long: `Show the current migration index and the record and events of a
position. Without an argument the last position is shown.

Examples:
  datastore-writer position
  datastore-writer position 42 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPosition(cmd.Context(), rootOpts, args, cmd)
		},
	}
}

func runPosition(ctx context.Context, opts *RootOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newOutputFormatter(opts, cmd)

	a, err := openApp(ctx, opts)
	if err != nil {
		return out.Fail("failed to open datastore", err)
	}
	defer a.Close()

	index, err := a.store.CurrentMigrationIndex(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read migration index", err)
	}
	result := PositionResult{MigrationIndex: index}

	position := index
	if len(args) == 1 {
		position, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil || position <= 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid position %q", args[0]))
		}
	}
	if position == 0 {
		return out.Success(result)
	}

	rec, err := a.store.ReadPosition(ctx, position)
	if store.IsNotFound(err) {
		return out.Fail(fmt.Sprintf("position %d does not exist", position), WrapExitError(ExitFailure, "position not found", err))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read position", err)
	}
	events, err := a.store.ReadEvents(ctx, position)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result.Position = rec.Position
	result.Timestamp = &rec.Timestamp
	result.UserID = rec.UserID
	result.Information = rec.Information
	for _, e := range events {
		result.Events = append(result.Events, ir.ToObject(e))
	}
	return out.Success(result)
}
