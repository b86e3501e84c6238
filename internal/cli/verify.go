package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// VerifyResult is the output of the verify command.
type VerifyResult struct {
	LastPosition int64     `json:"last_position"`
	Events       int       `json:"events"`
	Models       int       `json:"models"`
	Consistent   bool      `json:"consistent"`
	Mismatched   []ir.FQID `json:"mismatched,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay the event log and compare it with the stored models",
		Long: `Replay every event in position order and compare the resulting models
with the models table.

Exit codes:
  0 - Models match the event log
  1 - Mismatch detected
  2 - Command error (database unavailable, etc.)

Examples:
  datastore-writer verify
  datastore-writer verify --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runVerify(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	out := newOutputFormatter(opts, cmd)

	a, err := openApp(ctx, opts)
	if err != nil {
		return out.Fail("failed to open datastore", err)
	}
	defer a.Close()

	state, err := a.store.Replay(ctx)
	if err != nil {
		return out.Fail("failed to replay event log", err)
	}
	result := VerifyResult{
		LastPosition: state.LastPosition,
		Events:       state.EventCount,
		Models:       len(state.Models),
		Consistent:   state.IsConsistent(),
		Mismatched:   state.Mismatched,
	}

	if opts.Format == "json" {
		if err := outputVerifyJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputVerifyText(cmd, result)
	}

	if !result.Consistent {
		return NewExitError(ExitFailure, "models do not match the event log")
	}
	return nil
}

func outputVerifyJSON(cmd *cobra.Command, result VerifyResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.Consistent {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeInconsistent,
			Message: "models do not match the event log",
			Details: result.Mismatched,
		}
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(response)
}

func outputVerifyText(cmd *cobra.Command, result VerifyResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Replayed %d events up to position %d (%d models)\n", result.Events, result.LastPosition, result.Models)
	if result.Consistent {
		fmt.Fprintln(w, "Models match the event log.")
		return
	}
	fmt.Fprintf(w, "%d models differ from the event log:\n", len(result.Mismatched))
	for _, fqid := range result.Mismatched {
		fmt.Fprintf(w, "  %s\n", fqid)
	}
}
