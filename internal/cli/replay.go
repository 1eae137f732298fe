package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docbridge/internal/engine"
	"github.com/roach88/docbridge/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
	DryRun  bool
}

// ReplayOp is one pending op in the replay report.
type ReplayOp struct {
	Ref        string `json:"ref"`
	Phase      string `json:"phase"`
	Kind       string `json:"kind"`
	Collection string `json:"collection"`
	Idempotent bool   `json:"idempotent"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
}

// ReplayResult holds the outcome of a replay pass.
type ReplayResult struct {
	DryRun  bool       `json:"dry_run"`
	Batches int        `json:"batches"`
	Pending []ReplayOp `json:"pending,omitempty"`
	Applied int        `json:"applied"`
	Skipped []ReplayOp `json:"skipped,omitempty"`
	Failed  []ReplayOp `json:"failed,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-apply pending write ops from the journal",
		Long: `Re-apply the journaled ops that never reached the store.

Pending updates, deletes and pulls are re-applied in journal order. Inserts,
pushes and pipeline updates are not safe to apply twice; they are reported
as skipped and left pending.

With --dry-run the pending ops are listed and nothing is applied.

Exit codes:
  0 - Nothing left to replay
  1 - Some ops failed again or were skipped
  2 - Command error (journal not configured, unreachable store)

Examples:
  docbridge replay
  docbridge replay --journal ./docbridge.db --dry-run
  docbridge replay --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the journal database (overrides journal.path)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list pending ops without applying them")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := opts.Config()
	if err != nil {
		return failCommand(formatter, WrapExitError(ExitCommandError, "failed to load configuration", err))
	}
	if opts.Journal != "" {
		cfg.Journal.Path = opts.Journal
	}
	if cfg.Journal.Path == "" {
		return failCommand(formatter, NewExitError(ExitCommandError, "journal.path is not set"))
	}

	if opts.DryRun {
		return dryRun(ctx, formatter, cfg.Journal.Path)
	}

	s, err := openSession(ctx, opts.RootOptions, sessionNeeds{store: true, journal: true})
	if err != nil {
		return failCommand(formatter, err)
	}
	defer s.Close(ctx)

	stats, err := s.journal.Stats(ctx)
	if err != nil {
		return failCommand(formatter, WrapExitError(ExitCommandError, "failed to read journal", err))
	}
	report, err := s.engine.Replay(ctx)
	if err != nil {
		return failCommand(formatter, WrapExitError(ExitCommandError, "replay failed", err))
	}
	return outputReplay(formatter, replayResult(stats, report))
}

func dryRun(ctx context.Context, formatter *OutputFormatter, path string) error {
	j, err := store.Open(path)
	if err != nil {
		return failCommand(formatter, WrapExitError(ExitCommandError, fmt.Sprintf("%s: failed to open journal %s", ErrCodeConnect, path), err))
	}
	defer j.Close()

	stats, err := j.Stats(ctx)
	if err != nil {
		return failCommand(formatter, WrapExitError(ExitCommandError, "failed to read journal", err))
	}
	pending, err := j.Pending(ctx)
	if err != nil {
		return failCommand(formatter, WrapExitError(ExitCommandError, "failed to read journal", err))
	}

	result := ReplayResult{DryRun: true, Batches: stats.Batches, Pending: replayOps(pending)}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%d pending op(s) in %d batch(es)\n", len(result.Pending), result.Batches)
	if len(result.Pending) > 0 {
		fmt.Fprintln(w)
		writeOps(formatter, result.Pending)
	}
	return nil
}

func replayResult(stats store.Stats, report *engine.ReplayReport) ReplayResult {
	return ReplayResult{
		Batches: stats.Batches,
		Applied: report.Applied,
		Skipped: replayOps(report.Skipped),
		Failed:  replayOps(report.Failed),
	}
}

func replayOps(entries []store.Entry) []ReplayOp {
	if len(entries) == 0 {
		return nil
	}
	ops := make([]ReplayOp, len(entries))
	for i, e := range entries {
		ops[i] = ReplayOp{
			Ref:        fmt.Sprintf("%s/%d", e.BatchID, e.Position),
			Phase:      string(e.Phase),
			Kind:       string(e.Op.Kind()),
			Collection: e.Op.Target(),
			Idempotent: e.Idempotent,
			Attempts:   e.Attempts,
			LastError:  e.LastError,
		}
	}
	return ops
}

func writeOps(formatter *OutputFormatter, ops []ReplayOp) {
	rows := make([][]string, len(ops))
	for i, op := range ops {
		rows[i] = []string{op.Ref, op.Phase, op.Kind, op.Collection, fmt.Sprint(op.Idempotent), fmt.Sprint(op.Attempts)}
	}
	WriteTable(formatter.Writer, []string{"OP", "PHASE", "KIND", "COLLECTION", "IDEMPOTENT", "ATTEMPTS"}, rows)
	if formatter.Verbose {
		for _, op := range ops {
			if op.LastError != "" {
				fmt.Fprintf(formatter.Writer, "%s: %s\n", op.Ref, op.LastError)
			}
		}
	}
}

// outputReplay prints the report. Ops left pending make the command fail.
func outputReplay(formatter *OutputFormatter, result ReplayResult) error {
	clean := len(result.Skipped) == 0 && len(result.Failed) == 0
	msg := fmt.Sprintf("%d op(s) skipped, %d op(s) failed", len(result.Skipped), len(result.Failed))

	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if !clean {
			response.Status = "error"
			response.Error = &CLIError{Code: "E_REPLAY", Message: msg}
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		if !clean {
			return NewExitError(ExitFailure, msg)
		}
		return nil
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Replay: %d op(s) applied\n", result.Applied)
	if len(result.Skipped) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Skipped (not idempotent, left pending):")
		writeOps(formatter, result.Skipped)
	}
	if len(result.Failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed again:")
		writeOps(formatter, result.Failed)
	}

	if clean {
		fmt.Fprintln(w, "✓ Journal has no pending ops")
		return nil
	}
	fmt.Fprintln(w, "✗ Pending ops remain")
	return NewExitError(ExitFailure, msg)
}
