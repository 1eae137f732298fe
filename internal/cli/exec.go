package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/docbridge/internal/engine"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Inline string
}

// ExecResult is the output of a query or write.
type ExecResult struct {
	Columns  []string   `json:"columns,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	Affected int64      `json:"affected"`
	BatchID  string     `json:"batch_id,omitempty"`
	FanOut   int        `json:"fanout"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec [command-file|-]",
		Short: "Execute a command against the document store",
		Long: `Compile and execute a SELECT, INSERT, UPDATE or DELETE.

Queries print their rows. Writes print the number of documents the
primary ops changed, the journal batch id, and how many embedded copies
were refreshed. When some copy refreshes fail the primary write stays
applied; the failed refreshes stay pending in the journal and
'docbridge replay' re-applies them.

Exit codes:
  0 - Success
  1 - Command rejected, store failure, or partial fan-out
  2 - Command error (invalid file, unreachable store, bad schema)

Examples:
  docbridge exec query.yaml
  docbridge exec --format json update.yaml
  cat insert.yaml | docbridge exec -`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Inline, "expr", "e", "", "inline command document")

	return cmd
}

func runExec(opts *ExecOptions, args []string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	stmt, err := readStatement(cmd, args, opts.Inline)
	if err != nil {
		return failCommand(formatter, err)
	}

	s, err := openSession(ctx, opts.RootOptions, sessionNeeds{store: true, journal: isWrite(stmt)})
	if err != nil {
		return failCommand(formatter, err)
	}
	defer s.Close(ctx)

	res, err := s.engine.Run(ctx, stmt)
	if err != nil {
		if res != nil && formatter.Format != "json" {
			writeResult(formatter.Writer, toExecResult(res), true)
		}
		return failCommand(formatter, err)
	}

	out := toExecResult(res)
	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	writeResult(formatter.Writer, out, isWrite(stmt))
	return nil
}

func toExecResult(res *engine.Result) *ExecResult {
	out := &ExecResult{
		Columns:  res.Columns,
		Affected: res.Affected,
		BatchID:  res.BatchID,
		FanOut:   res.FanOut,
	}
	if res.Columns != nil {
		out.Rows = make([][]string, len(res.Rows))
		for i, row := range res.Rows {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = engine.FormatValue(v)
			}
			out.Rows[i] = cells
		}
	}
	return out
}

func writeResult(w io.Writer, out *ExecResult, write bool) {
	if !write {
		WriteTable(w, out.Columns, out.Rows)
		return
	}
	fmt.Fprintf(w, "%d document(s) affected, %d cop(ies) refreshed (batch %s)\n", out.Affected, out.FanOut, out.BatchID)
}
