package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/engine"
	"github.com/roach88/docbridge/internal/queryir"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Tree   bool
	Inline string
}

// ExplainResult is the JSON form of a compiled plan.
type ExplainResult struct {
	Collection string   `json:"collection,omitempty"`
	Stages     []string `json:"stages,omitempty"`
	Statement  string   `json:"statement,omitempty"`
	Table      string   `json:"table,omitempty"`
	Ops        []string `json:"ops,omitempty"`
	FanOut     []string `json:"fanout,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain [command-file|-]",
		Short: "Show the pipeline or write ops a command compiles to",
		Long: `Compile a command without executing it.

A SELECT prints its target collection and one aggregation stage per line.
Writes print their primary ops and fan-out refreshes. Writes that copy
embedded rows read the store to find them, so explaining a write needs a
reachable store; explaining a SELECT does not.

Examples:
  docbridge explain query.yaml
  docbridge explain --tree query.yaml
  docbridge explain -e '{select: {items: [{expr: {col: City}}], from: {table: Customers}}}'`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Tree, "tree", false, "render the plan as a tree")
	cmd.Flags().StringVarP(&opts.Inline, "expr", "e", "", "inline command document")

	return cmd
}

func runExplain(opts *ExplainOptions, args []string, cmd *cobra.Command) error {
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

	s, err := openSession(ctx, opts.RootOptions, sessionNeeds{store: isWrite(stmt)})
	if err != nil {
		return failCommand(formatter, err)
	}
	defer s.Close(ctx)

	plan, err := compilePlan(ctx, s, stmt)
	if err != nil {
		return failCommand(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(explainResult(plan))
	}
	if opts.Tree {
		fmt.Fprintln(formatter.Writer, plan.ExplainTree())
		return nil
	}
	fmt.Fprint(formatter.Writer, plan.Explain())
	return nil
}

// compilePlan compiles a SELECT without the engine, so no store is needed.
func compilePlan(ctx context.Context, s *session, stmt queryir.Statement) (*engine.Plan, error) {
	if sel, ok := stmt.(*queryir.Select); ok && s.engine == nil {
		p, err := s.compiler.CompileSelect(sel)
		if err != nil {
			return nil, err
		}
		return &engine.Plan{Pipeline: p}, nil
	}
	return s.engine.Plan(ctx, stmt)
}

func explainResult(plan *engine.Plan) *ExplainResult {
	if p := plan.Pipeline; p != nil {
		r := &ExplainResult{Collection: p.Collection}
		for _, st := range p.Stages {
			r.Stages = append(r.Stages, docir.CompactJSON(st.BSON()))
		}
		return r
	}
	m := plan.Mutation
	r := &ExplainResult{Statement: m.Statement, Table: m.Table}
	for _, op := range m.Ops {
		r.Ops = append(r.Ops, docir.CompactJSON(op.BSON()))
	}
	for _, op := range m.FanOut {
		r.FanOut = append(r.FanOut, docir.CompactJSON(op.BSON()))
	}
	return r
}
