package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/ir"
)

// NewDirectCommand creates the direct command.
func NewDirectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "direct <query> [args...]",
		Short: "Run a pass-through aggregation against a collection",
		Long: `Run a native aggregation written as "<collection>;{stage};{stage}...".

$1..$n in the query are replaced with the bound arguments. Arguments are
read as extended JSON values (42, true, null, {"$date": "..."}); anything
that is not valid JSON binds as a string. Object keys may be unquoted.

Examples:
  docbridge direct 'Customers;{$match: {Country: $1}}' UK
  docbridge direct 'Orders;{$sort: {_id: 1}};{$limit: $1}' 5`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirect(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runDirect(opts *RootOptions, args []string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	bound := make([]ir.Value, 0, len(args)-1)
	for _, a := range args[1:] {
		bound = append(bound, parseArg(a))
	}

	s, err := openSession(ctx, opts, sessionNeeds{store: true})
	if err != nil {
		return failCommand(formatter, err)
	}
	defer s.Close(ctx)

	res, err := s.engine.Direct(ctx, args[0], bound)
	if err != nil {
		return failCommand(formatter, err)
	}

	out := toExecResult(res)
	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	WriteTable(formatter.Writer, out.Columns, out.Rows)
	return nil
}

// parseArg reads one bound argument as an extended JSON value.
func parseArg(arg string) ir.Value {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(`{"v":`+arg+`}`), false, &doc); err != nil || len(doc) != 1 {
		return ir.String(arg)
	}
	v, err := ir.FromBSON(doc[0].Value)
	if err != nil {
		return ir.String(arg)
	}
	return v
}
