package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docbridge/internal/queryir"
)

// readStatement decodes the command named by the positional argument: a
// command file, or "-" for stdin. A non-empty inline document takes its
// place when given with -e.
func readStatement(cmd *cobra.Command, args []string, inline string) (queryir.Statement, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case inline != "":
		if len(args) > 0 {
			return nil, NewExitError(ExitCommandError, "give a command file or -e, not both")
		}
		data = []byte(inline)
	case len(args) == 0:
		return nil, NewExitError(ExitCommandError, "a command file, '-' or -e is required")
	case args[0] == "-":
		data, err = io.ReadAll(cmd.InOrStdin())
	default:
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: failed to read command", ErrCodeLoadFailed), err)
	}

	stmt, err := queryir.Decode(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: invalid command", ErrCodeLoadFailed), err)
	}
	return stmt, nil
}

// isWrite reports whether a statement modifies the store.
func isWrite(stmt queryir.Statement) bool {
	_, ok := stmt.(*queryir.Select)
	return !ok
}
