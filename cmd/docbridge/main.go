// Command docbridge translates relational commands into document-store
// aggregation pipelines and write operations.
package main

import (
	"os"

	"github.com/roach88/docbridge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
