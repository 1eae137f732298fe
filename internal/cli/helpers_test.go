package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docbridge/internal/config"
	"github.com/roach88/docbridge/internal/engine"
	"github.com/roach88/docbridge/internal/testutil"
)

// testEnv is a Northwind schema, a seeded in-memory store and a journal in
// a temp dir, wired into one set of root options.
type testEnv struct {
	opts    *RootOptions
	store   *testutil.MemStore
	journal string
	dir     string
	opened  int
}

func newTestEnv(t *testing.T, format string) *testEnv {
	t.Helper()

	schemaDir, err := filepath.Abs(filepath.Join("testdata", "northwind"))
	require.NoError(t, err)

	dir := t.TempDir()
	env := &testEnv{
		store:   testutil.NewNorthwindStore(),
		journal: filepath.Join(dir, "journal.db"),
		dir:     dir,
	}

	cfgPath := filepath.Join(dir, "docbridge.yaml")
	cfg := fmt.Sprintf("schema:\n  dir: %s\njournal:\n  path: %s\nlog:\n  level: error\n", schemaDir, env.journal)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	env.opts = &RootOptions{
		Format:     format,
		ConfigPath: cfgPath,
		openStore: func(context.Context, config.MongoConfig) (engine.Store, func(context.Context) error, error) {
			env.opened++
			return env.store, func(context.Context) error { return nil }, nil
		},
	}
	return env
}

// run executes one subcommand and returns its stdout.
func (e *testEnv) run(newCmd func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := newCmd(e.opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeCommand writes a command document to the env's temp dir.
func (e *testEnv) writeCommand(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// decodeData decodes the data field of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
	return resp
}

const (
	selectUK = `
select:
  items: [{expr: {col: CustomerID}}, {expr: {col: City}}]
  from: {table: Customers}
  where: {eq: [{col: Country}, {lit: UK}]}
`
	updateCategory = `
update:
  table: Categories
  set: [{column: CategoryName, value: {lit: Drinks}}]
  where: {eq: [{col: CategoryID}, {lit: 1}]}
`
	leftJoin = `
select:
  items: [{expr: {col: d.UnitPrice}}]
  from:
    join:
      kind: left
      left: {table: Orders, alias: o}
      right: {table: OrderDetails, alias: d}
      on:
        and:
          - {eq: [{col: o.OrderID}, {col: d.OrderID}]}
          - {gt: [{col: d.Quantity}, {lit: 5}]}
`
)
