package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/docbridge/internal/querydoc"
	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/store"
	"github.com/roach88/docbridge/internal/testutil"
)

func newTestEngine(s Store, opts ...EngineOption) *Engine {
	return New(querydoc.New(testutil.Northwind()), s, opts...)
}

func openJournal(t *testing.T) *store.Journal {
	t.Helper()
	j, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func stmt(t *testing.T, doc string) queryir.Statement {
	t.Helper()
	s, err := queryir.Decode([]byte(doc))
	require.NoError(t, err)
	return s
}

func selectStmt(t *testing.T, doc string) *queryir.Select {
	t.Helper()
	sel, ok := stmt(t, doc).(*queryir.Select)
	require.True(t, ok)
	return sel
}

const renameBeverages = `
update:
  table: Categories
  set: [{column: CategoryName, value: {lit: Drinks}}]
  where: {eq: [{col: CategoryID}, {lit: 1}]}
`
