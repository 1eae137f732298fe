package querydoc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/testutil"
)

func newNorthwindCompiler() *Compiler {
	return New(testutil.Northwind())
}

func decodeStmt(t *testing.T, doc string) queryir.Statement {
	t.Helper()
	stmt, err := queryir.Decode([]byte(doc))
	require.NoError(t, err)
	return stmt
}

func decodeSelect(t *testing.T, doc string) *queryir.Select {
	t.Helper()
	sel, ok := decodeStmt(t, doc).(*queryir.Select)
	require.True(t, ok, "command is not a select")
	return sel
}

func decodeExpr(t *testing.T, doc string) queryir.Expr {
	t.Helper()
	var root yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(doc), &root))
	require.NotEmpty(t, root.Content)
	e, err := queryir.DecodeExpr(root.Content[0])
	require.NoError(t, err)
	return e
}

// compileSelect compiles a YAML select command against Northwind.
func compileSelect(t *testing.T, doc string) *docir.Pipeline {
	t.Helper()
	p, err := newNorthwindCompiler().CompileSelect(decodeSelect(t, doc))
	require.NoError(t, err)
	return p
}

func compileSelectErr(t *testing.T, doc string) error {
	t.Helper()
	_, err := newNorthwindCompiler().CompileSelect(decodeSelect(t, doc))
	require.Error(t, err)
	return err
}

// compileMutation compiles a YAML write command against a seeded store.
func compileMutation(t *testing.T, store *testutil.MemStore, doc string) (*docir.Mutation, error) {
	t.Helper()
	var f Fetcher
	if store != nil {
		f = store
	}
	return newNorthwindCompiler().CompileMutation(context.Background(), decodeStmt(t, doc), f)
}

// stageJSON renders each stage on one line.
func stageJSON(p *docir.Pipeline) []string {
	out := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = docir.CompactJSON(s.BSON())
	}
	return out
}

func opJSON(ops []docir.Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = docir.CompactJSON(op.BSON())
	}
	return out
}

func filterJSON(e docir.Expr) string {
	return docir.CompactJSON(docir.Filter(e))
}

func aggJSON(e docir.Expr) string {
	return docir.ValueJSON(docir.Agg(e))
}

func run(t *testing.T, store *testutil.MemStore, p *docir.Pipeline) []bson.D {
	t.Helper()
	docs, err := store.Aggregate(context.Background(), p.Collection, p.BSON())
	require.NoError(t, err)
	return docs
}
