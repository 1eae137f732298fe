package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplainSelect(t *testing.T) {
	env := newTestEnv(t, "text")
	path := env.writeCommand(t, "uk.yaml", selectUK)

	out, err := env.run(NewExplainCommand, path)
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"collection: Customers",
		`{"$match":{"Country":"UK"}}`,
		`{"$project":{"_m0":"$_id","_m1":"$City"}}`,
		"",
	}, "\n"), out)
	assert.Equal(t, 0, env.opened, "explaining a SELECT never connects the store")
}

func TestExplainSelectTree(t *testing.T) {
	env := newTestEnv(t, "text")

	out, err := env.run(NewExplainCommand, "--tree", "-e", selectUK)
	require.NoError(t, err)
	assert.Contains(t, out, "aggregate Customers")
	assert.Contains(t, out, "$match")
	assert.Contains(t, out, "_m1 AS City")
}

func TestExplainWrite(t *testing.T) {
	env := newTestEnv(t, "json")
	path := env.writeCommand(t, "update.yaml", updateCategory)

	out, err := env.run(NewExplainCommand, path)
	require.NoError(t, err)

	var result ExplainResult
	decodeData(t, out, &result)
	assert.Equal(t, "UPDATE", result.Statement)
	assert.Equal(t, "Categories", result.Table)
	require.Len(t, result.Ops, 1)
	assert.Contains(t, result.Ops[0], `"collection":"Categories"`)
	assert.Len(t, result.FanOut, 5)

	assert.Equal(t, 1, env.opened, "explaining a write reads the store for copies")
	assert.Empty(t, env.store.Applied(), "explain writes nothing")
}

func TestExplainTranslationError(t *testing.T) {
	env := newTestEnv(t, "json")
	path := env.writeCommand(t, "join.yaml", leftJoin)

	out, err := env.run(NewExplainCommand, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeData(t, out, new(any))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNSUPPORTED_JOIN", resp.Error.Code)
}

func TestExplainInputErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no input", nil, "is required"},
		{"file and inline", []string{"q.yaml", "-e", selectUK}, "not both"},
		{"missing file", []string{"/nonexistent/q.yaml"}, "failed to read command"},
		{"invalid command", []string{"-e", "frobnicate: {}"}, "invalid command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "text")
			_, err := env.run(NewExplainCommand, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
