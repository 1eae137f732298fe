package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, content string) *Scenario {
	t.Helper()
	s, err := LoadScenario(writeScenario(t, t.TempDir(), "s.yaml", content))
	require.NoError(t, err)
	return s
}

func TestRun_TestdataScenarios(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_ExecutesWrites(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "update_cascade.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	assert.Equal(t, int64(1), result.Affected)
	assert.Equal(t, 5, result.FanOut)
	assert.Contains(t, result.Explain, "UPDATE Categories\n")
}

func TestRun_ScenariosAreIsolated(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "update_cascade.yaml"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		result, err := Run(context.Background(), s)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d: %s", i, strings.Join(result.Errors, "\n"))
	}
}

func TestRun_ReportsMismatches(t *testing.T) {
	s := loadTestScenario(t, `
name: wrong
schema: northwind
fixture: northwind
command:
  select:
    items: [{expr: {col: City}}]
    from: {table: Customers}
    where: {eq: [{col: Country}, {lit: UK}]}
expect:
  collection: Clients
  stages:
    - '{"$match":{"Country":"UK"}}'
  rows: [[Paris]]
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Assertion failed: collection")
	assert.Contains(t, result.Errors[1], "Assertion failed: stages")
	assert.Contains(t, result.Errors[1], "Expected: 1 stages")
	assert.Contains(t, result.Errors[2], "Assertion failed: rows[0]")
	assert.Contains(t, result.Errors[2], "Actual: [London]")
	assert.Equal(t, [][]string{{"London"}}, result.Rows)
}

func TestRun_ErrorExpectations(t *testing.T) {
	tests := []struct {
		name    string
		expect  string
		pass    bool
		message string
	}{
		{name: "matching code", expect: "error: METADATA_RESOLUTION", pass: true},
		{name: "wrong code", expect: "error: UNSUPPORTED_JOIN", message: "Actual: METADATA_RESOLUTION"},
		{name: "matching construct", expect: "error: METADATA_RESOLUTION\n  construct: Nope", pass: true},
		{name: "wrong construct", expect: "error: METADATA_RESOLUTION\n  construct: Other", message: "Assertion failed: construct"},
		{name: "unexpected", expect: "collection: Customers", message: "unexpected error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadTestScenario(t, `
name: errs
schema: northwind
command:
  select:
    items: [{expr: {col: Nope}}]
    from: {table: Customers}
expect:
  `+tt.expect+`
`)
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, "METADATA_RESOLUTION", result.Code)
			assert.Equal(t, tt.pass, result.Pass, strings.Join(result.Errors, "\n"))
			if tt.message != "" {
				require.Len(t, result.Errors, 1)
				assert.Contains(t, result.Errors[0], tt.message)
			}
		})
	}
}

func TestRun_ExpectedErrorButCompiled(t *testing.T) {
	s := loadTestScenario(t, `
name: compiles
schema: northwind
command:
  select:
    items: [{expr: {col: City}}]
    from: {table: Customers}
expect:
  error: UNSUPPORTED_JOIN
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"expected error UNSUPPORTED_JOIN, command compiled"}, result.Errors)
}

func TestRun_EquivalentMismatch(t *testing.T) {
	s := loadTestScenario(t, `
name: not_equivalent
schema: northwind
command:
  select:
    items: [{expr: {col: City}}]
    from: {table: Customers}
    where: {eq: [{col: Country}, {lit: UK}]}
expect:
  equivalent:
    select:
      items: [{expr: {col: City}}]
      from: {table: Customers}
      where: {eq: [{col: Country}, {lit: USA}]}
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: equivalent")
}

func TestRun_WriteExpectationsOnSelect(t *testing.T) {
	s := loadTestScenario(t, `
name: kind_mismatch
schema: northwind
command:
  select:
    items: [{expr: {col: City}}]
    from: {table: Customers}
expect:
  ops: []
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: mutation")
}

func TestRun_SchemaLoadFailure(t *testing.T) {
	s := loadTestScenario(t, `
name: no_schema
schema: missing-dir
command:
  select:
    items: [{expr: {col: City}}]
    from: {table: Customers}
expect:
  collection: Customers
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}
