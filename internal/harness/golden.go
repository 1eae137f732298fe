package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders what a golden file records for a result: the explain
// text, or the error code of a command that failed to compile.
func Snapshot(result *Result) []byte {
	if result.Code != "" {
		return []byte("error: " + result.Code + "\n")
	}
	return []byte(result.Explain)
}

// RunWithGolden executes a scenario and compares its explain text against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario could not be set up. Test failure (via
// goldie) occurs if the explain text doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(result))
}
