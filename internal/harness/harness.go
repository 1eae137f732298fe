package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/docbridge/internal/compiler"
	"github.com/roach88/docbridge/internal/engine"
	"github.com/roach88/docbridge/internal/querydoc"
	"github.com/roach88/docbridge/internal/schema"
	"github.com/roach88/docbridge/internal/store"
	"github.com/roach88/docbridge/internal/testutil"
)

// schemas caches models across scenarios that share a schema directory.
var schemas = schema.NewCache()

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store and journal.
//
// Execution flow:
//  1. Load the catalog and seed the store
//  2. Compile the command, checking errors and the plan
//  3. Compile the equivalent command, if any, and compare plans
//  4. Execute the command when rows or an affected count are expected
//
// The returned error reports a scenario that could not be set up. Failed
// expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cat, err := loadCatalog(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	mem := testutil.NewMemStore()
	if scenario.Fixture == Northwind {
		mem = testutil.NewNorthwindStore()
	}
	for coll, docs := range scenario.seed {
		mem.Seed(coll, docs...)
	}

	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer journal.Close()

	eng := engine.New(querydoc.New(cat), mem,
		engine.WithJournal(journal),
		engine.WithBatchIDs(engine.NewFixedGenerator("scenario-"+scenario.Name)),
	)

	result := NewResult()
	plan, err := eng.Plan(ctx, scenario.stmt)
	if err != nil {
		result.Code = engine.CodeOf(err)
		if msg := checkError(scenario.Expect, err); msg != "" {
			result.AddError(msg)
		}
		return result, nil
	}
	result.Explain = plan.Explain()
	if scenario.Expect.Error != "" {
		result.AddError(fmt.Sprintf("expected error %s, command compiled", scenario.Expect.Error))
		return result, nil
	}

	var equiv *engine.Plan
	if scenario.equiv != nil {
		equiv, err = eng.Plan(ctx, scenario.equiv)
		if err != nil {
			result.AddError(fmt.Sprintf("equivalent command failed to compile: %v", err))
		}
	}

	if scenario.Expect.executes() {
		res, err := eng.Run(ctx, scenario.stmt)
		if err != nil {
			result.AddError(fmt.Sprintf("execute: %v", err))
		} else {
			result.Affected = res.Affected
			result.FanOut = res.FanOut
			if scenario.Expect.Rows != nil {
				result.Rows = formatRows(res.Rows)
			}
		}
	}

	for _, msg := range EvaluateExpectations(result, plan, equiv, &scenario.Expect) {
		result.AddError(msg)
	}

	slog.Debug("scenario finished", "scenario", scenario.Name, "pass", result.Pass, "errors", len(result.Errors))
	return result, nil
}

// loadCatalog returns the built-in Northwind model or compiles a schema
// directory.
func loadCatalog(dir string) (*schema.Model, error) {
	if dir == Northwind {
		return testutil.Northwind(), nil
	}
	loaded, err := compiler.LoadSchemaDir(dir, schemas)
	if err != nil {
		return nil, err
	}
	return loaded.Model, nil
}

// checkError compares a compile error against the expected code and
// construct, returning a failure message or "".
func checkError(expect Expect, err error) string {
	code := engine.CodeOf(err)
	if expect.Error == "" {
		return fmt.Sprintf("unexpected error: %v", err)
	}
	if code != expect.Error {
		return (&AssertionError{
			Type:     "error",
			Expected: expect.Error,
			Actual:   fmt.Sprintf("%s (%v)", orNone(code), err),
		}).Error()
	}
	if expect.Construct != "" {
		var te *querydoc.TranslationError
		construct := ""
		if errors.As(err, &te) {
			construct = te.Construct
		}
		if construct != expect.Construct {
			return (&AssertionError{
				Type:     "construct",
				Expected: expect.Construct,
				Actual:   orNone(construct),
			}).Error()
		}
	}
	return ""
}

func formatRows(rows [][]any) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = engine.FormatValue(v)
		}
	}
	return out
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
