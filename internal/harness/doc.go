// Package harness runs translation scenarios.
//
// A scenario pairs a schema and a command with what the translator must
// produce for it: the target collection and pipeline stages, the write ops,
// an error code, or the rows the command returns against seeded documents.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario checks"
//	schema: northwind            # or a directory of .cue files
//	fixture: northwind           # optional: seed the Northwind documents
//	documents:                   # optional: relaxed Extended JSON seeds
//	  orders:
//	    - '{"_id": 1, "ship": {"city": "Lyon"}}'
//	command:
//	  select:
//	    items: [{expr: {col: ShipCity}}]
//	    from: {table: Orders}
//	expect:
//	  collection: orders
//	  stages:
//	    - '{"$project":{"_m0":"$ship.city"}}'
//	  rows:
//	    - [Lyon]
//
// The expect block accepts:
//   - error, construct: the translation error code and offending construct
//   - collection, stages: a compiled SELECT
//   - ops, fanout: a compiled write, one compact JSON op per line
//   - equivalent: a second command that must compile to the same plan
//   - rows, affected: results of executing the command
//
// Stages and ops are compared as compact relaxed Extended JSON, exactly as
// explain prints them.
//
// # Running
//
// Each scenario runs against a fresh in-memory store and an in-memory
// journal, so scenarios are independent and deterministic:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/merge_select.yaml")
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    // result.Errors lists each mismatch
//	}
//
// # Golden Files
//
// RunWithGolden snapshots a scenario's explain text under testdata/golden.
// Regenerate snapshots with:
//
//	go test ./internal/harness -update
package harness
