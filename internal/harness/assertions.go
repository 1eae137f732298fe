package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/engine"
)

// AssertionError is returned when an expectation fails.
// It includes the compiled plan to help debug the failure.
type AssertionError struct {
	Type     string // expectation that failed
	Expected string
	Actual   string
	Explain  string // explain text of the compiled plan, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Explain != "" {
		fmt.Fprintf(&buf, "\nPlan:\n")
		for _, line := range strings.Split(strings.TrimRight(e.Explain, "\n"), "\n") {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}

	return buf.String()
}

// EvaluateExpectations checks a compiled plan and an executed result
// against expect. equiv is the plan of the equivalent command, or nil.
//
// Returns one message per failed expectation. Empty if all pass.
func EvaluateExpectations(result *Result, plan *engine.Plan, equiv *engine.Plan, expect *Expect) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if expect.Collection != "" || expect.Stages != nil {
		if plan.Pipeline == nil {
			add(&AssertionError{Type: "pipeline", Expected: "a SELECT pipeline", Actual: "a write", Explain: result.Explain})
		} else {
			if expect.Collection != "" && plan.Pipeline.Collection != expect.Collection {
				add(&AssertionError{Type: "collection", Expected: expect.Collection, Actual: plan.Pipeline.Collection, Explain: result.Explain})
			}
			if expect.Stages != nil {
				add(assertLines("stages", expect.Stages, stageLines(plan.Pipeline), result.Explain))
			}
		}
	}

	if expect.Ops != nil || expect.FanOut != nil {
		if plan.Mutation == nil {
			add(&AssertionError{Type: "mutation", Expected: "a write", Actual: "a SELECT pipeline", Explain: result.Explain})
		} else {
			if expect.Ops != nil {
				add(assertLines("ops", expect.Ops, opLines(plan.Mutation.Ops), result.Explain))
			}
			if expect.FanOut != nil {
				add(assertLines("fanout", expect.FanOut, opLines(plan.Mutation.FanOut), result.Explain))
			}
		}
	}

	if equiv != nil && equiv.Explain() != plan.Explain() {
		add(&AssertionError{Type: "equivalent", Expected: equiv.Explain(), Actual: plan.Explain()})
	}

	if expect.Rows != nil && result.Rows != nil {
		add(assertRows(expect.Rows, result.Rows))
	}
	if expect.Affected != nil && result.Affected != *expect.Affected {
		add(&AssertionError{
			Type:     "affected",
			Expected: fmt.Sprint(*expect.Affected),
			Actual:   fmt.Sprint(result.Affected),
			Explain:  result.Explain,
		})
	}
	return errs
}

func stageLines(p *docir.Pipeline) []string {
	lines := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		lines[i] = docir.CompactJSON(s.BSON())
	}
	return lines
}

func opLines(ops []docir.Op) []string {
	lines := make([]string, len(ops))
	for i, op := range ops {
		lines[i] = docir.CompactJSON(op.BSON())
	}
	return lines
}

// assertLines compares rendered stages or ops line by line and reports
// the first difference.
func assertLines(kind string, want, got []string, explain string) error {
	for i := 0; i < len(want) && i < len(got); i++ {
		if strings.TrimSpace(want[i]) != got[i] {
			return &AssertionError{
				Type:     fmt.Sprintf("%s[%d]", kind, i),
				Expected: strings.TrimSpace(want[i]),
				Actual:   got[i],
				Explain:  explain,
			}
		}
	}
	if len(want) != len(got) {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d %s", len(want), kind),
			Actual:   fmt.Sprintf("%d %s", len(got), kind),
			Explain:  explain,
		}
	}
	return nil
}

func assertRows(want, got [][]string) error {
	if len(want) != len(got) {
		return &AssertionError{
			Type:     "rows",
			Expected: fmt.Sprintf("%d rows %v", len(want), want),
			Actual:   fmt.Sprintf("%d rows %v", len(got), got),
		}
	}
	for i := range want {
		if !slices.Equal(want[i], got[i]) {
			return &AssertionError{
				Type:     fmt.Sprintf("rows[%d]", i),
				Expected: fmt.Sprint(want[i]),
				Actual:   fmt.Sprint(got[i]),
			}
		}
	}
	return nil
}
