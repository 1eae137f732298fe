package querydoc

import (
	"fmt"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
	"github.com/roach88/docbridge/internal/queryir"
)

// groupContext resolves expressions after a $group stage, where only the
// group keys (under _id) and the accumulators exist.
type groupContext struct {
	pre *exprCompiler
	// keys maps a pre-group expression to the path of its group key.
	keys map[string]string
	// aggs maps an aggregate to the expression reading its result.
	aggs map[string]docir.Expr
	// ungrouped is the message for a column that is not a group key.
	ungrouped string
}

func newGroupContext(pre *exprCompiler) *groupContext {
	return &groupContext{
		pre:       pre,
		keys:      map[string]string{},
		aggs:      map[string]docir.Expr{},
		ungrouped: "column must appear in GROUP BY or inside an aggregate",
	}
}

// lookup reports whether e is a group key or an accumulated aggregate.
// It returns false for expressions that must be rebuilt from their parts.
func (g *groupContext) lookup(e queryir.Expr) (docir.Expr, bool, error) {
	if a, ok := e.(*queryir.Aggregate); ok {
		k, err := g.aggKey(a)
		if err != nil {
			return nil, false, err
		}
		if d, ok := g.aggs[k]; ok {
			return d, true, nil
		}
		return nil, false, unsupportedExpr(queryir.Format(a), "aggregate is not computed by the group stage")
	}
	if queryir.ContainsAggregate(e) {
		return nil, false, nil
	}
	if _, ok := e.(*queryir.Literal); ok {
		return nil, false, nil
	}
	d, err := g.pre.compile(e)
	if err != nil {
		// Let the caller report the failure on the sub-expression.
		return nil, false, nil
	}
	if p, ok := g.keys[exprKey(d)]; ok {
		return &docir.Field{Path: p}, true, nil
	}
	if cr, ok := e.(*queryir.ColumnRef); ok {
		return nil, false, unsupportedExpr(queryir.Format(cr), "%s", g.ungrouped)
	}
	return nil, false, nil
}

func (g *groupContext) aggKey(a *queryir.Aggregate) (string, error) {
	arg := "*"
	if a.Arg != nil {
		d, err := g.pre.compile(a.Arg)
		if err != nil {
			return "", err
		}
		arg = exprKey(d)
	}
	return fmt.Sprintf("%s|%t|%s", a.Func, a.Distinct, arg), nil
}

var distinctFinish = map[queryir.AggFunc]string{
	queryir.Count: "$size",
	queryir.Sum:   "$sum",
	queryir.Avg:   "$avg",
	queryir.Min:   "$min",
	queryir.Max:   "$max",
}

var accumulatorOps = map[queryir.AggFunc]string{
	queryir.Sum: "$sum",
	queryir.Avg: "$avg",
	queryir.Min: "$min",
	queryir.Max: "$max",
}

// accumulator builds the $group accumulator for an aggregate and the
// expression that reads its final value afterwards.
//
// DISTINCT aggregates collect a set and finish over it in the projection.
func (g *groupContext) accumulator(name string, a *queryir.Aggregate) (docir.Accumulator, docir.Expr, error) {
	result := &docir.Field{Path: name}
	if a.Arg == nil {
		return docir.Accumulator{Name: name, Op: "$sum", Expr: &docir.Literal{Value: ir.Int(1)}}, result, nil
	}
	if err := g.checkArgType(a); err != nil {
		return docir.Accumulator{}, nil, err
	}
	arg, err := g.pre.compile(a.Arg)
	if err != nil {
		return docir.Accumulator{}, nil, err
	}
	if a.Distinct {
		finish := &docir.Call{Op: distinctFinish[a.Func], Args: []docir.Expr{result}}
		return docir.Accumulator{Name: name, Op: "$addToSet", Expr: arg}, finish, nil
	}
	if a.Func == queryir.Count {
		counted := &docir.Call{Op: "$cond", Args: []docir.Expr{
			&docir.IsNull{Expr: arg},
			&docir.Literal{Value: ir.Int(0)},
			&docir.Literal{Value: ir.Int(1)},
		}}
		return docir.Accumulator{Name: name, Op: "$sum", Expr: counted}, result, nil
	}
	return docir.Accumulator{Name: name, Op: accumulatorOps[a.Func], Expr: arg}, result, nil
}

// checkArgType rejects SUM and AVG over non-numeric columns and MIN and MAX
// over columns without an ordering.
func (g *groupContext) checkArgType(a *queryir.Aggregate) error {
	cr, ok := a.Arg.(*queryir.ColumnRef)
	if !ok {
		return nil
	}
	b, col, err := g.pre.scope.resolve(cr)
	if err != nil {
		return err
	}
	switch a.Func {
	case queryir.Sum, queryir.Avg:
		if !col.Type.Numeric() {
			return unsupportedExpr(qualified(b.table, col.Name), "%s requires a numeric column, got %s", a.Func, col.Type)
		}
	case queryir.Min, queryir.Max:
		if !col.Type.Comparable() {
			return unsupportedExpr(qualified(b.table, col.Name), "%s requires an ordered column, got %s", a.Func, col.Type)
		}
	}
	return nil
}

// isCount reports whether an output column holds a COUNT.
func isCount(e queryir.Expr) bool {
	a, ok := e.(*queryir.Aggregate)
	return ok && a.Func == queryir.Count
}
