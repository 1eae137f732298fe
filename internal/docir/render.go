package docir

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docbridge/internal/ir"
)

// Filter renders e in query-filter form. A nil expression matches everything.
func Filter(e Expr) bson.D {
	switch x := e.(type) {
	case nil:
		return bson.D{}

	case *Compare:
		if path, v, op, ok := fieldVsLiteral(x); ok && !ir.IsNull(v) {
			switch op {
			case OpEq:
				return bson.D{{Key: path, Value: ir.ToBSON(v)}}
			case OpNe:
				return notNull(path, bson.D{{Key: path, Value: bson.D{{Key: "$ne", Value: ir.ToBSON(v)}}}})
			}
			return bson.D{{Key: path, Value: bson.D{{Key: string(op), Value: ir.ToBSON(v)}}}}
		}

	case *And:
		switch len(x.Exprs) {
		case 0:
			return bson.D{}
		case 1:
			return Filter(x.Exprs[0])
		}
		parts := make(bson.A, 0, len(x.Exprs))
		for _, sub := range x.Exprs {
			parts = append(parts, Filter(sub))
		}
		return bson.D{{Key: "$and", Value: parts}}

	case *Or:
		if len(x.Exprs) == 1 {
			return Filter(x.Exprs[0])
		}
		parts := make(bson.A, 0, len(x.Exprs))
		for _, sub := range x.Exprs {
			parts = append(parts, Filter(sub))
		}
		return bson.D{{Key: "$or", Value: parts}}

	case *Not:
		if n, ok := negate(x.Expr); ok {
			return Filter(n)
		}
		return bson.D{{Key: "$nor", Value: bson.A{Filter(x.Expr)}}}

	case *In:
		if f, ok := x.Expr.(*Field); ok {
			if x.Negated {
				return notNull(f.Path, bson.D{{Key: f.Path, Value: bson.D{{Key: "$nin", Value: literalList(x.Values)}}}})
			}
			return bson.D{{Key: f.Path, Value: bson.D{{Key: "$in", Value: literalList(x.Values)}}}}
		}

	case *Regex:
		if f, ok := x.Expr.(*Field); ok {
			re := primitive.Regex{Pattern: x.Pattern, Options: x.Options}
			if x.Negated {
				return notNull(f.Path, bson.D{{Key: f.Path, Value: bson.D{{Key: "$not", Value: re}}}})
			}
			return bson.D{{Key: f.Path, Value: re}}
		}

	case *IsNull:
		if f, ok := x.Expr.(*Field); ok {
			if x.Negated {
				return bson.D{{Key: f.Path, Value: bson.D{{Key: "$ne", Value: nil}}}}
			}
			return bson.D{{Key: f.Path, Value: nil}}
		}

	case *Literal:
		if b, ok := x.Value.(ir.Bool); ok && bool(b) {
			return bson.D{}
		}
	}

	return bson.D{{Key: "$expr", Value: Agg(e)}}
}

// notNull adds a non-null test on path to a negated condition. Query
// operators like $ne and $nin match null and missing fields, while in SQL
// a negated test of NULL is unknown.
func notNull(path string, cond bson.D) bson.D {
	return bson.D{{Key: "$and", Value: bson.A{
		cond,
		bson.D{{Key: path, Value: bson.D{{Key: "$ne", Value: nil}}}},
	}}}
}

// negate pushes a negation into e. It reports false when e has no
// negated form, such as a computed boolean.
//
// NOT of an unknown stays unknown, so a comparison against NULL is its own
// negation and NOT (a = 1 AND b = 2) becomes a <> 1 OR b <> 2.
func negate(e Expr) (Expr, bool) {
	switch x := e.(type) {
	case *Compare:
		if isNullLiteral(x.Left) || isNullLiteral(x.Right) {
			return x, true
		}
		return &Compare{Op: x.Op.Negate(), Left: x.Left, Right: x.Right}, true
	case *And:
		out, ok := negateAll(x.Exprs)
		return &Or{Exprs: out}, ok
	case *Or:
		out, ok := negateAll(x.Exprs)
		return &And{Exprs: out}, ok
	case *Not:
		return x.Expr, true
	case *In:
		return &In{Expr: x.Expr, Values: x.Values, Negated: !x.Negated}, true
	case *Regex:
		return &Regex{Expr: x.Expr, Pattern: x.Pattern, Options: x.Options, Negated: !x.Negated}, true
	case *IsNull:
		return &IsNull{Expr: x.Expr, Negated: !x.Negated}, true
	case *Literal:
		if b, ok := x.Value.(ir.Bool); ok {
			return &Literal{Value: !b}, true
		}
		if ir.IsNull(x.Value) {
			return x, true
		}
	case *Field:
		return &Compare{Op: OpEq, Left: x, Right: &Literal{Value: ir.Bool(false)}}, true
	}
	return nil, false
}

func negateAll(in []Expr) ([]Expr, bool) {
	out := make([]Expr, len(in))
	for i, e := range in {
		n, ok := negate(e)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func isNullLiteral(e Expr) bool {
	l, ok := e.(*Literal)
	return ok && ir.IsNull(l.Value)
}

// fieldVsLiteral matches field-op-literal in either operand order and
// normalizes it so the field comes first.
func fieldVsLiteral(c *Compare) (string, ir.Value, CompareOp, bool) {
	if f, ok := c.Left.(*Field); ok {
		if l, ok := c.Right.(*Literal); ok {
			return f.Path, l.Value, c.Op, true
		}
	}
	if f, ok := c.Right.(*Field); ok {
		if l, ok := c.Left.(*Literal); ok {
			return f.Path, l.Value, c.Op.Flip(), true
		}
	}
	return "", nil, "", false
}

func literalList(values []ir.Value) bson.A {
	out := make(bson.A, 0, len(values))
	for _, v := range values {
		out = append(out, ir.ToBSON(v))
	}
	return out
}

// Agg renders e in aggregation-expression form.
func Agg(e Expr) any {
	switch x := e.(type) {
	case nil:
		return nil

	case *Field:
		return "$" + x.Path

	case *Literal:
		return aggLiteral(x.Value)

	case *Compare:
		if isNullLiteral(x.Left) || isNullLiteral(x.Right) {
			return nil
		}
		cmp := bson.D{{Key: string(x.Op), Value: bson.A{Agg(x.Left), Agg(x.Right)}}}
		return unknownOnNull(cmp, x.Left, x.Right)

	case *And:
		return bson.D{{Key: "$and", Value: aggList(x.Exprs)}}

	case *Or:
		return bson.D{{Key: "$or", Value: aggList(x.Exprs)}}

	case *Not:
		if n, ok := negate(x.Expr); ok {
			return Agg(n)
		}
		return bson.D{{Key: "$not", Value: bson.A{Agg(x.Expr)}}}

	case *In:
		list := make(bson.A, 0, len(x.Values))
		for _, v := range x.Values {
			list = append(list, aggLiteral(v))
		}
		in := bson.D{{Key: "$in", Value: bson.A{Agg(x.Expr), list}}}
		if x.Negated {
			return unknownOnNull(bson.D{{Key: "$not", Value: bson.A{in}}}, x.Expr)
		}
		return unknownOnNull(in, x.Expr)

	case *Regex:
		args := bson.D{
			{Key: "input", Value: Agg(x.Expr)},
			{Key: "regex", Value: x.Pattern},
		}
		if x.Options != "" {
			args = append(args, bson.E{Key: "options", Value: x.Options})
		}
		match := bson.D{{Key: "$regexMatch", Value: args}}
		if x.Negated {
			return unknownOnNull(bson.D{{Key: "$not", Value: bson.A{match}}}, x.Expr)
		}
		return match

	case *IsNull:
		if x.Negated {
			return bson.D{{Key: "$ne", Value: bson.A{ifNull(x.Expr), nil}}}
		}
		return isNullAgg(x.Expr)

	case *Arith:
		return bson.D{{Key: string(x.Op), Value: bson.A{Agg(x.Left), Agg(x.Right)}}}

	case *Call:
		if len(x.Named) > 0 {
			args := make(bson.D, 0, len(x.Named))
			for _, a := range x.Named {
				args = append(args, bson.E{Key: a.Name, Value: Agg(a.Expr)})
			}
			return bson.D{{Key: x.Op, Value: args}}
		}
		if len(x.Args) == 1 {
			// Single operands are passed bare: {$sum: "$x"} sums the array
			// at x, while {$sum: ["$x"]} would not traverse it.
			return bson.D{{Key: x.Op, Value: Agg(x.Args[0])}}
		}
		return bson.D{{Key: x.Op, Value: aggList(x.Args)}}
	}
	return nil
}

func ifNull(e Expr) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{Agg(e), nil}}}
}

// isNullAgg is true when e is null or missing. A missing field is not
// equal to null in aggregation comparisons, hence the $ifNull.
func isNullAgg(e Expr) bson.D {
	return bson.D{{Key: "$eq", Value: bson.A{ifNull(e), nil}}}
}

// unknownOnNull yields null instead of test when any non-literal operand
// is null, the way a SQL comparison with NULL is unknown.
func unknownOnNull(test bson.D, operands ...Expr) any {
	var checks bson.A
	for _, o := range operands {
		if _, ok := o.(*Literal); ok {
			continue
		}
		checks = append(checks, isNullAgg(o))
	}
	switch len(checks) {
	case 0:
		return test
	case 1:
		return bson.D{{Key: "$cond", Value: bson.A{checks[0], nil, test}}}
	}
	return bson.D{{Key: "$cond", Value: bson.A{bson.D{{Key: "$or", Value: checks}}, nil, test}}}
}

func aggList(exprs []Expr) bson.A {
	out := make(bson.A, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, Agg(e))
	}
	return out
}

// aggLiteral renders a constant so the aggregation engine cannot mistake it
// for a field path or an operator.
func aggLiteral(v ir.Value) any {
	switch x := v.(type) {
	case ir.String:
		if strings.HasPrefix(string(x), "$") {
			return bson.D{{Key: "$literal", Value: string(x)}}
		}
	case ir.Array:
		return bson.D{{Key: "$literal", Value: ir.ToBSON(x)}}
	}
	return ir.ToBSON(v)
}
