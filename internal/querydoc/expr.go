package querydoc

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
	"github.com/roach88/docbridge/internal/queryir"
)

var compareOps = map[queryir.CompareOp]docir.CompareOp{
	queryir.Eq: docir.OpEq,
	queryir.Ne: docir.OpNe,
	queryir.Lt: docir.OpLt,
	queryir.Le: docir.OpLte,
	queryir.Gt: docir.OpGt,
	queryir.Ge: docir.OpGte,
}

var arithOps = map[queryir.ArithOp]docir.ArithOp{
	queryir.Add: docir.OpAdd,
	queryir.Sub: docir.OpSubtract,
	queryir.Mul: docir.OpMultiply,
	queryir.Div: docir.OpDivide,
	queryir.Mod: docir.OpMod,
}

// exprCompiler compiles relational expressions against a scope.
type exprCompiler struct {
	scope *scope
	// filter rejects unsearchable columns.
	filter bool
	// post is set when compiling after a $group stage.
	post *groupContext
}

func newExprCompiler(sc *scope) *exprCompiler {
	return &exprCompiler{scope: sc}
}

func (c *exprCompiler) compile(e queryir.Expr) (docir.Expr, error) {
	if c.post != nil {
		d, ok, err := c.post.lookup(e)
		if err != nil || ok {
			return d, err
		}
	}

	switch x := e.(type) {
	case nil:
		return nil, unsupportedExpr("", "missing expression")
	case *queryir.ColumnRef:
		return c.column(x)
	case *queryir.Literal:
		if x.Value == nil {
			return &docir.Literal{Value: ir.Null{}}, nil
		}
		return &docir.Literal{Value: x.Value}, nil
	case *queryir.Comparison:
		return c.comparison(x)
	case *queryir.And:
		exprs, err := c.compileAll(x.Exprs)
		if err != nil {
			return nil, err
		}
		return &docir.And{Exprs: exprs}, nil
	case *queryir.Or:
		return c.or(x)
	case *queryir.Not:
		inner, err := c.compile(x.Expr)
		if err != nil {
			return nil, err
		}
		return &docir.Not{Expr: inner}, nil
	case *queryir.In:
		return c.in(x)
	case *queryir.Like:
		return c.like(x)
	case *queryir.IsNull:
		inner, err := c.compile(x.Expr)
		if err != nil {
			return nil, err
		}
		return &docir.IsNull{Expr: inner, Negated: x.Negated}, nil
	case *queryir.Arith:
		l, err := c.compile(x.Left)
		if err != nil {
			return nil, err
		}
		r, err := c.compile(x.Right)
		if err != nil {
			return nil, err
		}
		return &docir.Arith{Op: arithOps[x.Op], Left: l, Right: r}, nil
	case *queryir.Func:
		return c.call(x)
	case *queryir.Aggregate:
		return nil, unsupportedExpr(queryir.Format(x), "aggregate functions are not allowed here")
	case *queryir.Tuple:
		return nil, unsupportedExpr(queryir.Format(x), "row values are only supported in comparisons")
	case *queryir.Star:
		return nil, unsupportedExpr(queryir.Format(x), "* is only allowed as a select item")
	default:
		return nil, unsupportedExpr(fmt.Sprintf("%T", e), "unknown expression")
	}
}

func (c *exprCompiler) compileAll(in []queryir.Expr) ([]docir.Expr, error) {
	out := make([]docir.Expr, 0, len(in))
	for _, e := range in {
		d, err := c.compile(e)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (c *exprCompiler) column(x *queryir.ColumnRef) (docir.Expr, error) {
	b, col, err := c.scope.resolve(x)
	if err != nil {
		return nil, err
	}
	if c.filter && !col.Searchable {
		return nil, unsupportedExpr(qualified(b.table, col.Name), "column is not searchable")
	}
	p, err := c.scope.path(b, col)
	if err != nil {
		return nil, err
	}
	return &docir.Field{Path: p}, nil
}

func (c *exprCompiler) comparison(x *queryir.Comparison) (docir.Expr, error) {
	lt, lok := x.Left.(*queryir.Tuple)
	rt, rok := x.Right.(*queryir.Tuple)
	if lok || rok {
		return c.rowComparison(x, lt, rt)
	}
	l, err := c.compile(x.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.compile(x.Right)
	if err != nil {
		return nil, err
	}
	if isNullLiteral(l) || isNullLiteral(r) {
		// A comparison with NULL is unknown whatever the other operand.
		return &docir.Literal{Value: ir.Null{}}, nil
	}
	return &docir.Compare{Op: compareOps[x.Op], Left: l, Right: r}, nil
}

func isNullLiteral(e docir.Expr) bool {
	l, ok := e.(*docir.Literal)
	return ok && ir.IsNull(l.Value)
}

// rowComparison expands (a, b) = (1, 2) into a = 1 AND b = 2, and <> into
// the disjunction of component inequalities.
func (c *exprCompiler) rowComparison(x *queryir.Comparison, lt, rt *queryir.Tuple) (docir.Expr, error) {
	if lt == nil || rt == nil || len(lt.Exprs) != len(rt.Exprs) {
		return nil, unsupportedExpr(queryir.Format(x), "row values must be compared with a row of the same width")
	}
	if x.Op != queryir.Eq && x.Op != queryir.Ne {
		return nil, unsupportedExpr(queryir.Format(x), "row values only support = and <>")
	}
	parts := make([]docir.Expr, len(lt.Exprs))
	for i := range lt.Exprs {
		d, err := c.comparison(&queryir.Comparison{Op: x.Op, Left: lt.Exprs[i], Right: rt.Exprs[i]})
		if err != nil {
			return nil, err
		}
		parts[i] = d
	}
	if x.Op == queryir.Eq {
		return &docir.And{Exprs: parts}, nil
	}
	return &docir.Or{Exprs: parts}, nil
}

// or compiles a disjunction. Equality tests of one field against constants
// are merged into a single membership test placed where the first of them
// stood, so c = 'A' OR c = 'B' compiles exactly like c IN ('A', 'B').
func (c *exprCompiler) or(x *queryir.Or) (docir.Expr, error) {
	var flat []queryir.Expr
	var collect func(e queryir.Expr)
	collect = func(e queryir.Expr) {
		if o, ok := e.(*queryir.Or); ok {
			for _, s := range o.Exprs {
				collect(s)
			}
			return
		}
		flat = append(flat, e)
	}
	collect(x)

	exprs, err := c.compileAll(flat)
	if err != nil {
		return nil, err
	}
	merged := mergeEqualities(exprs)
	if len(merged) == 1 {
		return merged[0], nil
	}
	return &docir.Or{Exprs: merged}, nil
}

func mergeEqualities(in []docir.Expr) []docir.Expr {
	type group struct {
		pos  int
		vals []ir.Value
	}
	groups := map[string]*group{}
	out := make([]docir.Expr, 0, len(in))
	for _, e := range in {
		path, vals, ok := equalityValues(e)
		if !ok {
			out = append(out, e)
			continue
		}
		g, seen := groups[path]
		if !seen {
			groups[path] = &group{pos: len(out), vals: appendUnique(nil, vals...)}
			out = append(out, e)
			continue
		}
		g.vals = appendUnique(g.vals, vals...)
		out[g.pos] = &docir.In{Expr: &docir.Field{Path: path}, Values: g.vals}
	}
	return out
}

// equalityValues recognizes field = constant and field IN (constants).
func equalityValues(e docir.Expr) (string, []ir.Value, bool) {
	switch x := e.(type) {
	case *docir.Compare:
		if x.Op != docir.OpEq {
			return "", nil, false
		}
		f, l := fieldAndLiteral(x.Left, x.Right)
		if f == nil {
			f, l = fieldAndLiteral(x.Right, x.Left)
		}
		if f == nil || ir.IsNull(l.Value) {
			return "", nil, false
		}
		return f.Path, []ir.Value{l.Value}, true
	case *docir.In:
		f, ok := x.Expr.(*docir.Field)
		if !ok || x.Negated {
			return "", nil, false
		}
		return f.Path, x.Values, true
	}
	return "", nil, false
}

func fieldAndLiteral(a, b docir.Expr) (*docir.Field, *docir.Literal) {
	f, ok := a.(*docir.Field)
	if !ok {
		return nil, nil
	}
	l, ok := b.(*docir.Literal)
	if !ok {
		return nil, nil
	}
	return f, l
}

func appendUnique(dst []ir.Value, vals ...ir.Value) []ir.Value {
outer:
	for _, v := range vals {
		for _, have := range dst {
			if ir.Equal(have, v) {
				continue outer
			}
		}
		dst = append(dst, v)
	}
	return dst
}

func (c *exprCompiler) in(x *queryir.In) (docir.Expr, error) {
	if _, ok := x.Expr.(*queryir.Tuple); ok {
		return nil, unsupportedExpr(queryir.Format(x), "row values are not supported in IN")
	}
	target, err := c.compile(x.Expr)
	if err != nil {
		return nil, err
	}
	var vals []ir.Value
	hasNull := false
	for _, v := range x.Values {
		d, err := c.compile(v)
		if err != nil {
			return nil, err
		}
		lit, ok := d.(*docir.Literal)
		if !ok {
			return nil, unsupportedExpr(queryir.Format(v), "IN list values must be constants")
		}
		if ir.IsNull(lit.Value) {
			hasNull = true
			continue
		}
		vals = appendUnique(vals, lit.Value)
	}
	// A NULL in the list never matches. NOT IN with a NULL is never true.
	if len(vals) == 0 || (hasNull && x.Negated) {
		return &docir.Literal{Value: ir.Null{}}, nil
	}
	return &docir.In{Expr: target, Values: vals, Negated: x.Negated}, nil
}

func (c *exprCompiler) like(x *queryir.Like) (docir.Expr, error) {
	target, err := c.compile(x.Expr)
	if err != nil {
		return nil, err
	}
	re, err := likeToRegex(x.Pattern, x.Escape)
	if err != nil {
		return nil, err
	}
	opts := ""
	if x.CaseInsensitive {
		opts = "i"
	}
	return &docir.Regex{Expr: target, Pattern: re, Options: opts, Negated: x.Negated}, nil
}

func (c *exprCompiler) call(x *queryir.Func) (docir.Expr, error) {
	fn, ok := lookupFunc(x.Name)
	if !ok {
		return nil, unsupportedExpr(x.Name, "function has no document-store equivalent")
	}
	if len(x.Args) < fn.min || (fn.max >= 0 && len(x.Args) > fn.max) {
		return nil, unsupportedExpr(x.Name, "wrong number of arguments: %d", len(x.Args))
	}
	args, err := c.compileAll(x.Args)
	if err != nil {
		return nil, err
	}
	return fn.build(args), nil
}

// exprKey identifies a compiled expression by its rendered form.
func exprKey(d docir.Expr) string {
	return docir.CompactJSON(bson.D{{Key: "e", Value: docir.Agg(d)}})
}
