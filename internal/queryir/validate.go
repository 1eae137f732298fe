package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists structural problems found in a statement.
//
// Structural problems are shape errors a resolver should never produce:
// missing clauses, aggregates where none are allowed, ragged VALUES rows.
// Whether a well-formed statement can be translated is decided later by
// the compiler.
type ValidationResult struct {
	IsValid  bool
	Problems []string
}

// Err returns the problems as a single error, or nil when the statement is valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("invalid statement: %s", strings.Join(r.Problems, "; "))
}

// Validate checks a statement's structure.
//
// Validate is a pure function with no side effects.
func Validate(stmt Statement) ValidationResult {
	v := &validator{
		problems: []string{},
	}
	v.validateStatement(stmt)

	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateStatement(s Statement) {
	switch stmt := s.(type) {
	case nil:
		v.addProblem("nil statement")
	case *Select:
		v.validateSelect(stmt)
	case *Insert:
		v.validateInsert(stmt)
	case *Update:
		v.validateUpdate(stmt)
	case *Delete:
		if stmt.Table == "" {
			v.addProblem("DELETE requires a table")
		}
		v.validateExpr("WHERE", stmt.Where, false)
	default:
		v.addProblem("unknown statement type %T", s)
	}
}

func (v *validator) validateSelect(sel *Select) {
	if sel.From == nil {
		v.addProblem("SELECT requires a FROM clause")
	} else {
		v.validateTableExpr(sel.From)
	}
	if len(sel.Items) == 0 {
		v.addProblem("SELECT requires at least one item")
	}
	for i, item := range sel.Items {
		if item.Expr == nil {
			v.addProblem("select item %d is empty", i)
			continue
		}
		if _, ok := item.Expr.(*Star); ok {
			if item.Alias != "" {
				v.addProblem("select item %d: * cannot be aliased", i)
			}
			continue
		}
		v.validateExpr(fmt.Sprintf("select item %d", i), item.Expr, true)
	}

	v.validateExpr("WHERE", sel.Where, false)
	for i, g := range sel.GroupBy {
		if g == nil {
			v.addProblem("GROUP BY item %d is empty", i)
			continue
		}
		v.validateExpr("GROUP BY", g, false)
	}
	v.validateExpr("HAVING", sel.Having, true)
	for i, o := range sel.OrderBy {
		if o.Expr == nil {
			v.addProblem("ORDER BY item %d is empty", i)
			continue
		}
		v.validateExpr("ORDER BY", o.Expr, true)
	}

	if sel.Limit != nil && *sel.Limit < 0 {
		v.addProblem("LIMIT must not be negative")
	}
	if sel.Offset != nil && *sel.Offset < 0 {
		v.addProblem("OFFSET must not be negative")
	}
}

func (v *validator) validateTableExpr(t TableExpr) {
	switch x := t.(type) {
	case *TableRef:
		if x.Name == "" {
			v.addProblem("table reference without a name")
		}
	case *Join:
		if x.Left == nil || x.Right == nil {
			v.addProblem("%s requires two sides", x.Kind)
			return
		}
		v.validateTableExpr(x.Left)
		v.validateTableExpr(x.Right)
		if x.Kind != CrossJoin && x.On == nil {
			v.addProblem("%s requires an ON condition", x.Kind)
		}
		v.validateExpr("ON", x.On, false)
	default:
		v.addProblem("unknown table expression %T", t)
	}
}

func (v *validator) validateInsert(ins *Insert) {
	if ins.Table == "" {
		v.addProblem("INSERT requires a table")
	}
	if len(ins.Columns) == 0 {
		v.addProblem("INSERT requires a column list")
	}
	seen := make(map[string]bool, len(ins.Columns))
	for _, c := range ins.Columns {
		key := strings.ToLower(c)
		if seen[key] {
			v.addProblem("INSERT names column %s twice", c)
		}
		seen[key] = true
	}
	if len(ins.Rows) == 0 {
		v.addProblem("INSERT requires at least one row")
	}
	for i, row := range ins.Rows {
		if len(row) != len(ins.Columns) {
			v.addProblem("INSERT row %d has %d values for %d columns", i, len(row), len(ins.Columns))
		}
		for _, e := range row {
			v.validateExpr("VALUES", e, false)
		}
	}
}

func (v *validator) validateUpdate(upd *Update) {
	if upd.Table == "" {
		v.addProblem("UPDATE requires a table")
	}
	if len(upd.Set) == 0 {
		v.addProblem("UPDATE requires at least one assignment")
	}
	seen := make(map[string]bool, len(upd.Set))
	for _, a := range upd.Set {
		key := strings.ToLower(a.Column)
		if seen[key] {
			v.addProblem("UPDATE assigns column %s twice", a.Column)
		}
		seen[key] = true
		if a.Value == nil {
			v.addProblem("UPDATE assignment to %s has no value", a.Column)
			continue
		}
		v.validateExpr("SET", a.Value, false)
	}
	v.validateExpr("WHERE", upd.Where, false)
}

// validateExpr checks an expression tree. Aggregates are allowed only where
// allowAgg is set, and never nested.
func (v *validator) validateExpr(clause string, e Expr, allowAgg bool) {
	if e == nil {
		return
	}
	Walk(e, func(n Expr) bool {
		switch x := n.(type) {
		case *Aggregate:
			if !allowAgg {
				v.addProblem("%s: aggregate %s is not allowed here", clause, x.Func)
				return false
			}
			if x.Arg == nil && (x.Func != Count || x.Distinct) {
				v.addProblem("%s: %s requires an argument", clause, x.Func)
			}
			if x.Arg != nil && ContainsAggregate(x.Arg) {
				v.addProblem("%s: aggregates cannot be nested", clause)
				return false
			}
		case *Star:
			v.addProblem("%s: * is only allowed as a select item", clause)
		case *Comparison:
			if x.Left == nil || x.Right == nil {
				v.addProblem("%s: comparison %s is missing an operand", clause, x.Op)
			}
		case *Arith:
			if x.Left == nil || x.Right == nil {
				v.addProblem("%s: arithmetic %s is missing an operand", clause, x.Op)
			}
		case *In:
			if x.Expr == nil {
				v.addProblem("%s: IN has no left operand", clause)
			}
			if len(x.Values) == 0 {
				v.addProblem("%s: IN list is empty", clause)
			}
		case *Like:
			if x.Expr == nil {
				v.addProblem("%s: LIKE has no operand", clause)
			}
		case *Not:
			if x.Expr == nil {
				v.addProblem("%s: NOT has no operand", clause)
			}
		case *IsNull:
			if x.Expr == nil {
				v.addProblem("%s: IS NULL has no operand", clause)
			}
		case *ColumnRef:
			if x.Column == "" {
				v.addProblem("%s: column reference without a name", clause)
			}
		case *Func:
			if x.Name == "" {
				v.addProblem("%s: function call without a name", clause)
			}
		case *Literal:
			if x.Value == nil {
				v.addProblem("%s: literal without a value", clause)
			}
		}
		return true
	})
}
