package queryir

import (
	"strings"

	"github.com/roach88/docbridge/internal/ir"
)

// Format renders an expression as SQL text. It is used for column labels
// and diagnostics, not for re-parsing.
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch x := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case *ColumnRef:
		if x.Table != "" {
			b.WriteString(x.Table)
			b.WriteByte('.')
		}
		b.WriteString(x.Column)
	case *Literal:
		b.WriteString(ir.Format(x.Value))
	case *Comparison:
		format(b, x.Left)
		b.WriteString(" " + x.Op.String() + " ")
		format(b, x.Right)
	case *And:
		formatJoined(b, x.Exprs, " AND ", true)
	case *Or:
		formatJoined(b, x.Exprs, " OR ", true)
	case *Not:
		b.WriteString("NOT ")
		format(b, x.Expr)
	case *In:
		format(b, x.Expr)
		if x.Negated {
			b.WriteString(" NOT")
		}
		b.WriteString(" IN (")
		formatJoined(b, x.Values, ", ", false)
		b.WriteByte(')')
	case *Like:
		format(b, x.Expr)
		if x.Negated {
			b.WriteString(" NOT")
		}
		if x.CaseInsensitive {
			b.WriteString(" ILIKE ")
		} else {
			b.WriteString(" LIKE ")
		}
		b.WriteString(ir.Format(ir.String(x.Pattern)))
		if x.Escape != 0 {
			b.WriteString(" ESCAPE " + ir.Format(ir.String(string(x.Escape))))
		}
	case *IsNull:
		format(b, x.Expr)
		if x.Negated {
			b.WriteString(" IS NOT NULL")
		} else {
			b.WriteString(" IS NULL")
		}
	case *Arith:
		b.WriteByte('(')
		format(b, x.Left)
		b.WriteString(" " + x.Op.String() + " ")
		format(b, x.Right)
		b.WriteByte(')')
	case *Func:
		b.WriteString(strings.ToUpper(x.Name))
		b.WriteByte('(')
		formatJoined(b, x.Args, ", ", false)
		b.WriteByte(')')
	case *Aggregate:
		b.WriteString(x.Func.String())
		b.WriteByte('(')
		if x.Distinct {
			b.WriteString("DISTINCT ")
		}
		if x.Arg == nil {
			b.WriteByte('*')
		} else {
			format(b, x.Arg)
		}
		b.WriteByte(')')
	case *Tuple:
		b.WriteByte('(')
		formatJoined(b, x.Exprs, ", ", false)
		b.WriteByte(')')
	case *Star:
		if x.Table != "" {
			b.WriteString(x.Table + ".")
		}
		b.WriteByte('*')
	}
}

func formatJoined(b *strings.Builder, exprs []Expr, sep string, paren bool) {
	if paren && len(exprs) > 1 {
		b.WriteByte('(')
	}
	for i, e := range exprs {
		if i > 0 {
			b.WriteString(sep)
		}
		format(b, e)
	}
	if paren && len(exprs) > 1 {
		b.WriteByte(')')
	}
}
