package docir

import "github.com/roach88/docbridge/internal/ir"

// Expr is a compiled document expression.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	docExpr() // Marker method - seals interface to this package
}

// Field references a document field by dotted path.
type Field struct {
	Path string
}

func (*Field) docExpr() {}

// Literal is a constant.
type Literal struct {
	Value ir.Value
}

func (*Literal) docExpr() {}

// CompareOp is a document-store comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "$eq"
	OpNe  CompareOp = "$ne"
	OpLt  CompareOp = "$lt"
	OpLte CompareOp = "$lte"
	OpGt  CompareOp = "$gt"
	OpGte CompareOp = "$gte"
)

// Flip returns the operator with its operands swapped: a < b is b > a.
func (op CompareOp) Flip() CompareOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLte:
		return OpGte
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	default:
		return op
	}
}

// Negate returns the operator testing the opposite: a < b is NOT a >= b.
func (op CompareOp) Negate() CompareOp {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGte
	case OpLte:
		return OpGt
	case OpGt:
		return OpLte
	default:
		return OpLt
	}
}

// Compare is <left> <op> <right>.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

func (*Compare) docExpr() {}

// And is a conjunction.
type And struct {
	Exprs []Expr
}

func (*And) docExpr() {}

// Or is a disjunction.
type Or struct {
	Exprs []Expr
}

func (*Or) docExpr() {}

// Not negates a boolean expression.
type Not struct {
	Expr Expr
}

func (*Not) docExpr() {}

// In tests membership in a literal list. Values never holds null.
type In struct {
	Expr    Expr
	Values  []ir.Value
	Negated bool
}

func (*In) docExpr() {}

// Regex is a compiled LIKE: a pattern match against a string.
type Regex struct {
	Expr    Expr
	Pattern string
	Options string
	Negated bool
}

func (*Regex) docExpr() {}

// IsNull is true when the value is null or missing.
type IsNull struct {
	Expr    Expr
	Negated bool
}

func (*IsNull) docExpr() {}

// ArithOp is an aggregation arithmetic operator.
type ArithOp string

const (
	OpAdd      ArithOp = "$add"
	OpSubtract ArithOp = "$subtract"
	OpMultiply ArithOp = "$multiply"
	OpDivide   ArithOp = "$divide"
	OpMod      ArithOp = "$mod"
)

// Arith is <left> <op> <right>.
type Arith struct {
	Op    ArithOp
	Left  Expr
	Right Expr
}

func (*Arith) docExpr() {}

// Call applies an aggregation operator, e.g. {$concat: [x, y]}. A single
// argument renders without the list: {$toUpper: x}.
//
// Named holds operators whose argument is a document rather than a list,
// such as $dateToString; when set, Args is ignored.
type Call struct {
	Op    string
	Args  []Expr
	Named []NamedArg
}

func (*Call) docExpr() {}

// NamedArg is one field of a document-shaped operator argument.
type NamedArg struct {
	Name string
	Expr Expr
}

// FieldPaths lists every field path e reads, in first-seen order.
func FieldPaths(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case *Field:
			if !seen[x.Path] {
				seen[x.Path] = true
				out = append(out, x.Path)
			}
		case *Compare:
			walk(x.Left)
			walk(x.Right)
		case *And:
			for _, s := range x.Exprs {
				walk(s)
			}
		case *Or:
			for _, s := range x.Exprs {
				walk(s)
			}
		case *Not:
			walk(x.Expr)
		case *In:
			walk(x.Expr)
		case *Regex:
			walk(x.Expr)
		case *IsNull:
			walk(x.Expr)
		case *Arith:
			walk(x.Left)
			walk(x.Right)
		case *Call:
			for _, a := range x.Args {
				walk(a)
			}
			for _, a := range x.Named {
				walk(a.Expr)
			}
		}
	}
	walk(e)
	return out
}
