package queryir

import "github.com/roach88/docbridge/internal/ir"

// Statement is a resolved SQL command.
//
// Statement types:
//   - Select: read, compiled to an aggregation pipeline
//   - Insert, Update, Delete: writes, compiled to mutation ops
type Statement interface {
	statementNode() // Marker method - seals interface to this package
}

// Expr is a scalar, boolean or aggregate expression.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// TableExpr is an item of a FROM clause.
type TableExpr interface {
	tableExprNode() // Marker method - seals interface to this package
}

// Select represents a query.
//
//	SELECT [DISTINCT] <items> FROM <from> [WHERE <where>]
//	[GROUP BY <group_by>] [HAVING <having>] [ORDER BY <order_by>]
//	[LIMIT <limit>] [OFFSET <offset>]
type Select struct {
	Distinct bool
	Items    []SelectItem
	From     TableExpr
	Where    Expr // nil = no filter
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderItem
	Limit    *int64
	Offset   *int64
}

func (*Select) statementNode() {}

// SelectItem is one projected expression. An empty Alias gets a positional
// synthetic output key.
type SelectItem struct {
	Expr  Expr
	Alias string
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// Insert represents INSERT INTO <table> (<columns>) VALUES <rows>.
// Each row has one expression per column.
type Insert struct {
	Table   string
	Columns []string
	Rows    [][]Expr
}

func (*Insert) statementNode() {}

// Update represents UPDATE <table> SET <set> [WHERE <where>].
type Update struct {
	Table string
	Set   []Assignment
	Where Expr
}

func (*Update) statementNode() {}

// Assignment is one SET column = value pair.
type Assignment struct {
	Column string
	Value  Expr
}

// Delete represents DELETE FROM <table> [WHERE <where>].
type Delete struct {
	Table string
	Where Expr
}

func (*Delete) statementNode() {}

// TableRef names a schema table, optionally under an alias.
type TableRef struct {
	Name  string
	Alias string
}

func (*TableRef) tableExprNode() {}

// RefName is the name column references use for this table: the alias if
// set, else the table name.
func (t *TableRef) RefName() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// JoinKind is the type of a join.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftOuterJoin
	RightOuterJoin
	FullOuterJoin
	CrossJoin
)

// String returns the SQL spelling of the join kind.
func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "INNER JOIN"
	case LeftOuterJoin:
		return "LEFT OUTER JOIN"
	case RightOuterJoin:
		return "RIGHT OUTER JOIN"
	case FullOuterJoin:
		return "FULL OUTER JOIN"
	case CrossJoin:
		return "CROSS JOIN"
	default:
		return "JOIN"
	}
}

// Join combines two FROM items.
type Join struct {
	Kind  JoinKind
	Left  TableExpr
	Right TableExpr
	On    Expr // nil for CROSS JOIN
}

func (*Join) tableExprNode() {}

// ColumnRef references a column. Table is the table name or alias it was
// resolved against; it may be empty when FROM has a single table.
type ColumnRef struct {
	Table  string
	Column string
}

func (*ColumnRef) exprNode() {}

// Literal is a constant.
type Literal struct {
	Value ir.Value
}

func (*Literal) exprNode() {}

// CompareOp is a comparison operator.
type CompareOp int

const (
	Eq CompareOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// String returns the SQL spelling of the operator.
func (op CompareOp) String() string {
	switch op {
	case Eq:
		return "="
	case Ne:
		return "<>"
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return "?"
	}
}

// Comparison is <left> <op> <right>.
type Comparison struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

func (*Comparison) exprNode() {}

// And is a conjunction. An empty And is true.
type And struct {
	Exprs []Expr
}

func (*And) exprNode() {}

// Or is a disjunction.
type Or struct {
	Exprs []Expr
}

func (*Or) exprNode() {}

// Not negates a boolean expression.
type Not struct {
	Expr Expr
}

func (*Not) exprNode() {}

// In is <expr> [NOT] IN (<values>).
type In struct {
	Expr    Expr
	Values  []Expr
	Negated bool
}

func (*In) exprNode() {}

// Like is <expr> [NOT] LIKE <pattern> [ESCAPE <escape>].
// Escape is zero when no escape character is declared.
type Like struct {
	Expr            Expr
	Pattern         string
	Escape          rune
	Negated         bool
	CaseInsensitive bool
}

func (*Like) exprNode() {}

// IsNull is <expr> IS [NOT] NULL.
type IsNull struct {
	Expr    Expr
	Negated bool
}

func (*IsNull) exprNode() {}

// ArithOp is an arithmetic operator.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Mod
)

// String returns the SQL spelling of the operator.
func (op ArithOp) String() string {
	switch op {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	default:
		return "?"
	}
}

// Arith is <left> <op> <right>.
type Arith struct {
	Op    ArithOp
	Left  Expr
	Right Expr
}

func (*Arith) exprNode() {}

// Func is a scalar function call. Name is matched case-insensitively.
type Func struct {
	Name string
	Args []Expr
}

func (*Func) exprNode() {}

// AggFunc is an aggregate function.
type AggFunc int

const (
	Count AggFunc = iota
	Sum
	Avg
	Min
	Max
)

// String returns the SQL spelling of the aggregate.
func (f AggFunc) String() string {
	switch f {
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	default:
		return "AGG"
	}
}

// Aggregate is an aggregate call. Arg is nil for COUNT(*).
type Aggregate struct {
	Func     AggFunc
	Arg      Expr
	Distinct bool
}

func (*Aggregate) exprNode() {}

// Tuple is a row value constructor, (a, b, ...).
type Tuple struct {
	Exprs []Expr
}

func (*Tuple) exprNode() {}

// Star is * or <table>.* in a select list. Table is empty for a bare *.
type Star struct {
	Table string
}

func (*Star) exprNode() {}

// Walk calls fn for e and every sub-expression, depth first. It stops
// descending into a node when fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *Comparison:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case *And:
		for _, sub := range x.Exprs {
			Walk(sub, fn)
		}
	case *Or:
		for _, sub := range x.Exprs {
			Walk(sub, fn)
		}
	case *Not:
		Walk(x.Expr, fn)
	case *In:
		Walk(x.Expr, fn)
		for _, v := range x.Values {
			Walk(v, fn)
		}
	case *Like:
		Walk(x.Expr, fn)
	case *IsNull:
		Walk(x.Expr, fn)
	case *Arith:
		Walk(x.Left, fn)
		Walk(x.Right, fn)
	case *Func:
		for _, a := range x.Args {
			Walk(a, fn)
		}
	case *Aggregate:
		Walk(x.Arg, fn)
	case *Tuple:
		for _, sub := range x.Exprs {
			Walk(sub, fn)
		}
	}
}

// ContainsAggregate reports whether e has an aggregate anywhere inside it.
func ContainsAggregate(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if _, ok := n.(*Aggregate); ok {
			found = true
		}
		return !found
	})
	return found
}

// Conjuncts flattens nested ANDs into a list. A nil expression has none.
func Conjuncts(e Expr) []Expr {
	if e == nil {
		return nil
	}
	and, ok := e.(*And)
	if !ok {
		return []Expr{e}
	}
	var out []Expr
	for _, sub := range and.Exprs {
		out = append(out, Conjuncts(sub)...)
	}
	return out
}

// Tables lists the table references of a FROM clause in left-to-right order.
func Tables(t TableExpr) []*TableRef {
	switch x := t.(type) {
	case *TableRef:
		return []*TableRef{x}
	case *Join:
		return append(Tables(x.Left), Tables(x.Right)...)
	default:
		return nil
	}
}
