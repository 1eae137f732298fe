package queryir

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docbridge/internal/ir"
)

// DecodeError reports a malformed command document.
type DecodeError struct {
	Line    int
	Column  int
	Message string
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

func nodeError(n *yaml.Node, format string, args ...any) error {
	return &DecodeError{Line: n.Line, Column: n.Column, Message: fmt.Sprintf(format, args...)}
}

// Command document layout. Exactly one of the statement keys is set.
//
//	select:
//	  items: [{expr: {col: OrderDetails.UnitPrice}, alias: price}]
//	  from: {table: OrderDetails}
//	  where: {gt: [{col: UnitPrice}, {lit: 10}]}
type stmtDoc struct {
	Select *selectDoc `yaml:"select"`
	Insert *insertDoc `yaml:"insert"`
	Update *updateDoc `yaml:"update"`
	Delete *deleteDoc `yaml:"delete"`
}

type selectDoc struct {
	Distinct bool        `yaml:"distinct"`
	Items    []itemDoc   `yaml:"items"`
	From     yaml.Node   `yaml:"from"`
	Where    yaml.Node   `yaml:"where"`
	GroupBy  []yaml.Node `yaml:"group_by"`
	Having   yaml.Node   `yaml:"having"`
	OrderBy  []orderDoc  `yaml:"order_by"`
	Limit    *int64      `yaml:"limit"`
	Offset   *int64      `yaml:"offset"`
}

type itemDoc struct {
	Expr  yaml.Node `yaml:"expr"`
	Alias string    `yaml:"alias"`
}

type orderDoc struct {
	Expr yaml.Node `yaml:"expr"`
	Desc bool      `yaml:"desc"`
}

type insertDoc struct {
	Table   string        `yaml:"table"`
	Columns []string      `yaml:"columns"`
	Rows    [][]yaml.Node `yaml:"rows"`
}

type updateDoc struct {
	Table string      `yaml:"table"`
	Set   []assignDoc `yaml:"set"`
	Where yaml.Node   `yaml:"where"`
}

type assignDoc struct {
	Column string    `yaml:"column"`
	Value  yaml.Node `yaml:"value"`
}

type deleteDoc struct {
	Table string    `yaml:"table"`
	Where yaml.Node `yaml:"where"`
}

type tableDoc struct {
	Table string   `yaml:"table"`
	Alias string   `yaml:"alias"`
	Join  *joinDoc `yaml:"join"`
}

type joinDoc struct {
	Kind  string    `yaml:"kind"`
	Left  yaml.Node `yaml:"left"`
	Right yaml.Node `yaml:"right"`
	On    yaml.Node `yaml:"on"`
}

// Decode parses a YAML command document into a Statement.
func Decode(data []byte) (Statement, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &DecodeError{Message: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil, &DecodeError{Message: "empty command document"}
	}
	return DecodeNode(root.Content[0])
}

// DecodeNode parses an already-unmarshaled command node. The scenario
// harness embeds commands inside larger documents and uses this directly.
func DecodeNode(n *yaml.Node) (Statement, error) {
	var doc stmtDoc
	if err := n.Decode(&doc); err != nil {
		return nil, nodeError(n, "%v", err)
	}

	set := 0
	for _, present := range []bool{doc.Select != nil, doc.Insert != nil, doc.Update != nil, doc.Delete != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, nodeError(n, "command must have exactly one of select, insert, update, delete")
	}

	switch {
	case doc.Select != nil:
		return decodeSelect(doc.Select)
	case doc.Insert != nil:
		return decodeInsert(doc.Insert)
	case doc.Update != nil:
		return decodeUpdate(doc.Update)
	default:
		where, err := optionalExpr(&doc.Delete.Where)
		if err != nil {
			return nil, err
		}
		return &Delete{Table: doc.Delete.Table, Where: where}, nil
	}
}

func decodeSelect(d *selectDoc) (*Select, error) {
	sel := &Select{Distinct: d.Distinct, Limit: d.Limit, Offset: d.Offset}

	for _, it := range d.Items {
		e, err := DecodeExpr(&it.Expr)
		if err != nil {
			return nil, err
		}
		sel.Items = append(sel.Items, SelectItem{Expr: e, Alias: it.Alias})
	}

	if d.From.Kind == 0 {
		return nil, &DecodeError{Message: "select requires from"}
	}
	from, err := decodeTableExpr(&d.From)
	if err != nil {
		return nil, err
	}
	sel.From = from

	if sel.Where, err = optionalExpr(&d.Where); err != nil {
		return nil, err
	}
	for i := range d.GroupBy {
		e, err := DecodeExpr(&d.GroupBy[i])
		if err != nil {
			return nil, err
		}
		sel.GroupBy = append(sel.GroupBy, e)
	}
	if sel.Having, err = optionalExpr(&d.Having); err != nil {
		return nil, err
	}
	for _, o := range d.OrderBy {
		e, err := DecodeExpr(&o.Expr)
		if err != nil {
			return nil, err
		}
		sel.OrderBy = append(sel.OrderBy, OrderItem{Expr: e, Desc: o.Desc})
	}
	return sel, nil
}

func decodeInsert(d *insertDoc) (*Insert, error) {
	ins := &Insert{Table: d.Table, Columns: d.Columns}
	for _, row := range d.Rows {
		var exprs []Expr
		for i := range row {
			e, err := DecodeExpr(&row[i])
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		}
		ins.Rows = append(ins.Rows, exprs)
	}
	return ins, nil
}

func decodeUpdate(d *updateDoc) (*Update, error) {
	upd := &Update{Table: d.Table}
	for _, a := range d.Set {
		e, err := DecodeExpr(&a.Value)
		if err != nil {
			return nil, err
		}
		upd.Set = append(upd.Set, Assignment{Column: a.Column, Value: e})
	}
	where, err := optionalExpr(&d.Where)
	if err != nil {
		return nil, err
	}
	upd.Where = where
	return upd, nil
}

func decodeTableExpr(n *yaml.Node) (TableExpr, error) {
	var d tableDoc
	if err := n.Decode(&d); err != nil {
		return nil, nodeError(n, "%v", err)
	}
	if d.Join != nil {
		kind, err := parseJoinKind(d.Join.Kind)
		if err != nil {
			return nil, nodeError(n, "%v", err)
		}
		left, err := decodeTableExpr(&d.Join.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeTableExpr(&d.Join.Right)
		if err != nil {
			return nil, err
		}
		on, err := optionalExpr(&d.Join.On)
		if err != nil {
			return nil, err
		}
		return &Join{Kind: kind, Left: left, Right: right, On: on}, nil
	}
	if d.Table == "" {
		return nil, nodeError(n, "from item needs table or join")
	}
	return &TableRef{Name: d.Table, Alias: d.Alias}, nil
}

func parseJoinKind(s string) (JoinKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inner":
		return InnerJoin, nil
	case "left", "left_outer":
		return LeftOuterJoin, nil
	case "right", "right_outer":
		return RightOuterJoin, nil
	case "full", "full_outer":
		return FullOuterJoin, nil
	case "cross":
		return CrossJoin, nil
	default:
		return InnerJoin, fmt.Errorf("unknown join kind %q", s)
	}
}

func optionalExpr(n *yaml.Node) (Expr, error) {
	if n.Kind == 0 || n.ShortTag() == "!!null" {
		return nil, nil
	}
	return DecodeExpr(n)
}

var compareOps = map[string]CompareOp{
	"eq": Eq, "ne": Ne, "lt": Lt, "le": Le, "gt": Gt, "ge": Ge,
}

var arithOps = map[string]ArithOp{
	"add": Add, "sub": Sub, "mul": Mul, "div": Div, "mod": Mod,
}

var aggFuncs = map[string]AggFunc{
	"count": Count, "sum": Sum, "avg": Avg, "min": Min, "max": Max,
}

// DecodeExpr parses one expression node. Every expression is a mapping with
// a single key naming the operator:
//
//	{col: Orders.ShipCity}            column reference
//	{lit: 10}                         literal (int, float, string, bool, null)
//	{time: 2024-01-01T00:00:00Z}      timestamp literal
//	{eq: [a, b]}                      also ne, lt, le, gt, ge
//	{and: [a, b, ...]}                also or
//	{not: a}
//	{in: {expr: a, values: [...]}}    also not_in
//	{like: {expr: a, pattern: "x%", escape: "\\"}}  also not_like, ilike, not_ilike
//	{is_null: a}                      also is_not_null
//	{add: [a, b]}                     also sub, mul, div, mod
//	{fn: {name: upper, args: [...]}}
//	{agg: {func: sum, arg: a, distinct: true}}
//	{count_star: {}}
//	{tuple: [a, b]}
//	{star: ""}                        or {star: Orders}
func DecodeExpr(n *yaml.Node) (Expr, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, nodeError(n, "expression must be a mapping with exactly one operator key")
	}
	key := n.Content[0].Value
	val := n.Content[1]

	if op, ok := compareOps[key]; ok {
		l, r, err := decodePair(key, val)
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: op, Left: l, Right: r}, nil
	}
	if op, ok := arithOps[key]; ok {
		l, r, err := decodePair(key, val)
		if err != nil {
			return nil, err
		}
		return &Arith{Op: op, Left: l, Right: r}, nil
	}

	switch key {
	case "col":
		var ref string
		if err := val.Decode(&ref); err != nil || ref == "" {
			return nil, nodeError(val, "col must be a column name")
		}
		if i := strings.IndexByte(ref, '.'); i > 0 {
			return &ColumnRef{Table: ref[:i], Column: ref[i+1:]}, nil
		}
		return &ColumnRef{Column: ref}, nil

	case "lit":
		v, err := decodeLiteral(val)
		if err != nil {
			return nil, err
		}
		return &Literal{Value: v}, nil

	case "time":
		var s string
		if err := val.Decode(&s); err != nil {
			return nil, nodeError(val, "time must be an RFC 3339 string")
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, nodeError(val, "time: %v", err)
		}
		return &Literal{Value: ir.Time(ts.UTC())}, nil

	case "and", "or":
		exprs, err := decodeList(val)
		if err != nil {
			return nil, err
		}
		if key == "and" {
			return &And{Exprs: exprs}, nil
		}
		return &Or{Exprs: exprs}, nil

	case "not":
		e, err := DecodeExpr(val)
		if err != nil {
			return nil, err
		}
		return &Not{Expr: e}, nil

	case "in", "not_in":
		var d struct {
			Expr   yaml.Node   `yaml:"expr"`
			Values []yaml.Node `yaml:"values"`
		}
		if err := val.Decode(&d); err != nil {
			return nil, nodeError(val, "%s: %v", key, err)
		}
		e, err := DecodeExpr(&d.Expr)
		if err != nil {
			return nil, err
		}
		in := &In{Expr: e, Negated: key == "not_in"}
		for i := range d.Values {
			v, err := DecodeExpr(&d.Values[i])
			if err != nil {
				return nil, err
			}
			in.Values = append(in.Values, v)
		}
		return in, nil

	case "like", "not_like", "ilike", "not_ilike":
		var d struct {
			Expr    yaml.Node `yaml:"expr"`
			Pattern string    `yaml:"pattern"`
			Escape  string    `yaml:"escape"`
		}
		if err := val.Decode(&d); err != nil {
			return nil, nodeError(val, "%s: %v", key, err)
		}
		e, err := DecodeExpr(&d.Expr)
		if err != nil {
			return nil, err
		}
		like := &Like{
			Expr:            e,
			Pattern:         d.Pattern,
			Negated:         strings.HasPrefix(key, "not_"),
			CaseInsensitive: strings.HasSuffix(key, "ilike"),
		}
		if d.Escape != "" {
			r := []rune(d.Escape)
			if len(r) != 1 {
				return nil, nodeError(val, "%s: escape must be a single character", key)
			}
			like.Escape = r[0]
		}
		return like, nil

	case "is_null", "is_not_null":
		e, err := DecodeExpr(val)
		if err != nil {
			return nil, err
		}
		return &IsNull{Expr: e, Negated: key == "is_not_null"}, nil

	case "fn":
		var d struct {
			Name string      `yaml:"name"`
			Args []yaml.Node `yaml:"args"`
		}
		if err := val.Decode(&d); err != nil {
			return nil, nodeError(val, "fn: %v", err)
		}
		f := &Func{Name: d.Name}
		for i := range d.Args {
			a, err := DecodeExpr(&d.Args[i])
			if err != nil {
				return nil, err
			}
			f.Args = append(f.Args, a)
		}
		return f, nil

	case "agg":
		var d struct {
			Func     string    `yaml:"func"`
			Arg      yaml.Node `yaml:"arg"`
			Distinct bool      `yaml:"distinct"`
		}
		if err := val.Decode(&d); err != nil {
			return nil, nodeError(val, "agg: %v", err)
		}
		fn, ok := aggFuncs[strings.ToLower(d.Func)]
		if !ok {
			return nil, nodeError(val, "agg: unknown aggregate %q", d.Func)
		}
		arg, err := optionalExpr(&d.Arg)
		if err != nil {
			return nil, err
		}
		return &Aggregate{Func: fn, Arg: arg, Distinct: d.Distinct}, nil

	case "count_star":
		return &Aggregate{Func: Count}, nil

	case "tuple":
		exprs, err := decodeList(val)
		if err != nil {
			return nil, err
		}
		return &Tuple{Exprs: exprs}, nil

	case "star":
		var table string
		if val.ShortTag() != "!!null" {
			if err := val.Decode(&table); err != nil {
				return nil, nodeError(val, "star must name a table or be empty")
			}
		}
		return &Star{Table: table}, nil
	}

	return nil, nodeError(n, "unknown expression operator %q", key)
}

func decodeList(n *yaml.Node) ([]Expr, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, nodeError(n, "expected a list of expressions")
	}
	out := make([]Expr, 0, len(n.Content))
	for _, c := range n.Content {
		e, err := DecodeExpr(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodePair(op string, n *yaml.Node) (Expr, Expr, error) {
	exprs, err := decodeList(n)
	if err != nil {
		return nil, nil, err
	}
	if len(exprs) != 2 {
		return nil, nil, nodeError(n, "%s takes exactly two operands, got %d", op, len(exprs))
	}
	return exprs[0], exprs[1], nil
}

// decodeLiteral maps a YAML scalar onto an ir.Value by its resolved tag.
func decodeLiteral(n *yaml.Node) (ir.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return ir.Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, nodeError(n, "%v", err)
		}
		return ir.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, nodeError(n, "%v", err)
		}
		return ir.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, nodeError(n, "%v", err)
		}
		return ir.Float(f), nil
	case "!!str":
		return ir.String(n.Value), nil
	case "!!timestamp":
		var ts time.Time
		if err := n.Decode(&ts); err != nil {
			return nil, nodeError(n, "%v", err)
		}
		return ir.Time(ts.UTC()), nil
	case "!!seq":
		arr := make(ir.Array, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeLiteral(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	default:
		return nil, nodeError(n, "unsupported literal %q", n.Value)
	}
}
