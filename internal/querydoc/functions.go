package querydoc

import (
	"strings"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
)

// scalarFunc builds the document form of a SQL scalar function from its
// compiled arguments.
type scalarFunc struct {
	min, max int // argument count bounds; max < 0 is variadic
	build    func(args []docir.Expr) docir.Expr
}

func unary(op string) scalarFunc {
	return scalarFunc{min: 1, max: 1, build: func(args []docir.Expr) docir.Expr {
		return &docir.Call{Op: op, Args: args}
	}}
}

func binary(op string) scalarFunc {
	return scalarFunc{min: 2, max: 2, build: func(args []docir.Expr) docir.Expr {
		return &docir.Call{Op: op, Args: args}
	}}
}

func trim(op string) scalarFunc {
	return scalarFunc{min: 1, max: 1, build: func(args []docir.Expr) docir.Expr {
		return &docir.Call{Op: op, Named: []docir.NamedArg{{Name: "input", Expr: args[0]}}}
	}}
}

// scalarFuncs maps lower-cased function names to their translation.
var scalarFuncs = map[string]scalarFunc{
	"upper":       unary("$toUpper"),
	"ucase":       unary("$toUpper"),
	"lower":       unary("$toLower"),
	"lcase":       unary("$toLower"),
	"length":      unary("$strLenCP"),
	"char_length": unary("$strLenCP"),
	"trim":        trim("$trim"),
	"ltrim":       trim("$ltrim"),
	"rtrim":       trim("$rtrim"),
	"abs":         unary("$abs"),
	"ceiling":     unary("$ceil"),
	"ceil":        unary("$ceil"),
	"floor":       unary("$floor"),
	"sqrt":        unary("$sqrt"),
	"exp":         unary("$exp"),
	"ln":          unary("$ln"),
	"log10":       unary("$log10"),
	"power":       binary("$pow"),
	"pow":         binary("$pow"),
	"mod":         binary("$mod"),
	"year":        unary("$year"),
	"month":       unary("$month"),
	"dayofmonth":  unary("$dayOfMonth"),
	"dayofweek":   unary("$dayOfWeek"),
	"dayofyear":   unary("$dayOfYear"),
	"hour":        unary("$hour"),
	"minute":      unary("$minute"),
	"second":      unary("$second"),
	"week":        unary("$week"),
	"concat": {min: 1, max: -1, build: func(args []docir.Expr) docir.Expr {
		return &docir.Call{Op: "$concat", Args: args}
	}},
	"round": {min: 1, max: 2, build: func(args []docir.Expr) docir.Expr {
		return &docir.Call{Op: "$round", Args: args}
	}},
	"ifnull": binary("$ifNull"),
	"nvl":    binary("$ifNull"),
	"coalesce": {min: 2, max: -1, build: func(args []docir.Expr) docir.Expr {
		return &docir.Call{Op: "$ifNull", Args: args}
	}},
	// SUBSTRING positions are 1-based; $substrCP offsets are 0-based.
	"substring": {min: 2, max: 3, build: func(args []docir.Expr) docir.Expr {
		var length docir.Expr = &docir.Call{Op: "$strLenCP", Args: []docir.Expr{args[0]}}
		if len(args) == 3 {
			length = args[2]
		}
		return &docir.Call{Op: "$substrCP", Args: []docir.Expr{args[0], minusOne(args[1]), length}}
	}},
	// LOCATE(sub, str[, start]) is 1-based and 0 when absent; $indexOfCP
	// is 0-based and -1 when absent.
	"locate": {min: 2, max: 3, build: func(args []docir.Expr) docir.Expr {
		idx := []docir.Expr{args[1], args[0]}
		if len(args) == 3 {
			idx = append(idx, minusOne(args[2]))
		}
		return &docir.Arith{
			Op:    docir.OpAdd,
			Left:  &docir.Call{Op: "$indexOfCP", Args: idx},
			Right: &docir.Literal{Value: ir.Int(1)},
		}
	}},
}

func init() {
	scalarFuncs["substr"] = scalarFuncs["substring"]
}

// minusOne converts a 1-based position, folding integer literals.
func minusOne(e docir.Expr) docir.Expr {
	if l, ok := e.(*docir.Literal); ok {
		if n, ok := l.Value.(ir.Int); ok {
			return &docir.Literal{Value: n - 1}
		}
	}
	return &docir.Arith{Op: docir.OpSubtract, Left: e, Right: &docir.Literal{Value: ir.Int(1)}}
}

func lookupFunc(name string) (scalarFunc, bool) {
	f, ok := scalarFuncs[strings.ToLower(name)]
	return f, ok
}
