package testutil

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
)

// fieldValue reads "$a.b" the way aggregation expressions do: arrays along
// the path map to arrays of the nested values, and a missing field is nil.
func fieldValue(v any, segs []string) any {
	if len(segs) == 0 {
		return v
	}
	switch x := v.(type) {
	case bson.D:
		child, ok := lookup(x, segs[0])
		if !ok {
			return nil
		}
		return fieldValue(child, segs[1:])
	case bson.A:
		out := bson.A{}
		for _, elem := range x {
			if _, isDoc := elem.(bson.D); !isDoc {
				continue
			}
			if r := fieldValue(elem, segs); r != nil {
				out = append(out, r)
			}
		}
		return out
	}
	return nil
}

// evalExpr evaluates an aggregation expression against a document.
func evalExpr(doc bson.D, expr any) (any, error) {
	switch x := expr.(type) {
	case string:
		if strings.HasPrefix(x, "$") && !strings.HasPrefix(x, "$$") {
			return fieldValue(doc, strings.Split(x[1:], ".")), nil
		}
		return x, nil
	case bson.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			v, err := evalExpr(doc, e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case bson.D:
		if len(x) == 1 && strings.HasPrefix(x[0].Key, "$") {
			return evalOperator(doc, x[0].Key, x[0].Value)
		}
		out := make(bson.D, 0, len(x))
		for _, e := range x {
			v, err := evalExpr(doc, e.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, bson.E{Key: e.Key, Value: v})
		}
		return out, nil
	}
	return expr, nil
}

// operands evaluates an operator's arguments. A non-array operand is a
// single argument.
func operands(doc bson.D, raw any) ([]any, error) {
	list, ok := raw.(bson.A)
	if !ok {
		v, err := evalExpr(doc, raw)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	out := make([]any, len(list))
	for i, e := range list {
		v, err := evalExpr(doc, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func wantArgs(op string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", op, n, len(args))
	}
	return nil
}

func evalOperator(doc bson.D, op string, raw any) (any, error) {
	switch op {
	case "$literal":
		return raw, nil
	case "$regexMatch":
		return evalRegexMatch(doc, raw)
	case "$trim", "$ltrim", "$rtrim":
		spec, ok := raw.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%s needs a document", op)
		}
		in, _ := lookup(spec, "input")
		v, err := evalExpr(doc, in)
		if err != nil || v == nil {
			return nil, err
		}
		s, _ := v.(string)
		switch op {
		case "$ltrim":
			return strings.TrimLeft(s, " \t\n"), nil
		case "$rtrim":
			return strings.TrimRight(s, " \t\n"), nil
		}
		return strings.TrimSpace(s), nil
	case "$cond":
		if spec, ok := raw.(bson.D); ok {
			ifv, _ := lookup(spec, "if")
			thenv, _ := lookup(spec, "then")
			elsev, _ := lookup(spec, "else")
			raw = bson.A{ifv, thenv, elsev}
		}
		list, ok := raw.(bson.A)
		if !ok || len(list) != 3 {
			return nil, fmt.Errorf("$cond takes 3 arguments")
		}
		c, err := evalExpr(doc, list[0])
		if err != nil {
			return nil, err
		}
		if truthy(c) {
			return evalExpr(doc, list[1])
		}
		return evalExpr(doc, list[2])
	}

	args, err := operands(doc, raw)
	if err != nil {
		return nil, err
	}

	switch op {
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		if err := wantArgs(op, args, 2); err != nil {
			return nil, err
		}
		c := compareValues(args[0], args[1])
		switch op {
		case "$eq":
			return c == 0, nil
		case "$ne":
			return c != 0, nil
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		}
		return c <= 0, nil
	case "$and":
		for _, a := range args {
			if !truthy(a) {
				return false, nil
			}
		}
		return true, nil
	case "$or":
		for _, a := range args {
			if truthy(a) {
				return true, nil
			}
		}
		return false, nil
	case "$not":
		if err := wantArgs(op, args, 1); err != nil {
			return nil, err
		}
		return !truthy(args[0]), nil
	case "$in":
		if err := wantArgs(op, args, 2); err != nil {
			return nil, err
		}
		list, ok := args[1].(bson.A)
		if !ok {
			return nil, fmt.Errorf("$in needs an array")
		}
		return anyEqual(list, args[0]), nil
	case "$ifNull":
		for _, a := range args[:len(args)-1] {
			if a != nil {
				return a, nil
			}
		}
		return args[len(args)-1], nil
	case "$add", "$subtract", "$multiply", "$divide", "$mod", "$pow":
		return evalArith(op, args)
	case "$abs", "$ceil", "$floor", "$sqrt", "$round", "$exp", "$ln", "$log10":
		return evalMath(op, args)
	case "$toUpper", "$toLower":
		if args[0] == nil {
			return "", nil
		}
		s := fmt.Sprint(args[0])
		if op == "$toUpper" {
			return strings.ToUpper(s), nil
		}
		return strings.ToLower(s), nil
	case "$concat":
		var b strings.Builder
		for _, a := range args {
			if a == nil {
				return nil, nil
			}
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("$concat only supports strings, got %T", a)
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case "$strLenCP":
		s, _ := args[0].(string)
		return int64(utf8.RuneCountInString(s)), nil
	case "$substrCP":
		if err := wantArgs(op, args, 3); err != nil {
			return nil, err
		}
		r := []rune(fmt.Sprint(args[0]))
		start, _ := toFloat(args[1])
		n, _ := toFloat(args[2])
		from := clamp(int(start), 0, len(r))
		to := clamp(from+int(n), from, len(r))
		return string(r[from:to]), nil
	case "$indexOfCP":
		s, _ := args[0].(string)
		sub, _ := args[1].(string)
		r := []rune(s)
		from := 0
		if len(args) > 2 {
			f, _ := toFloat(args[2])
			from = clamp(int(f), 0, len(r))
		}
		idx := strings.Index(string(r[from:]), sub)
		if idx < 0 {
			return int64(-1), nil
		}
		return int64(from + utf8.RuneCountInString(string(r[from:])[:idx])), nil
	case "$size":
		arr, ok := args[0].(bson.A)
		if !ok {
			return nil, fmt.Errorf("$size needs an array, got %T", args[0])
		}
		return int64(len(arr)), nil
	case "$sum", "$avg", "$min", "$max":
		vals := args
		if len(args) == 1 {
			if arr, ok := args[0].(bson.A); ok {
				vals = arr
			}
		}
		acc := newAccumulator(op)
		for _, v := range vals {
			if err := acc.add(v); err != nil {
				return nil, err
			}
		}
		return acc.result(), nil
	case "$year", "$month", "$dayOfMonth", "$dayOfWeek", "$dayOfYear", "$hour", "$minute", "$second", "$week":
		if args[0] == nil {
			return nil, nil
		}
		t, ok := toTime(args[0])
		if !ok {
			return nil, fmt.Errorf("%s needs a date, got %T", op, args[0])
		}
		return int64(datePart(op, t)), nil
	}
	return nil, fmt.Errorf("unsupported expression operator %s", op)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func datePart(op string, t time.Time) int {
	switch op {
	case "$year":
		return t.Year()
	case "$month":
		return int(t.Month())
	case "$dayOfMonth":
		return t.Day()
	case "$dayOfWeek":
		return int(t.Weekday()) + 1
	case "$dayOfYear":
		return t.YearDay()
	case "$hour":
		return t.Hour()
	case "$minute":
		return t.Minute()
	case "$second":
		return t.Second()
	}
	// $week counts Sunday-started weeks, the first partial week being 0.
	return (t.YearDay() + 6 - int(t.Weekday())) / 7
}

func evalRegexMatch(doc bson.D, raw any) (any, error) {
	spec, ok := raw.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$regexMatch needs a document")
	}
	in, _ := lookup(spec, "input")
	re, _ := lookup(spec, "regex")
	opts, _ := lookup(spec, "options")
	v, err := evalExpr(doc, in)
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return false, nil
	}
	pattern, _ := re.(string)
	options, _ := opts.(string)
	rx, err := compileRegex(pattern, options)
	if err != nil {
		return nil, err
	}
	return rx.MatchString(s), nil
}

func evalArith(op string, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s needs arguments", op)
	}
	integral := true
	nums := make([]float64, len(args))
	for i, a := range args {
		if a == nil {
			return nil, nil
		}
		f, ok := toFloat(a)
		if !ok {
			return nil, fmt.Errorf("%s only supports numbers, got %T", op, a)
		}
		nums[i] = f
		integral = integral && isInteger(a)
	}
	acc := nums[0]
	for _, n := range nums[1:] {
		switch op {
		case "$add":
			acc += n
		case "$subtract":
			acc -= n
		case "$multiply":
			acc *= n
		case "$divide":
			if n == 0 {
				return nil, fmt.Errorf("can't $divide by zero")
			}
			acc /= n
			integral = false
		case "$mod":
			if n == 0 {
				return nil, fmt.Errorf("can't $mod by zero")
			}
			acc = math.Mod(acc, n)
		case "$pow":
			acc = math.Pow(acc, n)
		}
	}
	return numberResult(acc, integral), nil
}

func evalMath(op string, args []any) (any, error) {
	if args[0] == nil {
		return nil, nil
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("%s only supports numbers, got %T", op, args[0])
	}
	integral := isInteger(args[0])
	switch op {
	case "$abs":
		return numberResult(math.Abs(f), integral), nil
	case "$ceil":
		return numberResult(math.Ceil(f), integral), nil
	case "$floor":
		return numberResult(math.Floor(f), integral), nil
	case "$sqrt":
		return math.Sqrt(f), nil
	case "$exp":
		return math.Exp(f), nil
	case "$ln":
		return math.Log(f), nil
	case "$log10":
		return math.Log10(f), nil
	}
	places := 0.0
	if len(args) > 1 {
		places, _ = toFloat(args[1])
	}
	scale := math.Pow(10, places)
	return numberResult(math.RoundToEven(f*scale)/scale, integral), nil
}

// accumulator folds values for $group and the array forms of $sum and
// friends.
type accumulator struct {
	op       string
	sum      float64
	count    int
	integral bool
	best     any
	set      bson.A
	seen     map[string]bool
}

func newAccumulator(op string) *accumulator {
	return &accumulator{op: op, integral: true, seen: map[string]bool{}}
}

func (a *accumulator) add(v any) error {
	switch a.op {
	case "$sum", "$avg":
		if f, ok := toFloat(v); ok {
			a.sum += f
			a.count++
			a.integral = a.integral && isInteger(v)
		}
	case "$min", "$max":
		if v == nil {
			return nil
		}
		if a.best == nil {
			a.best = v
			return nil
		}
		c := compareValues(v, a.best)
		if (a.op == "$min" && c < 0) || (a.op == "$max" && c > 0) {
			a.best = v
		}
	case "$addToSet":
		if v == nil {
			return nil
		}
		k := keyString(v)
		if !a.seen[k] {
			a.seen[k] = true
			a.set = append(a.set, v)
		}
	case "$first":
		if a.count == 0 {
			a.best = v
		}
		a.count++
	case "$push":
		a.set = append(a.set, v)
	default:
		return fmt.Errorf("unsupported accumulator %s", a.op)
	}
	return nil
}

func (a *accumulator) result() any {
	switch a.op {
	case "$sum":
		return numberResult(a.sum, a.integral)
	case "$avg":
		if a.count == 0 {
			return nil
		}
		return a.sum / float64(a.count)
	case "$addToSet", "$push":
		if a.set == nil {
			return bson.A{}
		}
		return a.set
	}
	return a.best
}

// runPipeline applies aggregation stages to docs.
func runPipeline(docs []bson.D, pipeline []bson.D) ([]bson.D, error) {
	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("stage must have exactly one key: %v", stage)
		}
		var err error
		switch s := stage[0]; s.Key {
		case "$match":
			docs, err = stageMatch(docs, s.Value)
		case "$unwind":
			docs, err = stageUnwind(docs, s.Value)
		case "$group":
			docs, err = stageGroup(docs, s.Value)
		case "$project":
			docs, err = stageProject(docs, s.Value)
		case "$sort":
			docs, err = stageSort(docs, s.Value)
		case "$skip", "$limit":
			n, ok := toFloat(s.Value)
			if !ok || n < 0 {
				return nil, fmt.Errorf("%s needs a non-negative number", s.Key)
			}
			k := clamp(int(n), 0, len(docs))
			if s.Key == "$skip" {
				docs = docs[k:]
			} else {
				docs = docs[:k]
			}
		default:
			err = fmt.Errorf("unsupported stage %s", s.Key)
		}
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func stageMatch(docs []bson.D, raw any) ([]bson.D, error) {
	filter, ok := raw.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$match needs a document")
	}
	var out []bson.D
	for _, d := range docs {
		m, err := matchFilter(d, filter)
		if err != nil {
			return nil, err
		}
		if m {
			out = append(out, d)
		}
	}
	return out, nil
}

func stageUnwind(docs []bson.D, raw any) ([]bson.D, error) {
	path, preserve := "", false
	switch x := raw.(type) {
	case string:
		path = x
	case bson.D:
		p, _ := lookup(x, "path")
		path, _ = p.(string)
		pv, _ := lookup(x, "preserveNullAndEmptyArrays")
		preserve = truthy(pv)
	}
	if !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("$unwind path must start with $")
	}
	path = path[1:]
	var out []bson.D
	for _, d := range docs {
		v := fieldValue(d, strings.Split(path, "."))
		arr, isArr := v.(bson.A)
		switch {
		case isArr && len(arr) > 0:
			for _, elem := range arr {
				out = append(out, setField(cloneDoc(d), path, elem))
			}
		case isArr:
			if preserve {
				out = append(out, unsetField(cloneDoc(d), path))
			}
		case v == nil:
			if preserve {
				out = append(out, d)
			}
		default:
			out = append(out, d)
		}
	}
	return out, nil
}

func stageGroup(docs []bson.D, raw any) ([]bson.D, error) {
	spec, ok := raw.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$group needs a document")
	}
	idExpr, ok := lookup(spec, "_id")
	if !ok {
		return nil, fmt.Errorf("$group needs _id")
	}

	type group struct {
		id   any
		accs []*accumulator
	}
	var order []*group
	groups := map[string]*group{}
	for _, d := range docs {
		id, err := evalExpr(d, idExpr)
		if err != nil {
			return nil, err
		}
		k := keyString(id)
		g, ok := groups[k]
		if !ok {
			g = &group{id: id}
			for _, e := range spec {
				if e.Key == "_id" {
					continue
				}
				acc, ok := e.Value.(bson.D)
				if !ok || len(acc) != 1 {
					return nil, fmt.Errorf("accumulator %s must be a single-key document", e.Key)
				}
				g.accs = append(g.accs, newAccumulator(acc[0].Key))
			}
			groups[k] = g
			order = append(order, g)
		}
		i := 0
		for _, e := range spec {
			if e.Key == "_id" {
				continue
			}
			acc := e.Value.(bson.D)
			v, err := evalExpr(d, acc[0].Value)
			if err != nil {
				return nil, err
			}
			if err := g.accs[i].add(v); err != nil {
				return nil, err
			}
			i++
		}
	}

	out := make([]bson.D, 0, len(order))
	for _, g := range order {
		row := bson.D{{Key: "_id", Value: g.id}}
		i := 0
		for _, e := range spec {
			if e.Key == "_id" {
				continue
			}
			row = append(row, bson.E{Key: e.Key, Value: g.accs[i].result()})
			i++
		}
		out = append(out, row)
	}
	return out, nil
}

func stageProject(docs []bson.D, raw any) ([]bson.D, error) {
	spec, ok := raw.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$project needs a document")
	}
	out := make([]bson.D, 0, len(docs))
	for _, d := range docs {
		row := bson.D{}
		if id, ok := lookup(d, "_id"); ok {
			row = append(row, bson.E{Key: "_id", Value: id})
		}
		for _, e := range spec {
			var v any
			if isInclusion(e.Value) {
				if e.Key == "_id" {
					continue
				}
				vals := resolvePath(d, strings.Split(e.Key, "."))
				if len(vals) == 0 {
					continue
				}
				v = vals[0]
			} else {
				var err error
				if v, err = evalExpr(d, e.Value); err != nil {
					return nil, err
				}
			}
			row = setField(row, e.Key, v)
		}
		out = append(out, row)
	}
	return out, nil
}

func isInclusion(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int, int32, int64, float64:
		return truthy(x)
	}
	return false
}

func stageSort(docs []bson.D, raw any) ([]bson.D, error) {
	spec, ok := raw.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$sort needs a document")
	}
	out := append([]bson.D(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range spec {
			a := fieldValue(out[i], strings.Split(k.Key, "."))
			b := fieldValue(out[j], strings.Split(k.Key, "."))
			c := compareValues(a, b)
			if dir, _ := toFloat(k.Value); dir < 0 {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out, nil
}

// setField writes v at a dotted path of plain document fields.
func setField(d bson.D, path string, v any) bson.D {
	head, rest, nested := strings.Cut(path, ".")
	for i := range d {
		if d[i].Key != head {
			continue
		}
		if !nested {
			d[i].Value = v
			return d
		}
		sub, _ := d[i].Value.(bson.D)
		d[i].Value = setField(sub, rest, v)
		return d
	}
	if !nested {
		return append(d, bson.E{Key: head, Value: v})
	}
	return append(d, bson.E{Key: head, Value: setField(nil, rest, v)})
}

func unsetField(d bson.D, path string) bson.D {
	head, rest, nested := strings.Cut(path, ".")
	for i := range d {
		if d[i].Key != head {
			continue
		}
		if !nested {
			return append(d[:i:i], d[i+1:]...)
		}
		if sub, ok := d[i].Value.(bson.D); ok {
			d[i].Value = unsetField(sub, rest)
		}
		return d
	}
	return d
}
