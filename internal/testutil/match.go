package testutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// resolvePath collects the values at a dotted path, descending into arrays.
func resolvePath(v any, segs []string) []any {
	if len(segs) == 0 {
		return []any{v}
	}
	switch x := v.(type) {
	case bson.D:
		if child, ok := lookup(x, segs[0]); ok {
			return resolvePath(child, segs[1:])
		}
	case bson.A:
		if idx, err := strconv.Atoi(segs[0]); err == nil {
			if idx >= 0 && idx < len(x) {
				return resolvePath(x[idx], segs[1:])
			}
			return nil
		}
		var out []any
		for _, elem := range x {
			out = append(out, resolvePath(elem, segs)...)
		}
		return out
	}
	return nil
}

// candidates are the values a field condition is tested against: the
// values at the path plus the elements of any array among them. A missing
// field is tested as null.
func candidates(doc bson.D, path string) []any {
	vals := resolvePath(doc, strings.Split(path, "."))
	if len(vals) == 0 {
		return []any{nil}
	}
	out := append([]any(nil), vals...)
	for _, v := range vals {
		if arr, ok := v.(bson.A); ok {
			out = append(out, arr...)
		}
	}
	return out
}

// matchFilter evaluates a query filter against a document.
func matchFilter(doc bson.D, filter bson.D) (bool, error) {
	for _, e := range filter {
		ok, err := matchEntry(doc, e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchEntry(doc bson.D, e bson.E) (bool, error) {
	switch e.Key {
	case "$and", "$or", "$nor":
		list, ok := e.Value.(bson.A)
		if !ok {
			return false, fmt.Errorf("%s needs an array", e.Key)
		}
		for _, item := range list {
			sub, ok := item.(bson.D)
			if !ok {
				return false, fmt.Errorf("%s needs documents", e.Key)
			}
			m, err := matchFilter(doc, sub)
			if err != nil {
				return false, err
			}
			switch {
			case e.Key == "$and" && !m:
				return false, nil
			case e.Key == "$or" && m:
				return true, nil
			case e.Key == "$nor" && m:
				return false, nil
			}
		}
		return e.Key != "$or", nil
	case "$expr":
		v, err := evalExpr(doc, e.Value)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	}
	if strings.HasPrefix(e.Key, "$") {
		return false, fmt.Errorf("unsupported query operator %s", e.Key)
	}
	return matchField(doc, e.Key, e.Value)
}

func isOperatorDoc(v any) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 || !strings.HasPrefix(d[0].Key, "$") {
		return nil, false
	}
	return d, true
}

func matchField(doc bson.D, path string, cond any) (bool, error) {
	if ops, ok := isOperatorDoc(cond); ok {
		for _, op := range ops {
			m, err := matchOperator(doc, path, op)
			if err != nil || !m {
				return false, err
			}
		}
		return true, nil
	}
	if re, ok := cond.(primitive.Regex); ok {
		return matchRegex(candidates(doc, path), re)
	}
	return anyEqual(candidates(doc, path), cond), nil
}

func anyEqual(vals []any, want any) bool {
	for _, v := range vals {
		if equalValues(v, want) {
			return true
		}
	}
	return false
}

func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	flags := ""
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	return regexp.Compile(pattern)
}

func matchRegex(vals []any, re primitive.Regex) (bool, error) {
	rx, err := compileRegex(re.Pattern, re.Options)
	if err != nil {
		return false, err
	}
	for _, v := range vals {
		if s, ok := v.(string); ok && rx.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

func matchOperator(doc bson.D, path string, op bson.E) (bool, error) {
	vals := candidates(doc, path)
	switch op.Key {
	case "$eq":
		return anyEqual(vals, op.Value), nil
	case "$ne":
		return !anyEqual(vals, op.Value), nil
	case "$gt", "$gte", "$lt", "$lte":
		for _, v := range vals {
			if v == nil || typeRank(v) != typeRank(op.Value) {
				continue
			}
			c := compareValues(v, op.Value)
			if (op.Key == "$gt" && c > 0) || (op.Key == "$gte" && c >= 0) ||
				(op.Key == "$lt" && c < 0) || (op.Key == "$lte" && c <= 0) {
				return true, nil
			}
		}
		return false, nil
	case "$in", "$nin":
		list, ok := op.Value.(bson.A)
		if !ok {
			return false, fmt.Errorf("%s needs an array", op.Key)
		}
		found := false
		for _, want := range list {
			if re, ok := want.(primitive.Regex); ok {
				m, err := matchRegex(vals, re)
				if err != nil {
					return false, err
				}
				found = found || m
				continue
			}
			if anyEqual(vals, want) {
				found = true
			}
		}
		return found == (op.Key == "$in"), nil
	case "$not":
		m, err := matchField(doc, path, op.Value)
		return !m, err
	case "$exists":
		present := len(resolvePath(doc, strings.Split(path, "."))) > 0
		return present == truthy(op.Value), nil
	case "$elemMatch":
		sub, ok := op.Value.(bson.D)
		if !ok {
			return false, fmt.Errorf("$elemMatch needs a document")
		}
		for _, v := range resolvePath(doc, strings.Split(path, ".")) {
			arr, ok := v.(bson.A)
			if !ok {
				continue
			}
			for _, elem := range arr {
				m, err := matchElement(elem, sub)
				if err != nil {
					return false, err
				}
				if m {
					return true, nil
				}
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported query operator %s", op.Key)
}

// matchElement tests an array element against an element condition: a
// query filter for documents, an operator document for scalars.
func matchElement(elem any, cond bson.D) (bool, error) {
	if ops, ok := isOperatorDoc(cond); ok {
		return matchField(bson.D{{Key: "v", Value: elem}}, "v", ops)
	}
	d, ok := elem.(bson.D)
	if !ok {
		return false, nil
	}
	return matchFilter(d, cond)
}
