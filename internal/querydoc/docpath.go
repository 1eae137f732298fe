package querydoc

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// setPath writes v at a dotted path, creating intermediate documents.
func setPath(doc bson.D, path string, v any) bson.D {
	head, rest, nested := strings.Cut(path, ".")
	for i := range doc {
		if doc[i].Key != head {
			continue
		}
		if !nested {
			doc[i].Value = v
			return doc
		}
		sub, _ := doc[i].Value.(bson.D)
		doc[i].Value = setPath(sub, rest, v)
		return doc
	}
	if !nested {
		return append(doc, bson.E{Key: head, Value: v})
	}
	return append(doc, bson.E{Key: head, Value: setPath(nil, rest, v)})
}

// lookupPath reads the value at a dotted path.
func lookupPath(doc bson.D, path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	for _, e := range doc {
		if e.Key != head {
			continue
		}
		if !nested {
			return e.Value, true
		}
		sub, ok := e.Value.(bson.D)
		if !ok {
			return nil, false
		}
		return lookupPath(sub, rest)
	}
	return nil, false
}

// cloneDoc deep-copies documents and arrays.
func cloneDoc(d bson.D) bson.D {
	if d == nil {
		return nil
	}
	out := make(bson.D, len(d))
	for i, e := range d {
		out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case bson.D:
		return cloneDoc(x)
	case bson.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// prefixFilter rewrites an element filter for use as an array filter bound
// to identifier id: {Quantity: 5} becomes {e.Quantity: 5}. Logical
// operators are rewritten recursively.
func prefixFilter(d bson.D, id string) bson.D {
	out := make(bson.D, 0, len(d))
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			out = append(out, bson.E{Key: id + "." + e.Key, Value: e.Value})
			continue
		}
		list, ok := e.Value.(bson.A)
		if !ok {
			out = append(out, e)
			continue
		}
		sub := make(bson.A, len(list))
		for i, item := range list {
			if doc, ok := item.(bson.D); ok {
				sub[i] = prefixFilter(doc, id)
			} else {
				sub[i] = item
			}
		}
		out = append(out, bson.E{Key: e.Key, Value: sub})
	}
	return out
}

// hasExprOperator reports whether a filter needs the aggregation engine.
// Such filters cannot be used inside $elemMatch or array filters.
func hasExprOperator(d bson.D) bool {
	for _, e := range d {
		if e.Key == "$expr" {
			return true
		}
		if list, ok := e.Value.(bson.A); ok && strings.HasPrefix(e.Key, "$") {
			for _, item := range list {
				if doc, ok := item.(bson.D); ok && hasExprOperator(doc) {
					return true
				}
			}
		}
	}
	return false
}
