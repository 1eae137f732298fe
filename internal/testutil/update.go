package testutil

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// updateContext resolves positional path segments for one document.
type updateContext struct {
	filter       bson.D
	arrayFilters map[string]bson.D
}

func newUpdateContext(filter bson.D, arrayFilters []bson.D) (*updateContext, error) {
	u := &updateContext{filter: filter, arrayFilters: map[string]bson.D{}}
	for _, af := range arrayFilters {
		for _, e := range af {
			id, field, _ := strings.Cut(e.Key, ".")
			cond := u.arrayFilters[id]
			if field == "" {
				return nil, fmt.Errorf("array filter %q must address a field", e.Key)
			}
			u.arrayFilters[id] = append(cond, bson.E{Key: field, Value: e.Value})
		}
	}
	return u, nil
}

// positional finds the first element of the array at path matched by the
// query filter, for the $ operator.
func (u *updateContext) positional(arr bson.A, path string) (int, error) {
	for i, elem := range arr {
		for _, e := range u.filter {
			switch {
			case e.Key == path:
				ops, ok := isOperatorDoc(e.Value)
				if !ok || ops[0].Key != "$elemMatch" {
					continue
				}
				cond, _ := ops[0].Value.(bson.D)
				if m, err := matchElement(elem, cond); err != nil {
					return 0, err
				} else if m {
					return i, nil
				}
			case strings.HasPrefix(e.Key, path+"."):
				d, ok := elem.(bson.D)
				if !ok {
					continue
				}
				if m, err := matchField(d, strings.TrimPrefix(e.Key, path+"."), e.Value); err != nil {
					return 0, err
				} else if m {
					return i, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("positional operator did not find a match for %s", path)
}

func (u *updateContext) elementSelected(seg string, elem any) (bool, error) {
	if seg == "$[]" {
		return true, nil
	}
	id := strings.TrimSuffix(strings.TrimPrefix(seg, "$["), "]")
	cond, ok := u.arrayFilters[id]
	if !ok {
		return false, fmt.Errorf("no array filter for identifier %q", id)
	}
	d, ok := elem.(bson.D)
	if !ok {
		return false, nil
	}
	return matchFilter(d, cond)
}

// modify rewrites the value at a path, which may contain $, $[] and $[id]
// segments. fn receives the old value (nil if missing) and returns the new.
func (u *updateContext) modify(v any, segs []string, walked string, fn func(old any, exists bool) (any, error)) (any, error) {
	if len(segs) == 0 {
		return fn(v, true)
	}
	seg := segs[0]
	next := seg
	if walked != "" {
		next = walked + "." + seg
	}

	switch x := v.(type) {
	case bson.A:
		switch {
		case seg == "$":
			i, err := u.positional(x, walked)
			if err != nil {
				return nil, err
			}
			nv, err := u.modify(x[i], segs[1:], walked, fn)
			if err != nil {
				return nil, err
			}
			x[i] = nv
			return x, nil
		case strings.HasPrefix(seg, "$["):
			for i, elem := range x {
				sel, err := u.elementSelected(seg, elem)
				if err != nil {
					return nil, err
				}
				if !sel {
					continue
				}
				nv, err := u.modify(elem, segs[1:], walked, fn)
				if err != nil {
					return nil, err
				}
				x[i] = nv
			}
			return x, nil
		}
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(x) {
			return nil, fmt.Errorf("cannot address array element %q", seg)
		}
		nv, err := u.modify(x[idx], segs[1:], next, fn)
		if err != nil {
			return nil, err
		}
		x[idx] = nv
		return x, nil
	case bson.D, nil:
		d, _ := x.(bson.D)
		for i := range d {
			if d[i].Key != seg {
				continue
			}
			nv, err := u.modify(d[i].Value, segs[1:], next, fn)
			if err != nil {
				return nil, err
			}
			d[i].Value = nv
			return d, nil
		}
		if strings.HasPrefix(seg, "$") {
			return nil, fmt.Errorf("positional segment %q needs an array", seg)
		}
		var nv any
		var err error
		if len(segs) == 1 {
			nv, err = fn(nil, false)
		} else {
			nv, err = u.modify(nil, segs[1:], next, fn)
		}
		if err != nil {
			return nil, err
		}
		return append(d, bson.E{Key: seg, Value: nv}), nil
	}
	return nil, fmt.Errorf("cannot traverse %T at %q", v, seg)
}

// applyUpdate applies an operator document or an update pipeline to doc.
func applyUpdate(doc bson.D, update any, u *updateContext) (bson.D, error) {
	switch x := update.(type) {
	case []bson.D:
		return applyPipelineUpdate(doc, x)
	case bson.A:
		stages := make([]bson.D, 0, len(x))
		for _, s := range x {
			d, ok := s.(bson.D)
			if !ok {
				return nil, fmt.Errorf("update pipeline stage must be a document")
			}
			stages = append(stages, d)
		}
		return applyPipelineUpdate(doc, stages)
	case bson.D:
		var err error
		for _, op := range x {
			fields, ok := op.Value.(bson.D)
			if !ok {
				return nil, fmt.Errorf("%s needs a document", op.Key)
			}
			for _, f := range fields {
				var fn func(any, bool) (any, error)
				val := cloneValue(f.Value)
				switch op.Key {
				case "$set":
					fn = func(any, bool) (any, error) { return val, nil }
				case "$unset":
					doc = unsetField(doc, f.Key)
					continue
				case "$push":
					fn = func(old any, exists bool) (any, error) {
						if !exists || old == nil {
							return bson.A{val}, nil
						}
						arr, ok := old.(bson.A)
						if !ok {
							return nil, fmt.Errorf("$push target %s is not an array", f.Key)
						}
						return append(arr, val), nil
					}
				case "$pull":
					fn = func(old any, exists bool) (any, error) {
						arr, ok := old.(bson.A)
						if !exists || !ok {
							return old, nil
						}
						return pull(arr, val)
					}
				default:
					return nil, fmt.Errorf("unsupported update operator %s", op.Key)
				}
				var nv any
				nv, err = u.modify(doc, strings.Split(f.Key, "."), "", fn)
				if err != nil {
					return nil, err
				}
				doc = nv.(bson.D)
			}
		}
		return doc, nil
	}
	return nil, fmt.Errorf("unsupported update %T", update)
}

func pull(arr bson.A, cond any) (bson.A, error) {
	out := bson.A{}
	for _, elem := range arr {
		var m bool
		switch c := cond.(type) {
		case bson.D:
			var err error
			if m, err = matchElement(elem, c); err != nil {
				return nil, err
			}
		default:
			m = equalValues(elem, c)
		}
		if !m {
			out = append(out, elem)
		}
	}
	return out, nil
}

func applyPipelineUpdate(doc bson.D, stages []bson.D) (bson.D, error) {
	for _, stage := range stages {
		if len(stage) != 1 || (stage[0].Key != "$set" && stage[0].Key != "$addFields") {
			return nil, fmt.Errorf("unsupported update pipeline stage %v", stage)
		}
		fields, ok := stage[0].Value.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%s needs a document", stage[0].Key)
		}
		// Every expression sees the document as it was before the stage.
		before := cloneDoc(doc)
		for _, f := range fields {
			v, err := evalExpr(before, f.Value)
			if err != nil {
				return nil, err
			}
			doc = setField(doc, f.Key, v)
		}
	}
	return doc, nil
}
