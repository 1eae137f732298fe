package docir

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// EncodeOp serializes an op as canonical Extended JSON. Canonical form keeps
// BSON types exact, so a decoded op writes the same values.
func EncodeOp(op Op) ([]byte, error) {
	data, err := bson.MarshalExtJSON(op.BSON(), true, false)
	if err != nil {
		return nil, fmt.Errorf("encode %s op: %w", op.Kind(), err)
	}
	return data, nil
}

// DecodeOp parses an op written by EncodeOp.
func DecodeOp(data []byte) (Op, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(data, true, &d); err != nil {
		return nil, fmt.Errorf("decode op: %w", err)
	}
	m := make(bson.M, len(d))
	for _, e := range d {
		m[e.Key] = e.Value
	}

	kind, _ := m["op"].(string)
	coll, _ := m["collection"].(string)
	if coll == "" {
		return nil, fmt.Errorf("decode op: missing collection")
	}

	switch OpKind(kind) {
	case KindInsert:
		doc, err := docField(m, "document")
		if err != nil {
			return nil, err
		}
		return &Insert{Collection: coll, Doc: doc}, nil

	case KindUpdate:
		filter, err := docField(m, "filter")
		if err != nil {
			return nil, err
		}
		op := &Update{Collection: coll, Filter: filter}
		op.Upsert, _ = m["upsert"].(bool)
		op.Multi, _ = m["multi"].(bool)
		switch u := m["update"].(type) {
		case bson.D:
			op.Update = u
		case bson.A:
			stages, err := docList(u)
			if err != nil {
				return nil, fmt.Errorf("decode op: update pipeline: %w", err)
			}
			op.Update = stages
		default:
			return nil, fmt.Errorf("decode op: update has type %T", u)
		}
		if af, ok := m["arrayFilters"].(bson.A); ok {
			filters, err := docList(af)
			if err != nil {
				return nil, fmt.Errorf("decode op: arrayFilters: %w", err)
			}
			op.ArrayFilters = filters
		}
		return op, nil

	case KindDelete:
		filter, err := docField(m, "filter")
		if err != nil {
			return nil, err
		}
		multi, _ := m["multi"].(bool)
		return &Delete{Collection: coll, Filter: filter, Multi: multi}, nil

	case KindPushInto:
		parent, err := docField(m, "parentFilter")
		if err != nil {
			return nil, err
		}
		doc, err := docField(m, "document")
		if err != nil {
			return nil, err
		}
		field, _ := m["arrayField"].(string)
		return &PushInto{Collection: coll, ParentFilter: parent, ArrayField: field, Doc: doc}, nil

	case KindPullFrom:
		parent, err := docField(m, "parentFilter")
		if err != nil {
			return nil, err
		}
		filter, err := docField(m, "filter")
		if err != nil {
			return nil, err
		}
		field, _ := m["arrayField"].(string)
		return &PullFrom{Collection: coll, ParentFilter: parent, ArrayField: field, Filter: filter}, nil

	default:
		return nil, fmt.Errorf("decode op: unknown kind %q", kind)
	}
}

func docField(m bson.M, key string) (bson.D, error) {
	if m[key] == nil {
		return bson.D{}, nil
	}
	d, ok := m[key].(bson.D)
	if !ok {
		return nil, fmt.Errorf("decode op: %s is %T, want document", key, m[key])
	}
	return d, nil
}

func docList(a bson.A) ([]bson.D, error) {
	out := make([]bson.D, 0, len(a))
	for i, v := range a {
		d, ok := v.(bson.D)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, want document", i, v)
		}
		out = append(out, d)
	}
	return out, nil
}
