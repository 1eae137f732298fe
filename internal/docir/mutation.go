package docir

import "go.mongodb.org/mongo-driver/bson"

// OpKind names a mutation operation variant.
type OpKind string

const (
	KindInsert   OpKind = "insert"
	KindUpdate   OpKind = "update"
	KindDelete   OpKind = "delete"
	KindPushInto OpKind = "push_into"
	KindPullFrom OpKind = "pull_from"
)

// Op is one document mutation.
//
// This is a sealed interface - only types in this package implement it.
// Filters and documents are already rendered; an Op is ready to hand to a
// store as-is.
type Op interface {
	Kind() OpKind
	// Target is the collection the op writes to.
	Target() string
	// Idempotent reports whether applying the op twice leaves the same
	// state as applying it once. Only idempotent ops are replayed.
	Idempotent() bool
	// BSON describes the op as one document, for explain and the journal.
	BSON() bson.D
	sealedOp()
}

// Insert adds one document.
type Insert struct {
	Collection string
	Doc        bson.D
}

func (*Insert) Kind() OpKind     { return KindInsert }
func (o *Insert) Target() string { return o.Collection }
func (*Insert) Idempotent() bool { return false }
func (*Insert) sealedOp()        {}

func (o *Insert) BSON() bson.D {
	return bson.D{
		{Key: "op", Value: string(KindInsert)},
		{Key: "collection", Value: o.Collection},
		{Key: "document", Value: o.Doc},
	}
}

// Update modifies documents matching Filter.
//
// Update holds either an operator document ({$set: ...}) or, for SET values
// computed from other fields, an update pipeline ([]bson.D).
type Update struct {
	Collection   string
	Filter       bson.D
	Update       any
	Upsert       bool
	Multi        bool
	ArrayFilters []bson.D
}

func (*Update) Kind() OpKind     { return KindUpdate }
func (o *Update) Target() string { return o.Collection }
func (*Update) sealedOp()        {}

// Idempotent is true for operator updates that only $set or $unset fields.
// Pipeline updates may read the fields they write.
func (o *Update) Idempotent() bool {
	doc, ok := o.Update.(bson.D)
	if !ok {
		return false
	}
	for _, e := range doc {
		if e.Key != "$set" && e.Key != "$unset" {
			return false
		}
	}
	return true
}

func (o *Update) BSON() bson.D {
	d := bson.D{
		{Key: "op", Value: string(KindUpdate)},
		{Key: "collection", Value: o.Collection},
		{Key: "filter", Value: o.Filter},
		{Key: "update", Value: o.Update},
		{Key: "upsert", Value: o.Upsert},
		{Key: "multi", Value: o.Multi},
	}
	if len(o.ArrayFilters) > 0 {
		d = append(d, bson.E{Key: "arrayFilters", Value: o.ArrayFilters})
	}
	return d
}

// Delete removes documents matching Filter.
type Delete struct {
	Collection string
	Filter     bson.D
	Multi      bool
}

func (*Delete) Kind() OpKind     { return KindDelete }
func (o *Delete) Target() string { return o.Collection }
func (*Delete) Idempotent() bool { return true }
func (*Delete) sealedOp()        {}

func (o *Delete) BSON() bson.D {
	return bson.D{
		{Key: "op", Value: string(KindDelete)},
		{Key: "collection", Value: o.Collection},
		{Key: "filter", Value: o.Filter},
		{Key: "multi", Value: o.Multi},
	}
}

// PushInto appends Doc to the array at ArrayField of the parent document
// matched by ParentFilter. It never creates the parent.
type PushInto struct {
	Collection   string
	ParentFilter bson.D
	ArrayField   string
	Doc          bson.D
}

func (*PushInto) Kind() OpKind     { return KindPushInto }
func (o *PushInto) Target() string { return o.Collection }
func (*PushInto) Idempotent() bool { return false }
func (*PushInto) sealedOp()        {}

func (o *PushInto) BSON() bson.D {
	return bson.D{
		{Key: "op", Value: string(KindPushInto)},
		{Key: "collection", Value: o.Collection},
		{Key: "parentFilter", Value: o.ParentFilter},
		{Key: "arrayField", Value: o.ArrayField},
		{Key: "document", Value: o.Doc},
	}
}

// UpdateDoc is the update operator document PushInto applies.
func (o *PushInto) UpdateDoc() bson.D {
	return bson.D{{Key: "$push", Value: bson.D{{Key: o.ArrayField, Value: o.Doc}}}}
}

// PullFrom removes the elements matching Filter from the array at
// ArrayField of every parent document matched by ParentFilter.
type PullFrom struct {
	Collection   string
	ParentFilter bson.D
	ArrayField   string
	Filter       bson.D
}

func (*PullFrom) Kind() OpKind     { return KindPullFrom }
func (o *PullFrom) Target() string { return o.Collection }
func (*PullFrom) Idempotent() bool { return true }
func (*PullFrom) sealedOp()        {}

func (o *PullFrom) BSON() bson.D {
	return bson.D{
		{Key: "op", Value: string(KindPullFrom)},
		{Key: "collection", Value: o.Collection},
		{Key: "parentFilter", Value: o.ParentFilter},
		{Key: "arrayField", Value: o.ArrayField},
		{Key: "filter", Value: o.Filter},
	}
}

// UpdateDoc is the update operator document PullFrom applies.
func (o *PullFrom) UpdateDoc() bson.D {
	return bson.D{{Key: "$pull", Value: bson.D{{Key: o.ArrayField, Value: o.Filter}}}}
}

// Mutation is a compiled INSERT, UPDATE or DELETE.
//
// Ops run first, in order. FanOut ops refresh denormalized copies of the
// rows Ops changed; there is one per referencing document, and they are
// independent of each other.
type Mutation struct {
	Statement string
	Table     string
	Ops       []Op
	FanOut    []Op
}

// All returns the primary ops followed by the fan-out ops.
func (m *Mutation) All() []Op {
	out := make([]Op, 0, len(m.Ops)+len(m.FanOut))
	out = append(out, m.Ops...)
	return append(out, m.FanOut...)
}
