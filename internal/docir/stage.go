package docir

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/ir"
)

// Stage is one step of an aggregation pipeline.
//
// This is a sealed interface - only types in this package implement it.
// Stage types, in the only order the select compiler emits them:
//   - Unwind: flatten a MERGE table's array
//   - Match: pre-group filter, then post-group (HAVING) filter
//   - Group: GROUP BY keys and aggregate accumulators
//   - Project: output field map
//   - Sort, Skip, Limit
type Stage interface {
	// Name is the stage operator, e.g. "$match".
	Name() string
	// BSON renders the stage as a single-key document.
	BSON() bson.D
}

// Unwind flattens the array at Path into one document per element.
type Unwind struct {
	Path string
	// PreserveNull keeps documents whose array is missing or empty,
	// as a LEFT OUTER join would.
	PreserveNull bool
}

func (*Unwind) Name() string { return "$unwind" }

func (s *Unwind) BSON() bson.D {
	if s.PreserveNull {
		return bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$" + s.Path},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}}
	}
	return bson.D{{Key: "$unwind", Value: "$" + s.Path}}
}

// Match filters documents. Having marks a post-group filter.
type Match struct {
	Filter Expr
	Having bool
}

func (*Match) Name() string { return "$match" }

func (s *Match) BSON() bson.D {
	return bson.D{{Key: "$match", Value: Filter(s.Filter)}}
}

// GroupKey is one component of a group's _id document.
type GroupKey struct {
	Name string
	Expr Expr
}

// Accumulator computes one aggregate per group.
type Accumulator struct {
	Name string
	// Op is the accumulator operator: $sum, $avg, $min, $max, $addToSet.
	Op   string
	Expr Expr
}

// Group groups documents. A nil ID groups every document together
// (_id: null), which is how a bare aggregate without GROUP BY compiles.
type Group struct {
	ID           []GroupKey
	Accumulators []Accumulator
}

func (*Group) Name() string { return "$group" }

func (s *Group) BSON() bson.D {
	var id any
	if len(s.ID) > 0 {
		keys := make(bson.D, 0, len(s.ID))
		for _, k := range s.ID {
			keys = append(keys, bson.E{Key: k.Name, Value: Agg(k.Expr)})
		}
		id = keys
	}
	body := bson.D{{Key: "_id", Value: id}}
	for _, a := range s.Accumulators {
		body = append(body, bson.E{Key: a.Name, Value: bson.D{{Key: a.Op, Value: Agg(a.Expr)}}})
	}
	return bson.D{{Key: "$group", Value: body}}
}

// ProjectField is one output field. Passthrough fields already exist under
// their output name and render as 1.
type ProjectField struct {
	Name        string
	Expr        Expr
	Passthrough bool
}

// Project shapes output documents.
type Project struct {
	Fields []ProjectField
}

func (*Project) Name() string { return "$project" }

func (s *Project) BSON() bson.D {
	body := make(bson.D, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Passthrough {
			body = append(body, bson.E{Key: f.Name, Value: 1})
			continue
		}
		body = append(body, bson.E{Key: f.Name, Value: projectValue(f.Expr)})
	}
	return bson.D{{Key: "$project", Value: body}}
}

// projectValue renders a projected expression. Numeric and boolean literals
// in $project mean include/exclude, so every literal is wrapped.
func projectValue(e Expr) any {
	if l, ok := e.(*Literal); ok {
		return bson.D{{Key: "$literal", Value: ir.ToBSON(l.Value)}}
	}
	return Agg(e)
}

// SortKey orders by one output field.
type SortKey struct {
	Name string
	Desc bool
}

// Sort orders documents by its keys in clause order.
type Sort struct {
	Keys []SortKey
}

func (*Sort) Name() string { return "$sort" }

func (s *Sort) BSON() bson.D {
	body := make(bson.D, 0, len(s.Keys))
	for _, k := range s.Keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		body = append(body, bson.E{Key: k.Name, Value: dir})
	}
	return bson.D{{Key: "$sort", Value: body}}
}

// Skip drops the first N documents.
type Skip struct {
	N int64
}

func (*Skip) Name() string { return "$skip" }

func (s *Skip) BSON() bson.D { return bson.D{{Key: "$skip", Value: s.N}} }

// Limit keeps at most N documents.
type Limit struct {
	N int64
}

func (*Limit) Name() string { return "$limit" }

func (s *Limit) BSON() bson.D { return bson.D{{Key: "$limit", Value: s.N}} }

// Column describes one result column of a pipeline.
type Column struct {
	// Key is the field name in the output document.
	Key string
	// Label is the column's display name: the alias, or the source text.
	Label string
	// Hidden columns exist only to sort by and are not returned.
	Hidden bool
	// CountLike columns read 0, not NULL, when a scalar aggregate sees no rows.
	CountLike bool
}

// Pipeline is a compiled SELECT.
type Pipeline struct {
	Collection string
	Stages     []Stage
	Columns    []Column
	// ScalarAggregate is set for aggregates without GROUP BY. Such a query
	// returns exactly one row even when no documents match.
	ScalarAggregate bool
}

// BSON renders the stage list as the driver expects it.
func (p *Pipeline) BSON() []bson.D {
	out := make([]bson.D, 0, len(p.Stages))
	for _, s := range p.Stages {
		out = append(out, s.BSON())
	}
	return out
}

// VisibleColumns returns the columns a caller sees, in order.
func (p *Pipeline) VisibleColumns() []Column {
	var out []Column
	for _, c := range p.Columns {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}
