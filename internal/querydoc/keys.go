package querydoc

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/ir"
	"github.com/roach88/docbridge/internal/schema"
)

// rowValues holds one row's constants by canonical column name.
type rowValues map[string]ir.Value

func (r rowValues) get(t *schema.Table, column string) (ir.Value, bool) {
	col, ok := t.Column(column)
	if !ok {
		return nil, false
	}
	v, ok := r[col.Name]
	return v, ok
}

// keyValue builds a document key from the named columns: the bare value for
// one column, a document in column order for several. names are the field
// names of a composite key.
func keyValue(construct string, names, columns []string, t *schema.Table, vals rowValues) (any, error) {
	present := 0
	parts := make([]ir.Value, len(columns))
	for i, c := range columns {
		if v, ok := vals.get(t, c); ok {
			parts[i] = v
			present++
		}
	}
	if present != len(columns) {
		return nil, ambiguousKey(construct, len(columns), present)
	}
	if len(parts) == 1 {
		return ir.ToBSON(parts[0]), nil
	}
	doc := make(bson.D, len(parts))
	for i, v := range parts {
		doc[i] = bson.E{Key: names[i], Value: ir.ToBSON(v)}
	}
	return doc, nil
}

// primaryKey is the _id of t's row.
func primaryKey(t *schema.Table, vals rowValues) (any, error) {
	keys := t.KeyColumns()
	return keyValue(t.Name, keys, keys, t, vals)
}

// collectionOf names the collection storing t's rows.
func (c *Compiler) collectionOf(t *schema.Table) string {
	return c.cat.RootOf(t).Collection
}

// referenceValue is the stored form of a foreign key: {$ref, $id}.
func (c *Compiler) referenceValue(target *schema.Table, key any) bson.D {
	return bson.D{
		{Key: schema.RefCollectionField, Value: c.collectionOf(target)},
		{Key: schema.RefKeyField, Value: key},
	}
}

// allNull reports whether every listed column is explicitly NULL.
func allNull(t *schema.Table, columns []string, vals rowValues) bool {
	for _, c := range columns {
		v, ok := vals.get(t, c)
		if !ok || !ir.IsNull(v) {
			return false
		}
	}
	return true
}

// anyPresent reports whether a value was supplied for any listed column.
func anyPresent(t *schema.Table, columns []string, vals rowValues) bool {
	for _, c := range columns {
		if _, ok := vals.get(t, c); ok {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}
