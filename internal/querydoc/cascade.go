package querydoc

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/schema"
)

// hasCopies reports whether any table embeds copies of t's rows.
func (c *Compiler) hasCopies(t *schema.Table) bool {
	for _, ref := range c.cat.ReferencedBy(t) {
		if ref.Key.Role == schema.RoleEmbeddableParent {
			return true
		}
	}
	return false
}

// checkCascade walks the tables holding copies of t, transitively, and
// rejects embeddings whose refresh cannot be expressed: cycles, and copies
// inside arrays more than one level deep.
func (c *Compiler) checkCascade(t *schema.Table, stack []string) error {
	for _, ref := range c.cat.ReferencedBy(t) {
		if ref.Key.Role != schema.RoleEmbeddableParent {
			continue
		}
		r := ref.From
		path := append(append([]string(nil), stack...), r.Name)
		if containsFold(stack, r.Name) {
			return unsupportedCascade(strings.Join(path, " -> "), "embedded copies form a cycle")
		}
		switch r.Kind {
		case schema.Merge:
			if strings.Contains(c.cat.ArrayPath(r), ".") {
				return unsupportedCascade(strings.Join(path, " -> "), "copies nested more than one array deep cannot be refreshed")
			}
			if root := c.cat.RootOf(r); root.Kind == schema.Embeddable && c.hasCopies(root) {
				path = append(path, root.Name)
				return unsupportedCascade(strings.Join(path, " -> "), "copies of %s hold arrays that embed %s", root.Name, t.Name)
			}
		case schema.Embeddable:
			if err := c.checkCascade(r, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// cascade computes the fan-out for an update of EMBEDDABLE table t: the
// rows the primary update matches are read, the SET applied to them in
// memory, and one update emitted per document holding a copy.
func (c *Compiler) cascade(ctx context.Context, t *schema.Table, filter bson.D, entries []setEntry, f Fetcher) ([]docir.Op, error) {
	if f == nil {
		return nil, errNoFetcher
	}
	docs, err := f.Find(ctx, t.Collection, filter)
	if err != nil {
		return nil, fmt.Errorf("read %s rows to cascade: %w", t.Name, err)
	}
	updated := make([]bson.D, len(docs))
	for i, d := range docs {
		nd := cloneDoc(d)
		for _, e := range entries {
			nd = setPath(nd, e.path, e.value)
		}
		updated[i] = nd
	}
	return c.refreshCopies(ctx, t, updated, f)
}

// refreshCopies emits updates replacing the copies of docs (rows of t) held
// by referencing documents. When the holder is itself embeddable its own
// copies now hold stale nested copies, so the refresh recurses.
func (c *Compiler) refreshCopies(ctx context.Context, t *schema.Table, docs []bson.D, f Fetcher) ([]docir.Op, error) {
	var ops []docir.Op
	for _, ref := range c.cat.ReferencedBy(t) {
		if ref.Key.Role != schema.RoleEmbeddableParent {
			continue
		}
		r := ref.From
		match := c.cat.ReferenceField(r, ref.Key) + "." + schema.RefKeyField
		embedded := c.cat.EmbeddedField(ref.Key)
		collection := c.collectionOf(r)

		var refreshed []bson.D
		for _, d := range docs {
			key, ok := lookupPath(d, schema.IDField)
			if !ok {
				continue
			}

			if r.Kind == schema.Merge {
				arr := c.cat.ArrayPath(r)
				holders, err := f.Find(ctx, collection, bson.D{{Key: arr + "." + match, Value: key}})
				if err != nil {
					return nil, fmt.Errorf("read %s copies of %s: %w", r.Name, t.Name, err)
				}
				for _, h := range holders {
					id, _ := lookupPath(h, schema.IDField)
					ops = append(ops, &docir.Update{
						Collection:   collection,
						Filter:       bson.D{{Key: schema.IDField, Value: id}},
						Update:       bson.D{{Key: "$set", Value: bson.D{{Key: arr + ".$[e]." + embedded, Value: d}}}},
						ArrayFilters: []bson.D{{{Key: "e." + match, Value: key}}},
					})
				}
				continue
			}

			holders, err := f.Find(ctx, collection, bson.D{{Key: match, Value: key}})
			if err != nil {
				return nil, fmt.Errorf("read %s copies of %s: %w", r.Name, t.Name, err)
			}
			for _, h := range holders {
				id, _ := lookupPath(h, schema.IDField)
				ops = append(ops, &docir.Update{
					Collection: collection,
					Filter:     bson.D{{Key: schema.IDField, Value: id}},
					Update:     bson.D{{Key: "$set", Value: bson.D{{Key: embedded, Value: d}}}},
				})
				if r.Kind == schema.Embeddable {
					refreshed = append(refreshed, setPath(cloneDoc(h), embedded, d))
				}
			}
		}

		if len(refreshed) > 0 {
			more, err := c.refreshCopies(ctx, r, refreshed, f)
			if err != nil {
				return nil, err
			}
			ops = append(ops, more...)
		}
	}
	return ops, nil
}
