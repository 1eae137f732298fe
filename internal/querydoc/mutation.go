package querydoc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/schema"
)

// Fetcher reads current documents. Mutation compilation uses it to copy
// embedded rows and to find the documents holding copies that must be
// refreshed.
type Fetcher interface {
	// FindOne returns the first document matching filter, or nil if none does.
	FindOne(ctx context.Context, collection string, filter bson.D) (bson.D, error)
	Find(ctx context.Context, collection string, filter bson.D) ([]bson.D, error)
}

var errNoFetcher = errors.New("querydoc: statement reads the store but no fetcher was given")

// CompileMutation translates an INSERT, UPDATE or DELETE.
//
// The fetcher may be nil for statements that never read the store; those
// needing it fail with an error instead.
func (c *Compiler) CompileMutation(ctx context.Context, stmt queryir.Statement, f Fetcher) (*docir.Mutation, error) {
	if err := queryir.Validate(stmt).Err(); err != nil {
		return nil, &TranslationError{Code: ErrCodeUnsupportedExpression, Message: "malformed statement", Err: err}
	}
	switch x := stmt.(type) {
	case *queryir.Insert:
		return c.compileInsert(ctx, x, f)
	case *queryir.Update:
		return c.compileUpdate(ctx, x, f)
	case *queryir.Delete:
		return c.compileDelete(x)
	default:
		return nil, unsupportedExpr(fmt.Sprintf("%T", stmt), "not a mutation")
	}
}

func literalValue(e queryir.Expr) (ir.Value, bool) {
	lit, ok := e.(*queryir.Literal)
	if !ok {
		return nil, false
	}
	if lit.Value == nil {
		return ir.Null{}, true
	}
	return lit.Value, true
}

func storedName(col *schema.Column) string {
	if col.NameInSource != "" {
		return col.NameInSource
	}
	return col.Name
}

// tableScope binds t alone, with paths relative to its own document or,
// for MERGE tables, its array element.
func (c *Compiler) tableScope(t *schema.Table) *scope {
	sc := newScope(c.cat)
	sc.bindings = []*binding{{ref: t.Name, table: t}}
	return sc
}

func (c *Compiler) filterDoc(sc *scope, conds []queryir.Expr) (bson.D, error) {
	if len(conds) == 0 {
		return bson.D{}, nil
	}
	ec := newExprCompiler(sc)
	ec.filter = true
	compiled, err := ec.compileAll(conds)
	if err != nil {
		return nil, err
	}
	return docir.Filter(&docir.And{Exprs: compiled}), nil
}

// foreignKeyEntries turns one foreign key's supplied values into the fields
// it writes: the reference value and, for an embeddable target, the nested
// copy of the referenced row.
func (c *Compiler) foreignKeyEntries(ctx context.Context, t *schema.Table, fk *schema.ForeignKey, vals rowValues, f Fetcher) ([]bson.E, error) {
	target, err := c.lookup(fk.References)
	if err != nil {
		return nil, err
	}
	refField := c.cat.ReferenceField(t, fk)
	embedded := fk.Role == schema.RoleEmbeddableParent

	if allNull(t, fk.Columns, vals) {
		out := []bson.E{{Key: refField, Value: nil}}
		if embedded {
			out = append(out, bson.E{Key: c.cat.EmbeddedField(fk), Value: nil})
		}
		return out, nil
	}

	key, err := keyValue(qualified(t, refField), target.KeyColumns(), fk.Columns, t, vals)
	if err != nil {
		return nil, err
	}
	out := []bson.E{{Key: refField, Value: c.referenceValue(target, key)}}
	if !embedded {
		return out, nil
	}
	if f == nil {
		return nil, errNoFetcher
	}
	doc, err := f.FindOne(ctx, c.collectionOf(target), bson.D{{Key: schema.IDField, Value: key}})
	if err != nil {
		return nil, fmt.Errorf("read %s for embedding: %w", target.Name, err)
	}
	if doc == nil {
		return nil, missingReference(qualified(t, refField), "no %s row has key %s", target.Name, docir.ValueJSON(key))
	}
	return append(out, bson.E{Key: c.cat.EmbeddedField(fk), Value: doc}), nil
}

func (c *Compiler) compileInsert(ctx context.Context, ins *queryir.Insert, f Fetcher) (*docir.Mutation, error) {
	t, err := c.lookup(ins.Table)
	if err != nil {
		return nil, err
	}
	cols := make([]*schema.Column, len(ins.Columns))
	for i, name := range ins.Columns {
		col, ok := t.Column(name)
		if !ok {
			return nil, resolution(&schema.ResolutionError{Table: t.Name, Column: name})
		}
		cols[i] = col
	}

	m := &docir.Mutation{Statement: "INSERT", Table: t.Name}
	for _, row := range ins.Rows {
		vals := rowValues{}
		for i, e := range row {
			v, ok := literalValue(e)
			if !ok {
				return nil, unsupportedExpr(queryir.Format(e), "INSERT values must be constants")
			}
			vals[cols[i].Name] = v
		}
		doc, err := c.rowDocument(ctx, t, vals, f)
		if err != nil {
			return nil, err
		}
		if t.Kind != schema.Merge {
			m.Ops = append(m.Ops, &docir.Insert{Collection: t.Collection, Doc: doc})
			continue
		}
		op, err := c.pushRow(ctx, t, vals, doc, f)
		if err != nil {
			return nil, err
		}
		m.Ops = append(m.Ops, op)
	}
	return m, nil
}

// rowDocument builds the stored form of a row: _id first, then columns in
// declaration order. A MERGE row omits its owning key, which lives in the
// parent.
func (c *Compiler) rowDocument(ctx context.Context, t *schema.Table, vals rowValues, f Fetcher) (bson.D, error) {
	var doc bson.D
	handled := map[string]bool{}
	mark := func(cols []string) {
		for _, name := range cols {
			handled[strings.ToLower(name)] = true
		}
	}

	if t.Kind != schema.Merge && len(t.KeyColumns()) > 0 {
		key, err := primaryKey(t, vals)
		if err != nil {
			return nil, err
		}
		doc = append(doc, bson.E{Key: schema.IDField, Value: key})
		mark(t.KeyColumns())
	}
	if own := t.OwningKey(); own != nil {
		mark(own.Columns)
	}

	for i := range t.Columns {
		col := &t.Columns[i]
		if handled[strings.ToLower(col.Name)] {
			continue
		}
		if fk, ok := t.ForeignKeyFor(col.Name); ok {
			mark(fk.Columns)
			if !anyPresent(t, fk.Columns, vals) {
				continue
			}
			entries, err := c.foreignKeyEntries(ctx, t, fk, vals, f)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				doc = setPath(doc, e.Key, e.Value)
			}
			continue
		}
		if v, ok := vals[col.Name]; ok {
			doc = setPath(doc, storedName(col), ir.ToBSON(v))
		}
	}
	return doc, nil
}

// pushRow appends a MERGE row to its parent's array. Rows two arrays deep
// locate their parent element with the positional operator.
func (c *Compiler) pushRow(ctx context.Context, t *schema.Table, vals rowValues, elem bson.D, f Fetcher) (docir.Op, error) {
	parent, ok := c.cat.ParentOf(t)
	if !ok {
		return nil, resolution(&schema.ResolutionError{Table: t.Parent})
	}
	pvals := parentValues(t, parent, vals)
	field := lastSegment(c.cat.ArrayPath(t))

	var filter bson.D
	arrayField := field
	if parent.Kind != schema.Merge {
		key, err := primaryKey(parent, pvals)
		if err != nil {
			return nil, err
		}
		filter = bson.D{{Key: schema.IDField, Value: key}}
	} else {
		grand, ok := c.cat.ParentOf(parent)
		if !ok {
			return nil, resolution(&schema.ResolutionError{Table: parent.Parent})
		}
		if grand.Kind == schema.Merge {
			return nil, unsupportedExpr(t.Name, "rows nested more than two arrays deep cannot be inserted")
		}
		gkey, err := primaryKey(grand, parentValues(parent, grand, pvals))
		if err != nil {
			return nil, err
		}
		match := bson.D{}
		pown := parent.OwningKey()
		for _, pk := range parent.KeyColumns() {
			if containsFold(pown.Columns, pk) {
				continue
			}
			v, ok := pvals.get(parent, pk)
			if !ok {
				return nil, ambiguousKey(parent.Name, len(parent.KeyColumns()), len(pvals))
			}
			fp, err := c.cat.ColumnPath(parent, pk)
			if err != nil {
				return nil, resolution(err)
			}
			match = append(match, bson.E{Key: fp.Path, Value: ir.ToBSON(v)})
		}
		arr := c.cat.ArrayPath(parent)
		filter = bson.D{
			{Key: schema.IDField, Value: gkey},
			{Key: arr, Value: bson.D{{Key: "$elemMatch", Value: match}}},
		}
		arrayField = arr + ".$." + field
	}

	collection := c.collectionOf(t)
	if f != nil {
		doc, err := f.FindOne(ctx, collection, filter)
		if err != nil {
			return nil, fmt.Errorf("read %s parent: %w", t.Name, err)
		}
		if doc == nil {
			return nil, missingReference(parent.Name, "parent row for %s does not exist", t.Name)
		}
	}
	return &docir.PushInto{Collection: collection, ParentFilter: filter, ArrayField: arrayField, Doc: elem}, nil
}

// parentValues maps a MERGE row's owning key values onto the parent's key
// columns.
func parentValues(t, parent *schema.Table, vals rowValues) rowValues {
	out := rowValues{}
	own := t.OwningKey()
	if own == nil {
		return out
	}
	for i, pk := range parent.KeyColumns() {
		if i >= len(own.Columns) {
			break
		}
		if v, ok := vals.get(t, own.Columns[i]); ok {
			if col, ok := parent.Column(pk); ok {
				out[col.Name] = v
			}
		}
	}
	return out
}

type assignment struct {
	col   *schema.Column
	value queryir.Expr
}

type setEntry struct {
	path  string
	value any
	// computed values are aggregation expressions over the current document.
	computed bool
}

func (c *Compiler) assignments(t *schema.Table, set []queryir.Assignment) ([]assignment, error) {
	out := make([]assignment, 0, len(set))
	own := t.OwningKey()
	for _, a := range set {
		col, ok := t.Column(a.Column)
		if !ok {
			return nil, resolution(&schema.ResolutionError{Table: t.Name, Column: a.Column})
		}
		if own != nil && containsFold(own.Columns, col.Name) {
			return nil, &TranslationError{
				Code:      ErrCodeUnsupportedReparent,
				Message:   "rows cannot be moved to another parent",
				Construct: qualified(t, col.Name),
			}
		}
		if t.IsKeyColumn(col.Name) {
			return nil, unsupportedExpr(qualified(t, col.Name), "primary key columns cannot be updated")
		}
		out = append(out, assignment{col: col, value: a.Value})
	}
	return out, nil
}

// setEntries resolves SET clauses to stored paths. A foreign key is written
// whole, together with its refreshed embedded copy.
func (c *Compiler) setEntries(ctx context.Context, t *schema.Table, sc *scope, sets []assignment, f Fetcher) ([]setEntry, bool, error) {
	var out []setEntry
	computed := false
	done := map[*schema.ForeignKey]bool{}
	for _, s := range sets {
		if fk, ok := t.ForeignKeyFor(s.col.Name); ok && fk.Role != schema.RoleMergeParent {
			if done[fk] {
				continue
			}
			done[fk] = true
			vals := rowValues{}
			for _, other := range sets {
				if !containsFold(fk.Columns, other.col.Name) {
					continue
				}
				v, ok := literalValue(other.value)
				if !ok {
					return nil, false, unsupportedExpr(qualified(t, other.col.Name), "foreign key columns must be set to constants")
				}
				vals[other.col.Name] = v
			}
			entries, err := c.foreignKeyEntries(ctx, t, fk, vals, f)
			if err != nil {
				return nil, false, err
			}
			for _, e := range entries {
				out = append(out, setEntry{path: e.Key, value: e.Value})
			}
			continue
		}
		if v, ok := literalValue(s.value); ok {
			out = append(out, setEntry{path: storedName(s.col), value: ir.ToBSON(v)})
			continue
		}
		d, err := newExprCompiler(sc).compile(s.value)
		if err != nil {
			return nil, false, err
		}
		out = append(out, setEntry{path: storedName(s.col), value: docir.Agg(d), computed: true})
		computed = true
	}
	return out, computed, nil
}

// updateDoc renders SET entries as a $set document, or as a one-stage
// update pipeline when any value is computed from the document.
func updateDoc(entries []setEntry, computed bool) any {
	set := make(bson.D, 0, len(entries))
	for _, e := range entries {
		v := e.value
		if computed && !e.computed {
			v = bson.D{{Key: "$literal", Value: v}}
		}
		set = append(set, bson.E{Key: e.path, Value: v})
	}
	if computed {
		return []bson.D{{{Key: "$set", Value: set}}}
	}
	return bson.D{{Key: "$set", Value: set}}
}

func (c *Compiler) compileUpdate(ctx context.Context, upd *queryir.Update, f Fetcher) (*docir.Mutation, error) {
	t, err := c.lookup(upd.Table)
	if err != nil {
		return nil, err
	}
	sets, err := c.assignments(t, upd.Set)
	if err != nil {
		return nil, err
	}
	m := &docir.Mutation{Statement: "UPDATE", Table: t.Name}
	sc := c.tableScope(t)

	if t.Kind == schema.Merge {
		op, err := c.updateMerge(ctx, t, sc, sets, upd.Where, f)
		if err != nil {
			return nil, err
		}
		m.Ops = []docir.Op{op}
		return m, nil
	}

	if t.Kind == schema.Embeddable && c.hasCopies(t) {
		if err := c.checkCascade(t, []string{t.Name}); err != nil {
			return nil, err
		}
	}

	filter, err := c.filterDoc(sc, queryir.Conjuncts(upd.Where))
	if err != nil {
		return nil, err
	}
	entries, computed, err := c.setEntries(ctx, t, sc, sets, f)
	if err != nil {
		return nil, err
	}
	m.Ops = []docir.Op{&docir.Update{
		Collection: t.Collection,
		Filter:     filter,
		Update:     updateDoc(entries, computed),
		Multi:      !pinsColumns(t, t.KeyColumns(), upd.Where),
	}}

	if t.Kind == schema.Embeddable && c.hasCopies(t) {
		if computed {
			return nil, unsupportedExpr(t.Name, "SET must assign constants when the table has embedded copies")
		}
		fan, err := c.cascade(ctx, t, filter, entries, f)
		if err != nil {
			return nil, err
		}
		m.FanOut = fan
	}
	return m, nil
}

// splitMergeWhere separates conditions on a MERGE row's parent key, which
// select parent documents, from conditions on the row itself, which select
// array elements. The element filter is nil when there are none.
func (c *Compiler) splitMergeWhere(t *schema.Table, sc *scope, where queryir.Expr) (parent, elem bson.D, err error) {
	own := t.OwningKey()
	var parentConds, elemConds []queryir.Expr
	for _, e := range queryir.Conjuncts(where) {
		owning, other := 0, 0
		queryir.Walk(e, func(n queryir.Expr) bool {
			if cr, ok := n.(*queryir.ColumnRef); ok {
				if own != nil && containsFold(own.Columns, cr.Column) {
					owning++
				} else {
					other++
				}
			}
			return true
		})
		switch {
		case owning > 0 && other > 0:
			return nil, nil, unsupportedExpr(queryir.Format(e), "condition mixes the parent key with row columns")
		case other > 0:
			elemConds = append(elemConds, e)
		default:
			parentConds = append(parentConds, e)
		}
	}

	parent, err = c.filterDoc(sc, parentConds)
	if err != nil {
		return nil, nil, err
	}
	if len(elemConds) == 0 {
		return parent, nil, nil
	}
	elem, err = c.filterDoc(sc, elemConds)
	if err != nil {
		return nil, nil, err
	}
	if hasExprOperator(elem) {
		return nil, nil, unsupportedExpr(t.Name, "row conditions must compare columns with constants")
	}
	return parent, elem, nil
}

func (c *Compiler) singleArray(t *schema.Table) (string, error) {
	arr := c.cat.ArrayPath(t)
	if strings.Contains(arr, ".") {
		return "", unsupportedExpr(t.Name, "rows nested more than one array deep can only be inserted")
	}
	return arr, nil
}

// updateMerge sets fields on matching array elements through the filtered
// positional operator, or on all elements of the matched parents when the
// statement has no row conditions.
func (c *Compiler) updateMerge(ctx context.Context, t *schema.Table, sc *scope, sets []assignment, where queryir.Expr, f Fetcher) (docir.Op, error) {
	arr, err := c.singleArray(t)
	if err != nil {
		return nil, err
	}
	parent, elem, err := c.splitMergeWhere(t, sc, where)
	if err != nil {
		return nil, err
	}
	entries, computed, err := c.setEntries(ctx, t, sc, sets, f)
	if err != nil {
		return nil, err
	}
	if computed {
		return nil, unsupportedExpr(t.Name, "MERGE rows can only be set to constants")
	}

	op := &docir.Update{
		Collection: c.collectionOf(t),
		Filter:     parent,
		Multi:      !pinsColumns(t, t.OwningKey().Columns, where),
	}
	position := "$[]"
	if elem != nil {
		position = "$[e]"
		op.Filter = append(op.Filter, bson.E{Key: arr, Value: bson.D{{Key: "$elemMatch", Value: elem}}})
		op.ArrayFilters = []bson.D{prefixFilter(elem, "e")}
	}
	set := make(bson.D, 0, len(entries))
	for _, e := range entries {
		set = append(set, bson.E{Key: arr + "." + position + "." + e.path, Value: e.value})
	}
	op.Update = bson.D{{Key: "$set", Value: set}}
	return op, nil
}

func (c *Compiler) compileDelete(del *queryir.Delete) (*docir.Mutation, error) {
	t, err := c.lookup(del.Table)
	if err != nil {
		return nil, err
	}
	m := &docir.Mutation{Statement: "DELETE", Table: t.Name}
	sc := c.tableScope(t)

	if t.Kind == schema.Merge {
		arr, err := c.singleArray(t)
		if err != nil {
			return nil, err
		}
		parent, elem, err := c.splitMergeWhere(t, sc, del.Where)
		if err != nil {
			return nil, err
		}
		if elem == nil {
			elem = bson.D{}
		}
		m.Ops = []docir.Op{&docir.PullFrom{
			Collection:   c.collectionOf(t),
			ParentFilter: parent,
			ArrayField:   arr,
			Filter:       elem,
		}}
		return m, nil
	}

	filter, err := c.filterDoc(sc, queryir.Conjuncts(del.Where))
	if err != nil {
		return nil, err
	}
	m.Ops = []docir.Op{&docir.Delete{
		Collection: t.Collection,
		Filter:     filter,
		Multi:      !pinsColumns(t, t.KeyColumns(), del.Where),
	}}
	return m, nil
}

// pinsColumns reports whether where fixes every listed column to a
// constant, so at most one row can match.
func pinsColumns(t *schema.Table, columns []string, where queryir.Expr) bool {
	if len(columns) == 0 {
		return false
	}
	conj := queryir.Conjuncts(where)
	for _, name := range columns {
		found := false
		for _, e := range conj {
			if pinsColumn(t, name, e) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func pinsColumn(t *schema.Table, name string, e queryir.Expr) bool {
	cmp, ok := e.(*queryir.Comparison)
	if !ok || cmp.Op != queryir.Eq {
		return false
	}
	isCol := func(x queryir.Expr) bool {
		cr, ok := x.(*queryir.ColumnRef)
		return ok && strings.EqualFold(cr.Column, name) && (cr.Table == "" || strings.EqualFold(cr.Table, t.Name))
	}
	isConst := func(x queryir.Expr) bool {
		v, ok := literalValue(x)
		return ok && !ir.IsNull(v)
	}
	return (isCol(cmp.Left) && isConst(cmp.Right)) || (isCol(cmp.Right) && isConst(cmp.Left))
}
