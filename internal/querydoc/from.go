package querydoc

import (
	"strings"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/schema"
)

// source is a compiled FROM clause: the collection the pipeline reads, the
// unwinds that flatten MERGE arrays, and the scope for column references.
type source struct {
	collection string
	scope      *scope
	unwinds    []docir.Stage
	// residual holds ON conjuncts of inner joins that are not part of an
	// embedding key. They filter like WHERE conjuncts.
	residual []queryir.Expr
}

func (c *Compiler) lookup(name string) (*schema.Table, error) {
	t, err := c.cat.LookupTable(name)
	if err != nil {
		return nil, resolution(err)
	}
	return t, nil
}

func (c *Compiler) resolveFrom(te queryir.TableExpr) (*source, error) {
	switch x := te.(type) {
	case *queryir.TableRef:
		t, err := c.lookup(x.Name)
		if err != nil {
			return nil, err
		}
		src := &source{scope: newScope(c.cat)}
		prefix := c.root(src, t)
		if err := src.scope.bind(x.RefName(), t, prefix); err != nil {
			return nil, err
		}
		return src, nil
	case *queryir.Join:
		return c.join(x)
	default:
		return nil, unsupportedJoin("", "missing FROM clause")
	}
}

// root points src at the collection that stores t and unwinds every array
// level down to t's rows. It returns the path of a row.
func (c *Compiler) root(src *source, t *schema.Table) string {
	if t.Kind != schema.Merge {
		src.collection = t.Collection
		return ""
	}
	src.collection = c.cat.RootOf(t).Collection
	path := c.cat.ArrayPath(t)
	segs := strings.Split(path, ".")
	for i := range segs {
		src.unwinds = append(src.unwinds, &docir.Unwind{Path: strings.Join(segs[:i+1], ".")})
	}
	return path
}

// keyPair is one equated column pair: a column of an already bound table
// and a column of the table being joined.
type keyPair struct {
	bound, joined string
}

func zipPairs(bound, joined []string) []keyPair {
	if len(bound) == 0 || len(bound) != len(joined) {
		return nil
	}
	out := make([]keyPair, len(bound))
	for i := range bound {
		out[i] = keyPair{bound: bound[i], joined: joined[i]}
	}
	return out
}

// join accepts a join only when it retraces an embedding:
//
//	parent JOIN merge child       unwind the child array
//	merge child JOIN parent       read the enclosing document
//	row JOIN embeddable target    read the nested copy
//	embeddable JOIN referencer    re-root on the referencer (inner only)
func (c *Compiler) join(j *queryir.Join) (*source, error) {
	pair := joinPair(j)
	if j.Kind != queryir.InnerJoin && j.Kind != queryir.LeftOuterJoin {
		return nil, unsupportedJoin(pair, "%s joins have no document-store equivalent", j.Kind)
	}
	right, ok := j.Right.(*queryir.TableRef)
	if !ok {
		return nil, unsupportedJoin(pair, "the right side of a join must be a table")
	}
	left, err := c.resolveFrom(j.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.lookup(right.Name)
	if err != nil {
		return nil, err
	}
	outer := j.Kind == queryir.LeftOuterJoin
	rb := &binding{ref: right.RefName(), table: r}
	conj := queryir.Conjuncts(j.On)

	for _, b := range left.scope.bindings {
		rest, ok := c.tryEmbedding(left, b, rb, conj, outer)
		if !ok {
			continue
		}
		if outer && len(rest) > 0 {
			return nil, unsupportedJoin(pair, "outer join conditions may only equate the embedding key")
		}
		left.residual = append(left.residual, rest...)
		if err := left.scope.bind(rb.ref, rb.table, rb.prefix); err != nil {
			return nil, err
		}
		return left, nil
	}

	if src, ok := c.tryReroot(left, rb, conj, outer); ok {
		return src, nil
	}
	return nil, unsupportedJoin(pair, "join does not follow an embedding relationship")
}

// tryEmbedding matches rb against bound table b. On success rb.prefix is set
// and any unwind is appended to src.
func (c *Compiler) tryEmbedding(src *source, b, rb *binding, conj []queryir.Expr, outer bool) ([]queryir.Expr, bool) {
	r := rb.table

	if r.Kind == schema.Merge {
		if parent, ok := c.cat.ParentOf(r); ok && parent == b.table {
			pairs := zipPairs(b.table.KeyColumns(), r.OwningKey().Columns)
			if rest, ok := matchKey(conj, b, rb, pairs); ok {
				rb.prefix = joinPath(b.prefix, lastSegment(c.cat.ArrayPath(r)))
				src.unwinds = append(src.unwinds, &docir.Unwind{Path: rb.prefix, PreserveNull: outer})
				return rest, true
			}
		}
	}

	if b.table.Kind == schema.Merge && b.prefix != "" {
		if parent, ok := c.cat.ParentOf(b.table); ok && parent == r {
			pairs := zipPairs(b.table.OwningKey().Columns, r.KeyColumns())
			if rest, ok := matchKey(conj, b, rb, pairs); ok {
				rb.prefix = parentPath(b.prefix)
				return rest, true
			}
		}
	}

	if r.Kind == schema.Embeddable {
		for i := range b.table.ForeignKeys {
			fk := &b.table.ForeignKeys[i]
			if fk.Role != schema.RoleEmbeddableParent || !strings.EqualFold(fk.References, r.Name) {
				continue
			}
			pairs := zipPairs(fk.Columns, r.KeyColumns())
			if rest, ok := matchKey(conj, b, rb, pairs); ok {
				rb.prefix = joinPath(b.prefix, c.cat.EmbeddedField(fk))
				return rest, true
			}
		}
	}
	return nil, false
}

// tryReroot handles an EMBEDDABLE table joined to a table that embeds it:
// the pipeline reads the referencing collection and the left table becomes
// the nested copy.
func (c *Compiler) tryReroot(left *source, rb *binding, conj []queryir.Expr, outer bool) (*source, bool) {
	if outer || len(left.scope.bindings) != 1 || len(left.unwinds) > 0 {
		return nil, false
	}
	b := left.scope.bindings[0]
	if b.table.Kind != schema.Embeddable {
		return nil, false
	}
	r := rb.table
	for i := range r.ForeignKeys {
		fk := &r.ForeignKeys[i]
		if fk.Role != schema.RoleEmbeddableParent || !strings.EqualFold(fk.References, b.table.Name) {
			continue
		}
		pairs := zipPairs(b.table.KeyColumns(), fk.Columns)
		rest, ok := matchKey(conj, b, rb, pairs)
		if !ok {
			continue
		}
		src := &source{scope: newScope(c.cat), residual: append(left.residual, rest...)}
		rprefix := c.root(src, r)
		src.scope.bindings = []*binding{
			{ref: b.ref, table: b.table, prefix: joinPath(rprefix, c.cat.EmbeddedField(fk))},
			{ref: rb.ref, table: r, prefix: rprefix},
		}
		if strings.EqualFold(b.ref, rb.ref) {
			return nil, false
		}
		return src, true
	}
	return nil, false
}

// matchKey finds an equality conjunct for every key pair and returns the
// conjuncts left over.
func matchKey(conj []queryir.Expr, b, rb *binding, pairs []keyPair) ([]queryir.Expr, bool) {
	if len(pairs) == 0 {
		return nil, false
	}
	used := make([]bool, len(conj))
	for _, p := range pairs {
		found := false
		for i, e := range conj {
			if !used[i] && equatesColumns(e, b, p.bound, rb, p.joined) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	var rest []queryir.Expr
	for i, e := range conj {
		if !used[i] {
			rest = append(rest, e)
		}
	}
	return rest, true
}

func equatesColumns(e queryir.Expr, b *binding, bcol string, rb *binding, rcol string) bool {
	cmp, ok := e.(*queryir.Comparison)
	if !ok || cmp.Op != queryir.Eq {
		return false
	}
	l, lok := cmp.Left.(*queryir.ColumnRef)
	r, rok := cmp.Right.(*queryir.ColumnRef)
	if !lok || !rok {
		return false
	}
	pair := []*binding{b, rb}
	lb, lc, err := resolveIn(pair, l)
	if err != nil {
		return false
	}
	rb2, rc, err := resolveIn(pair, r)
	if err != nil {
		return false
	}
	is := func(x *binding, col *schema.Column, want *binding, name string) bool {
		return x == want && strings.EqualFold(col.Name, name)
	}
	return (is(lb, lc, b, bcol) && is(rb2, rc, rb, rcol)) ||
		(is(lb, lc, rb, rcol) && is(rb2, rc, b, bcol))
}

func joinPair(j *queryir.Join) string {
	left := ""
	if refs := queryir.Tables(j.Left); len(refs) > 0 {
		left = refs[len(refs)-1].Name
	}
	right := ""
	if r, ok := j.Right.(*queryir.TableRef); ok {
		right = r.Name
	}
	return left + " JOIN " + right
}

func lastSegment(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}
