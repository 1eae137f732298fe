package querydoc

import (
	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/schema"
)

// Catalog is the metadata the translator compiles against.
// *schema.Model implements it.
type Catalog interface {
	schema.Metadata
	ColumnPath(t *schema.Table, column string) (schema.FieldPath, error)
	ParentOf(t *schema.Table) (*schema.Table, bool)
	RootOf(t *schema.Table) *schema.Table
	ArrayPath(t *schema.Table) string
	ReferencedBy(t *schema.Table) []schema.Reference
	ReferenceField(t *schema.Table, fk *schema.ForeignKey) string
	EmbeddedField(fk *schema.ForeignKey) string
}

var _ Catalog = (*schema.Model)(nil)

// Compiler translates statements against one catalog.
//
// A Compiler holds no per-statement state and is safe for concurrent use.
type Compiler struct {
	cat Catalog
}

// New returns a compiler for the catalog.
func New(cat Catalog) *Compiler {
	return &Compiler{cat: cat}
}

// Catalog returns the metadata the compiler was built with.
func (c *Compiler) Catalog() Catalog {
	return c.cat
}

// CompileExpr compiles a scalar or boolean expression whose unqualified
// columns belong to table.
//
// Columns of a MERGE table are addressed from the parent document, so their
// paths carry the array field as a prefix.
func (c *Compiler) CompileExpr(e queryir.Expr, table string) (docir.Expr, error) {
	t, err := c.cat.LookupTable(table)
	if err != nil {
		return nil, resolution(err)
	}
	sc := newScope(c.cat)
	prefix := ""
	if t.Kind == schema.Merge {
		prefix = c.cat.ArrayPath(t)
	}
	if err := sc.bind(t.Name, t, prefix); err != nil {
		return nil, err
	}
	return newExprCompiler(sc).compile(e)
}

// CompileFilter is CompileExpr for a predicate that will be pushed into a
// store filter. Unsearchable columns are rejected.
func (c *Compiler) CompileFilter(e queryir.Expr, table string) (docir.Expr, error) {
	t, err := c.cat.LookupTable(table)
	if err != nil {
		return nil, resolution(err)
	}
	sc := newScope(c.cat)
	prefix := ""
	if t.Kind == schema.Merge {
		prefix = c.cat.ArrayPath(t)
	}
	if err := sc.bind(t.Name, t, prefix); err != nil {
		return nil, err
	}
	ec := newExprCompiler(sc)
	ec.filter = true
	return ec.compile(e)
}
