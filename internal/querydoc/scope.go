package querydoc

import (
	"fmt"
	"strings"

	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/schema"
)

// binding places one FROM-clause table inside the pipeline document.
type binding struct {
	// ref is the name columns are qualified by: the alias, else the table name.
	ref   string
	table *schema.Table
	// prefix is the path of the table's row relative to the pipeline
	// document: "" for the root, the array field for an unwound MERGE row,
	// the embedded field for an EMBEDDABLE copy.
	prefix string
}

// scope resolves column references against the tables in FROM.
type scope struct {
	cat      Catalog
	bindings []*binding
}

func newScope(cat Catalog) *scope {
	return &scope{cat: cat}
}

func (s *scope) bind(ref string, t *schema.Table, prefix string) error {
	if s.find(ref) != nil {
		return unsupportedJoin(ref, "table reference %q appears more than once", ref)
	}
	s.bindings = append(s.bindings, &binding{ref: ref, table: t, prefix: prefix})
	return nil
}

func (s *scope) find(ref string) *binding {
	for _, b := range s.bindings {
		if strings.EqualFold(b.ref, ref) {
			return b
		}
	}
	return nil
}

// resolve finds the binding and column a reference names. Unqualified
// references must match exactly one table.
func (s *scope) resolve(cr *queryir.ColumnRef) (*binding, *schema.Column, error) {
	return resolveIn(s.bindings, cr)
}

func resolveIn(bindings []*binding, cr *queryir.ColumnRef) (*binding, *schema.Column, error) {
	if cr.Table != "" {
		for _, b := range bindings {
			if strings.EqualFold(b.ref, cr.Table) {
				col, ok := b.table.Column(cr.Column)
				if !ok {
					return nil, nil, resolution(&schema.ResolutionError{Table: b.table.Name, Column: cr.Column})
				}
				return b, col, nil
			}
		}
		return nil, nil, resolution(&schema.ResolutionError{Table: cr.Table})
	}

	var (
		found *binding
		col   *schema.Column
	)
	for _, b := range bindings {
		c, ok := b.table.Column(cr.Column)
		if !ok {
			continue
		}
		if found != nil {
			return nil, nil, &TranslationError{
				Code:      ErrCodeMetadataResolution,
				Message:   fmt.Sprintf("column is ambiguous between %s and %s", found.ref, b.ref),
				Construct: cr.Column,
			}
		}
		found, col = b, c
	}
	if found == nil {
		return nil, nil, &TranslationError{
			Code:      ErrCodeMetadataResolution,
			Message:   "no table in scope has this column",
			Construct: cr.Column,
		}
	}
	return found, col, nil
}

// path is the document path of a column within the pipeline document.
func (s *scope) path(b *binding, col *schema.Column) (string, error) {
	fp, err := s.cat.ColumnPath(b.table, col.Name)
	if err != nil {
		return "", resolution(err)
	}
	prefix := b.prefix
	for i := 0; i < fp.Up; i++ {
		prefix = parentPath(prefix)
	}
	return joinPath(prefix, fp.Path), nil
}

func joinPath(prefix, path string) string {
	if prefix == "" {
		return path
	}
	if path == "" {
		return prefix
	}
	return prefix + "." + path
}

// parentPath drops the last segment of a dotted path.
func parentPath(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[:i]
	}
	return ""
}

// qualified names a column for error messages.
func qualified(t *schema.Table, column string) string {
	return t.Name + "." + column
}
