package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Metadata is the lookup surface the translator needs from a schema.
// Implementations must return a consistent, immutable view for the duration
// of one compilation.
type Metadata interface {
	LookupTable(name string) (*Table, error)
	LookupForeignKey(table, column string) (*ForeignKey, error)
	LookupMergeKind(table string) (MergeKind, error)
}

var _ Metadata = (*Model)(nil)

// Reference is one foreign key pointing at a table, seen from the target.
type Reference struct {
	From *Table
	Key  *ForeignKey
}

// Model is a validated, immutable set of tables.
type Model struct {
	tables       []*Table
	byName       map[string]*Table
	referencedBy map[string][]Reference
	version      string
}

// NewModel validates the table definitions and builds a model.
//
// The definitions are copied; later changes to the arguments do not affect
// the model. All violations are reported together as ValidationErrors.
func NewModel(defs ...Table) (*Model, error) {
	m := &Model{
		byName:       make(map[string]*Table, len(defs)),
		referencedBy: make(map[string][]Reference),
	}

	var errs ValidationErrors
	fail := func(table, format string, args ...any) {
		errs = append(errs, &ValidationError{Table: table, Message: fmt.Sprintf(format, args...)})
	}

	for _, def := range defs {
		t := copyTable(def)
		if t.Name == "" {
			fail("<unnamed>", "table name is required")
			continue
		}
		key := foldName(t.Name)
		if _, dup := m.byName[key]; dup {
			fail(t.Name, "duplicate table name")
			continue
		}
		if t.Collection == "" {
			t.Collection = t.Name
		}
		m.byName[key] = t
		m.tables = append(m.tables, t)
	}

	for _, t := range m.tables {
		validateColumns(t, fail)
	}
	for _, t := range m.tables {
		m.resolveForeignKeys(t, fail)
	}
	for _, t := range m.tables {
		m.validateMergeChain(t, fail)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	// Path checks need resolved roles and an acyclic merge chain.
	for _, t := range m.tables {
		m.validatePaths(t, fail)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	m.version = m.computeVersion()
	return m, nil
}

// copyTable deep-copies a definition and fills column defaults.
func copyTable(def Table) *Table {
	t := def
	t.Columns = append([]Column(nil), def.Columns...)
	if def.PrimaryKey != nil {
		t.PrimaryKey = &PrimaryKey{Columns: append([]string(nil), def.PrimaryKey.Columns...)}
	}
	t.ForeignKeys = make([]ForeignKey, len(def.ForeignKeys))
	for i, fk := range def.ForeignKeys {
		fk.Columns = append([]string(nil), fk.Columns...)
		t.ForeignKeys[i] = fk
	}
	return &t
}

func validateColumns(t *Table, fail func(string, string, ...any)) {
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		folded := foldName(c.Name)
		if c.Name == "" {
			fail(t.Name, "column name is required")
			continue
		}
		if seen[folded] {
			fail(t.Name, "duplicate column %q", c.Name)
		}
		seen[folded] = true
		if !ValidTypes[c.Type] {
			fail(t.Name, "column %q has unknown type %q", c.Name, c.Type)
		}
	}

	for _, k := range t.KeyColumns() {
		if _, ok := t.Column(k); !ok {
			fail(t.Name, "primary key column %q does not exist", k)
		}
	}
	if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) == 0 {
		fail(t.Name, "primary key must list at least one column")
	}
}

// resolveForeignKeys checks every key against its target and assigns roles.
func (m *Model) resolveForeignKeys(t *Table, fail func(string, string, ...any)) {
	owning := 0
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		for _, c := range fk.Columns {
			if _, ok := t.Column(c); !ok {
				fail(t.Name, "foreign key column %q does not exist", c)
			}
		}
		target, ok := m.byName[foldName(fk.References)]
		if !ok {
			fail(t.Name, "foreign key references unknown table %q", fk.References)
			continue
		}
		if len(target.KeyColumns()) == 0 {
			fail(t.Name, "foreign key references %s, which has no primary key", target.Name)
			continue
		}
		if len(fk.Columns) != len(target.KeyColumns()) {
			fail(t.Name, "foreign key %v has %d column(s) but %s's primary key has %d",
				fk.Columns, len(fk.Columns), target.Name, len(target.KeyColumns()))
			continue
		}
		if fk.Name == "" {
			if len(fk.Columns) == 1 {
				fk.Name = fk.Columns[0]
			} else {
				fk.Name = "fk_" + target.Name
			}
		}

		switch {
		case t.Kind == Merge && foldName(t.Parent) == foldName(target.Name):
			fk.Role = RoleMergeParent
			owning++
		case target.Kind == Embeddable:
			fk.Role = RoleEmbeddableParent
		default:
			fk.Role = RoleReference
		}
		m.referencedBy[foldName(target.Name)] = append(m.referencedBy[foldName(target.Name)], Reference{From: t, Key: fk})
	}

	if t.Kind == Merge {
		if t.Parent == "" {
			fail(t.Name, "MERGE table must name its parent")
			return
		}
		if owning != 1 {
			fail(t.Name, "MERGE table must have exactly one foreign key to its parent %s, found %d", t.Parent, owning)
			return
		}
		own := t.OwningKey()
		if sameNames(own.Columns, t.KeyColumns()) {
			fail(t.Name, "owning foreign key %v is the whole primary key; rows could not share a parent", own.Columns)
		}
	} else if t.Parent != "" {
		fail(t.Name, "only MERGE tables may name a parent")
	}
}

// validateMergeChain rejects MERGE parents that are missing or cyclic.
func (m *Model) validateMergeChain(t *Table, fail func(string, string, ...any)) {
	if t.Kind != Merge {
		return
	}
	seen := map[string]bool{foldName(t.Name): true}
	path := []string{t.Name}
	cur := t
	for cur.Kind == Merge {
		parent, ok := m.byName[foldName(cur.Parent)]
		if !ok {
			fail(t.Name, "MERGE parent %q does not exist", cur.Parent)
			return
		}
		path = append(path, parent.Name)
		if seen[foldName(parent.Name)] {
			fail(t.Name, "MERGE parents form a cycle: %s", strings.Join(path, " -> "))
			return
		}
		seen[foldName(parent.Name)] = true
		cur = parent
	}
}

// validatePaths rejects two columns, or a column and an embedded copy,
// sharing one physical field.
func (m *Model) validatePaths(t *Table, fail func(string, string, ...any)) {
	owners := make(map[string]string)
	claim := func(path, owner string) {
		if prev, dup := owners[path]; dup && prev != owner {
			fail(t.Name, "%s and %s both map to field %q", prev, owner, path)
			return
		}
		owners[path] = owner
	}

	for _, c := range t.Columns {
		fp, err := m.ColumnPath(t, c.Name)
		if err != nil {
			fail(t.Name, "%v", err)
			continue
		}
		if fp.Up > 0 {
			continue
		}
		claim(fp.Path, "column "+c.Name)
	}
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		if fk.Role == RoleEmbeddableParent {
			claim(m.EmbeddedField(fk), "embedded copy of "+fk.References)
		}
	}
	for _, child := range m.tables {
		if child.Kind == Merge && foldName(child.Parent) == foldName(t.Name) {
			claim(child.Name, "merged table "+child.Name)
		}
	}
}

// Tables returns the tables in definition order.
func (m *Model) Tables() []*Table {
	return m.tables
}

// Version identifies the model's content. Two models built from the same
// definitions share a version.
func (m *Model) Version() string {
	return m.version
}

// LookupTable resolves a table by name, case-insensitively.
func (m *Model) LookupTable(name string) (*Table, error) {
	t, ok := m.byName[foldName(name)]
	if !ok {
		return nil, &ResolutionError{Table: name}
	}
	return t, nil
}

// LookupForeignKey returns the foreign key a column participates in, or nil
// if the column is not part of any foreign key.
func (m *Model) LookupForeignKey(table, column string) (*ForeignKey, error) {
	t, err := m.LookupTable(table)
	if err != nil {
		return nil, err
	}
	if _, ok := t.Column(column); !ok {
		return nil, &ResolutionError{Table: t.Name, Column: column}
	}
	fk, _ := t.ForeignKeyFor(column)
	return fk, nil
}

// LookupMergeKind returns a table's merge kind.
func (m *Model) LookupMergeKind(table string) (MergeKind, error) {
	t, err := m.LookupTable(table)
	if err != nil {
		return Standalone, err
	}
	return t.Kind, nil
}

// ParentOf returns the table a MERGE table is merged into.
func (m *Model) ParentOf(t *Table) (*Table, bool) {
	if t.Kind != Merge {
		return nil, false
	}
	p, ok := m.byName[foldName(t.Parent)]
	return p, ok
}

// RootOf returns the nearest non-MERGE ancestor: the table whose collection
// physically holds t's rows.
func (m *Model) RootOf(t *Table) *Table {
	cur := t
	for cur.Kind == Merge {
		p, ok := m.ParentOf(cur)
		if !ok {
			break
		}
		cur = p
	}
	return cur
}

// ArrayPath returns the dotted path of a MERGE table's array, relative to
// the root document. It is empty for other kinds.
func (m *Model) ArrayPath(t *Table) string {
	if t.Kind != Merge {
		return ""
	}
	p, _ := m.ParentOf(t)
	if parentPath := m.ArrayPath(p); parentPath != "" {
		return parentPath + "." + t.Name
	}
	return t.Name
}

// ReferencedBy lists the foreign keys that point at the table, in model order.
func (m *Model) ReferencedBy(t *Table) []Reference {
	return m.referencedBy[foldName(t.Name)]
}

// computeVersion hashes the definitions into a stable identifier.
func (m *Model) computeVersion() string {
	h := sha256.New()
	names := make([]string, 0, len(m.tables))
	for _, t := range m.tables {
		names = append(names, foldName(t.Name))
	}
	sort.Strings(names)
	for _, n := range names {
		t := m.byName[n]
		fmt.Fprintf(h, "%s|%s|%s|%s|%v\n", t.Name, t.Collection, t.Kind, t.Parent, t.KeyColumns())
		for _, c := range t.Columns {
			fmt.Fprintf(h, "c|%s|%s|%s|%t|%t|%t\n", c.Name, c.NameInSource, c.Type, c.Nullable, c.Searchable, c.Selectable)
		}
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(h, "f|%s|%v|%s\n", fk.Name, fk.Columns, fk.References)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// foldName case-folds an identifier. A Caser is stateful, so each call gets
// its own.
func foldName(s string) string {
	return cases.Fold().String(s)
}

// sameNames reports whether a and b hold the same names, ignoring order.
func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, n := range a {
		if indexOfName(b, n) < 0 {
			return false
		}
	}
	return true
}
