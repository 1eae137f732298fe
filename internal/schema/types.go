package schema

import (
	"fmt"
	"strings"
)

// MergeKind selects how a table's rows are laid out in the document store.
type MergeKind int

const (
	// Standalone tables map 1:1 to their own collection.
	Standalone MergeKind = iota
	// Embeddable tables own a collection and are copied into referencing documents.
	Embeddable
	// Merge tables live as array elements inside their parent's documents.
	Merge
)

// String returns the schema-file spelling of the kind.
func (k MergeKind) String() string {
	switch k {
	case Standalone:
		return "STANDALONE"
	case Embeddable:
		return "EMBEDDABLE"
	case Merge:
		return "MERGE"
	default:
		return fmt.Sprintf("MergeKind(%d)", int(k))
	}
}

// ParseMergeKind parses a kind name, case-insensitively.
func ParseMergeKind(s string) (MergeKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "STANDALONE":
		return Standalone, nil
	case "EMBEDDABLE":
		return Embeddable, nil
	case "MERGE":
		return Merge, nil
	default:
		return Standalone, fmt.Errorf("unknown merge kind %q: must be STANDALONE, EMBEDDABLE or MERGE", s)
	}
}

// Type is the runtime type of a column.
type Type string

const (
	TypeString    Type = "string"
	TypeInteger   Type = "integer"
	TypeLong      Type = "long"
	TypeDouble    Type = "double"
	TypeDecimal   Type = "decimal"
	TypeBoolean   Type = "boolean"
	TypeDate      Type = "date"
	TypeTime      Type = "time"
	TypeTimestamp Type = "timestamp"
	TypeObject    Type = "object"
	TypeBlob      Type = "blob"
)

// ValidTypes lists every accepted column type.
var ValidTypes = map[Type]bool{
	TypeString:    true,
	TypeInteger:   true,
	TypeLong:      true,
	TypeDouble:    true,
	TypeDecimal:   true,
	TypeBoolean:   true,
	TypeDate:      true,
	TypeTime:      true,
	TypeTimestamp: true,
	TypeObject:    true,
	TypeBlob:      true,
}

// Numeric reports whether SUM and AVG are defined over the type.
func (t Type) Numeric() bool {
	switch t {
	case TypeInteger, TypeLong, TypeDouble, TypeDecimal:
		return true
	}
	return false
}

// Comparable reports whether MIN and MAX are defined over the type.
func (t Type) Comparable() bool {
	switch t {
	case TypeObject, TypeBlob, TypeBoolean:
		return false
	}
	return true
}

// Column is one attribute of a virtual table.
type Column struct {
	Name string
	// NameInSource overrides the physical field path of a plain column.
	// Dots address nested fields. Key and foreign key columns ignore it.
	NameInSource string
	Type         Type
	Nullable     bool
	// Searchable columns may appear in pushed-down predicates.
	Searchable bool
	// Selectable columns are part of SELECT * expansion.
	Selectable bool
}

// PrimaryKey lists key columns in their declared order. The order is fixed
// at load time and drives composite key document layout.
type PrimaryKey struct {
	Columns []string
}

// FKRole tags a foreign key by what the referenced table's MergeKind means
// for the referencing document.
type FKRole int

const (
	// RoleReference stores a reference value {$ref, $id}.
	RoleReference FKRole = iota
	// RoleEmbeddableParent stores a reference value plus a nested copy of the
	// referenced row under the referenced table's name.
	RoleEmbeddableParent
	// RoleMergeParent is the owning key of a MERGE table: it identifies the
	// parent document whose array holds the row.
	RoleMergeParent
)

// String returns a readable name for the role.
func (r FKRole) String() string {
	switch r {
	case RoleReference:
		return "reference"
	case RoleEmbeddableParent:
		return "embeddable-parent"
	case RoleMergeParent:
		return "merge-parent"
	default:
		return fmt.Sprintf("FKRole(%d)", int(r))
	}
}

// ForeignKey references the primary key of another table.
type ForeignKey struct {
	// Name names the key; for composite keys it is also the field holding
	// the reference value.
	Name       string
	Columns    []string
	References string
	// Role is resolved when the model is built.
	Role FKRole
}

// Table is a virtual relation.
type Table struct {
	Name string
	// Collection is the physical collection for STANDALONE and EMBEDDABLE
	// tables. Defaults to Name.
	Collection string
	Kind       MergeKind
	// Parent names the table a MERGE table is merged into.
	Parent      string
	Columns     []Column
	PrimaryKey  *PrimaryKey
	ForeignKeys []ForeignKey
}

// Column finds a column by name, case-insensitively.
func (t *Table) Column(name string) (*Column, bool) {
	folded := foldName(name)
	for i := range t.Columns {
		if foldName(t.Columns[i].Name) == folded {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// KeyColumns returns the primary key columns, or nil if the table has none.
func (t *Table) KeyColumns() []string {
	if t.PrimaryKey == nil {
		return nil
	}
	return t.PrimaryKey.Columns
}

// IsKeyColumn reports whether the named column is part of the primary key.
func (t *Table) IsKeyColumn(name string) bool {
	return indexOfName(t.KeyColumns(), name) >= 0
}

// ForeignKeyFor returns the first foreign key the column participates in.
func (t *Table) ForeignKeyFor(column string) (*ForeignKey, bool) {
	for i := range t.ForeignKeys {
		if indexOfName(t.ForeignKeys[i].Columns, column) >= 0 {
			return &t.ForeignKeys[i], true
		}
	}
	return nil, false
}

// OwningKey returns the foreign key that places a MERGE table's rows in its
// parent. It returns nil for other kinds.
func (t *Table) OwningKey() *ForeignKey {
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].Role == RoleMergeParent {
			return &t.ForeignKeys[i]
		}
	}
	return nil
}

// SelectableColumns returns the columns included in SELECT *, in declaration order.
func (t *Table) SelectableColumns() []Column {
	var cols []Column
	for _, c := range t.Columns {
		if c.Selectable {
			cols = append(cols, c)
		}
	}
	return cols
}

// indexOfName finds name in names, case-insensitively.
func indexOfName(names []string, name string) int {
	folded := foldName(name)
	for i, n := range names {
		if foldName(n) == folded {
			return i
		}
	}
	return -1
}
