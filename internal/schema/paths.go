package schema

// Reference values follow the DBRef layout so predicates can address the key
// through a stable sub-path.
const (
	RefCollectionField = "$ref"
	RefKeyField        = "$id"
	IDField            = "_id"
)

// FieldPath locates a column's value.
//
// Path is dotted and relative to a document root: the table's own document
// for STANDALONE and EMBEDDABLE tables, the array element for MERGE tables.
// Up counts how many MERGE parents must be climbed before Path applies; it is
// non-zero only for a MERGE table's owning key columns, whose values are the
// parent's key and are not stored in the element.
type FieldPath struct {
	Path string
	Up   int
}

// ColumnPath derives the physical location of a column.
//
//	primary key column (single)       _id
//	primary key column (composite)    _id.<column>
//	foreign key column (single)       <field>.$id
//	foreign key column (composite)    <fk name>.$id.<referenced column>
//	MERGE owning key column           the parent's path for the referenced column
//	any other column                  name_in_source, else the column name
func (m *Model) ColumnPath(t *Table, column string) (FieldPath, error) {
	col, ok := t.Column(column)
	if !ok {
		return FieldPath{}, &ResolutionError{Table: t.Name, Column: column}
	}

	if t.Kind == Merge {
		if own := t.OwningKey(); own != nil {
			if idx := indexOfName(own.Columns, col.Name); idx >= 0 {
				parent, ok := m.ParentOf(t)
				if !ok {
					return FieldPath{}, &ResolutionError{Table: t.Parent}
				}
				fp, err := m.ColumnPath(parent, parent.KeyColumns()[idx])
				if err != nil {
					return FieldPath{}, err
				}
				fp.Up++
				return fp, nil
			}
		}
	} else if keys := t.KeyColumns(); indexOfName(keys, col.Name) >= 0 {
		if len(keys) == 1 {
			return FieldPath{Path: IDField}, nil
		}
		return FieldPath{Path: IDField + "." + keys[indexOfName(keys, col.Name)]}, nil
	}

	if fk, ok := t.ForeignKeyFor(col.Name); ok {
		field := m.ReferenceField(t, fk)
		if len(fk.Columns) == 1 {
			return FieldPath{Path: field + "." + RefKeyField}, nil
		}
		target, err := m.LookupTable(fk.References)
		if err != nil {
			return FieldPath{}, err
		}
		idx := indexOfName(fk.Columns, col.Name)
		return FieldPath{Path: field + "." + RefKeyField + "." + target.KeyColumns()[idx]}, nil
	}

	if col.NameInSource != "" {
		return FieldPath{Path: col.NameInSource}, nil
	}
	return FieldPath{Path: col.Name}, nil
}

// ReferenceField names the field that holds a foreign key's reference value.
// Single-column keys use the column's own field; composite keys use the key name.
func (m *Model) ReferenceField(t *Table, fk *ForeignKey) string {
	if len(fk.Columns) == 1 {
		if col, ok := t.Column(fk.Columns[0]); ok {
			if col.NameInSource != "" {
				return col.NameInSource
			}
			return col.Name
		}
		return fk.Columns[0]
	}
	return fk.Name
}

// EmbeddedField names the field holding the nested copy of an EMBEDDABLE
// row inside a referencing document.
func (m *Model) EmbeddedField(fk *ForeignKey) string {
	if target, err := m.LookupTable(fk.References); err == nil {
		return target.Name
	}
	return fk.References
}
