package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docbridge/internal/schema"
)

// CompileSchema parses every table under the top-level `table` field.
//
// The CUE value should be the whole schema instance, e.g.:
//
//	table: Orders: {
//		kind: "STANDALONE"
//		columns: [{name: "OrderID", type: "integer", nullable: false}]
//		primary_key: ["OrderID"]
//	}
//
// Tables are returned in source order. Invariants that span tables (foreign
// key targets, merge parents) are checked later by schema.NewModel.
func CompileSchema(v cue.Value) ([]schema.Table, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, &CompileError{
			Field:   "table",
			Message: "schema defines no tables",
			Pos:     v.Pos(),
		}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var tables []schema.Table
	for iter.Next() {
		t, err := CompileTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, nil
}

// CompileTable parses one table definition. The table is named by its label.
func CompileTable(name string, v cue.Value) (*schema.Table, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &schema.Table{Name: name}

	kindStr, err := optionalString(v, "kind")
	if err != nil {
		return nil, err
	}
	kind, err := schema.ParseMergeKind(kindStr)
	if err != nil {
		return nil, &CompileError{Field: "kind", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("kind")).Pos()}
	}
	t.Kind = kind

	if t.Collection, err = optionalString(v, "collection"); err != nil {
		return nil, err
	}
	if t.Parent, err = optionalString(v, "parent"); err != nil {
		return nil, err
	}

	t.Columns, err = parseColumns(v)
	if err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return nil, &CompileError{
			Field:   "columns",
			Message: fmt.Sprintf("table %s must declare at least one column", name),
			Pos:     v.Pos(),
		}
	}

	pkVal := v.LookupPath(cue.ParsePath("primary_key"))
	if pkVal.Exists() {
		cols, err := stringList(pkVal)
		if err != nil {
			return nil, err
		}
		t.PrimaryKey = &schema.PrimaryKey{Columns: cols}
	}

	t.ForeignKeys, err = parseForeignKeys(v)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// parseColumns extracts the ordered column list. Column order is the SELECT *
// order, so columns are a list rather than a struct.
func parseColumns(v cue.Value) ([]schema.Column, error) {
	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return nil, nil
	}

	iter, err := colsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cols []schema.Column
	for iter.Next() {
		cv := iter.Value()

		nameVal := cv.LookupPath(cue.ParsePath("name"))
		if !nameVal.Exists() {
			return nil, &CompileError{Field: "columns.name", Message: "column name is required", Pos: cv.Pos()}
		}
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		typeVal := cv.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return nil, &CompileError{Field: "columns.type", Message: fmt.Sprintf("column %s: type is required", name), Pos: cv.Pos()}
		}
		typeStr, err := typeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if !schema.ValidTypes[schema.Type(typeStr)] {
			return nil, &CompileError{
				Field:   "columns.type",
				Message: fmt.Sprintf("column %s: unknown type %q", name, typeStr),
				Pos:     typeVal.Pos(),
			}
		}

		col := schema.Column{
			Name:       name,
			Type:       schema.Type(typeStr),
			Nullable:   true,
			Searchable: true,
			Selectable: true,
		}
		if col.NameInSource, err = optionalString(cv, "name_in_source"); err != nil {
			return nil, err
		}
		if col.Nullable, err = optionalBool(cv, "nullable", true); err != nil {
			return nil, err
		}
		if col.Searchable, err = optionalBool(cv, "searchable", true); err != nil {
			return nil, err
		}
		if col.Selectable, err = optionalBool(cv, "selectable", true); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// parseForeignKeys extracts foreign key definitions.
func parseForeignKeys(v cue.Value) ([]schema.ForeignKey, error) {
	fksVal := v.LookupPath(cue.ParsePath("foreign_keys"))
	if !fksVal.Exists() {
		return nil, nil
	}

	iter, err := fksVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fks []schema.ForeignKey
	for iter.Next() {
		fv := iter.Value()

		colsVal := fv.LookupPath(cue.ParsePath("columns"))
		if !colsVal.Exists() {
			return nil, &CompileError{Field: "foreign_keys.columns", Message: "foreign key columns are required", Pos: fv.Pos()}
		}
		cols, err := stringList(colsVal)
		if err != nil {
			return nil, err
		}

		refVal := fv.LookupPath(cue.ParsePath("references"))
		if !refVal.Exists() {
			return nil, &CompileError{Field: "foreign_keys.references", Message: "foreign key must name the referenced table", Pos: fv.Pos()}
		}
		ref, err := refVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		name, err := optionalString(fv, "name")
		if err != nil {
			return nil, err
		}
		fks = append(fks, schema.ForeignKey{Name: name, Columns: cols, References: ref})
	}
	return fks, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string, def bool) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return def, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
