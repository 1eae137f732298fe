package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func col(name string, typ Type) Column {
	return Column{Name: name, Type: typ, Nullable: true, Searchable: true, Selectable: true}
}

func shopTables() []Table {
	return []Table{
		{
			Name:       "Categories",
			Kind:       Embeddable,
			Columns:    []Column{col("CategoryID", TypeInteger), col("CategoryName", TypeString)},
			PrimaryKey: &PrimaryKey{Columns: []string{"CategoryID"}},
		},
		{
			Name:        "Products",
			Columns:     []Column{col("ProductID", TypeInteger), col("ProductName", TypeString), col("CategoryID", TypeInteger)},
			PrimaryKey:  &PrimaryKey{Columns: []string{"ProductID"}},
			ForeignKeys: []ForeignKey{{Columns: []string{"CategoryID"}, References: "Categories"}},
		},
		{
			Name:       "Orders",
			Collection: "orders",
			Columns:    []Column{col("OrderID", TypeInteger), col("ShipCity", TypeString)},
			PrimaryKey: &PrimaryKey{Columns: []string{"OrderID"}},
		},
		{
			Name:   "OrderDetails",
			Kind:   Merge,
			Parent: "Orders",
			Columns: []Column{
				col("OrderID", TypeInteger), col("ProductID", TypeInteger),
				col("UnitPrice", TypeDouble), col("Quantity", TypeInteger),
			},
			PrimaryKey: &PrimaryKey{Columns: []string{"OrderID", "ProductID"}},
			ForeignKeys: []ForeignKey{
				{Columns: []string{"OrderID"}, References: "Orders"},
				{Columns: []string{"ProductID"}, References: "Products"},
			},
		},
	}
}

func TestNewModel_ResolvesRoles(t *testing.T) {
	m, err := NewModel(shopTables()...)
	require.NoError(t, err)

	products, err := m.LookupTable("products")
	require.NoError(t, err)
	assert.Equal(t, "Products", products.Name)
	assert.Equal(t, "Products", products.Collection)
	assert.Equal(t, RoleEmbeddableParent, products.ForeignKeys[0].Role)

	details, err := m.LookupTable("OrderDetails")
	require.NoError(t, err)
	assert.Equal(t, RoleMergeParent, details.ForeignKeys[0].Role)
	assert.Equal(t, RoleReference, details.ForeignKeys[1].Role)
	assert.Same(t, &details.ForeignKeys[0], details.OwningKey())

	orders, err := m.LookupTable("ORDERS")
	require.NoError(t, err)
	assert.Equal(t, "orders", orders.Collection)
	assert.Same(t, orders, m.RootOf(details))
	assert.Equal(t, "OrderDetails", m.ArrayPath(details))
}

func TestNewModel_CopiesDefinitions(t *testing.T) {
	defs := shopTables()
	m, err := NewModel(defs...)
	require.NoError(t, err)

	defs[0].Columns[1].Name = "Renamed"
	cats, err := m.LookupTable("Categories")
	require.NoError(t, err)
	assert.Equal(t, "CategoryName", cats.Columns[1].Name)
}

func TestLookupForeignKey(t *testing.T) {
	m, err := NewModel(shopTables()...)
	require.NoError(t, err)

	fk, err := m.LookupForeignKey("Products", "categoryid")
	require.NoError(t, err)
	require.NotNil(t, fk)
	assert.Equal(t, "Categories", fk.References)

	fk, err = m.LookupForeignKey("Products", "ProductName")
	require.NoError(t, err)
	assert.Nil(t, fk)

	_, err = m.LookupForeignKey("Products", "Nope")
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))

	kind, err := m.LookupMergeKind("OrderDetails")
	require.NoError(t, err)
	assert.Equal(t, Merge, kind)

	_, err = m.LookupMergeKind("Missing")
	assert.True(t, IsResolutionError(err))
}

func TestReferencedBy(t *testing.T) {
	m, err := NewModel(shopTables()...)
	require.NoError(t, err)

	products, _ := m.LookupTable("Products")
	refs := m.ReferencedBy(products)
	require.Len(t, refs, 1)
	assert.Equal(t, "OrderDetails", refs[0].From.Name)
	assert.Equal(t, []string{"ProductID"}, refs[0].Key.Columns)
}

func TestNewModel_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]Table) []Table
		message string
	}{
		{
			name: "unknown fk target",
			mutate: func(ts []Table) []Table {
				ts[1].ForeignKeys[0].References = "Nowhere"
				return ts
			},
			message: "unknown table \"Nowhere\"",
		},
		{
			name: "fk arity mismatch",
			mutate: func(ts []Table) []Table {
				ts[1].ForeignKeys[0].Columns = []string{"CategoryID", "ProductName"}
				return ts
			},
			message: "has 2 column(s)",
		},
		{
			name: "merge without parent",
			mutate: func(ts []Table) []Table {
				ts[3].Parent = ""
				return ts
			},
			message: "must name its parent",
		},
		{
			name: "merge owning key is whole primary key",
			mutate: func(ts []Table) []Table {
				ts[3].PrimaryKey = &PrimaryKey{Columns: []string{"OrderID"}}
				return ts
			},
			message: "is the whole primary key",
		},
		{
			name: "duplicate column",
			mutate: func(ts []Table) []Table {
				ts[2].Columns = append(ts[2].Columns, col("shipcity", TypeString))
				return ts
			},
			message: "duplicate column",
		},
		{
			name: "unknown type",
			mutate: func(ts []Table) []Table {
				ts[2].Columns[1].Type = "varchar"
				return ts
			},
			message: "unknown type",
		},
		{
			name: "two columns alias one field",
			mutate: func(ts []Table) []Table {
				ts[2].Columns = append(ts[2].Columns, Column{Name: "City", NameInSource: "ShipCity", Type: TypeString})
				return ts
			},
			message: "both map to field \"ShipCity\"",
		},
		{
			name: "column collides with merged array",
			mutate: func(ts []Table) []Table {
				ts[2].Columns = append(ts[2].Columns, col("OrderDetails", TypeString))
				return ts
			},
			message: "both map to field \"OrderDetails\"",
		},
		{
			name: "parent on standalone",
			mutate: func(ts []Table) []Table {
				ts[2].Parent = "Products"
				return ts
			},
			message: "only MERGE tables may name a parent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(tt.mutate(shopTables())...)
			require.Error(t, err)
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			found := false
			for _, v := range verrs {
				if strings.Contains(v.Message, tt.message) {
					found = true
				}
			}
			assert.True(t, found, "no violation mentions %q: %v", tt.message, verrs)
		})
	}
}

func TestNewModel_MergeCycle(t *testing.T) {
	_, err := NewModel(
		Table{
			Name: "A", Kind: Merge, Parent: "B",
			Columns:     []Column{col("id", TypeInteger), col("b", TypeInteger)},
			PrimaryKey:  &PrimaryKey{Columns: []string{"id"}},
			ForeignKeys: []ForeignKey{{Columns: []string{"b"}, References: "B"}},
		},
		Table{
			Name: "B", Kind: Merge, Parent: "A",
			Columns:     []Column{col("id", TypeInteger), col("a", TypeInteger)},
			PrimaryKey:  &PrimaryKey{Columns: []string{"id"}},
			ForeignKeys: []ForeignKey{{Columns: []string{"a"}, References: "A"}},
		},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestModelVersion_Stable(t *testing.T) {
	m1, err := NewModel(shopTables()...)
	require.NoError(t, err)
	m2, err := NewModel(shopTables()...)
	require.NoError(t, err)
	assert.Equal(t, m1.Version(), m2.Version())

	changed := shopTables()
	changed[2].Columns[1].Type = TypeLong
	m3, err := NewModel(changed...)
	require.NoError(t, err)
	assert.NotEqual(t, m1.Version(), m3.Version())
}

func TestParseMergeKind(t *testing.T) {
	k, err := ParseMergeKind("merge")
	require.NoError(t, err)
	assert.Equal(t, Merge, k)

	k, err = ParseMergeKind("")
	require.NoError(t, err)
	assert.Equal(t, Standalone, k)

	_, err = ParseMergeKind("nested")
	assert.Error(t, err)
	assert.Equal(t, "EMBEDDABLE", Embeddable.String())
}
