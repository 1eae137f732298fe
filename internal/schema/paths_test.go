package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnPath(t *testing.T) {
	tables := append(shopTables(),
		Table{
			Name:       "Inventory",
			Columns:    []Column{col("WarehouseID", TypeInteger), col("ProductID", TypeInteger), col("OnHand", TypeInteger)},
			PrimaryKey: &PrimaryKey{Columns: []string{"WarehouseID", "ProductID"}},
		},
		Table{
			Name: "StockMoves",
			Columns: []Column{
				col("MoveID", TypeInteger), col("WarehouseID", TypeInteger), col("ProductID", TypeInteger),
				{Name: "Qty", NameInSource: "detail.qty", Type: TypeInteger},
			},
			PrimaryKey:  &PrimaryKey{Columns: []string{"MoveID"}},
			ForeignKeys: []ForeignKey{{Name: "stock", Columns: []string{"WarehouseID", "ProductID"}, References: "Inventory"}},
		},
	)
	m, err := NewModel(tables...)
	require.NoError(t, err)

	tests := []struct {
		table, column string
		want          FieldPath
	}{
		{"Products", "ProductID", FieldPath{Path: "_id"}},
		{"Products", "ProductName", FieldPath{Path: "ProductName"}},
		{"Products", "CategoryID", FieldPath{Path: "CategoryID.$id"}},
		{"Inventory", "WarehouseID", FieldPath{Path: "_id.WarehouseID"}},
		{"Inventory", "ProductID", FieldPath{Path: "_id.ProductID"}},
		{"StockMoves", "WarehouseID", FieldPath{Path: "stock.$id.WarehouseID"}},
		{"StockMoves", "ProductID", FieldPath{Path: "stock.$id.ProductID"}},
		{"StockMoves", "Qty", FieldPath{Path: "detail.qty"}},
		{"OrderDetails", "UnitPrice", FieldPath{Path: "UnitPrice"}},
		{"OrderDetails", "ProductID", FieldPath{Path: "ProductID.$id"}},
		{"OrderDetails", "OrderID", FieldPath{Path: "_id", Up: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.table+"."+tt.column, func(t *testing.T) {
			tbl, err := m.LookupTable(tt.table)
			require.NoError(t, err)
			got, err := m.ColumnPath(tbl, tt.column)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumnPath_UnknownColumn(t *testing.T) {
	m, err := NewModel(shopTables()...)
	require.NoError(t, err)
	orders, _ := m.LookupTable("Orders")

	_, err = m.ColumnPath(orders, "Missing")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Missing", re.Column)
}

func TestReferenceAndEmbeddedFields(t *testing.T) {
	defs := shopTables()
	defs[1].Columns[2].NameInSource = "cat"
	m, err := NewModel(defs...)
	require.NoError(t, err)

	products, _ := m.LookupTable("Products")
	fk := &products.ForeignKeys[0]
	assert.Equal(t, "cat", m.ReferenceField(products, fk))
	assert.Equal(t, "Categories", m.EmbeddedField(fk))

	p, err := m.ColumnPath(products, "CategoryID")
	require.NoError(t, err)
	assert.Equal(t, "cat.$id", p.Path)
}
