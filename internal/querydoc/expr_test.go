package querydoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
)

func TestCompileFilter_Comparisons(t *testing.T) {
	c := newNorthwindCompiler()
	tests := []struct {
		name  string
		table string
		expr  string
		want  string
	}{
		{"equality", "Orders", `{eq: [{col: ShipCity}, {lit: Berlin}]}`, `{"ShipCity":"Berlin"}`},
		{"range", "Orders", `{gt: [{col: Freight}, {lit: 10}]}`, `{"Freight":{"$gt":10}}`},
		{"literal first", "Orders", `{lt: [{lit: 10}, {col: Freight}]}`, `{"Freight":{"$gt":10}}`},
		{"not equal", "Orders", `{ne: [{col: ShipCity}, {lit: Berlin}]}`,
			`{"$and":[{"ShipCity":{"$ne":"Berlin"}},{"ShipCity":{"$ne":null}}]}`},
		{"primary key", "Orders", `{eq: [{col: OrderID}, {lit: 10248}]}`, `{"_id":10248}`},
		{"reference", "Orders", `{eq: [{col: CustomerID}, {lit: ALFKI}]}`, `{"CustomerID.$id":"ALFKI"}`},
		{"name in source", "Orders", `{eq: [{col: ShipCountry}, {lit: UK}]}`, `{"ship.country":"UK"}`},
		{"composite primary key", "Inventory", `{eq: [{col: SKU}, {lit: A-1}]}`, `{"_id.SKU":"A-1"}`},
		{"is null", "Customers", `{is_null: {col: Region}}`, `{"Region":null}`},
		{"is not null", "Customers", `{is_not_null: {col: Region}}`, `{"Region":{"$ne":null}}`},
		{"and", "Orders", `{and: [{eq: [{col: ShipCity}, {lit: Berlin}]}, {ge: [{col: Freight}, {lit: 1.5}]}]}`,
			`{"$and":[{"ShipCity":"Berlin"},{"Freight":{"$gte":1.5}}]}`},
		{"not", "Orders", `{not: {eq: [{col: ShipCity}, {lit: Berlin}]}}`,
			`{"$and":[{"ShipCity":{"$ne":"Berlin"}},{"ShipCity":{"$ne":null}}]}`},
		{"not over and", "Orders", `{not: {and: [{eq: [{col: ShipCity}, {lit: Berlin}]}, {gt: [{col: Freight}, {lit: 10}]}]}}`,
			`{"$or":[{"$and":[{"ShipCity":{"$ne":"Berlin"}},{"ShipCity":{"$ne":null}}]},{"Freight":{"$lte":10}}]}`},
		{"not is null", "Customers", `{not: {is_null: {col: Region}}}`, `{"Region":{"$ne":null}}`},
		{"equals null", "Customers", `{eq: [{col: Region}, {lit: null}]}`, `{"$expr":null}`},
		{"not equal to null", "Customers", `{ne: [{col: Region}, {lit: null}]}`, `{"$expr":null}`},
		{"not of equals null", "Customers", `{not: {eq: [{col: Region}, {lit: null}]}}`, `{"$expr":null}`},
		{"in with null", "Orders", `{in: {expr: {col: ShipCity}, values: [{lit: null}, {lit: Berlin}]}}`,
			`{"ShipCity":{"$in":["Berlin"]}}`},
		{"not in with null", "Orders", `{not_in: {expr: {col: ShipCity}, values: [{lit: Berlin}, {lit: null}]}}`, `{"$expr":null}`},
		{"in", "Orders", `{in: {expr: {col: ShipCity}, values: [{lit: Berlin}, {lit: London}, {lit: Berlin}]}}`,
			`{"ShipCity":{"$in":["Berlin","London"]}}`},
		{"not in", "Orders", `{not_in: {expr: {col: ShipCity}, values: [{lit: Berlin}]}}`,
			`{"$and":[{"ShipCity":{"$nin":["Berlin"]}},{"ShipCity":{"$ne":null}}]}`},
		{"arithmetic", "Products", `{gt: [{mul: [{col: UnitPrice}, {col: UnitsInStock}]}, {lit: 100}]}`,
			`{"$expr":{"$cond":[{"$eq":[{"$ifNull":[{"$multiply":["$UnitPrice","$UnitsInStock"]},null]},null]},null,{"$gt":[{"$multiply":["$UnitPrice","$UnitsInStock"]},100]}]}}`},
		{"column to column", "Products", `{lt: [{col: UnitsInStock}, {col: UnitPrice}]}`,
			`{"$expr":{"$cond":[{"$or":[{"$eq":[{"$ifNull":["$UnitsInStock",null]},null]},{"$eq":[{"$ifNull":["$UnitPrice",null]},null]}]},null,{"$lt":["$UnitsInStock","$UnitPrice"]}]}}`},
		{"merge column", "OrderDetails", `{gt: [{col: Quantity}, {lit: 5}]}`, `{"OrderDetails.Quantity":{"$gt":5}}`},
		{"merge owning key", "OrderDetails", `{eq: [{col: OrderID}, {lit: 10248}]}`, `{"_id":10248}`},
		{"merge reference", "OrderDetails", `{eq: [{col: ProductID}, {lit: 1}]}`, `{"OrderDetails.ProductID.$id":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := c.CompileFilter(decodeExpr(t, tt.expr), tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, filterJSON(d))
		})
	}
}

func TestCompileFilter_OrChainEqualsIn(t *testing.T) {
	c := newNorthwindCompiler()

	orChain, err := c.CompileFilter(decodeExpr(t, `
or:
  - {eq: [{col: ShipCity}, {lit: Berlin}]}
  - {eq: [{col: ShipCity}, {lit: London}]}
  - {eq: [{lit: Paris}, {col: ShipCity}]}
`), "Orders")
	require.NoError(t, err)

	in, err := c.CompileFilter(decodeExpr(t, `
in: {expr: {col: ShipCity}, values: [{lit: Berlin}, {lit: London}, {lit: Paris}]}
`), "Orders")
	require.NoError(t, err)

	assert.Equal(t, in, orChain)
	assert.Equal(t, filterJSON(in), filterJSON(orChain))
}

func TestCompileFilter_OrMerging(t *testing.T) {
	c := newNorthwindCompiler()
	tests := []struct {
		name string
		expr string
		want string
	}{
		{
			name: "duplicates collapse",
			expr: `{or: [{eq: [{col: ShipCity}, {lit: A}]}, {eq: [{col: ShipCity}, {lit: B}]}, {eq: [{col: ShipCity}, {lit: A}]}]}`,
			want: `{"ShipCity":{"$in":["A","B"]}}`,
		},
		{
			name: "merged list takes the first position",
			expr: `{or: [{eq: [{col: ShipCity}, {lit: A}]}, {gt: [{col: Freight}, {lit: 10}]}, {eq: [{col: ShipCity}, {lit: B}]}]}`,
			want: `{"$or":[{"ShipCity":{"$in":["A","B"]}},{"Freight":{"$gt":10}}]}`,
		},
		{
			name: "nested or flattens",
			expr: `{or: [{eq: [{col: ShipCity}, {lit: A}]}, {or: [{eq: [{col: ShipCity}, {lit: B}]}, {in: {expr: {col: ShipCity}, values: [{lit: C}]}}]}]}`,
			want: `{"ShipCity":{"$in":["A","B","C"]}}`,
		},
		{
			name: "different columns stay apart",
			expr: `{or: [{eq: [{col: ShipCity}, {lit: A}]}, {eq: [{col: ShipCountry}, {lit: B}]}]}`,
			want: `{"$or":[{"ShipCity":"A"},{"ship.country":"B"}]}`,
		},
		{
			name: "null equality is unknown and not merged",
			expr: `{or: [{eq: [{col: ShipCity}, {lit: null}]}, {eq: [{col: ShipCity}, {lit: A}]}]}`,
			want: `{"$or":[{"$expr":null},{"ShipCity":"A"}]}`,
		},
		{
			name: "negated in is not merged",
			expr: `{or: [{not_in: {expr: {col: ShipCity}, values: [{lit: A}]}}, {eq: [{col: ShipCity}, {lit: B}]}]}`,
			want: `{"$or":[{"$and":[{"ShipCity":{"$nin":["A"]}},{"ShipCity":{"$ne":null}}]},{"ShipCity":"B"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := c.CompileFilter(decodeExpr(t, tt.expr), "Orders")
			require.NoError(t, err)
			assert.Equal(t, tt.want, filterJSON(d))
		})
	}
}

func TestCompileFilter_Like(t *testing.T) {
	c := newNorthwindCompiler()
	tests := []struct {
		name string
		expr string
		want docir.Expr
		json string
	}{
		{
			name: "contains",
			expr: `{like: {expr: {col: CompanyName}, pattern: "%er%"}}`,
			want: &docir.Regex{Expr: &docir.Field{Path: "CompanyName"}, Pattern: "er"},
			json: `{"CompanyName":{"$regularExpression":{"pattern":"er","options":""}}}`,
		},
		{
			name: "prefix",
			expr: `{like: {expr: {col: CompanyName}, pattern: "Alf%"}}`,
			want: &docir.Regex{Expr: &docir.Field{Path: "CompanyName"}, Pattern: "^Alf"},
			json: `{"CompanyName":{"$regularExpression":{"pattern":"^Alf","options":""}}}`,
		},
		{
			name: "suffix",
			expr: `{like: {expr: {col: CompanyName}, pattern: "%Horn"}}`,
			want: &docir.Regex{Expr: &docir.Field{Path: "CompanyName"}, Pattern: "Horn$"},
			json: `{"CompanyName":{"$regularExpression":{"pattern":"Horn$","options":""}}}`,
		},
		{
			name: "both ends",
			expr: `{like: {expr: {col: CompanyName}, pattern: "A%n"}}`,
			want: &docir.Regex{Expr: &docir.Field{Path: "CompanyName"}, Pattern: "^A.*n$"},
			json: `{"CompanyName":{"$regularExpression":{"pattern":"^A.*n$","options":""}}}`,
		},
		{
			name: "not like",
			expr: `{not_like: {expr: {col: CompanyName}, pattern: "A%n"}}`,
			want: &docir.Regex{Expr: &docir.Field{Path: "CompanyName"}, Pattern: "^A.*n$", Negated: true},
			json: `{"$and":[{"CompanyName":{"$not":{"$regularExpression":{"pattern":"^A.*n$","options":""}}}},{"CompanyName":{"$ne":null}}]}`,
		},
		{
			name: "case insensitive",
			expr: `{ilike: {expr: {col: CompanyName}, pattern: "alf%"}}`,
			want: &docir.Regex{Expr: &docir.Field{Path: "CompanyName"}, Pattern: "^alf", Options: "i"},
			json: `{"CompanyName":{"$regularExpression":{"pattern":"^alf","options":"i"}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := c.CompileFilter(decodeExpr(t, tt.expr), "Customers")
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
			assert.Equal(t, tt.json, filterJSON(d))
		})
	}
}

func TestCompileFilter_RowValues(t *testing.T) {
	c := newNorthwindCompiler()

	d, err := c.CompileFilter(decodeExpr(t, `{eq: [{tuple: [{col: WarehouseID}, {col: SKU}]}, {tuple: [{lit: W1}, {lit: A-1}]}]}`), "StockMoves")
	require.NoError(t, err)
	assert.Equal(t, `{"$and":[{"stock.$id.WarehouseID":"W1"},{"stock.$id.SKU":"A-1"}]}`, filterJSON(d))

	d, err = c.CompileFilter(decodeExpr(t, `{ne: [{tuple: [{col: WarehouseID}, {col: SKU}]}, {tuple: [{lit: W1}, {lit: A-1}]}]}`), "Inventory")
	require.NoError(t, err)
	assert.Equal(t, `{"$or":[{"$and":[{"_id.WarehouseID":{"$ne":"W1"}},{"_id.WarehouseID":{"$ne":null}}]},{"$and":[{"_id.SKU":{"$ne":"A-1"}},{"_id.SKU":{"$ne":null}}]}]}`, filterJSON(d))

	_, err = c.CompileFilter(decodeExpr(t, `{lt: [{tuple: [{col: WarehouseID}, {col: SKU}]}, {tuple: [{lit: W1}, {lit: A-1}]}]}`), "Inventory")
	assert.True(t, IsUnsupportedExpression(err))

	_, err = c.CompileFilter(decodeExpr(t, `{eq: [{tuple: [{col: WarehouseID}, {col: SKU}]}, {tuple: [{lit: W1}]}]}`), "Inventory")
	assert.True(t, IsUnsupportedExpression(err))
}

func TestCompileExpr_Functions(t *testing.T) {
	c := newNorthwindCompiler()
	tests := []struct {
		name  string
		table string
		expr  string
		want  string
	}{
		{"upper", "Products", `{fn: {name: UPPER, args: [{col: ProductName}]}}`, `{"$toUpper":"$ProductName"}`},
		{"lcase", "Products", `{fn: {name: lcase, args: [{col: ProductName}]}}`, `{"$toLower":"$ProductName"}`},
		{"length", "Products", `{fn: {name: length, args: [{col: ProductName}]}}`, `{"$strLenCP":"$ProductName"}`},
		{"concat", "Products", `{fn: {name: concat, args: [{col: ProductName}, {lit: " - "}, {col: ProductName}]}}`,
			`{"$concat":["$ProductName"," - ","$ProductName"]}`},
		{"substring", "Products", `{fn: {name: substring, args: [{col: ProductName}, {lit: 2}, {lit: 3}]}}`,
			`{"$substrCP":["$ProductName",1,3]}`},
		{"substring to end", "Products", `{fn: {name: substr, args: [{col: ProductName}, {lit: 2}]}}`,
			`{"$substrCP":["$ProductName",1,{"$strLenCP":"$ProductName"}]}`},
		{"substring computed start", "Products", `{fn: {name: substring, args: [{col: ProductName}, {col: UnitsInStock}, {lit: 1}]}}`,
			`{"$substrCP":["$ProductName",{"$subtract":["$UnitsInStock",1]},1]}`},
		{"locate", "Products", `{fn: {name: locate, args: [{lit: a}, {col: ProductName}]}}`,
			`{"$add":[{"$indexOfCP":["$ProductName","a"]},1]}`},
		{"locate from", "Products", `{fn: {name: locate, args: [{lit: a}, {col: ProductName}, {lit: 3}]}}`,
			`{"$add":[{"$indexOfCP":["$ProductName","a",2]},1]}`},
		{"trim", "Products", `{fn: {name: trim, args: [{col: ProductName}]}}`, `{"$trim":{"input":"$ProductName"}}`},
		{"round", "Products", `{fn: {name: round, args: [{col: UnitPrice}, {lit: 1}]}}`, `{"$round":["$UnitPrice",1]}`},
		{"power", "Products", `{fn: {name: power, args: [{col: UnitPrice}, {lit: 2}]}}`, `{"$pow":["$UnitPrice",2]}`},
		{"coalesce", "Products", `{fn: {name: coalesce, args: [{col: UnitPrice}, {col: UnitsInStock}, {lit: 0}]}}`,
			`{"$ifNull":["$UnitPrice","$UnitsInStock",0]}`},
		{"year", "Orders", `{fn: {name: year, args: [{col: OrderDate}]}}`, `{"$year":"$OrderDate"}`},
		{"dayofweek", "Orders", `{fn: {name: dayofweek, args: [{col: OrderDate}]}}`, `{"$dayOfWeek":"$OrderDate"}`},
		{"dollar string literal", "Products", `{fn: {name: concat, args: [{lit: "$5 "}, {col: ProductName}]}}`,
			`{"$concat":[{"$literal":"$5 "},"$ProductName"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := c.CompileExpr(decodeExpr(t, tt.expr), tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, aggJSON(d))
		})
	}
}

func TestCompileExpr_FunctionErrors(t *testing.T) {
	c := newNorthwindCompiler()

	_, err := c.CompileExpr(decodeExpr(t, `{fn: {name: soundex, args: [{col: ProductName}]}}`), "Products")
	require.Error(t, err)
	assert.True(t, IsUnsupportedExpression(err))
	assert.Equal(t, "soundex", err.(*TranslationError).Construct)

	_, err = c.CompileExpr(decodeExpr(t, `{fn: {name: upper, args: [{col: ProductName}, {col: ProductName}]}}`), "Products")
	assert.True(t, IsUnsupportedExpression(err))
}

func TestCompileExpr_Paths(t *testing.T) {
	c := newNorthwindCompiler()
	tests := []struct {
		table, column, want string
	}{
		{"OrderDetails", "UnitPrice", "OrderDetails.UnitPrice"},
		{"OrderDetails", "OrderID", "_id"},
		{"OrderDetails", "ProductID", "OrderDetails.ProductID.$id"},
		{"Orders", "ShipCountry", "ship.country"},
		{"Products", "CategoryID", "CategoryID.$id"},
		{"StockMoves", "SKU", "stock.$id.SKU"},
		{"Inventory", "WarehouseID", "_id.WarehouseID"},
		{"Regions", "ParentRegionID", "ParentRegionID.$id"},
		{"Categories", "Picture", "Picture"},
	}
	for _, tt := range tests {
		t.Run(tt.table+"."+tt.column, func(t *testing.T) {
			d, err := c.CompileExpr(decodeExpr(t, "{col: "+tt.column+"}"), tt.table)
			require.NoError(t, err)
			assert.Equal(t, &docir.Field{Path: tt.want}, d)
		})
	}
}

func TestCompileExpr_Errors(t *testing.T) {
	c := newNorthwindCompiler()

	_, err := c.CompileFilter(decodeExpr(t, `{is_null: {col: Picture}}`), "Categories")
	require.Error(t, err)
	assert.True(t, IsUnsupportedExpression(err))
	assert.Equal(t, "Categories.Picture", err.(*TranslationError).Construct)

	_, err = c.CompileExpr(decodeExpr(t, `{col: Nope}`), "Orders")
	assert.True(t, IsMetadataResolution(err))

	_, err = c.CompileExpr(decodeExpr(t, `{col: ShipCity}`), "Nope")
	assert.True(t, IsMetadataResolution(err))

	_, err = c.CompileExpr(decodeExpr(t, `{col: x.ShipCity}`), "Orders")
	assert.True(t, IsMetadataResolution(err))

	_, err = c.CompileExpr(decodeExpr(t, `{agg: {func: sum, arg: {col: Freight}}}`), "Orders")
	assert.True(t, IsUnsupportedExpression(err))

	_, err = c.CompileFilter(decodeExpr(t, `{in: {expr: {col: ShipCity}, values: [{col: ShipCountry}]}}`), "Orders")
	assert.True(t, IsUnsupportedExpression(err))
}

func TestCompileExpr_Literals(t *testing.T) {
	c := newNorthwindCompiler()

	d, err := c.CompileExpr(decodeExpr(t, `{lit: null}`), "Orders")
	require.NoError(t, err)
	assert.Equal(t, &docir.Literal{Value: ir.Null{}}, d)

	d, err = c.CompileExpr(decodeExpr(t, `{like: {expr: {col: ShipCity}, pattern: "B%"}}`), "Orders")
	require.NoError(t, err)
	assert.Equal(t, `{"$regexMatch":{"input":"$ShipCity","regex":"^B"}}`, aggJSON(d))
}
