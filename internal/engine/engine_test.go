package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docbridge/internal/ir"
	"github.com/roach88/docbridge/internal/querydoc"
	"github.com/roach88/docbridge/internal/testutil"
)

func TestQuery_Rows(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	res, err := e.Query(context.Background(), selectStmt(t, `
select:
  items: [{expr: {col: ShipCity}}]
  from: {table: Orders}
  order_by: [{expr: {col: Freight}, desc: true}]
  limit: 2
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"ShipCity"}, res.Columns, "hidden sort keys are not columns")
	assert.Equal(t, [][]any{{"London"}, {"Berlin"}}, res.Rows)
}

func TestQuery_MissingFieldIsNull(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(testutil.NewNorthwindStore())

	_, err := e.Run(ctx, stmt(t, `
insert:
  table: Customers
  columns: [CustomerID, CompanyName]
  rows: [[{lit: BONAP}, {lit: "Bon app'"}]]
`))
	require.NoError(t, err)

	res, err := e.Run(ctx, stmt(t, `
select:
  items: [{expr: {col: CompanyName}}, {expr: {col: City}}]
  from: {table: Customers}
  where: {eq: [{col: CustomerID}, {lit: BONAP}]}
`))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Bon app'", nil}}, res.Rows)
}

func TestQuery_ScalarAggregateOverNoRows(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	res, err := e.Query(context.Background(), selectStmt(t, `
select:
  items:
    - {expr: {count_star: null}, alias: total}
    - {expr: {agg: {func: count, arg: {col: ShipCity}}}, alias: cities}
    - {expr: {agg: {func: sum, arg: {col: Freight}}}, alias: freight}
  from: {table: Orders}
  where: {eq: [{col: ShipCity}, {lit: Nowhere}]}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"total", "cities", "freight"}, res.Columns)
	assert.Equal(t, [][]any{{int64(0), int64(0), nil}}, res.Rows)
}

func TestQuery_ScalarAggregateRemovedRow(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	for name, clause := range map[string]string{
		"having":     `having: {gt: [{count_star: null}, {lit: 100}]}`,
		"offset":     `offset: 1`,
		"limit zero": `limit: 0`,
	} {
		t.Run(name, func(t *testing.T) {
			res, err := e.Query(context.Background(), selectStmt(t, `
select:
  items: [{expr: {count_star: null}, alias: n}]
  from: {table: Orders}
  `+clause+`
`))
			require.NoError(t, err)
			assert.Equal(t, []string{"n"}, res.Columns)
			assert.Empty(t, res.Rows)
		})
	}
}

func TestQuery_NullComparisonsAreUnknown(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	tests := []struct {
		name  string
		where string
		want  [][]any
	}{
		{"equals null", `{eq: [{col: Region}, {lit: null}]}`, [][]any{}},
		{"not equals null", `{ne: [{col: Region}, {lit: null}]}`, [][]any{}},
		{"not equal skips null regions", `{ne: [{col: Region}, {lit: WA}]}`, [][]any{{"AROUT"}}},
		{"not skips null regions", `{not: {eq: [{col: Region}, {lit: WA}]}}`, [][]any{{"AROUT"}}},
		{"not in skips null regions", `{not_in: {expr: {col: Region}, values: [{lit: WA}]}}`, [][]any{{"AROUT"}}},
		{"not like skips null regions", `{not_like: {expr: {col: Region}, pattern: "W%"}}`, [][]any{{"AROUT"}}},
		{"not in with a null is never true", `{not_in: {expr: {col: Country}, values: [{lit: UK}, {lit: null}]}}`, [][]any{}},
		{"is null", `{is_null: {col: Region}}`, [][]any{{"ALFKI"}, {"ANATR"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Query(context.Background(), selectStmt(t, `
select:
  items: [{expr: {col: CustomerID}}]
  from: {table: Customers}
  where: `+tt.where+`
  order_by: [{expr: {col: CustomerID}}]
`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Rows)
		})
	}
}

func TestQuery_GroupedAggregateOverNoRows(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	res, err := e.Query(context.Background(), selectStmt(t, `
select:
  items: [{expr: {col: ShipCity}}, {expr: {count_star: null}, alias: n}]
  from: {table: Orders}
  where: {eq: [{col: ShipCity}, {lit: Nowhere}]}
  group_by: [{col: ShipCity}]
`))
	require.NoError(t, err)
	assert.Empty(t, res.Rows, "grouped queries have no row per missing group")
}

func TestQuery_CountStar(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	res, err := e.Query(context.Background(), selectStmt(t, `
select:
  items: [{expr: {count_star: null}, alias: total}]
  from: {table: Orders}
`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.EqualValues(t, 3, res.Rows[0][0])
}

func TestQuery_TranslationErrorPassesThrough(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	_, err := e.Query(context.Background(), selectStmt(t, `
select:
  items: [{expr: {col: c.CompanyName}}]
  from:
    join:
      left: {table: Customers, alias: c}
      right: {table: Orders, alias: o}
      on: {eq: [{col: c.CustomerID}, {col: o.CustomerID}]}
`))
	assert.True(t, querydoc.IsUnsupportedJoin(err), "got %v", err)
	assert.Equal(t, "UNSUPPORTED_JOIN", CodeOf(err))
}

func TestDirect(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	res, err := e.Direct(context.Background(),
		`Customers;{$match: {Country: $1}};{$project: {City: 1}}`,
		[]ir.Value{ir.String("UK")})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "City"}, res.Columns)
	assert.Equal(t, [][]any{{"AROUT", "London"}}, res.Rows)
}

func TestDirect_InvalidQuery(t *testing.T) {
	e := newTestEngine(testutil.NewNorthwindStore())

	_, err := e.Direct(context.Background(), `Customers;{$limit 1}`, nil)
	assert.True(t, querydoc.IsInvalidDirectQuery(err), "got %v", err)
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewNorthwindStore()
	e := newTestEngine(store)

	p, err := e.Plan(ctx, stmt(t, `
select:
  items: [{expr: {col: UnitPrice}}]
  from: {table: OrderDetails}
`))
	require.NoError(t, err)
	require.NotNil(t, p.Pipeline)
	assert.Equal(t, "collection: Orders\n{\"$unwind\":\"$OrderDetails\"}\n{\"$project\":{\"_m0\":\"$OrderDetails.UnitPrice\"}}\n", p.Explain())

	p, err = e.Plan(ctx, stmt(t, renameBeverages))
	require.NoError(t, err)
	require.NotNil(t, p.Mutation)
	assert.Len(t, p.Mutation.FanOut, 5)
	assert.Contains(t, p.Explain(), "UPDATE Categories")
	assert.Contains(t, p.ExplainTree(), "Categories")
	assert.Empty(t, store.Applied(), "planning never writes")
}
