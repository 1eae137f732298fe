package mongostore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/engine"
	"github.com/roach88/docbridge/internal/querydoc"
	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/testutil"
)

// connectTestStore connects to DOCBRIDGE_TEST_MONGO_URI and seeds a fresh
// Northwind database. Tests skip without the variable.
func connectTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("DOCBRIDGE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DOCBRIDGE_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	dbName := fmt.Sprintf("docbridge_test_%d", time.Now().UnixNano())
	s, err := Connect(ctx, uri, dbName, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close(context.Background())
	})

	for collection, docs := range testutil.NorthwindDocs() {
		for _, d := range docs {
			_, err := s.Apply(ctx, &docir.Insert{Collection: collection, Doc: d})
			require.NoError(t, err)
		}
	}
	return s
}

func decode(t *testing.T, doc string) queryir.Statement {
	t.Helper()
	stmt, err := queryir.Decode([]byte(doc))
	require.NoError(t, err)
	return stmt
}

func TestStore_QueryAndFanOut(t *testing.T) {
	ctx := context.Background()
	s := connectTestStore(t)
	e := engine.New(querydoc.New(testutil.Northwind()), s)

	res, err := e.Run(ctx, decode(t, `
select:
  items: [{expr: {col: ShipCity}}]
  from: {table: Orders}
  order_by: [{expr: {col: Freight}, desc: true}]
  limit: 2
`))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"London"}, {"Berlin"}}, res.Rows)

	res, err = e.Run(ctx, decode(t, `
update:
  table: Categories
  set: [{column: CategoryName, value: {lit: Drinks}}]
  where: {eq: [{col: CategoryID}, {lit: 1}]}
`))
	require.NoError(t, err)
	assert.Equal(t, 5, res.FanOut)

	order, err := s.FindOne(ctx, "Orders", bson.D{{Key: "_id", Value: int64(10248)}})
	require.NoError(t, err)
	lines := order.Map()["OrderDetails"].(bson.A)
	for _, l := range lines {
		product := l.(bson.D).Map()["Products"].(bson.D)
		assert.Equal(t, "Drinks", product.Map()["Categories"].(bson.D).Map()["CategoryName"])
	}
}

func TestStore_MergeRows(t *testing.T) {
	ctx := context.Background()
	s := connectTestStore(t)
	e := engine.New(querydoc.New(testutil.Northwind()), s)

	_, err := e.Run(ctx, decode(t, `
insert:
  table: OrderDetails
  columns: [OrderID, ProductID, UnitPrice, Quantity, Discount]
  rows: [[{lit: 10249}, {lit: 2}, {lit: 19.0}, {lit: 4}, {lit: 0.0}]]
`))
	require.NoError(t, err)

	res, err := e.Run(ctx, decode(t, `
delete:
  table: OrderDetails
  where:
    and:
      - {eq: [{col: OrderID}, {lit: 10249}]}
      - {eq: [{col: ProductID}, {lit: 2}]}
`))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Affected)

	order, err := s.FindOne(ctx, "Orders", bson.D{{Key: "_id", Value: int64(10249)}})
	require.NoError(t, err)
	assert.Len(t, order.Map()["OrderDetails"].(bson.A), 1)
}

func TestStore_FindOneMissing(t *testing.T) {
	s := connectTestStore(t)

	doc, err := s.FindOne(context.Background(), "Customers", bson.D{{Key: "_id", Value: "NOPE"}})
	require.NoError(t, err)
	assert.Nil(t, doc)
}
