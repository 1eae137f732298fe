package store

import (
	"path/filepath"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
)

// createTestJournal opens a journal in a temp directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// categoryUpdate is an UPDATE of one category with two fan-out refreshes.
func categoryUpdate() *docir.Mutation {
	copyDoc := bson.D{{Key: "_id", Value: int64(1)}, {Key: "CategoryName", Value: "Drinks"}}
	return &docir.Mutation{
		Statement: "UPDATE",
		Table:     "Categories",
		Ops: []docir.Op{&docir.Update{
			Collection: "Categories",
			Filter:     bson.D{{Key: "_id", Value: int64(1)}},
			Update:     bson.D{{Key: "$set", Value: bson.D{{Key: "CategoryName", Value: "Drinks"}}}},
		}},
		FanOut: []docir.Op{
			&docir.Update{
				Collection: "Products",
				Filter:     bson.D{{Key: "_id", Value: int64(1)}},
				Update:     bson.D{{Key: "$set", Value: bson.D{{Key: "Categories", Value: copyDoc}}}},
			},
			&docir.Update{
				Collection: "Products",
				Filter:     bson.D{{Key: "_id", Value: int64(2)}},
				Update:     bson.D{{Key: "$set", Value: bson.D{{Key: "Categories", Value: copyDoc}}}},
			},
		},
	}
}

// detailInsert is a MERGE insert: one non-idempotent push.
func detailInsert() *docir.Mutation {
	return &docir.Mutation{
		Statement: "INSERT",
		Table:     "OrderDetails",
		Ops: []docir.Op{&docir.PushInto{
			Collection:   "Orders",
			ParentFilter: bson.D{{Key: "_id", Value: int64(10248)}},
			ArrayField:   "OrderDetails",
			Doc:          bson.D{{Key: "UnitPrice", Value: 14.0}, {Key: "Quantity", Value: int64(12)}},
		}},
	}
}
