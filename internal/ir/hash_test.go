package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestContentID_Deterministic(t *testing.T) {
	doc := bson.D{{Key: "collection", Value: "Orders"}, {Key: "id", Value: int64(10248)}}

	id1, err := ContentID(DomainMutationOp, doc)
	require.NoError(t, err)
	id2, err := ContentID(DomainMutationOp, doc)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestContentID_FieldOrderMatters(t *testing.T) {
	a := bson.D{{Key: "OrderID", Value: int64(1)}, {Key: "ProductID", Value: int64(2)}}
	b := bson.D{{Key: "ProductID", Value: int64(2)}, {Key: "OrderID", Value: int64(1)}}

	idA, err := ContentID(DomainMutationOp, a)
	require.NoError(t, err)
	idB, err := ContentID(DomainMutationOp, b)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestContentID_DomainSeparation(t *testing.T) {
	doc := bson.D{{Key: "x", Value: int64(1)}}

	op, err := ContentID(DomainMutationOp, doc)
	require.NoError(t, err)
	stmt, err := ContentID(DomainStatement, doc)
	require.NoError(t, err)

	assert.NotEqual(t, op, stmt)
}
