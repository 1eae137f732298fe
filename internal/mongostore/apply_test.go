package mongostore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
)

func TestUpdateOptions(t *testing.T) {
	opts := updateOptions(&docir.Update{Upsert: true})
	require.NotNil(t, opts.Upsert)
	assert.True(t, *opts.Upsert)
	assert.Nil(t, opts.ArrayFilters)

	elem := bson.D{{Key: "e.ProductID.$id", Value: int64(1)}}
	opts = updateOptions(&docir.Update{ArrayFilters: []bson.D{elem}})
	require.NotNil(t, opts.Upsert)
	assert.False(t, *opts.Upsert)
	require.NotNil(t, opts.ArrayFilters)
	assert.Equal(t, []any{elem}, opts.ArrayFilters.Filters)
}

func TestNonNil(t *testing.T) {
	assert.Equal(t, bson.D{}, nonNil(nil))
	f := bson.D{{Key: "_id", Value: 1}}
	assert.Equal(t, f, nonNil(f))
}

func TestAbandonKeepsDisconnectError(t *testing.T) {
	pingErr := errors.New("server selection timeout")
	closeErr := errors.New("client already closed")

	err := abandon(pingErr, func(context.Context) error { return closeErr })
	assert.ErrorIs(t, err, pingErr)
	assert.ErrorIs(t, err, closeErr)
	assert.Contains(t, err.Error(), "disconnect: client already closed")

	called := false
	err = abandon(pingErr, func(context.Context) error { called = true; return nil })
	assert.True(t, called)
	assert.Same(t, pingErr, err)
}
