package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/querydoc"
	"github.com/roach88/docbridge/internal/store"
	"github.com/roach88/docbridge/internal/testutil"
)

func findDoc(t *testing.T, s *testutil.MemStore, collection string, id any) bson.D {
	t.Helper()
	d, err := s.FindOne(context.Background(), collection, bson.D{{Key: "_id", Value: id}})
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

// categoryCopies returns the CategoryName of every embedded Categories copy
// of category 1.
func categoryCopies(t *testing.T, s *testutil.MemStore) []string {
	t.Helper()
	res, err := s.Aggregate(context.Background(), "Orders", []bson.D{
		{{Key: "$unwind", Value: "$OrderDetails"}},
		{{Key: "$match", Value: bson.D{{Key: "OrderDetails.Products.CategoryID.$id", Value: int64(1)}}}},
		{{Key: "$project", Value: bson.D{{Key: "name", Value: "$OrderDetails.Products.Categories.CategoryName"}}}},
	})
	require.NoError(t, err)
	var names []string
	for _, d := range res {
		names = append(names, lookup(d, "name").(string))
	}
	for _, id := range []int64{1, 2} {
		p := findDoc(t, s, "Products", id)
		names = append(names, lookup(lookup(p, "Categories").(bson.D), "CategoryName").(string))
	}
	return names
}

func TestExec_UpdateWithFanOut(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewNorthwindStore()
	j := openJournal(t)
	e := newTestEngine(s, WithJournal(j), WithBatchIDs(NewFixedGenerator("b1")), WithFanOutConcurrency(2))

	res, err := e.Exec(ctx, stmt(t, renameBeverages))
	require.NoError(t, err)
	assert.Equal(t, "b1", res.BatchID)
	assert.EqualValues(t, 1, res.Affected)
	assert.Equal(t, 5, res.FanOut)

	assert.Equal(t, "Drinks", lookup(findDoc(t, s, "Categories", int64(1)), "CategoryName"))
	for _, name := range categoryCopies(t, s) {
		assert.Equal(t, "Drinks", name)
	}

	st, err := j.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Batches: 1, Pending: 0, Applied: 6}, st)

	b, err := j.ReadBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Seq)
	assert.Equal(t, "UPDATE", b.Statement)
}

func TestExec_WithoutJournal(t *testing.T) {
	s := testutil.NewNorthwindStore()
	e := newTestEngine(s)

	res, err := e.Exec(context.Background(), stmt(t, renameBeverages))
	require.NoError(t, err)
	assert.Len(t, res.BatchID, 36, "batch ids are uuids even without a journal")
	assert.Len(t, s.Applied(), 6)
}

func TestExec_PartialFanOutThenReplay(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewNorthwindStore()
	j := openJournal(t)
	e := newTestEngine(s, WithJournal(j), WithBatchIDs(NewFixedGenerator("b1")))

	offline := errors.New("orders shard offline")
	s.FailWrites("Orders", offline)

	res, err := e.Exec(ctx, stmt(t, renameBeverages))
	require.Error(t, err)
	assert.True(t, IsPartialFanOut(err), "got %v", err)
	assert.ErrorIs(t, err, offline)

	var ee *ExecError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "b1", ee.BatchID)
	assert.Equal(t, []string{"b1/3", "b1/4", "b1/5"}, ee.Failed)

	require.NotNil(t, res, "the primary op applied, so a result is returned")
	assert.EqualValues(t, 1, res.Affected)
	assert.Equal(t, 2, res.FanOut)
	assert.Equal(t, "Drinks", lookup(findDoc(t, s, "Categories", int64(1)), "CategoryName"), "no rollback")

	pending, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for _, p := range pending {
		assert.Equal(t, store.PhaseFanOut, p.Phase)
		assert.Equal(t, 1, p.Attempts)
		assert.Equal(t, "orders shard offline", p.LastError)
	}

	// Still offline: replay fails again and keeps the ops pending.
	report, err := e.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
	assert.Len(t, report.Failed, 3)

	s.FailWrites("Orders", nil)
	report, err = e.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Applied)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Failed)

	for _, name := range categoryCopies(t, s) {
		assert.Equal(t, "Drinks", name)
	}
	pending, err = j.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExec_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewNorthwindStore()
	j := openJournal(t)
	e := newTestEngine(s, WithJournal(j), WithBatchIDs(NewFixedGenerator("b1")))

	s.FailWrites("Products", errors.New("timeout"))
	_, err := e.Exec(ctx, stmt(t, renameBeverages))
	require.True(t, IsPartialFanOut(err))
	s.FailWrites("Products", nil)

	before := s.Docs("Orders")
	report, err := e.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, before, s.Docs("Orders"), "replay touches only pending ops")

	report, err = e.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied, "nothing left to replay")
}

func TestExec_PrimaryFailureStopsBatch(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewNorthwindStore()
	j := openJournal(t)
	e := newTestEngine(s, WithJournal(j), WithBatchIDs(NewFixedGenerator("b1")))

	s.FailWrites("Categories", errors.New("disk full"))
	res, err := e.Exec(ctx, stmt(t, renameBeverages))
	assert.Nil(t, res)
	assert.True(t, IsStoreFailure(err), "got %v", err)

	var ee *ExecError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, []string{"b1/0", "b1/1", "b1/2", "b1/3", "b1/4", "b1/5"}, ee.Failed)
	assert.Empty(t, s.Applied(), "no fan-out after a failed primary op")

	st, err := j.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Pending)
}

func TestExec_FanOutLimit(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewNorthwindStore()
	j := openJournal(t)
	e := newTestEngine(s, WithJournal(j), WithMaxFanOut(2))

	_, err := e.Exec(ctx, stmt(t, renameBeverages))
	assert.True(t, IsFanOutLimit(err), "got %v", err)
	assert.Empty(t, s.Applied())

	st, err := j.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Batches, "nothing is journaled over the limit")
}

func TestExec_NonIdempotentOpsAreNotReplayed(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewNorthwindStore()
	j := openJournal(t)
	e := newTestEngine(s, WithJournal(j), WithBatchIDs(NewFixedGenerator("b1")))

	insertDetail := stmt(t, `
insert:
  table: OrderDetails
  columns: [OrderID, ProductID, UnitPrice, Quantity, Discount]
  rows: [[{lit: 10249}, {lit: 2}, {lit: 19.0}, {lit: 4}, {lit: 0.0}]]
`)
	s.FailWrites("Orders", errors.New("timeout"))
	_, err := e.Exec(ctx, insertDetail)
	require.True(t, IsStoreFailure(err))
	s.FailWrites("Orders", nil)

	report, err := e.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, docir.KindPushInto, report.Skipped[0].Op.Kind())
	assert.Empty(t, s.Applied())

	pending, err := j.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "skipped ops stay pending")
}

func TestExec_TranslationErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewNorthwindStore()
	j := openJournal(t)
	e := newTestEngine(s, WithJournal(j))

	_, err := e.Exec(ctx, stmt(t, `
update:
  table: Regions
  set: [{column: RegionName, value: {lit: EU}}]
  where: {eq: [{col: RegionID}, {lit: 1}]}
`))
	assert.True(t, querydoc.IsUnsupportedCascade(err), "got %v", err)
	assert.Empty(t, s.Applied())

	st, err := j.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Batches)
}

func TestExec_SeqResumesFromJournal(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	first := newTestEngine(testutil.NewNorthwindStore(), WithJournal(j), WithBatchIDs(NewFixedGenerator("a", "b")))
	for i := 0; i < 2; i++ {
		_, err := first.Exec(ctx, stmt(t, renameBeverages))
		require.NoError(t, err)
	}

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	second := newTestEngine(testutil.NewNorthwindStore(),
		WithJournal(j), WithClock(NewClockAt(last)), WithBatchIDs(NewFixedGenerator("c")))
	_, err = second.Exec(ctx, stmt(t, renameBeverages))
	require.NoError(t, err)

	b, err := j.ReadBatch(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.Seq)
}

func TestReplay_NeedsJournal(t *testing.T) {
	_, err := newTestEngine(testutil.NewNorthwindStore()).Replay(context.Background())
	assert.ErrorIs(t, err, errNoJournal)
}

func TestExec_ReadFailureDuringCompile(t *testing.T) {
	e := newTestEngine(failingReads{testutil.NewNorthwindStore()})

	_, err := e.Exec(context.Background(), stmt(t, renameBeverages))
	assert.True(t, IsStoreFailure(err), "got %v", err)
}

// failingReads is a store whose reads always fail.
type failingReads struct {
	*testutil.MemStore
}

func (failingReads) Find(context.Context, string, bson.D) ([]bson.D, error) {
	return nil, errors.New("read timeout")
}

func (failingReads) FindOne(context.Context, string, bson.D) (bson.D, error) {
	return nil, errors.New("read timeout")
}
