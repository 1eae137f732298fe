package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
)

// MemStore is an in-memory document store for tests.
//
// It evaluates the subset of query, update and aggregation syntax the
// translator emits. Documents are stored in insertion order and every read
// returns copies.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemStore struct {
	mu          sync.Mutex
	collections map[string][]bson.D
	failures    map[string]error
	applied     []docir.Op
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		collections: map[string][]bson.D{},
		failures:    map[string]error{},
	}
}

// Seed appends documents to a collection without journaling them as ops.
func (s *MemStore) Seed(collection string, docs ...bson.D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.collections[collection] = append(s.collections[collection], normalize(cloneDoc(d)).(bson.D))
	}
}

// Docs returns a copy of a collection's documents.
func (s *MemStore) Docs(collection string) []bson.D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.collections[collection])
}

// Collections lists the collection names in sorted order.
func (s *MemStore) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FailWrites makes every later write to collection fail with err. A nil
// err clears the failure.
func (s *MemStore) FailWrites(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, collection)
		return
	}
	s.failures[collection] = err
}

// Applied returns the ops applied successfully, in order.
func (s *MemStore) Applied() []docir.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]docir.Op(nil), s.applied...)
}

func cloneAll(docs []bson.D) []bson.D {
	out := make([]bson.D, len(docs))
	for i, d := range docs {
		out[i] = cloneDoc(d)
	}
	return out
}

func (s *MemStore) find(collection string, filter bson.D) ([]int, error) {
	filter = normalize(filter).(bson.D)
	var idx []int
	for i, d := range s.collections[collection] {
		m, err := matchFilter(d, filter)
		if err != nil {
			return nil, err
		}
		if m {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// Find returns copies of the documents matching filter.
func (s *MemStore) Find(ctx context.Context, collection string, filter bson.D) ([]bson.D, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.find(collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]bson.D, len(idx))
	for i, n := range idx {
		out[i] = cloneDoc(s.collections[collection][n])
	}
	return out, nil
}

// FindOne returns the first document matching filter, or nil.
func (s *MemStore) FindOne(ctx context.Context, collection string, filter bson.D) (bson.D, error) {
	docs, err := s.Find(ctx, collection, filter)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Aggregate runs a pipeline over a collection.
func (s *MemStore) Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]bson.D, error) {
	s.mu.Lock()
	docs := cloneAll(s.collections[collection])
	s.mu.Unlock()

	stages := make([]bson.D, len(pipeline))
	for i, st := range pipeline {
		stages[i] = normalize(st).(bson.D)
	}
	return runPipeline(docs, stages)
}

// Apply executes one mutation op and returns the number of documents it
// inserted, changed or removed.
func (s *MemStore) Apply(ctx context.Context, op docir.Op) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[op.Target()]; err != nil {
		return 0, err
	}

	n, err := s.apply(op)
	if err != nil {
		return 0, err
	}
	s.applied = append(s.applied, op)
	return n, nil
}

func (s *MemStore) apply(op docir.Op) (int64, error) {
	switch o := op.(type) {
	case *docir.Insert:
		doc := normalize(cloneDoc(o.Doc)).(bson.D)
		if id, ok := lookup(doc, "_id"); ok {
			for _, d := range s.collections[o.Collection] {
				if existing, _ := lookup(d, "_id"); equalValues(existing, id) {
					return 0, fmt.Errorf("duplicate key in %s: %s", o.Collection, keyString(id))
				}
			}
		}
		s.collections[o.Collection] = append(s.collections[o.Collection], doc)
		return 1, nil
	case *docir.Update:
		return s.update(o.Collection, o.Filter, o.Update, o.ArrayFilters, o.Multi)
	case *docir.PushInto:
		return s.update(o.Collection, o.ParentFilter, o.UpdateDoc(), nil, false)
	case *docir.PullFrom:
		upd := bson.D{{Key: "$pull", Value: bson.D{{Key: o.ArrayField, Value: o.Filter}}}}
		return s.update(o.Collection, o.ParentFilter, upd, nil, true)
	case *docir.Delete:
		idx, err := s.find(o.Collection, o.Filter)
		if err != nil {
			return 0, err
		}
		if !o.Multi && len(idx) > 1 {
			idx = idx[:1]
		}
		drop := map[int]bool{}
		for _, i := range idx {
			drop[i] = true
		}
		var keep []bson.D
		for i, d := range s.collections[o.Collection] {
			if !drop[i] {
				keep = append(keep, d)
			}
		}
		s.collections[o.Collection] = keep
		return int64(len(idx)), nil
	}
	return 0, fmt.Errorf("unsupported op %T", op)
}

func (s *MemStore) update(collection string, filter bson.D, update any, arrayFilters []bson.D, multi bool) (int64, error) {
	idx, err := s.find(collection, filter)
	if err != nil {
		return 0, err
	}
	if !multi && len(idx) > 1 {
		idx = idx[:1]
	}
	normFilters := make([]bson.D, len(arrayFilters))
	for i, af := range arrayFilters {
		normFilters[i] = normalize(af).(bson.D)
	}
	u, err := newUpdateContext(normalize(filter).(bson.D), normFilters)
	if err != nil {
		return 0, err
	}
	upd := normalizeUpdate(update)

	// Build every result before storing any, so a failing update leaves
	// the collection unchanged.
	results := make([]bson.D, len(idx))
	for j, i := range idx {
		doc, err := applyUpdate(cloneDoc(s.collections[collection][i]), upd, u)
		if err != nil {
			return 0, err
		}
		results[j] = doc
	}
	for j, i := range idx {
		s.collections[collection][i] = results[j]
	}
	return int64(len(idx)), nil
}

func normalizeUpdate(update any) any {
	if stages, ok := update.([]bson.D); ok {
		out := make([]bson.D, len(stages))
		for i, st := range stages {
			out[i] = normalize(st).(bson.D)
		}
		return out
	}
	return normalize(update)
}
