package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
	"github.com/roach88/docbridge/internal/querydoc"
	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/store"
)

// Store is the document store the engine executes against.
// Implemented by mongostore.Store and testutil.MemStore.
type Store interface {
	querydoc.Fetcher
	Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]bson.D, error)
	// Apply executes one op and returns the number of documents it matched.
	Apply(ctx context.Context, op docir.Op) (int64, error)
}

// Engine compiles statements and executes them against a Store.
//
// Thread-safety model:
//   - Query, Direct, Exec and Plan are safe from any goroutine
//   - the compiler and schema model are read-only
//   - journal writes are serialized by the journal's single connection
type Engine struct {
	compiler *querydoc.Compiler
	store    Store
	journal  *store.Journal
	clock    *Clock
	batchIDs BatchIDGenerator
	metrics  *Metrics

	quota       fanOutQuota
	concurrency int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithJournal records every write batch in j. Without a journal, writes
// still run but failed fan-out ops cannot be replayed.
func WithJournal(j *store.Journal) EngineOption {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithClock sets the clock that stamps write batches.
// Use NewClockAt(journal.LastSeq) to continue an existing journal.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithBatchIDs sets the batch id generator.
func WithBatchIDs(g BatchIDGenerator) EngineOption {
	return func(e *Engine) {
		e.batchIDs = g
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMaxFanOut caps fan-out ops per statement.
//
// Default: 1000 (DefaultMaxFanOut). Zero disables the cap.
func WithMaxFanOut(n int) EngineOption {
	return func(e *Engine) {
		e.quota = fanOutQuota{limit: n}
	}
}

// WithFanOutConcurrency sets the number of concurrent fan-out workers.
//
// Default: 8 (DefaultFanOutConcurrency). Values below 1 mean 1.
func WithFanOutConcurrency(n int) EngineOption {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// New creates an Engine over a compiler and a store.
func New(c *querydoc.Compiler, s Store, opts ...EngineOption) *Engine {
	e := &Engine{
		compiler:    c,
		clock:       NewClock(),
		batchIDs:    UUIDv7Generator{},
		quota:       fanOutQuota{limit: DefaultMaxFanOut},
		concurrency: DefaultFanOutConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics()
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	e.store = &timedStore{Store: s, metrics: e.metrics}
	return e
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Plan is a compiled statement: a pipeline for a SELECT, a mutation otherwise.
type Plan struct {
	Pipeline *docir.Pipeline
	Mutation *docir.Mutation
}

// Explain renders the plan as one line per stage or op.
func (p *Plan) Explain() string {
	if p.Pipeline != nil {
		return p.Pipeline.Explain()
	}
	return p.Mutation.Explain()
}

// ExplainTree renders the plan as a tree.
func (p *Plan) ExplainTree() string {
	if p.Pipeline != nil {
		return p.Pipeline.ExplainTree()
	}
	return p.Mutation.ExplainTree()
}

// Plan compiles a statement without executing it. Mutations that copy
// embedded rows or fan out still read the store.
func (e *Engine) Plan(ctx context.Context, stmt queryir.Statement) (*Plan, error) {
	if sel, ok := stmt.(*queryir.Select); ok {
		p, err := e.compileSelect(sel)
		if err != nil {
			return nil, err
		}
		return &Plan{Pipeline: p}, nil
	}
	m, err := e.compileMutation(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return &Plan{Mutation: m}, nil
}

// Run executes any statement.
func (e *Engine) Run(ctx context.Context, stmt queryir.Statement) (*Result, error) {
	if sel, ok := stmt.(*queryir.Select); ok {
		return e.Query(ctx, sel)
	}
	return e.Exec(ctx, stmt)
}

// Query compiles a SELECT and returns its rows.
func (e *Engine) Query(ctx context.Context, sel *queryir.Select) (*Result, error) {
	p, err := e.compileSelect(sel)
	if err != nil {
		return nil, err
	}
	docs, err := e.store.Aggregate(ctx, p.Collection, p.BSON())
	if err != nil {
		return nil, storeFailure("", "aggregate on "+p.Collection, nil, err)
	}
	return adaptRows(p, docs), nil
}

// Direct runs a pass-through pipeline. Result columns are the keys of the
// returned documents in first-seen order.
func (e *Engine) Direct(ctx context.Context, text string, args []ir.Value) (*Result, error) {
	q, err := querydoc.ParseDirect(text, args)
	e.metrics.compiled("DIRECT", err)
	if err != nil {
		return nil, err
	}
	slog.Debug("direct query", "collection", q.Collection, "stages", len(q.Stages))
	docs, err := e.store.Aggregate(ctx, q.Collection, q.BSON())
	if err != nil {
		return nil, storeFailure("", "aggregate on "+q.Collection, nil, err)
	}
	return documentRows(docs), nil
}

func (e *Engine) compileSelect(sel *queryir.Select) (*docir.Pipeline, error) {
	p, err := e.compiler.CompileSelect(sel)
	e.metrics.compiled("SELECT", err)
	if err != nil {
		slog.Debug("compile failed", "statement", "SELECT", "error", err)
		return nil, err
	}
	slog.Debug("compiled", "statement", "SELECT", "collection", p.Collection, "stages", len(p.Stages))
	return p, nil
}

func (e *Engine) compileMutation(ctx context.Context, stmt queryir.Statement) (*docir.Mutation, error) {
	m, err := e.compiler.CompileMutation(ctx, stmt, e.store)
	kind := statementKind(stmt)
	e.metrics.compiled(kind, err)
	if err != nil {
		slog.Debug("compile failed", "statement", kind, "error", err)
		// A failed read during compilation is a store problem, not a
		// translation problem.
		var te *querydoc.TranslationError
		if !errors.As(err, &te) && !errors.Is(err, ctx.Err()) {
			return nil, storeFailure("", "read during "+kind+" compilation", nil, err)
		}
		return nil, err
	}
	slog.Debug("compiled", "statement", kind, "table", m.Table, "ops", len(m.Ops), "fanout", len(m.FanOut))
	return m, nil
}

func statementKind(stmt queryir.Statement) string {
	switch stmt.(type) {
	case *queryir.Select:
		return "SELECT"
	case *queryir.Insert:
		return "INSERT"
	case *queryir.Update:
		return "UPDATE"
	case *queryir.Delete:
		return "DELETE"
	default:
		return fmt.Sprintf("%T", stmt)
	}
}

// timedStore records store call latency.
type timedStore struct {
	Store
	metrics *Metrics
}

func (s *timedStore) Find(ctx context.Context, collection string, filter bson.D) ([]bson.D, error) {
	defer s.metrics.storeCall("find", time.Now())
	return s.Store.Find(ctx, collection, filter)
}

func (s *timedStore) FindOne(ctx context.Context, collection string, filter bson.D) (bson.D, error) {
	defer s.metrics.storeCall("find_one", time.Now())
	return s.Store.FindOne(ctx, collection, filter)
}

func (s *timedStore) Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]bson.D, error) {
	defer s.metrics.storeCall("aggregate", time.Now())
	return s.Store.Aggregate(ctx, collection, pipeline)
}

func (s *timedStore) Apply(ctx context.Context, op docir.Op) (int64, error) {
	defer s.metrics.storeCall("apply", time.Now())
	return s.Store.Apply(ctx, op)
}
