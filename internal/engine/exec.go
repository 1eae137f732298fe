package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/queryir"
	"github.com/roach88/docbridge/internal/store"
)

// Exec compiles and executes an INSERT, UPDATE or DELETE.
//
// Writes are at-least-once, never transactional:
//  1. the mutation is checked against the fan-out limit; over the limit
//     nothing is written
//  2. the batch is journaled with every op pending
//  3. primary ops run in order; the first failure stops the batch with
//     STORE_FAILURE and no fan-out runs
//  4. fan-out ops run concurrently; failures leave their ops pending and
//     return PARTIAL_FANOUT, without undoing the primary ops
func (e *Engine) Exec(ctx context.Context, stmt queryir.Statement) (*Result, error) {
	m, err := e.compileMutation(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if err := e.quota.Check(m.Table, len(m.FanOut)); err != nil {
		slog.Warn("fan-out limit exceeded", "table", m.Table, "fanout", len(m.FanOut), "limit", e.quota.limit)
		return nil, err
	}

	id := e.batchIDs.Generate()
	seq := e.clock.Next()
	if e.journal != nil {
		if _, err := e.journal.Begin(ctx, id, seq, m); err != nil {
			return nil, fmt.Errorf("journal batch: %w", err)
		}
	}

	res := &Result{BatchID: id}
	for i, op := range m.Ops {
		n, err := e.apply(ctx, id, i, op)
		if err != nil {
			failed := []string{opRef(id, i)}
			for j := i + 1; j < len(m.All()); j++ {
				failed = append(failed, opRef(id, j))
			}
			slog.Warn("primary op failed", "batch", id, "position", i, "kind", op.Kind(), "collection", op.Target(), "error", err)
			return nil, storeFailure(id, fmt.Sprintf("%s %s", m.Statement, m.Table), failed, err)
		}
		res.Affected += n
	}

	e.metrics.fanOut.Observe(float64(len(m.FanOut)))
	failed, firstErr := e.fanOut(ctx, id, len(m.Ops), m.FanOut)
	res.FanOut = len(m.FanOut) - len(failed)

	slog.Info("write batch",
		"batch", id,
		"seq", seq,
		"statement", m.Statement,
		"table", m.Table,
		"affected", res.Affected,
		"fanout", len(m.FanOut),
		"failed", len(failed))

	if len(failed) > 0 {
		slog.Warn("fan-out incomplete", "batch", id, "failed", failed)
		return res, &ExecError{
			Code:    ErrCodePartialFanOut,
			Message: fmt.Sprintf("%d of %d copy refreshes failed; pending ops can be replayed", len(failed), len(m.FanOut)),
			BatchID: id,
			Failed:  failed,
			Err:     firstErr,
		}
	}
	return res, nil
}

// fanOut applies ops with bounded concurrency. Every op is attempted; a
// failure does not cancel the others.
func (e *Engine) fanOut(ctx context.Context, batchID string, base int, ops []docir.Op) ([]string, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	var (
		mu     sync.Mutex
		failed = make([]bool, len(ops))
	)
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			if _, err := e.apply(ctx, batchID, base+i, op); err != nil {
				mu.Lock()
				failed[i] = true
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	firstErr := g.Wait()

	var refs []string
	for i, f := range failed {
		if f {
			refs = append(refs, opRef(batchID, base+i))
		}
	}
	return refs, firstErr
}

// apply executes one journaled op and records the outcome.
func (e *Engine) apply(ctx context.Context, batchID string, position int, op docir.Op) (int64, error) {
	n, err := e.store.Apply(ctx, op)
	if err != nil {
		e.metrics.op(string(op.Kind()), "failed")
		e.mark(ctx, batchID, position, err)
		return 0, err
	}
	e.metrics.op(string(op.Kind()), "applied")
	slog.Debug("applied op", "batch", batchID, "position", position, "kind", op.Kind(), "collection", op.Target(), "n", n)
	e.mark(ctx, batchID, position, nil)
	return n, nil
}

// mark records an op outcome in the journal. A journal error is logged and
// leaves the op pending; replay then re-applies it if it is idempotent.
func (e *Engine) mark(ctx context.Context, batchID string, position int, cause error) {
	if e.journal == nil {
		return
	}
	var err error
	if cause != nil {
		err = e.journal.MarkFailed(ctx, batchID, position, cause)
	} else {
		err = e.journal.MarkApplied(ctx, batchID, position)
	}
	if err != nil {
		slog.Warn("journal update failed", "batch", batchID, "position", position, "error", err)
	}
}

// ReplayReport summarizes one replay pass.
type ReplayReport struct {
	// Applied counts pending ops that applied on this pass.
	Applied int
	// Skipped lists pending ops that are not idempotent. They are never
	// re-applied automatically.
	Skipped []store.Entry
	// Failed lists idempotent ops that failed again.
	Failed []store.Entry
}
