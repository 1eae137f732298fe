package engine

// # Replay
//
// A write batch is journaled before its first op runs, with every op
// pending. Each op is marked applied as soon as the store accepts it, so
// after a crash or a partial fan-out the journal holds exactly the ops that
// may not have reached the store.
//
// Replay walks the pending ops in journal order (seq, batch id, position)
// and re-applies the idempotent ones:
//
//	update with $set/$unset   -> re-applied
//	delete, pull_from         -> re-applied
//	update pipeline           -> skipped, reported
//	insert, push_into         -> skipped, reported
//
// Fan-out refreshes are full-copy $set updates, so replaying one that did
// reach the store writes the same copy again. Inserts and pushes would
// duplicate rows; an operator decides what to do with them.
//
// Replay does not recompile statements. It applies the payload journaled
// at the time, which is the copy the statement computed.

import (
	"context"
	"errors"
	"log/slog"
)

var errNoJournal = errors.New("engine: replay needs a journal")

// Replay re-applies pending idempotent ops from the journal.
func (e *Engine) Replay(ctx context.Context) (*ReplayReport, error) {
	if e.journal == nil {
		return nil, errNoJournal
	}
	pending, err := e.journal.Pending(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{}
	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.Idempotent {
			e.metrics.op(string(entry.Op.Kind()), "skipped")
			slog.Warn("pending op is not idempotent; not replayed",
				"batch", entry.BatchID, "position", entry.Position, "kind", entry.Op.Kind(), "collection", entry.Op.Target())
			report.Skipped = append(report.Skipped, entry)
			continue
		}
		if _, err := e.apply(ctx, entry.BatchID, entry.Position, entry.Op); err != nil {
			report.Failed = append(report.Failed, entry)
			continue
		}
		report.Applied++
	}

	slog.Info("replay", "pending", len(pending), "applied", report.Applied, "skipped", len(report.Skipped), "failed", len(report.Failed))
	return report, nil
}
