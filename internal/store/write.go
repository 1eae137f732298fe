package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
)

// ErrNoEntry is returned when a batch id and position name no journaled op.
var ErrNoEntry = errors.New("store: no such journal entry")

// Begin records a mutation as a new batch with every op pending.
//
// Primary ops take positions 0..len(Ops)-1 and fan-out ops follow. The
// batch and its ops are written in one transaction; a duplicate batch id
// fails.
func (j *Journal) Begin(ctx context.Context, id string, seq int64, m *docir.Mutation) (*Batch, error) {
	hash, err := statementHash(m)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	b := &Batch{
		ID:                id,
		Statement:         m.Statement,
		Table:             m.Table,
		StatementHash:     hash,
		Seq:               seq,
		TranslatorVersion: ir.TranslatorVersion,
		JournalFormat:     ir.JournalFormat,
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches
		(id, statement, table_name, statement_hash, seq, translator_version, journal_format)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Statement, b.Table, b.StatementHash, b.Seq, b.TranslatorVersion, b.JournalFormat)
	if err != nil {
		return nil, fmt.Errorf("begin batch %s: %w", id, err)
	}

	for i, op := range m.All() {
		phase := PhasePrimary
		if i >= len(m.Ops) {
			phase = PhaseFanOut
		}
		payload, contentHash, err := marshalOp(op)
		if err != nil {
			return nil, fmt.Errorf("begin batch %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ops
			(batch_id, position, phase, kind, collection, content_hash, payload, idempotent, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, i, string(phase), string(op.Kind()), op.Target(), contentHash, payload, boolToInt(op.Idempotent()), seq)
		if err != nil {
			return nil, fmt.Errorf("begin batch %s: op %d: %w", id, i, err)
		}
		b.Entries = append(b.Entries, Entry{
			BatchID:     id,
			Position:    i,
			Phase:       phase,
			Op:          op,
			ContentHash: contentHash,
			Idempotent:  op.Idempotent(),
			Status:      StatusPending,
			Seq:         seq,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("begin batch %s: commit: %w", id, err)
	}
	return b, nil
}

// MarkApplied records that the store accepted an op.
func (j *Journal) MarkApplied(ctx context.Context, batchID string, position int) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE ops SET status = 'applied', attempts = attempts + 1, last_error = ''
		WHERE batch_id = ? AND position = ?
	`, batchID, position)
	if err != nil {
		return fmt.Errorf("mark applied %s/%d: %w", batchID, position, err)
	}
	return requireOne(res.RowsAffected, batchID, position)
}

// MarkFailed records a failed attempt. The op stays pending.
func (j *Journal) MarkFailed(ctx context.Context, batchID string, position int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE ops SET attempts = attempts + 1, last_error = ?
		WHERE batch_id = ? AND position = ? AND status = 'pending'
	`, msg, batchID, position)
	if err != nil {
		return fmt.Errorf("mark failed %s/%d: %w", batchID, position, err)
	}
	return requireOne(res.RowsAffected, batchID, position)
}

func requireOne(affected func() (int64, error), batchID string, position int) error {
	n, err := affected()
	if err != nil {
		return fmt.Errorf("journal entry %s/%d: %w", batchID, position, err)
	}
	if n != 1 {
		return fmt.Errorf("journal entry %s/%d: %w", batchID, position, ErrNoEntry)
	}
	return nil
}
