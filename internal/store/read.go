package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docbridge/internal/docir"
)

// Phase says whether an op was a primary op or a fan-out refresh.
type Phase string

const (
	PhasePrimary Phase = "primary"
	PhaseFanOut  Phase = "fanout"
)

// Status is the apply state of a journaled op.
type Status string

const (
	StatusPending Status = "pending"
	StatusApplied Status = "applied"
)

// ErrBatchNotFound is returned by ReadBatch for an unknown id.
var ErrBatchNotFound = errors.New("store: batch not found")

// Batch is one journaled write statement.
type Batch struct {
	ID                string
	Statement         string
	Table             string
	StatementHash     string
	Seq               int64
	TranslatorVersion string
	JournalFormat     string
	Entries           []Entry
}

// Entry is one journaled op.
type Entry struct {
	BatchID     string
	Position    int
	Phase       Phase
	Op          docir.Op
	ContentHash string
	Idempotent  bool
	Status      Status
	Attempts    int
	LastError   string
	Seq         int64
}

// Stats counts journal rows.
type Stats struct {
	Batches int
	Pending int
	Applied int
}

const entryColumns = `batch_id, position, phase, payload, content_hash, idempotent, status, attempts, last_error, seq`

// Pending returns every pending op.
// Results are ordered deterministically: ORDER BY seq ASC, batch_id ASC, position ASC.
//
// Returns an empty slice (not nil) when nothing is pending.
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ops
		WHERE status = 'pending'
		ORDER BY seq ASC, batch_id COLLATE BINARY ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending ops: %w", err)
	}
	return scanEntries(rows)
}

// ReadBatch returns a batch with all of its ops in position order.
func (j *Journal) ReadBatch(ctx context.Context, id string) (*Batch, error) {
	b := &Batch{}
	err := j.db.QueryRowContext(ctx, `
		SELECT id, statement, table_name, statement_hash, seq, translator_version, journal_format
		FROM batches WHERE id = ?
	`, id).Scan(&b.ID, &b.Statement, &b.Table, &b.StatementHash, &b.Seq, &b.TranslatorVersion, &b.JournalFormat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read batch %s: %w", id, ErrBatchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", id, err)
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ops WHERE batch_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read batch %s ops: %w", id, err)
	}
	b.Entries, err = scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// LastSeq returns the highest batch seq, or 0 for an empty journal.
// The engine resumes its clock from here.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM batches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// Stats counts batches and ops by status.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := j.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM batches),
			(SELECT COUNT(*) FROM ops WHERE status = 'pending'),
			(SELECT COUNT(*) FROM ops WHERE status = 'applied')
	`).Scan(&st.Batches, &st.Pending, &st.Applied)
	if err != nil {
		return Stats{}, fmt.Errorf("journal stats: %w", err)
	}
	return st, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			phase      string
			status     string
			payload    string
			idempotent int
		)
		if err := rows.Scan(&e.BatchID, &e.Position, &phase, &payload, &e.ContentHash, &idempotent, &status, &e.Attempts, &e.LastError, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan op: %w", err)
		}
		op, err := unmarshalOp(payload)
		if err != nil {
			return nil, fmt.Errorf("op %s/%d: %w", e.BatchID, e.Position, err)
		}
		e.Op = op
		e.Phase = Phase(phase)
		e.Status = Status(status)
		e.Idempotent = idempotent != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ops: %w", err)
	}
	return entries, nil
}
