// Package store is the SQLite mutation journal.
//
// Every write batch is recorded before any of its ops reach the document
// store. Each op row carries its canonical Extended JSON payload, a content
// hash and an idempotency flag, and stays pending until the store accepts
// it. Pending idempotent ops can be re-applied after a crash or a partial
// fan-out; pending non-idempotent ops are only reported.
//
// # Ordering
//
// Batches are stamped with a logical seq, never a wall-clock time. Reads
// order by seq, then batch id, then op position, so replay order does not
// depend on insertion timing.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Ops must belong to a batch
package store
