package engine

import "fmt"

// DefaultMaxFanOut is the default cap on fan-out ops per statement.
const DefaultMaxFanOut = 1000

// DefaultFanOutConcurrency is the default number of fan-out workers.
const DefaultFanOutConcurrency = 8

// fanOutQuota caps the copy refreshes one statement may issue.
//
// The check runs after compilation and before the batch is journaled, so a
// statement over the limit writes nothing. A limit of 0 or less disables
// the check.
type fanOutQuota struct {
	limit int
}

// Check returns a FANOUT_LIMIT error if n refreshes exceed the limit.
func (q fanOutQuota) Check(table string, n int) error {
	if q.limit <= 0 || n <= q.limit {
		return nil
	}
	return &ExecError{
		Code:    ErrCodeFanOutLimit,
		Message: fmt.Sprintf("update of %s needs %d fan-out ops (limit %d)", table, n, q.limit),
	}
}
