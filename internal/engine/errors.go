package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/docbridge/internal/querydoc"
)

// ExecError represents a failure while executing compiled ops.
//
// Execution errors include:
//   - Store failure: a primary op or a read was rejected by the store
//   - Partial fan-out: the primary ops succeeded but some copy refreshes did not
//   - Fan-out limit: the statement would issue more refreshes than allowed
//
// Translation errors never become ExecErrors; they are returned as-is
// before any write.
type ExecError struct {
	// Code identifies the error category.
	Code ExecErrorCode

	// Message is a human-readable description.
	Message string

	// BatchID identifies the journaled write batch, if any.
	BatchID string

	// Failed names the ops that did not apply, as "<batch>/<position>".
	Failed []string

	// Err is the first underlying store error.
	Err error
}

// ExecErrorCode categorizes execution errors.
type ExecErrorCode string

const (
	// ErrCodeStoreFailure indicates the store rejected a read or a primary op.
	ErrCodeStoreFailure ExecErrorCode = "STORE_FAILURE"

	// ErrCodePartialFanOut indicates some fan-out ops failed after the
	// primary ops applied. The failed ops stay pending in the journal.
	ErrCodePartialFanOut ExecErrorCode = "PARTIAL_FANOUT"

	// ErrCodeFanOutLimit indicates the statement exceeded max_fanout.
	// Nothing was written.
	ErrCodeFanOutLimit ExecErrorCode = "FANOUT_LIMIT"
)

// Error implements the error interface.
func (e *ExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.BatchID != "" {
		fmt.Fprintf(&b, " (batch=%s)", e.BatchID)
	}
	if len(e.Failed) > 0 {
		fmt.Fprintf(&b, " failed=[%s]", strings.Join(e.Failed, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func hasExecCode(err error, code ExecErrorCode) bool {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsStoreFailure returns true if the error is a store failure.
// Uses errors.As to handle wrapped errors.
func IsStoreFailure(err error) bool { return hasExecCode(err, ErrCodeStoreFailure) }

// IsPartialFanOut returns true if some fan-out ops failed.
func IsPartialFanOut(err error) bool { return hasExecCode(err, ErrCodePartialFanOut) }

// IsFanOutLimit returns true if the statement exceeded the fan-out limit.
func IsFanOutLimit(err error) bool { return hasExecCode(err, ErrCodeFanOutLimit) }

// CodeOf returns the translation or execution code carried by err, or ""
// if err carries neither.
func CodeOf(err error) string {
	var ee *ExecError
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	return string(querydoc.CodeOf(err))
}

func storeFailure(batchID, message string, failed []string, err error) *ExecError {
	return &ExecError{Code: ErrCodeStoreFailure, Message: message, BatchID: batchID, Failed: failed, Err: err}
}

func opRef(batchID string, position int) string {
	return fmt.Sprintf("%s/%d", batchID, position)
}
