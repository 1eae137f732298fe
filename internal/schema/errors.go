package schema

import (
	"errors"
	"fmt"
)

// ResolutionError reports a name the model could not resolve.
type ResolutionError struct {
	Table  string
	Column string // empty when the table itself is unknown
}

func (e *ResolutionError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("unknown table %q", e.Table)
	}
	return fmt.Sprintf("unknown column %q in table %q", e.Column, e.Table)
}

// IsResolutionError reports whether err is (or wraps) a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// ValidationError reports a table definition that violates a model invariant.
type ValidationError struct {
	Table   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("table %s: %s", e.Table, e.Message)
}

// ValidationErrors collects every violation found while building a model.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
}
