package querydoc

import (
	"errors"
	"fmt"

	"github.com/roach88/docbridge/internal/schema"
)

// TranslationError is a command the translator cannot compile.
//
// Translation errors are detected before any store I/O and abort the whole
// command. They are never retried.
type TranslationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Construct identifies the offending part of the command: a column
	// name, a join pair, or a cascade path.
	Construct string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes translation errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedExpression indicates a scalar construct with no
	// document-store equivalent.
	ErrCodeUnsupportedExpression ErrorCode = "UNSUPPORTED_EXPRESSION"

	// ErrCodeUnsupportedJoin indicates a join that does not mirror an
	// embedding relationship.
	ErrCodeUnsupportedJoin ErrorCode = "UNSUPPORTED_JOIN"

	// ErrCodeUnsupportedCascade indicates an update whose copy refresh would
	// follow an ambiguous or cyclic embedding.
	ErrCodeUnsupportedCascade ErrorCode = "UNSUPPORTED_CASCADE"

	// ErrCodeUnsupportedReparent indicates a SET on a MERGE table's owning key.
	ErrCodeUnsupportedReparent ErrorCode = "UNSUPPORTED_REPARENT"

	// ErrCodeAmbiguousKey indicates a key built from more or fewer values
	// than the declared primary key has columns.
	ErrCodeAmbiguousKey ErrorCode = "AMBIGUOUS_KEY_RESOLUTION"

	// ErrCodeMetadataResolution indicates a table or column the metadata
	// could not resolve.
	ErrCodeMetadataResolution ErrorCode = "METADATA_RESOLUTION"

	// ErrCodeMissingReference indicates a referenced row needed for an
	// embedded copy or a MERGE parent does not exist.
	ErrCodeMissingReference ErrorCode = "MISSING_REFERENCE"

	// ErrCodeInvalidDirectQuery indicates a malformed pass-through query.
	ErrCodeInvalidDirectQuery ErrorCode = "INVALID_DIRECT_QUERY"
)

// Error implements the error interface.
func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Construct != "" {
		msg += fmt.Sprintf(" (at %s)", e.Construct)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TranslationError) Unwrap() error {
	return e.Err
}

// CodeOf returns the translation error code of err, or "" if err is not a
// translation error.
func CodeOf(err error) ErrorCode {
	var te *TranslationError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsUnsupportedExpression reports whether err is an unsupported expression error.
func IsUnsupportedExpression(err error) bool { return hasCode(err, ErrCodeUnsupportedExpression) }

// IsUnsupportedJoin reports whether err is an unsupported join error.
func IsUnsupportedJoin(err error) bool { return hasCode(err, ErrCodeUnsupportedJoin) }

// IsUnsupportedCascade reports whether err is an unsupported cascade error.
func IsUnsupportedCascade(err error) bool { return hasCode(err, ErrCodeUnsupportedCascade) }

// IsUnsupportedReparent reports whether err is an unsupported re-parent error.
func IsUnsupportedReparent(err error) bool { return hasCode(err, ErrCodeUnsupportedReparent) }

// IsAmbiguousKey reports whether err is an ambiguous key resolution error.
func IsAmbiguousKey(err error) bool { return hasCode(err, ErrCodeAmbiguousKey) }

// IsMetadataResolution reports whether err is a metadata resolution error.
func IsMetadataResolution(err error) bool { return hasCode(err, ErrCodeMetadataResolution) }

// IsMissingReference reports whether err is a missing reference error.
func IsMissingReference(err error) bool { return hasCode(err, ErrCodeMissingReference) }

// IsInvalidDirectQuery reports whether err is an invalid direct query error.
func IsInvalidDirectQuery(err error) bool { return hasCode(err, ErrCodeInvalidDirectQuery) }

func unsupportedExpr(construct, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeUnsupportedExpression,
		Message:   fmt.Sprintf(format, args...),
		Construct: construct,
	}
}

func unsupportedJoin(pair, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeUnsupportedJoin,
		Message:   fmt.Sprintf(format, args...),
		Construct: pair,
	}
}

func unsupportedCascade(path, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeUnsupportedCascade,
		Message:   fmt.Sprintf(format, args...),
		Construct: path,
	}
}

func ambiguousKey(table string, want, got int) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeAmbiguousKey,
		Message:   fmt.Sprintf("key has %d component(s), primary key has %d", got, want),
		Construct: table,
	}
}

func missingReference(construct, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeMissingReference,
		Message:   fmt.Sprintf(format, args...),
		Construct: construct,
	}
}

// resolution wraps a metadata lookup failure. Errors that are already
// translation errors pass through unchanged.
func resolution(err error) error {
	if err == nil {
		return nil
	}
	var te *TranslationError
	if errors.As(err, &te) {
		return err
	}
	construct := ""
	var re *schema.ResolutionError
	if errors.As(err, &re) {
		construct = re.Table
		if re.Column != "" {
			construct += "." + re.Column
		}
	}
	return &TranslationError{
		Code:      ErrCodeMetadataResolution,
		Message:   "metadata lookup failed",
		Construct: construct,
		Err:       err,
	}
}
