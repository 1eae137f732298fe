package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/docbridge/internal/compiler"
	"github.com/roach88/docbridge/internal/schema"
)

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// schemas caches compiled models for the lifetime of the process.
var schemas = schema.NewCache()

// LoadSchema compiles the CUE schema in dir. Every failure is returned as
// one or more *LoadError values carrying a CLI error code.
func LoadSchema(dir string) (*compiler.Loaded, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	loaded, err := compiler.LoadSchemaDir(dir, schemas)
	if err != nil {
		return nil, convertLoadError(err)
	}
	return loaded, nil
}

// convertLoadError splits a schema failure into LoadErrors with codes and
// positions.
func convertLoadError(err error) []error {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return []error{&LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}}
	}

	var verrs schema.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]error, len(verrs))
		for i, v := range verrs {
			out[i] = &LoadError{Code: ErrCodeInvalidModel, Message: v.Error()}
		}
		return out
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return []error{&LoadError{Code: ErrCodeInvalidModel, Message: verr.Error()}}
	}

	return []error{&LoadError{Code: ErrCodeGeneric, Message: err.Error()}}
}

// Error code constants - unified across all CLI commands. Translation and
// execution failures use the engine's own codes instead.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // Command file or CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConnect     = "E008" // Store or journal unavailable

	// Table definition errors
	ErrCodeInvalidTable  = "E101" // Missing or malformed table
	ErrCodeInvalidKind   = "E102" // Unknown merge kind
	ErrCodeInvalidColumn = "E103" // Missing or duplicate column
	ErrCodeInvalidType   = "E104" // Unknown column type
	ErrCodeInvalidFK     = "E105" // Malformed foreign key
	ErrCodeInvalidModel  = "E110" // Cross-table validation failed
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "table":
		return ErrCodeInvalidTable
	case "kind":
		return ErrCodeInvalidKind
	case "columns", "columns.name":
		return ErrCodeInvalidColumn
	case "columns.type":
		return ErrCodeInvalidType
	case "foreign_keys", "foreign_keys.columns", "foreign_keys.references":
		return ErrCodeInvalidFK
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}
