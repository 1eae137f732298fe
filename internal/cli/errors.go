package cli

import (
	"errors"

	"github.com/roach88/docbridge/internal/engine"
	"github.com/roach88/docbridge/internal/querydoc"
)

// failCommand reports err through the formatter and returns the error the
// command exits with. Setup errors keep their exit code; translation and
// execution errors exit with ExitFailure under their own code.
func failCommand(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}

	code := engine.CodeOf(err)
	if code == "" {
		code = ErrCodeGeneric
	}
	_ = f.Error(code, err.Error(), errorDetails(err))
	return WrapExitError(ExitFailure, code, err)
}

// errorDetails returns the structured part of a translation or execution
// error, or nil.
func errorDetails(err error) map[string]any {
	var te *querydoc.TranslationError
	if errors.As(err, &te) && te.Construct != "" {
		return map[string]any{"construct": te.Construct}
	}
	var ee *engine.ExecError
	if errors.As(err, &ee) {
		d := map[string]any{"batch_id": ee.BatchID}
		if len(ee.Failed) > 0 {
			d["failed"] = ee.Failed
		}
		return d
	}
	return nil
}
