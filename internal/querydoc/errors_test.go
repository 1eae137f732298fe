package querydoc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/docbridge/internal/schema"
)

func TestTranslationError_Message(t *testing.T) {
	err := unsupportedJoin("Customers JOIN Orders", "join does not follow an embedding relationship")
	assert.Equal(t, "UNSUPPORTED_JOIN: join does not follow an embedding relationship (at Customers JOIN Orders)", err.Error())

	cause := errors.New("boom")
	wrapped := &TranslationError{Code: ErrCodeMetadataResolution, Message: "metadata lookup failed", Err: cause}
	assert.Equal(t, "METADATA_RESOLUTION: metadata lookup failed: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
	}{
		{unsupportedExpr("x", "m"), IsUnsupportedExpression},
		{unsupportedJoin("a JOIN b", "m"), IsUnsupportedJoin},
		{unsupportedCascade("A -> B", "m"), IsUnsupportedCascade},
		{&TranslationError{Code: ErrCodeUnsupportedReparent}, IsUnsupportedReparent},
		{ambiguousKey("Inventory", 2, 1), IsAmbiguousKey},
		{resolution(&schema.ResolutionError{Table: "Nope"}), IsMetadataResolution},
		{missingReference("Products.CategoryID", "m"), IsMissingReference},
		{invalidDirect("", "m"), IsInvalidDirectQuery},
	}
	for _, tt := range tests {
		t.Run(string(CodeOf(tt.err)), func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("compile: %w", tt.err)), "helpers see through wrapping")
		})
	}

	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.False(t, IsUnsupportedJoin(nil))
}

func TestResolution(t *testing.T) {
	err := resolution(&schema.ResolutionError{Table: "Orders", Column: "Nope"})
	var te *TranslationError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, "Orders.Nope", te.Construct)
	assert.True(t, schema.IsResolutionError(err))

	orig := unsupportedExpr("x", "m")
	assert.Same(t, orig, resolution(orig), "translation errors pass through")
	assert.NoError(t, resolution(nil))
}

func TestAmbiguousKeyMessage(t *testing.T) {
	err := ambiguousKey("Inventory", 2, 1)
	assert.Equal(t, "Inventory", err.Construct)
	assert.Contains(t, err.Message, "1 component(s), primary key has 2")
}
