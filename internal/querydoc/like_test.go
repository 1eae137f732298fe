package querydoc

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeToRegex(t *testing.T) {
	tests := []struct {
		pattern string
		escape  rune
		want    string
	}{
		{pattern: "%x%", want: "x"},
		{pattern: "x%", want: "^x"},
		{pattern: "%x", want: "x$"},
		{pattern: "x%y", want: "^x.*y$"},
		{pattern: "x", want: "^x$"},
		{pattern: "%", want: ""},
		{pattern: "%%", want: ""},
		{pattern: "", want: "^$"},
		{pattern: "%%ab%%", want: "ab"},
		{pattern: "_x", want: "^.x$"},
		{pattern: "a_%", want: "^a."},
		{pattern: "a.b%", want: `^a\.b`},
		{pattern: "(1+1)%", want: `^\(1\+1\)`},
		{pattern: `10\%%`, escape: '\\', want: "^10%"},
		{pattern: `a\_b`, escape: '\\', want: "^a_b$"},
		{pattern: "a!%b", escape: '!', want: "^a%b$"},
		{pattern: "x%y%z", want: "^x.*y.*z$"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := likeToRegex(tt.pattern, tt.escape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			_, err = regexp.Compile(got)
			assert.NoError(t, err)
		})
	}
}

func TestLikeToRegex_TrailingEscape(t *testing.T) {
	_, err := likeToRegex(`abc\`, '\\')
	require.Error(t, err)
	assert.True(t, IsUnsupportedExpression(err))
}

func TestLikeToRegex_Matches(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		match   bool
	}{
		{"Ber%", "Berlin", true},
		{"Ber%", "ABerlin", false},
		{"%lin", "Berlin", true},
		{"%lin", "Berlins", false},
		{"B%n", "Berlin", true},
		{"B%n", "Bern", true},
		{"B%n", "Berlino", false},
		{"%erl%", "Berlin", true},
		{"B_rlin", "Berlin", true},
		{"B_rlin", "Brlin", false},
	}
	for _, tt := range tests {
		re, err := likeToRegex(tt.pattern, 0)
		require.NoError(t, err)
		assert.Equal(t, tt.match, regexp.MustCompile(re).MatchString(tt.input), "%s ~ %s", tt.input, tt.pattern)
	}
}
