package querydoc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docbridge/internal/docir"
	"github.com/roach88/docbridge/internal/ir"
)

// DirectQuery is a pass-through pipeline: stages written in store syntax
// that bypass the compilers.
type DirectQuery struct {
	Collection string
	Stages     []bson.D
}

// BSON returns the stages as a pipeline.
func (q *DirectQuery) BSON() []bson.D {
	return q.Stages
}

var placeholder = regexp.MustCompile(`\$([0-9]+)`)

func invalidDirect(construct, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeInvalidDirectQuery,
		Message:   fmt.Sprintf(format, args...),
		Construct: construct,
	}
}

// ParseDirect parses "<collection>;{stage};{stage}...".
//
// $1..$n are replaced textually with the extended-JSON form of the bound
// arguments before the stages are parsed. Object keys may be left unquoted.
// The shape of the resulting pipeline is not checked.
func ParseDirect(text string, args []ir.Value) (*DirectQuery, error) {
	parts, err := splitStages(text)
	if err != nil {
		return nil, err
	}
	q := &DirectQuery{Collection: strings.TrimSpace(parts[0])}
	if q.Collection == "" {
		return nil, invalidDirect("", "missing collection name")
	}

	for i, raw := range parts[1:] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		bound, err := substitute(raw, args)
		if err != nil {
			return nil, err
		}
		var stage bson.D
		if err := bson.UnmarshalExtJSON([]byte(quoteKeys(bound)), false, &stage); err != nil {
			return nil, &TranslationError{
				Code:      ErrCodeInvalidDirectQuery,
				Message:   "stage is not a document",
				Construct: fmt.Sprintf("stage %d", i+1),
				Err:       err,
			}
		}
		q.Stages = append(q.Stages, stage)
	}
	return q, nil
}

func substitute(s string, args []ir.Value) (string, error) {
	var err error
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		n, convErr := strconv.Atoi(m[1:])
		if convErr != nil || n < 1 || n > len(args) {
			if err == nil {
				err = invalidDirect(m, "no argument bound to %s (%d given)", m, len(args))
			}
			return m
		}
		return docir.ValueJSON(ir.ToBSON(args[n-1]))
	})
	return out, err
}

// splitStages splits on semicolons outside strings and brackets.
func splitStages(s string) ([]string, error) {
	var (
		parts []string
		depth int
		start int
		inStr rune
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inStr != 0 {
			switch {
			case ch == '\\':
				i++
			case rune(ch) == inStr:
				inStr = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			inStr = rune(ch)
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return nil, invalidDirect(s, "unbalanced brackets")
			}
		case ';':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 || inStr != 0 {
		return nil, invalidDirect(s, "unbalanced brackets or quotes")
	}
	return append(parts, s[start:]), nil
}

// quoteKeys quotes bare object keys, so {$match: {City: 1}} becomes
// {"$match": {"City": 1}}.
func quoteKeys(s string) string {
	var b strings.Builder
	expectKey := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			// Copy the string through its closing quote.
			j := i + 1
			for j < len(s) && s[j] != '"' {
				if s[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(s) {
				j = len(s) - 1
			}
			b.WriteString(s[i : j+1])
			i = j
			expectKey = false
			continue
		case ch == '{' || ch == ',':
			expectKey = true
		case expectKey && isKeyStart(ch):
			j := i
			for j < len(s) && isKeyChar(s[j]) {
				j++
			}
			k := j
			for k < len(s) && (s[k] == ' ' || s[k] == '\t' || s[k] == '\n' || s[k] == '\r') {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				i = j - 1
				expectKey = false
				continue
			}
			expectKey = false
		case ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r':
			expectKey = false
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isKeyStart(c byte) bool {
	return c == '$' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKeyChar(c byte) bool {
	return isKeyStart(c) || c == '.' || (c >= '0' && c <= '9')
}
