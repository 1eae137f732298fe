package querydoc

import (
	"regexp"
	"strings"
)

type likeToken struct {
	any     bool // %
	one     bool // _
	literal string
}

// likeToRegex converts a LIKE pattern to an anchored regular expression.
//
// A leading % drops the start anchor and a trailing % drops the end anchor,
// so 'x%' is ^x and '%x%' is x. Interior % become .* and _ becomes a single
// character. The escape character, when non-zero, makes the next
// character literal.
func likeToRegex(pattern string, escape rune) (string, error) {
	var tokens []likeToken
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, likeToken{literal: lit.String()})
			lit.Reset()
		}
	}

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case escape != 0 && r == escape:
			if i+1 >= len(runes) {
				return "", unsupportedExpr(pattern, "LIKE pattern ends with the escape character")
			}
			i++
			lit.WriteRune(runes[i])
		case r == '%':
			flush()
			// Consecutive % are one wildcard.
			if n := len(tokens); n == 0 || !tokens[n-1].any {
				tokens = append(tokens, likeToken{any: true})
			}
		case r == '_':
			flush()
			tokens = append(tokens, likeToken{one: true})
		default:
			lit.WriteRune(r)
		}
	}
	flush()

	if len(tokens) == 1 && tokens[0].any {
		return "", nil
	}

	start, end := 0, len(tokens)
	var b strings.Builder
	if end > 0 && tokens[0].any {
		start++
	} else {
		b.WriteByte('^')
	}
	trailing := end > start && tokens[end-1].any
	if trailing {
		end--
	}
	for _, tok := range tokens[start:end] {
		switch {
		case tok.any:
			b.WriteString(".*")
		case tok.one:
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(tok.literal))
		}
	}
	if !trailing {
		b.WriteByte('$')
	}
	return b.String(), nil
}
