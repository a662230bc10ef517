package query

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokParam
	tokPunct
)

type token struct {
	kind   tokenKind
	text   string
	quoted bool // backtick-quoted identifier
	pos    int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// keyword reports whether t is an unquoted identifier equal to kw, ignoring case.
func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && !t.quoted && strings.EqualFold(t.text, kw)
}

var multiCharPunct = []string{"<>", "<=", ">=", "=~", "->", "<-", "..", "+=", "||"}

// lex splits Cypher text into tokens. Comments are dropped; string literals
// keep their unescaped value so keyword checks never look inside them.
func lex(src string) ([]token, error) {
	var toks []token
	r := []rune(src)
	i := 0
	for i < len(r) {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '/' && i+1 < len(r) && r[i+1] == '/':
			for i < len(r) && r[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < len(r) && r[i+1] == '*':
			end := indexRunes(r, i+2, "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated comment at offset %d", i)
			}
			i = end + 2

		case c == '\'' || c == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(r) {
				if r[i] == '\\' && i+1 < len(r) {
					b.WriteRune(r[i+1])
					i += 2
					continue
				}
				if r[i] == c {
					closed = true
					i++
					break
				}
				b.WriteRune(r[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string literal at offset %d", start)
			}
			toks = append(toks, token{kind: tokString, text: b.String(), pos: start})

		case c == '`':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(r) {
				if r[i] == '`' {
					if i+1 < len(r) && r[i+1] == '`' {
						b.WriteRune('`')
						i += 2
						continue
					}
					closed = true
					i++
					break
				}
				b.WriteRune(r[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quoted identifier at offset %d", start)
			}
			toks = append(toks, token{kind: tokIdent, text: b.String(), quoted: true, pos: start})

		case c == '$':
			start := i
			i++
			for i < len(r) && isIdentRune(r[i]) {
				i++
			}
			toks = append(toks, token{kind: tokParam, text: string(r[start:i]), pos: start})

		case unicode.IsDigit(c):
			start := i
			for i < len(r) && (unicode.IsDigit(r[i]) || unicode.IsLetter(r[i])) {
				i++
			}
			// a fraction needs a digit after the dot; "1..3" is a range
			if i+1 < len(r) && r[i] == '.' && unicode.IsDigit(r[i+1]) {
				i++
				for i < len(r) && (unicode.IsDigit(r[i]) || unicode.IsLetter(r[i])) {
					i++
				}
			}
			toks = append(toks, token{kind: tokNumber, text: string(r[start:i]), pos: start})

		case isIdentStart(c):
			start := i
			for i < len(r) && isIdentRune(r[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(r[start:i]), pos: start})

		default:
			matched := false
			for _, p := range multiCharPunct {
				if hasPrefixAt(r, i, p) {
					toks = append(toks, token{kind: tokPunct, text: p, pos: i})
					i += len([]rune(p))
					matched = true
					break
				}
			}
			if !matched {
				toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
				i++
			}
		}
	}
	return toks, nil
}

func isIdentStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func isIdentRune(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

func hasPrefixAt(r []rune, i int, p string) bool {
	pr := []rune(p)
	if i+len(pr) > len(r) {
		return false
	}
	for j, c := range pr {
		if r[i+j] != c {
			return false
		}
	}
	return true
}

func indexRunes(r []rune, from int, needle string) int {
	for i := from; i < len(r); i++ {
		if hasPrefixAt(r, i, needle) {
			return i
		}
	}
	return -1
}
