package parsers

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	maxContentLen = 32 * 1024
	maxErrSnippet = 200
)

var (
	ErrNoQuery       = errors.New("reply contains no query")
	ErrQueryTooLarge = errors.New("reply is too large to be a query")
)

// ExtractCypher pulls the query text out of a generation reply: the first
// fenced block if there is one, otherwise the whole reply, minus a leading
// "cypher" label.
func ExtractCypher(content string) (string, error) {
	if len(content) > maxContentLen {
		return "", ErrQueryTooLarge
	}
	if !utf8.ValidString(content) {
		return "", errors.New("reply is not valid utf8")
	}

	s := stripFences(strings.TrimSpace(content))
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"cypher:", "cypher\n", "query:"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}
	if s == "" {
		return "", ErrNoQuery
	}
	return s, nil
}

// stripFences returns the body of the first ``` fenced block, or s unchanged.
func stripFences(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	// drop the info string (```cypher, ```json)
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		info := strings.TrimSpace(body[:nl])
		if !strings.ContainsAny(info, " (){}") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func safeSnippet(s string) string {
	if len(s) <= maxErrSnippet {
		return s
	}
	cut := maxErrSnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
