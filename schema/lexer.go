package schema

import (
	"fmt"
	"strings"
)

type tokenType int

const (
	tokWord tokenType = iota
	tokString
	tokParenOpen
	tokParenClose
	tokComma
)

type token struct {
	typ tokenType
	val string // unquoted for tokString
}

func (t token) is(word string) bool {
	return t.typ == tokWord && t.val == word
}

// tokenize splits one schema-language line. Words are runs of letters,
// digits, '_', '.', '-' and '+'; strings are single or double quoted with the
// quote character escaped by doubling it.
func tokenize(line string) ([]token, error) {
	var toks []token
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{typ: tokParenOpen, val: "("})
			i++
		case c == ')':
			toks = append(toks, token{typ: tokParenClose, val: ")"})
			i++
		case c == ',':
			toks = append(toks, token{typ: tokComma, val: ","})
			i++
		case c == '\'' || c == '"':
			s, n, err := scanString(line[i:], c)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{typ: tokString, val: s})
			i += n
		case isWordChar(c):
			j := i
			for j < len(line) && isWordChar(line[j]) {
				j++
			}
			toks = append(toks, token{typ: tokWord, val: line[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	return toks, nil
}

func scanString(s string, quote byte) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != quote {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			b.WriteByte(quote)
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated string")
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-' || c == '+'
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}
