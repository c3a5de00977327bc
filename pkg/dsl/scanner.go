package dsl

import "strings"

// splitTopLevel splits s on sep, ignoring separators nested in braces.
// When parens is true, separators inside parentheses are ignored as well.
// Stray closers never drive the depth below zero.
func splitTopLevel(s string, sep byte, parens bool) []string {
	var parts []string
	braces, depth := 0, 0
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{':
			braces++
		case c == '}':
			if braces > 0 {
				braces--
			}
		case braces > 0:
			// inside an inline block
		case parens && c == '(':
			depth++
		case parens && c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// splitClauses splits input into clauses on ';' outside inline blocks. A '{'
// that is never closed would swallow every later clause, so the clause holding
// it ends at the next ';' and the rest is split again.
func splitClauses(s string) []string {
	var parts []string
	braces, start, open := 0, 0, -1

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if braces == 0 {
				open = i
			}
			braces++
		case '}':
			if braces > 0 {
				braces--
			}
		case ';':
			if braces == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}

	if braces > 0 {
		if semi := strings.IndexByte(s[open:], ';'); semi >= 0 {
			end := open + semi
			parts = append(parts, s[start:end])
			return append(parts, splitClauses(s[end+1:])...)
		}
	}
	return append(parts, s[start:])
}

// checkBalanced reports the first nesting problem in s, or "" when braces and
// parentheses are balanced. Only braces count inside an inline block.
func checkBalanced(s string) string {
	braces, depth := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '{':
			braces++
		case c == '}':
			if braces == 0 {
				return "unexpected '}'"
			}
			braces--
		case braces > 0:
		case c == '(':
			depth++
		case c == ')':
			if depth == 0 {
				return "unexpected ')'"
			}
			depth--
		}
	}
	switch {
	case braces > 0:
		return "unclosed '{'"
	case depth > 0:
		return "unclosed '('"
	}
	return ""
}

// closingParen returns the index of the ')' matching the '(' at open, or -1.
func closingParen(s string, open int) int {
	braces, depth := 0, 0
	for i := open; i < len(s); i++ {
		switch c := s[i]; {
		case c == '{':
			braces++
		case c == '}':
			if braces > 0 {
				braces--
			}
		case braces > 0:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// isInline reports whether tok is a single braced block.
func isInline(tok string) bool {
	if len(tok) < 2 || tok[0] != '{' || tok[len(tok)-1] != '}' {
		return false
	}
	depth := 0
	for i := 0; i < len(tok); i++ {
		switch tok[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 && i != len(tok)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// isIdentifier reports whether tok can be used as a name or transform reference.
func isIdentifier(tok string) bool {
	return tok != "" && !strings.ContainsAny(tok, "(){}&:;> \t\r\n")
}
