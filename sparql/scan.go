// Pattern/term scanning for the SPARQL subset.
//
// This file contains the hand-rolled, depth- and quote-aware string scanning
// the extractor uses instead of a parser-generator or grammar library — the
// same approach the query cache's source package takes for its own query
// language (see its pattern-parsing helpers): no third-party parsing library
// in the pack fits a single-purpose, narrow grammar subset like this one, so
// scanning it by hand in the established style is the grounded choice.
package sparql

import "strings"

// splitTopLevel splits s on sep, skipping any sep that falls inside a quoted
// literal, an angle-bracketed IRI, or a brace/bracket/paren group — the same
// discipline the source package's splitPropertyPairs/splitArrayElements use
// for Cypher property maps and array literals.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	inQuote := false
	var quoteChar rune

	runes := []rune(s)
	for i, c := range runes {
		switch {
		case inQuote:
			cur.WriteRune(c)
			if c == quoteChar {
				escaped := false
				backslashes := 0
				for j := i - 1; j >= 0 && runes[j] == '\\'; j-- {
					backslashes++
				}
				escaped = backslashes%2 == 1
				if !escaped {
					inQuote = false
				}
			}
		case c == '\'' || c == '"':
			inQuote = true
			quoteChar = c
			cur.WriteRune(c)
		case c == '<' || c == '{' || c == '[' || c == '(':
			depth++
			cur.WriteRune(c)
		case c == '>' || c == '}' || c == ']' || c == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(c)
		case c == sep && depth == 0:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

// tokenizeTerms splits a triple-pattern fragment into whitespace-separated
// term tokens, keeping quoted literals (with a trailing ^^<type> or @lang),
// angle-bracketed IRIs, and anonymous blank nodes ([ ... ]) intact even when
// they contain internal characters that would otherwise look like
// separators.
func tokenizeTerms(s string) []string {
	var tokens []string
	var cur strings.Builder
	angleDepth := 0
	bracketDepth := 0
	inQuote := false
	var quoteChar rune

	runes := []rune(s)
	for i, c := range runes {
		switch {
		case inQuote:
			cur.WriteRune(c)
			if c == quoteChar {
				backslashes := 0
				for j := i - 1; j >= 0 && runes[j] == '\\'; j-- {
					backslashes++
				}
				if backslashes%2 == 0 {
					inQuote = false
				}
			}
		case c == '\'' || c == '"':
			inQuote = true
			quoteChar = c
			cur.WriteRune(c)
		case c == '<':
			angleDepth++
			cur.WriteRune(c)
		case c == '>':
			if angleDepth > 0 {
				angleDepth--
			}
			cur.WriteRune(c)
		case c == '[':
			bracketDepth++
			cur.WriteRune(c)
		case c == ']':
			if bracketDepth > 0 {
				bracketDepth--
			}
			cur.WriteRune(c)
		case isWhitespace(c) && angleDepth == 0 && bracketDepth == 0 && !inQuote:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(c)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func isWhitespace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// matchBraces finds the span of the first "{" at or after start and its
// balanced closing "}", respecting quoted literals so a brace character
// inside a string literal doesn't perturb the count. Returns the indices of
// the opening and closing braces (inclusive), or ok=false if no balanced
// block exists.
//
// Indices are byte offsets into s (as returned by regexp.FindStringIndex and
// expected by ordinary string slicing), not rune counts.
func matchBraces(s string, start int) (open, close int, ok bool) {
	open = -1
	depth := 0
	inQuote := false
	var quoteChar rune
	backslashes := 0

	for i, c := range s {
		if i < start {
			continue
		}
		switch {
		case inQuote:
			if c == quoteChar && backslashes%2 == 0 {
				inQuote = false
			}
		case c == '\'' || c == '"':
			inQuote = true
			quoteChar = c
		case c == '{':
			if open == -1 {
				open = i
			}
			depth++
		case c == '}':
			depth--
			if depth == 0 && open != -1 {
				return open, i, true
			}
		}
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
	}
	return 0, 0, false
}
