package sparql

import (
	"strconv"
	"strings"
)

const rdfTypeURI = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// Extract parses query enough to recover its FROM graphs, its WHERE triple
// patterns, and its read/update classification. See Info for the exact
// shape of the result.
func Extract(query string) (Info, error) {
	stripped := lineCommentPattern.ReplaceAllString(query, "")

	prefixes := parsePrefixes(stripped)
	body := prefixDeclPattern.ReplaceAllString(stripped, "")

	kind, err := classify(body)
	if err != nil {
		return Info{}, err
	}

	graphSet := newStringSet()
	for _, m := range fromClausePattern.FindAllStringSubmatch(body, -1) {
		graphSet.add(m[2])
	}

	whereContent, hasWhere := extractWhereBlock(body)
	if !hasWhere && whereKeywordPattern.MatchString(body) {
		return Info{}, ErrMalformedQuery
	}
	var patterns []Pattern
	if hasWhere {
		patterns, err = walkBlock(whereContent, prefixes, graphSet)
		if err != nil {
			return Info{}, err
		}
	} else if kind == Update {
		// INSERT DATA / DELETE DATA carry their block directly, with no
		// WHERE keyword framing it.
		if open, close, ok := matchBraces(body, 0); ok {
			patterns, err = walkBlock(body[open+1:close], prefixes, graphSet)
			if err != nil {
				return Info{}, err
			}
		}
	}

	graphs := graphSet.values()
	if len(graphs) == 0 {
		graphs = []string{""}
	}

	return Info{Graphs: graphs, Patterns: patterns, Kind: kind}, nil
}

// classify determines whether body is a read query or an update, from its
// leading keyword.
func classify(body string) (QueryKind, error) {
	m := leadingKeywordPattern.FindStringSubmatch(body)
	if m == nil {
		return 0, ErrMalformedQuery
	}
	switch strings.ToUpper(m[1]) {
	case "SELECT", "ASK", "CONSTRUCT", "DESCRIBE":
		return Read, nil
	default:
		return Update, nil
	}
}

// parsePrefixes builds the prefix -> absolute-URI map from every PREFIX
// declaration in the query.
func parsePrefixes(query string) map[string]string {
	prefixes := make(map[string]string)
	for _, m := range prefixDeclPattern.FindAllStringSubmatch(query, -1) {
		prefixes[m[1]] = m[2]
	}
	return prefixes
}

// extractWhereBlock returns the content between the braces of the first
// top-level WHERE { ... } block, and whether one was found.
func extractWhereBlock(body string) (string, bool) {
	loc := whereKeywordPattern.FindStringIndex(body)
	if loc == nil {
		return "", false
	}
	open, close, ok := matchBraces(body, loc[1])
	if !ok {
		return "", false
	}
	return body[open+1 : close], true
}

// walkBlock recursively scans a brace-delimited block, collecting triple
// patterns and folding any GRAPH <uri>/GRAPH ?var clause it finds into
// graphs. Nested groups without a GRAPH clause (OPTIONAL, UNION, bare { }
// groups) are walked too, so triples inside them aren't missed; their
// contents simply don't add a new graph.
func walkBlock(content string, prefixes map[string]string, graphs *stringSet) ([]Pattern, error) {
	var patterns []Pattern
	var plain strings.Builder

	i := 0
	for i < len(content) {
		if content[i] == '{' {
			before := content[:i]
			open, close, ok := matchBraces(content, i)
			if !ok {
				return nil, ErrMalformedQuery
			}
			inner := content[open+1 : close]

			if m := graphKeywordPattern.FindStringSubmatch(before); m != nil {
				term := resolveGraphTerm(m[1], prefixes)
				graphs.add(term)
			}

			// Drop the keyword that introduced this group (GRAPH <term>,
			// OPTIONAL, UNION) from the plain text and end the pending
			// statement there, so neither is read as part of a triple.
			pending := plain.String()
			if loc := graphKeywordPattern.FindStringIndex(pending); loc != nil {
				pending = pending[:loc[0]]
			}
			pending = strings.TrimRight(pending, " \t\r\n")
			for _, kw := range []string{"OPTIONAL", "UNION"} {
				if n := len(pending) - len(kw); n >= 0 && strings.EqualFold(pending[n:], kw) {
					pending = pending[:n]
				}
			}
			plain.Reset()
			plain.WriteString(pending + " . ")

			nested, err := walkBlock(inner, prefixes, graphs)
			if err != nil {
				return nil, err
			}
			patterns = append(patterns, nested...)

			i = close + 1
			continue
		}
		plain.WriteByte(content[i])
		i++
	}

	direct, err := parseTriplesText(plain.String(), prefixes)
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, direct...)
	return patterns, nil
}

// resolveGraphTerm turns the captured GRAPH clause term into the string
// recorded in Graphs: the absolute URI for a named graph, or "" for a
// variable graph (which degrades exactly like "no FROM at all").
func resolveGraphTerm(raw string, prefixes map[string]string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "<") && strings.HasSuffix(raw, ">"):
		return raw[1 : len(raw)-1]
	case strings.HasPrefix(raw, "?") || strings.HasPrefix(raw, "$"):
		return ""
	default:
		return resolvePrefixedName(raw, prefixes)
	}
}

// parseTriplesText splits a block of plain (non-nested) SPARQL text into
// triple-pattern statements and parses each one.
func parseTriplesText(text string, prefixes map[string]string) ([]Pattern, error) {
	var patterns []Pattern
	for _, stmt := range splitTopLevel(text, '.') {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isNonTripleKeyword(stmt) {
			continue
		}
		parsed, err := parseStatementGroup(stmt, prefixes)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, parsed...)
	}
	return patterns, nil
}

// isNonTripleKeyword reports whether stmt is a SPARQL construct this
// extractor intentionally ignores (it isn't a triple pattern): FILTER, BIND,
// VALUES, SERVICE and MINUS.
func isNonTripleKeyword(stmt string) bool {
	upper := strings.ToUpper(stmt)
	for _, kw := range []string{"FILTER", "BIND", "VALUES", "SERVICE", "MINUS"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// parseStatementGroup parses a "subject predicate object ; predicate2
// object2 , object3 ." style statement (predicate lists via ";", object
// lists via ",") into its constituent triple patterns.
func parseStatementGroup(stmt string, prefixes map[string]string) ([]Pattern, error) {
	predicateGroups := splitTopLevel(stmt, ';')
	if len(predicateGroups) == 0 {
		return nil, nil
	}

	firstTokens := tokenizeTerms(predicateGroups[0])
	if len(firstTokens) < 3 {
		return nil, ErrMalformedQuery
	}
	subject, err := parseTerm(firstTokens[0], prefixes)
	if err != nil {
		return nil, err
	}

	var patterns []Pattern

	appendGroup := func(predTok string, objTail []string) error {
		predicate, err := parseTerm(predTok, prefixes)
		if err != nil {
			return err
		}
		objectText := strings.Join(objTail, " ")
		for _, objStmt := range splitTopLevel(objectText, ',') {
			objTokens := tokenizeTerms(objStmt)
			if len(objTokens) == 0 {
				return ErrMalformedQuery
			}
			object, err := parseTerm(objTokens[0], prefixes)
			if err != nil {
				return err
			}
			patterns = append(patterns, Pattern{Subject: subject, Predicate: predicate, Object: object})
		}
		return nil
	}

	if err := appendGroup(firstTokens[1], firstTokens[2:]); err != nil {
		return nil, err
	}

	for _, group := range predicateGroups[1:] {
		tokens := tokenizeTerms(group)
		if len(tokens) < 2 {
			return nil, ErrMalformedQuery
		}
		if err := appendGroup(tokens[0], tokens[1:]); err != nil {
			return nil, err
		}
	}

	return patterns, nil
}

// parseTerm classifies and resolves a single token into a Term.
func parseTerm(tok string, prefixes map[string]string) (Term, error) {
	tok = strings.TrimSpace(tok)
	switch {
	case tok == "":
		return Term{}, ErrMalformedQuery
	case tok == "a":
		return Term{Value: rdfTypeURI, Type: TermURI}, nil
	case strings.HasPrefix(tok, "?") || strings.HasPrefix(tok, "$"):
		return Term{Value: tok, Type: TermVar}, nil
	case strings.HasPrefix(tok, "_:") || tok == "[]":
		return Term{Value: tok, Type: TermBNode}, nil
	case strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">"):
		return Term{Value: tok[1 : len(tok)-1], Type: TermURI}, nil
	case strings.HasPrefix(tok, "'") || strings.HasPrefix(tok, "\""):
		return Term{Value: tok, Type: TermLiteral}, nil
	default:
		if looksNumericOrBoolean(tok) {
			return Term{Value: tok, Type: TermLiteral}, nil
		}
		return Term{Value: resolvePrefixedName(tok, prefixes), Type: TermURI}, nil
	}
}

func looksNumericOrBoolean(tok string) bool {
	if strings.EqualFold(tok, "true") || strings.EqualFold(tok, "false") {
		return true
	}
	_, err := strconv.ParseFloat(tok, 64)
	return err == nil
}

// resolvePrefixedName expands a prefix:local token into an absolute URI
// using the query's PREFIX declarations. Unknown prefixes are left as-is —
// the extractor records them verbatim rather than failing the whole query,
// since an undeclared prefix doesn't stop the RDF store from accepting it.
func resolvePrefixedName(tok string, prefixes map[string]string) string {
	idx := strings.Index(tok, ":")
	if idx < 0 {
		return tok
	}
	prefix, local := tok[:idx], tok[idx+1:]
	if base, ok := prefixes[prefix]; ok {
		return base + local
	}
	return tok
}
