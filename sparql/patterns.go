// Package sparql - Pre-compiled regex patterns for the subset of the SPARQL
// grammar this package understands.
//
// Mirrors the query cache's source package convention of pre-compiling every
// hot-path pattern at package init instead of inside the function that uses
// it.
package sparql

import "regexp"

var (
	// prefixDeclPattern matches a single PREFIX declaration: PREFIX ex: <http://...>
	prefixDeclPattern = regexp.MustCompile(`(?i)PREFIX\s+(\w*)\s*:\s*<([^>]*)>`)

	// fromClausePattern matches FROM <uri> and FROM NAMED <uri>.
	fromClausePattern = regexp.MustCompile(`(?i)FROM\s+(NAMED\s+)?<([^>]*)>`)

	// whereKeywordPattern locates the WHERE keyword that introduces the
	// triple-pattern block, so the caller can brace-match from there.
	whereKeywordPattern = regexp.MustCompile(`(?i)\bWHERE\b`)

	// graphKeywordPattern locates a GRAPH <uri-or-var> clause immediately
	// preceding a "{" — it both identifies the clause and captures its term.
	graphKeywordPattern = regexp.MustCompile(`(?i)\bGRAPH\s+(<[^>]*>|\?\w+|\$\w+|\w+:\w*)\s*$`)

	// leadingKeywordPattern pulls the first keyword of a (prefix-stripped)
	// query, used to classify it as a read or an update.
	leadingKeywordPattern = regexp.MustCompile(`(?i)^\s*(SELECT|ASK|CONSTRUCT|DESCRIBE|INSERT|DELETE|CLEAR|DROP|CREATE|WITH|LOAD|COPY|MOVE|ADD)\b`)

	// lineCommentPattern strips a SPARQL "#" line comment.
	lineCommentPattern = regexp.MustCompile(`#[^\n]*`)
)
