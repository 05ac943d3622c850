// Package shortid derives deterministic, injection-safe short keys from
// arbitrary strings — the only hashing primitive the query cache needs for
// turning query text, graph URIs, and pattern terms into KV keys.
package shortid

import (
	"crypto/sha256"
	"encoding/hex"
)

// Prefix tags every short ID. Query, graph and related-group keys all carry
// the same prefix, so it does not keep those record kinds apart from one
// another.
const Prefix = "qc-"

// idLen is the number of hex characters kept from the digest. 30 hex chars
// is 120 bits of the SHA-256 output — far beyond the collision resistance a
// query-cache corpus needs, and short enough to stay a cheap map/KV key.
const idLen = 30

// New computes the deterministic short ID for s: the lowercase hex SHA-256
// digest of s, truncated to idLen characters, prefixed with Prefix.
//
// The same input always yields the same output, across processes and runs —
// callers may rely on New as a pure function.
func New(s string) string {
	sum := sha256.Sum256([]byte(s))
	return Prefix + hex.EncodeToString(sum[:])[:idLen]
}

// Term is the minimal shape PatternKey needs from a triple-pattern position:
// whether it's a concrete URI (and if so, what URI) or something else
// (variable, literal, blank node) that degrades to the wildcard "*".
type Term struct {
	URI    string
	IsURI  bool
}

// hashOrWildcard returns the short ID of t.URI when t is a URI term, and the
// literal wildcard "*" for anything else (variable, literal, blank node) —
// the typing rule from the pattern extractor's contract.
func hashOrWildcard(t Term) string {
	if t.IsURI {
		return New(t.URI)
	}
	return "*"
}

// PatternKey builds the string "graphId_sHash_pHash_oHash" used as the
// PatternEntry key: each of s/p/o is either the short ID of a URI term or the
// wildcard "*" when the term is a variable, literal, or blank node.
//
// graphID is expected to already be a short ID (the caller hashes the graph
// URI with New before calling PatternKey), matching the KV key layout in the
// specification: graphKey + "_" + (sHash|"*") + "_" + (pHash|"*") + "_" + (oHash|"*").
func PatternKey(graphID string, s, p, o Term) string {
	return graphID + "_" + hashOrWildcard(s) + "_" + hashOrWildcard(p) + "_" + hashOrWildcard(o)
}

// CandidateKeys returns every pattern key a concrete triple write (s, p, o)
// in graph could match: each position independently contributes its hash or
// the wildcard, yielding up to 8 keys (2^3, one per position ∈ {hash, "*"}).
// Triple-level invalidation (store.Store) looks up each of these in the
// pattern index.
func CandidateKeys(graphID string, s, p, o string) []string {
	sTerms := []Term{{URI: s, IsURI: true}, {}}
	pTerms := []Term{{URI: p, IsURI: true}, {}}
	oTerms := []Term{{URI: o, IsURI: true}, {}}

	keys := make([]string, 0, 8)
	for _, st := range sTerms {
		for _, pt := range pTerms {
			for _, ot := range oTerms {
				keys = append(keys, PatternKey(graphID, st, pt, ot))
			}
		}
	}
	return keys
}
