package qcache

// QueryEntry is one memoized query: the text that produced it, its opaque
// result payload, and the two reverse-index keys (graph IDs, pattern keys
// per graph) that were derived from it at Remember time so invalidation
// never has to re-extract the query to find them.
type QueryEntry struct {
	ID             string              `json:"id"`
	Query          string              `json:"query"`
	Result         any                 `json:"result"`
	GraphIDs       []string            `json:"graphIds"`
	TriplePatterns map[string][]string `json:"triplePatterns"` // graphID -> patternKeys
	RelatedGroupID string              `json:"relatedGroupId,omitempty"`
}

// GraphEntry tracks every memoized query that reads from one graph. It
// exists only while queryIds is non-empty — the last query referencing a
// graph removes the GraphEntry along with itself.
type GraphEntry struct {
	ID       string   `json:"id"`
	QueryIDs []string `json:"queryIds"`
}

// PatternEntry maps one (graph, subject, predicate, object) pattern key to
// the query that most recently installed it. If two queries share a pattern
// key, the later Remember wins — the earlier query stops being reachable
// from a triple-level invalidation, per the specification's documented
// last-writer-wins tie-break.
type PatternEntry struct {
	Key     string `json:"key"`
	QueryID string `json:"queryId"`
}

// RelatedGroup links every query memoized during one outermost transaction
// commit: invalidating any member invalidates the whole group. Groups are
// content-addressed on their member set and are never deleted by the base
// engine — see Engine.SweepOrphanGroups for the optional maintenance path.
type RelatedGroup struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}
