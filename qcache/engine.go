// Package qcache implements the SPARQL query-cache engine: the three
// interacting indices (query, graph, pattern) that back Remember and the
// two invalidation vectors, plus the nested transaction stack that can
// defer a batch of those operations and link their queries together on
// commit.
//
// Engine is single-threaded-cooperative: one sync.Mutex serializes every
// call, and the only suspension points are calls into the injected
// kv.Store — an Engine's invariants always hold on either side of one of
// those calls. No background goroutines, timers, or async tasks.
package qcache

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/sparqlcache/qcache/internal/shortid"
	"github.com/sparqlcache/qcache/kv"
	"github.com/sparqlcache/qcache/sparql"
)

// Extractor is the subset of sparql.Extract this package depends on,
// narrowed to an interface so tests can substitute canned extraction
// results without constructing real SPARQL text.
type Extractor interface {
	Extract(query string) (sparql.Info, error)
}

type extractorFunc func(string) (sparql.Info, error)

func (f extractorFunc) Extract(query string) (sparql.Info, error) { return f(query) }

// DefaultExtractor wraps sparql.Extract.
var DefaultExtractor Extractor = extractorFunc(sparql.Extract)

// Engine is the query-cache engine (the specification's CacheEngine and
// TransactionManager, combined into one Go type since both share the same
// mutex and the same instance-local transaction stack).
type Engine struct {
	mu        sync.Mutex
	store     kv.Store
	extractor Extractor
	logger    *log.Logger

	stack                []*transactionFrame
	invalidatedDuringTxn map[string]struct{}
}

// New builds an Engine over store. If extractor is nil, DefaultExtractor
// (sparql.Extract) is used. If logger is nil, log.Default() is used for
// ErrInvariantViolation reporting.
func New(store kv.Store, extractor Extractor, logger *log.Logger) *Engine {
	if extractor == nil {
		extractor = DefaultExtractor
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: store, extractor: extractor, logger: logger}
}

// Remember memoizes query's result. If a QueryEntry already exists for
// query, it is fully invalidated first — Remember never overwrites in
// place, matching the specification's "old entry is fully invalidated
// first, then the new one is installed" tie-break. Inside an active
// transaction, the operation is deferred until the outermost commit.
func (e *Engine) Remember(ctx context.Context, query string, result any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeFrame() != nil {
		e.deferOp(deferredOp{kind: opRemember, query: query, result: result})
		return nil
	}
	return e.applyRemember(ctx, query, result)
}

func (e *Engine) applyRemember(ctx context.Context, query string, result any) error {
	qid := shortid.New(query)

	if _, ok, err := e.getQueryEntry(ctx, qid); err != nil {
		return err
	} else if ok {
		if err := e.applyInvalidateByQuery(ctx, query, true); err != nil {
			return err
		}
	}

	info, err := e.extractor.Extract(query)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}

	entry := &QueryEntry{
		ID:             qid,
		Query:          query,
		Result:         result,
		TriplePatterns: make(map[string][]string),
	}

	graphIDs := newOrderedSet()
	for _, graphURI := range info.Graphs {
		gid := shortid.New(graphURI)
		if !graphIDs.add(gid) {
			continue
		}
		ge, ok, err := e.getGraphEntry(ctx, gid)
		if err != nil {
			return err
		}
		if !ok {
			ge = &GraphEntry{ID: gid}
		}
		addUnique(&ge.QueryIDs, qid)
		if err := e.putGraphEntry(ctx, ge); err != nil {
			return err
		}
	}
	entry.GraphIDs = graphIDs.values()

	for _, gid := range entry.GraphIDs {
		patternKeys := newOrderedSet()
		for _, p := range info.Patterns {
			key := shortid.PatternKey(gid, toHashTerm(p.Subject), toHashTerm(p.Predicate), toHashTerm(p.Object))
			if !patternKeys.add(key) {
				continue
			}
			if err := e.putPatternEntry(ctx, &PatternEntry{Key: key, QueryID: qid}); err != nil {
				return err
			}
		}
		if keys := patternKeys.values(); len(keys) > 0 {
			entry.TriplePatterns[gid] = keys
		}
	}

	return e.putQueryEntry(ctx, entry)
}

// Lookup returns the memoized result for query, if any, without altering
// the cache. It is the read-path counterpart to Remember that a Store
// facade uses to decide between a cache hit and a miss.
func (e *Engine) Lookup(ctx context.Context, query string) (any, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok, err := e.getQueryEntry(ctx, shortid.New(query))
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Result, true, nil
}

// InvalidateByQuery removes the memoized entry for query, if any, along
// with every GraphEntry/PatternEntry reference it installed, and cascades
// through its RelatedGroup (if it has one) to invalidate every other
// member. A no-op if query was never remembered. Inside an active
// transaction, the operation is deferred until the outermost commit.
func (e *Engine) InvalidateByQuery(ctx context.Context, query string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invalidateQueryLocked(ctx, query)
}

// invalidateQueryLocked is InvalidateByQuery's body, factored out so
// InvalidateByTriple can reuse the same defer-or-apply decision without
// re-entering the mutex.
func (e *Engine) invalidateQueryLocked(ctx context.Context, query string) error {
	if e.activeFrame() != nil {
		e.deferOp(deferredOp{kind: opInvalidateByQuery, query: query})
		return nil
	}
	return e.applyInvalidateByQuery(ctx, query, true)
}

func (e *Engine) applyInvalidateByQuery(ctx context.Context, query string, checkForRelated bool) error {
	qid := shortid.New(query)
	entry, ok, err := e.getQueryEntry(ctx, qid)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return e.removeQueryEntry(ctx, entry, checkForRelated)
}

// removeQueryEntry tears down one QueryEntry: every GraphEntry reference
// (deleting the GraphEntry if it becomes empty), every PatternEntry it
// installed, and — when checkForRelated is set and the entry has a
// RelatedGroup — cascades to every other member of that group with
// checkForRelated=false, which is how the recursion terminates in a single
// sweep (a member can't re-trigger the cascade that is already tearing it
// down).
func (e *Engine) removeQueryEntry(ctx context.Context, entry *QueryEntry, checkForRelated bool) error {
	for _, gid := range entry.GraphIDs {
		ge, ok, err := e.getGraphEntry(ctx, gid)
		if err != nil {
			return err
		}
		if !ok {
			e.reportInvariantViolation("graph entry %q referenced by query %q is missing", gid, entry.ID)
			return fmt.Errorf("%w: graph entry %q referenced by query %q is missing", ErrInvariantViolation, gid, entry.ID)
		}
		removeString(&ge.QueryIDs, entry.ID)
		if len(ge.QueryIDs) == 0 {
			if err := e.deleteGraphEntry(ctx, gid); err != nil {
				return err
			}
		} else if err := e.putGraphEntry(ctx, ge); err != nil {
			return err
		}
	}

	for _, keys := range entry.TriplePatterns {
		for _, key := range keys {
			if err := e.deletePatternEntry(ctx, key); err != nil {
				return err
			}
		}
	}

	if checkForRelated && entry.RelatedGroupID != "" {
		if err := e.cascadeRelatedGroup(ctx, entry); err != nil {
			return err
		}
	}

	if e.activeFrame() != nil {
		e.invalidatedDuringTxn[entry.ID] = struct{}{}
	}

	return e.deleteQueryEntry(ctx, entry.ID)
}

func (e *Engine) cascadeRelatedGroup(ctx context.Context, entry *QueryEntry) error {
	group, ok, err := e.getRelatedGroup(ctx, entry.RelatedGroupID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	for _, memberID := range group.Members {
		if memberID == entry.ID {
			continue
		}
		member, ok, err := e.getQueryEntry(ctx, memberID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.removeQueryEntry(ctx, member, false); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateByGraph removes every QueryEntry that reads from graphURI,
// along with the GraphEntry itself, every PatternEntry those queries
// installed, and cascades through each one's RelatedGroup exactly as
// InvalidateByQuery does. A no-op if graphURI has no memoized queries.
// Inside an active transaction, the operation is deferred until the
// outermost commit.
func (e *Engine) InvalidateByGraph(ctx context.Context, graphURI string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeFrame() != nil {
		e.deferOp(deferredOp{kind: opInvalidateByGraph, graphURI: graphURI})
		return nil
	}
	return e.applyInvalidateByGraph(ctx, graphURI)
}

func (e *Engine) applyInvalidateByGraph(ctx context.Context, graphURI string) error {
	gid := shortid.New(graphURI)
	ge, ok, err := e.getGraphEntry(ctx, gid)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	// Copy queryIds before iterating: removeQueryEntry (called for a
	// cascaded group member that happens to share this graph) can mutate
	// and persist a GraphEntry for gid out from under us.
	queryIDs := append([]string(nil), ge.QueryIDs...)

	for _, qid := range queryIDs {
		entry, ok, err := e.getQueryEntry(ctx, qid)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		for _, keys := range entry.TriplePatterns {
			for _, key := range keys {
				if err := e.deletePatternEntry(ctx, key); err != nil {
					return err
				}
			}
		}

		if entry.RelatedGroupID != "" {
			if err := e.cascadeRelatedGroup(ctx, entry); err != nil {
				return err
			}
		}

		if e.activeFrame() != nil {
			e.invalidatedDuringTxn[entry.ID] = struct{}{}
		}

		for _, other := range entry.GraphIDs {
			if oge, ok, err := e.getGraphEntry(ctx, other); err != nil {
				return err
			} else if ok && other != gid {
				removeString(&oge.QueryIDs, entry.ID)
				if len(oge.QueryIDs) == 0 {
					err = e.deleteGraphEntry(ctx, other)
				} else {
					err = e.putGraphEntry(ctx, oge)
				}
				if err != nil {
					return err
				}
			}
		}

		// Deliberately skip the per-GraphEntry cleanup removeQueryEntry
		// would otherwise do for gid itself — the final deleteGraphEntry
		// below handles that wholesale, exactly as the specification's
		// InvalidateByGraph step 2d documents.
		if err := e.deleteQueryEntry(ctx, entry.ID); err != nil {
			return err
		}
	}

	return e.deleteGraphEntry(ctx, gid)
}

// InvalidateByTriple invalidates every memoized query whose pattern index
// could match the concrete triple (s, p, o) written to graphURI: it
// computes the (up to 8) candidate pattern keys via shortid.CandidateKeys,
// looks each up, and invalidates the owning query for every hit. This is
// the triple-level invalidation vector the specification's pattern index
// exists to support but the in-scope source never implements — the domain
// addition a write-path facade (store.Store) uses instead of falling back
// to whole-graph invalidation whenever it knows the concrete triple.
func (e *Engine) InvalidateByTriple(ctx context.Context, graphURI, s, p, o string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	gid := shortid.New(graphURI)
	seen := make(map[string]struct{})
	for _, key := range shortid.CandidateKeys(gid, s, p, o) {
		pe, ok, err := e.getPatternEntry(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, dup := seen[pe.QueryID]; dup {
			continue
		}
		seen[pe.QueryID] = struct{}{}

		entry, ok, err := e.getQueryEntry(ctx, pe.QueryID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.invalidateQueryLocked(ctx, entry.Query); err != nil {
			return err
		}
	}
	return nil
}

// SweepOrphanGroups deletes every RelatedGroup whose members have all
// already been invalidated. The base engine never calls this automatically
// — per the specification's documented limitation, groups otherwise
// accumulate indefinitely — so callers who want to reclaim them invoke it
// explicitly, e.g. on a maintenance schedule. candidateGroupIDs is the set
// of group IDs to check; callers are expected to track these themselves
// (the engine exposes no iteration over its own KV namespace).
func (e *Engine) SweepOrphanGroups(ctx context.Context, candidateGroupIDs []string) (swept []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range candidateGroupIDs {
		group, ok, err := e.getRelatedGroup(ctx, id)
		if err != nil {
			return swept, err
		}
		if !ok {
			continue
		}
		orphaned := true
		for _, memberID := range group.Members {
			if _, ok, err := e.getQueryEntry(ctx, memberID); err != nil {
				return swept, err
			} else if ok {
				orphaned = false
				break
			}
		}
		if orphaned {
			if err := e.deleteRelatedGroup(ctx, id); err != nil {
				return swept, err
			}
			swept = append(swept, id)
		}
	}
	return swept, nil
}

func (e *Engine) reportInvariantViolation(format string, args ...any) {
	e.logger.Printf("qcache: invariant violation: "+format, args...)
}

func toHashTerm(t sparql.Term) shortid.Term {
	return shortid.Term{URI: t.Value, IsURI: t.IsURI()}
}
