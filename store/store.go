// Package store provides the Store facade (the specification's C6): it
// wraps an RDF-store Adapter, routing reads through a qcache.Engine so
// identical SPARQL queries are served from the cache, and invalidating the
// engine on every write so a subsequent read never observes stale data.
//
// Store never talks to the backing RDF store itself — that stays an
// external collaborator reached only through Adapter, exactly as the
// specification's scope draws the line.
package store

import (
	"context"
	"fmt"

	"github.com/sparqlcache/qcache/qcache"
	"github.com/sparqlcache/qcache/sparql"
)

// Result is the opaque payload a read query produces. The facade never
// inspects it — it only stores and returns whatever the Adapter hands back.
type Result any

// Statement is one RDF triple, used both to describe a concrete write and
// to describe a delete pattern (where Subject/Predicate/Object may be
// empty to mean "match any").
type Statement struct {
	Subject   string
	Predicate string
	Object    string
}

// Adapter is the external RDF-store collaborator this facade wraps. It is
// consumed, never implemented, by this package — concrete adapters (an
// HTTP SPARQL endpoint, an embedded triple store) live outside this
// module's scope.
type Adapter interface {
	Query(ctx context.Context, sparqlText string) (Result, error)
	AddStatements(ctx context.Context, stmts []Statement, graph string) error
	DeleteMatchingStatements(ctx context.Context, pattern Statement, graph string) error
}

// Store wraps an Adapter with a qcache.Engine, memoizing read queries and
// invalidating on every write.
type Store struct {
	adapter   Adapter
	engine    *qcache.Engine
	extractor qcache.Extractor
}

// New builds a Store over adapter and engine. If extractor is nil,
// qcache.DefaultExtractor (sparql.Extract) is used to classify and inspect
// queries on the write path.
func New(adapter Adapter, engine *qcache.Engine, extractor qcache.Extractor) *Store {
	if extractor == nil {
		extractor = qcache.DefaultExtractor
	}
	return &Store{adapter: adapter, engine: engine, extractor: extractor}
}

// Query executes sparqlText, serving it from the cache on a hit. A read
// query that misses is forwarded to the adapter and memoized. An update
// query is never cached — it is forwarded, then the graphs it touches are
// invalidated: precisely, by concrete triple through the pattern index,
// when the update's patterns are all ground (INSERT DATA / DELETE DATA);
// otherwise by the whole graph.
func (s *Store) Query(ctx context.Context, sparqlText string) (Result, error) {
	info, err := s.extractor.Extract(sparqlText)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	if info.Kind == sparql.Update {
		result, err := s.adapter.Query(ctx, sparqlText)
		if err != nil {
			return nil, err
		}
		if err := s.invalidateWrittenGraphs(ctx, info); err != nil {
			return result, err
		}
		return result, nil
	}

	if cached, ok, err := s.lookup(ctx, sparqlText); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}

	result, err := s.adapter.Query(ctx, sparqlText)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Remember(ctx, sparqlText, result); err != nil {
		return result, err
	}
	return result, nil
}

// lookup consults the engine for a previously memoized result, decoding it
// back into a Result.
func (s *Store) lookup(ctx context.Context, sparqlText string) (Result, bool, error) {
	hit, ok, err := s.engine.Lookup(ctx, sparqlText)
	if err != nil || !ok {
		return nil, ok, err
	}
	return Result(hit), true, nil
}

// invalidateWrittenGraphs invalidates every graph the update names (FROM,
// FROM NAMED, or GRAPH <uri> blocks). An update naming no graph invalidates
// the default (empty-string) graph — the same convention Remember uses for
// an absent FROM.
//
// When every triple pattern the update carries is fully concrete (a URI in
// every position — the INSERT DATA / DELETE DATA shape), the
// write names exact triples, so each graph is invalidated precisely
// through the pattern index (engine.InvalidateByTriple) instead of
// dropping every cached query that reads from it. A pattern with any
// variable (DELETE WHERE, CLEAR GRAPH with no WHERE at all, …) can't be
// resolved to a concrete triple from the query text alone, so that graph
// falls back to whole-graph invalidation, exactly as spec.md §4.3.2
// documents the pattern index doing for the vector it can't serve.
func (s *Store) invalidateWrittenGraphs(ctx context.Context, info sparql.Info) error {
	ground, hasVariable := groundPatterns(info.Patterns)
	for _, graph := range info.Graphs {
		if len(ground) > 0 && !hasVariable {
			for _, p := range ground {
				if err := s.engine.InvalidateByTriple(ctx, graph, p.Subject.Value, p.Predicate.Value, p.Object.Value); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.engine.InvalidateByGraph(ctx, graph); err != nil {
			return err
		}
	}
	return nil
}

// groundPatterns splits patterns into the fully-concrete ones (every
// position a URI term) and reports whether any pattern had a variable,
// literal, or blank-node position — the signal that the write as a whole
// can't be reduced to a set of concrete triples.
func groundPatterns(patterns []sparql.Pattern) (ground []sparql.Pattern, hasVariable bool) {
	for _, p := range patterns {
		if p.Subject.IsURI() && p.Predicate.IsURI() && p.Object.IsURI() {
			ground = append(ground, p)
		} else {
			hasVariable = true
		}
	}
	return ground, hasVariable
}

// AddStatements invalidates the cached queries in graph that stmts could
// match, then forwards the write to the adapter. Each statement's concrete triple is
// invalidated individually through the pattern index (InvalidateByTriple)
// rather than dropping the whole graph, so unrelated cached queries on the
// same graph survive.
func (s *Store) AddStatements(ctx context.Context, stmts []Statement, graph string) error {
	for _, stmt := range stmts {
		if err := s.engine.InvalidateByTriple(ctx, graph, stmt.Subject, stmt.Predicate, stmt.Object); err != nil {
			return err
		}
	}
	return s.adapter.AddStatements(ctx, stmts, graph)
}

// DeleteMatchingStatements invalidates graph (triple-level invalidation
// can't help here — pattern is a match template, not a concrete triple,
// so any cached query touching the graph could be affected) and forwards
// the delete to the adapter.
func (s *Store) DeleteMatchingStatements(ctx context.Context, pattern Statement, graph string) error {
	if err := s.engine.InvalidateByGraph(ctx, graph); err != nil {
		return err
	}
	return s.adapter.DeleteMatchingStatements(ctx, pattern, graph)
}
