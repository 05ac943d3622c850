package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparqlcache/qcache/kv"
	"github.com/sparqlcache/qcache/qcache"
)

// fakeAdapter is an in-memory stand-in for an RDF store, counting how many
// times each operation was actually invoked so tests can assert on cache
// hits vs. misses.
type fakeAdapter struct {
	queryCalls int
	writeCalls int
	result     Result
}

func (f *fakeAdapter) Query(_ context.Context, _ string) (Result, error) {
	f.queryCalls++
	return f.result, nil
}

func (f *fakeAdapter) AddStatements(_ context.Context, _ []Statement, _ string) error {
	f.writeCalls++
	return nil
}

func (f *fakeAdapter) DeleteMatchingStatements(_ context.Context, _ Statement, _ string) error {
	f.writeCalls++
	return nil
}

func newTestStore() (*Store, *fakeAdapter) {
	adapter := &fakeAdapter{result: "the-result"}
	engine := qcache.New(kv.NewMemory(), nil, nil)
	return New(adapter, engine, nil), adapter
}

func TestQuery_MissThenHit(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore()

	q := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	r1, err := s.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, Result("the-result"), r1)
	assert.Equal(t, 1, adapter.queryCalls)

	r2, err := s.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, adapter.queryCalls, "second query should be served from cache")
}

func TestQuery_UpdateNeverCachedAndInvalidatesGraph(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore()

	readQ := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	_, err := s.Query(ctx, readQ)
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.queryCalls)

	updateQ := "INSERT DATA { GRAPH <http://g/> { <http://a> <http://b> <http://c> } }"
	_, err = s.Query(ctx, updateQ)
	require.NoError(t, err)

	_, err = s.Query(ctx, readQ)
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.queryCalls, "the update should have invalidated the cached read")
}

func TestQuery_InsertDataInvalidatesMatchingPatternOnlyThroughPatternIndex(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore()

	matching := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	unrelated := "SELECT * FROM <http://g/> WHERE { <http://x> <http://y> ?o }"
	_, err := s.Query(ctx, matching)
	require.NoError(t, err)
	_, err = s.Query(ctx, unrelated)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.queryCalls)

	insertQ := "INSERT DATA { GRAPH <http://g/> { <http://a> <http://b> <http://c> } }"
	_, err = s.Query(ctx, insertQ)
	require.NoError(t, err)

	_, err = s.Query(ctx, matching)
	require.NoError(t, err)
	assert.Equal(t, 4, adapter.queryCalls, "matching query should have been invalidated by the concrete triple")

	_, err = s.Query(ctx, unrelated)
	require.NoError(t, err)
	assert.Equal(t, 4, adapter.queryCalls, "unrelated query should survive a ground-triple write through Query")
}

func TestAddStatements_InvalidatesMatchingPatternOnly(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore()

	matching := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	unrelated := "SELECT * FROM <http://g/> WHERE { <http://x> <http://y> ?o }"
	_, err := s.Query(ctx, matching)
	require.NoError(t, err)
	_, err = s.Query(ctx, unrelated)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.queryCalls)

	err = s.AddStatements(ctx, []Statement{{Subject: "http://a", Predicate: "http://b", Object: "http://c"}}, "http://g/")
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.writeCalls)

	_, err = s.Query(ctx, matching)
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.queryCalls, "matching query should have been invalidated")

	_, err = s.Query(ctx, unrelated)
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.queryCalls, "unrelated query should still be cached")
}

func TestDeleteMatchingStatements_InvalidatesWholeGraph(t *testing.T) {
	ctx := context.Background()
	s, adapter := newTestStore()

	q1 := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	q2 := "SELECT * FROM <http://g/> WHERE { <http://x> <http://y> ?o }"
	_, err := s.Query(ctx, q1)
	require.NoError(t, err)
	_, err = s.Query(ctx, q2)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.queryCalls)

	err = s.DeleteMatchingStatements(ctx, Statement{Predicate: "http://b"}, "http://g/")
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.writeCalls)

	_, err = s.Query(ctx, q1)
	require.NoError(t, err)
	_, err = s.Query(ctx, q2)
	require.NoError(t, err)
	assert.Equal(t, 4, adapter.queryCalls, "a delete pattern invalidates the whole graph")
}
