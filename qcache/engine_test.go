package qcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparqlcache/qcache/internal/shortid"
	"github.com/sparqlcache/qcache/kv"
)

func newTestEngine() (*Engine, *kv.Memory) {
	store := kv.NewMemory()
	return New(store, nil, nil), store
}

func TestRemember_ThenLookupReturnsResult(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine()

	q := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))

	entry, ok, err := e.getQueryEntry(ctx, shortid.New(q))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "R1", entry.Result)
	assert.Equal(t, 3, store.Len()) // query entry + graph entry + 1 all-wildcard pattern entry
}

func TestScenario1_SingleMemoizeInvalidate(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine()

	q := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))
	require.NoError(t, e.InvalidateByGraph(ctx, "http://g/"))

	_, ok, err := e.getQueryEntry(ctx, shortid.New(q))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = e.getGraphEntry(ctx, shortid.New("http://g/"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 0, store.Len())
}

func TestScenario2_TwoQueriesSharingOneGraph(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine()

	q1 := "SELECT * FROM <http://g/> WHERE { ?s <http://a> ?o }"
	q2 := "SELECT * FROM <http://g/> WHERE { ?s <http://b> ?o }"
	require.NoError(t, e.Remember(ctx, q1, "R1"))
	require.NoError(t, e.Remember(ctx, q2, "R2"))

	require.NoError(t, e.InvalidateByGraph(ctx, "http://g/"))

	_, ok, err := e.getQueryEntry(ctx, shortid.New(q1))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = e.getQueryEntry(ctx, shortid.New(q2))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = e.getGraphEntry(ctx, shortid.New("http://g/"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 0, store.Len())
}

func TestScenario3_PatternSpecificInvalidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	q := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))

	gid := shortid.New("http://g/")
	wantKey := gid + "_" + shortid.New("http://a") + "_" + shortid.New("http://b") + "_*"

	pe, ok, err := e.getPatternEntry(ctx, wantKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, shortid.New(q), pe.QueryID)

	otherKey := gid + "_" + shortid.New("http://x") + "_" + shortid.New("http://b") + "_*"
	_, ok, err = e.getPatternEntry(ctx, otherKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScenario6_ReRememberReplaces(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine()

	q := "SELECT * FROM <http://g/> WHERE { ?s <http://a> ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))
	sizeAfterFirst := store.Len()

	require.NoError(t, e.Remember(ctx, q, "R2"))

	entry, ok, err := e.getQueryEntry(ctx, shortid.New(q))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "R2", entry.Result)

	assert.Equal(t, sizeAfterFirst, store.Len(), "no orphan graph/pattern entries from the R1 lifetime")
}

func TestInvalidateByQuery_MissingQueryIsNoOp(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()
	require.NoError(t, e.InvalidateByQuery(ctx, "SELECT * WHERE { ?s ?p ?o }"))
}

func TestInvalidateByGraph_MissingGraphIsNoOp(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()
	require.NoError(t, e.InvalidateByGraph(ctx, "http://never-used/"))
}

func TestInvalidateByQuery_Idempotent(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine()

	q := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))
	require.NoError(t, e.InvalidateByQuery(ctx, q))
	sizeOnce := store.Len()
	require.NoError(t, e.InvalidateByQuery(ctx, q))
	assert.Equal(t, sizeOnce, store.Len())
}

func TestRememberThenInvalidate_RestoresEmptyStore(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine()

	before := store.Len()
	q := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))
	require.NoError(t, e.InvalidateByQuery(ctx, q))
	assert.Equal(t, before, store.Len())
}

func TestIndexConsistency_GraphQueryIDsMatchQueryEntries(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	q1 := "SELECT * FROM <http://g/> WHERE { ?s <http://a> ?o }"
	q2 := "SELECT * FROM <http://g/> WHERE { ?s <http://b> ?o }"
	require.NoError(t, e.Remember(ctx, q1, "R1"))
	require.NoError(t, e.Remember(ctx, q2, "R2"))

	ge, ok, err := e.getGraphEntry(ctx, shortid.New("http://g/"))
	require.NoError(t, err)
	require.True(t, ok)

	for _, qid := range ge.QueryIDs {
		_, ok, err := e.getQueryEntry(ctx, qid)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.ElementsMatch(t, []string{shortid.New(q1), shortid.New(q2)}, ge.QueryIDs)
}

func TestRemember_QueryWithNoFromSharesEmptyGraphEntry(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	q1 := "SELECT * WHERE { ?s <http://a> ?o }"
	q2 := "SELECT * WHERE { ?s <http://b> ?o }"
	require.NoError(t, e.Remember(ctx, q1, "R1"))
	require.NoError(t, e.Remember(ctx, q2, "R2"))

	ge, ok, err := e.getGraphEntry(ctx, shortid.New(""))
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{shortid.New(q1), shortid.New(q2)}, ge.QueryIDs)
}

func TestRemember_DuplicateGraphMentionCollapses(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	q := "SELECT * FROM <http://g/> FROM <http://g/> WHERE { ?s ?p ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))

	entry, ok, err := e.getQueryEntry(ctx, shortid.New(q))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, entry.GraphIDs, 1)
}

func TestMalformedQuery_SurfacesAsErrMalformedQuery(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()
	err := e.Remember(ctx, "not a sparql query at all", "R1")
	require.ErrorIs(t, err, ErrMalformedQuery)
}

func TestInvalidateByTriple_InvalidatesMatchingQuery(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	q := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))

	require.NoError(t, e.InvalidateByTriple(ctx, "http://g/", "http://a", "http://b", "http://c"))

	_, ok, err := e.getQueryEntry(ctx, shortid.New(q))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateByTriple_NonMatchingTripleLeavesQueryAlone(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	q := "SELECT * FROM <http://g/> WHERE { <http://a> <http://b> ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))

	require.NoError(t, e.InvalidateByTriple(ctx, "http://g/", "http://x", "http://y", "http://z"))

	_, ok, err := e.getQueryEntry(ctx, shortid.New(q))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvalidateByQuery_MissingGraphEntrySurfacesInvariantViolation(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine()

	q := "SELECT * FROM <http://g/> WHERE { ?s ?p ?o }"
	require.NoError(t, e.Remember(ctx, q, "R1"))

	// Corrupt the store: remove the GraphEntry a live QueryEntry still
	// references, the exact consistency check spec.md §7 names.
	require.NoError(t, store.Delete(ctx, shortid.New("http://g/")))

	err := e.InvalidateByQuery(ctx, q)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestInvalidateByGraph_MissingGraphEntryOnCascadeSurfacesInvariantViolation(t *testing.T) {
	ctx := context.Background()
	e, store := newTestEngine()

	q1 := "SELECT * FROM <http://g1/> WHERE { ?s ?p ?o }"
	q2 := "SELECT * FROM <http://g2/> WHERE { ?s ?p ?o }"
	e.BeginTransaction()
	require.NoError(t, e.Remember(ctx, q1, "R1"))
	require.NoError(t, e.Remember(ctx, q2, "R2"))
	require.NoError(t, e.CommitTransaction(ctx))

	// q1 and q2 are now linked by a RelatedGroup. Corrupt the GraphEntry
	// q2 depends on, then invalidate q1's graph: the InvalidateByGraph
	// cascade through the RelatedGroup reaches q2's removeQueryEntry,
	// which should surface the same invariant-violation error rather than
	// silently continuing.
	require.NoError(t, store.Delete(ctx, shortid.New("http://g2/")))

	err := e.InvalidateByGraph(ctx, "http://g1/")
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestPatternKeyCollision_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	q1 := "SELECT * FROM <http://g/> WHERE { ?s <http://a> ?o }"
	q2 := "SELECT * FROM <http://g/> WHERE { ?s <http://a> ?o2 }" // same s/p shape -> identical pattern key
	require.NoError(t, e.Remember(ctx, q1, "R1"))
	require.NoError(t, e.Remember(ctx, q2, "R2"))

	gid := shortid.New("http://g/")
	key := gid + "_*_" + shortid.New("http://a") + "_*"
	pe, ok, err := e.getPatternEntry(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, shortid.New(q2), pe.QueryID, "later write wins the shared pattern key")

	// q1's QueryEntry and GraphEntry membership still exist (only the
	// pattern index entry for the shared key was overwritten).
	_, ok, err = e.getQueryEntry(ctx, shortid.New(q1))
	require.NoError(t, err)
	assert.True(t, ok)
}
