package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termalign/internal/config"
	"github.com/roach88/termalign/internal/hierarchy"
	"github.com/roach88/termalign/internal/lock"
	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/store"
	"github.com/roach88/termalign/internal/term"
	"github.com/roach88/termalign/internal/testutil"
)

const (
	srcGraph = "src@1"
	tgtGraph = "tgt@1"
	alID     = "al"
	owner    = "tester"
)

// recordingStore wraps a store, records updates and can fail them.
type recordingStore struct {
	*store.Store
	mu      sync.Mutex
	updates []queryir.Update
	failOn  func(u queryir.Update) bool
}

func (r *recordingStore) RunUpdate(ctx context.Context, u queryir.Update) (store.UpdateResult, error) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	fail := r.failOn != nil && r.failOn(u)
	r.mu.Unlock()
	if fail {
		return store.UpdateResult{}, errors.New("disk on fire")
	}
	return r.Store.RunUpdate(ctx, u)
}

func (r *recordingStore) deletes() []queryir.DeleteData {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []queryir.DeleteData
	for _, u := range r.updates {
		if d, ok := u.(queryir.DeleteData); ok {
			out = append(out, d)
		}
	}
	return out
}

// countingReader counts orphan and multiplicity queries.
type countingReader struct {
	*hierarchy.Reader
	mu           sync.Mutex
	orphans      int
	multiplicity int
}

func (c *countingReader) Multiplicity(ctx context.Context, sc hierarchy.Scope, termID string) (int, error) {
	c.mu.Lock()
	c.multiplicity++
	c.mu.Unlock()
	return c.Reader.Multiplicity(ctx, sc, termID)
}

func (c *countingReader) multiplicityCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplicity
}

func (c *countingReader) OrphanCandidates(ctx context.Context, sc hierarchy.Scope) ([]hierarchy.Orphan, error) {
	c.mu.Lock()
	c.orphans++
	c.mu.Unlock()
	return c.Reader.OrphanCandidates(ctx, sc)
}

type fixture struct {
	store  *recordingStore
	reader *countingReader
	locker *lock.MemoryLocker
	engine *Engine
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Limits.CascadeParallelism = 4
	return cfg
}

// newFixture opens a store, writes taxonomies with the given entries and
// an empty alignment, and starts an engine with a loaded session.
func newFixture(t *testing.T, cfg config.Config, source []string, target []string, opts ...Option) *fixture {
	t.Helper()
	s := testutil.OpenStore(t)
	testutil.Taxonomy(t, s, srcGraph, "src", 1, source...)
	testutil.Taxonomy(t, s, tgtGraph, "tgt", 1, target...)
	testutil.Alignment(t, s, alID, srcGraph, tgtGraph)

	f := &fixture{
		store:  &recordingStore{Store: s},
		reader: &countingReader{Reader: hierarchy.New(s, cfg.Vocabulary, cfg.Limits.MaxCascadeDepth)},
		locker: lock.NewMemoryLocker(),
	}
	f.engine = New(f.store, f.reader, f.locker, cfg, opts...)
	startEngine(t, f.engine)
	require.NoError(t, f.engine.LoadSession(context.Background(), alID, owner))
	return f
}

func startEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func ref(id string) term.Ref { return term.Ref{ID: id} }

func (f *fixture) add(t *testing.T, source string, rel term.Relation, target string) {
	t.Helper()
	added, err := f.engine.AddAlignment(context.Background(), ref(source), ref(target), rel, false)
	require.NoError(t, err)
	require.True(t, added)
}

func (f *fixture) aligned(t *testing.T, id string) bool {
	t.Helper()
	ok, err := f.engine.IsSourceAligned(context.Background(), id)
	require.NoError(t, err)
	return ok
}

func (f *fixture) edgeKeys(t *testing.T) []string {
	t.Helper()
	snap, err := f.engine.Snapshot(context.Background())
	require.NoError(t, err)
	var out []string
	for _, e := range snap.Edges {
		out = append(out, e.Key().String())
	}
	return out
}

func TestRemoveTerm_ExactMatchEndToEnd(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"a"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "a", term.ExactMatch, "x")
	require.True(t, f.aligned(t, "a"))

	require.NoError(t, f.engine.RemoveTerm(ctx, "a", term.ExactMatch, "x", false))

	deletes := f.store.deletes()
	require.Len(t, deletes, 1)
	assert.Equal(t, alID, deletes[0].Graph)
	assert.Equal(t, []queryir.Ground{{Subject: "a", Predicate: config.SKOSNamespace + "exactMatch", Object: "x"}}, deletes[0].Triples)

	assert.False(t, f.aligned(t, "a"))
	assert.Empty(t, f.edgeKeys(t))
	assert.Zero(t, f.reader.orphans, "a single removal must not trigger a sweep")

	triples, err := f.store.Triples(ctx, alID)
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestRemoveTerm_UnknownEdgeIsNoop(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"a"}, []string{"x"})

	require.NoError(t, f.engine.RemoveTerm(context.Background(), "a", term.CloseMatch, "x", false))
	assert.Empty(t, f.store.deletes())
}

func TestRemoveTerm_CascadeOverNarrowerChain(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"child1>source", "child2>child1"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "source", term.Narrower, "x")

	for _, id := range []string{"source", "child1", "child2"} {
		assert.True(t, f.aligned(t, id), id)
	}

	require.NoError(t, f.engine.RemoveTerm(ctx, "source", term.Narrower, "x", false))

	for _, id := range []string{"source", "child1", "child2"} {
		assert.False(t, f.aligned(t, id), id)
	}
}

func TestRemoveTerm_KeepsTermWithOtherJustification(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"child>parent"}, []string{"x", "y"})
	ctx := context.Background()
	f.add(t, "parent", term.ExactMatch, "x")
	f.add(t, "child", term.CloseMatch, "y")
	require.True(t, f.aligned(t, "child"))

	require.NoError(t, f.engine.RemoveTerm(ctx, "parent", term.ExactMatch, "x", false))

	assert.False(t, f.aligned(t, "parent"))
	assert.True(t, f.aligned(t, "child"), "child still holds its own correspondence")
}

func TestRemoveTerm_InheritedFromAncestorSurvives(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"child>parent"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "parent", term.ExactMatch, "x")
	f.add(t, "child", term.RelatedMatch, "x")

	require.NoError(t, f.engine.RemoveTerm(ctx, "child", term.RelatedMatch, "x", false))

	assert.True(t, f.aligned(t, "child"), "parent exact match still covers child")
}

func TestRemoveTerm_InvertedEdge(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"a"}, []string{"x"})
	ctx := context.Background()
	added, err := f.engine.AddAlignment(ctx, ref("a"), ref("x"), term.ExactMatch, true)
	require.NoError(t, err)
	require.True(t, added)
	require.True(t, f.aligned(t, "a"))

	require.NoError(t, f.engine.RemoveTerm(ctx, "a", term.ExactMatch, "x", true))

	deletes := f.store.deletes()
	require.Len(t, deletes, 1)
	require.Len(t, deletes[0].Triples, 2, "relation triple and inversion marker")
	assert.Equal(t, "x", deletes[0].Triples[0].Subject)
	assert.False(t, f.aligned(t, "a"))

	triples, err := f.store.Triples(ctx, alID)
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestRemoveTerm_InvertedEdgeAfterReloadWithSharedID(t *testing.T) {
	// "x" is a concept of both taxonomies, so storage order alone cannot
	// tell the inverted edge from a plain x -> a edge.
	f := newFixture(t, testConfig(), []string{"a", "x"}, []string{"x"})
	ctx := context.Background()
	added, err := f.engine.AddAlignment(ctx, ref("a"), ref("x"), term.ExactMatch, true)
	require.NoError(t, err)
	require.True(t, added)

	require.NoError(t, f.engine.LoadSession(ctx, alID, owner))
	assert.Equal(t, []string{"a <-[exactMatch] x"}, f.edgeKeys(t))
	require.True(t, f.aligned(t, "a"))

	require.NoError(t, f.engine.RemoveTerm(ctx, "a", term.ExactMatch, "x", true))

	require.Len(t, f.store.deletes(), 1)
	assert.False(t, f.aligned(t, "a"))
	assert.Empty(t, f.edgeKeys(t))
	triples, err := f.store.Triples(ctx, alID)
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestRemoveTerm_ClearsStaleDescendantFlag(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"c>p"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "c", term.ExactMatch, "x")

	flagged, err := f.engine.HasAlignedDescendant(ctx, "p")
	require.NoError(t, err)
	require.True(t, flagged)

	require.NoError(t, f.engine.RemoveTerm(ctx, "c", term.ExactMatch, "x", false))

	flagged, err = f.engine.HasAlignedDescendant(ctx, "p")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestRemoveTerm_RestoresDescendantFlagOfStillAlignedBranch(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"c>p", "d>p", "e>c"}, []string{"x", "y"})
	ctx := context.Background()
	f.add(t, "e", term.ExactMatch, "x")
	f.add(t, "p", term.RelatedMatch, "x")
	f.add(t, "p", term.CloseMatch, "y")

	// p keeps its close match, so the cascade stops at p and drops the flag
	// of its non-aligned children. c still contains the aligned e.
	require.NoError(t, f.engine.RemoveTerm(ctx, "p", term.RelatedMatch, "x", false))
	require.True(t, f.aligned(t, "p"))

	for id, want := range map[string]bool{"c": true, "d": false} {
		flagged, err := f.engine.HasAlignedDescendant(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, flagged, id)
	}
}

func TestRemoveTerm_BroaderEdgeSkipsCascade(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"c>p"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "p", term.Narrower, "x")
	before := f.reader.multiplicityCalls()

	require.NoError(t, f.engine.RemoveTerm(ctx, "c", term.Broader, "p", false))

	assert.Equal(t, before, f.reader.multiplicityCalls())
	assert.Equal(t, []string{"p ->[broadMatch] x"}, f.edgeKeys(t))
	assert.True(t, f.aligned(t, "c"))
}

func TestRemoveTerm_StoreFailureLeavesIndexUnchanged(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"a"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "a", term.ExactMatch, "x")
	before := f.edgeKeys(t)

	f.store.failOn = func(u queryir.Update) bool {
		_, ok := u.(queryir.DeleteData)
		return ok
	}
	err := f.engine.RemoveTerm(ctx, "a", term.ExactMatch, "x", false)

	require.Error(t, err)
	assert.True(t, IsStoreError(err))
	assert.Equal(t, before, f.edgeKeys(t))
	assert.True(t, f.aligned(t, "a"))
}

func TestRemoveTerm_CascadeDepthCap(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxCascadeDepth = 1
	f := newFixture(t, cfg, []string{"c1>root", "c2>c1"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "root", term.RelatedMatch, "x")

	err := f.engine.RemoveTerm(ctx, "root", term.RelatedMatch, "x", false)

	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeCascadeDepth))
	assert.True(t, IsLimitError(err))
}

func TestRemoveTermAsync_ResolvesInOrder(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"a", "b"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "a", term.ExactMatch, "x")
	f.add(t, "b", term.ExactMatch, "x")

	first := f.engine.RemoveTermAsync(ctx, "a", term.ExactMatch, "x", false)
	second := f.engine.RemoveTermAsync(ctx, "b", term.ExactMatch, "x", false)

	require.NoError(t, second.Wait(ctx))
	select {
	case <-first.Done():
	default:
		t.Fatal("earlier removal must resolve before a later one")
	}
	require.NoError(t, first.Err())
	assert.False(t, f.aligned(t, "a"))
	assert.False(t, f.aligned(t, "b"))
}

func TestAddAlignment_DuplicateNotAdded(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"a"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "a", term.ExactMatch, "x")

	added, err := f.engine.AddAlignment(ctx, term.Ref{ID: "a", Label: "other label"}, ref("x"), term.ExactMatch, false)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = f.engine.AddAlignment(ctx, ref("a"), ref("x"), term.CloseMatch, false)
	require.NoError(t, err)
	assert.True(t, added, "a different relation is a different edge")
	assert.Len(t, f.edgeKeys(t), 2)
}

func TestAddAlignment_RejectsInvalidEdges(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"a"}, []string{"x"})
	ctx := context.Background()

	tests := []struct {
		name   string
		source string
		target string
		rel    term.Relation
	}{
		{"broader is derived", "a", "x", term.Broader},
		{"unknown relation", "a", "x", term.Relation(42)},
		{"empty source", "", "x", term.ExactMatch},
		{"source not in source taxonomy", "x", "x", term.ExactMatch},
		{"target not in target taxonomy", "a", "a", term.ExactMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, err := f.engine.AddAlignment(ctx, ref(tt.source), ref(tt.target), tt.rel, false)
			require.Error(t, err)
			assert.False(t, added)
			assert.True(t, HasCode(err, ErrCodeInvalidEdge), err.Error())
		})
	}
	assert.Empty(t, f.edgeKeys(t))
}

func TestAddAlignment_NarrowerCopiesSubtree(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"bird>animal", "penguin>bird", "fish>animal"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "bird", term.Narrower, "x")

	triples, err := f.store.Triples(ctx, alID)
	require.NoError(t, err)
	broader := config.SKOSNamespace + "broader"
	assert.Contains(t, triples, queryir.Ground{Subject: "bird", Predicate: config.SKOSNamespace + "broadMatch", Object: "x"})
	assert.Contains(t, triples, queryir.Ground{Subject: "penguin", Predicate: broader, Object: "bird"})
	assert.NotContains(t, triples, queryir.Ground{Subject: "fish", Predicate: broader, Object: "animal"})

	assert.True(t, f.aligned(t, "penguin"))
	assert.False(t, f.aligned(t, "fish"))

	flagged, err := f.engine.HasAlignedDescendant(ctx, "animal")
	require.NoError(t, err)
	assert.True(t, flagged)
}

func TestQueries(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"a", "b"}, []string{"x", "y"})
	ctx := context.Background()
	f.add(t, "a", term.ExactMatch, "x")
	f.add(t, "a", term.CloseMatch, "y")
	f.add(t, "b", term.RelatedMatch, "x")

	related, err := f.engine.TermsRelatedTo(ctx, "a", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, related)

	closeMatch := term.CloseMatch
	related, err = f.engine.TermsRelatedTo(ctx, "a", &closeMatch)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, related)

	ok, err := f.engine.ExplicitlyAlignedInContext(ctx, "b", "x", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.engine.ExplicitlyAlignedInContext(ctx, "b", "y", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

// chainEntries builds root <- c1 <- ... <- cn.
func chainEntries(n int) []string {
	entries := []string{}
	for i := 1; i <= n; i++ {
		parent := "root"
		if i > 1 {
			parent = fmt.Sprintf("c%d", i-1)
		}
		entries = append(entries, fmt.Sprintf("c%d>%s", i, parent))
	}
	return entries
}

// orphanChain leaves n copied hierarchy edges with no correspondence above
// them. Each sweep round can only release the topmost one.
func orphanChain(t *testing.T, cfg config.Config, n int) *fixture {
	t.Helper()
	cfg.Limits.SweepEvery = 0
	f := newFixture(t, cfg, chainEntries(n), []string{"x"})
	f.add(t, "root", term.Narrower, "x")
	require.NoError(t, f.engine.RemoveTerm(context.Background(), "root", term.Narrower, "x", false))
	return f
}

func TestSweep_OrphanChain(t *testing.T) {
	const n = 5
	f := orphanChain(t, testConfig(), n)
	ctx := context.Background()

	report, err := f.engine.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, n, report.Removed)
	assert.LessOrEqual(t, report.Iterations, n)
	assert.Empty(t, f.edgeKeys(t))

	count, err := f.reader.HierarchyEdgeCount(ctx, alID)
	require.NoError(t, err)
	assert.Zero(t, count)

	again, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, again)
}

func TestSweep_IterationCapFailsLoudly(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxSweepIterations = 2
	f := orphanChain(t, cfg, 5)

	_, err := f.engine.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeSweepNotConverged), err.Error())
	assert.True(t, IsLimitError(err))

	var le *IterationLimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Limit)
}

func TestSweep_KeepsJustifiedSubtree(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"c>p"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "p", term.Narrower, "x")

	report, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Removed)
	assert.True(t, f.aligned(t, "c"))
}

func TestSweep_RunsOnCadence(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.SweepEvery = 2
	f := newFixture(t, cfg, []string{"a", "b"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "a", term.ExactMatch, "x")
	f.add(t, "b", term.ExactMatch, "x")

	require.NoError(t, f.engine.RemoveTerm(ctx, "a", term.ExactMatch, "x", false))
	assert.Zero(t, f.reader.orphans)

	require.NoError(t, f.engine.RemoveTerm(ctx, "b", term.ExactMatch, "x", false))
	assert.Equal(t, 1, f.reader.orphans)
}

func TestLoadSession_RebuildsTrackerFromStore(t *testing.T) {
	cfg := testConfig()
	s := testutil.OpenStore(t)
	testutil.Taxonomy(t, s, srcGraph, "src", 1, "child>parent", "other")
	testutil.Taxonomy(t, s, tgtGraph, "tgt", 1, "x")
	testutil.Alignment(t, s, alID, srcGraph, tgtGraph)
	testutil.Link(t, s, alID,
		testutil.Edge("parent", term.ExactMatch, "x"),
		testutil.InvertedEdge("other", term.CloseMatch, "x"),
	)

	e := New(s, hierarchy.New(s, cfg.Vocabulary, 64), lock.NewMemoryLocker(), cfg)
	startEngine(t, e)
	ctx := context.Background()
	require.NoError(t, e.LoadSession(ctx, alID, owner))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"child", "other", "parent"}, snap.Aligned)

	ok, err := e.ExplicitlyAlignedInContext(ctx, "other", "x", nil)
	require.NoError(t, err)
	assert.True(t, ok, "inverted quad loads as an edge from the source term")
}

func TestLoadSession_Errors(t *testing.T) {
	cfg := testConfig()
	s := testutil.OpenStore(t)
	testutil.Taxonomy(t, s, srcGraph, "src", 1, "a")
	testutil.Taxonomy(t, s, tgtGraph, "tgt", 1, "x")
	testutil.Alignment(t, s, alID, srcGraph, tgtGraph)
	locker := lock.NewMemoryLocker()
	reader := hierarchy.New(s, cfg.Vocabulary, 64)
	ctx := context.Background()

	first := New(s, reader, locker, cfg)
	startEngine(t, first)
	second := New(s, reader, locker, cfg)
	startEngine(t, second)

	_, err := second.Snapshot(ctx)
	assert.True(t, HasCode(err, ErrCodeNoSession))

	err = first.LoadSession(ctx, "missing", owner)
	assert.True(t, HasCode(err, ErrCodeUnknownAlignment))

	err = first.LoadSession(ctx, srcGraph, owner)
	assert.True(t, HasCode(err, ErrCodeUnknownAlignment), "a taxonomy is not an alignment")

	require.NoError(t, first.LoadSession(ctx, alID, "alice"))
	err = second.LoadSession(ctx, alID, "bob")
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeSessionLocked))
	assert.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, first.Close(ctx))
	require.NoError(t, second.LoadSession(ctx, alID, "bob"))
}

func TestEngine_StopRejectsNewCommands(t *testing.T) {
	cfg := testConfig()
	s := testutil.OpenStore(t)
	e := New(s, hierarchy.New(s, cfg.Vocabulary, 64), lock.NewMemoryLocker(), cfg)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	e.Stop()
	require.NoError(t, <-done)

	_, err := e.IsSourceAligned(context.Background(), "a")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestCheckSynchronized(t *testing.T) {
	f := newFixture(t, testConfig(), []string{"bird>animal", "penguin>bird", "fish>animal"}, []string{"x"})
	ctx := context.Background()
	f.add(t, "penguin", term.ExactMatch, "x")

	res, err := f.engine.CheckSynchronized(ctx, SideSource, "penguin")
	require.NoError(t, err)
	assert.True(t, res.InSync, "no newer version registered")

	testutil.Taxonomy(t, f.store.Store, "src@2", "src", 2, "bird>animal", "flightless>bird", "penguin>flightless")

	res, err = f.engine.CheckSynchronized(ctx, SideSource, "penguin")
	require.NoError(t, err)
	assert.False(t, res.InSync)
	assert.Equal(t, "parents changed", string(res.Reason))

	res, err = f.engine.CheckSynchronized(ctx, SideSource, "fish")
	require.NoError(t, err)
	assert.True(t, res.Removed())

	statuses, err := f.engine.CheckAll(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, SideSource, statuses[0].Side)
	assert.Equal(t, "penguin", statuses[0].Term)
	assert.Equal(t, "penguin", statuses[0].Result.At)
	assert.Equal(t, SideTarget, statuses[1].Side)
	assert.True(t, statuses[1].Result.InSync)
}

func TestUpgradeAlignment(t *testing.T) {
	f := newFixture(t, testConfig(),
		[]string{"bird>animal", "penguin>bird", "fish>animal"},
		[]string{"x", "y"},
		WithIDGenerator(testutil.NewFixedGenerator("al-2")),
	)
	ctx := context.Background()
	f.add(t, "fish", term.ExactMatch, "x")
	f.add(t, "penguin", term.CloseMatch, "y")
	f.add(t, "bird", term.RelatedMatch, "x")

	testutil.Taxonomy(t, f.store.Store, "src@2", "src", 2, "bird>animal", "flightless>bird", "penguin>flightless")

	report, err := f.engine.UpgradeAlignment(ctx, alID, "", "")
	require.NoError(t, err)

	assert.Equal(t, "al-2", report.Alignment.ID)
	assert.Equal(t, "src@2", report.Alignment.SourceGraph)
	assert.Equal(t, tgtGraph, report.Alignment.TargetGraph)
	assert.Equal(t, 2, report.Alignment.Version)
	assert.Equal(t, int64(3), report.Copied)

	require.Len(t, report.Pruned, 1)
	assert.Equal(t, "fish", report.Pruned[0].Source.ID)
	require.Len(t, report.Stale, 1)
	assert.Equal(t, "penguin", report.Stale[0].Term)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "al-2", snap.Alignment.ID)
	assert.Len(t, snap.Edges, 2)
	assert.False(t, f.aligned(t, "fish"))

	old, err := f.store.Triples(ctx, alID)
	require.NoError(t, err)
	assert.Len(t, old, 3, "the old alignment is untouched")

	assert.NoError(t, f.locker.Acquire(ctx, alID, "someone else"), "the old session lock is released")
}

func TestUpgradeAlignment_FailureDropsNewGraph(t *testing.T) {
	f := newFixture(t, testConfig(),
		[]string{"bird>animal", "fish>animal"},
		[]string{"x"},
		WithIDGenerator(testutil.NewFixedGenerator("al-2")),
	)
	ctx := context.Background()
	f.add(t, "fish", term.ExactMatch, "x")
	testutil.Taxonomy(t, f.store.Store, "src@2", "src", 2, "bird>animal")

	f.store.failOn = func(u queryir.Update) bool {
		d, ok := u.(queryir.DeleteData)
		return ok && d.Graph == "al-2"
	}
	_, err := f.engine.UpgradeAlignment(ctx, alID, "", "")
	require.Error(t, err)
	assert.True(t, IsStoreError(err))

	_, err = f.store.Graph(ctx, "al-2")
	assert.ErrorIs(t, err, store.ErrGraphNotFound)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, alID, snap.Alignment.ID)
}

func TestCreateAlignment(t *testing.T) {
	cfg := testConfig()
	s := testutil.OpenStore(t)
	testutil.Taxonomy(t, s, srcGraph, "src", 1, "a")
	testutil.Taxonomy(t, s, tgtGraph, "tgt", 1, "x")
	e := New(s, hierarchy.New(s, cfg.Vocabulary, 64), lock.NewMemoryLocker(), cfg, WithIDGenerator(testutil.NewFixedGenerator("new")))
	startEngine(t, e)
	ctx := context.Background()

	info, err := e.CreateAlignment(ctx, "demo", srcGraph, tgtGraph)
	require.NoError(t, err)
	assert.Equal(t, "new", info.ID)
	assert.Equal(t, store.KindAlignment, info.Kind)
	assert.Equal(t, 1, info.Version)

	_, err = e.CreateAlignment(ctx, "demo", srcGraph, "missing")
	assert.ErrorIs(t, err, store.ErrGraphNotFound)

	require.NoError(t, e.LoadSession(ctx, "new", owner))
}
