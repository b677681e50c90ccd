// Package testutil builds stores and graphs for tests.
package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/termalign/internal/config"
	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/store"
	"github.com/roach88/termalign/internal/term"
)

// OpenStore opens a store in a temp dir that is closed when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Taxonomy writes a taxonomy graph and registers it.
//
// Each entry is either a bare concept id ("a") or a hierarchy edge
// ("child>parent"); both ends of an edge are declared as concepts. Every
// concept gets its upper-cased id as preferred label.
func Taxonomy(t testing.TB, s *store.Store, graph, name string, version int, entries ...string) {
	t.Helper()
	ctx := context.Background()
	vocab := config.DefaultVocabulary()

	var triples []queryir.Ground
	declared := make(map[string]bool)
	declare := func(id string) {
		if declared[id] {
			return
		}
		declared[id] = true
		triples = append(triples,
			queryir.Ground{Subject: id, Predicate: vocab.Type, Object: vocab.Concept},
			queryir.Ground{Subject: id, Predicate: vocab.PrefLabel, Object: strings.ToUpper(id)},
		)
	}
	for _, e := range entries {
		child, parent, ok := strings.Cut(e, ">")
		declare(child)
		if ok {
			declare(parent)
			triples = append(triples, queryir.Ground{Subject: child, Predicate: vocab.Broader, Object: parent})
		}
	}

	_, err := s.RunUpdate(ctx, queryir.InsertData{Graph: graph, Triples: triples})
	require.NoError(t, err)
	require.NoError(t, s.RegisterGraph(ctx, store.GraphInfo{
		ID: graph, Kind: store.KindTaxonomy, Name: name, Version: version,
	}))
}

// Alignment registers an empty alignment graph between two taxonomies.
func Alignment(t testing.TB, s *store.Store, id, source, target string) {
	t.Helper()
	require.NoError(t, s.RegisterGraph(context.Background(), store.GraphInfo{
		ID: id, Kind: store.KindAlignment, Name: id, Version: 1, SourceGraph: source, TargetGraph: target,
	}))
}

// Link stores edges in an alignment graph the way the engine does.
func Link(t testing.TB, s *store.Store, alignment string, edges ...term.Edge) {
	t.Helper()
	vocab := config.DefaultVocabulary()
	triples := make([]queryir.Ground, 0, len(edges))
	for _, e := range edges {
		triples = append(triples, vocab.EdgeTriples(e)...)
	}
	_, err := s.RunUpdate(context.Background(), queryir.InsertData{Graph: alignment, Triples: triples})
	require.NoError(t, err)
}

// Edge builds a plain edge between two ids.
func Edge(source string, rel term.Relation, target string) term.Edge {
	return term.Edge{Source: term.NewRef(source, ""), Target: term.NewRef(target, ""), Relation: rel}
}

// InvertedEdge builds an edge stored target first.
func InvertedEdge(source string, rel term.Relation, target string) term.Edge {
	e := Edge(source, rel, target)
	e.Inverted = true
	return e
}
