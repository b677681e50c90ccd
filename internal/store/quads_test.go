package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termalign/internal/queryir"
)

const broader = "http://www.w3.org/2004/02/skos/core#broader"

func seedHierarchy(t *testing.T, s *Store, graph string, edges ...[2]string) {
	t.Helper()
	triples := make([]queryir.Ground, 0, len(edges))
	for _, e := range edges {
		triples = append(triples, queryir.Ground{Subject: e[0], Predicate: broader, Object: e[1]})
	}
	_, err := s.RunUpdate(context.Background(), queryir.InsertData{Graph: graph, Triples: triples})
	require.NoError(t, err)
}

func parentsQuery(graph string) queryir.Select {
	return queryir.Select{
		Partitions: []string{graph},
		Patterns: []queryir.Triple{{
			Subject:   queryir.Param("term"),
			Predicate: queryir.Const(broader),
			Object:    queryir.Var("parent"),
		}},
		Project: []queryir.Var{"parent"},
	}
}

func TestRunUpdate_InsertIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ins := queryir.InsertData{Graph: "tax", Triples: []queryir.Ground{
		{Subject: "b", Predicate: broader, Object: "a"},
	}}
	res, err := s.RunUpdate(ctx, ins)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Inserted)

	res, err = s.RunUpdate(ctx, ins)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Inserted)

	n, err := s.CountTriples(ctx, "tax")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunPatternQuery_OrderedAndScopedToGraph(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedHierarchy(t, s, "tax", [2]string{"c", "b"}, [2]string{"c", "a"})
	seedHierarchy(t, s, "other", [2]string{"c", "z"})

	rows, err := s.RunPatternQuery(ctx, parentsQuery("tax"), map[string]string{"term": "c"})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"parent": "a"}, {"parent": "b"}}, rows)
}

func TestRunPatternQuery_NoRows(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.RunPatternQuery(context.Background(), parentsQuery("tax"), map[string]string{"term": "missing"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRunPatternQuery_InvalidQuery(t *testing.T) {
	s := createTestStore(t)

	_, err := s.RunPatternQuery(context.Background(), queryir.Select{}, nil)
	assert.Error(t, err)
}

func TestRunUpdate_BatchIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedHierarchy(t, s, "al", [2]string{"b", "a"})

	// The second update is invalid, so the whole batch is rejected before
	// anything is written.
	_, err := s.RunUpdate(ctx, queryir.Batch{Updates: []queryir.Update{
		queryir.DeleteData{Graph: "al", Triples: []queryir.Ground{{Subject: "b", Predicate: broader, Object: "a"}}},
		queryir.InsertData{Graph: "", Triples: []queryir.Ground{{Subject: "x", Predicate: broader, Object: "y"}}},
	}})
	require.Error(t, err)

	n, err := s.CountTriples(ctx, "al")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunUpdate_CancelledContextLeavesGraphUnchanged(t *testing.T) {
	s := createTestStore(t)
	seedHierarchy(t, s, "al", [2]string{"b", "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RunUpdate(ctx, queryir.DeleteData{Graph: "al", Triples: []queryir.Ground{
		{Subject: "b", Predicate: broader, Object: "a"},
	}})
	require.Error(t, err)

	n, err := s.CountTriples(context.Background(), "al")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
