package querysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termalign/internal/queryir"
)

const (
	broader    = "skos:broader"
	exactMatch = "skos:exactMatch"
)

func TestCompile_SinglePattern(t *testing.T) {
	c := NewSQLCompiler(map[string]string{"term": "ex:apple"})

	sql, params, err := c.Compile(queryir.Select{
		Partitions: []string{"g:fruit"},
		Patterns: []queryir.Triple{
			{Subject: queryir.Param("term"), Predicate: queryir.Const(broader), Object: queryir.Var("parent")},
		},
		Project: []queryir.Var{"parent"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT DISTINCT q0.object AS \"parent\"")
	assert.Contains(t, sql, "FROM quads q0")
	assert.Contains(t, sql, "q0.graph = ?")
	assert.Contains(t, sql, "q0.subject = ?")
	assert.Contains(t, sql, "q0.predicate = ?")
	assert.Contains(t, sql, "ORDER BY \"parent\" COLLATE BINARY ASC")

	// Values are never interpolated.
	assert.NotContains(t, sql, "ex:apple")
	assert.NotContains(t, sql, broader)
	assert.Equal(t, []any{"g:fruit", "ex:apple", broader}, params)
}

func TestCompile_SharedVariableBecomesJoin(t *testing.T) {
	c := NewSQLCompiler(nil)

	sql, params, err := c.Compile(queryir.Select{
		Partitions: []string{"g:src"},
		Patterns: []queryir.Triple{
			{Subject: queryir.Var("child"), Predicate: queryir.Const(broader), Object: queryir.Var("mid")},
			{Subject: queryir.Var("mid"), Predicate: queryir.Const(broader), Object: queryir.Var("top")},
		},
		Project: []queryir.Var{"child", "top"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM quads q0, quads q1")
	assert.Contains(t, sql, "q1.subject = q0.object")
	assert.Contains(t, sql, "q0.subject AS \"child\", q1.object AS \"top\"")
	assert.Equal(t, []any{"g:src", broader, "g:src", broader}, params)
}

func TestCompile_PatternGraphOverride(t *testing.T) {
	c := NewSQLCompiler(nil)

	sql, params, err := c.Compile(queryir.Select{
		Partitions: []string{"g:align"},
		Patterns: []queryir.Triple{
			{Subject: queryir.Var("s"), Predicate: queryir.Const(exactMatch), Object: queryir.Var("t")},
			{Graphs: []string{"g:tgt", "g:tgt2"}, Subject: queryir.Var("t"), Predicate: queryir.Const("rdf:type"), Object: queryir.Const("skos:Concept")},
		},
		Project: []queryir.Var{"s"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "q1.graph IN (?, ?)")
	assert.Equal(t, []any{"g:align", exactMatch, "g:tgt", "g:tgt2", "rdf:type", "skos:Concept"}, params)
}

func TestCompile_NotExistsCorrelatesOuterVariables(t *testing.T) {
	c := NewSQLCompiler(map[string]string{"term": "ex:root"})

	sql, params, err := c.Compile(queryir.Select{
		Partitions: []string{"g:src"},
		Patterns: []queryir.Triple{
			{Subject: queryir.Var("child"), Predicate: queryir.Const(broader), Object: queryir.Param("term")},
		},
		Filter: queryir.NotExists{
			Partitions: []string{"g:align"},
			Patterns: []queryir.Triple{
				{Subject: queryir.Var("child"), Predicate: queryir.Var("rel"), Object: queryir.Var("target")},
			},
			Filter: queryir.In{Var: "rel", Values: []string{exactMatch, "skos:broadMatch"}},
		},
		Project: []queryir.Var{"child"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "NOT EXISTS (SELECT 1 FROM quads q1 WHERE q1.graph = ? AND q1.subject = q0.subject AND q1.predicate IN (?, ?))")
	assert.Equal(t, []any{"g:src", broader, "ex:root", "g:align", exactMatch, "skos:broadMatch"}, params)
	assert.Equal(t, strings.Count(sql, "?"), len(params), "placeholder count must match params")
}

func TestCompile_PredicateKinds(t *testing.T) {
	c := NewSQLCompiler(map[string]string{"who": "ex:b"})

	sql, params, err := c.Compile(queryir.Select{
		Partitions: []string{"g"},
		Patterns:   []queryir.Triple{{Subject: queryir.Var("s"), Predicate: queryir.Var("p"), Object: queryir.Var("o")}},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Var: "p", Value: broader},
			queryir.Bound{Var: "o", Param: "who"},
			queryir.In{Var: "s", Values: nil},
		}},
		Project: []queryir.Var{"s"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "(q0.predicate = ? AND q0.object = ? AND 1 = 0)")
	assert.Equal(t, []any{"g", broader, "ex:b"}, params)
}

func TestCompile_Errors(t *testing.T) {
	c := NewSQLCompiler(nil)

	_, _, err := c.Compile(nil)
	assert.Error(t, err)

	_, _, err = c.Compile(queryir.Select{
		Partitions: []string{"g"},
		Patterns:   []queryir.Triple{{Subject: queryir.Param("missing"), Predicate: queryir.Const("p"), Object: queryir.Var("o")}},
		Project:    []queryir.Var{"o"},
	})
	assert.ErrorContains(t, err, "missing")

	_, _, err = c.Compile(queryir.Select{
		Partitions: []string{"g"},
		Patterns:   []queryir.Triple{{Subject: queryir.Var("bad name"), Predicate: queryir.Const("p"), Object: queryir.Var("o")}},
		Project:    []queryir.Var{"bad name"},
	})
	assert.ErrorContains(t, err, "invalid variable name")
}

func TestCompileUpdate(t *testing.T) {
	var seq int64
	c := NewSQLCompiler(nil)
	c.NextSeq = func() int64 { seq++; return seq }

	stmts, err := c.CompileUpdate(queryir.Batch{Updates: []queryir.Update{
		queryir.InsertData{Graph: "g", Triples: []queryir.Ground{
			{Subject: "a", Predicate: broader, Object: "b"},
			{Subject: "b", Predicate: broader, Object: "c"},
		}},
		queryir.DeleteData{Graph: "g", Triples: []queryir.Ground{{Subject: "a", Predicate: broader, Object: "b"}}},
	}})
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	assert.Equal(t, StatementInsert, stmts[0].Kind)
	assert.Contains(t, stmts[0].SQL, "ON CONFLICT(graph, subject, predicate, object) DO NOTHING")
	assert.Equal(t, []any{"g", "a", broader, "b", int64(1)}, stmts[0].Args)
	assert.Equal(t, int64(2), stmts[1].Args[4])

	assert.Equal(t, StatementDelete, stmts[2].Kind)
	assert.Equal(t, []any{"g", "a", broader, "b"}, stmts[2].Args)


	_, err = c.CompileUpdate(queryir.InsertData{Triples: []queryir.Ground{{Subject: "a", Predicate: "p", Object: "b"}}})
	assert.Error(t, err)
}
