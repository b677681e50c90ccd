package queryir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const broader = "http://www.w3.org/2004/02/skos/core#broader"

func TestValidate_ValidSelect(t *testing.T) {
	q := Select{
		Partitions: []string{"g:source"},
		Patterns: []Triple{
			{Subject: Var("child"), Predicate: Const(broader), Object: Param("term")},
		},
		Filter: NotExists{
			Partitions: []string{"g:align"},
			Patterns:   []Triple{{Subject: Var("child"), Predicate: Var("rel"), Object: Var("t")}},
			Filter:     In{Var: "rel", Values: []string{"x", "y"}},
		},
		Project: []Var{"child"},
	}

	result := Validate(q)
	assert.True(t, result.IsValid, "problems: %v", result.Problems)
	assert.NoError(t, result.Err())

	ptr := Validate(&q)
	assert.True(t, ptr.IsValid)
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{
			name:  "nil query",
			query: nil,
			want:  "nil query",
		},
		{
			name: "no patterns",
			query: Select{
				Partitions: []string{"g"},
				Project:    []Var{"x"},
			},
			want: "at least one triple pattern",
		},
		{
			name: "no graph",
			query: Select{
				Patterns: []Triple{{Subject: Var("x"), Predicate: Const("p"), Object: Const("o")}},
				Project:  []Var{"x"},
			},
			want: "no graph",
		},
		{
			name: "empty projection",
			query: Select{
				Partitions: []string{"g"},
				Patterns:   []Triple{{Subject: Var("x"), Predicate: Const("p"), Object: Const("o")}},
			},
			want: "empty projection",
		},
		{
			name: "projection not in patterns",
			query: Select{
				Partitions: []string{"g"},
				Patterns:   []Triple{{Subject: Var("x"), Predicate: Const("p"), Object: Const("o")}},
				Project:    []Var{"y"},
			},
			want: "?y does not occur",
		},
		{
			name: "filter on unbound variable",
			query: Select{
				Partitions: []string{"g"},
				Patterns:   []Triple{{Subject: Var("x"), Predicate: Const("p"), Object: Const("o")}},
				Filter:     Equals{Var: "z", Value: "v"},
				Project:    []Var{"x"},
			},
			want: "unbound variable ?z",
		},
		{
			name: "nil position",
			query: Select{
				Partitions: []string{"g"},
				Patterns:   []Triple{{Subject: Var("x"), Predicate: nil, Object: Const("o")}},
				Project:    []Var{"x"},
			},
			want: "nil position",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			assert.False(t, result.IsValid)
			assert.Error(t, result.Err())
			found := false
			for _, p := range result.Problems {
				if strings.Contains(p, tt.want) {
					found = true
				}
			}
			assert.True(t, found, "expected problem containing %q, got %v", tt.want, result.Problems)
		})
	}
}

func TestValidate_NotExistsSeesOuterScope(t *testing.T) {
	q := Select{
		Partitions: []string{"g"},
		Patterns:   []Triple{{Subject: Var("x"), Predicate: Const("p"), Object: Var("y")}},
		Filter: NotExists{
			Patterns: []Triple{{Graphs: []string{"h"}, Subject: Var("y"), Predicate: Const("q"), Object: Var("z")}},
			Filter:   And{Predicates: []Predicate{Equals{Var: "x", Value: "a"}, Equals{Var: "z", Value: "b"}}},
		},
		Project: []Var{"x"},
	}
	assert.True(t, Validate(q).IsValid, "%v", Validate(q).Problems)
}

func TestValidateUpdate(t *testing.T) {
	ok := Batch{Updates: []Update{
		InsertData{Graph: "g", Triples: []Ground{{Subject: "s", Predicate: "p", Object: "o"}}},
		DeleteData{Graph: "g", Triples: []Ground{{Subject: "s", Predicate: "p", Object: "o"}}},
	}}
	assert.True(t, ValidateUpdate(ok).IsValid)

	assert.False(t, ValidateUpdate(InsertData{Triples: []Ground{{Subject: "s", Predicate: "p", Object: "o"}}}).IsValid)
	assert.False(t, ValidateUpdate(DeleteData{Graph: "g", Triples: []Ground{{Subject: "s"}}}).IsValid)
	assert.False(t, ValidateUpdate(Batch{Updates: []Update{nil}}).IsValid)
	assert.False(t, ValidateUpdate(nil).IsValid)
}
