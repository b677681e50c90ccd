// Package taxonomy loads taxonomy definitions from CUE or YAML files and
// imports them into the store as versioned graphs.
//
// A definition names the taxonomy, its version and its concepts. Each
// concept lists the ids of its broader concepts; the hierarchy must be
// acyclic.
//
// CUE form:
//
//	taxonomy: {
//		name:    "animals"
//		version: 2
//		concept: {
//			animal: label: "Animal"
//			bird: {label: "Bird", broader: ["animal"]}
//		}
//	}
//
// The YAML form has the same shape with concepts as a list of
// {id, label, broader} entries.
package taxonomy

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/termalign/internal/config"
	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/store"
	"github.com/roach88/termalign/internal/term"
)

// Concept is one term of a taxonomy.
type Concept struct {
	ID      string   `yaml:"id" json:"id"`
	Label   string   `yaml:"label,omitempty" json:"label,omitempty"`
	Broader []string `yaml:"broader,omitempty" json:"broader,omitempty"`
}

// Taxonomy is one version of a hierarchical vocabulary.
type Taxonomy struct {
	Name     string    `yaml:"name" json:"name"`
	Version  int       `yaml:"version" json:"version"`
	Concepts []Concept `yaml:"concepts" json:"concepts"`
}

// GraphID returns the graph partition the version is stored under.
func (t *Taxonomy) GraphID() string {
	return GraphID(t.Name, t.Version)
}

// GraphID returns the graph partition for a taxonomy version.
func GraphID(name string, version int) string {
	return fmt.Sprintf("%s@%d", name, version)
}

// Normalize trims and NFC-normalizes every id and sorts concepts and their
// broader lists by id.
func (t *Taxonomy) Normalize() {
	for i := range t.Concepts {
		c := &t.Concepts[i]
		c.ID = term.NormalizeID(c.ID)
		for j := range c.Broader {
			c.Broader[j] = term.NormalizeID(c.Broader[j])
		}
		sort.Strings(c.Broader)
	}
	sort.Slice(t.Concepts, func(i, j int) bool { return t.Concepts[i].ID < t.Concepts[j].ID })
}

// Triples returns the quads that encode the taxonomy.
func (t *Taxonomy) Triples(vocab config.Vocabulary) []queryir.Ground {
	var out []queryir.Ground
	for _, c := range t.Concepts {
		out = append(out, queryir.Ground{Subject: c.ID, Predicate: vocab.Type, Object: vocab.Concept})
		if c.Label != "" {
			out = append(out, queryir.Ground{Subject: c.ID, Predicate: vocab.PrefLabel, Object: c.Label})
		}
		for _, p := range c.Broader {
			out = append(out, queryir.Ground{Subject: c.ID, Predicate: vocab.Broader, Object: p})
		}
	}
	return out
}

// Import writes t into its graph and registers the version. Importing the
// same version twice leaves the graph unchanged.
func Import(ctx context.Context, s *store.Store, vocab config.Vocabulary, t *Taxonomy) (store.GraphInfo, error) {
	if err := t.Validate(); err != nil {
		return store.GraphInfo{}, err
	}

	graph := t.GraphID()
	if _, err := s.RunUpdate(ctx, queryir.InsertData{Graph: graph, Triples: t.Triples(vocab)}); err != nil {
		return store.GraphInfo{}, fmt.Errorf("import %s: %w", graph, err)
	}

	info := store.GraphInfo{ID: graph, Kind: store.KindTaxonomy, Name: t.Name, Version: t.Version}
	if err := s.RegisterGraph(ctx, info); err != nil {
		return store.GraphInfo{}, fmt.Errorf("import %s: %w", graph, err)
	}
	return s.Graph(ctx, graph)
}
