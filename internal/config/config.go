// Package config holds the engine configuration: store location, session
// lock backend, relation vocabulary and loop limits.
//
// A Config is built once and passed to the engine; nothing here is global.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/term"
)

// SKOS and RDF IRIs used by the default vocabulary.
const (
	SKOSNamespace = "http://www.w3.org/2004/02/skos/core#"
	RDFType       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

	InvertedMarker = "urn:termalign:inverted"
)

// Config is the complete engine configuration.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" validate:"required"`

	// RedisURL selects the session lock backend. Empty means an in-process
	// lock, suitable for a single CLI invocation.
	RedisURL   string        `yaml:"redis_url" validate:"omitempty,url"`
	LockPrefix string        `yaml:"lock_prefix" validate:"required"`
	LockTTL    time.Duration `yaml:"lock_ttl" validate:"gt=0"`

	Vocabulary Vocabulary `yaml:"vocabulary"`
	Limits     Limits     `yaml:"limits"`
}

// Vocabulary maps each relation kind and structural predicate to the IRI
// stored in the quad table.
type Vocabulary struct {
	Type         string `yaml:"type" validate:"required"`
	Concept      string `yaml:"concept" validate:"required"`
	PrefLabel    string `yaml:"pref_label" validate:"required"`
	Broader      string `yaml:"broader" validate:"required"`
	ExactMatch   string `yaml:"exact_match" validate:"required"`
	CloseMatch   string `yaml:"close_match" validate:"required"`
	RelatedMatch string `yaml:"related_match" validate:"required"`
	BroadMatch   string `yaml:"broad_match" validate:"required"`

	// Inverted marks an explicit edge stored target first. The marker quad
	// has the edge key hash as subject and the relation IRI as object.
	Inverted string `yaml:"inverted" validate:"required"`
}

// Limits bound the recursive and fixpoint loops of the engine.
type Limits struct {
	// MaxCascadeDepth caps the unmark cascade recursion.
	MaxCascadeDepth int `yaml:"max_cascade_depth" validate:"min=1"`
	// MaxSweepIterations caps the orphan sweep. The sweep is also bounded
	// by the number of hierarchy edges at its start, whichever is lower.
	MaxSweepIterations int `yaml:"max_sweep_iterations" validate:"min=1"`
	// MaxDriftDepth caps the ancestor walk of the drift detector.
	MaxDriftDepth int `yaml:"max_drift_depth" validate:"min=1"`
	// SweepEvery runs the orphan sweep after this many removals. 0 disables
	// the cadence; Sweep can still be called directly.
	SweepEvery int `yaml:"sweep_every" validate:"min=0"`
	// CascadeParallelism limits concurrent store queries per cascade level.
	CascadeParallelism int `yaml:"cascade_parallelism" validate:"min=1,max=256"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath:     "termalign.db",
		LockPrefix: "termalign:lock:",
		LockTTL:    5 * time.Minute,
		Vocabulary: DefaultVocabulary(),
		Limits: Limits{
			MaxCascadeDepth:    256,
			MaxSweepIterations: 10000,
			MaxDriftDepth:      256,
			SweepEvery:         10,
			CascadeParallelism: 16,
		},
	}
}

// DefaultVocabulary returns the SKOS vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Type:         RDFType,
		Concept:      SKOSNamespace + "Concept",
		PrefLabel:    SKOSNamespace + "prefLabel",
		Broader:      SKOSNamespace + "broader",
		ExactMatch:   SKOSNamespace + "exactMatch",
		CloseMatch:   SKOSNamespace + "closeMatch",
		RelatedMatch: SKOSNamespace + "relatedMatch",
		BroadMatch:   SKOSNamespace + "broadMatch",
		Inverted:     InvertedMarker,
	}
}

// IRI returns the predicate stored for r.
func (v Vocabulary) IRI(r term.Relation) string {
	switch r {
	case term.ExactMatch:
		return v.ExactMatch
	case term.CloseMatch:
		return v.CloseMatch
	case term.RelatedMatch:
		return v.RelatedMatch
	case term.Narrower:
		return v.BroadMatch
	case term.Broader:
		return v.Broader
	default:
		return ""
	}
}

// Relation maps a stored predicate back to its relation kind.
func (v Vocabulary) Relation(iri string) (term.Relation, bool) {
	for _, r := range term.Relations {
		if v.IRI(r) == iri {
			return r, true
		}
	}
	return 0, false
}

// ExplicitIRIs returns the predicates of every explicit correspondence.
func (v Vocabulary) ExplicitIRIs() []string {
	return []string{v.ExactMatch, v.CloseMatch, v.RelatedMatch, v.BroadMatch}
}

// EdgeTriples returns the quads that persist e: the relation triple in
// storage order, plus the inversion marker when e is inverted.
func (v Vocabulary) EdgeTriples(e term.Edge) []queryir.Ground {
	out := []queryir.Ground{{Subject: e.Subject(), Predicate: v.IRI(e.Relation), Object: e.Object()}}
	if e.Inverted {
		out = append(out, queryir.Ground{Subject: e.Key().Hash(), Predicate: v.Inverted, Object: v.IRI(e.Relation)})
	}
	return out
}

// PropagatingIRIs returns the predicates whose alignment is inherited by
// descendants.
func (v Vocabulary) PropagatingIRIs() []string {
	return []string{v.ExactMatch, v.BroadMatch}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and that every relation maps to a
// distinct predicate.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]term.Relation, len(term.Relations))
	for _, r := range term.Relations {
		iri := c.Vocabulary.IRI(r)
		if prev, ok := seen[iri]; ok {
			return fmt.Errorf("invalid config: %s and %s share predicate %s", prev, r, iri)
		}
		seen[iri] = r
	}
	if r, ok := seen[c.Vocabulary.Inverted]; ok {
		return fmt.Errorf("invalid config: inversion marker shares predicate %s with %s", c.Vocabulary.Inverted, r)
	}
	return nil
}

var validate = validator.New()

func (c *Config) applyEnv() {
	c.DBPath = getenv("TERMALIGN_DB", c.DBPath)
	c.RedisURL = getenv("TERMALIGN_REDIS_URL", c.RedisURL)
	c.LockPrefix = getenv("TERMALIGN_LOCK_PREFIX", c.LockPrefix)
	if secs := getenvInt("TERMALIGN_LOCK_TTL_SECONDS", 0); secs > 0 {
		c.LockTTL = time.Duration(secs) * time.Second
	}
	c.Limits.SweepEvery = getenvInt("TERMALIGN_SWEEP_EVERY", c.Limits.SweepEvery)
	c.Limits.CascadeParallelism = getenvInt("TERMALIGN_CASCADE_PARALLELISM", c.Limits.CascadeParallelism)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
