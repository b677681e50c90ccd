package term

import "fmt"

// Relation is the closed set of correspondence kinds an alignment edge can carry.
type Relation int

const (
	// ExactMatch links two terms with the same meaning.
	ExactMatch Relation = iota + 1
	// CloseMatch links terms that are interchangeable in some contexts.
	CloseMatch
	// RelatedMatch links associated terms.
	RelatedMatch
	// Narrower places a source term under a target term (explicit broad match).
	Narrower
	// Broader is a hierarchy-derived edge copied from the source taxonomy.
	Broader
)

// Relations lists every relation in declaration order.
var Relations = []Relation{ExactMatch, CloseMatch, RelatedMatch, Narrower, Broader}

// String returns the wire name of the relation.
func (r Relation) String() string {
	switch r {
	case ExactMatch:
		return "exactMatch"
	case CloseMatch:
		return "closeMatch"
	case RelatedMatch:
		return "relatedMatch"
	case Narrower:
		return "broadMatch"
	case Broader:
		return "broader"
	default:
		return fmt.Sprintf("Relation(%d)", int(r))
	}
}

// ParseRelation parses a wire name produced by String.
func ParseRelation(s string) (Relation, error) {
	for _, r := range Relations {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown relation %q", s)
}

// Valid reports whether r is one of the declared relations.
func (r Relation) Valid() bool {
	return r >= ExactMatch && r <= Broader
}

// Explicit reports whether the relation is a user-placed correspondence
// rather than a hierarchy-derived edge.
func (r Relation) Explicit() bool {
	switch r {
	case ExactMatch, CloseMatch, RelatedMatch, Narrower:
		return true
	case Broader:
		return false
	default:
		return false
	}
}

// Propagates reports whether an edge of this relation held by an ancestor
// justifies its descendants as aligned.
func (r Relation) Propagates() bool {
	switch r {
	case ExactMatch, Narrower:
		return true
	case CloseMatch, RelatedMatch, Broader:
		return false
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Relation) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid relation %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Relation) UnmarshalText(b []byte) error {
	parsed, err := ParseRelation(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
