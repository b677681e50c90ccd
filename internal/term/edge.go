package term

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEdge separates edge key hashes from any other hashed identity.
const DomainEdge = "termalign/edge/v1"

// Edge is a typed correspondence between a source term and a target term.
//
// An edge is identified by (Source.ID, Target.ID, Relation, Inverted).
// Inverted edges are persisted with subject and object swapped.
type Edge struct {
	Source   Ref      `json:"source"`
	Target   Ref      `json:"target"`
	Relation Relation `json:"relation"`
	Inverted bool     `json:"inverted,omitempty"`
}

// Key is the comparable identity of an edge.
type Key struct {
	SourceID string
	TargetID string
	Relation Relation
	Inverted bool
}

// Key returns the identity tuple of the edge.
func (e Edge) Key() Key {
	return Key{
		SourceID: e.Source.ID,
		TargetID: e.Target.ID,
		Relation: e.Relation,
		Inverted: e.Inverted,
	}
}

// Validate checks that both endpoints are set and the relation is known.
func (e Edge) Validate() error {
	if e.Source.IsZero() {
		return fmt.Errorf("edge source id is required")
	}
	if e.Target.IsZero() {
		return fmt.Errorf("edge target id is required")
	}
	if !e.Relation.Valid() {
		return fmt.Errorf("edge relation %d is not valid", int(e.Relation))
	}
	return nil
}

// Subject returns the triple subject under which the edge is stored.
func (e Edge) Subject() string {
	if e.Inverted {
		return e.Target.ID
	}
	return e.Source.ID
}

// Object returns the triple object under which the edge is stored.
func (e Edge) Object() string {
	if e.Inverted {
		return e.Source.ID
	}
	return e.Target.ID
}

// String renders the edge for logs.
func (k Key) String() string {
	dir := "->"
	if k.Inverted {
		dir = "<-"
	}
	return fmt.Sprintf("%s %s[%s] %s", k.SourceID, dir, k.Relation, k.TargetID)
}

// Hash returns a stable content address for the key.
// Format: SHA256(domain + 0x00 + source + 0x00 + target + 0x00 + relation + 0x00 + inverted)
func (k Key) Hash() string {
	h := sha256.New()
	h.Write([]byte(DomainEdge))
	for _, part := range []string{k.SourceID, k.TargetID, k.Relation.String(), fmt.Sprint(k.Inverted)} {
		h.Write([]byte{0x00})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
