package term

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Ref identifies a term in a taxonomy.
//
// Two Refs denote the same term iff their IDs are equal. Label is
// informational and may be empty.
type Ref struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// NewRef returns a Ref with a normalized ID.
func NewRef(id, label string) Ref {
	return Ref{ID: NormalizeID(id), Label: label}
}

// NormalizeID trims surrounding whitespace and applies NFC normalization.
func NormalizeID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// IsZero reports whether the ref has no ID.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

// String returns the label when present, otherwise the ID.
func (r Ref) String() string {
	if r.Label != "" {
		return r.Label
	}
	return r.ID
}
