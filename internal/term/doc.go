// Package term defines the value types shared by every alignment component:
// term references, the closed set of correspondence relations, and
// alignment edges.
//
// All types are immutable values. Identity is always by term ID; labels are
// carried for display only and never take part in equality or hashing.
//
// IDs are NFC-normalized on construction so that two spellings of the same
// IRI (composed vs decomposed code points) map to the same term.
package term
