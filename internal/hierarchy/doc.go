// Package hierarchy answers structural questions about taxonomies and
// alignment graphs held in the quad store.
//
// Most reads are triple-pattern queries (see queryir). Walks of unbounded
// depth, multiplicity and ancestors, use recursive SQL with an explicit
// depth cap.
//
// A Scope names the three partitions a question is asked against: the
// alignment graph and the source and target taxonomy versions it connects.
// A target term is live when it is declared as a concept in Scope.Target.
package hierarchy
