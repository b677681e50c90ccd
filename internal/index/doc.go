// Package index holds the in-memory view of one alignment session.
//
// Index keeps every correspondence edge under two views, keyed by source
// term ID and by target term ID. Both views are updated by the same call,
// so an edge is either present in both or in neither. Duplicate inserts
// are no-ops and a key whose edge list becomes empty is deleted.
//
// Index is NOT safe for concurrent use. It is owned by the engine's
// single-writer loop, which is the only caller of its mutators.
//
// Tracker caches whether a source term is currently aligned. It is safe
// for concurrent use because cascade branches update it while fanning out.
// It is a cache: the store's multiplicity count is authoritative.
package index
