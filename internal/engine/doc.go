// Package engine implements the alignment session engine.
//
// The engine owns the in-memory alignment index of one session and keeps it
// consistent with the alignment graph in the store while terms are added,
// removed, swept and upgraded to newer taxonomy versions.
//
// ARCHITECTURE:
//
// Single-Writer Actor:
// Every public operation is submitted as a command to a FIFO queue and
// executed by the one goroutine running Engine.Run. Callers wait on a
// Future. This ensures:
//   - The index is mutated by exactly one goroutine
//   - Operations apply in submission order
//   - Observers never see a removal before its cascade has joined
//
// Removal Flow:
//  1. The edge is deleted from the store; on failure the index is untouched
//  2. The edge is released from both index views
//  3. The unmark cascade walks non-aligned children, fanning store reads out
//     with errgroup; branches write only the tracker
//  4. Every SweepEvery removals the orphan sweep runs to a fixpoint
//
// Every loop is bounded: the cascade by MaxCascadeDepth, the sweep by the
// number of hierarchy edges (and MaxSweepIterations), drift checks by
// MaxDriftDepth. Exceeding a bound is a RuntimeError, never a silent stop.
package engine
