package engine

import (
	"fmt"
	"sync"
)

// iterationGuard counts loop iterations and enforces a limit.
//
// The orphan sweep creates one per run. A fixpoint that removes at least one
// edge per iteration cannot need more iterations than there were edges, so
// exceeding the guard means the store is not applying deletes.
type iterationGuard struct {
	op      string
	limit   int
	current int
}

func newIterationGuard(op string, limit int) *iterationGuard {
	return &iterationGuard{op: op, limit: limit}
}

// Check increments the counter and returns IterationLimitError once the
// limit is passed.
func (g *iterationGuard) Check() error {
	g.current++
	if g.current > g.limit {
		return &IterationLimitError{Op: g.op, Iterations: g.current, Limit: g.limit}
	}
	return nil
}

// Current returns the number of iterations checked so far.
func (g *iterationGuard) Current() int {
	return g.current
}

// IterationLimitError is returned when a bounded loop exceeds its limit.
type IterationLimitError struct {
	Op         string
	Iterations int
	Limit      int
}

// Error implements the error interface.
func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("%s exceeded max iterations: %d > %d", e.Op, e.Iterations, e.Limit)
}

// visitSet records the terms a cascade has already processed, so a term
// reachable through several parents is evaluated once.
//
// Thread-safe: cascade branches call First concurrently.
type visitSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newVisitSet() *visitSet {
	return &visitSet{seen: make(map[string]bool)}
}

// First records id and reports whether this was its first visit.
func (v *visitSet) First(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seen[id] {
		return false
	}
	v.seen[id] = true
	return true
}

// Members returns the visited terms in sorted order.
func (v *visitSet) Members() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return sortedSet(v.seen)
}
