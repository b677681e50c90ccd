// Package drift decides whether an aligned term is still structurally valid
// after its taxonomy is replaced by a newer version.
//
// Two versions are compared by term id only. A term is in sync when it
// still exists and its parent chain, compared one hop at a time up to the
// roots, has the same ids in both versions.
package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/termalign/internal/term"
)

// Reason explains an out-of-sync result.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonTermRemoved    Reason = "term removed"
	ReasonParentsChanged Reason = "parents changed"
)

// Result is the outcome of a comparison.
//
// At is the term where the divergence was found: the checked term itself
// or one of its ancestors.
type Result struct {
	InSync bool   `json:"in_sync"`
	Reason Reason `json:"reason,omitempty"`
	At     string `json:"at,omitempty"`
}

// InSync is the result for a term whose ancestry is unchanged.
var InSync = Result{InSync: true}

// OutOfSync builds a divergence result.
func OutOfSync(reason Reason, at string) Result {
	return Result{Reason: reason, At: at}
}

// Removed reports whether the checked term no longer exists.
func (r Result) Removed() bool {
	return r.Reason == ReasonTermRemoved
}

// ParentReader is the hierarchy access the detector needs.
type ParentReader interface {
	DirectParents(ctx context.Context, graphs []string, termID string) ([]term.Ref, error)
	Exists(ctx context.Context, graph, termID string) (bool, error)
}

// DepthExceededError is returned when an ancestor walk goes deeper than
// the configured cap. It indicates corrupt hierarchy data.
type DepthExceededError struct {
	Term  string
	Depth int
	Limit int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("drift check of %s exceeded max depth: %d > %d", e.Term, e.Depth, e.Limit)
}

// IsDepthExceeded returns true if err is a DepthExceededError.
// Uses errors.As to handle wrapped errors.
func IsDepthExceeded(err error) bool {
	var de *DepthExceededError
	return errors.As(err, &de)
}

// Detector compares parent chains across taxonomy versions.
type Detector struct {
	reader   ParentReader
	maxDepth int
}

// NewDetector creates a detector. maxDepth caps the ancestor walk.
func NewDetector(reader ParentReader, maxDepth int) *Detector {
	return &Detector{reader: reader, maxDepth: maxDepth}
}

// CompareParents compares termID between the old and new taxonomy graphs.
//
// Store errors are returned as errors. A term missing from the new graph
// is a result, not an error.
func (d *Detector) CompareParents(ctx context.Context, oldGraph, newGraph, termID string) (Result, error) {
	exists, err := d.reader.Exists(ctx, newGraph, termID)
	if err != nil {
		return Result{}, fmt.Errorf("check %s: %w", termID, err)
	}
	if !exists {
		return OutOfSync(ReasonTermRemoved, termID), nil
	}

	w := &walk{
		d:        d,
		oldGraph: oldGraph,
		newGraph: newGraph,
		done:     make(map[string]Result),
		onPath:   make(map[string]bool),
	}
	res, err := w.compare(ctx, termID, 0)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("drift check",
		"term", termID,
		"old", oldGraph,
		"new", newGraph,
		"in_sync", res.InSync,
		"reason", string(res.Reason),
		"visited", len(w.done))
	return res, nil
}

// walk holds the state of one comparison. done memoizes ancestors already
// compared through another path; onPath breaks cycles in corrupt data.
type walk struct {
	d        *Detector
	oldGraph string
	newGraph string
	done     map[string]Result
	onPath   map[string]bool
}

func (w *walk) compare(ctx context.Context, termID string, depth int) (Result, error) {
	if res, ok := w.done[termID]; ok {
		return res, nil
	}
	if w.onPath[termID] {
		return InSync, nil
	}
	if depth > w.d.maxDepth {
		return Result{}, &DepthExceededError{Term: termID, Depth: depth, Limit: w.d.maxDepth}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	w.onPath[termID] = true
	defer delete(w.onPath, termID)

	res, err := w.compareParents(ctx, termID, depth)
	if err != nil {
		return Result{}, err
	}
	w.done[termID] = res
	return res, nil
}

func (w *walk) compareParents(ctx context.Context, termID string, depth int) (Result, error) {
	oldParents, err := w.d.reader.DirectParents(ctx, []string{w.oldGraph}, termID)
	if err != nil {
		return Result{}, fmt.Errorf("parents of %s in %s: %w", termID, w.oldGraph, err)
	}
	newParents, err := w.d.reader.DirectParents(ctx, []string{w.newGraph}, termID)
	if err != nil {
		return Result{}, fmt.Errorf("parents of %s in %s: %w", termID, w.newGraph, err)
	}

	if len(oldParents) == 0 && len(newParents) == 0 {
		return InSync, nil
	}
	if len(oldParents) == 0 || len(newParents) == 0 || len(oldParents) != len(newParents) {
		return OutOfSync(ReasonParentsChanged, termID), nil
	}

	newIDs := make(map[string]bool, len(newParents))
	for _, p := range newParents {
		newIDs[p.ID] = true
	}
	for _, p := range oldParents {
		if !newIDs[p.ID] {
			return OutOfSync(ReasonParentsChanged, termID), nil
		}
	}

	for _, p := range oldParents {
		res, err := w.compare(ctx, p.ID, depth+1)
		if err != nil {
			return Result{}, err
		}
		if !res.InSync {
			return res, nil
		}
	}
	return InSync, nil
}
