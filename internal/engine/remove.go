package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/term"
)

// RemoveTerm deletes one alignment edge and runs the unmark cascade from
// its source term. It returns after the store delete, the cascade and any
// scheduled orphan sweep have finished.
//
// Removing an edge that is not in the index is a no-op. A store failure
// leaves the index unchanged.
func (e *Engine) RemoveTerm(ctx context.Context, sourceID string, rel term.Relation, targetID string, inverted bool) error {
	return e.RemoveTermAsync(ctx, sourceID, rel, targetID, inverted).Wait(ctx)
}

// RemoveTermAsync submits a removal and returns its Future without waiting.
// Removals resolve in submission order.
func (e *Engine) RemoveTermAsync(ctx context.Context, sourceID string, rel term.Relation, targetID string, inverted bool) *Future {
	return e.submit(ctx, "RemoveTerm", func(ctx context.Context) error {
		return e.removeTerm(ctx, term.NormalizeID(sourceID), rel, term.NormalizeID(targetID), inverted)
	})
}

func (e *Engine) removeTerm(ctx context.Context, sourceID string, rel term.Relation, targetID string, inverted bool) error {
	sess, err := e.requireSession()
	if err != nil {
		return err
	}

	key := term.Key{SourceID: sourceID, TargetID: targetID, Relation: rel, Inverted: inverted}
	if !sess.index.Has(key) {
		slog.Debug("remove of unknown edge ignored", "alignment", sess.info.ID, "edge", key.String())
		return nil
	}

	edge := term.Edge{Source: term.Ref{ID: sourceID}, Target: term.Ref{ID: targetID}, Relation: rel, Inverted: inverted}
	del := queryir.DeleteData{Graph: sess.info.ID, Triples: e.cfg.Vocabulary.EdgeTriples(edge)}
	if _, err := e.store.RunUpdate(ctx, del); err != nil {
		return storeError(sess.info.ID, sourceID, "delete alignment", err)
	}

	sess.index.Release(sourceID, rel, targetID, inverted)
	edgesReleased.WithLabelValues(rel.String()).Inc()
	indexEdges.Set(float64(sess.index.Len()))

	if rel.Explicit() {
		if err := e.cascade(ctx, sess, sourceID); err != nil {
			return err
		}
	}

	sess.removals++
	if every := e.cfg.Limits.SweepEvery; every > 0 && sess.removals%every == 0 {
		if _, err := e.sweep(ctx, sess); err != nil {
			return fmt.Errorf("sweep after removal: %w", err)
		}
	}
	return nil
}

// cascade re-derives alignment for rootID and the non-aligned part of its
// subtree after a justification was removed. Children fan out on an
// errgroup bounded by CascadeParallelism; branches only write the tracker.
//
// The root always visits its children. Any other term visits its children
// only when it lost its last justification. Once the tree settles, the
// aligned descendant flag is re-derived for the root's ancestors and every
// child whose flag the cascade dropped.
func (e *Engine) cascade(ctx context.Context, sess *session, rootID string) error {
	limit := e.cfg.Limits.MaxCascadeDepth
	visited := newVisitSet()
	cleared := newVisitSet()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Limits.CascadeParallelism)

	var visit func(id string, depth int) error
	visit = func(id string, depth int) error {
		if depth > limit {
			return cascadeDepthError(sess.info.ID, id, depth, limit)
		}
		if !visited.First(id) {
			return nil
		}
		if err := gctx.Err(); err != nil {
			return err
		}

		m, err := e.reader.Multiplicity(gctx, sess.scope, id)
		if err != nil {
			return storeError(sess.info.ID, id, "multiplicity", err)
		}
		children, err := e.reader.NonAlignedDirectChildren(gctx, sess.scope, id)
		if err != nil {
			return storeError(sess.info.ID, id, "read children", err)
		}

		if m > 0 {
			sess.tracker.Set(id, true)
			sess.tracker.ClearDescendant(children...)
			for _, child := range children {
				cleared.First(child)
			}
			if depth > 0 {
				return nil
			}
		} else {
			sess.tracker.Unmark(id)
			cascadeUnmarked.Inc()
			slog.Debug("term unmarked", "alignment", sess.info.ID, "term", id, "depth", depth)
		}

		for _, child := range children {
			child := child
			branch := func() error { return visit(child, depth+1) }
			if !g.TryGo(branch) {
				// At the parallelism cap: continue on this goroutine.
				if err := branch(); err != nil {
					return err
				}
			}
		}
		return nil
	}

	rootErr := visit(rootID, 0)
	if err := g.Wait(); err != nil {
		return err
	}
	if rootErr != nil {
		return rootErr
	}

	anc, err := e.reader.Ancestors(ctx, []string{sess.scope.Source, sess.scope.Alignment}, rootID)
	if err != nil {
		return storeError(sess.info.ID, rootID, "read ancestors", err)
	}
	return e.rederiveDescendantFlags(ctx, sess, append(anc, cleared.Members()...))
}

// rederiveDescendantFlags recomputes the aligned descendant flag of ids:
// a term is flagged when it is an ancestor of a term that holds an explicit
// correspondence.
func (e *Engine) rederiveDescendantFlags(ctx context.Context, sess *session, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	sess.tracker.ClearDescendant(ids...)

	holders := make(map[string]bool)
	for _, edge := range sess.index.Edges() {
		if edge.Relation.Explicit() {
			holders[edge.Source.ID] = true
		}
	}
	for _, id := range sortedSet(holders) {
		if len(pending) == 0 {
			break
		}
		anc, err := e.reader.Ancestors(ctx, []string{sess.scope.Source, sess.scope.Alignment}, id)
		if err != nil {
			return storeError(sess.info.ID, id, "read ancestors", err)
		}
		for _, a := range anc {
			if pending[a] {
				sess.tracker.FlagDescendant(a)
				delete(pending, a)
			}
		}
	}
	return nil
}
