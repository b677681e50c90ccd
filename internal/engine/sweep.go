package engine

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/term"
)

// SweepReport summarizes one orphan sweep.
type SweepReport struct {
	// Iterations is the number of rounds that deleted at least one edge.
	Iterations int `json:"iterations"`
	// Removed is the number of hierarchy edges deleted.
	Removed int `json:"removed"`
	// Unmarked lists the terms the sweep took out of the tracker, sorted.
	Unmarked []string `json:"unmarked,omitempty"`
}

// Sweep removes orphaned hierarchy edges from the loaded alignment until
// none remain.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	err := e.do(ctx, "Sweep", func(ctx context.Context) error {
		sess, err := e.requireSession()
		if err != nil {
			return err
		}
		report, err = e.sweep(ctx, sess)
		return err
	})
	return report, err
}

// sweep runs the orphan fixpoint. Each round deletes every candidate edge
// in one batch; a chain of N orphans takes N rounds. The number of rounds
// is bounded by the hierarchy edge count present at the start.
func (e *Engine) sweep(ctx context.Context, sess *session) (SweepReport, error) {
	var report SweepReport

	bound, err := e.reader.HierarchyEdgeCount(ctx, sess.info.ID)
	if err != nil {
		return report, storeError(sess.info.ID, "", "count hierarchy edges", err)
	}
	if limit := e.cfg.Limits.MaxSweepIterations; bound > limit {
		bound = limit
	}
	guard := newIterationGuard("orphan sweep", bound)
	unmarked := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		orphans, err := e.reader.OrphanCandidates(ctx, sess.scope)
		if err != nil {
			return report, storeError(sess.info.ID, "", "orphan candidates", err)
		}
		if len(orphans) == 0 {
			break
		}
		if err := guard.Check(); err != nil {
			return report, &RuntimeError{
				Code:      ErrCodeSweepNotConverged,
				Message:   "orphan sweep did not reach a fixpoint",
				Alignment: sess.info.ID,
				Err:       err,
			}
		}

		triples := make([]queryir.Ground, 0, len(orphans))
		for _, o := range orphans {
			triples = append(triples, queryir.Ground{Subject: o.Child, Predicate: e.cfg.Vocabulary.Broader, Object: o.Parent})
		}
		if _, err := e.store.RunUpdate(ctx, queryir.DeleteData{Graph: sess.info.ID, Triples: triples}); err != nil {
			return report, storeError(sess.info.ID, "", "delete orphans", err)
		}

		for _, o := range orphans {
			sess.tracker.Unmark(o.Parent)
			unmarked[o.Parent] = true
			if o.DeleteChild {
				sess.tracker.Unmark(o.Child)
				unmarked[o.Child] = true
			}
			if sess.index.Release(o.Child, term.Broader, o.Parent, false) {
				edgesReleased.WithLabelValues(term.Broader.String()).Inc()
			}
		}

		report.Iterations = guard.Current()
		report.Removed += len(orphans)
		slog.Debug("orphan sweep round",
			"alignment", sess.info.ID,
			"round", report.Iterations,
			"removed", len(orphans),
		)
	}

	ids := make([]string, 0, len(unmarked))
	for id := range unmarked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if err := e.refreshTracker(ctx, sess, ids); err != nil {
		return report, err
	}
	for _, id := range ids {
		if !sess.tracker.IsAligned(id) {
			report.Unmarked = append(report.Unmarked, id)
		}
	}

	indexEdges.Set(float64(sess.index.Len()))
	sweepIterations.Observe(float64(report.Iterations))
	sweepRemoved.Add(float64(report.Removed))
	if report.Removed > 0 {
		slog.Info("orphan sweep converged",
			"alignment", sess.info.ID,
			"iterations", report.Iterations,
			"removed", report.Removed,
			"unmarked", len(report.Unmarked),
		)
	}
	return report, nil
}

// refreshTracker sets the tracker entry of every id from its store
// multiplicity. Lookups fan out up to CascadeParallelism.
func (e *Engine) refreshTracker(ctx context.Context, sess *session, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Limits.CascadeParallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			m, err := e.reader.Multiplicity(gctx, sess.scope, id)
			if err != nil {
				return storeError(sess.info.ID, id, "multiplicity", err)
			}
			sess.tracker.Set(id, m > 0)
			return nil
		})
	}
	return g.Wait()
}
