package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/termalign/internal/drift"
	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/store"
	"github.com/roach88/termalign/internal/term"
)

// Side selects one taxonomy of an alignment.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// ParseSide parses "source" or "target".
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideSource, SideTarget:
		return Side(s), nil
	default:
		return "", fmt.Errorf("unknown side %q (want source or target)", s)
	}
}

// TermStatus is the drift result of one aligned term.
type TermStatus struct {
	Side   Side         `json:"side"`
	Term   string       `json:"term"`
	Result drift.Result `json:"result"`
}

// UpgradeReport summarizes an alignment upgrade.
type UpgradeReport struct {
	// Alignment is the registry row of the new alignment graph.
	Alignment store.GraphInfo `json:"alignment"`
	// Copied is the number of triples copied from the old alignment.
	Copied int64 `json:"copied"`
	// Pruned lists the edges deleted because an endpoint was removed.
	Pruned []term.Edge `json:"pruned,omitempty"`
	// Stale lists aligned terms whose ancestry changed. They are kept.
	Stale []TermStatus `json:"stale,omitempty"`
	// Sweep is the orphan sweep run on the new alignment.
	Sweep SweepReport `json:"sweep"`
}

// CreateAlignment registers an empty alignment graph between two taxonomy
// graphs.
func (e *Engine) CreateAlignment(ctx context.Context, name, sourceGraph, targetGraph string) (store.GraphInfo, error) {
	var info store.GraphInfo
	err := e.do(ctx, "CreateAlignment", func(ctx context.Context) error {
		for _, g := range []string{sourceGraph, targetGraph} {
			if err := e.requireTaxonomy(ctx, g); err != nil {
				return err
			}
		}
		info = store.GraphInfo{
			ID:          e.ids.Generate(),
			Kind:        store.KindAlignment,
			Name:        name,
			Version:     1,
			SourceGraph: sourceGraph,
			TargetGraph: targetGraph,
		}
		if err := e.store.RegisterGraph(ctx, info); err != nil {
			return storeError(info.ID, "", "register alignment", err)
		}
		registered, err := e.store.Graph(ctx, info.ID)
		if err != nil {
			return storeError(info.ID, "", "read alignment registry", err)
		}
		info = registered
		slog.Info("alignment created", "alignment", info.ID, "name", name, "source", sourceGraph, "target", targetGraph)
		return nil
	})
	return info, err
}

func (e *Engine) requireTaxonomy(ctx context.Context, graph string) error {
	info, err := e.store.Graph(ctx, graph)
	if err != nil {
		return fmt.Errorf("taxonomy %s: %w", graph, err)
	}
	if info.Kind != store.KindTaxonomy {
		return fmt.Errorf("graph %s is a %s, not a taxonomy", graph, info.Kind)
	}
	return nil
}

// CheckSynchronized compares termID between the session's taxonomy on side
// and the latest registered version of that taxonomy. A term missing from
// the latest version yields a "term removed" result, not an error.
func (e *Engine) CheckSynchronized(ctx context.Context, side Side, termID string) (drift.Result, error) {
	var res drift.Result
	err := e.do(ctx, "CheckSynchronized", func(ctx context.Context) error {
		sess, err := e.requireSession()
		if err != nil {
			return err
		}
		oldGraph, newGraph, err := e.latestPair(ctx, sess, side)
		if err != nil {
			return err
		}
		res, err = e.compare(ctx, sess, oldGraph, newGraph, term.NormalizeID(termID))
		return err
	})
	return res, err
}

// CheckAll runs CheckSynchronized for every term the session's edges touch,
// on both sides. Results are ordered by side, then term.
func (e *Engine) CheckAll(ctx context.Context) ([]TermStatus, error) {
	var out []TermStatus
	err := e.do(ctx, "CheckAll", func(ctx context.Context) error {
		sess, err := e.requireSession()
		if err != nil {
			return err
		}
		sources, targets := sessionTerms(sess)
		for _, side := range []Side{SideSource, SideTarget} {
			oldGraph, newGraph, err := e.latestPair(ctx, sess, side)
			if err != nil {
				return err
			}
			ids := sources
			if side == SideTarget {
				ids = targets
			}
			for _, id := range ids {
				res, err := e.compare(ctx, sess, oldGraph, newGraph, id)
				if err != nil {
					return err
				}
				out = append(out, TermStatus{Side: side, Term: id, Result: res})
			}
		}
		return nil
	})
	return out, err
}

// latestPair returns the session's graph on side and the newest version of
// the same taxonomy.
func (e *Engine) latestPair(ctx context.Context, sess *session, side Side) (string, string, error) {
	graph := sess.scope.Source
	if side == SideTarget {
		graph = sess.scope.Target
	}
	info, err := e.store.Graph(ctx, graph)
	if err != nil {
		return "", "", storeError(sess.info.ID, "", "read taxonomy registry", err)
	}
	latest, err := e.store.LatestVersion(ctx, info.Name)
	if err != nil {
		return "", "", storeError(sess.info.ID, "", "latest taxonomy version", err)
	}
	return graph, latest.ID, nil
}

func (e *Engine) compare(ctx context.Context, sess *session, oldGraph, newGraph, termID string) (drift.Result, error) {
	if oldGraph == newGraph {
		return drift.InSync, nil
	}
	res, err := e.detector.CompareParents(ctx, oldGraph, newGraph, termID)
	if err != nil {
		if drift.IsDepthExceeded(err) {
			return drift.Result{}, err
		}
		return drift.Result{}, storeError(sess.info.ID, termID, "compare parents", err)
	}
	return res, nil
}

// sessionTerms returns the sorted source and target term ids of the
// session's edges. Both endpoints of a hierarchy edge are source terms.
func sessionTerms(sess *session) ([]string, []string) {
	src := make(map[string]bool)
	tgt := make(map[string]bool)
	for _, edge := range sess.index.Edges() {
		src[edge.Source.ID] = true
		if edge.Relation == term.Broader {
			src[edge.Target.ID] = true
		} else {
			tgt[edge.Target.ID] = true
		}
	}
	return sortedSet(src), sortedSet(tgt)
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// UpgradeAlignment duplicates the loaded alignment against newer taxonomy
// versions. Edges whose endpoint was removed are pruned from the copy,
// terms whose ancestry changed are reported as stale, the new alignment is
// loaded as the session and an orphan sweep runs on it.
//
// oldID names the alignment to upgrade; when it differs from the loaded
// one it is loaded first under the current owner. An empty oldID upgrades
// the loaded alignment. An empty newSource or newTarget selects the latest registered version of
// that side's taxonomy. The old alignment graph is left untouched; on
// failure the new graph is dropped.
func (e *Engine) UpgradeAlignment(ctx context.Context, oldID, newSource, newTarget string) (UpgradeReport, error) {
	var report UpgradeReport
	err := e.do(ctx, "UpgradeAlignment", func(ctx context.Context) error {
		var err error
		report, err = e.upgradeAlignment(ctx, oldID, newSource, newTarget)
		return err
	})
	return report, err
}

func (e *Engine) upgradeAlignment(ctx context.Context, oldID, newSource, newTarget string) (UpgradeReport, error) {
	var report UpgradeReport
	sess, err := e.requireSession()
	if err != nil {
		return report, err
	}
	if oldID != "" && oldID != sess.info.ID {
		if err := e.loadSession(ctx, oldID, sess.owner); err != nil {
			return report, err
		}
		sess = e.sess
	}
	old := sess.info

	if newSource == "" {
		if _, newSource, err = e.latestPair(ctx, sess, SideSource); err != nil {
			return report, err
		}
	}
	if newTarget == "" {
		if _, newTarget, err = e.latestPair(ctx, sess, SideTarget); err != nil {
			return report, err
		}
	}
	for _, g := range []string{newSource, newTarget} {
		if err := e.requireTaxonomy(ctx, g); err != nil {
			return report, err
		}
	}

	newInfo := store.GraphInfo{
		ID:          e.ids.Generate(),
		Kind:        store.KindAlignment,
		Name:        old.Name,
		Version:     old.Version + 1,
		SourceGraph: newSource,
		TargetGraph: newTarget,
	}
	if err := e.store.RegisterGraph(ctx, newInfo); err != nil {
		return report, storeError(newInfo.ID, "", "register alignment", err)
	}

	report, err = e.populateUpgrade(ctx, sess, newInfo)
	if err != nil {
		if e.sess != sess {
			err = errors.Join(err, e.restoreSession(ctx, sess))
		}
		if dropErr := e.store.DropGraph(ctx, newInfo.ID); dropErr != nil {
			err = errors.Join(err, fmt.Errorf("drop %s: %w", newInfo.ID, dropErr))
		}
		return UpgradeReport{}, err
	}

	slog.Info("alignment upgraded",
		"from", old.ID,
		"to", newInfo.ID,
		"copied", report.Copied,
		"pruned", len(report.Pruned),
		"stale", len(report.Stale),
	)
	return report, nil
}

// populateUpgrade fills the registered new alignment graph from the loaded
// session and switches the session to it.
func (e *Engine) populateUpgrade(ctx context.Context, sess *session, newInfo store.GraphInfo) (UpgradeReport, error) {
	var report UpgradeReport
	old := sess.info

	copied, err := e.store.CopyGraph(ctx, old.ID, newInfo.ID)
	if err != nil {
		return report, storeError(newInfo.ID, "", "copy alignment", err)
	}
	report.Copied = copied

	removed := map[Side]map[string]bool{SideSource: {}, SideTarget: {}}
	sources, targets := sessionTerms(sess)
	pairs := []struct {
		side     Side
		oldGraph string
		newGraph string
		ids      []string
	}{
		{SideSource, old.SourceGraph, newInfo.SourceGraph, sources},
		{SideTarget, old.TargetGraph, newInfo.TargetGraph, targets},
	}
	for _, p := range pairs {
		for _, id := range p.ids {
			res, err := e.compare(ctx, sess, p.oldGraph, p.newGraph, id)
			if err != nil {
				return report, err
			}
			switch {
			case res.InSync:
			case res.Removed():
				removed[p.side][id] = true
			default:
				report.Stale = append(report.Stale, TermStatus{Side: p.side, Term: id, Result: res})
			}
		}
	}

	var triples []queryir.Ground
	for _, edge := range sess.index.Edges() {
		targetSide := SideTarget
		if edge.Relation == term.Broader {
			targetSide = SideSource
		}
		if !removed[SideSource][edge.Source.ID] && !removed[targetSide][edge.Target.ID] {
			continue
		}
		report.Pruned = append(report.Pruned, edge)
		triples = append(triples, e.cfg.Vocabulary.EdgeTriples(edge)...)
	}
	if len(triples) > 0 {
		if _, err := e.store.RunUpdate(ctx, queryir.DeleteData{Graph: newInfo.ID, Triples: triples}); err != nil {
			return report, storeError(newInfo.ID, "", "prune removed terms", err)
		}
	}

	if err := e.loadSession(ctx, newInfo.ID, sess.owner); err != nil {
		return report, err
	}
	report.Sweep, err = e.sweep(ctx, e.sess)
	if err != nil {
		return report, err
	}

	info, err := e.store.Graph(ctx, newInfo.ID)
	if err != nil {
		return report, storeError(newInfo.ID, "", "read alignment registry", err)
	}
	report.Alignment = info
	return report, nil
}

// restoreSession reinstates prev after a failed switch to another alignment.
func (e *Engine) restoreSession(ctx context.Context, prev *session) error {
	if cur := e.sess; cur != nil {
		e.releaseLock(ctx, cur.info.ID, cur.owner)
	}
	e.sess = nil
	if err := e.locker.Acquire(ctx, prev.info.ID, prev.owner); err != nil {
		return fmt.Errorf("reacquire %s: %w", prev.info.ID, err)
	}
	e.sess = prev
	indexEdges.Set(float64(prev.index.Len()))
	return nil
}
