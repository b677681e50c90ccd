package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/term"
)

// hierarchyLink is one (child broader parent) pair.
type hierarchyLink struct {
	child  string
	parent string
}

// AddAlignment records a correspondence from a source term to a target
// term and marks the source aligned. A Narrower edge also copies the
// source term's subtree into the alignment graph.
//
// Returns false without writing when the edge is already present.
func (e *Engine) AddAlignment(ctx context.Context, source, target term.Ref, rel term.Relation, inverted bool) (bool, error) {
	var added bool
	err := e.do(ctx, "AddAlignment", func(ctx context.Context) error {
		var err error
		added, err = e.addAlignment(ctx, source, target, rel, inverted)
		return err
	})
	return added, err
}

func (e *Engine) addAlignment(ctx context.Context, source, target term.Ref, rel term.Relation, inverted bool) (bool, error) {
	sess, err := e.requireSession()
	if err != nil {
		return false, err
	}

	edge := term.Edge{
		Source:   term.NewRef(source.ID, source.Label),
		Target:   term.NewRef(target.ID, target.Label),
		Relation: rel,
		Inverted: inverted,
	}
	if err := edge.Validate(); err != nil {
		return false, &RuntimeError{Code: ErrCodeInvalidEdge, Message: err.Error(), Alignment: sess.info.ID, Term: edge.Source.ID}
	}
	if !rel.Explicit() {
		return false, &RuntimeError{Code: ErrCodeInvalidEdge, Message: fmt.Sprintf("%s edges are derived from the source taxonomy", rel), Alignment: sess.info.ID, Term: edge.Source.ID}
	}
	if sess.index.Has(edge.Key()) {
		return false, nil
	}

	if err := e.requireConcept(ctx, sess, sess.scope.Source, edge.Source.ID); err != nil {
		return false, err
	}
	if err := e.requireConcept(ctx, sess, sess.scope.Target, edge.Target.ID); err != nil {
		return false, err
	}

	vocab := e.cfg.Vocabulary
	triples := vocab.EdgeTriples(edge)

	var subtree []hierarchyLink
	if rel == term.Narrower {
		subtree, err = e.descendants(ctx, []string{sess.scope.Source}, sess.info.ID, edge.Source.ID)
		if err != nil {
			return false, err
		}
		for _, link := range subtree {
			triples = append(triples, queryir.Ground{Subject: link.child, Predicate: vocab.Broader, Object: link.parent})
		}
	}

	// Persist before touching the index so a failed write leaves no trace.
	if _, err := e.store.RunUpdate(ctx, queryir.InsertData{Graph: sess.info.ID, Triples: triples}); err != nil {
		return false, storeError(sess.info.ID, edge.Source.ID, "insert alignment", err)
	}

	sess.index.Add(edge)
	edgesAdded.WithLabelValues(rel.String()).Inc()
	for _, link := range subtree {
		if sess.index.Add(term.Edge{Source: term.Ref{ID: link.child}, Target: term.Ref{ID: link.parent}, Relation: term.Broader}) {
			edgesAdded.WithLabelValues(term.Broader.String()).Inc()
		}
	}
	indexEdges.Set(float64(sess.index.Len()))

	sess.tracker.Mark(edge.Source.ID)
	if rel.Propagates() {
		desc := subtree
		if desc == nil {
			desc, err = e.descendants(ctx, []string{sess.scope.Source, sess.scope.Alignment}, sess.info.ID, edge.Source.ID)
			if err != nil {
				return true, err
			}
		}
		for _, link := range desc {
			sess.tracker.Mark(link.child)
		}
	}
	if err := e.flagAncestors(ctx, sess, edge.Source.ID); err != nil {
		return true, err
	}

	slog.Debug("alignment added",
		"alignment", sess.info.ID,
		"edge", edge.Key().String(),
		"copied", len(subtree),
	)
	return true, nil
}

// requireConcept fails with INVALID_EDGE when termID is not a concept of graph.
func (e *Engine) requireConcept(ctx context.Context, sess *session, graph, termID string) error {
	ok, err := e.reader.Exists(ctx, graph, termID)
	if err != nil {
		return storeError(sess.info.ID, termID, "check term", err)
	}
	if !ok {
		return &RuntimeError{
			Code:      ErrCodeInvalidEdge,
			Message:   fmt.Sprintf("term is not a concept of %s", graph),
			Alignment: sess.info.ID,
			Term:      termID,
		}
	}
	return nil
}

// descendants walks the subtree under root breadth first across graphs and
// returns every (child broader parent) link it crosses. Each child is
// reported once.
func (e *Engine) descendants(ctx context.Context, graphs []string, alignment, root string) ([]hierarchyLink, error) {
	limit := e.cfg.Limits.MaxCascadeDepth
	seen := map[string]bool{root: true}
	frontier := []string{root}
	var out []hierarchyLink

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= limit {
			return nil, cascadeDepthError(alignment, root, depth+1, limit)
		}
		var next []string
		for _, parent := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			children, err := e.reader.DirectChildren(ctx, graphs, parent)
			if err != nil {
				return nil, storeError(alignment, parent, "read children", err)
			}
			for _, child := range children {
				if seen[child] {
					continue
				}
				seen[child] = true
				out = append(out, hierarchyLink{child: child, parent: parent})
				next = append(next, child)
			}
		}
		frontier = next
	}
	return out, nil
}
