package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/roach88/termalign/internal/config"
	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/store"
	"github.com/roach88/termalign/internal/term"
)

// Scope names the partitions of one alignment.
type Scope struct {
	Alignment string
	Source    string
	Target    string
}

// Orphan is a hierarchy edge (Child broader Parent) in an alignment graph
// whose parent has lost every justification.
//
// DeleteChild is set when Child has no other parent, no children and no
// correspondence of its own, so nothing keeps it once the edge is gone.
type Orphan struct {
	Child       string
	Parent      string
	DeleteChild bool
}

// Reader implements hierarchy reads over a store.
type Reader struct {
	store    *store.Store
	vocab    config.Vocabulary
	maxDepth int
}

// New creates a reader. maxDepth caps recursive ancestor walks.
func New(s *store.Store, vocab config.Vocabulary, maxDepth int) *Reader {
	if maxDepth <= 0 {
		maxDepth = config.Default().Limits.MaxCascadeDepth
	}
	return &Reader{store: s, vocab: vocab, maxDepth: maxDepth}
}

func (r *Reader) column(ctx context.Context, q queryir.Select, params map[string]string, col string) ([]string, error) {
	rows, err := r.store.RunPatternQuery(ctx, q, params)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row[col])
	}
	return out, nil
}

// DirectParents returns the one-hop parents of termID across graphs, with
// labels resolved from the same graphs, ordered by id.
func (r *Reader) DirectParents(ctx context.Context, graphs []string, termID string) ([]term.Ref, error) {
	q := queryir.Select{
		Partitions: graphs,
		Patterns: []queryir.Triple{{
			Subject:   queryir.Param("term"),
			Predicate: queryir.Const(r.vocab.Broader),
			Object:    queryir.Var("parent"),
		}},
		Project: []queryir.Var{"parent"},
	}
	ids, err := r.column(ctx, q, map[string]string{"term": termID}, "parent")
	if err != nil {
		return nil, fmt.Errorf("direct parents of %s: %w", termID, err)
	}
	labels, err := r.Labels(ctx, graphs, ids)
	if err != nil {
		return nil, err
	}
	out := make([]term.Ref, 0, len(ids))
	for _, id := range ids {
		out = append(out, term.NewRef(id, labels[id]))
	}
	return out, nil
}

// DirectChildren returns the one-hop children of termID across graphs.
func (r *Reader) DirectChildren(ctx context.Context, graphs []string, termID string) ([]string, error) {
	q := queryir.Select{
		Partitions: graphs,
		Patterns: []queryir.Triple{{
			Subject:   queryir.Var("child"),
			Predicate: queryir.Const(r.vocab.Broader),
			Object:    queryir.Param("term"),
		}},
		Project: []queryir.Var{"child"},
	}
	ids, err := r.column(ctx, q, map[string]string{"term": termID}, "child")
	if err != nil {
		return nil, fmt.Errorf("direct children of %s: %w", termID, err)
	}
	return ids, nil
}

// Exists reports whether termID is declared as a concept in graph.
func (r *Reader) Exists(ctx context.Context, graph, termID string) (bool, error) {
	q := queryir.Select{
		Partitions: []string{graph},
		Patterns: []queryir.Triple{{
			Subject:   queryir.Var("t"),
			Predicate: queryir.Const(r.vocab.Type),
			Object:    queryir.Const(r.vocab.Concept),
		}},
		Filter:  queryir.Bound{Var: "t", Param: "term"},
		Project: []queryir.Var{"t"},
	}
	rows, err := r.store.RunPatternQuery(ctx, q, map[string]string{"term": termID})
	if err != nil {
		return false, fmt.Errorf("exists %s in %s: %w", termID, graph, err)
	}
	return len(rows) > 0, nil
}

// Labels resolves preferred labels for ids across graphs. IDs without a
// label are absent from the result. When graphs disagree the lowest label
// in binary order wins.
func (r *Reader) Labels(ctx context.Context, graphs []string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := queryir.Select{
		Partitions: graphs,
		Patterns: []queryir.Triple{{
			Subject:   queryir.Var("t"),
			Predicate: queryir.Const(r.vocab.PrefLabel),
			Object:    queryir.Var("label"),
		}},
		Filter:  queryir.In{Var: "t", Values: ids},
		Project: []queryir.Var{"t", "label"},
	}
	rows, err := r.store.RunPatternQuery(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	for _, row := range rows {
		if _, ok := out[row["t"]]; !ok {
			out[row["t"]] = row["label"]
		}
	}
	return out, nil
}

// Label resolves the preferred label of one term, or "" when it has none.
func (r *Reader) Label(ctx context.Context, graphs []string, termID string) (string, error) {
	labels, err := r.Labels(ctx, graphs, []string{termID})
	if err != nil {
		return "", err
	}
	return labels[termID], nil
}

// correspondenceFilter holds when v has no explicit correspondence in the
// alignment graph, in either direction. When liveTarget is set the far end
// must also be a concept of that graph to count.
func (r *Reader) correspondenceFilter(alignment string, v queryir.Var, liveTarget string) queryir.Predicate {
	explicit := r.vocab.ExplicitIRIs()
	out := []queryir.Triple{{Subject: v, Predicate: queryir.Var("cp_out"), Object: queryir.Var("cx_out")}}
	in := []queryir.Triple{{Subject: queryir.Var("cx_in"), Predicate: queryir.Var("cp_in"), Object: v}}
	if liveTarget != "" {
		out = append(out, queryir.Triple{
			Graphs:    []string{liveTarget},
			Subject:   queryir.Var("cx_out"),
			Predicate: queryir.Const(r.vocab.Type),
			Object:    queryir.Const(r.vocab.Concept),
		})
		in = append(in, queryir.Triple{
			Graphs:    []string{liveTarget},
			Subject:   queryir.Var("cx_in"),
			Predicate: queryir.Const(r.vocab.Type),
			Object:    queryir.Const(r.vocab.Concept),
		})
	}
	return queryir.And{Predicates: []queryir.Predicate{
		queryir.NotExists{
			Partitions: []string{alignment},
			Patterns:   out,
			Filter:     queryir.In{Var: "cp_out", Values: explicit},
		},
		queryir.NotExists{
			Partitions: []string{alignment},
			Patterns:   in,
			Filter:     queryir.In{Var: "cp_in", Values: explicit},
		},
	}}
}

// NonAlignedDirectChildren returns the children of termID, in the source
// taxonomy or in copied subtrees of the alignment graph, that hold no
// explicit correspondence to a live target term.
func (r *Reader) NonAlignedDirectChildren(ctx context.Context, sc Scope, termID string) ([]string, error) {
	q := queryir.Select{
		Partitions: []string{sc.Source, sc.Alignment},
		Patterns: []queryir.Triple{{
			Subject:   queryir.Var("child"),
			Predicate: queryir.Const(r.vocab.Broader),
			Object:    queryir.Param("term"),
		}},
		Filter:  r.correspondenceFilter(sc.Alignment, "child", sc.Target),
		Project: []queryir.Var{"child"},
	}
	ids, err := r.column(ctx, q, map[string]string{"term": termID}, "child")
	if err != nil {
		return nil, fmt.Errorf("non-aligned children of %s: %w", termID, err)
	}
	return ids, nil
}

// OrphanCandidates returns every hierarchy edge of the alignment graph whose
// parent has no correspondence and no parent of its own there. Results are
// ordered by child, then parent.
func (r *Reader) OrphanCandidates(ctx context.Context, sc Scope) ([]Orphan, error) {
	q := queryir.Select{
		Partitions: []string{sc.Alignment},
		Patterns: []queryir.Triple{{
			Subject:   queryir.Var("child"),
			Predicate: queryir.Const(r.vocab.Broader),
			Object:    queryir.Var("parent"),
		}},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			r.correspondenceFilter(sc.Alignment, "parent", ""),
			queryir.NotExists{
				Partitions: []string{sc.Alignment},
				Patterns: []queryir.Triple{{
					Subject:   queryir.Var("parent"),
					Predicate: queryir.Const(r.vocab.Broader),
					Object:    queryir.Var("grandparent"),
				}},
			},
		}},
		Project: []queryir.Var{"child", "parent"},
	}
	rows, err := r.store.RunPatternQuery(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("orphan candidates: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	children := make([]string, 0, len(rows))
	for _, row := range rows {
		children = append(children, row["child"])
	}
	prunable, err := r.prunableChildren(ctx, sc, children)
	if err != nil {
		return nil, err
	}

	out := make([]Orphan, 0, len(rows))
	for _, row := range rows {
		out = append(out, Orphan{
			Child:       row["child"],
			Parent:      row["parent"],
			DeleteChild: prunable[row["child"]],
		})
	}
	return out, nil
}

// prunableChildren returns the subset of children that have exactly one
// parent, no children and no correspondence in the alignment graph.
func (r *Reader) prunableChildren(ctx context.Context, sc Scope, children []string) (map[string]bool, error) {
	q := queryir.Select{
		Partitions: []string{sc.Alignment},
		Patterns: []queryir.Triple{{
			Subject:   queryir.Var("child"),
			Predicate: queryir.Const(r.vocab.Broader),
			Object:    queryir.Var("parent"),
		}},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.In{Var: "child", Values: children},
			r.correspondenceFilter(sc.Alignment, "child", ""),
			queryir.NotExists{
				Partitions: []string{sc.Alignment},
				Patterns: []queryir.Triple{{
					Subject:   queryir.Var("grandchild"),
					Predicate: queryir.Const(r.vocab.Broader),
					Object:    queryir.Var("child"),
				}},
			},
		}},
		Project: []queryir.Var{"child", "parent"},
	}
	rows, err := r.store.RunPatternQuery(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("prunable children: %w", err)
	}
	parents := make(map[string]int, len(rows))
	for _, row := range rows {
		parents[row["child"]]++
	}
	out := make(map[string]bool, len(parents))
	for child, n := range parents {
		out[child] = n == 1
	}
	return out, nil
}

// HierarchyEdgeCount returns the number of hierarchy edges in the
// alignment graph.
func (r *Reader) HierarchyEdgeCount(ctx context.Context, alignment string) (int, error) {
	q := queryir.Select{
		Partitions: []string{alignment},
		Patterns: []queryir.Triple{{
			Subject:   queryir.Var("child"),
			Predicate: queryir.Const(r.vocab.Broader),
			Object:    queryir.Var("parent"),
		}},
		Project: []queryir.Var{"child", "parent"},
	}
	rows, err := r.store.RunPatternQuery(ctx, q, nil)
	if err != nil {
		return 0, fmt.Errorf("hierarchy edge count: %w", err)
	}
	return len(rows), nil
}

// Edges loads every edge of the alignment graph.
//
// A correspondence quad is read as an inverted edge, stored target first,
// only when the alignment graph also holds the inversion marker for that
// edge key. Marker quads themselves are not edges.
func (r *Reader) Edges(ctx context.Context, sc Scope) ([]term.Edge, error) {
	triples, err := r.store.Triples(ctx, sc.Alignment)
	if err != nil {
		return nil, fmt.Errorf("load edges of %s: %w", sc.Alignment, err)
	}

	markers := make(map[string]bool)
	var ids []string
	seen := make(map[string]bool)
	for _, t := range triples {
		if t.Predicate == r.vocab.Inverted {
			markers[t.Subject] = true
			continue
		}
		for _, id := range []string{t.Subject, t.Object} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	labels, err := r.Labels(ctx, []string{sc.Source, sc.Target}, ids)
	if err != nil {
		return nil, err
	}

	out := make([]term.Edge, 0, len(triples))
	for _, t := range triples {
		rel, ok := r.vocab.Relation(t.Predicate)
		if !ok {
			continue
		}
		e := term.Edge{
			Source:   term.NewRef(t.Subject, labels[t.Subject]),
			Target:   term.NewRef(t.Object, labels[t.Object]),
			Relation: rel,
		}
		inv := term.Key{SourceID: t.Object, TargetID: t.Subject, Relation: rel, Inverted: true}
		if rel.Explicit() && markers[inv.Hash()] {
			e = term.Edge{
				Source:   term.NewRef(t.Object, labels[t.Object]),
				Target:   term.NewRef(t.Subject, labels[t.Subject]),
				Relation: rel,
				Inverted: true,
			}
		}
		out = append(out, e)
	}
	return out, nil
}

const multiplicitySQL = `
WITH RECURSIVE anc(id, depth) AS (
	SELECT ?, 0
	UNION
	SELECT q.object, anc.depth + 1
	FROM quads q JOIN anc ON q.subject = anc.id
	WHERE q.graph IN (?, ?) AND q.predicate = ? AND anc.depth < ?
),
live(id) AS (
	SELECT subject FROM quads WHERE graph = ? AND predicate = ? AND object = ?
),
justification(holder, predicate, other) AS (
	SELECT anc.id, q.predicate, q.object
	FROM anc JOIN quads q ON q.subject = anc.id
	WHERE q.graph = ? AND q.object IN (SELECT id FROM live)
	  AND ((anc.depth = 0 AND q.predicate IN (?, ?, ?, ?)) OR (anc.depth > 0 AND q.predicate IN (?, ?)))
	UNION
	SELECT anc.id, q.predicate, q.subject
	FROM anc JOIN quads q ON q.object = anc.id
	WHERE q.graph = ? AND q.subject IN (SELECT id FROM live)
	  AND ((anc.depth = 0 AND q.predicate IN (?, ?, ?, ?)) OR (anc.depth > 0 AND q.predicate IN (?, ?)))
)
SELECT COUNT(*) FROM justification`

// Multiplicity counts the distinct justifications that make termID aligned:
// its own explicit correspondences to live target terms, plus exact or
// broad matches to live target terms held by any of its ancestors in the
// source taxonomy or in copied subtrees of the alignment graph.
func (r *Reader) Multiplicity(ctx context.Context, sc Scope, termID string) (int, error) {
	explicit := r.vocab.ExplicitIRIs()
	propagating := r.vocab.PropagatingIRIs()

	args := []any{
		termID,
		sc.Source, sc.Alignment, r.vocab.Broader, r.maxDepth,
		sc.Target, r.vocab.Type, r.vocab.Concept,
	}
	for i := 0; i < 2; i++ {
		args = append(args, sc.Alignment)
		for _, p := range explicit {
			args = append(args, p)
		}
		for _, p := range propagating {
			args = append(args, p)
		}
	}

	rows, err := r.store.Query(ctx, multiplicitySQL, args...)
	if err != nil {
		return 0, fmt.Errorf("multiplicity of %s: %w", termID, err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scan multiplicity: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("multiplicity of %s: %w", termID, err)
	}
	return n, nil
}

const ancestorsSQL = `
WITH RECURSIVE anc(id, depth) AS (
	SELECT ?, 0
	UNION
	SELECT q.object, anc.depth + 1
	FROM quads q JOIN anc ON q.subject = anc.id
	WHERE q.graph IN (%s) AND q.predicate = ? AND anc.depth < ?
)
SELECT DISTINCT id FROM anc WHERE depth > 0 ORDER BY id COLLATE BINARY`

// Ancestors returns every transitive parent of termID across graphs.
func (r *Reader) Ancestors(ctx context.Context, graphs []string, termID string) ([]string, error) {
	if len(graphs) == 0 {
		return nil, nil
	}
	marks := "?"
	for i := 1; i < len(graphs); i++ {
		marks += ", ?"
	}
	args := []any{termID}
	for _, g := range graphs {
		args = append(args, g)
	}
	args = append(args, r.vocab.Broader, r.maxDepth)

	rows, err := r.store.Query(ctx, fmt.Sprintf(ancestorsSQL, marks), args...)
	if err != nil {
		return nil, fmt.Errorf("ancestors of %s: %w", termID, err)
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
