package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrGraphNotFound is returned when a graph id is not registered.
var ErrGraphNotFound = errors.New("graph not found")

// GraphKind distinguishes taxonomy partitions from alignment partitions.
type GraphKind string

const (
	KindTaxonomy  GraphKind = "taxonomy"
	KindAlignment GraphKind = "alignment"
)

// GraphInfo is one row of the graph registry.
//
// SourceGraph and TargetGraph are set for alignments only.
type GraphInfo struct {
	ID          string    `json:"id"`
	Kind        GraphKind `json:"kind"`
	Name        string    `json:"name"`
	Version     int       `json:"version"`
	SourceGraph string    `json:"source_graph,omitempty"`
	TargetGraph string    `json:"target_graph,omitempty"`
	Seq         int64     `json:"seq"`
}

// RegisterGraph inserts or replaces the registry row for g.ID.
// The stored seq is assigned from the store clock.
func (s *Store) RegisterGraph(ctx context.Context, g GraphInfo) error {
	if g.ID == "" {
		return fmt.Errorf("register graph: empty id")
	}
	if g.Kind != KindTaxonomy && g.Kind != KindAlignment {
		return fmt.Errorf("register graph %s: unknown kind %q", g.ID, g.Kind)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graphs (id, kind, name, version, source_graph, target_graph, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			version = excluded.version,
			source_graph = excluded.source_graph,
			target_graph = excluded.target_graph
	`, g.ID, g.Kind, g.Name, g.Version, g.SourceGraph, g.TargetGraph, s.clock.Next())
	if err != nil {
		return fmt.Errorf("register graph %s: %w", g.ID, err)
	}
	return nil
}

// Graph returns the registry row for id.
func (s *Store) Graph(ctx context.Context, id string) (GraphInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, version, source_graph, target_graph, seq
		FROM graphs WHERE id = ?
	`, id)
	g, err := scanGraph(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GraphInfo{}, fmt.Errorf("%w: %s", ErrGraphNotFound, id)
	}
	if err != nil {
		return GraphInfo{}, fmt.Errorf("read graph %s: %w", id, err)
	}
	return g, nil
}

// LatestVersion returns the taxonomy graph with the highest version for
// name.
func (s *Store) LatestVersion(ctx context.Context, name string) (GraphInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, version, source_graph, target_graph, seq
		FROM graphs
		WHERE kind = 'taxonomy' AND name = ?
		ORDER BY version DESC, seq DESC
		LIMIT 1
	`, name)
	g, err := scanGraph(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GraphInfo{}, fmt.Errorf("%w: taxonomy %s", ErrGraphNotFound, name)
	}
	if err != nil {
		return GraphInfo{}, fmt.Errorf("latest version of %s: %w", name, err)
	}
	return g, nil
}

// ListGraphs returns registered graphs of kind, or all graphs when kind is
// empty.
func (s *Store) ListGraphs(ctx context.Context, kind GraphKind) ([]GraphInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, version, source_graph, target_graph, seq
		FROM graphs
		WHERE ? = '' OR kind = ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, kind, kind)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	var out []GraphInfo
	for rows.Next() {
		g, err := scanGraph(rows)
		if err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CopyGraph copies every quad of from into to. Quads already present in to
// are left untouched. Returns the number of quads inserted.
func (s *Store) CopyGraph(ctx context.Context, from, to string) (int64, error) {
	if from == to {
		return 0, fmt.Errorf("copy graph: source and destination are both %s", from)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO quads (graph, subject, predicate, object, seq)
		SELECT ?, subject, predicate, object, seq FROM quads WHERE graph = ?
		ON CONFLICT(graph, subject, predicate, object) DO NOTHING
	`, to, from)
	if err != nil {
		return 0, fmt.Errorf("copy graph %s to %s: %w", from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit copy: %w", err)
	}
	return n, nil
}

// DropGraph removes every quad of id and its registry row.
func (s *Store) DropGraph(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quads WHERE graph = ?`, id); err != nil {
		return fmt.Errorf("drop quads of %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graphs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("drop registry row %s: %w", id, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGraph(r rowScanner) (GraphInfo, error) {
	var g GraphInfo
	var kind string
	err := r.Scan(&g.ID, &kind, &g.Name, &g.Version, &g.SourceGraph, &g.TargetGraph, &g.Seq)
	g.Kind = GraphKind(kind)
	return g, err
}
