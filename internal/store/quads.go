package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/termalign/internal/queryir"
	"github.com/roach88/termalign/internal/querysql"
)

// Row is one solution of a pattern query, keyed by projected variable.
type Row map[string]string

// UpdateResult counts the quads an update actually changed.
type UpdateResult struct {
	Inserted int64
	Deleted  int64
}

// RunPatternQuery compiles q against the quad table and returns its rows in
// deterministic order.
func (s *Store) RunPatternQuery(ctx context.Context, q queryir.Query, params map[string]string) ([]Row, error) {
	sqlText, args, err := querysql.NewSQLCompiler(params).Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile pattern query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("run pattern query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []Row
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i].String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// RunUpdate applies u in a single transaction. Either every statement takes
// effect or none does.
func (s *Store) RunUpdate(ctx context.Context, u queryir.Update) (UpdateResult, error) {
	comp := querysql.NewSQLCompiler(nil)
	comp.NextSeq = s.clock.Next
	stmts, err := comp.CompileUpdate(u)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("compile update: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var res UpdateResult
	for _, st := range stmts {
		r, err := tx.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("apply update: %w", err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return UpdateResult{}, fmt.Errorf("rows affected: %w", err)
		}
		switch st.Kind {
		case querysql.StatementInsert:
			res.Inserted += n
		case querysql.StatementDelete:
			res.Deleted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return UpdateResult{}, fmt.Errorf("failed to commit update: %w", err)
	}
	return res, nil
}

// Triples returns every quad of graph ordered by subject, predicate, object.
func (s *Store) Triples(ctx context.Context, graph string) ([]queryir.Ground, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, predicate, object FROM quads
		WHERE graph = ?
		ORDER BY subject COLLATE BINARY, predicate COLLATE BINARY, object COLLATE BINARY
	`, graph)
	if err != nil {
		return nil, fmt.Errorf("query triples: %w", err)
	}
	defer rows.Close()

	var out []queryir.Ground
	for rows.Next() {
		var g queryir.Ground
		if err := rows.Scan(&g.Subject, &g.Predicate, &g.Object); err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountTriples returns the number of quads in graph.
func (s *Store) CountTriples(ctx context.Context, graph string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quads WHERE graph = ?`, graph).Scan(&n); err != nil {
		return 0, fmt.Errorf("count triples: %w", err)
	}
	return n, nil
}
