// Package querysql compiles queryir patterns and updates into parameterized
// SQL over the store's quad table:
//
//	quads(graph, subject, predicate, object, seq)
//
// Each triple pattern becomes one aliased scan of quads; shared variables
// become equi-join conditions. All values are parameterized, never
// interpolated, and every query carries an ORDER BY over its projection so
// results are deterministic.
package querysql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/termalign/internal/queryir"
)

// QuadTable is the name of the table patterns are evaluated against.
const QuadTable = "quads"

var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLCompiler compiles queryir to SQLite SQL.
type SQLCompiler struct {
	// Params holds the values for queryir.Param nodes and Bound predicates.
	Params map[string]string

	// NextSeq stamps inserted quads. Defaults to a constant 0.
	NextSeq func() int64
}

// NewSQLCompiler creates a compiler with the given parameter values.
func NewSQLCompiler(params map[string]string) *SQLCompiler {
	if params == nil {
		params = make(map[string]string)
	}
	return &SQLCompiler{Params: params}
}

// StatementKind tells the executor how to account for a statement.
type StatementKind int

const (
	StatementInsert StatementKind = iota + 1
	StatementDelete
)

// Statement is one executable SQL statement of an update.
type Statement struct {
	Kind StatementKind
	SQL  string
	Args []any
}

// fragment accumulates SQL text and its parameters in placeholder order.
type fragment struct {
	sql    strings.Builder
	params []any
}

func (f *fragment) write(sql string, params ...any) {
	f.sql.WriteString(sql)
	f.params = append(f.params, params...)
}

// scope maps variables to the column that first bound them.
type scope map[queryir.Var]string

func (s scope) child() scope {
	out := make(scope, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// compilation carries the alias counter shared by nested NOT EXISTS blocks.
type compilation struct {
	c       *SQLCompiler
	aliases int
}

// Compile converts a query into (sql, params).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if res := queryir.Validate(q); !res.IsValid {
		return "", nil, res.Err()
	}

	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		sel = *query
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}

	for _, p := range sel.Project {
		if !varName.MatchString(string(p)) {
			return "", nil, fmt.Errorf("invalid variable name %q", p)
		}
	}

	comp := &compilation{c: c}
	vars := make(scope)
	from, where, err := comp.compilePatterns(sel.Partitions, sel.Patterns, vars)
	if err != nil {
		return "", nil, err
	}

	if sel.Filter != nil {
		pred, err := comp.compilePredicate(sel.Filter, vars)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = append(where, pred)
	}

	out := &fragment{}
	cols := make([]string, 0, len(sel.Project))
	order := make([]string, 0, len(sel.Project))
	for _, p := range sel.Project {
		cols = append(cols, fmt.Sprintf("%s AS %q", vars[p], string(p)))
		order = append(order, fmt.Sprintf("%q COLLATE BINARY ASC", string(p)))
	}

	out.write("SELECT DISTINCT " + strings.Join(cols, ", "))
	out.write(" FROM " + strings.Join(from, ", "))
	if len(where) > 0 {
		out.write(" WHERE ")
		for i, w := range where {
			if i > 0 {
				out.write(" AND ")
			}
			out.write(w.sql.String(), w.params...)
		}
	}
	// Deterministic row order for every query.
	out.write(" ORDER BY " + strings.Join(order, ", "))

	return out.sql.String(), out.params, nil
}

// compilePatterns emits one aliased quad scan per pattern. vars is extended
// in place with the columns of newly bound variables.
func (comp *compilation) compilePatterns(partitions []string, patterns []queryir.Triple, vars scope) ([]string, []*fragment, error) {
	var from []string
	var where []*fragment

	for _, t := range patterns {
		alias := fmt.Sprintf("q%d", comp.aliases)
		comp.aliases++
		from = append(from, QuadTable+" "+alias)

		graphs := t.Graphs
		if len(graphs) == 0 {
			graphs = partitions
		}
		where = append(where, inList(alias+".graph", graphs))

		positions := []struct {
			col  string
			node queryir.Node
		}{
			{alias + ".subject", t.Subject},
			{alias + ".predicate", t.Predicate},
			{alias + ".object", t.Object},
		}
		for _, pos := range positions {
			f, err := comp.compileNode(pos.col, pos.node, vars)
			if err != nil {
				return nil, nil, err
			}
			if f != nil {
				where = append(where, f)
			}
		}
	}
	return from, where, nil
}

func (comp *compilation) compileNode(col string, n queryir.Node, vars scope) (*fragment, error) {
	f := &fragment{}
	switch node := n.(type) {
	case queryir.Const:
		f.write(col+" = ?", string(node))
	case queryir.Param:
		val, ok := comp.c.Params[string(node)]
		if !ok {
			return nil, fmt.Errorf("parameter %q has no value", node)
		}
		f.write(col+" = ?", val)
	case queryir.Var:
		bound, ok := vars[node]
		if !ok {
			vars[node] = col
			return nil, nil
		}
		f.write(col + " = " + bound)
	default:
		return nil, fmt.Errorf("unsupported node type: %T", n)
	}
	return f, nil
}

// compilePredicate compiles a filter. Values are always parameterized.
func (comp *compilation) compilePredicate(p queryir.Predicate, vars scope) (*fragment, error) {
	f := &fragment{}
	switch pred := p.(type) {
	case queryir.Equals:
		f.write(vars[pred.Var]+" = ?", pred.Value)

	case queryir.In:
		return inList(vars[pred.Var], pred.Values), nil

	case queryir.Bound:
		val, ok := comp.c.Params[string(pred.Param)]
		if !ok {
			return nil, fmt.Errorf("parameter %q has no value", pred.Param)
		}
		f.write(vars[pred.Var]+" = ?", val)

	case queryir.And:
		if len(pred.Predicates) == 0 {
			f.write("1 = 1")
			return f, nil
		}
		f.write("(")
		for i, sub := range pred.Predicates {
			subFrag, err := comp.compilePredicate(sub, vars)
			if err != nil {
				return nil, err
			}
			if i > 0 {
				f.write(" AND ")
			}
			f.write(subFrag.sql.String(), subFrag.params...)
		}
		f.write(")")

	case queryir.NotExists:
		inner := vars.child()
		from, where, err := comp.compilePatterns(pred.Partitions, pred.Patterns, inner)
		if err != nil {
			return nil, fmt.Errorf("compile not exists: %w", err)
		}
		if pred.Filter != nil {
			filter, err := comp.compilePredicate(pred.Filter, inner)
			if err != nil {
				return nil, fmt.Errorf("compile not exists filter: %w", err)
			}
			where = append(where, filter)
		}
		f.write("NOT EXISTS (SELECT 1 FROM " + strings.Join(from, ", "))
		if len(where) > 0 {
			f.write(" WHERE ")
			for i, w := range where {
				if i > 0 {
					f.write(" AND ")
				}
				f.write(w.sql.String(), w.params...)
			}
		}
		f.write(")")

	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
	return f, nil
}

// inList renders "col = ?" for one value and "col IN (?, ...)" otherwise.
// An empty list never matches.
func inList(col string, values []string) *fragment {
	f := &fragment{}
	switch len(values) {
	case 0:
		f.write("1 = 0")
	case 1:
		f.write(col+" = ?", values[0])
	default:
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		params := make([]any, len(values))
		for i, v := range values {
			params[i] = v
		}
		f.write(col+" IN ("+marks+")", params...)
	}
	return f
}

// CompileUpdate flattens an update into executable statements.
func (c *SQLCompiler) CompileUpdate(u queryir.Update) ([]Statement, error) {
	if res := queryir.ValidateUpdate(u); !res.IsValid {
		return nil, fmt.Errorf("invalid update: %v", res.Problems)
	}
	return c.compileUpdate(u)
}

func (c *SQLCompiler) compileUpdate(u queryir.Update) ([]Statement, error) {
	switch upd := u.(type) {
	case queryir.InsertData:
		stmts := make([]Statement, 0, len(upd.Triples))
		for _, t := range upd.Triples {
			stmts = append(stmts, Statement{
				Kind: StatementInsert,
				SQL: `INSERT INTO ` + QuadTable + ` (graph, subject, predicate, object, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(graph, subject, predicate, object) DO NOTHING`,
				Args: []any{upd.Graph, t.Subject, t.Predicate, t.Object, c.seq()},
			})
		}
		return stmts, nil

	case queryir.DeleteData:
		stmts := make([]Statement, 0, len(upd.Triples))
		for _, t := range upd.Triples {
			stmts = append(stmts, Statement{
				Kind: StatementDelete,
				SQL:  `DELETE FROM ` + QuadTable + ` WHERE graph = ? AND subject = ? AND predicate = ? AND object = ?`,
				Args: []any{upd.Graph, t.Subject, t.Predicate, t.Object},
			})
		}
		return stmts, nil

	case queryir.Batch:
		var stmts []Statement
		for _, sub := range upd.Updates {
			s, err := c.compileUpdate(sub)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, s...)
		}
		return stmts, nil

	default:
		return nil, fmt.Errorf("unsupported update type: %T", u)
	}
}

func (c *SQLCompiler) seq() int64 {
	if c.NextSeq == nil {
		return 0
	}
	return c.NextSeq()
}
