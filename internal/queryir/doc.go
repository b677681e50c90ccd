// Package queryir is the pattern-query representation the alignment engine
// uses to talk to a graph store.
//
// A query is a basic graph pattern: a list of triple patterns evaluated over
// one or more named graphs ("partitions"), joined on shared variables, and
// filtered by predicates. Updates are ground triple inserts and deletes
// against a single named graph.
//
//	[hierarchy reader] → [queryir] → [querysql] → SQLite quad table
//
// The IR deliberately stays within what a SPARQL basic graph pattern can
// express (no aggregation, no property paths, no OPTIONAL) so a remote
// triple store backend can be added without touching callers. Recursive
// walks are driven by the caller.
//
// SEALED INTERFACES:
//
// Node, Query, Predicate and Update are sealed with marker methods so that
// backends can switch over them exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case Bound:
//	case NotExists:
//	case And:
//	}
//
// Example, children of a term that carry no correspondence of their own:
//
//	Select{
//	  Partitions: []string{sourceGraph},
//	  Patterns:   []Triple{{Subject: Var("child"), Predicate: Const(broader), Object: Param("term")}},
//	  Filter: NotExists{
//	    Partitions: []string{alignmentGraph},
//	    Patterns:   []Triple{{Subject: Var("child"), Predicate: Var("rel"), Object: Var("t")}},
//	    Filter:     In{Var: "rel", Values: correspondenceIRIs},
//	  },
//	  Project: []Var{"child"},
//	}
package queryir
