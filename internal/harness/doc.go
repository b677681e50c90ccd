// Package harness runs alignment scenarios against a real engine and
// snapshots their traces.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	taxonomies:
//	  - name: animals
//	    version: 1
//	    concepts:
//	      - id: animal
//	      - id: bird
//	        broader: [animal]
//	alignment:
//	  source: animals@1
//	  target: species@1
//	limits:
//	  sweep_every: 0
//	steps:
//	  - op: add
//	    source: bird
//	    relation: exactMatch
//	    target: aves
//	    expect: added
//	  - op: aligned
//	    term: bird
//	    expect: "true"
//	assertions:
//	  - type: aligned
//	    terms: [bird]
//	  - type: edge_count
//	    count: 1
//
// # Operations
//
//   - add, remove: edit one edge (source, relation, target, inverted)
//   - sweep: run the orphan sweep
//   - check: drift status of term on side
//   - upgrade: duplicate the alignment against the latest taxonomy versions
//   - aligned: read the tracker for term
//
// Every step appends one trace event whose outcome is compared with the
// step's expect value when one is given.
//
// # Assertion Types
//
//   - aligned / not_aligned: tracker state of the listed terms at the end
//   - edge_count: number of edges in the final session
//   - has_edge: an edge with the given source, relation and target is present
//   - trace_contains: some step of op produced outcome
//
// # Deterministic Testing
//
// Alignment ids come from a sequential generator ("alignment-1", ...), and
// every scenario runs on a fresh SQLite database in a temp directory, so
// traces are identical across runs and can be compared with golden files.
package harness
