package queryir

// Node is one position of a triple pattern.
//
// Node types:
//   - Var: a variable joined across patterns by name
//   - Const: a fixed IRI or literal
//   - Param: a value supplied by the bindings map at execution time
type Node interface {
	patternNode()
}

// Var is a named variable. The same name in two patterns is an equi-join.
type Var string

func (Var) patternNode() {}

// Const is a fixed term.
type Const string

func (Const) patternNode() {}

// Param is resolved from the execution bindings by name.
// Using Param instead of Const keeps compiled SQL reusable across terms.
type Param string

func (Param) patternNode() {}

// Triple is a single triple pattern.
//
// Graphs overrides the enclosing query's partitions for this pattern only.
// An empty Graphs inherits the partitions of the query it belongs to.
type Triple struct {
	Graphs    []string
	Subject   Node
	Predicate Node
	Object    Node
}

// Query is a read against the store.
type Query interface {
	queryNode()
}

// Select evaluates Patterns over Partitions and projects distinct rows.
//
// Semantics:
//
//	SELECT DISTINCT <project> WHERE { <patterns> FILTER(<filter>) }
//
// Every projected variable must occur in a pattern. Rows are returned in
// ascending binary order of the projected columns.
type Select struct {
	Partitions []string
	Patterns   []Triple
	Filter     Predicate // nil = no filter
	Project    []Var
}

func (Select) queryNode() {}

// Predicate filters rows of a Select.
type Predicate interface {
	predicateNode()
}

// Equals holds when the variable is bound to Value.
type Equals struct {
	Var   Var
	Value string
}

func (Equals) predicateNode() {}

// In holds when the variable is bound to one of Values.
// An empty Values never holds.
type In struct {
	Var    Var
	Values []string
}

func (In) predicateNode() {}

// Bound holds when the variable equals the named execution parameter.
type Bound struct {
	Var   Var
	Param Param
}

func (Bound) predicateNode() {}

// NotExists holds when its patterns have no solution. Variables shared with
// the enclosing query are correlated; other variables are local.
type NotExists struct {
	Partitions []string
	Patterns   []Triple
	Filter     Predicate
}

func (NotExists) predicateNode() {}

// And holds when every predicate holds. Empty And always holds.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Ground is a fully specified triple used by updates.
type Ground struct {
	Subject   string `json:"s" yaml:"s"`
	Predicate string `json:"p" yaml:"p"`
	Object    string `json:"o" yaml:"o"`
}

// Update is a write against one named graph.
type Update interface {
	updateNode()
}

// InsertData adds triples to Graph. Existing triples are left untouched.
type InsertData struct {
	Graph   string
	Triples []Ground
}

func (InsertData) updateNode() {}

// DeleteData removes triples from Graph. Missing triples are ignored.
type DeleteData struct {
	Graph   string
	Triples []Ground
}

func (DeleteData) updateNode() {}

// Batch applies its updates in order as one unit.
type Batch struct {
	Updates []Update
}

func (Batch) updateNode() {}
