package queryir

import "fmt"

// ValidationResult lists problems found in a query.
type ValidationResult struct {
	// IsValid is true when Problems is empty.
	IsValid bool

	// Problems describes every rule the query breaks.
	Problems []string
}

// Err returns the problems as a single error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("invalid query: %v", r.Problems)
}

// Validate checks a query against the rules every backend relies on:
//  1. At least one pattern, and every pattern has a graph to run against
//  2. Every projected variable occurs in a pattern
//  3. Filters only reference variables bound by the patterns in scope
//  4. No empty projection (explicit bindings only)
//
// Validate is a pure function with no side effects.
func Validate(q Query) ValidationResult {
	v := &validator{}
	v.validateQuery(q)
	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

// ValidateUpdate checks that an update names a graph and carries data.
func ValidateUpdate(u Update) ValidationResult {
	v := &validator{}
	v.validateUpdate(u)
	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if len(sel.Project) == 0 {
		v.addProblem("empty projection - explicit variables required")
	}

	scope := v.validatePatterns(sel.Partitions, sel.Patterns, nil)

	for _, p := range sel.Project {
		if !scope[p] {
			v.addProblem("projected variable ?%s does not occur in any pattern", p)
		}
	}

	if sel.Filter != nil {
		v.validatePredicate(sel.Filter, scope)
	}
}

// validatePatterns checks patterns and returns the variables they bind,
// merged with the outer scope.
func (v *validator) validatePatterns(partitions []string, patterns []Triple, outer map[Var]bool) map[Var]bool {
	if len(patterns) == 0 {
		v.addProblem("at least one triple pattern is required")
	}

	scope := make(map[Var]bool, len(outer))
	for k := range outer {
		scope[k] = true
	}

	for i, t := range patterns {
		if len(t.Graphs) == 0 && len(partitions) == 0 {
			v.addProblem("pattern %d has no graph to run against", i)
		}
		for _, n := range []Node{t.Subject, t.Predicate, t.Object} {
			switch node := n.(type) {
			case Var:
				if node == "" {
					v.addProblem("pattern %d has an empty variable name", i)
				}
				scope[node] = true
			case Const, Param:
			case nil:
				v.addProblem("pattern %d has a nil position", i)
			default:
				v.addProblem("pattern %d has unknown node type %T", i, n)
			}
		}
	}
	return scope
}

func (v *validator) validatePredicate(p Predicate, scope map[Var]bool) {
	switch pred := p.(type) {
	case Equals:
		v.requireBound(pred.Var, scope)
	case In:
		v.requireBound(pred.Var, scope)
	case Bound:
		v.requireBound(pred.Var, scope)
		if pred.Param == "" {
			v.addProblem("bound predicate on ?%s has no parameter name", pred.Var)
		}
	case NotExists:
		inner := v.validatePatterns(pred.Partitions, pred.Patterns, scope)
		if pred.Filter != nil {
			v.validatePredicate(pred.Filter, inner)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, scope)
		}
	case nil:
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) requireBound(name Var, scope map[Var]bool) {
	if !scope[name] {
		v.addProblem("filter references unbound variable ?%s", name)
	}
}

func (v *validator) validateUpdate(u Update) {
	switch upd := u.(type) {
	case InsertData:
		v.requireGraph(upd.Graph)
		v.validateGround(upd.Triples)
	case DeleteData:
		v.requireGraph(upd.Graph)
		v.validateGround(upd.Triples)
	case Batch:
		for _, sub := range upd.Updates {
			v.validateUpdate(sub)
		}
	case nil:
		v.addProblem("nil update")
	default:
		v.addProblem("unknown update type: %T", u)
	}
}

func (v *validator) requireGraph(g string) {
	if g == "" {
		v.addProblem("update has no target graph")
	}
}

func (v *validator) validateGround(triples []Ground) {
	for i, t := range triples {
		if t.Subject == "" || t.Predicate == "" || t.Object == "" {
			v.addProblem("triple %d has an empty position", i)
		}
	}
}
