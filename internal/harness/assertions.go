package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/termalign/internal/term"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s => %s\n", event.Step, event.Op, event.Args, event.Outcome)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertAligned:
		return assertAligned(result, a, true)
	case AssertNotAligned:
		return assertAligned(result, a, false)
	case AssertEdgeCount:
		return assertEdgeCount(result, a)
	case AssertHasEdge:
		return assertHasEdge(result, a)
	case AssertTraceContains:
		return assertTraceContains(result, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertAligned checks the final tracker state of every listed term.
func assertAligned(result *Result, a Assertion, want bool) error {
	aligned := make(map[string]bool, len(result.Aligned))
	for _, id := range result.Aligned {
		aligned[id] = true
	}
	var wrong []string
	for _, id := range a.Terms {
		if aligned[term.NormalizeID(id)] != want {
			wrong = append(wrong, id)
		}
	}
	if len(wrong) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("aligned=%t for %v", want, a.Terms),
		Actual:   fmt.Sprintf("aligned=%t for %v (aligned terms: %v)", !want, wrong, result.Aligned),
		Trace:    result.Trace,
	}
}

func assertEdgeCount(result *Result, a Assertion) error {
	if len(result.Edges) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEdgeCount,
		Expected: fmt.Sprintf("%d edges", a.Count),
		Actual:   fmt.Sprintf("%d edges: %v", len(result.Edges), result.Edges),
		Trace:    result.Trace,
	}
}

func assertHasEdge(result *Result, a Assertion) error {
	rel, err := term.ParseRelation(a.Relation)
	if err != nil {
		return err
	}
	want := term.Key{SourceID: a.Source, TargetID: a.Target, Relation: rel}.String()
	// Either direction of storage satisfies the assertion.
	inverted := term.Key{SourceID: a.Source, TargetID: a.Target, Relation: rel, Inverted: true}.String()
	for _, e := range result.Edges {
		if e == want || e == inverted {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertHasEdge,
		Expected: want,
		Actual:   fmt.Sprintf("edges: %v", result.Edges),
		Trace:    result.Trace,
	}
}

// assertTraceContains checks that some step of the op produced the outcome.
// An empty outcome matches any step of the op.
func assertTraceContains(result *Result, a Assertion) error {
	for _, ev := range result.Trace {
		if ev.Op == a.Op && (a.Outcome == "" || ev.Outcome == a.Outcome) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s => %q", a.Op, a.Outcome),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}
