package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/termalign/internal/taxonomy"
	"github.com/roach88/termalign/internal/term"
)

// Scenario defines an alignment scenario: taxonomies to import, the
// alignment to create, steps to run against the engine and assertions on
// the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Taxonomies are imported in order before the alignment is created.
	Taxonomies []taxonomy.Taxonomy `yaml:"taxonomies"`

	// Alignment names the source and target taxonomy graphs.
	Alignment AlignmentSpec `yaml:"alignment"`

	// Limits overrides engine limits for this scenario.
	Limits Limits `yaml:"limits,omitempty"`

	// Steps run in order against the engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// AlignmentSpec names the two taxonomy graphs of the scenario alignment.
type AlignmentSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// Limits are optional engine limit overrides.
type Limits struct {
	SweepEvery      *int `yaml:"sweep_every,omitempty"`
	MaxCascadeDepth *int `yaml:"max_cascade_depth,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// Op is one of add, remove, sweep, check, upgrade, aligned.
	Op string `yaml:"op"`

	Source   string `yaml:"source,omitempty"`
	Relation string `yaml:"relation,omitempty"`
	Target   string `yaml:"target,omitempty"`
	Inverted bool   `yaml:"inverted,omitempty"`

	// Side and Term are used by check and aligned.
	Side string `yaml:"side,omitempty"`
	Term string `yaml:"term,omitempty"`

	// Expect is the expected outcome string, if any.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "aligned": every listed term is aligned
	// - "not_aligned": no listed term is aligned
	// - "edge_count": the session holds exactly Count edges
	// - "has_edge": the edge Source Relation Target is present
	// - "trace_contains": a step of Op produced Outcome
	Type string `yaml:"type"`

	Terms    []string `yaml:"terms,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	Source   string   `yaml:"source,omitempty"`
	Relation string   `yaml:"relation,omitempty"`
	Target   string   `yaml:"target,omitempty"`
	Op       string   `yaml:"op,omitempty"`
	Outcome  string   `yaml:"outcome,omitempty"`
}

// Step operations.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpSweep   = "sweep"
	OpCheck   = "check"
	OpUpgrade = "upgrade"
	OpAligned = "aligned"
)

// Assertion type constants.
const (
	AssertAligned       = "aligned"
	AssertNotAligned    = "not_aligned"
	AssertEdgeCount     = "edge_count"
	AssertHasEdge       = "has_edge"
	AssertTraceContains = "trace_contains"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Taxonomies) == 0 {
		return fmt.Errorf("taxonomies list is required and must be non-empty")
	}
	if s.Alignment.Source == "" || s.Alignment.Target == "" {
		return fmt.Errorf("alignment source and target are required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	switch step.Op {
	case OpAdd, OpRemove:
		if step.Source == "" || step.Target == "" {
			return fmt.Errorf("steps[%d]: source and target are required for %s", index, step.Op)
		}
		if _, err := term.ParseRelation(step.Relation); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case OpCheck:
		if step.Term == "" {
			return fmt.Errorf("steps[%d]: term is required for check", index)
		}
		if step.Side != "" && step.Side != "source" && step.Side != "target" {
			return fmt.Errorf("steps[%d]: side must be source or target", index)
		}
	case OpAligned:
		if step.Term == "" {
			return fmt.Errorf("steps[%d]: term is required for aligned", index)
		}
	case OpSweep, OpUpgrade:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertAligned, AssertNotAligned:
		if len(a.Terms) == 0 {
			return fmt.Errorf("assertions[%d]: terms list is required for %s", index, a.Type)
		}
	case AssertEdgeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for edge_count", index)
		}
	case AssertHasEdge:
		if a.Source == "" || a.Target == "" {
			return fmt.Errorf("assertions[%d]: source and target are required for has_edge", index)
		}
		if _, err := term.ParseRelation(a.Relation); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
