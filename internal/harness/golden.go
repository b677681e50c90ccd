package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the trace and final session of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Alignment    string       `json:"alignment"`
	Trace        []TraceEvent `json:"trace"`
	Edges        []string     `json:"edges"`
	Aligned      []string     `json:"aligned"`
}

// MarshalSnapshot renders a snapshot as indented JSON without HTML
// escaping, so edge arrows stay readable in golden files.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SnapshotOf renders the golden file content of a result.
func SnapshotOf(scenarioName string, result *Result) ([]byte, error) {
	return MarshalSnapshot(TraceSnapshot{
		ScenarioName: scenarioName,
		Alignment:    result.Alignment,
		Trace:        result.Trace,
		Edges:        result.Edges,
		Aligned:      result.Aligned,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := SnapshotOf(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
