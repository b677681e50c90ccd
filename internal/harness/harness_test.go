package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mismatch
description: a wrong expectation is reported
taxonomies:
  - name: src
    version: 1
    concepts: [{id: a}]
  - name: tgt
    version: 1
    concepts: [{id: x}]
alignment: {source: src@1, target: tgt@1}
steps:
  - {op: add, source: a, relation: exactMatch, target: x, expect: duplicate}
assertions:
  - {type: edge_count, count: 3}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected "duplicate", got "added"`)
	assert.Contains(t, result.Errors[1], "edge_count")
}

func TestRun_SetupErrors(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: missing-graph
description: the alignment names a taxonomy that was never imported
taxonomies:
  - name: src
    version: 1
    concepts: [{id: a}]
alignment: {source: src@1, target: tgt@1}
steps:
  - {op: sweep}
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup")
}

func TestRun_InvalidTaxonomy(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: cycle
description: a cyclic taxonomy is rejected before the engine starts
taxonomies:
  - name: src
    version: 1
    concepts:
      - {id: a, broader: [b]}
      - {id: b, broader: [a]}
alignment: {source: src@1, target: src@1}
steps:
  - {op: sweep}
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hierarchy cycle")
}
