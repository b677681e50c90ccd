package taxonomy

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError lists every problem found in a taxonomy.
type ValidationError struct {
	Taxonomy string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid taxonomy %s: %s", e.Taxonomy, strings.Join(e.Problems, "; "))
}

// Validate checks names, ids, references and that the hierarchy is
// acyclic. It reports every problem at once.
func (t *Taxonomy) Validate() error {
	var problems []string

	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.ContainsAny(t.Name, "@ \t\n") {
		problems = append(problems, fmt.Sprintf("name %q must not contain '@' or whitespace", t.Name))
	}
	if t.Version < 1 {
		problems = append(problems, fmt.Sprintf("version must be >= 1, got %d", t.Version))
	}

	ids := make(map[string]bool, len(t.Concepts))
	for i, c := range t.Concepts {
		if c.ID == "" {
			problems = append(problems, fmt.Sprintf("concept %d has an empty id", i))
			continue
		}
		if ids[c.ID] {
			problems = append(problems, fmt.Sprintf("duplicate concept %q", c.ID))
		}
		ids[c.ID] = true
	}
	for _, c := range t.Concepts {
		for _, p := range c.Broader {
			if p == c.ID {
				problems = append(problems, fmt.Sprintf("concept %q is broader than itself", c.ID))
			} else if !ids[p] {
				problems = append(problems, fmt.Sprintf("concept %q has unknown broader %q", c.ID, p))
			}
		}
	}

	for _, cycle := range findCycles(t.Concepts) {
		problems = append(problems, fmt.Sprintf("hierarchy cycle: %s", strings.Join(cycle, " > ")))
	}

	if len(problems) > 0 {
		return &ValidationError{Taxonomy: t.Name, Problems: problems}
	}
	return nil
}

// findCycles returns each strongly connected component of the broader
// graph with more than one member, sorted. Self-loops are reported by
// Validate directly.
func findCycles(concepts []Concept) [][]string {
	graph := make(map[string][]string, len(concepts))
	nodes := make([]string, 0, len(concepts))
	for _, c := range concepts {
		if _, ok := graph[c.ID]; !ok {
			nodes = append(nodes, c.ID)
		}
		graph[c.ID] = append(graph[c.ID], c.Broader...)
	}
	sort.Strings(nodes)

	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		cycles  [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				sort.Strings(scc)
				cycles = append(cycles, scc)
			}
		}
	}

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return cycles
}
