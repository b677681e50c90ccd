package index

import (
	"sort"

	"github.com/roach88/termalign/internal/term"
)

// Index is the bidirectional edge map of one alignment session.
type Index struct {
	bySource map[string][]term.Edge
	byTarget map[string][]term.Edge
	size     int
}

// New creates an empty index.
func New() *Index {
	return &Index{
		bySource: make(map[string][]term.Edge),
		byTarget: make(map[string][]term.Edge),
	}
}

// Add inserts an edge into both views.
// Returns false when an edge with the same identity tuple already exists.
func (x *Index) Add(e term.Edge) bool {
	key := e.Key()
	if containsKey(x.bySource[e.Source.ID], key) || containsKey(x.byTarget[e.Target.ID], key) {
		return false
	}

	x.bySource[e.Source.ID] = append(x.bySource[e.Source.ID], e)
	x.byTarget[e.Target.ID] = append(x.byTarget[e.Target.ID], e)
	x.size++
	return true
}

// AddAlignment is Add with the edge fields spelled out.
func (x *Index) AddAlignment(source, target term.Ref, rel term.Relation, inverted bool) bool {
	return x.Add(term.Edge{Source: source, Target: target, Relation: rel, Inverted: inverted})
}

// Release removes the edge identified by the tuple from both views.
// Releasing an edge that does not exist is a no-op and returns false.
func (x *Index) Release(sourceID string, rel term.Relation, targetID string, inverted bool) bool {
	key := term.Key{SourceID: sourceID, TargetID: targetID, Relation: rel, Inverted: inverted}

	// Check both sides before touching either so a miss leaves the index untouched.
	si := indexOfKey(x.bySource[sourceID], key)
	ti := indexOfKey(x.byTarget[targetID], key)
	if si < 0 || ti < 0 {
		return false
	}

	x.bySource = removeAt(x.bySource, sourceID, si)
	x.byTarget = removeAt(x.byTarget, targetID, ti)
	x.size--
	return true
}

// Has reports whether an edge with the given identity exists.
func (x *Index) Has(k term.Key) bool {
	return containsKey(x.bySource[k.SourceID], k)
}

// ExplicitlyAlignedInContext reports whether sourceID has an edge to targetID.
// If rel is non-nil only edges of that relation count.
func (x *Index) ExplicitlyAlignedInContext(sourceID, targetID string, rel *term.Relation) bool {
	for _, e := range x.byTarget[targetID] {
		if e.Source.ID != sourceID {
			continue
		}
		if rel == nil || e.Relation == *rel {
			return true
		}
	}
	return false
}

// TermsRelatedTo returns the distinct target IDs reachable from sourceID,
// sorted. If rel is non-nil only edges of that relation count.
func (x *Index) TermsRelatedTo(sourceID string, rel *term.Relation) []string {
	seen := make(map[string]struct{})
	for _, e := range x.bySource[sourceID] {
		if rel != nil && e.Relation != *rel {
			continue
		}
		seen[e.Target.ID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// BySource returns a copy of the edges held by a source term.
func (x *Index) BySource(sourceID string) []term.Edge {
	return cloneEdges(x.bySource[sourceID])
}

// ByTarget returns a copy of the edges pointing at a target term.
func (x *Index) ByTarget(targetID string) []term.Edge {
	return cloneEdges(x.byTarget[targetID])
}

// HasSourceKey reports whether sourceID has an entry in the source view.
func (x *Index) HasSourceKey(sourceID string) bool {
	_, ok := x.bySource[sourceID]
	return ok
}

// HasTargetKey reports whether targetID has an entry in the target view.
func (x *Index) HasTargetKey(targetID string) bool {
	_, ok := x.byTarget[targetID]
	return ok
}

// Len returns the number of distinct edges.
func (x *Index) Len() int {
	return x.size
}

// Edges returns all edges ordered by source ID, target ID, relation, inverted.
func (x *Index) Edges() []term.Edge {
	out := make([]term.Edge, 0, x.size)
	for _, edges := range x.bySource {
		out = append(out, edges...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.TargetID != b.TargetID {
			return a.TargetID < b.TargetID
		}
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		return !a.Inverted && b.Inverted
	})
	return out
}

// SourceIDs returns every source term ID with at least one edge, sorted.
func (x *Index) SourceIDs() []string {
	return sortedKeys(x.bySource)
}

// TargetIDs returns every target term ID with at least one edge, sorted.
func (x *Index) TargetIDs() []string {
	return sortedKeys(x.byTarget)
}

func containsKey(edges []term.Edge, k term.Key) bool {
	return indexOfKey(edges, k) >= 0
}

func indexOfKey(edges []term.Edge, k term.Key) int {
	for i, e := range edges {
		if e.Key() == k {
			return i
		}
	}
	return -1
}

// removeAt deletes edges[i] for key and drops the key when the list empties.
func removeAt(m map[string][]term.Edge, key string, i int) map[string][]term.Edge {
	edges := m[key]
	if len(edges) == 1 {
		delete(m, key)
		return m
	}
	out := make([]term.Edge, 0, len(edges)-1)
	out = append(out, edges[:i]...)
	out = append(out, edges[i+1:]...)
	m[key] = out
	return m
}

func cloneEdges(edges []term.Edge) []term.Edge {
	if len(edges) == 0 {
		return nil
	}
	out := make([]term.Edge, len(edges))
	copy(out, edges)
	return out
}

func sortedKeys(m map[string][]term.Edge) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
