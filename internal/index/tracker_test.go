package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_DefaultsToNotAligned(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.IsAligned("A"))
	assert.Empty(t, tr.Aligned())

	tr.Unmark("A")
	assert.False(t, tr.IsAligned("A"))
	assert.Equal(t, map[string]bool{"A": false}, tr.Snapshot())
}

func TestTracker_MarkUnmark(t *testing.T) {
	tr := NewTracker()
	tr.Mark("A", "B", "C")
	tr.Unmark("B")

	assert.Equal(t, []string{"A", "C"}, tr.Aligned())
	assert.Equal(t, map[string]bool{"A": true, "B": false, "C": true}, tr.Snapshot())
}

func TestTracker_DescendantFlag(t *testing.T) {
	tr := NewTracker()
	tr.FlagDescendant("P")
	tr.FlagDescendant("Q")
	tr.ClearDescendant("P", "missing")

	assert.False(t, tr.HasAlignedDescendant("P"))
	assert.True(t, tr.HasAlignedDescendant("Q"))
}

func TestTracker_ConcurrentWriters(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("t%d", i%5)
			tr.Set(id, i%2 == 0)
			_ = tr.IsAligned(id)
		}(i)
	}
	wg.Wait()

	assert.Len(t, tr.Snapshot(), 5)
}
