package sync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodes(count int) map[string]int {
	nodes := make(map[string]int)
	for i := 0; i < count; i++ {
		nodes[fmt.Sprintf("entry%d", i)] = i
	}
	return nodes
}

func TestRing_Stable(t *testing.T) {
	nodes := testNodes(32)
	a := newRing(nodes, 100)
	b := newRing(nodes, 100)

	for i := 0; i < 1000; i++ {
		key := []byte(fmt.Sprintf("account%d", i))
		assert.Equal(t, a.lookup(key), a.lookup(key))
		assert.Equal(t, a.lookup(key), b.lookup(key))
	}
}

func TestRing_Spread(t *testing.T) {
	const (
		nodeCount = 5
		keyCount  = 500000
		tolerance = 0.1
	)

	r := newRing(testNodes(nodeCount), 200)

	counts := make([]int, nodeCount)
	for i := 0; i < keyCount; i++ {
		counts[r.lookup([]byte(fmt.Sprintf("key%d", i)))]++
	}

	expected := float64(keyCount) / nodeCount
	for node, count := range counts {
		require.NotZero(t, count, "node %d never selected", node)
		assert.InEpsilon(t, expected, float64(count), tolerance, "node %d", node)
	}
}

func TestRing_Empty(t *testing.T) {
	r := newRing(map[string]int{}, 10)
	assert.Equal(t, 0, r.lookup([]byte("anything")))
}
