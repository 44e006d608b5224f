package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_InsertAndRetrieve(t *testing.T) {
	c := New[string](3)

	require.NoError(t, c.Insert("a", "value-a", 1))
	require.NoError(t, c.Insert("b", "value-b", 2))
	assert.Equal(t, 3, c.Weight())
	assert.Equal(t, 3, c.Budget())
	assert.Equal(t, 2, c.Len())

	actual, ok := c.Retrieve("a")
	require.True(t, ok)
	assert.Equal(t, "value-a", actual)

	_, ok = c.Retrieve("missing")
	assert.False(t, ok)

	assert.Equal(t, ErrKeyExists, c.Insert("a", "other", 1))
	assert.Equal(t, ErrInvalidWeight, c.Insert("c", "value-c", 0))
	assert.Equal(t, ErrInvalidWeight, c.Insert("c", "value-c", 4))
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2)

	require.NoError(t, c.Insert("a", 1, 1))
	require.NoError(t, c.Insert("b", 2, 1))

	// Retrieving a makes b the eviction candidate
	_, ok := c.Retrieve("a")
	require.True(t, ok)

	require.NoError(t, c.Insert("c", 3, 1))
	_, ok = c.Retrieve("b")
	assert.False(t, ok)
	_, ok = c.Retrieve("a")
	assert.True(t, ok)
	_, ok = c.Retrieve("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Weight())

	// A heavy entry evicts as many entries as needed
	require.NoError(t, c.Insert("d", 4, 2))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, c.Weight())
	actual, ok := c.Retrieve("d")
	require.True(t, ok)
	assert.Equal(t, 4, actual)
}

func TestCache_Clear(t *testing.T) {
	c := New[int](2)
	require.NoError(t, c.Insert("a", 1, 1))

	c.Clear()
	_, ok := c.Retrieve("a")
	assert.False(t, ok)
	assert.Zero(t, c.Weight())

	require.NoError(t, c.Insert("a", 1, 1))
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int](64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d-%d", worker, j)
				assert.NoError(t, c.Insert(key, j, 1))
				c.Retrieve(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 64, c.Len())
	assert.Equal(t, 64, c.Weight())
}
