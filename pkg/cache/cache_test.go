package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissAndPut(t *testing.T) {
	c := New()

	_, ok := c.Get("get_locations:abc")
	assert.False(t, ok)

	payload := map[string]any{"success": true, "count": float64(2)}
	c.Put("get_locations:abc", payload, 0)

	entry, ok := c.Get("get_locations:abc")
	require.True(t, ok)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, 0, entry.RoundIndex)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestPutLastWriteWins(t *testing.T) {
	c := New()

	c.Put("fp", map[string]any{"count": float64(1)}, 0)
	c.Put("fp", map[string]any{"count": float64(9)}, 3)

	entry, ok := c.Get("fp")
	require.True(t, ok)
	assert.Equal(t, float64(9), entry.Payload["count"])
	assert.Equal(t, 3, entry.RoundIndex)
	assert.Equal(t, 1, c.Len(), "at most one live entry per fingerprint")
}

func TestClear(t *testing.T) {
	c := New()
	c.Put("a", map[string]any{}, 0)
	c.Put("b", map[string]any{}, 1)
	require.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestSummaryDeterministic(t *testing.T) {
	c := New()
	c.Put("zz", map[string]any{}, 0)
	c.Put("aa", map[string]any{}, 0)
	c.Put("mm", map[string]any{}, 1)

	assert.Equal(t, []string{"aa", "mm", "zz"}, c.Summary())
}

func TestConcurrentAccess(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fp := fmt.Sprintf("fp-%d", n%8)
			c.Put(fp, map[string]any{"n": float64(n)}, n)
			c.Get(fp)
			c.Len()
			c.Summary()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Len())
}
