package input

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamCacheUpdateAndLookup(t *testing.T) {
	c := NewStreamCache()
	_, _, ok := c.Lookup(1)
	require.False(t, ok)

	c.Update(1, Frame{X: 10, Y: 20, Width: 800, Height: 600}, "client-1")
	f, clientID, ok := c.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "client-1", clientID)
	require.Equal(t, Frame{X: 10, Y: 20, Width: 800, Height: 600}, f)
}

func TestStreamCacheDriftWithinToleranceCollapses(t *testing.T) {
	c := NewStreamCache()
	c.Update(1, Frame{X: 10, Y: 20, Width: 800, Height: 600}, "client-1")
	c.Update(1, Frame{X: 11, Y: 21, Width: 800, Height: 600}, "client-1")
	f, _, _ := c.Lookup(1)
	require.Equal(t, 10, f.X, "a ≤2px drift should not replace the cached frame")
}

func TestStreamCacheRemove(t *testing.T) {
	c := NewStreamCache()
	c.Update(1, Frame{Width: 100, Height: 100}, "client-1")
	c.Remove(1)
	_, _, ok := c.Lookup(1)
	require.False(t, ok)
}
