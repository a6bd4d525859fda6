package input

import (
	"testing"
	"time"

	"github.com/mirage/hostcore/internal/wire"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, *fakeInjector) {
	t.Helper()
	fi := &fakeInjector{}
	cache := NewStreamCache()
	c := NewController(cache)
	c.RegisterStream(1, fi)
	cache.Update(1, Frame{X: 0, Y: 0, Width: 1000, Height: 800}, "client-1")
	t.Cleanup(func() { c.UnregisterStream(1) })
	return c, fi
}

func TestHandleEventUnknownStreamErrors(t *testing.T) {
	c := NewController(NewStreamCache())
	err := c.HandleEvent(wire.InputEvent{StreamID: 99, Type: wire.InputMouseMove})
	require.ErrorIs(t, err, ErrUnknownStream)
}

func TestHandleEventMouseDownSuppressedInTrafficLight(t *testing.T) {
	c, fi := newTestController(t)
	err := c.HandleEvent(wire.InputEvent{StreamID: 1, Type: wire.InputMouseDown, X: 0.01, Y: 0.01})
	require.NoError(t, err)
	require.Empty(t, fi.buttons, "click inside the 80x30 traffic-light region must be suppressed")
}

func TestHandleEventMouseDownOutsideTrafficLightWarpsAndClicks(t *testing.T) {
	c, fi := newTestController(t)
	err := c.HandleEvent(wire.InputEvent{StreamID: 1, Type: wire.InputMouseDown, X: 0.5, Y: 0.5, Button: 0})
	require.NoError(t, err)
	require.Len(t, fi.warps, 1)
	require.Len(t, fi.buttons, 1)
	require.True(t, fi.buttons[0].down)
}

func TestHandleEventMouseMoveInterpolatesTowardTarget(t *testing.T) {
	c, fi := newTestController(t)
	err := c.HandleEvent(wire.InputEvent{StreamID: 1, Type: wire.InputMouseMove, X: 1, Y: 1})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		if fi.moveCount() == 0 {
			return false
		}
		last := fi.lastMove()
		return last.x == 1000 && last.y == 800
	}, time.Second, time.Millisecond)
}

func TestHandleEventKeyDownUp(t *testing.T) {
	c, fi := newTestController(t)
	require.NoError(t, c.HandleEvent(wire.InputEvent{StreamID: 1, Type: wire.InputKeyDown, KeyCode: 12}))
	require.NoError(t, c.HandleEvent(wire.InputEvent{StreamID: 1, Type: wire.InputKeyUp, KeyCode: 12}))
	require.Equal(t, []keyCall{{12, true}, {12, false}}, fi.keys)
}

func TestUnregisterStreamClearsCacheAndModifiers(t *testing.T) {
	fi := &fakeInjector{}
	cache := NewStreamCache()
	c := NewController(cache)
	c.RegisterStream(2, fi)
	cache.Update(2, Frame{Width: 10, Height: 10}, "client-1")

	c.UnregisterStream(2)
	_, _, ok := cache.Lookup(2)
	require.False(t, ok)

	err := c.HandleEvent(wire.InputEvent{StreamID: 2, Type: wire.InputMouseMove})
	require.ErrorIs(t, err, ErrUnknownStream)
}
