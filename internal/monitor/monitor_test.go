package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mirage/hostcore/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeCursorShape struct {
	mu    sync.Mutex
	image []byte
	hx    float64
	hy    float64
	err   error
}

func (f *fakeCursorShape) CursorShape() ([]byte, float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.image, f.hx, f.hy, f.err
}

func (f *fakeCursorShape) set(image []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = image
}

type fakeCursorPosition struct {
	mu      sync.Mutex
	x, y    int32
	visible bool
}

func (f *fakeCursorPosition) CursorPosition() (int32, int32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.x, f.y, f.visible
}

type fakeRateController struct {
	mu          sync.Mutex
	fps         []int
	keyframeReq int
	failNext    bool
}

func (f *fakeRateController) UpdateFrameRate(fps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("boom")
	}
	f.fps = append(f.fps, fps)
	return nil
}

func (f *fakeRateController) RequestKeyframe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyframeReq++
}

func (f *fakeRateController) snapshot() ([]int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.fps...), f.keyframeReq
}

type fakeFrontmost struct {
	mu        sync.Mutex
	frontmost bool
}

func (f *fakeFrontmost) IsFrontmost(windowID uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frontmost
}

func (f *fakeFrontmost) set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frontmost = v
}

type fakeMenuProvider struct {
	mu    sync.Mutex
	menus []wire.MenuItem
}

func (f *fakeMenuProvider) MenuTree() ([]wire.MenuItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.menus, nil
}

func (f *fakeMenuProvider) set(menus []wire.MenuItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menus = menus
}

type fakeMenuExecutor struct {
	lastAction string
	fail       bool
}

func (f *fakeMenuExecutor) ExecuteMenuAction(actionID string) error {
	f.lastAction = actionID
	if f.fail {
		return errors.New("menu action failed")
	}
	return nil
}

func TestCursorShapeChangeEmitsUpdate(t *testing.T) {
	shape := &fakeCursorShape{image: []byte("frame-1")}

	var got [][]byte
	var mu sync.Mutex
	c := NewController(Callbacks{
		OnCursorUpdate: func(streamID uint16, imagePNG []byte, hx, hy float64) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, imagePNG)
		},
	})
	c.RegisterStream(1, StreamConfig{CursorShape: shape})
	defer c.UnregisterStream(1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, time.Second, 2*time.Millisecond)

	shape.set([]byte("frame-2"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, time.Second, 2*time.Millisecond)
}

func TestCursorPositionOnlyPolledForDesktopStream(t *testing.T) {
	pos := &fakeCursorPosition{x: 10, y: 20, visible: true}

	var calls int
	var mu sync.Mutex
	c := NewController(Callbacks{
		OnCursorPositionUpdate: func(streamID uint16, x, y int, visible bool) {
			mu.Lock()
			defer mu.Unlock()
			calls++
		},
	})
	c.RegisterStream(1, StreamConfig{DesktopStream: false, CursorPosition: pos})
	defer c.UnregisterStream(1)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	require.Zero(t, calls)
	mu.Unlock()

	c.RegisterStream(2, StreamConfig{DesktopStream: true, CursorPosition: pos})
	defer c.UnregisterStream(2)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, time.Second, 5*time.Millisecond)
}

func TestActivityThrottleOnBackgroundAndRestoreOnFocus(t *testing.T) {
	front := &fakeFrontmost{frontmost: true}
	rate := &fakeRateController{}

	c := NewController(Callbacks{})
	c.RegisterStream(1, StreamConfig{
		ConfiguredFPS: 30,
		WindowID:      7,
		Frontmost:     front,
		Rate:          rate,
	})
	defer c.UnregisterStream(1)

	front.set(false)
	require.Eventually(t, func() bool {
		fps, _ := rate.snapshot()
		return len(fps) == 1 && fps[0] == BackgroundFPS
	}, 2*time.Second, 5*time.Millisecond)

	front.set(true)
	require.Eventually(t, func() bool {
		fps, kf := rate.snapshot()
		return len(fps) == 2 && fps[1] == 30 && kf == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMenuTreeDiffEmitsOnlyOnChange(t *testing.T) {
	menu := &fakeMenuProvider{menus: []wire.MenuItem{{Title: "File", Enabled: true}}}

	var updates int
	var mu sync.Mutex
	c := NewController(Callbacks{
		OnMenuBarUpdate: func(streamID uint16, menus []wire.MenuItem) {
			mu.Lock()
			defer mu.Unlock()
			updates++
		},
	})
	c.RegisterStream(1, StreamConfig{Menu: menu})
	defer c.UnregisterStream(1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return updates == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, updates)
	mu.Unlock()

	menu.set([]wire.MenuItem{{Title: "File", Enabled: false}})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return updates == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExecuteMenuActionSuccessAndFailure(t *testing.T) {
	exec := &fakeMenuExecutor{}
	c := NewController(Callbacks{})
	c.RegisterStream(1, StreamConfig{MenuExecutor: exec})
	defer c.UnregisterStream(1)

	result := c.ExecuteMenuAction(1, "action-1")
	require.True(t, result.Success)
	require.Equal(t, "action-1", exec.lastAction)

	exec.fail = true
	result = c.ExecuteMenuAction(1, "action-2")
	require.False(t, result.Success)
}

func TestExecuteMenuActionUnknownStreamReturnsFailure(t *testing.T) {
	c := NewController(Callbacks{})
	result := c.ExecuteMenuAction(99, "action-1")
	require.False(t, result.Success)
}

func TestUnregisterStreamStopsPolling(t *testing.T) {
	shape := &fakeCursorShape{image: []byte("frame-1")}
	var got int
	var mu sync.Mutex
	c := NewController(Callbacks{
		OnCursorUpdate: func(streamID uint16, imagePNG []byte, hx, hy float64) {
			mu.Lock()
			defer mu.Unlock()
			got++
		},
	})
	c.RegisterStream(1, StreamConfig{CursorShape: shape})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got >= 1
	}, time.Second, 2*time.Millisecond)

	c.UnregisterStream(1)
	mu.Lock()
	before := got
	mu.Unlock()

	shape.set([]byte("frame-2"))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, before, got)
}
