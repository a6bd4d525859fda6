// Package monitor implements per-stream cursor-shape/position polling,
// window-activity throttling, and menu-bar snapshot/diff. Cursor
// polling and the activity-triggered rate change use the same
// ticker-driven poll-loop idiom as a periodic session refresh; the
// menu-bar tree-diff follows the same poll-and-diff idiom applied to
// snapshots taken between polls.
package monitor

import (
	"bytes"
	"sync"
	"time"

	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/wire"
)

var log = logging.L("monitor")

const (
	// CursorPollInterval polls cursor shape/position at 30 Hz.
	CursorPollInterval = time.Second / 30
	// ActivityPollInterval checks window frontmost state.
	ActivityPollInterval = 500 * time.Millisecond
	// BackgroundFPS is the throttled frame rate while a stream's app is not frontmost.
	BackgroundFPS = 1
	// MenuPollInterval polls the frontmost app's menu tree for changes.
	MenuPollInterval = time.Second
)

// CursorShapeSource reports the current cursor image when it changes shape.
type CursorShapeSource interface {
	// CursorShape returns a PNG-encoded cursor image and its hotspot in
	// image-local coordinates. Callers diff the returned bytes against the
	// previous poll; implementations may return the same slice unchanged.
	CursorShape() (imagePNG []byte, hotspotX, hotspotY float64, err error)
}

// CursorPositionSource reports the system cursor's screen position,
// independent of frame cadence. Satisfied structurally by
// internal/capture.CursorProvider without importing it.
type CursorPositionSource interface {
	CursorPosition() (x, y int32, visible bool)
}

// RateController is the subset of internal/streamctx.StreamContext the
// activity monitor needs to throttle and restore a stream's frame rate.
// StreamContext satisfies this interface structurally.
type RateController interface {
	UpdateFrameRate(fps int) error
	RequestKeyframe()
}

// FrontmostQuerier reports whether a given window currently owns input
// focus, used to drive the 1 fps background throttle.
type FrontmostQuerier interface {
	IsFrontmost(windowID uint32) bool
}

// MenuProvider snapshots the frontmost app's menu bar as a tree.
type MenuProvider interface {
	MenuTree() ([]wire.MenuItem, error)
}

// MenuActionExecutor runs a menuActionRequest against the accessibility
// hierarchy.
type MenuActionExecutor interface {
	ExecuteMenuAction(actionID string) error
}

// Callbacks delivers monitoring output to the owning router/orchestrator,
// matching the Callbacks pattern internal/streamctx uses to decouple this
// package from any particular transport.Conn.
type Callbacks struct {
	OnCursorUpdate         func(streamID uint16, imagePNG []byte, hotspotX, hotspotY float64)
	OnCursorPositionUpdate func(streamID uint16, x, y int, visible bool)
	OnMenuBarUpdate        func(streamID uint16, menus []wire.MenuItem)
}

// StreamConfig wires one stream's collaborators into the monitor. Nil
// fields disable the corresponding poll (e.g. a mirrored desktop stream has
// no single WindowID and leaves Frontmost nil).
type StreamConfig struct {
	ConfiguredFPS int
	DesktopStream bool
	WindowID      uint32

	CursorShape    CursorShapeSource
	CursorPosition CursorPositionSource
	Rate           RateController
	Frontmost      FrontmostQuerier
	Menu           MenuProvider
	MenuExecutor   MenuActionExecutor
}

// Controller owns one polling goroutine (streamMonitor.run) per
// registered stream.
type Controller struct {
	callbacks Callbacks

	mu      sync.Mutex
	streams map[uint16]*streamMonitor
}

func NewController(callbacks Callbacks) *Controller {
	return &Controller{
		callbacks: callbacks,
		streams:   make(map[uint16]*streamMonitor),
	}
}

// RegisterStream starts polling for streamID. Re-registering an already
// registered stream replaces it, stopping the old poll loop first.
func (c *Controller) RegisterStream(streamID uint16, cfg StreamConfig) {
	c.mu.Lock()
	if existing, ok := c.streams[streamID]; ok {
		c.mu.Unlock()
		existing.stop()
		c.mu.Lock()
	}

	sm := newStreamMonitor(streamID, cfg, c.callbacks)
	c.streams[streamID] = sm
	c.mu.Unlock()

	sm.start()
}

func (c *Controller) UnregisterStream(streamID uint16) {
	c.mu.Lock()
	sm, ok := c.streams[streamID]
	delete(c.streams, streamID)
	c.mu.Unlock()
	if ok {
		sm.stop()
	}
}

// ExecuteMenuAction runs actionID against streamID's menu executor and
// reports the outcome as a wire.MenuActionResult ready to send back.
func (c *Controller) ExecuteMenuAction(streamID uint16, actionID string) wire.MenuActionResult {
	c.mu.Lock()
	sm, ok := c.streams[streamID]
	c.mu.Unlock()

	result := wire.MenuActionResult{StreamID: streamID, ActionID: actionID}
	if !ok || sm.cfg.MenuExecutor == nil {
		return result
	}
	if err := sm.cfg.MenuExecutor.ExecuteMenuAction(actionID); err != nil {
		log.Warn("menu action failed", "streamId", streamID, "actionId", actionID, "error", err)
		return result
	}
	result.Success = true
	return result
}

type streamMonitor struct {
	streamID  uint16
	cfg       StreamConfig
	callbacks Callbacks

	mu            sync.Mutex
	lastCursor    []byte
	lastFrontmost bool
	lastMenus     []wire.MenuItem

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newStreamMonitor(streamID uint16, cfg StreamConfig, callbacks Callbacks) *streamMonitor {
	return &streamMonitor{
		streamID:      streamID,
		cfg:           cfg,
		callbacks:     callbacks,
		lastFrontmost: true, // a stream starts out assumed-frontmost; no throttle until the first background transition
		stopCh:        make(chan struct{}),
	}
}

func (sm *streamMonitor) start() {
	sm.wg.Add(1)
	go sm.run()
}

func (sm *streamMonitor) stop() {
	close(sm.stopCh)
	sm.wg.Wait()
}

func (sm *streamMonitor) run() {
	defer sm.wg.Done()

	cursorTicker := time.NewTicker(CursorPollInterval)
	defer cursorTicker.Stop()
	activityTicker := time.NewTicker(ActivityPollInterval)
	defer activityTicker.Stop()
	menuTicker := time.NewTicker(MenuPollInterval)
	defer menuTicker.Stop()

	for {
		select {
		case <-sm.stopCh:
			return
		case <-cursorTicker.C:
			sm.pollCursor()
		case <-activityTicker.C:
			sm.pollActivity()
		case <-menuTicker.C:
			sm.pollMenu()
		}
	}
}

func (sm *streamMonitor) pollCursor() {
	if cs := sm.cfg.CursorShape; cs != nil {
		imagePNG, hx, hy, err := cs.CursorShape()
		if err != nil {
			log.Warn("cursor shape poll failed", "streamId", sm.streamID, "error", err)
		} else {
			sm.mu.Lock()
			changed := !bytes.Equal(sm.lastCursor, imagePNG)
			if changed {
				sm.lastCursor = imagePNG
			}
			sm.mu.Unlock()
			if changed && sm.callbacks.OnCursorUpdate != nil {
				sm.callbacks.OnCursorUpdate(sm.streamID, imagePNG, hx, hy)
			}
		}
	}

	if sm.cfg.DesktopStream && sm.cfg.CursorPosition != nil {
		x, y, visible := sm.cfg.CursorPosition.CursorPosition()
		if sm.callbacks.OnCursorPositionUpdate != nil {
			sm.callbacks.OnCursorPositionUpdate(sm.streamID, int(x), int(y), visible)
		}
	}
}

func (sm *streamMonitor) pollActivity() {
	if sm.cfg.Frontmost == nil || sm.cfg.Rate == nil {
		return
	}
	frontmost := sm.cfg.Frontmost.IsFrontmost(sm.cfg.WindowID)

	sm.mu.Lock()
	wasFrontmost := sm.lastFrontmost
	sm.lastFrontmost = frontmost
	sm.mu.Unlock()

	if wasFrontmost == frontmost {
		return
	}

	if frontmost {
		fps := sm.cfg.ConfiguredFPS
		if fps <= 0 {
			fps = 30
		}
		if err := sm.cfg.Rate.UpdateFrameRate(fps); err != nil {
			log.Warn("restore frame rate failed", "streamId", sm.streamID, "error", err)
		}
		sm.cfg.Rate.RequestKeyframe()
	} else {
		if err := sm.cfg.Rate.UpdateFrameRate(BackgroundFPS); err != nil {
			log.Warn("throttle frame rate failed", "streamId", sm.streamID, "error", err)
		}
	}
}

func (sm *streamMonitor) pollMenu() {
	if sm.cfg.Menu == nil {
		return
	}
	menus, err := sm.cfg.Menu.MenuTree()
	if err != nil {
		log.Warn("menu tree poll failed", "streamId", sm.streamID, "error", err)
		return
	}

	sm.mu.Lock()
	changed := !equalMenus(sm.lastMenus, menus)
	if changed {
		sm.lastMenus = menus
	}
	sm.mu.Unlock()

	if changed && sm.callbacks.OnMenuBarUpdate != nil {
		sm.callbacks.OnMenuBarUpdate(sm.streamID, menus)
	}
}

func equalMenus(a, b []wire.MenuItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Title != b[i].Title ||
			a[i].Enabled != b[i].Enabled ||
			a[i].Checked != b[i].Checked ||
			a[i].ActionID != b[i].ActionID {
			return false
		}
		if !equalMenus(a[i].Children, b[i].Children) {
			return false
		}
	}
	return true
}
