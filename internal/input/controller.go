package input

import (
	"errors"
	"sync"

	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/wire"
)

var log = logging.L("input")

var ErrUnknownStream = errors.New("input: no frame cached for stream")

// Traffic-light exclusion: the 80×30 region at a window's top-left
// corner containing the standard close/minimize/zoom controls.
const (
	trafficLightWidth  = 80
	trafficLightHeight = 30
)

// macOS ANSI virtual keycodes for the generic modifier keys, used to
// translate a flagsChanged event's specific keyCode into the bit it
// corresponds to.
const (
	keyCodeLShift   = 56
	keyCodeRShift   = 60
	keyCodeLControl = 59
	keyCodeRControl = 62
	keyCodeLOption  = 58
	keyCodeROption  = 61
	keyCodeLCommand = 55
	keyCodeRCommand = 54
)

func bitForKeyCode(keyCode int) ModifierFlags {
	switch keyCode {
	case keyCodeLShift, keyCodeRShift:
		return ModShift
	case keyCodeLControl, keyCodeRControl:
		return ModControl
	case keyCodeLOption, keyCodeROption:
		return ModOption
	case keyCodeLCommand, keyCodeRCommand:
		return ModCommand
	default:
		return 0
	}
}

// streamInput bundles one stream's smoothing/translation state.
type streamInput struct {
	injector  Injector
	pointer   *PointerController
	scroll    *ScrollController
	modifiers *ModifierTracker
	gesture   *GestureTranslator
}

// Controller dispatches decoded wire.InputEvent messages (already split
// onto the hot path by the router) to per-stream smoothing/translation
// pipelines, enforcing the traffic-light suppression and
// normalized-to-pixel mapping invariants. The dispatch switch is
// generalized from direct injection to a per-stream pipeline.
type Controller struct {
	cache *StreamCache

	mu      sync.Mutex
	streams map[uint16]*streamInput
}

func NewController(cache *StreamCache) *Controller {
	return &Controller{cache: cache, streams: make(map[uint16]*streamInput)}
}

// RegisterStream wires a fresh injector (and its derived smoothing
// pipelines) for streamID; called by the stream lifecycle when a
// stream starts.
func (c *Controller) RegisterStream(streamID uint16, injector Injector) {
	modifiers := NewModifierTracker(injector)
	modifiers.Start()

	si := &streamInput{
		injector:  injector,
		pointer:   NewPointerController(injector, DefaultPointerConfig()),
		scroll:    NewScrollController(injector, DefaultScrollConfig()),
		modifiers: modifiers,
		gesture:   NewGestureTranslator(injector, modifiers),
	}

	c.mu.Lock()
	c.streams[streamID] = si
	c.mu.Unlock()
}

// UnregisterStream tears down streamID's pipelines, unconditionally
// releasing any held modifier on stream end.
func (c *Controller) UnregisterStream(streamID uint16) {
	c.mu.Lock()
	si, ok := c.streams[streamID]
	delete(c.streams, streamID)
	c.mu.Unlock()
	if !ok {
		return
	}
	si.pointer.Stop()
	si.scroll.reset()
	si.modifiers.Stop()
	c.cache.Remove(streamID)
}

// ClearAllModifiers releases every stream's held modifiers, called on
// session (lock/unlock) transitions.
func (c *Controller) ClearAllModifiers() {
	c.mu.Lock()
	streams := make([]*streamInput, 0, len(c.streams))
	for _, si := range c.streams {
		streams = append(streams, si)
	}
	c.mu.Unlock()
	for _, si := range streams {
		si.modifiers.ClearAll()
	}
}

// HandleEvent processes one hot-path input event. Safe to call from the
// router's dedicated input-dispatch goroutine without blocking the
// control plane.
func (c *Controller) HandleEvent(event wire.InputEvent) error {
	c.mu.Lock()
	si, ok := c.streams[event.StreamID]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownStream
	}

	frame, _, ok := c.cache.Lookup(event.StreamID)
	if !ok {
		return ErrUnknownStream
	}

	switch event.Type {
	case wire.InputMouseMove, wire.InputMouseDrag:
		px, py := normalizedToPixel(frame, event.X, event.Y)
		si.pointer.SetTarget(float64(px), float64(py))

	case wire.InputMouseDown:
		px, py := normalizedToPixel(frame, event.X, event.Y)
		if inTrafficLight(px-frame.X, py-frame.Y) {
			return nil
		}
		si.pointer.WarpTo(px, py)
		return si.injector.MouseDown(px, py, MouseButton(event.Button))

	case wire.InputMouseUp:
		px, py := normalizedToPixel(frame, event.X, event.Y)
		return si.injector.MouseUp(px, py, MouseButton(event.Button))

	case wire.InputScroll:
		si.scroll.HandleDelta(event.DeltaX, event.DeltaY, event.Phase)

	case wire.InputKeyDown:
		return si.injector.KeyDown(event.KeyCode)

	case wire.InputKeyUp:
		return si.injector.KeyUp(event.KeyCode)

	case wire.InputFlagsChanged:
		si.modifiers.HandleFlagsChanged(event.KeyCode, bitForKeyCode(event.KeyCode), ModifierFlags(event.Modifiers))

	case wire.InputMagnify:
		si.gesture.HandleMagnify(event.Magnitude, event.Phase)

	case wire.InputRotate:
		si.gesture.HandleRotate(event.Magnitude, event.Phase)

	default:
		log.Warn("unhandled input event type", "type", event.Type)
	}
	return nil
}

func normalizedToPixel(frame Frame, x, y float64) (int, int) {
	return frame.X + int(x*float64(frame.Width)), frame.Y + int(y*float64(frame.Height))
}

func inTrafficLight(localX, localY int) bool {
	return localX >= 0 && localX < trafficLightWidth && localY >= 0 && localY < trafficLightHeight
}
