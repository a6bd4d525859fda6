package input

import "errors"

var ErrNotSupported = errors.New("input: injection not supported on this build")

// ModifierFlags mirrors the OS's flags-changed bitmask; bit assignment
// matches wire.InputEvent.Modifiers so no translation is needed between
// the wire and the injector.
type ModifierFlags uint32

const (
	ModShift   ModifierFlags = 0x00020000 // kCGEventFlagMaskShift
	ModControl ModifierFlags = 0x00040000 // kCGEventFlagMaskControl
	ModOption  ModifierFlags = 0x00080000 // kCGEventFlagMaskAlternate
	ModCommand ModifierFlags = 0x00100000 // kCGEventFlagMaskCommand
)

type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonRight
	ButtonMiddle
)

// Injector is the OS collaborator this package needs: synthesize
// mouse/keyboard/gesture-adjacent events and query live modifier state.
// Narrowed to primitive ops since batching/lerp/translation live in
// this package instead of the platform layer.
type Injector interface {
	MouseMove(x, y int) error
	MouseDown(x, y int, button MouseButton) error
	MouseUp(x, y int, button MouseButton) error
	WarpCursor(x, y int) error
	Scroll(dxPixels, dyPixels int) error
	ScrollRaw(dx, dy float64) error // phase began/ended/cancelled: inject the raw event untouched
	KeyDown(keyCode int) error
	KeyUp(keyCode int) error
	FlagsChanged(flags ModifierFlags) error
	QueryModifierState() (ModifierFlags, error)
}
