//go:build darwin && cgo

package input

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework ApplicationServices

#include <ApplicationServices/ApplicationServices.h>

static void mirage_mouse_move(double x, double y) {
	CGEventRef e = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, CGPointMake(x, y), kCGMouseButtonLeft);
	CGEventPost(kCGHIDEventTap, e);
	CFRelease(e);
}

static void mirage_mouse_button(double x, double y, int button, int down) {
	CGEventType type;
	CGMouseButton cgButton = kCGMouseButtonLeft;
	switch (button) {
	case 1:
		cgButton = kCGMouseButtonRight;
		type = down ? kCGEventRightMouseDown : kCGEventRightMouseUp;
		break;
	case 2:
		cgButton = kCGMouseButtonCenter;
		type = down ? kCGEventOtherMouseDown : kCGEventOtherMouseUp;
		break;
	default:
		type = down ? kCGEventLeftMouseDown : kCGEventLeftMouseUp;
		break;
	}
	CGEventRef e = CGEventCreateMouseEvent(NULL, type, CGPointMake(x, y), cgButton);
	CGEventPost(kCGHIDEventTap, e);
	CFRelease(e);
}

static void mirage_warp_cursor(double x, double y) {
	CGWarpMouseCursorPosition(CGPointMake(x, y));
	CGAssociateMouseAndMouseCursorPosition(true);
}

static void mirage_scroll(int dx, int dy) {
	CGEventRef e = CGEventCreateScrollWheelEvent(NULL, kCGScrollEventUnitPixel, 2, dy, dx);
	CGEventPost(kCGHIDEventTap, e);
	CFRelease(e);
}

static void mirage_key(int keyCode, int down) {
	CGEventRef e = CGEventCreateKeyboardEvent(NULL, (CGKeyCode)keyCode, down);
	CGEventPost(kCGHIDEventTap, e);
	CFRelease(e);
}

static void mirage_flags_changed(unsigned long long flags) {
	CGEventRef e = CGEventCreate(NULL);
	CGEventSetType(e, kCGEventFlagsChanged);
	CGEventSetFlags(e, (CGEventFlags)flags);
	CGEventPost(kCGHIDEventTap, e);
	CFRelease(e);
}

static unsigned long long mirage_query_modifier_state() {
	return (unsigned long long)CGEventSourceFlagsState(kCGEventSourceStateHIDSystemState);
}
*/
import "C"

// darwinInjector synthesizes input via CoreGraphics CGEvent, posted at
// the HID event tap level so remote input reaches system UIs (and the
// login window / lock screen) the session event tap would reject.
// Grounded on the cgo calling convention in
// other_examples/f2b9e4fe_..._macos-display.go (CFRelease discipline,
// C.<Type> parameter marshaling) applied to ApplicationServices'
// CGEvent APIs instead of CGDisplayStream.
type darwinInjector struct{}

func NewInjector() Injector { return &darwinInjector{} }

func (d *darwinInjector) MouseMove(x, y int) error {
	C.mirage_mouse_move(C.double(x), C.double(y))
	return nil
}

func (d *darwinInjector) MouseDown(x, y int, button MouseButton) error {
	C.mirage_mouse_button(C.double(x), C.double(y), C.int(button), 1)
	return nil
}

func (d *darwinInjector) MouseUp(x, y int, button MouseButton) error {
	C.mirage_mouse_button(C.double(x), C.double(y), C.int(button), 0)
	return nil
}

func (d *darwinInjector) WarpCursor(x, y int) error {
	C.mirage_warp_cursor(C.double(x), C.double(y))
	return nil
}

func (d *darwinInjector) Scroll(dxPixels, dyPixels int) error {
	C.mirage_scroll(C.int(dxPixels), C.int(dyPixels))
	return nil
}

func (d *darwinInjector) ScrollRaw(dx, dy float64) error {
	C.mirage_scroll(C.int(dx), C.int(dy))
	return nil
}

func (d *darwinInjector) KeyDown(keyCode int) error {
	C.mirage_key(C.int(keyCode), 1)
	return nil
}

func (d *darwinInjector) KeyUp(keyCode int) error {
	C.mirage_key(C.int(keyCode), 0)
	return nil
}

func (d *darwinInjector) FlagsChanged(flags ModifierFlags) error {
	C.mirage_flags_changed(C.ulonglong(flags))
	return nil
}

func (d *darwinInjector) QueryModifierState() (ModifierFlags, error) {
	raw := uint64(C.mirage_query_modifier_state())
	return ModifierFlags(raw), nil
}
