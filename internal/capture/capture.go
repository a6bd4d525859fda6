// Package capture defines the screen-capture collaborator contract used
// by streamctx, in a composable-interface style trimmed to the
// macOS-only surface this host needs: Windows-specific TextureProvider,
// DesktopSwitchNotifier, and FrameChangeHint (DXGI AccumulatedFrames)
// collaborator interfaces are dropped since there is no DXGI/GPU-texture
// path on this platform.
package capture

import (
	"errors"
	"image"
)

// Source captures frames from a single display.
type Source interface {
	// Capture returns the full current frame. Returns nil, nil when no
	// new frame is available and the caller should skip encoding.
	Capture() (*image.RGBA, error)
	// CaptureRegion captures a sub-rectangle of the display.
	CaptureRegion(x, y, width, height int) (*image.RGBA, error)
	// Bounds returns the source's current pixel dimensions.
	Bounds() (width, height int, err error)
	Close() error
}

// Config carries the requested display and capture scale. The darwin
// source does not read either field: it always captures the first
// display (index 0).
type Config struct {
	DisplayID   string
	ScaleFactor float64
}

func DefaultConfig() Config {
	return Config{ScaleFactor: 1.0}
}

// BGRAProvider is implemented by sources producing BGRA pixel data (stored
// in image.RGBA.Pix) so the encoder can skip the BGRA→RGBA conversion and
// go directly to BGRA→NV12/I420.
type BGRAProvider interface {
	IsBGRA() bool
}

// TightLoopHint is implemented by sources that internally block waiting
// for the next frame (e.g. a ScreenCaptureKit stream callback bridged
// through a semaphore), letting the caller skip a ticker and just loop.
type TightLoopHint interface {
	TightLoop() bool
}

// CursorProvider is implemented by sources that can report the system
// cursor position independent of frame cadence, for component L's
// high-frequency cursor-position channel.
type CursorProvider interface {
	CursorPosition() (x, y int32, visible bool)
}

var (
	ErrNotSupported     = errors.New("capture: not supported on this platform")
	ErrPermissionDenied = errors.New("capture: screen recording permission denied")
	ErrDisplayNotFound  = errors.New("capture: display not found")
)

// New creates the platform capture source.
func New(cfg Config) (Source, error) {
	return newPlatformSource(cfg)
}
