//go:build !darwin || !cgo

package input

// NewInjector returns a stub that reports ErrNotSupported for every
// call; CGEvent injection requires darwin+cgo.
func NewInjector() Injector { return &stubInjector{} }

type stubInjector struct{}

func (s *stubInjector) MouseMove(x, y int) error                    { return ErrNotSupported }
func (s *stubInjector) MouseDown(x, y int, button MouseButton) error { return ErrNotSupported }
func (s *stubInjector) MouseUp(x, y int, button MouseButton) error   { return ErrNotSupported }
func (s *stubInjector) WarpCursor(x, y int) error                    { return ErrNotSupported }
func (s *stubInjector) Scroll(dxPixels, dyPixels int) error          { return ErrNotSupported }
func (s *stubInjector) ScrollRaw(dx, dy float64) error               { return ErrNotSupported }
func (s *stubInjector) KeyDown(keyCode int) error                    { return ErrNotSupported }
func (s *stubInjector) KeyUp(keyCode int) error                      { return ErrNotSupported }
func (s *stubInjector) FlagsChanged(flags ModifierFlags) error       { return ErrNotSupported }
func (s *stubInjector) QueryModifierState() (ModifierFlags, error)   { return 0, ErrNotSupported }
