package input

import "sync"

type moveCall struct{ x, y int }
type buttonCall struct {
	x, y   int
	button MouseButton
	down   bool
}
type scrollCall struct{ dx, dy int }
type keyCall struct {
	code int
	down bool
}

type fakeInjector struct {
	mu          sync.Mutex
	moves       []moveCall
	warps       []moveCall
	buttons     []buttonCall
	scrolls     []scrollCall
	rawScrolls  []scrollCall
	keys        []keyCall
	flagsCalls  []ModifierFlags
	osModifiers ModifierFlags
}

func (f *fakeInjector) MouseMove(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, moveCall{x, y})
	return nil
}

func (f *fakeInjector) MouseDown(x, y int, button MouseButton) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons = append(f.buttons, buttonCall{x, y, button, true})
	return nil
}

func (f *fakeInjector) MouseUp(x, y int, button MouseButton) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons = append(f.buttons, buttonCall{x, y, button, false})
	return nil
}

func (f *fakeInjector) WarpCursor(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warps = append(f.warps, moveCall{x, y})
	return nil
}

func (f *fakeInjector) Scroll(dx, dy int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls = append(f.scrolls, scrollCall{dx, dy})
	return nil
}

func (f *fakeInjector) ScrollRaw(dx, dy float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawScrolls = append(f.rawScrolls, scrollCall{int(dx), int(dy)})
	return nil
}

func (f *fakeInjector) KeyDown(code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, keyCall{code, true})
	return nil
}

func (f *fakeInjector) KeyUp(code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, keyCall{code, false})
	return nil
}

func (f *fakeInjector) FlagsChanged(flags ModifierFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagsCalls = append(f.flagsCalls, flags)
	return nil
}

func (f *fakeInjector) QueryModifierState() (ModifierFlags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.osModifiers, nil
}

func (f *fakeInjector) moveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moves)
}

func (f *fakeInjector) lastMove() moveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moves[len(f.moves)-1]
}
