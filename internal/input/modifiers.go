package input

import (
	"sync"
	"time"
)

// ModifierStaleness is the per-modifier staleness watchdog: a held
// modifier idle longer than this is assumed stuck and released.
const ModifierStaleness = 500 * time.Millisecond

const modifierPollInterval = 200 * time.Millisecond

type heldKey struct {
	flag   ModifierFlags
	lastAt time.Time
}

// ModifierTracker maintains the last-announced modifier bitmask and the
// set of currently-held virtual key codes, clearing any key a staleness
// watchdog finds idle for ModifierStaleness and reconciling against a
// periodic OS modifier-state poll. Built on a per-key dispatch
// generalized with staleness tracking, since direct injection alone
// carries no state.
type ModifierTracker struct {
	injector Injector

	mu       sync.Mutex
	held     map[int]heldKey // keyCode -> flag bit + last-seen
	announced ModifierFlags

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewModifierTracker(injector Injector) *ModifierTracker {
	return &ModifierTracker{injector: injector, held: make(map[int]heldKey)}
}

// Start begins the staleness-watchdog + OS-poll loop; call once per
// stream.
func (m *ModifierTracker) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(stop)
}

func (m *ModifierTracker) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
		m.wg.Wait()
	}
	m.ClearAll()
}

func (m *ModifierTracker) loop(stop chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(modifierPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sweepStale()
			m.reconcileOS()
		}
	}
}

// HandleFlagsChanged processes one flagsChanged event for keyCode,
// whose cumulative resultant flags are newFlags. Down/up is inferred
// from whether keyCode's bit newly appears or disappears.
func (m *ModifierTracker) HandleFlagsChanged(keyCode int, bit ModifierFlags, newFlags ModifierFlags) {
	m.mu.Lock()
	_, wasHeld := m.held[keyCode]
	isHeld := newFlags&bit != 0
	now := time.Now()

	switch {
	case isHeld:
		m.held[keyCode] = heldKey{flag: bit, lastAt: now}
	case wasHeld:
		delete(m.held, keyCode)
	}
	m.announced = newFlags
	m.mu.Unlock()

	if isHeld && !wasHeld {
		m.injector.KeyDown(keyCode)
	} else if !isHeld && wasHeld {
		m.injector.KeyUp(keyCode)
	}
	m.injector.FlagsChanged(newFlags)
}

// CurrentFlags returns the last-announced cumulative modifier bitmask,
// used by the gesture translator to compose a synthetic Cmd-chord
// without clobbering whatever the user already holds.
func (m *ModifierTracker) CurrentFlags() ModifierFlags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.announced
}

// ClearAll unconditionally releases every held modifier and injects a
// zero flagsChanged, used on session transitions and stream end.
func (m *ModifierTracker) ClearAll() {
	m.mu.Lock()
	toRelease := make([]int, 0, len(m.held))
	for code := range m.held {
		toRelease = append(toRelease, code)
	}
	m.held = make(map[int]heldKey)
	m.announced = 0
	m.mu.Unlock()

	for _, code := range toRelease {
		m.injector.KeyUp(code)
	}
	m.injector.FlagsChanged(0)
}

func (m *ModifierTracker) sweepStale() {
	now := time.Now()
	m.mu.Lock()
	var stale []int
	for code, hk := range m.held {
		if now.Sub(hk.lastAt) >= ModifierStaleness {
			stale = append(stale, code)
		}
	}
	for _, code := range stale {
		delete(m.held, code)
	}
	var remaining ModifierFlags
	for _, hk := range m.held {
		remaining |= hk.flag
	}
	if len(stale) > 0 {
		m.announced = remaining
	}
	m.mu.Unlock()

	for _, code := range stale {
		m.injector.KeyUp(code)
	}
	if len(stale) > 0 {
		m.injector.FlagsChanged(remaining)
	}
}

// reconcileOS polls the live OS modifier state and force-clears any
// flag the OS reports that this tracker does not, since the tracker's
// held set is the source of truth for what Mirage itself pressed.
func (m *ModifierTracker) reconcileOS() {
	osFlags, err := m.injector.QueryModifierState()
	if err != nil {
		return
	}
	m.mu.Lock()
	tracked := m.announced
	m.mu.Unlock()

	if extra := osFlags &^ tracked; extra != 0 {
		m.injector.FlagsChanged(tracked)
	}
}
