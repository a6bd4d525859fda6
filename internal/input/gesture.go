package input

import (
	"sync"

	"github.com/mirage/hostcore/internal/wire"
)

const (
	magnifyThreshold = 0.08
	rotateThreshold  = 2.0

	// macOS ANSI virtual keycodes for '=' and '-'.
	keyEquals = 24
	keyMinus  = 27
)

// GestureTranslator accumulates magnify/rotate magnitudes across a
// gesture's changed events and synthesizes the equivalent keyboard
// chord (Cmd+=/Cmd+- for magnify) or modified scroll (alt-scroll for
// rotate) each time the accumulator crosses its threshold. Keystroke
// synthesis reuses ModifierTracker so a burst composes with whatever
// the user already holds instead of overwriting it.
type GestureTranslator struct {
	injector  Injector
	modifiers *ModifierTracker

	mu             sync.Mutex
	magnifyAccum   float64
	rotateAccum    float64
}

func NewGestureTranslator(injector Injector, modifiers *ModifierTracker) *GestureTranslator {
	return &GestureTranslator{injector: injector, modifiers: modifiers}
}

// HandleMagnify accumulates magnitude and fires one Cmd+=/Cmd+- burst
// per threshold crossing (possibly several in one call for a large
// jump), flushing a final partial keystroke on phase end if the
// residual exceeds half the threshold.
func (g *GestureTranslator) HandleMagnify(magnitude float64, phase wire.GesturePhase) {
	g.mu.Lock()
	if phase == wire.GesturePhaseBegan {
		g.magnifyAccum = 0
	}
	g.magnifyAccum += magnitude
	sum := g.magnifyAccum

	var bursts int
	for absF(sum) >= magnifyThreshold {
		if sum > 0 {
			sum -= magnifyThreshold
		} else {
			sum += magnifyThreshold
		}
		bursts++
	}
	positive := g.magnifyAccum > 0
	g.magnifyAccum = sum

	flushFinal := false
	if phase == wire.GesturePhaseEnded || phase == wire.GesturePhaseCancelled {
		if absF(sum) >= magnifyThreshold/2 {
			flushFinal = true
			positive = sum > 0
		}
		g.magnifyAccum = 0
	}
	g.mu.Unlock()

	for i := 0; i < bursts; i++ {
		g.synthesizeKeystroke(magnifyKeyCode(positive))
	}
	if flushFinal {
		g.synthesizeKeystroke(magnifyKeyCode(positive))
	}
}

// HandleRotate accumulates rotation and injects an alt-modified scroll
// each time |sum| ≥ rotateThreshold.
func (g *GestureTranslator) HandleRotate(rotation float64, phase wire.GesturePhase) {
	g.mu.Lock()
	if phase == wire.GesturePhaseBegan {
		g.rotateAccum = 0
	}
	g.rotateAccum += rotation
	sum := g.rotateAccum

	var steps int
	for absF(sum) >= rotateThreshold {
		if sum > 0 {
			sum -= rotateThreshold
			steps++
		} else {
			sum += rotateThreshold
			steps--
		}
	}
	g.rotateAccum = sum
	if phase == wire.GesturePhaseEnded || phase == wire.GesturePhaseCancelled {
		g.rotateAccum = 0
	}
	g.mu.Unlock()

	if steps != 0 {
		g.synthesizeAltScroll(steps)
	}
}

func magnifyKeyCode(positive bool) int {
	if positive {
		return keyEquals
	}
	return keyMinus
}

func (g *GestureTranslator) synthesizeKeystroke(code int) {
	cur := g.modifiers.CurrentFlags()
	g.injector.FlagsChanged(cur | ModCommand)
	g.injector.KeyDown(code)
	g.injector.KeyUp(code)
	g.injector.FlagsChanged(cur)
}

func (g *GestureTranslator) synthesizeAltScroll(steps int) {
	cur := g.modifiers.CurrentFlags()
	g.injector.FlagsChanged(cur | ModOption)
	g.injector.Scroll(0, steps*10)
	g.injector.FlagsChanged(cur)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
