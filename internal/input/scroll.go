package input

import (
	"math"
	"sync"
	"time"

	"github.com/mirage/hostcore/internal/wire"
)

// ScrollConfig tunes the scroll-smoothing loop.
type ScrollConfig struct {
	TickInterval  time.Duration
	MinDt         time.Duration
	MaxDt         time.Duration
	DecayDelay    time.Duration // scrollDecayDelay
	DecayRatio    float64       // scrollRateDecay ≈ 0.85
	StopThreshold float64       // px/tick below which decay stops and residual flushes
}

func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		TickInterval:  8 * time.Millisecond,
		MinDt:         4 * time.Millisecond,
		MaxDt:         100 * time.Millisecond,
		DecayDelay:    100 * time.Millisecond,
		DecayRatio:    0.85,
		StopThreshold: 0.1,
	}
}

// ScrollController low-pass filters incoming wheel deltas into an
// estimated rate and outputs integer pixel deltas on an 8 ms tick,
// carrying the fractional remainder forward so sub-pixel rates aren't
// lost. Built with the same ticker-plus-mutex shape as
// PointerController.
type ScrollController struct {
	injector Injector
	cfg      ScrollConfig

	mu          sync.Mutex
	rateX, rateY float64 // px per tick
	fracX, fracY float64
	lastEventAt  time.Time
	decaying     bool
	running      bool
	stop         chan struct{}
	wg           sync.WaitGroup
}

func NewScrollController(injector Injector, cfg ScrollConfig) *ScrollController {
	return &ScrollController{injector: injector, cfg: cfg}
}

// HandleDelta processes one incoming wheel event. Phases other than
// "changed" (began/ended/cancelled) reset the filter and pass the raw
// delta straight through.
func (s *ScrollController) HandleDelta(dx, dy float64, phase wire.GesturePhase) {
	if phase == wire.GesturePhaseBegan || phase == wire.GesturePhaseEnded || phase == wire.GesturePhaseCancelled {
		s.reset()
		s.injector.ScrollRaw(dx, dy)
		return
	}

	now := time.Now()
	s.mu.Lock()
	dt := s.cfg.TickInterval
	if !s.lastEventAt.IsZero() {
		dt = now.Sub(s.lastEventAt)
	}
	if dt < s.cfg.MinDt {
		dt = s.cfg.MinDt
	}
	if dt > s.cfg.MaxDt {
		dt = s.cfg.MaxDt
	}
	s.lastEventAt = now
	s.decaying = false

	instRateX := dx / (float64(dt) / float64(s.cfg.TickInterval))
	instRateY := dy / (float64(dt) / float64(s.cfg.TickInterval))
	const alpha = 0.5 // low-pass weight toward the instantaneous estimate
	s.rateX += (instRateX - s.rateX) * alpha
	s.rateY += (instRateY - s.rateY) * alpha

	needStart := !s.running
	if needStart {
		s.running = true
		s.stop = make(chan struct{})
	}
	s.mu.Unlock()

	if needStart {
		s.wg.Add(1)
		go s.run()
	}
}

func (s *ScrollController) reset() {
	s.mu.Lock()
	running := s.running
	stop := s.stop
	s.running = false
	s.rateX, s.rateY = 0, 0
	s.fracX, s.fracY = 0, 0
	s.mu.Unlock()
	if running {
		close(stop)
		s.wg.Wait()
	}
}

func (s *ScrollController) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.tick() {
				return
			}
		}
	}
}

func (s *ScrollController) tick() bool {
	s.mu.Lock()

	if !s.decaying && time.Since(s.lastEventAt) >= s.cfg.DecayDelay {
		s.decaying = true
	}
	if s.decaying {
		s.rateX *= s.cfg.DecayRatio
		s.rateY *= s.cfg.DecayRatio
	}

	outX := s.rateX + s.fracX
	outY := s.rateY + s.fracY
	intX := math.Trunc(outX)
	intY := math.Trunc(outY)
	s.fracX = outX - intX
	s.fracY = outY - intY

	stop := s.decaying && math.Abs(s.rateX) < s.cfg.StopThreshold && math.Abs(s.rateY) < s.cfg.StopThreshold
	if stop {
		// Flush the residual fractional remainder before stopping.
		intX += math.Round(s.fracX)
		intY += math.Round(s.fracY)
		s.running = false
	}
	s.mu.Unlock()

	if intX != 0 || intY != 0 {
		s.injector.Scroll(int(intX), int(intY))
	}
	return stop
}
