package input

import (
	"math"
	"sync"
	"time"
)

// PointerConfig tunes the pointer-interpolation loop.
type PointerConfig struct {
	TickInterval time.Duration // ~120 Hz
	Tau          time.Duration // low-pass time constant
	StopDelay    time.Duration // idle time before considering a snap
	SnapThreshold float64      // px; residual distance below which a stop is silent
}

func DefaultPointerConfig() PointerConfig {
	return PointerConfig{
		TickInterval:  8 * time.Millisecond,
		Tau:           40 * time.Millisecond,
		StopDelay:     120 * time.Millisecond,
		SnapThreshold: 1.5,
	}
}

// PointerController keeps a target and current cursor location and
// steps the current toward the target on an 8 ms ticker with a
// time-constant low-pass filter, rather than injecting every incoming
// move directly, using the same ticker-plus-mutex concurrency idiom a
// capture loop's frame ticker uses.
type PointerController struct {
	injector Injector
	cfg      PointerConfig

	mu          sync.Mutex
	current     [2]float64
	target      [2]float64
	haveCurrent bool
	lastInputAt time.Time
	running     bool
	stop        chan struct{}
	wg          sync.WaitGroup
}

func NewPointerController(injector Injector, cfg PointerConfig) *PointerController {
	return &PointerController{injector: injector, cfg: cfg}
}

// SetTarget updates the destination the next ticks will interpolate
// toward, warping immediately to it on the first call (button-down
// events warp the cursor before synthesizing the event — callers
// needing a hard warp should call WarpTo instead).
func (p *PointerController) SetTarget(x, y float64) {
	p.mu.Lock()
	p.target = [2]float64{x, y}
	p.lastInputAt = time.Now()
	if !p.haveCurrent {
		p.current = p.target
		p.haveCurrent = true
	}
	needStart := !p.running
	if needStart {
		p.running = true
		p.stop = make(chan struct{})
	}
	p.mu.Unlock()

	if needStart {
		p.wg.Add(1)
		go p.run()
	}
}

// WarpTo immediately places current=target=(x,y) and injects a warp,
// used for button-down events which must land precisely.
func (p *PointerController) WarpTo(x, y int) error {
	p.mu.Lock()
	p.current = [2]float64{float64(x), float64(y)}
	p.target = p.current
	p.haveCurrent = true
	p.mu.Unlock()
	return p.injector.WarpCursor(x, y)
}

// Stop halts the interpolation goroutine without changing position,
// called on stream stop.
func (p *PointerController) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop := p.stop
	p.mu.Unlock()
	close(stop)
	p.wg.Wait()
}

func (p *PointerController) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if p.step(dt) {
				return
			}
		}
	}
}

// step advances current toward target by one tick; returns true if the
// loop should stop (idle past StopDelay and settled or snapped).
func (p *PointerController) step(dt time.Duration) bool {
	p.mu.Lock()
	alpha := clamp01(float64(dt) / float64(p.cfg.Tau))
	p.current[0] += (p.target[0] - p.current[0]) * alpha
	p.current[1] += (p.target[1] - p.current[1]) * alpha

	idle := time.Since(p.lastInputAt) >= p.cfg.StopDelay
	residual := math.Hypot(p.target[0]-p.current[0], p.target[1]-p.current[1])

	var emitX, emitY float64
	stop := false
	if idle {
		if residual > p.cfg.SnapThreshold {
			p.current = p.target
		}
		stop = true
		p.running = false
	}
	emitX, emitY = p.current[0], p.current[1]
	p.mu.Unlock()

	p.injector.MouseMove(int(math.Round(emitX)), int(math.Round(emitY)))
	return stop
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
