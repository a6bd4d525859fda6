package streamctx

import (
	"errors"
	"sync"
	"time"

	"github.com/mirage/hostcore/internal/logging"
)

var adaptiveLog = logging.L("streamctx.adaptive")

// minBitsPerFrame: below this, FPS is scaled down so each remaining
// frame still gets enough bits.
const minBitsPerFrame = 40_000

// AdaptiveConfig configures the bitrate/FPS/scale controller for one
// stream.
type AdaptiveConfig struct {
	InitialBitrateBps int
	MinBitrateBps     int
	MaxBitrateBps     int
	Cooldown          time.Duration
	MaxFPS            int
	CaptureQueueDepth int
	TargetFrameTime   time.Duration
	OnBitrateChange   func(bitrateBps int)
	OnFPSChange       func(fps int)
	OnScaleChange     func(scale float64)
}

// AdaptiveController owns both halves of the adaptive behavior: an AIMD
// bitrate/FPS loop fed by RTCP-derived RTT/loss samples (same
// thresholds and EWMA smoothing as a standard AIMD congestion
// controller), and a stream-scale step fed by producer queue-depth and
// encoder-latency overrun.
type AdaptiveController struct {
	mu         sync.Mutex
	cfg        AdaptiveConfig
	lastAdjust time.Time

	targetBitrate int
	currentFPS    int

	smoothedLoss float64
	smoothedRTT  time.Duration
	samplesCount int
	stableCount  int

	scale           float64
	consecutiveOver int
	consecutiveSlack int
}

func NewAdaptiveController(cfg AdaptiveConfig) (*AdaptiveController, error) {
	if cfg.MinBitrateBps <= 0 || cfg.MaxBitrateBps <= 0 || cfg.MinBitrateBps > cfg.MaxBitrateBps {
		return nil, errors.New("streamctx: invalid bitrate bounds")
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = 500 * time.Millisecond
	}
	cfg.Cooldown = cooldown

	initial := cfg.InitialBitrateBps
	if initial <= 0 {
		initial = cfg.MinBitrateBps
	}
	initial = clampInt(initial, cfg.MinBitrateBps, cfg.MaxBitrateBps)

	maxFPS := cfg.MaxFPS
	if maxFPS <= 0 {
		maxFPS = 60
	}
	initialFPS := clampInt(initial/minBitsPerFrame, 10, maxFPS)

	if cfg.TargetFrameTime <= 0 {
		cfg.TargetFrameTime = time.Second / time.Duration(maxFPS)
	}
	if cfg.CaptureQueueDepth <= 0 {
		cfg.CaptureQueueDepth = 3
	}

	return &AdaptiveController{
		cfg:           cfg,
		targetBitrate: initial,
		currentFPS:    initialFPS,
		scale:         1.0,
	}, nil
}

// UpdateRTCP feeds one RTT/packet-loss sample (derived from a pion/rtcp
// Receiver Report arriving over the UDP data channel) and adjusts
// bitrate/FPS using AIMD thresholds: multiplicative 0.70x decrease on
// sustained loss ≥5%, additive +5%-of-max increase after two
// consecutive clean samples.
func (a *AdaptiveController) UpdateRTCP(rtt time.Duration, packetLoss float64) {
	if packetLoss < 0 {
		packetLoss = 0
	}
	if packetLoss > 1 {
		packetLoss = 1
	}

	a.mu.Lock()

	now := time.Now()
	if !a.lastAdjust.IsZero() && now.Sub(a.lastAdjust) < a.cfg.Cooldown {
		a.updateEWMA(rtt, packetLoss)
		a.mu.Unlock()
		return
	}
	a.updateEWMA(rtt, packetLoss)

	if a.samplesCount < 3 {
		a.mu.Unlock()
		return
	}

	loss := a.smoothedLoss
	smoothRTT := a.smoothedRTT

	degrade := loss >= 0.05 || (smoothRTT >= 300*time.Millisecond && loss >= 0.02)
	upgrade := loss <= 0.01

	if degrade {
		a.stableCount = 0
	} else if upgrade {
		a.stableCount++
	} else if a.stableCount > 0 {
		a.stableCount--
	}

	const stableRequired = 2
	newBitrate := a.targetBitrate

	if degrade {
		newBitrate = clampInt(int(float64(newBitrate)*0.70), a.cfg.MinBitrateBps, a.cfg.MaxBitrateBps)
	} else if a.stableCount >= stableRequired && a.targetBitrate < a.cfg.MaxBitrateBps {
		step := a.cfg.MaxBitrateBps / 20
		if step < 100_000 {
			step = 100_000
		}
		newBitrate = clampInt(newBitrate+step, a.cfg.MinBitrateBps, a.cfg.MaxBitrateBps)
		a.stableCount = 0
	}

	newFPS := clampInt(newBitrate/minBitsPerFrame, 10, a.cfg.MaxFPS)

	if newBitrate == a.targetBitrate && newFPS == a.currentFPS {
		a.mu.Unlock()
		return
	}

	prevFPS := a.currentFPS
	a.targetBitrate = newBitrate
	a.currentFPS = newFPS
	a.lastAdjust = now
	bitrateCb := a.cfg.OnBitrateChange
	fpsCb := a.cfg.OnFPSChange
	a.mu.Unlock()

	adaptiveLog.Info("adaptive bitrate adjustment", "bitrateBps", newBitrate, "fps", newFPS, "smoothedLoss", loss, "smoothedRTT", smoothRTT)

	if bitrateCb != nil {
		bitrateCb(newBitrate)
	}
	if newFPS != prevFPS && fpsCb != nil {
		fpsCb(newFPS)
	}
}

const ewmaAlpha = 0.3

func (a *AdaptiveController) updateEWMA(rtt time.Duration, loss float64) {
	a.samplesCount++
	if a.samplesCount == 1 {
		a.smoothedLoss = loss
		a.smoothedRTT = rtt
		return
	}
	a.smoothedLoss = ewmaAlpha*loss + (1-ewmaAlpha)*a.smoothedLoss
	a.smoothedRTT = time.Duration(ewmaAlpha*float64(rtt) + (1-ewmaAlpha)*float64(a.smoothedRTT))
}

// ReportFrameBudget feeds one capture-tick's producer queue depth and
// encoder latency. Sustained overrun (queue depth above the configured
// capture-queue-depth, or encode latency above the target frame time)
// steps scale down; sustained slack steps it back up cautiously.
func (a *AdaptiveController) ReportFrameBudget(queueDepth int, encodeLatency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	over := queueDepth > a.cfg.CaptureQueueDepth || encodeLatency > a.cfg.TargetFrameTime

	const stepDown = 0.85
	const stepUp = 1.05
	const minScale = 0.1
	const overRequired = 3
	const slackRequired = 10

	if over {
		a.consecutiveOver++
		a.consecutiveSlack = 0
		if a.consecutiveOver >= overRequired && a.scale > minScale {
			a.scale = clampFloat(a.scale*stepDown, minScale, 1.0)
			a.consecutiveOver = 0
			if a.cfg.OnScaleChange != nil {
				a.cfg.OnScaleChange(a.scale)
			}
		}
		return
	}

	a.consecutiveOver = 0
	a.consecutiveSlack++
	if a.consecutiveSlack >= slackRequired && a.scale < 1.0 {
		a.scale = clampFloat(a.scale*stepUp, minScale, 1.0)
		a.consecutiveSlack = 0
		if a.cfg.OnScaleChange != nil {
			a.cfg.OnScaleChange(a.scale)
		}
	}
}

func (a *AdaptiveController) Scale() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scale
}

func (a *AdaptiveController) TargetBitrate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.targetBitrate
}

func (a *AdaptiveController) CurrentFPS() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentFPS
}

func (a *AdaptiveController) SetMaxBitrate(max int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.MaxBitrateBps = max
	if a.targetBitrate > max {
		a.targetBitrate = max
		if a.cfg.OnBitrateChange != nil {
			a.cfg.OnBitrateChange(max)
		}
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
