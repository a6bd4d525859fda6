// Package streamctx implements the per-stream state machine: capture →
// encode → packetize, with adaptive scale/bitrate and a monotonic
// dimension token. Start/stop is guarded with sync.Once and
// atomic.Bool cross-goroutine signal flags; capture runs one ticker at
// TargetFPS (capped at 60) and forces a keyframe on request or after
// input activity, generalized
// from sample-track delivery to raw UDP datagram packetization.
package streamctx

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirage/hostcore/internal/capture"
	"github.com/mirage/hostcore/internal/encoder"
	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/wire"
)

var log = logging.L("streamctx")

type State int32

const (
	StateIdle State = iota
	StateStarting
	StateCapturing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// maxConsecutiveEncodeFailures bounds the failure-tolerance window
// before a stream gives up and stops itself.
const maxConsecutiveEncodeFailures = 10

// Sender abstracts the UDP data-channel write so this package does not
// import internal/transport directly (transport would then import
// streamctx's stream registry — keeping the dependency one-directional).
type Sender interface {
	WriteStreamData(streamID uint16, payload []byte) error
}

// Config carries every per-StreamContext attribute, trimmed of
// peer-connection/data-channel/audio fields a full media-session
// abstraction would carry but this raw-UDP pipeline doesn't need.
type Config struct {
	StreamID            uint16
	WindowID            uint32 // 0 = desktop/login
	KeyframeIntervalFr  int
	MinBitrateBps       int
	MaxBitrateBps       int
	TargetFPS           int
	FrameQuality        float64
	KeyframeQuality     float64
	CaptureQueueDepth   int
	AdaptiveScale       bool
	IsLoginDisplay      bool
	IsDesktopStream     bool
	MaxPacketPayload    int // UDP payload bytes per fragment, excluding header
}

func DefaultConfig() Config {
	return Config{
		KeyframeIntervalFr: 120,
		MinBitrateBps:      500_000,
		MaxBitrateBps:      25_000_000,
		TargetFPS:          60,
		FrameQuality:       0.8,
		KeyframeQuality:    0.9,
		CaptureQueueDepth:  3,
		AdaptiveScale:      true,
		MaxPacketPayload:   1200,
	}
}

// Callbacks notify the owning router/orchestrator of state the client
// needs to learn about; all are optional.
type Callbacks struct {
	OnDimensionChange func(token uint32, width, height int)
	OnScaleChange     func(scale float64)
	OnStopped         func(reason string)

	// OnFrameCaptured fires after every successfully captured frame,
	// before suspension-until-registration or encode. The login-display
	// watchdog uses it to reset its stall timer.
	OnFrameCaptured func()
}

// StreamContext is the component F collaborator: one instance per active
// window/desktop/login stream.
type StreamContext struct {
	cfg       Config
	callbacks Callbacks
	sender    Sender
	enc       *encoder.Encoder
	src       capture.Source
	adaptive  *AdaptiveController
	metrics   *Metrics

	state atomic.Int32

	mu               sync.Mutex
	scale            float64
	dimensionToken   uint32
	lastWidth        int
	lastHeight       int
	sharedGeneration uint64
	startupBase      time.Time
	lastCaptureAt    time.Time

	registered        atomic.Bool // set once the client's UDP registration for streamID arrives
	keyframeRequested atomic.Bool
	inputActive       atomic.Bool

	consecutiveEncodeFailures int
	failureWindowStart        time.Time

	stopOnce  sync.Once
	startOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

var (
	ErrAlreadyStarted = errors.New("streamctx: already started")
	ErrNotCapturing   = errors.New("streamctx: not capturing")
)

func New(cfg Config, callbacks Callbacks, sender Sender) *StreamContext {
	if cfg.MaxPacketPayload <= 0 {
		cfg.MaxPacketPayload = 1200
	}
	return &StreamContext{
		cfg:       cfg,
		callbacks: callbacks,
		sender:    sender,
		scale:     1.0,
		metrics:   newMetrics(),
		done:      make(chan struct{}),
	}
}

// MarkRegistered is called by the UDP listener once the client sends its
// registration datagram for this streamId; frames are discarded until
// this fires.
func (s *StreamContext) MarkRegistered() {
	s.registered.Store(true)
}

func (s *StreamContext) State() State {
	return State(s.state.Load())
}

// Start creates the encoder pipeline and begins the capture loop. It
// returns once the first capture attempt has been scheduled; capture
// failures during start propagate to the caller and no goroutine is
// left running.
func (s *StreamContext) Start(src capture.Source, adaptive *AdaptiveController) error {
	var startErr error
	s.startOnce.Do(func() {
		s.state.Store(int32(StateStarting))

		w, h, err := src.Bounds()
		if err != nil {
			startErr = fmt.Errorf("streamctx: capture bounds: %w", err)
			s.state.Store(int32(StateIdle))
			return
		}

		encCfg := encoder.DefaultConfig()
		encCfg.BitrateBps = s.cfg.MinBitrateBps
		encCfg.FPS = s.cfg.TargetFPS
		enc, err := encoder.New(encCfg)
		if err != nil {
			startErr = fmt.Errorf("streamctx: encoder init: %w", err)
			s.state.Store(int32(StateIdle))
			return
		}
		if bgra, ok := src.(capture.BGRAProvider); ok && bgra.IsBGRA() {
			enc.SetPixelFormat(encoder.PixelFormatBGRA)
		}
		if err := enc.SetDimensions(w, h); err != nil {
			enc.Close()
			startErr = fmt.Errorf("streamctx: encoder dimensions: %w", err)
			s.state.Store(int32(StateIdle))
			return
		}

		s.mu.Lock()
		s.src = src
		s.enc = enc
		s.adaptive = adaptive
		s.lastWidth, s.lastHeight = w, h
		s.dimensionToken++
		token := s.dimensionToken
		s.startupBase = time.Now()
		s.mu.Unlock()

		if s.callbacks.OnDimensionChange != nil {
			s.callbacks.OnDimensionChange(token, w, h)
		}

		s.state.Store(int32(StateCapturing))

		s.wg.Add(1)
		go s.captureLoop()
	})
	return startErr
}

// Stop halts the capture loop and releases the encoder/capture source.
// Safe to call multiple times and before Start (no-op if never started).
func (s *StreamContext) Stop(reason string) {
	s.stopOnce.Do(func() {
		if s.State() == StateIdle {
			return
		}
		s.state.Store(int32(StateStopping))
		close(s.done)
		s.wg.Wait()

		s.mu.Lock()
		enc, src := s.enc, s.src
		s.enc, s.src = nil, nil
		s.mu.Unlock()

		if enc != nil {
			enc.Close()
		}
		if src != nil {
			src.Close()
		}

		s.state.Store(int32(StateIdle))
		if s.callbacks.OnStopped != nil {
			s.callbacks.OnStopped(reason)
		}
		snap := s.metrics.Snapshot()
		log.Info("stream stopped", "streamId", s.cfg.StreamID, "reason", reason,
			"framesCaptured", snap.FramesCaptured, "framesSent", snap.FramesSent,
			"framesSkipped", snap.FramesSkipped, "uptime", snap.Uptime.Round(time.Second))
	})
}

// UpdateResolution bumps the dimension token iff the effective dimensions
// actually changed, retargets the encoder, and notifies the callback.
func (s *StreamContext) UpdateResolution(width, height int) error {
	s.mu.Lock()
	if width == s.lastWidth && height == s.lastHeight {
		s.mu.Unlock()
		return nil
	}
	s.lastWidth, s.lastHeight = width, height
	s.dimensionToken++
	token := s.dimensionToken
	enc := s.enc
	s.mu.Unlock()

	if enc == nil {
		return ErrNotCapturing
	}
	if err := enc.SetDimensions(width, height); err != nil {
		return err
	}
	s.keyframeRequested.Store(true)
	if s.callbacks.OnDimensionChange != nil {
		s.callbacks.OnDimensionChange(token, width, height)
	}
	return nil
}

// UpdateStreamScale clamps to [0.1, 1.0] and, when the clamped value
// differs from the current scale, fires OnScaleChange. For
// desktop-mode streams the caller realizes scale by resizing the shared
// virtual display instead (the encoder stays at 1.0x); this method only
// tracks the announced value and lets the capture loop apply it.
func (s *StreamContext) UpdateStreamScale(scale float64) {
	scale = clampFloat(scale, 0.1, 1.0)
	s.mu.Lock()
	if s.scale == scale {
		s.mu.Unlock()
		return
	}
	s.scale = scale
	s.mu.Unlock()

	s.metrics.SetScale(scale)
	if s.callbacks.OnScaleChange != nil {
		s.callbacks.OnScaleChange(scale)
	}
}

func (s *StreamContext) UpdateFrameRate(fps int) error {
	s.mu.Lock()
	enc := s.enc
	s.mu.Unlock()
	if enc == nil {
		return ErrNotCapturing
	}
	return enc.SetFPS(fps)
}

func (s *StreamContext) RequestKeyframe() {
	s.keyframeRequested.Store(true)
}

func (s *StreamContext) NotifyInputActive() {
	s.inputActive.Store(true)
}

// RebindToSharedDisplay swaps the capture source against a new shared
// display generation, replaying the last configured resolution. Only
// valid while capturing.
func (s *StreamContext) RebindToSharedDisplay(newSrc capture.Source, generation uint64, reason string) error {
	if s.State() != StateCapturing {
		return ErrNotCapturing
	}
	s.mu.Lock()
	old := s.src
	s.src = newSrc
	s.sharedGeneration = generation
	w, h := s.lastWidth, s.lastHeight
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.keyframeRequested.Store(true)
	log.Info("stream rebinding to shared display", "streamId", s.cfg.StreamID, "generation", generation, "reason", reason)
	return s.UpdateResolution(w, h)
}

func (s *StreamContext) DimensionToken() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimensionToken
}

func (s *StreamContext) Metrics() Snapshot {
	return s.metrics.Snapshot()
}

func (s *StreamContext) captureLoop() {
	defer s.wg.Done()

	idleInterval := time.Second / time.Duration(clampInt(s.cfg.TargetFPS, 1, 60))
	ticker := time.NewTicker(idleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.captureAndSendFrame()
		}
	}
}

func (s *StreamContext) captureAndSendFrame() {
	s.mu.Lock()
	src := s.src
	enc := s.enc
	token := s.dimensionToken
	s.mu.Unlock()
	if src == nil || enc == nil {
		return
	}

	captureStart := time.Now()
	frame, err := src.Capture()
	if err != nil {
		s.recordEncodeFailure(err)
		return
	}
	if frame == nil {
		s.metrics.RecordSkip()
		return
	}
	s.metrics.RecordCapture(time.Since(captureStart))

	s.mu.Lock()
	s.lastCaptureAt = time.Now()
	s.mu.Unlock()

	if s.callbacks.OnFrameCaptured != nil {
		s.callbacks.OnFrameCaptured()
	}

	// Suspension until UDP registration: encode happens regardless so the
	// encoder stays warmed up (IDR cadence intact), but nothing is sent.
	forceKeyframe := s.keyframeRequested.Swap(false) || s.inputActive.Swap(false)

	encodeStart := time.Now()
	nalus, isKeyframe, err := enc.Encode(frame.Pix, forceKeyframe)
	encodeLatency := time.Since(encodeStart)
	if err != nil {
		s.recordEncodeFailure(err)
		return
	}
	s.consecutiveEncodeFailures = 0
	s.metrics.RecordEncode(encodeLatency, len(nalus))

	if s.adaptive != nil {
		s.adaptive.ReportFrameBudget(0, encodeLatency)
	}

	if !s.registered.Load() {
		s.metrics.RecordDrop()
		return
	}

	if err := s.packetize(nalus, token, isKeyframe); err != nil {
		log.Warn("packetization failed, requesting keyframe", "streamId", s.cfg.StreamID, "error", err)
		s.keyframeRequested.Store(true)
		return
	}
	s.metrics.RecordSend(len(nalus))
}

func (s *StreamContext) recordEncodeFailure(err error) {
	now := time.Now()
	if s.failureWindowStart.IsZero() || now.Sub(s.failureWindowStart) > 5*time.Second {
		s.failureWindowStart = now
		s.consecutiveEncodeFailures = 0
	}
	s.consecutiveEncodeFailures++
	log.Warn("capture/encode failure", "streamId", s.cfg.StreamID, "error", err, "consecutive", s.consecutiveEncodeFailures)
	if s.consecutiveEncodeFailures >= maxConsecutiveEncodeFailures {
		go s.Stop("consecutive_encode_failures")
	}
}

// packetize fragments an encoded access unit into MaxPacketPayload-sized
// UDP datagrams, each prefixed with the 12-byte wire.DataHeader carrying
// the current dimension token so the client can discard stale frames.
func (s *StreamContext) packetize(nalus []byte, token uint32, isKeyframe bool) error {
	if s.sender == nil || len(nalus) == 0 {
		return nil
	}
	var flags wire.DataFlag
	if isKeyframe {
		flags |= wire.FlagKeyframe
	}
	header := wire.DataHeader{StreamID: s.cfg.StreamID, DimensionToken: token, Flags: flags}

	chunk := s.cfg.MaxPacketPayload
	for off := 0; off < len(nalus); off += chunk {
		end := off + chunk
		if end > len(nalus) {
			end = len(nalus)
		}
		packet := wire.EncodeDataHeader(header, nalus[off:end])
		if err := s.sender.WriteStreamData(s.cfg.StreamID, packet); err != nil {
			return err
		}
	}
	return nil
}
