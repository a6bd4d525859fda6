// Package encoder implements the H264 video encoder collaborator used
// by streamctx, with a backend-interface/registry shape and a
// placeholder-passthrough convention for unimplemented native bindings.
// Trimmed to a single codec since only H264 is streamed here, dropping
// the multi-codec (VP8/VP9/AV1) and GPU zero-copy texture surface a
// Windows D3D11 capture path would carry, which has no macOS
// counterpart.
package encoder

import (
	"errors"
	"fmt"
	"sync"
)

type QualityPreset string

const (
	QualityAuto   QualityPreset = "auto"
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
)

func (q QualityPreset) valid() bool {
	switch q {
	case QualityAuto, QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

type PixelFormat int

const (
	PixelFormatRGBA PixelFormat = iota
	PixelFormatBGRA
)

var (
	ErrInvalidQuality = errors.New("encoder: invalid quality preset")
	ErrInvalidBitrate = errors.New("encoder: invalid bitrate")
	ErrInvalidFPS     = errors.New("encoder: invalid fps")
	ErrNotInitialized = errors.New("encoder: not initialized")
)

type Config struct {
	Quality        QualityPreset
	BitrateBps      int
	FPS            int
	PreferHardware bool
}

func DefaultConfig() Config {
	return Config{Quality: QualityAuto, BitrateBps: 8_000_000, FPS: 60}
}

// Backend is a concrete H264 encoder implementation — either the
// software (openh264) or hardware (VideoToolbox) path.
type Backend interface {
	Encode(frame []byte, forceKeyframe bool) (nalus []byte, isKeyframe bool, err error)
	SetBitrate(bitrateBps int) error
	SetFPS(fps int) error
	SetDimensions(width, height int) error
	SetPixelFormat(pf PixelFormat)
	Close() error
	Name() string
	IsHardware() bool
	IsPlaceholder() bool
}

type backendFactory func(cfg Config) (Backend, error)

var (
	hardwareFactoriesMu sync.Mutex
	hardwareFactories   []backendFactory
)

// registerHardwareFactory lets a platform-specific file (e.g. the darwin
// VideoToolbox backend) opt in without this file importing it directly,
// keeping encoder.go platform-agnostic.
func registerHardwareFactory(f backendFactory) {
	hardwareFactoriesMu.Lock()
	defer hardwareFactoriesMu.Unlock()
	hardwareFactories = append(hardwareFactories, f)
}

func newBackend(cfg Config) (Backend, error) {
	if cfg.PreferHardware {
		hardwareFactoriesMu.Lock()
		factories := append([]backendFactory(nil), hardwareFactories...)
		hardwareFactoriesMu.Unlock()
		for _, f := range factories {
			if b, err := f(cfg); err == nil {
				return b, nil
			}
		}
	}
	return newSoftwareBackend(cfg)
}

// Encoder is the component F collaborator: a single mutex-guarded H264
// encoder whose parameters can be retuned live by the adaptive-bitrate
// controller without tearing down the pipeline.
type Encoder struct {
	mu      sync.Mutex
	cfg     Config
	backend Backend
}

func New(cfg Config) (*Encoder, error) {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultConfig().FPS
	}
	if cfg.BitrateBps <= 0 {
		cfg.BitrateBps = DefaultConfig().BitrateBps
	}
	if cfg.Quality == "" {
		cfg.Quality = QualityAuto
	}
	if !cfg.Quality.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuality, cfg.Quality)
	}
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return &Encoder{cfg: cfg, backend: backend}, nil
}

func (e *Encoder) Encode(frame []byte, forceKeyframe bool) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return nil, false, ErrNotInitialized
	}
	return e.backend.Encode(frame, forceKeyframe)
}

func (e *Encoder) SetBitrate(bitrateBps int) error {
	if bitrateBps <= 0 {
		return ErrInvalidBitrate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.backend.SetBitrate(bitrateBps); err != nil {
		return err
	}
	e.cfg.BitrateBps = bitrateBps
	return nil
}

func (e *Encoder) SetFPS(fps int) error {
	if fps <= 0 {
		return ErrInvalidFPS
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.backend.SetFPS(fps); err != nil {
		return err
	}
	e.cfg.FPS = fps
	return nil
}

func (e *Encoder) SetDimensions(width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.SetDimensions(width, height)
}

func (e *Encoder) SetPixelFormat(pf PixelFormat) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend != nil {
		e.backend.SetPixelFormat(pf)
	}
}

func (e *Encoder) IsHardware() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend != nil && e.backend.IsHardware()
}

func (e *Encoder) BackendName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

func (e *Encoder) Close() error {
	e.mu.Lock()
	backend := e.backend
	e.backend = nil
	e.mu.Unlock()
	if backend == nil {
		return nil
	}
	return backend.Close()
}
