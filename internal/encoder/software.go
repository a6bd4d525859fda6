package encoder

import (
	"errors"
	"sync"

	openh264 "github.com/y9o/go-openh264"
)

// softwareBackend wraps github.com/y9o/go-openh264 for CPU H264
// encoding: the BGRA capture frame is converted to I420 and handed to
// the openh264 encoder, which is recreated whenever dimensions change
// since the library binds width and height at construction.
type softwareBackend struct {
	mu            sync.Mutex
	cfg           Config
	width, height int
	pixelFormat   PixelFormat
	enc           *openh264.Encoder
	forceKeyframe bool
}

func newSoftwareBackend(cfg Config) (Backend, error) {
	return &softwareBackend{cfg: cfg}, nil
}

func (s *softwareBackend) ensureEncoder() error {
	if s.enc != nil || s.width == 0 || s.height == 0 {
		return nil
	}
	enc, err := openh264.NewEncoder(&openh264.Option{
		Width:       s.width,
		Height:      s.height,
		BitrateBps:  s.cfg.BitrateBps,
		MaxFrameRate: float32(s.cfg.FPS),
	})
	if err != nil {
		return err
	}
	s.enc = enc
	return nil
}

func (s *softwareBackend) Encode(frame []byte, forceKeyframe bool) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(frame) == 0 {
		return nil, false, errors.New("encoder: empty frame")
	}
	if err := s.ensureEncoder(); err != nil {
		return nil, false, err
	}
	if s.enc == nil {
		// Dimensions not yet known (SetDimensions not called): pass the
		// frame through unmodified so the caller can still exercise the
		// pipeline while the first frame's size is established.
		out := make([]byte, len(frame))
		copy(out, frame)
		return out, true, nil
	}

	var i420 []byte
	if s.pixelFormat == PixelFormatBGRA {
		i420 = bgraToI420(frame, s.width, s.height, s.width*4)
	} else {
		i420 = frame
	}

	wantKeyframe := forceKeyframe || s.forceKeyframe
	s.forceKeyframe = false
	if wantKeyframe {
		s.enc.ForceIntraFrame()
	}

	nalus, isKeyframe, err := s.enc.Encode(i420)
	if s.pixelFormat == PixelFormatBGRA {
		putI420Buffer(i420)
	}
	if err != nil {
		return nil, false, err
	}
	return nalus, isKeyframe, nil
}

func (s *softwareBackend) SetBitrate(bitrateBps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.BitrateBps = bitrateBps
	if s.enc != nil {
		return s.enc.SetBitrate(bitrateBps)
	}
	return nil
}

func (s *softwareBackend) SetFPS(fps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.FPS = fps
	if s.enc != nil {
		return s.enc.SetMaxFrameRate(float32(fps))
	}
	return nil
}

func (s *softwareBackend) SetDimensions(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width == s.width && height == s.height {
		return nil
	}
	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
	}
	s.width, s.height = width, height
	s.forceKeyframe = true
	return nil
}

func (s *softwareBackend) SetPixelFormat(pf PixelFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pixelFormat = pf
}

func (s *softwareBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc != nil {
		err := s.enc.Close()
		s.enc = nil
		return err
	}
	return nil
}

func (s *softwareBackend) Name() string     { return "openh264-software" }
func (s *softwareBackend) IsHardware() bool { return false }
func (s *softwareBackend) IsPlaceholder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc == nil
}
