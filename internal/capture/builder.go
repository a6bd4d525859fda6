package capture

import "fmt"

// Builder wraps package-level capture construction behind
// internal/host.StreamBuilder, so Host depends only on a narrow
// collaborator contract rather than this package's concrete Config type.
//
// Windows are addressed by numeric handle at the wire/protocol level,
// but ScreenCaptureKit (and this package's darwin backend) only exposes
// a display-keyed capture primitive today — per-window `SCContentFilter`
// capture is future work: see DESIGN.md. OpenWindowCapture maps windowID onto a
// synthetic per-window DisplayID so the rest of the stream pipeline
// (dimension negotiation, resize, rebind) runs unmodified; swapping in
// real per-window capture only touches this one call site.
type Builder struct {
	ScaleFactor float64
}

func NewBuilder() *Builder {
	return &Builder{ScaleFactor: 1.0}
}

func (b *Builder) OpenWindowCapture(windowID uint32) (Source, error) {
	cfg := DefaultConfig()
	cfg.DisplayID = fmt.Sprintf("window:%d", windowID)
	if b.ScaleFactor > 0 {
		cfg.ScaleFactor = b.ScaleFactor
	}
	return New(cfg)
}

func (b *Builder) OpenDisplayCapture(displayID string) (Source, error) {
	cfg := DefaultConfig()
	cfg.DisplayID = displayID
	if b.ScaleFactor > 0 {
		cfg.ScaleFactor = b.ScaleFactor
	}
	return New(cfg)
}
