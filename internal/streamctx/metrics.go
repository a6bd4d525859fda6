package streamctx

import (
	"sync"
	"time"
)

// Metrics tracks real-time per-stream performance data behind an
// RWMutex; "CurrentScale" replaces a quality-preset field since this
// stream context has no quality-preset concept, only scale.
type Metrics struct {
	mu sync.RWMutex

	FramesCaptured uint64
	FramesEncoded  uint64
	FramesSent     uint64
	FramesSkipped  uint64
	FramesDropped  uint64

	LastCaptureTime time.Duration
	LastEncodeTime  time.Duration
	LastFrameSize   int

	TotalBytesSent uint64
	CurrentScale   float64
	startTime      time.Time
}

func newMetrics() *Metrics {
	return &Metrics{startTime: time.Now(), CurrentScale: 1.0}
}

func (m *Metrics) RecordCapture(d time.Duration) {
	m.mu.Lock()
	m.FramesCaptured++
	m.LastCaptureTime = d
	m.mu.Unlock()
}

func (m *Metrics) RecordSkip() {
	m.mu.Lock()
	m.FramesSkipped++
	m.mu.Unlock()
}

func (m *Metrics) RecordEncode(d time.Duration, size int) {
	m.mu.Lock()
	m.FramesEncoded++
	m.LastEncodeTime = d
	m.LastFrameSize = size
	m.mu.Unlock()
}

func (m *Metrics) RecordSend(size int) {
	m.mu.Lock()
	m.FramesSent++
	m.TotalBytesSent += uint64(size)
	m.mu.Unlock()
}

func (m *Metrics) RecordDrop() {
	m.mu.Lock()
	m.FramesDropped++
	m.mu.Unlock()
}

func (m *Metrics) SetScale(s float64) {
	m.mu.Lock()
	m.CurrentScale = s
	m.mu.Unlock()
}

type Snapshot struct {
	FramesCaptured uint64
	FramesEncoded  uint64
	FramesSent     uint64
	FramesSkipped  uint64
	FramesDropped  uint64
	CaptureMs      float64
	EncodeMs       float64
	LastFrameSize  int
	BandwidthKBps  float64
	CurrentScale   float64
	Uptime         time.Duration
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	bw := 0.0
	if uptime.Seconds() > 0 {
		bw = float64(m.TotalBytesSent) / uptime.Seconds() / 1024.0
	}

	return Snapshot{
		FramesCaptured: m.FramesCaptured,
		FramesEncoded:  m.FramesEncoded,
		FramesSent:     m.FramesSent,
		FramesSkipped:  m.FramesSkipped,
		FramesDropped:  m.FramesDropped,
		CaptureMs:      float64(m.LastCaptureTime.Microseconds()) / 1000.0,
		EncodeMs:       float64(m.LastEncodeTime.Microseconds()) / 1000.0,
		LastFrameSize:  m.LastFrameSize,
		BandwidthKBps:  bw,
		CurrentScale:   m.CurrentScale,
		Uptime:         uptime,
	}
}
