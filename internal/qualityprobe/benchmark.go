package qualityprobe

import (
	"context"
	"time"

	"github.com/mirage/hostcore/internal/encoder"
)

// EncoderBenchmark runs a fixed-duration synthetic encode pass against
// internal/encoder to measure host encode headroom, satisfying the
// EncodeBenchmark collaborator contract.
type EncoderBenchmark struct {
	Width, Height int
	Duration      time.Duration
}

// DefaultEncoderBenchmark benchmarks a 1280x720 synthetic frame for one
// second, matching the target resolution the host would use for a
// typical window stream.
func DefaultEncoderBenchmark() EncoderBenchmark {
	return EncoderBenchmark{Width: 1280, Height: 720, Duration: time.Second}
}

func (b EncoderBenchmark) Run(ctx context.Context) (int, int, float64, float64, error) {
	width, height := b.Width, b.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}
	duration := b.Duration
	if duration <= 0 {
		duration = time.Second
	}

	enc, err := encoder.New(encoder.Config{Quality: encoder.QualityAuto, BitrateBps: 8_000_000, FPS: 60})
	if err != nil {
		return 0, 0, 0, 0, err
	}
	defer enc.Close()

	if err := enc.SetDimensions(width, height); err != nil {
		return 0, 0, 0, 0, err
	}
	enc.SetPixelFormat(encoder.PixelFormatBGRA)

	frame := make([]byte, width*height*4)

	deadline := time.Now().Add(duration)
	var frames int
	var totalEncodeNs int64

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		_, _, err := enc.Encode(frame, frames == 0)
		elapsed := time.Since(start)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		frames++
		totalEncodeNs += elapsed.Nanoseconds()
	}

	if frames == 0 {
		return width, height, 0, 0, nil
	}

	elapsedSeconds := time.Since(deadline.Add(-duration)).Seconds()
	fps := float64(frames) / elapsedSeconds
	avgEncodeMs := float64(totalEncodeNs) / float64(frames) / float64(time.Millisecond)

	return width, height, fps, avgEncodeMs, nil
}
