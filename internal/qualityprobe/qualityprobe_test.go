package qualityprobe

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mirage/hostcore/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu      sync.Mutex
	packets [][]byte
	fail    bool
}

func (f *fakeSender) WriteData(addr *net.UDPAddr, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return net.ErrClosed
	}
	cp := append([]byte(nil), payload...)
	f.packets = append(f.packets, cp)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.packets)
}

type fakeBenchmark struct {
	calls int
	delay time.Duration
}

func (b *fakeBenchmark) Run(ctx context.Context) (int, int, float64, float64, error) {
	b.calls++
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
		}
	}
	return 1280, 720, 59.5, 4.2, nil
}

func TestRunnerSendsBurstAndReturnsBenchmarkResult(t *testing.T) {
	sender := &fakeSender{}
	bench := &fakeBenchmark{}
	r := NewRunner(sender, bench)

	req := wire.QualityTestRequest{
		TestID: "11111111-1111-1111-1111-111111111111",
		Stages: []wire.QualityStage{
			{TargetBitrateBps: 2_000_000, DurationMs: 50},
		},
	}

	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}
	result := r.Run(context.Background(), addr, req)

	require.Equal(t, req.TestID, result.TestID)
	require.Equal(t, 1280, result.BenchmarkWidth)
	require.Equal(t, 720, result.BenchmarkHeight)
	require.Equal(t, BenchmarkVersion, result.BenchmarkVersion)
	require.Equal(t, 1, bench.calls)
	require.Greater(t, sender.count(), 0)
}

func TestRunnerHandlesInvalidTestID(t *testing.T) {
	sender := &fakeSender{}
	bench := &fakeBenchmark{}
	r := NewRunner(sender, bench)

	req := wire.QualityTestRequest{
		TestID: "not-a-uuid",
		Stages: []wire.QualityStage{{TargetBitrateBps: 1_000_000, DurationMs: 10}},
	}
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}

	result := r.Run(context.Background(), addr, req)
	require.Equal(t, req.TestID, result.TestID)
}

func TestRunnerSkipsZeroDurationOrBitrateStages(t *testing.T) {
	sender := &fakeSender{}
	bench := &fakeBenchmark{}
	r := NewRunner(sender, bench)

	req := wire.QualityTestRequest{
		TestID: "22222222-2222-2222-2222-222222222222",
		Stages: []wire.QualityStage{
			{TargetBitrateBps: 0, DurationMs: 50},
			{TargetBitrateBps: 1_000_000, DurationMs: 0},
		},
	}
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}

	r.Run(context.Background(), addr, req)
	require.Equal(t, 0, sender.count())
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	sender := &fakeSender{}
	bench := &fakeBenchmark{delay: 200 * time.Millisecond}
	r := NewRunner(sender, bench)

	req := wire.QualityTestRequest{
		TestID: "33333333-3333-3333-3333-333333333333",
		Stages: []wire.QualityStage{
			{TargetBitrateBps: 1_000_000, DurationMs: 5000},
		},
	}
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	r.Run(ctx, addr, req)
	require.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestRunnerPropagatesSenderFailure(t *testing.T) {
	sender := &fakeSender{fail: true}
	bench := &fakeBenchmark{}
	r := NewRunner(sender, bench)

	req := wire.QualityTestRequest{
		TestID: "44444444-4444-4444-4444-444444444444",
		Stages: []wire.QualityStage{
			{TargetBitrateBps: 1_000_000, DurationMs: 1000},
		},
	}
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}

	start := time.Now()
	r.Run(context.Background(), addr, req)
	require.Less(t, time.Since(start), time.Second, "stage should abort promptly on first write failure")
}

func TestSampleHostHeadroomReturnsNonNegativeValues(t *testing.T) {
	h, err := SampleHostHeadroom()
	require.NoError(t, err)
	require.GreaterOrEqual(t, h.CPUPercent, 0.0)
	require.GreaterOrEqual(t, h.RAMPercent, 0.0)
}
