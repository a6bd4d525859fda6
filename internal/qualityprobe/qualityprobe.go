// Package qualityprobe implements a paced UDP burst generator that
// exercises the data channel at a sequence of target bitrates while a
// parallel CPU encode benchmark runs, so the client can pick stream
// quality bounded by both network headroom and host encode headroom.
//
// Each stage has {targetBitrateBps, durationMs}; the pacer ticks at
// max(1/pps, 1ms), bursting up to 1024 packets per tick and carrying
// forward a fractional budget, using the same
// ticker-with-carried-fractional-budget idiom a periodic session
// collector's poll cadence uses, generalized from a fixed interval to a
// rate-derived one. The benchmark's CPU/memory sampling uses
// shirou/gopsutil/v3.
package qualityprobe

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/wire"
)

var log = logging.L("qualityprobe")

// BenchmarkVersion identifies the encode-benchmark methodology so older
// clients can tell when a newer host changes how benchmarkFps/encodeMs are
// computed.
const BenchmarkVersion = 1

const (
	// headerSize accounts for the UDP socket overhead the probe header
	// does not itself model (IP/UDP framing):
	// packetsPerSecond = bitrate / (payload + headerSize).
	headerSize = 28
	// maxBurstPackets bounds how many packets a single tick may emit.
	maxBurstPackets = 1024
	minTickInterval = time.Millisecond
)

// DataSender abstracts the UDP data-channel write, matching
// internal/streamctx.Sender's role for the probe's burst traffic.
type DataSender interface {
	WriteData(addr *net.UDPAddr, payload []byte) error
}

// EncodeBenchmark runs a short synthetic encode pass and reports its
// throughput. Implemented by a harness wrapping internal/encoder against a
// fixed synthetic frame.
type EncodeBenchmark interface {
	Run(ctx context.Context) (width, height int, fps float64, encodeMs float64, err error)
}

// Runner drives one qualityTestRequest to completion: it paces a UDP burst
// per stage at the remote addr while, concurrently, an encode benchmark
// measures host headroom, then returns a wire.QualityTestResult.
type Runner struct {
	sender    DataSender
	benchmark EncodeBenchmark
	payload   []byte
}

func NewRunner(sender DataSender, benchmark EncodeBenchmark) *Runner {
	return &Runner{
		sender:    sender,
		benchmark: benchmark,
		payload:   make([]byte, 1024),
	}
}

// Run executes req against remoteAddr and returns the populated result.
// The burst and the encode benchmark run concurrently; Run blocks until
// both finish or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, remoteAddr *net.UDPAddr, req wire.QualityTestRequest) wire.QualityTestResult {
	testID, err := uuid.Parse(req.TestID)
	if err != nil {
		testID = uuid.New()
	}

	done := make(chan struct{})
	var width, height int
	var fps, encodeMs float64

	go func() {
		defer close(done)
		if r.benchmark == nil {
			return
		}
		w, h, f, ms, err := r.benchmark.Run(ctx)
		if err != nil {
			log.Warn("encode benchmark failed", "testId", req.TestID, "error", err)
			return
		}
		width, height, fps, encodeMs = w, h, f, ms
	}()

	for stageID, stage := range req.Stages {
		if ctx.Err() != nil {
			break
		}
		r.runStage(ctx, remoteAddr, testID, uint16(stageID), stage)
	}

	<-done

	return wire.QualityTestResult{
		TestID:           req.TestID,
		BenchmarkWidth:   width,
		BenchmarkHeight:  height,
		BenchmarkFps:     fps,
		EncodeMs:         encodeMs,
		BenchmarkVersion: BenchmarkVersion,
	}
}

// runStage paces packetsPerSecond = bitrate / (payload + headerSize)
// packets across stage.DurationMs, bursting up to maxBurstPackets per tick
// and carrying forward any fractional packet budget so sustained throughput
// converges on the target bitrate even when the tick interval can't divide
// evenly.
func (r *Runner) runStage(ctx context.Context, addr *net.UDPAddr, testID uuid.UUID, stageID uint16, stage wire.QualityStage) {
	if stage.TargetBitrateBps <= 0 || stage.DurationMs <= 0 {
		return
	}

	packetsPerSecond := float64(stage.TargetBitrateBps) / float64(len(r.payload)+headerSize)
	if packetsPerSecond <= 0 {
		return
	}
	tickInterval := time.Duration(float64(time.Second) / packetsPerSecond)
	if tickInterval < minTickInterval {
		tickInterval = minTickInterval
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(time.Duration(stage.DurationMs) * time.Millisecond)
	var sequence uint32
	var budget float64

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.After(deadline) {
				return
			}
			budget += tickInterval.Seconds() * packetsPerSecond
			n := int(budget)
			if n > maxBurstPackets {
				n = maxBurstPackets
			}
			budget -= float64(n)

			for i := 0; i < n; i++ {
				h := wire.ProbeHeader{
					TestID:      testID,
					StageID:     stageID,
					Sequence:    sequence,
					TimestampNs: uint64(time.Now().UnixNano()),
					PayloadLen:  uint16(len(r.payload)),
				}
				sequence++
				packet := wire.EncodeProbePacket(h, r.payload)
				if err := r.sender.WriteData(addr, packet); err != nil {
					log.Warn("probe burst write failed", "error", err)
					return
				}
			}
		}
	}
}

// HostHeadroom samples instantaneous CPU and memory pressure for the
// benchmark's context, via gopsutil/v3.
type HostHeadroom struct {
	CPUPercent float64
	RAMPercent float64
}

// SampleHostHeadroom takes one CPU/RAM sample via cpu.Percent(0, false)
// and mem.VirtualMemory().
func SampleHostHeadroom() (HostHeadroom, error) {
	var h HostHeadroom

	cpuPercent, err := cpu.Percent(0, false)
	if err == nil && len(cpuPercent) > 0 {
		h.CPUPercent = cpuPercent[0]
	}

	vmem, err := mem.VirtualMemory()
	if err == nil {
		h.RAMPercent = vmem.UsedPercent
	}

	return h, nil
}
