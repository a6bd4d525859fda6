package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPointerControllerConvergesToTarget(t *testing.T) {
	fi := &fakeInjector{}
	cfg := DefaultPointerConfig()
	cfg.TickInterval = 2 * time.Millisecond
	cfg.StopDelay = 20 * time.Millisecond
	p := NewPointerController(fi, cfg)

	p.SetTarget(100, 100)
	require.Eventually(t, func() bool {
		if fi.moveCount() == 0 {
			return false
		}
		last := fi.lastMove()
		return last.x == 100 && last.y == 100
	}, time.Second, time.Millisecond, "pointer should converge and settle on target")
}

func TestPointerControllerWarpToIsImmediate(t *testing.T) {
	fi := &fakeInjector{}
	p := NewPointerController(fi, DefaultPointerConfig())
	require.NoError(t, p.WarpTo(50, 60))
	require.Len(t, fi.warps, 1)
	require.Equal(t, moveCall{50, 60}, fi.warps[0])
}

func TestPointerControllerStopHaltsLoop(t *testing.T) {
	fi := &fakeInjector{}
	cfg := DefaultPointerConfig()
	cfg.TickInterval = 2 * time.Millisecond
	p := NewPointerController(fi, cfg)
	p.SetTarget(10, 10)
	time.Sleep(10 * time.Millisecond)
	p.Stop()
	countAfterStop := fi.moveCount()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, countAfterStop, fi.moveCount(), "no further moves should be emitted after Stop")
}
