package input

import (
	"testing"
	"time"

	"github.com/mirage/hostcore/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestScrollControllerEmitsAndDecaysToZero(t *testing.T) {
	fi := &fakeInjector{}
	cfg := DefaultScrollConfig()
	cfg.TickInterval = 2 * time.Millisecond
	cfg.DecayDelay = 5 * time.Millisecond
	sc := NewScrollController(fi, cfg)

	sc.HandleDelta(5, 0, wire.GesturePhaseChanged)

	require.Eventually(t, func() bool {
		fi.mu.Lock()
		defer fi.mu.Unlock()
		return len(fi.scrolls) > 0
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		sc.mu.Lock()
		running := sc.running
		sc.mu.Unlock()
		return !running
	}, time.Second, time.Millisecond, "decay should eventually stop the ticker")
}

func TestScrollControllerPhaseEndInjectsRawAndResets(t *testing.T) {
	fi := &fakeInjector{}
	sc := NewScrollController(fi, DefaultScrollConfig())
	sc.HandleDelta(3, -4, wire.GesturePhaseBegan)
	require.Len(t, fi.rawScrolls, 1)
	require.Equal(t, scrollCall{3, -4}, fi.rawScrolls[0])

	sc.mu.Lock()
	running := sc.running
	sc.mu.Unlock()
	require.False(t, running)
}
