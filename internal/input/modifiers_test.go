package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestModifierTrackerDownThenUpEmitsKeyEventsAndFlags(t *testing.T) {
	fi := &fakeInjector{}
	mt := NewModifierTracker(fi)

	mt.HandleFlagsChanged(keyCodeLShift, ModShift, ModShift)
	require.Equal(t, []keyCall{{keyCodeLShift, true}}, fi.keys)
	require.Equal(t, ModShift, mt.CurrentFlags())

	mt.HandleFlagsChanged(keyCodeLShift, ModShift, 0)
	require.Equal(t, []keyCall{{keyCodeLShift, true}, {keyCodeLShift, false}}, fi.keys)
	require.Equal(t, ModifierFlags(0), mt.CurrentFlags())
}

func TestModifierTrackerStaleWatchdogClears(t *testing.T) {
	fi := &fakeInjector{}
	mt := NewModifierTracker(fi)
	mt.HandleFlagsChanged(keyCodeLCommand, ModCommand, ModCommand)

	// Force staleness without waiting the real 500ms by directly invoking
	// the sweep after rewriting the last-seen time.
	mt.mu.Lock()
	hk := mt.held[keyCodeLCommand]
	hk.lastAt = time.Now().Add(-time.Second)
	mt.held[keyCodeLCommand] = hk
	mt.mu.Unlock()

	mt.sweepStale()

	require.Contains(t, fi.keys, keyCall{keyCodeLCommand, false})
	require.Equal(t, ModifierFlags(0), mt.CurrentFlags())
}

func TestModifierTrackerClearAllReleasesEverything(t *testing.T) {
	fi := &fakeInjector{}
	mt := NewModifierTracker(fi)
	mt.HandleFlagsChanged(keyCodeLShift, ModShift, ModShift)
	mt.HandleFlagsChanged(keyCodeLControl, ModControl, ModShift|ModControl)

	mt.ClearAll()

	require.Contains(t, fi.keys, keyCall{keyCodeLShift, false})
	require.Contains(t, fi.keys, keyCall{keyCodeLControl, false})
	require.Equal(t, ModifierFlags(0), fi.flagsCalls[len(fi.flagsCalls)-1])
}

func TestModifierTrackerReconcileForceClearsExtraOSFlags(t *testing.T) {
	fi := &fakeInjector{osModifiers: ModOption}
	mt := NewModifierTracker(fi)
	mt.reconcileOS()
	require.Equal(t, ModifierFlags(0), fi.flagsCalls[len(fi.flagsCalls)-1])
}
