package input

import (
	"testing"

	"github.com/mirage/hostcore/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestGestureTranslatorMagnifyFiresOnThresholdCrossing(t *testing.T) {
	fi := &fakeInjector{}
	mt := NewModifierTracker(fi)
	gt := NewGestureTranslator(fi, mt)

	gt.HandleMagnify(0.05, wire.GesturePhaseBegan)
	require.Empty(t, fi.keys, "below threshold should not fire yet")

	gt.HandleMagnify(0.05, wire.GesturePhaseChanged)
	require.Contains(t, fi.keys, keyCall{keyEquals, true})
	require.Contains(t, fi.keys, keyCall{keyEquals, false})
}

func TestGestureTranslatorMagnifyNegativeUsesMinusKey(t *testing.T) {
	fi := &fakeInjector{}
	mt := NewModifierTracker(fi)
	gt := NewGestureTranslator(fi, mt)

	gt.HandleMagnify(-0.09, wire.GesturePhaseChanged)
	require.Contains(t, fi.keys, keyCall{keyMinus, true})
}

func TestGestureTranslatorMagnifyFlushesFinalPartialOnEnd(t *testing.T) {
	fi := &fakeInjector{}
	mt := NewModifierTracker(fi)
	gt := NewGestureTranslator(fi, mt)

	gt.HandleMagnify(0.05, wire.GesturePhaseBegan) // below threshold, above half (0.04)
	fi.keys = nil
	gt.HandleMagnify(0, wire.GesturePhaseEnded)
	require.Contains(t, fi.keys, keyCall{keyEquals, true}, "residual past half-threshold should flush a final keystroke")
}

func TestGestureTranslatorRotateFiresAltScroll(t *testing.T) {
	fi := &fakeInjector{}
	mt := NewModifierTracker(fi)
	gt := NewGestureTranslator(fi, mt)

	gt.HandleRotate(2.5, wire.GesturePhaseChanged)
	require.Len(t, fi.scrolls, 1)
}
