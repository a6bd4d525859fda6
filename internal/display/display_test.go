package display

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	nextID     int
	created    int
	destroyed  int
	resizeable bool
	bounds     Resolution
}

func (f *fakeBackend) Create(res Resolution, refreshRate float64, colorSpace string) (string, error) {
	f.nextID++
	f.created++
	f.bounds = res
	return fmt.Sprintf("disp-%d", f.nextID), nil
}

func (f *fakeBackend) Resize(displayID string, res Resolution, refreshRate float64) (string, bool, error) {
	f.bounds = res
	if f.resizeable {
		return displayID, false, nil
	}
	f.nextID++
	f.created++
	return fmt.Sprintf("disp-%d", f.nextID), true, nil
}

func (f *fakeBackend) Destroy(displayID string) error {
	f.destroyed++
	return nil
}

func (f *fakeBackend) Bounds(displayID string) (Resolution, error) {
	return f.bounds, nil
}

func TestAcquireCreatesOnFirstConsumer(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b)

	snap, err := m.Acquire("stream-a", Resolution{Width: 1920, Height: 1080}, 60, "sRGB")
	require.NoError(t, err)
	require.Equal(t, 1, b.created)
	require.Equal(t, uint64(1), snap.Generation)
	require.Equal(t, 1, m.ConsumerCount())
}

func TestAcquireSharesForSecondConsumer(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b)

	_, err := m.Acquire("stream-a", Resolution{Width: 1920, Height: 1080}, 60, "sRGB")
	require.NoError(t, err)

	snap2, err := m.Acquire("stream-b", Resolution{Width: 1280, Height: 720}, 30, "sRGB")
	require.NoError(t, err)
	require.Equal(t, 1, b.created, "second acquire must not create a new display")
	require.Equal(t, 1920, snap2.Resolution.Width, "second consumer gets the existing snapshot, not its own request")
	require.Equal(t, 2, m.ConsumerCount())
}

func TestReleaseDestroysOnlyWhenLastConsumerLeaves(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b)

	_, _ = m.Acquire("stream-a", Resolution{Width: 1920, Height: 1080}, 60, "sRGB")
	_, _ = m.Acquire("stream-b", Resolution{Width: 1920, Height: 1080}, 60, "sRGB")

	require.NoError(t, m.Release("stream-a"))
	require.Equal(t, 0, b.destroyed)

	require.NoError(t, m.Release("stream-b"))
	require.Equal(t, 1, b.destroyed)
	require.Equal(t, 0, m.ConsumerCount())
}

func TestReleaseUnknownConsumerErrors(t *testing.T) {
	m := NewManager(&fakeBackend{})
	require.ErrorIs(t, m.Release("ghost"), ErrUnknownConsumer)
}

func TestUpdateResolutionInPlaceKeepsGeneration(t *testing.T) {
	b := &fakeBackend{resizeable: true}
	m := NewManager(b)
	_, _ = m.Acquire("stream-a", Resolution{Width: 1280, Height: 720}, 30, "sRGB")

	snap, err := m.UpdateResolution(Resolution{Width: 1920, Height: 1080}, 60)
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Generation)
	require.Equal(t, 1920, snap.Resolution.Width)
}

func TestUpdateResolutionRecreateBumpsGenerationAndFiresHandler(t *testing.T) {
	b := &fakeBackend{resizeable: false}
	m := NewManager(b)
	_, _ = m.Acquire("stream-a", Resolution{Width: 1280, Height: 720}, 30, "sRGB")

	var firedGen uint64
	var firedPrev uint64
	m.SetGenerationChangeHandler(func(newSnap Snapshot, previousGeneration uint64) {
		firedGen = newSnap.Generation
		firedPrev = previousGeneration
	})

	snap, err := m.UpdateResolution(Resolution{Width: 1920, Height: 1080}, 60)
	require.NoError(t, err)
	require.Equal(t, uint64(2), snap.Generation)
	require.Equal(t, uint64(2), firedGen)
	require.Equal(t, uint64(1), firedPrev)
}

func TestUpdateResolutionWithNoConsumersErrors(t *testing.T) {
	m := NewManager(&fakeBackend{})
	_, err := m.UpdateResolution(Resolution{Width: 100, Height: 100}, 60)
	require.ErrorIs(t, err, ErrNoConsumers)
}

func TestGetBoundsFallsBackToKnownResolutionOnZero(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b)
	_, _ = m.Acquire("stream-a", Resolution{Width: 1920, Height: 1080}, 60, "sRGB")
	b.bounds = Resolution{}

	res, err := m.GetBounds()
	require.NoError(t, err)
	require.Equal(t, 1920, res.Width)
	require.Equal(t, 1080, res.Height)
}

func TestGetGenerationZeroWithoutConsumers(t *testing.T) {
	m := NewManager(&fakeBackend{})
	require.Equal(t, uint64(0), m.GetGeneration())
}
