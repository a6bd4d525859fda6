package desktopstream

import (
	"testing"

	"github.com/mirage/hostcore/internal/display"
	"github.com/mirage/hostcore/internal/streamctx"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct{ n int }

func (f *fakeBackend) Create(res display.Resolution, refresh float64, cs string) (string, error) {
	f.n++
	return "disp-1", nil
}
func (f *fakeBackend) Resize(id string, res display.Resolution, refresh float64) (string, bool, error) {
	return id, false, nil
}
func (f *fakeBackend) Destroy(id string) error { return nil }
func (f *fakeBackend) Bounds(id string) (display.Resolution, error) {
	return display.Resolution{Width: 1920, Height: 1080}, nil
}

type fakeTopology struct {
	snapshotCalls int
	restoreCalls  int
	mirrorCalls   int
}

func (f *fakeTopology) Snapshot() (TopologySnapshot, error) {
	f.snapshotCalls++
	return TopologySnapshot{MirroredDisplayIDs: map[string]string{"physical-1": "none"}}, nil
}
func (f *fakeTopology) EnableMirroring(physicalDisplayIDs []string, virtualDisplayID string) error {
	f.mirrorCalls++
	return nil
}
func (f *fakeTopology) Restore(snapshot TopologySnapshot) error {
	f.restoreCalls++
	return nil
}

func TestStartStopsOtherStreamsAndSnapshotsTopology(t *testing.T) {
	dm := display.NewManager(&fakeBackend{})
	topo := &fakeTopology{}
	var stoppedReason string
	ctrl := NewController(dm, topo, func(reason string) { stoppedReason = reason })

	stream := streamctx.New(streamctx.DefaultConfig(), streamctx.Callbacks{}, nil)
	err := ctrl.Start(ModeMirrored, []string{"physical-1"}, stream)
	require.NoError(t, err)
	require.Equal(t, "desktop_stream_starting", stoppedReason)
	require.Equal(t, 1, topo.snapshotCalls)
	require.Equal(t, 1, topo.mirrorCalls)
	require.True(t, ctrl.Active())
}

func TestStartTwiceFails(t *testing.T) {
	dm := display.NewManager(&fakeBackend{})
	topo := &fakeTopology{}
	ctrl := NewController(dm, topo, func(string) {})

	stream := streamctx.New(streamctx.DefaultConfig(), streamctx.Callbacks{}, nil)
	require.NoError(t, ctrl.Start(ModeSecondary, nil, stream))
	require.ErrorIs(t, ctrl.Start(ModeSecondary, nil, stream), ErrAlreadyActive)
}

func TestStopRestoresSnapshot(t *testing.T) {
	dm := display.NewManager(&fakeBackend{})
	topo := &fakeTopology{}
	ctrl := NewController(dm, topo, func(string) {})

	stream := streamctx.New(streamctx.DefaultConfig(), streamctx.Callbacks{}, nil)
	require.NoError(t, ctrl.Start(ModeMirrored, []string{"physical-1"}, stream))
	require.NoError(t, ctrl.Stop("client_requested"))
	require.Equal(t, 1, topo.restoreCalls)
	require.False(t, ctrl.Active())
}

func TestStopWithoutStartFails(t *testing.T) {
	dm := display.NewManager(&fakeBackend{})
	ctrl := NewController(dm, &fakeTopology{}, nil)
	require.ErrorIs(t, ctrl.Stop("x"), ErrNotActive)
}
