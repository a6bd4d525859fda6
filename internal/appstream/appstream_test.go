package appstream

import (
	"testing"
	"time"

	"github.com/mirage/hostcore/internal/streamctx"
	"github.com/stretchr/testify/require"
)

type fakeActivator struct {
	launchCalls int
	windows     map[string][]WindowDescriptor
	closed      []uint32
	observer    Observer
}

func (f *fakeActivator) LaunchOrFind(bundleID string) (string, string, error) {
	f.launchCalls++
	return "Fake App", "/Applications/Fake.app", nil
}

func (f *fakeActivator) Windows(bundleID string) ([]WindowDescriptor, error) {
	return f.windows[bundleID], nil
}

func (f *fakeActivator) StartWindowStream(windowID uint32) (*streamctx.StreamContext, error) {
	return streamctx.New(streamctx.DefaultConfig(), streamctx.Callbacks{}, nil), nil
}

func (f *fakeActivator) CloseWindow(windowID uint32) error {
	f.closed = append(f.closed, windowID)
	return nil
}

func (f *fakeActivator) InstalledApps() ([]AppDescriptor, error) { return nil, nil }

func (f *fakeActivator) SetObserver(obs Observer) { f.observer = obs }

type fakeSink struct {
	added        []*WindowStream
	redirected   []*WindowStream
	redirectedFr []uint32
	terminated   []string
	closedIDs    [][]uint32
	hadRemaining []bool
}

func (s *fakeSink) WindowAdded(bundleID string, ws *WindowStream) { s.added = append(s.added, ws) }
func (s *fakeSink) WindowRedirected(bundleID string, ws *WindowStream, fromWindowID uint32) {
	s.redirected = append(s.redirected, ws)
	s.redirectedFr = append(s.redirectedFr, fromWindowID)
}
func (s *fakeSink) AppTerminated(bundleID string, closedWindowIDs []uint32, hadRemainingWindows bool) {
	s.terminated = append(s.terminated, bundleID)
	s.closedIDs = append(s.closedIDs, closedWindowIDs)
	s.hadRemaining = append(s.hadRemaining, hadRemainingWindows)
}

func TestSelectAppStartsAllWindows(t *testing.T) {
	act := &fakeActivator{windows: map[string][]WindowDescriptor{
		"com.fake.app": {{WindowID: 1, Title: "Main"}, {WindowID: 2, Title: "Inspector"}},
	}}
	o := NewOrchestrator(act, time.Millisecond, nil)

	started, err := o.SelectApp("client-1", "com.fake.app")
	require.NoError(t, err)
	require.Len(t, started, 2)
	require.Equal(t, 1, act.launchCalls)
}

func TestWindowClosedStartsCooldownAndStopsStream(t *testing.T) {
	act := &fakeActivator{windows: map[string][]WindowDescriptor{
		"com.fake.app": {{WindowID: 1, Title: "Main"}},
	}}
	o := NewOrchestrator(act, time.Minute, nil)
	_, err := o.SelectApp("client-1", "com.fake.app")
	require.NoError(t, err)

	require.NoError(t, o.WindowClosed("com.fake.app", 1))
	require.Contains(t, act.closed, uint32(1))

	// Still within cooldown: ExpireCooldowns should report nothing yet.
	require.Empty(t, o.ExpireCooldowns("com.fake.app"))
}

func TestWindowClosedUnknownSessionErrors(t *testing.T) {
	o := NewOrchestrator(&fakeActivator{}, time.Minute, nil)
	require.ErrorIs(t, o.WindowClosed("com.unknown", 1), ErrSessionNotFound)
}

func TestExpireCooldownsReportsAfterDeadline(t *testing.T) {
	act := &fakeActivator{windows: map[string][]WindowDescriptor{
		"com.fake.app": {{WindowID: 1, Title: "Main"}},
	}}
	o := NewOrchestrator(act, time.Millisecond, nil)
	_, err := o.SelectApp("client-1", "com.fake.app")
	require.NoError(t, err)
	require.NoError(t, o.WindowClosed("com.fake.app", 1))

	time.Sleep(5 * time.Millisecond)
	expired := o.ExpireCooldowns("com.fake.app")
	require.Equal(t, []uint32{1}, expired)
}

func TestNewWindowRedirectsFromCooldownSlot(t *testing.T) {
	act := &fakeActivator{windows: map[string][]WindowDescriptor{
		"com.fake.app": {{WindowID: 1, Title: "Main"}},
	}}
	o := NewOrchestrator(act, time.Minute, nil)
	_, err := o.SelectApp("client-1", "com.fake.app")
	require.NoError(t, err)
	require.NoError(t, o.WindowClosed("com.fake.app", 1))

	ws, redirectedFrom, isRedirect, err := o.NewWindow("com.fake.app", WindowDescriptor{WindowID: 2, Title: "Reopened"})
	require.NoError(t, err)
	require.True(t, isRedirect)
	require.Equal(t, uint32(1), redirectedFrom)
	require.Equal(t, uint32(2), ws.WindowID)
}

func TestAppTerminatedStopsAllRemainingStreams(t *testing.T) {
	act := &fakeActivator{windows: map[string][]WindowDescriptor{
		"com.fake.app": {{WindowID: 1}, {WindowID: 2}},
	}}
	o := NewOrchestrator(act, time.Minute, nil)
	_, err := o.SelectApp("client-1", "com.fake.app")
	require.NoError(t, err)

	closed, hadWindows := o.AppTerminated("com.fake.app")
	require.True(t, hadWindows)
	require.ElementsMatch(t, []uint32{1, 2}, closed)

	// Second call: session already removed.
	closed2, hadWindows2 := o.AppTerminated("com.fake.app")
	require.Nil(t, closed2)
	require.False(t, hadWindows2)
}

func TestActivatorNewWindowObserverRedirectsCooldownSlot(t *testing.T) {
	act := &fakeActivator{windows: map[string][]WindowDescriptor{
		"com.fake.app": {{WindowID: 1, Title: "Main"}},
	}}
	sink := &fakeSink{}
	o := NewOrchestrator(act, time.Minute, sink)
	_, err := o.SelectApp("client-1", "com.fake.app")
	require.NoError(t, err)
	require.NoError(t, o.WindowClosed("com.fake.app", 1))

	// The Activator observed a new window the way a real window-server
	// notification would, and reports it through the Observer it was
	// handed at construction time rather than the caller driving
	// NewWindow directly.
	act.observer.OnNewWindow("com.fake.app", WindowDescriptor{WindowID: 2, Title: "Reopened"})

	require.Len(t, sink.redirected, 1)
	require.Equal(t, uint32(2), sink.redirected[0].WindowID)
	require.Equal(t, []uint32{1}, sink.redirectedFr)
	require.Empty(t, sink.added)
}

func TestActivatorNewWindowObserverWithoutCooldownAddsWindow(t *testing.T) {
	act := &fakeActivator{windows: map[string][]WindowDescriptor{
		"com.fake.app": {{WindowID: 1, Title: "Main"}},
	}}
	sink := &fakeSink{}
	o := NewOrchestrator(act, time.Minute, sink)
	_, err := o.SelectApp("client-1", "com.fake.app")
	require.NoError(t, err)

	act.observer.OnNewWindow("com.fake.app", WindowDescriptor{WindowID: 2, Title: "Second"})

	require.Len(t, sink.added, 1)
	require.Equal(t, uint32(2), sink.added[0].WindowID)
	require.Empty(t, sink.redirected)
}

func TestActivatorAppTerminatedObserverNotifiesSink(t *testing.T) {
	act := &fakeActivator{windows: map[string][]WindowDescriptor{
		"com.fake.app": {{WindowID: 1}, {WindowID: 2}},
	}}
	sink := &fakeSink{}
	o := NewOrchestrator(act, time.Minute, sink)
	_, err := o.SelectApp("client-1", "com.fake.app")
	require.NoError(t, err)

	act.observer.OnAppTerminated("com.fake.app")

	require.Equal(t, []string{"com.fake.app"}, sink.terminated)
	require.ElementsMatch(t, []uint32{1, 2}, sink.closedIDs[0])
	require.Equal(t, []bool{true}, sink.hadRemaining)
}

func TestRequestAppListDeferredWhileDesktopStreamActive(t *testing.T) {
	o := NewOrchestrator(&fakeActivator{}, time.Minute, nil)
	o.SetDesktopStreamActive(true)

	require.False(t, o.RequestAppList("client-1"))

	flushed := o.SetDesktopStreamActive(false)
	require.Equal(t, []string{"client-1"}, flushed)

	require.True(t, o.RequestAppList("client-2"))
}
