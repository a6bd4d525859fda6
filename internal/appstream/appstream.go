// Package appstream implements the app-stream orchestrator: maps a
// bundle identifier to a session of per-window streams, with a cooldown
// period on window close so a fast reopen takes over the cooldown slot
// (cancelling that cooldown) instead of returning the client to app
// selection; the reopened window still gets a stream of its own from
// the Activator. Session bookkeeping is a
// mutex-guarded map keyed by bundle id, with lifecycle methods that
// create/look-up/remove under the same lock.
package appstream

import (
	"errors"
	"sync"
	"time"

	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/streamctx"
)

var log = logging.L("appstream")

var (
	ErrSessionExists   = errors.New("appstream: session already exists for bundle id")
	ErrSessionNotFound = errors.New("appstream: no session for bundle id")
	ErrWindowNotFound  = errors.New("appstream: window not found")

	// ErrActivatorUnavailable is returned by an Activator collaborator
	// that has no backing window-enumeration/activation implementation
	// wired.
	ErrActivatorUnavailable = errors.New("appstream: no window activator configured")
)

// WindowStream is one streamed window within an app session.
type WindowStream struct {
	WindowID  uint32
	StreamID  uint16
	Title     string
	Width     int
	Height    int
	Resizable bool
	Stream    *streamctx.StreamContext
}

// Session is the per-bundle-id state for one streamed app.
type Session struct {
	ClientID string
	BundleID string
	AppName  string
	AppPath  string

	mu                sync.Mutex
	windows           map[uint32]*WindowStream
	windowsInCooldown map[uint32]time.Time
}

func newSession(clientID, bundleID, appName, appPath string) *Session {
	return &Session{
		ClientID:          clientID,
		BundleID:          bundleID,
		AppName:           appName,
		AppPath:           appPath,
		windows:           make(map[uint32]*WindowStream),
		windowsInCooldown: make(map[uint32]time.Time),
	}
}

func (s *Session) Windows() []*WindowStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*WindowStream, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, w)
	}
	return out
}

func (s *Session) HasWindows() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows) > 0
}

// Activator is the single collaborator contract this package needs from
// the platform layer: launch-or-find an app and enumerate its current
// windows, start a stream for one window, and close a window. A single
// Activator keeps the orchestrator's dependency surface to one narrow
// interface composed by the caller rather than one broad facade.
type Activator interface {
	LaunchOrFind(bundleID string) (appName, appPath string, err error)
	Windows(bundleID string) ([]WindowDescriptor, error)
	StartWindowStream(windowID uint32) (*streamctx.StreamContext, error)
	CloseWindow(windowID uint32) error
	InstalledApps() ([]AppDescriptor, error)

	// SetObserver registers the sink for lifecycle events the Activator
	// observes outside of any request/response flow: a new window
	// appearing for an already-streamed bundle id, or that bundle id's
	// app quitting. A platform implementation with real window
	// notifications (NSWorkspace/AX observers) calls back through obs the
	// moment it sees one; SetObserver is called exactly once, by
	// NewOrchestrator.
	SetObserver(obs Observer)
}

// Observer receives the asynchronous window/app lifecycle notifications
// described on Activator.SetObserver. The orchestrator implements it so
// a platform Activator has one place to report what it observes,
// without needing to know how the caller turns that into a wire
// message.
type Observer interface {
	OnNewWindow(bundleID string, d WindowDescriptor)
	OnAppTerminated(bundleID string)
}

type WindowDescriptor struct {
	WindowID  uint32
	Title     string
	Width     int
	Height    int
	Resizable bool
}

// AppDescriptor is one entry in the installed/running app list an
// appListRequest asks for.
type AppDescriptor struct {
	BundleID string
	AppName  string
	AppPath  string
	IconPNG  []byte
}

const DefaultCooldown = 10 * time.Second

// Sink receives the results of the lifecycle events Orchestrator
// processes on the Activator's behalf, so the caller that owns the wire
// protocol can turn them into windowAddedToStream, windowCooldownCancelled,
// or appTerminated notifications without the orchestrator needing to know
// about the wire package at all.
type Sink interface {
	WindowAdded(bundleID string, ws *WindowStream)
	WindowRedirected(bundleID string, ws *WindowStream, fromWindowID uint32)
	AppTerminated(bundleID string, closedWindowIDs []uint32, hadRemainingWindows bool)
}

type Orchestrator struct {
	activator Activator
	sink      Sink
	cooldown  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session // bundleId -> session

	// deferredAppListRequests holds clientIds that asked for the app list
	// while a desktop stream was active; appListRequest delivery is
	// deferred until the desktop stream ends.
	deferredAppListRequests []string
	desktopStreamActive     bool
}

// NewOrchestrator registers itself as activator's Observer, so a
// platform Activator implementation with real window-enumeration
// machinery can report a new window or a terminated app the moment it
// observes one, independent of any client request/response.
func NewOrchestrator(activator Activator, cooldown time.Duration, sink Sink) *Orchestrator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	o := &Orchestrator{activator: activator, sink: sink, cooldown: cooldown, sessions: make(map[string]*Session)}
	activator.SetObserver(o)
	return o
}

// OnNewWindow implements Observer: it runs NewWindow's cooldown-redirect
// logic and reports the outcome to the sink.
func (o *Orchestrator) OnNewWindow(bundleID string, d WindowDescriptor) {
	ws, redirectFrom, isRedirect, err := o.NewWindow(bundleID, d)
	if err != nil {
		log.Warn("new window event failed", "bundleId", bundleID, "windowId", d.WindowID, "error", err)
		return
	}
	if o.sink == nil {
		return
	}
	if isRedirect {
		o.sink.WindowRedirected(bundleID, ws, redirectFrom)
	} else {
		o.sink.WindowAdded(bundleID, ws)
	}
}

// OnAppTerminated implements Observer: it stops every remaining stream
// for bundleID and reports the outcome to the sink.
func (o *Orchestrator) OnAppTerminated(bundleID string) {
	closedWindowIDs, hadRemainingWindows := o.AppTerminated(bundleID)
	if o.sink == nil {
		return
	}
	o.sink.AppTerminated(bundleID, closedWindowIDs, hadRemainingWindows)
}

// SelectApp launches (or finds) bundleID, streams each of its current
// windows, and returns the started window streams.
func (o *Orchestrator) SelectApp(clientID, bundleID string) ([]*WindowStream, error) {
	appName, appPath, err := o.activator.LaunchOrFind(bundleID)
	if err != nil {
		return nil, err
	}

	session := newSession(clientID, bundleID, appName, appPath)

	descriptors, err := o.activator.Windows(bundleID)
	if err != nil {
		return nil, err
	}

	started := make([]*WindowStream, 0, len(descriptors))
	for _, d := range descriptors {
		stream, err := o.activator.StartWindowStream(d.WindowID)
		if err != nil {
			log.Warn("failed to start window stream", "bundleId", bundleID, "windowId", d.WindowID, "error", err)
			continue
		}
		ws := &WindowStream{WindowID: d.WindowID, StreamID: uint16(d.WindowID), Title: d.Title, Width: d.Width, Height: d.Height, Resizable: d.Resizable, Stream: stream}
		session.mu.Lock()
		session.windows[d.WindowID] = ws
		session.mu.Unlock()
		started = append(started, ws)
	}

	o.mu.Lock()
	o.sessions[bundleID] = session
	o.mu.Unlock()

	return started, nil
}

// NewWindow handles a new-window notification for an already-streamed
// app: redirect a cooldown slot if one exists, otherwise start fresh.
// Returns (windowStream, redirectedFromWindowID, isRedirect).
func (o *Orchestrator) NewWindow(bundleID string, d WindowDescriptor) (*WindowStream, uint32, bool, error) {
	o.mu.Lock()
	session, ok := o.sessions[bundleID]
	o.mu.Unlock()
	if !ok {
		return nil, 0, false, ErrSessionNotFound
	}

	session.mu.Lock()
	var redirectFrom uint32
	isRedirect := false
	for wid := range session.windowsInCooldown {
		redirectFrom = wid
		isRedirect = true
		delete(session.windowsInCooldown, wid)
		break
	}
	session.mu.Unlock()

	stream, err := o.activator.StartWindowStream(d.WindowID)
	if err != nil {
		return nil, 0, false, err
	}
	ws := &WindowStream{WindowID: d.WindowID, StreamID: uint16(d.WindowID), Title: d.Title, Width: d.Width, Height: d.Height, Resizable: d.Resizable, Stream: stream}

	session.mu.Lock()
	session.windows[d.WindowID] = ws
	session.mu.Unlock()

	return ws, redirectFrom, isRedirect, nil
}

// WindowClosed stops the window's stream and starts its cooldown.
func (o *Orchestrator) WindowClosed(bundleID string, windowID uint32) error {
	o.mu.Lock()
	session, ok := o.sessions[bundleID]
	o.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	session.mu.Lock()
	ws, found := session.windows[windowID]
	if !found {
		session.mu.Unlock()
		return ErrWindowNotFound
	}
	delete(session.windows, windowID)
	session.windowsInCooldown[windowID] = time.Now().Add(o.cooldown)
	session.mu.Unlock()

	if ws.Stream != nil {
		ws.Stream.Stop("window_closed")
	}
	if err := o.activator.CloseWindow(windowID); err != nil {
		log.Warn("close window failed", "windowId", windowID, "error", err)
	}
	return nil
}

// ExpireCooldowns removes any cooldown entries whose deadline has
// passed and returns the windowIDs that should be reported via
// returnToAppSelection. Callers are expected to invoke this on a timer.
func (o *Orchestrator) ExpireCooldowns(bundleID string) []uint32 {
	o.mu.Lock()
	session, ok := o.sessions[bundleID]
	o.mu.Unlock()
	if !ok {
		return nil
	}

	now := time.Now()
	session.mu.Lock()
	defer session.mu.Unlock()
	var expired []uint32
	for wid, deadline := range session.windowsInCooldown {
		if now.After(deadline) {
			expired = append(expired, wid)
			delete(session.windowsInCooldown, wid)
		}
	}
	return expired
}

// AppTerminated stops every remaining stream for bundleID and returns
// the closed window ids plus whether any windows remained open.
func (o *Orchestrator) AppTerminated(bundleID string) (closedWindowIDs []uint32, hadRemainingWindows bool) {
	o.mu.Lock()
	session, ok := o.sessions[bundleID]
	delete(o.sessions, bundleID)
	o.mu.Unlock()
	if !ok {
		return nil, false
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	hadRemainingWindows = len(session.windows) > 0
	for wid, ws := range session.windows {
		closedWindowIDs = append(closedWindowIDs, wid)
		if ws.Stream != nil {
			ws.Stream.Stop("app_terminated")
		}
	}
	return closedWindowIDs, hadRemainingWindows
}

// SetDesktopStreamActive gates deferred appListRequest delivery; flipping
// to false flushes any clientIds queued while it was true.
func (o *Orchestrator) SetDesktopStreamActive(active bool) (flushed []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.desktopStreamActive = active
	if !active {
		flushed = o.deferredAppListRequests
		o.deferredAppListRequests = nil
	}
	return flushed
}

// RequestAppList returns true if the list should be delivered now, or
// queues clientID and returns false if a desktop stream is active.
func (o *Orchestrator) RequestAppList(clientID string) (deliverNow bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.desktopStreamActive {
		o.deferredAppListRequests = append(o.deferredAppListRequests, clientID)
		return false
	}
	return true
}

// ActiveBundleIDs lists every bundle id with a live session, for a
// caller sweeping cooldowns on a timer.
func (o *Orchestrator) ActiveBundleIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.sessions))
	for bundleID := range o.sessions {
		out = append(out, bundleID)
	}
	return out
}

// WindowBundleID finds the bundle id owning windowID, for a caller that
// only has the window id (e.g. a closeWindowRequest off the wire).
func (o *Orchestrator) WindowBundleID(windowID uint32) (string, bool) {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		_, found := s.windows[windowID]
		s.mu.Unlock()
		if found {
			return s.BundleID, true
		}
	}
	return "", false
}
