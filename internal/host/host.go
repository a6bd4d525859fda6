// Package host implements the central orchestrator tying every other
// component together and fulfilling internal/router.Handlers. Cyclic
// host/sub-controller references are modeled as explicit handles into a
// central table owned by the host, keyed by streamId, instead of
// back-references: sub-controllers (appstream, input, monitor) never
// hold a reference back to Host, only to the collaborator interfaces
// Host satisfies (loginstream.Starter, loginstream.DesktopStreamSource).
// One process-lifetime struct is constructed once in main, holding
// every collector/collaborator and implementing the dispatch surface
// the transport layer calls into.
package host

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/mirage/hostcore/internal/appstream"
	"github.com/mirage/hostcore/internal/capture"
	"github.com/mirage/hostcore/internal/desktopstream"
	"github.com/mirage/hostcore/internal/display"
	"github.com/mirage/hostcore/internal/input"
	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/loginstream"
	"github.com/mirage/hostcore/internal/monitor"
	"github.com/mirage/hostcore/internal/qualityprobe"
	"github.com/mirage/hostcore/internal/router"
	"github.com/mirage/hostcore/internal/sessiontracker"
	"github.com/mirage/hostcore/internal/streamctx"
	"github.com/mirage/hostcore/internal/trust"
	"github.com/mirage/hostcore/internal/wire"
	"github.com/mirage/hostcore/internal/workerpool"
)

// udpSendWorkers/udpSendQueueSize size the pool backing WriteStreamData.
// One pool is shared by every stream; a handful of workers is enough to
// keep up with bursty packetization without dedicating a goroutine per
// packet.
const (
	udpSendWorkers   = 4
	udpSendQueueSize = 1024
)

var log = logging.L("host")

// StreamBuilder hides platform capture construction behind one
// collaborator interface, the same "single narrow contract" shape
// internal/appstream.Activator uses, so Host stays testable without
// touching the darwin-only internal/capture backend.
type StreamBuilder interface {
	OpenWindowCapture(windowID uint32) (capture.Source, error)
	OpenDisplayCapture(displayID string) (capture.Source, error)
}

// Config carries Host's process-wide identity and tunables.
type Config struct {
	HostID              string
	HostName            string
	DataPort            uint16
	SessionPollInterval time.Duration
	UnlockMaxRetries    int
	AppCooldown         time.Duration
	TrustTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		SessionPollInterval: 2 * time.Second,
		UnlockMaxRetries:    5,
		AppCooldown:         appstream.DefaultCooldown,
		TrustTimeout:        trust.DefaultTimeout,
	}
}

// Deps carries every platform collaborator Host needs but does not own
// the concrete implementation of; cmd/miraged wires the real
// darwin-backed implementations, tests wire fakes.
type Deps struct {
	TrustProvider  trust.Provider
	TrustDelegate  trust.Delegate
	SessionQuerier sessiontracker.Querier
	DisplayBackend display.Backend
	Topology       desktopstream.TopologyController
	Activator      appstream.Activator
	Builder        StreamBuilder
	MenuProvider   monitor.MenuProvider
	MenuExecutor   monitor.MenuActionExecutor
	CursorShape    monitor.CursorShapeSource
	Frontmost      monitor.FrontmostQuerier
	DataSender     qualityprobe.DataSender
}

type streamHandle struct {
	streamID      uint16
	windowID      uint32
	ctx           *streamctx.StreamContext
	isDesktop     bool
	isLoginScreen bool
}

// Host implements router.Handlers and owns every component's lifetime.
type Host struct {
	cfg  Config
	deps Deps

	sessions *sessiontracker.Tracker
	displays *display.Manager
	desktop  *desktopstream.Controller
	login    *loginstream.Controller
	apps     *appstream.Orchestrator
	input    *input.Controller
	monitor  *monitor.Controller
	probe    *qualityprobe.Runner

	streamMu     sync.Mutex
	streams      map[uint16]*streamHandle
	nextStreamID uint32

	dataMu   sync.Mutex
	dataAddr map[uint16]*net.UDPAddr

	clientMu sync.Mutex
	clientID string
	sender   router.MessageSender

	udpSend *workerpool.Pool

	stopCooldown context.CancelFunc
}

var _ router.Handlers = (*Host)(nil)

func New(cfg Config, deps Deps) *Host {
	if cfg.SessionPollInterval <= 0 {
		cfg.SessionPollInterval = DefaultConfig().SessionPollInterval
	}
	if cfg.AppCooldown <= 0 {
		cfg.AppCooldown = appstream.DefaultCooldown
	}

	h := &Host{
		cfg:      cfg,
		deps:     deps,
		streams:  make(map[uint16]*streamHandle),
		dataAddr: make(map[uint16]*net.UDPAddr),
		udpSend:  workerpool.New(udpSendWorkers, udpSendQueueSize),
	}

	h.sessions = sessiontracker.New(deps.SessionQuerier, cfg.SessionPollInterval, cfg.UnlockMaxRetries)
	h.displays = display.NewManager(deps.DisplayBackend)
	h.desktop = desktopstream.NewController(h.displays, deps.Topology, h.stopAllNonDesktopStreams)
	h.login = loginstream.NewController(h, h)
	h.apps = appstream.NewOrchestrator(deps.Activator, cfg.AppCooldown, h)
	h.input = input.NewController(input.NewStreamCache())
	h.monitor = monitor.NewController(monitor.Callbacks{
		OnCursorUpdate:         h.pushCursorUpdate,
		OnCursorPositionUpdate: h.pushCursorPositionUpdate,
		OnMenuBarUpdate:        h.pushMenuBarUpdate,
	})
	h.probe = qualityprobe.NewRunner(deps.DataSender, qualityprobe.DefaultEncoderBenchmark())

	h.sessions.OnTransition(h.onSessionTransition)

	return h
}

// Run starts the session-state poller and the app-stream cooldown
// sweeper. It returns immediately; both run until ctx is cancelled.
func (h *Host) Run(ctx context.Context) {
	h.sessions.Start(ctx)

	cctx, cancel := context.WithCancel(ctx)
	h.stopCooldown = cancel
	go h.cooldownSweepLoop(cctx)
}

func (h *Host) Stop() {
	if h.stopCooldown != nil {
		h.stopCooldown()
	}
	h.sessions.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.udpSend.Shutdown(drainCtx)
}

func (h *Host) HostInfo() (string, string, uint16) {
	return h.cfg.HostID, h.cfg.HostName, h.cfg.DataPort
}

// InputController exposes the shared input controller so cmd/miraged can
// hand it to every router.Session; all sessions funnel into the same
// per-stream cache and injection pipeline regardless of which TCP
// connection an inputEvent arrived on.
func (h *Host) InputController() *input.Controller {
	return h.input
}

func (h *Host) EvaluateTrust(ctx context.Context, identity trust.Identity, closed <-chan struct{}) trust.Outcome {
	return trust.Evaluate(ctx, h.deps.TrustProvider, h.deps.TrustDelegate, identity, closed, h.cfg.TrustTimeout)
}

func (h *Host) ClientConnected(clientID string, sender router.MessageSender) {
	h.clientMu.Lock()
	h.clientID = clientID
	h.sender = sender
	h.clientMu.Unlock()

	state, token := h.sessions.State()
	h.push(wire.TypeSessionStateUpdate, wire.SessionStateUpdate{
		State:           sessionStateToWire(state),
		NewSessionToken: token,
	})
}

func (h *Host) ClientDisconnected(clientID string) {
	h.clientMu.Lock()
	if h.clientID == clientID {
		h.clientID = ""
		h.sender = nil
	}
	h.clientMu.Unlock()

	h.streamMu.Lock()
	handles := make([]*streamHandle, 0, len(h.streams))
	for _, sh := range h.streams {
		handles = append(handles, sh)
	}
	h.streamMu.Unlock()
	for _, sh := range handles {
		h.stopStreamHandle(sh, "client_disconnected")
	}
}

// push sends an unsolicited frame to the currently connected client, if
// any. Every async notification (sessionStateUpdate, loginDisplayReady,
// appList, cursor/menu updates, ...) funnels through here.
func (h *Host) push(typ wire.Type, payload any) {
	h.clientMu.Lock()
	sender := h.sender
	h.clientMu.Unlock()
	if sender == nil {
		return
	}
	if err := sender.SendMessage(typ, payload); err != nil {
		log.Warn("push failed", "type", typ, "error", err)
	}
}

func (h *Host) onSessionTransition(old, new sessiontracker.State, token string) {
	h.push(wire.TypeSessionStateUpdate, wire.SessionStateUpdate{
		State:           sessionStateToWire(new),
		NewSessionToken: token,
	})

	h.input.ClearAllModifiers()

	ctx := context.Background()
	if new.IsActive() {
		h.login.OnSessionActive()
	} else {
		h.login.OnSessionNonActive(ctx)
	}
}

func sessionStateToWire(s sessiontracker.State) wire.SessionState {
	switch s {
	case sessiontracker.StateLocked:
		return wire.SessionLocked
	case sessiontracker.StateLoginScreen:
		return wire.SessionLoginScreen
	case sessiontracker.StateScreensaver:
		return wire.SessionScreensaver
	case sessiontracker.StateSleeping:
		return wire.SessionSleeping
	default:
		return wire.SessionActive
	}
}

func (h *Host) allocStreamID() uint16 {
	h.nextStreamID++
	return uint16(h.nextStreamID)
}

// monitorConfigFor wires one stream's monitor.StreamConfig collaborators
// from Host's process-wide deps plus the stream's own rate controller and
// capture source.
func monitorConfigFor(windowID uint32, fps int, deps Deps, src capture.Source, rate monitor.RateController) monitor.StreamConfig {
	mc := monitor.StreamConfig{
		ConfiguredFPS: fps,
		WindowID:      windowID,
		CursorShape:   deps.CursorShape,
		Frontmost:     deps.Frontmost,
		Menu:          deps.MenuProvider,
		MenuExecutor:  deps.MenuExecutor,
		Rate:          rate,
	}
	if cp, ok := src.(monitor.CursorPositionSource); ok {
		mc.CursorPosition = cp
	}
	return mc
}
