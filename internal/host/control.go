package host

import (
	"context"
	"time"

	"github.com/mirage/hostcore/internal/appstream"
	"github.com/mirage/hostcore/internal/desktopstream"
	"github.com/mirage/hostcore/internal/input"
	"github.com/mirage/hostcore/internal/streamctx"
	"github.com/mirage/hostcore/internal/wire"
)

var _ appstream.Sink = (*Host)(nil)

// qualityProbeStreamID is the reserved streamID a client registers its UDP
// socket against before sending a qualityTestRequest, the same
// registration datagram (wire.EncodeRegistration) used for real streams,
// since a quality test can run before any window/desktop stream exists.
const qualityProbeStreamID = 0

// cooldownSweepInterval controls how often ExpireCooldowns is polled per
// active app session.
const cooldownSweepInterval = time.Second

// UnlockRequest forwards to the session tracker and maps its retry/token
// bookkeeping onto the wire response shape, including an errorCode a
// client can branch on.
func (h *Host) UnlockRequest(clientID string, req wire.UnlockRequest) wire.UnlockResponse {
	result := h.sessions.VerifyUnlock(req.SessionToken, req.RequiresUsername, req.Username != "")

	resp := wire.UnlockResponse{
		Success:           result.Success,
		NewState:          sessionStateToWire(result.NewState),
		NewSessionToken:   result.NewSessionToken,
		CanRetry:          result.CanRetry,
		RetriesRemaining:  result.RetriesRemaining,
		RetryAfterSeconds: result.RetryAfterSeconds,
	}
	if result.Success {
		return resp
	}

	switch {
	case req.SessionToken != result.NewSessionToken:
		resp.ErrorCode = wire.UnlockErrorSessionExpired
	case result.RetriesRemaining <= 0 && !result.CanRetry:
		resp.ErrorCode = wire.UnlockErrorTooManyRetries
	case req.RequiresUsername:
		resp.ErrorCode = wire.UnlockErrorAuthFailed
	default:
		resp.ErrorCode = wire.UnlockErrorWrongToken
	}
	return resp
}

// StartDesktopStream opens a capture of the primary display, hands it to
// the desktop-stream controller (which stops every window/app stream
// first, since the two are mutually exclusive), and pushes the result
// itself since, unlike startStream, the router sends no reply frame for
// this message type.
func (h *Host) StartDesktopStream(clientID string) error {
	src, err := h.deps.Builder.OpenDisplayCapture("")
	if err != nil {
		return err
	}

	h.streamMu.Lock()
	streamID := h.allocStreamID()
	h.streamMu.Unlock()

	cfg := streamctx.DefaultConfig()
	cfg.StreamID = streamID
	cfg.IsDesktopStream = true

	sh := &streamHandle{streamID: streamID, isDesktop: true}
	ctx := streamctx.New(cfg, streamctx.Callbacks{
		OnDimensionChange: func(token uint32, width, height int) {
			h.push(wire.TypeDisplayResolutionChange, wire.DisplayResolutionChange{Width: width, Height: height})
		},
		OnStopped: func(reason string) {
			h.streamMu.Lock()
			delete(h.streams, streamID)
			h.streamMu.Unlock()
			h.unregisterDataAddr(streamID)
			h.input.UnregisterStream(streamID)
			h.monitor.UnregisterStream(streamID)
		},
	}, h)
	sh.ctx = ctx

	width, height, err := src.Bounds()
	if err != nil {
		ctx.Stop("bounds_unavailable")
		return err
	}
	if err := ctx.Start(src, nil); err != nil {
		return err
	}

	if err := h.desktop.Start(desktopstream.ModeMirrored, nil, ctx); err != nil {
		ctx.Stop("desktop_start_failed")
		return err
	}

	h.streamMu.Lock()
	h.streams[streamID] = sh
	h.streamMu.Unlock()

	h.input.RegisterStream(streamID, input.NewInjector())
	mc := monitorConfigFor(0, cfg.TargetFPS, h.deps, src, ctx)
	mc.DesktopStream = true
	h.monitor.RegisterStream(streamID, mc)

	h.apps.SetDesktopStreamActive(true)

	h.push(wire.TypeDesktopStreamStarted, wire.DesktopStreamStarted{
		StreamID:       streamID,
		DimensionToken: ctx.DimensionToken(),
		Width:          width,
		Height:         height,
		Mode:           wire.DesktopModeMirrored,
	})
	return nil
}

// StopDesktopStream tears down the desktop stream and, if any
// appListRequest calls were deferred while it ran, delivers the list now.
func (h *Host) StopDesktopStream(clientID string) {
	if err := h.desktop.Stop("client_requested"); err != nil {
		log.Warn("stop desktop stream failed", "clientId", clientID, "error", err)
	}
	if flushed := h.apps.SetDesktopStreamActive(false); len(flushed) > 0 {
		h.sendAppList()
	}
	h.push(wire.TypeDesktopStreamStopped, wire.DesktopStreamStopped{Reason: "client_requested"})
}

// SelectApp launches (or finds) bundleID and streams its current windows,
// pushing an appStreamStarted frame with the started windows.
func (h *Host) SelectApp(clientID, bundleID string) error {
	windows, err := h.apps.SelectApp(clientID, bundleID)
	if err != nil {
		return err
	}

	wireWindows := make([]wire.StreamedWindow, 0, len(windows))
	for _, w := range windows {
		wireWindows = append(wireWindows, toStreamedWindow(w))
	}
	h.push(wire.TypeAppStreamStarted, wire.AppStreamStarted{BundleID: bundleID, Windows: wireWindows})
	return nil
}

func toStreamedWindow(w *appstream.WindowStream) wire.StreamedWindow {
	return wire.StreamedWindow{
		WindowID:  w.WindowID,
		StreamID:  w.StreamID,
		Title:     w.Title,
		Width:     w.Width,
		Height:    w.Height,
		Resizable: w.Resizable,
	}
}

// WindowAdded implements appstream.Sink: the Activator observed a new
// window for a streamed app with no cooldown slot to redirect, so a
// fresh stream was started for it.
func (h *Host) WindowAdded(bundleID string, ws *appstream.WindowStream) {
	h.push(wire.TypeWindowAddedToStream, wire.WindowAddedToStream{
		BundleID: bundleID,
		Window:   toStreamedWindow(ws),
	})
}

// WindowRedirected implements appstream.Sink: the Activator observed a
// new window that took over a window's cooldown slot instead of
// returning the client to app selection.
func (h *Host) WindowRedirected(bundleID string, ws *appstream.WindowStream, fromWindowID uint32) {
	h.push(wire.TypeWindowCooldownCancelled, wire.WindowCooldownCancelled{
		BundleID: bundleID,
		WindowID: fromWindowID,
	})
	h.push(wire.TypeWindowAddedToStream, wire.WindowAddedToStream{
		BundleID: bundleID,
		Window:   toStreamedWindow(ws),
	})
}

// AppTerminated implements appstream.Sink: the Activator observed the
// streamed app quitting, so every remaining window stream for it was
// stopped.
func (h *Host) AppTerminated(bundleID string, closedWindowIDs []uint32, hadRemainingWindows bool) {
	h.push(wire.TypeAppTerminated, wire.AppTerminated{
		BundleID:            bundleID,
		ClosedWindowIDs:     closedWindowIDs,
		HasRemainingWindows: hadRemainingWindows,
	})
}

// RequestAppList asks the orchestrator whether the list can be delivered
// now (it's deferred while a desktop stream is active) and pushes it.
func (h *Host) RequestAppList(clientID string) {
	if h.apps.RequestAppList(clientID) {
		h.sendAppList()
	}
}

func (h *Host) sendAppList() {
	apps, err := h.deps.Activator.InstalledApps()
	if err != nil {
		log.Warn("installed apps lookup failed", "error", err)
		apps = nil
	}
	wireApps := make([]wire.AppInfo, 0, len(apps))
	for _, a := range apps {
		wireApps = append(wireApps, wire.AppInfo{BundleID: a.BundleID, AppName: a.AppName, AppPath: a.AppPath, IconPNG: a.IconPNG})
	}
	h.push(wire.TypeAppList, wire.AppList{Apps: wireApps})
}

// CloseWindow resolves windowID's owning bundle id and closes it through
// the orchestrator, then announces the cooldown window the client sees
// before returnToAppSelection fires.
func (h *Host) CloseWindow(clientID string, windowID uint32) {
	bundleID, ok := h.apps.WindowBundleID(windowID)
	if !ok {
		log.Warn("close window for unknown window id", "clientId", clientID, "windowId", windowID)
		return
	}
	if err := h.apps.WindowClosed(bundleID, windowID); err != nil {
		log.Warn("close window failed", "clientId", clientID, "bundleId", bundleID, "windowId", windowID, "error", err)
		return
	}
	h.push(wire.TypeWindowCooldownStarted, wire.WindowCooldownStarted{
		BundleID: bundleID,
		WindowID: windowID,
		Seconds:  h.cfg.AppCooldown.Seconds(),
	})
}

// QualityTestRequest runs the probe against the UDP address the client
// registered for qualityProbeStreamID. No address means no registration
// datagram arrived yet, so the test is reported with zeroed benchmark
// fields rather than hanging.
func (h *Host) QualityTestRequest(clientID string, req wire.QualityTestRequest) wire.QualityTestResult {
	h.dataMu.Lock()
	addr, ok := h.dataAddr[qualityProbeStreamID]
	h.dataMu.Unlock()
	if !ok {
		log.Warn("quality test requested with no registered UDP address", "clientId", clientID)
		return wire.QualityTestResult{TestID: req.TestID}
	}

	ctx, cancel := context.WithTimeout(context.Background(), qualityTestTimeout(req))
	defer cancel()
	return h.probe.Run(ctx, addr, req)
}

func qualityTestTimeout(req wire.QualityTestRequest) time.Duration {
	budget := 5 * time.Second
	for _, stage := range req.Stages {
		budget += time.Duration(stage.DurationMs) * time.Millisecond
	}
	return budget
}

// StartLoginDisplayStream implements loginstream.Starter: it opens a
// fresh capture of the login/lock screen when there is no desktop stream
// running to borrow instead.
func (h *Host) StartLoginDisplayStream() (*streamctx.StreamContext, error) {
	src, err := h.deps.Builder.OpenDisplayCapture("")
	if err != nil {
		return nil, err
	}

	h.streamMu.Lock()
	streamID := h.allocStreamID()
	h.streamMu.Unlock()

	cfg := streamctx.DefaultConfig()
	cfg.StreamID = streamID
	cfg.IsLoginDisplay = true

	sh := &streamHandle{streamID: streamID, isLoginScreen: true}
	ctx := streamctx.New(cfg, streamctx.Callbacks{
		OnDimensionChange: func(token uint32, width, height int) {
			h.push(wire.TypeDisplayResolutionChange, wire.DisplayResolutionChange{Width: width, Height: height})
		},
		OnStopped: func(reason string) {
			h.streamMu.Lock()
			delete(h.streams, streamID)
			h.streamMu.Unlock()
			h.unregisterDataAddr(streamID)
			h.push(wire.TypeLoginDisplayStopped, wire.LoginDisplayStopped{Reason: reason})
		},
		OnFrameCaptured: h.login.NotifyFrameCaptured,
	}, h)
	sh.ctx = ctx

	width, height, err := src.Bounds()
	if err != nil {
		ctx.Stop("bounds_unavailable")
		return nil, err
	}
	if err := ctx.Start(src, nil); err != nil {
		return nil, err
	}

	h.streamMu.Lock()
	h.streams[streamID] = sh
	h.streamMu.Unlock()

	h.push(wire.TypeLoginDisplayReady, wire.LoginDisplayReady{
		StreamID:       streamID,
		DimensionToken: ctx.DimensionToken(),
		Width:          width,
		Height:         height,
	})
	return ctx, nil
}

// BorrowedDesktopStream implements loginstream.DesktopStreamSource: the
// login-display controller reuses the running desktop stream's frames
// instead of opening a second capture of the same displays.
func (h *Host) BorrowedDesktopStream() *streamctx.StreamContext {
	if !h.desktop.Active() {
		return nil
	}
	h.streamMu.Lock()
	defer h.streamMu.Unlock()
	for _, sh := range h.streams {
		if sh.isDesktop {
			return sh.ctx
		}
	}
	return nil
}

// cooldownSweepLoop expires window-close cooldowns for every app session
// on a timer, pushing returnToAppSelection for any bundle id whose
// cooldown lapsed without a redirect.
func (h *Host) cooldownSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(cooldownSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, bundleID := range h.apps.ActiveBundleIDs() {
				if expired := h.apps.ExpireCooldowns(bundleID); len(expired) > 0 {
					h.push(wire.TypeReturnToAppSelection, wire.ReturnToAppSelection{BundleID: bundleID})
				}
			}
		}
	}
}

func (h *Host) pushCursorUpdate(streamID uint16, imagePNG []byte, hotspotX, hotspotY float64) {
	h.push(wire.TypeCursorUpdate, wire.CursorUpdate{StreamID: streamID, ImagePNG: imagePNG, HotspotX: hotspotX, HotspotY: hotspotY})
}

func (h *Host) pushCursorPositionUpdate(streamID uint16, x, y int, visible bool) {
	h.push(wire.TypeCursorPositionUpdate, wire.CursorPositionUpdate{StreamID: streamID, X: x, Y: y, Visible: visible})
}

func (h *Host) pushMenuBarUpdate(streamID uint16, menus []wire.MenuItem) {
	h.push(wire.TypeMenuBarUpdate, wire.MenuBarUpdate{StreamID: streamID, Menus: menus})
}
