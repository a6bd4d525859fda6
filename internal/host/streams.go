package host

import (
	"errors"
	"net"

	"github.com/mirage/hostcore/internal/input"
	"github.com/mirage/hostcore/internal/streamctx"
	"github.com/mirage/hostcore/internal/wire"
)

var (
	ErrUnknownStream    = errors.New("host: unknown stream id")
	ErrSessionNotActive = errors.New("host: session is not active")
)

// WriteStreamData implements internal/streamctx.Sender by looking up the
// UDP address the client registered for streamID (via the "MIRG"
// registration datagram, decoded in cmd/miraged's ServeData loop and
// handed to RegisterDataAddr) and handing the packet to the UDP send
// worker pool so a slow or blocked write on one client's data socket
// never stalls the stream's own capture/encode goroutine.
func (h *Host) WriteStreamData(streamID uint16, payload []byte) error {
	h.dataMu.Lock()
	addr, ok := h.dataAddr[streamID]
	h.dataMu.Unlock()
	if !ok {
		return nil // no registration yet: drop silently, no UDP frames go out until registration
	}

	if !h.udpSend.Submit(func() {
		if err := h.deps.DataSender.WriteData(addr, payload); err != nil {
			log.Warn("udp send failed", "streamId", streamID, "error", err)
		}
	}) {
		log.Warn("udp send worker saturated, dropping packet", "streamId", streamID)
	}
	return nil
}

// RegisterDataAddr binds streamID to the UDP address a client registered
// from and marks the matching stream registered so its frames start
// going out. Called by the transport layer's ServeData callback after
// wire.DecodeRegistration succeeds.
func (h *Host) RegisterDataAddr(streamID uint16, addr *net.UDPAddr) {
	h.dataMu.Lock()
	h.dataAddr[streamID] = addr
	h.dataMu.Unlock()

	h.streamMu.Lock()
	sh, ok := h.streams[streamID]
	h.streamMu.Unlock()
	if ok && sh.ctx != nil {
		sh.ctx.MarkRegistered()
	}
}

func (h *Host) unregisterDataAddr(streamID uint16) {
	h.dataMu.Lock()
	delete(h.dataAddr, streamID)
	h.dataMu.Unlock()
}

// StartStream opens a capture for req.WindowID and drives it through a
// fresh streamctx.StreamContext, registering it in Host's handle table
// and with the input/monitor controllers. A new stream for a window
// already being streamed replaces the old one; a request while the
// session is locked is refused in favor of a sessionStateUpdate push so
// the client learns why instead of getting silence.
func (h *Host) StartStream(clientID string, req wire.StartStream) (wire.StreamStarted, error) {
	if state, token := h.sessions.State(); !state.IsActive() {
		h.push(wire.TypeSessionStateUpdate, wire.SessionStateUpdate{
			State:           sessionStateToWire(state),
			NewSessionToken: token,
		})
		return wire.StreamStarted{}, ErrSessionNotActive
	}

	h.streamMu.Lock()
	var replaced []*streamHandle
	for id, sh := range h.streams {
		if sh.windowID == req.WindowID {
			replaced = append(replaced, sh)
			delete(h.streams, id)
		}
	}
	h.streamMu.Unlock()
	for _, sh := range replaced {
		h.stopStreamHandle(sh, "replaced")
	}

	src, err := h.deps.Builder.OpenWindowCapture(req.WindowID)
	if err != nil {
		return wire.StreamStarted{}, err
	}

	h.streamMu.Lock()
	streamID := h.allocStreamID()
	h.streamMu.Unlock()

	cfg := streamctx.DefaultConfig()
	cfg.StreamID = streamID
	cfg.WindowID = req.WindowID
	if req.MaxRefreshRate > 0 {
		cfg.TargetFPS = req.MaxRefreshRate
	}
	if req.MinBitrateBps > 0 {
		cfg.MinBitrateBps = req.MinBitrateBps
	}
	if req.MaxBitrateBps > 0 {
		cfg.MaxBitrateBps = req.MaxBitrateBps
	}
	cfg.AdaptiveScale = req.AdaptiveScale
	if req.KeyframeIntervl > 0 {
		cfg.KeyframeIntervalFr = req.KeyframeIntervl
	}

	sh := &streamHandle{streamID: streamID, windowID: req.WindowID}

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
		return wire.StreamStarted{}, err
	}

	if err := ctx.Start(src, nil); err != nil {
		return wire.StreamStarted{}, err
	}
	if req.StreamScale > 0 && req.StreamScale < 1.0 {
		ctx.UpdateStreamScale(req.StreamScale)
	}

	h.streamMu.Lock()
	h.streams[streamID] = sh
	h.streamMu.Unlock()

	injector := input.NewInjector()
	h.input.RegisterStream(streamID, injector)
	h.monitor.RegisterStream(streamID, monitorConfigFor(req.WindowID, cfg.TargetFPS, h.deps, src, ctx))

	return wire.StreamStarted{
		StreamID:       streamID,
		DimensionToken: ctx.DimensionToken(),
		FrameRate:      cfg.TargetFPS,
		Width:          width,
		Height:         height,
	}, nil
}

func (h *Host) StopStream(clientID string, streamID uint16) {
	h.streamMu.Lock()
	sh, ok := h.streams[streamID]
	h.streamMu.Unlock()
	if !ok {
		return
	}
	h.stopStreamHandle(sh, "client_requested")
}

func (h *Host) stopStreamHandle(sh *streamHandle, reason string) {
	if sh.ctx != nil {
		sh.ctx.Stop(reason)
	}
}

// stopAllNonDesktopStreams is handed to desktopstream.NewController as
// its StopOtherStreams collaborator (component G is mutually exclusive
// with any window/app stream).
func (h *Host) stopAllNonDesktopStreams(reason string) {
	h.streamMu.Lock()
	var toStop []*streamHandle
	for _, sh := range h.streams {
		if !sh.isDesktop {
			toStop = append(toStop, sh)
		}
	}
	h.streamMu.Unlock()
	for _, sh := range toStop {
		h.stopStreamHandle(sh, reason)
	}
}

func (h *Host) RequestKeyframe(streamID uint16) {
	h.streamMu.Lock()
	sh, ok := h.streams[streamID]
	h.streamMu.Unlock()
	if ok && sh.ctx != nil {
		sh.ctx.RequestKeyframe()
	}
}

func (h *Host) UpdateStreamScale(streamID uint16, scale float64) {
	h.streamMu.Lock()
	sh, ok := h.streams[streamID]
	h.streamMu.Unlock()
	if ok && sh.ctx != nil {
		sh.ctx.UpdateStreamScale(scale)
		h.push(wire.TypeStreamScaleChange, wire.StreamScaleChange{StreamID: streamID, Scale: scale, DimensionToken: sh.ctx.DimensionToken()})
	}
}

func (h *Host) UpdateStreamRefreshRate(streamID uint16, fps int) {
	h.streamMu.Lock()
	sh, ok := h.streams[streamID]
	h.streamMu.Unlock()
	if ok && sh.ctx != nil {
		if err := sh.ctx.UpdateFrameRate(fps); err != nil {
			log.Warn("update frame rate failed", "streamId", streamID, "error", err)
		}
	}
}
