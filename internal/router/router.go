// Package router implements the message router: one receive loop per
// TCP control connection that decodes frames, splits input events onto
// a dedicated hot path, and dispatches everything else sequentially to
// a Handlers implementation on the cold path. The dispatch loop is a
// type switch over decoded messages, with an explicit hot/cold split
// between the main switch and the input-event handler.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mirage/hostcore/internal/input"
	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/transport"
	"github.com/mirage/hostcore/internal/trust"
	"github.com/mirage/hostcore/internal/wire"
)

var log = logging.L("router")

// maxHelloPayload is spec's §4.B step 1 cap on the hello payload: 4 KiB,
// independent of wire's generic maxPayload runaway-length-prefix guard,
// which is sized for the largest legitimate control payload, not hello.
const maxHelloPayload = 4096

var (
	ErrSlotTaken               = errors.New("router: another client is already connected")
	ErrNotAuthenticated        = errors.New("router: hello required before any other message")
	ErrProtocolVersionMismatch = errors.New("router: client protocol version mismatch")
	errClientDisconnect        = errors.New("router: client sent disconnect")
)

// MessageSender is the push-delivery half of a connection: everything
// Handlers needs to emit an unsolicited frame (sessionStateUpdate,
// loginDisplayReady, appList, cursorUpdate, ...) that isn't a direct
// reply to the frame that triggered it. transport.Conn satisfies this.
type MessageSender interface {
	SendMessage(typ wire.Type, payload any) error
}

// Handlers is the cold-path collaborator contract: the host-level
// orchestrator that actually owns streams/displays/sessions. The
// router only knows how to decode frames and route them here.
type Handlers interface {
	EvaluateTrust(ctx context.Context, identity trust.Identity, closed <-chan struct{}) trust.Outcome
	HostInfo() (hostID, hostName string, dataPort uint16)

	// ClientConnected fires once a hello is accepted, handing the host
	// orchestrator a sender it can use to push unsolicited frames to
	// this client for as long as the connection lives.
	ClientConnected(clientID string, sender MessageSender)

	StartStream(clientID string, req wire.StartStream) (wire.StreamStarted, error)
	StopStream(clientID string, streamID uint16)
	RequestKeyframe(streamID uint16)
	UpdateStreamScale(streamID uint16, scale float64)
	UpdateStreamRefreshRate(streamID uint16, fps int)

	StartDesktopStream(clientID string) error
	StopDesktopStream(clientID string)

	SelectApp(clientID, bundleID string) error
	RequestAppList(clientID string)
	CloseWindow(clientID string, windowID uint32)

	UnlockRequest(clientID string, req wire.UnlockRequest) wire.UnlockResponse

	QualityTestRequest(clientID string, req wire.QualityTestRequest) wire.QualityTestResult

	ClientDisconnected(clientID string)
}

// Session drives one accepted TCP connection end to end.
type Session struct {
	conn     *transport.Conn
	handlers Handlers
	slot     *Slot
	input    *input.Controller

	mu         sync.Mutex
	clientID   string
	identified bool

	inputQueue chan wire.InputEvent
	closed     chan struct{}
	closeOnce  sync.Once
}

func NewSession(conn *transport.Conn, handlers Handlers, slot *Slot, inputCtrl *input.Controller) *Session {
	return &Session{
		conn:       conn,
		handlers:   handlers,
		slot:       slot,
		input:      inputCtrl,
		inputQueue: make(chan wire.InputEvent, 256),
		closed:     make(chan struct{}),
	}
}

// Run processes conn until it closes or ctx is cancelled. It owns the
// connection's lifetime: on return the connection is released from the
// single-client slot and handlers.ClientDisconnected fires.
func (s *Session) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.inputDispatchLoop()
	}()

	err := s.conn.ReadLoop(func(f wire.Frame, decErr error) error {
		return s.handleFrame(ctx, f, decErr)
	})

	s.closeOnce.Do(func() { close(s.closed) })
	wg.Wait()

	s.mu.Lock()
	clientID := s.clientID
	identified := s.identified
	s.mu.Unlock()
	if identified {
		s.slot.Release(clientID)
		s.handlers.ClientDisconnected(clientID)
	}
	return err
}

func (s *Session) handleFrame(ctx context.Context, f wire.Frame, decErr error) error {
	if decErr == wire.ErrVersionMismatch {
		if f.Type == wire.TypeHello {
			s.conn.SendMessage(wire.TypeHelloResponse, wire.HelloResponse{Accepted: false, Reason: "protocol version mismatch"})
			return ErrProtocolVersionMismatch
		}
		// Protocol violation on a non-hello frame (§7): log and ignore the
		// single message rather than dropping the connection.
		log.Warn("dropping frame with mismatched protocol version", "type", f.Type, "version", f.Version)
		return nil
	}

	if f.Type.IsInputEvent() {
		var ev wire.InputEvent
		if err := f.Unmarshal(&ev); err != nil {
			log.Warn("malformed input event", "error", err)
			return nil
		}
		select {
		case s.inputQueue <- ev:
		default:
			log.Warn("input queue full, dropping event", "streamId", ev.StreamID)
		}
		return nil
	}

	if f.Type == wire.TypeHello {
		return s.handleHello(ctx, f)
	}

	s.mu.Lock()
	identified := s.identified
	clientID := s.clientID
	s.mu.Unlock()
	if !identified {
		return ErrNotAuthenticated
	}

	return s.dispatchColdPath(clientID, f)
}

func (s *Session) handleHello(ctx context.Context, f wire.Frame) error {
	if len(f.Payload) > maxHelloPayload {
		s.conn.SendMessage(wire.TypeHelloResponse, wire.HelloResponse{Accepted: false, Reason: "hello payload too large"})
		return fmt.Errorf("router: hello payload of %d bytes exceeds %d byte cap", len(f.Payload), maxHelloPayload)
	}

	var hello wire.Hello
	if err := f.Unmarshal(&hello); err != nil {
		return err
	}

	if !s.slot.TryAcquire(hello.DeviceID) {
		s.conn.SendMessage(wire.TypeHelloResponse, wire.HelloResponse{Accepted: false, Reason: "client slot occupied"})
		return ErrSlotTaken
	}

	identity := trust.Identity{DeviceID: hello.DeviceID, DeviceName: hello.DeviceName}
	outcome := s.handlers.EvaluateTrust(ctx, identity, s.closed)
	if outcome != trust.OutcomeAccepted {
		s.slot.Release(hello.DeviceID)
		s.conn.SendMessage(wire.TypeHelloResponse, wire.HelloResponse{Accepted: false, Reason: outcome.String()})
		return errors.New("router: trust evaluation did not accept: " + outcome.String())
	}

	hostID, hostName, dataPort := s.handlers.HostInfo()
	s.mu.Lock()
	s.clientID = hello.DeviceID
	s.identified = true
	s.mu.Unlock()

	if err := s.conn.SendMessage(wire.TypeHelloResponse, wire.HelloResponse{
		Accepted: true, HostID: hostID, HostName: hostName, DataPort: dataPort,
	}); err != nil {
		return err
	}
	s.handlers.ClientConnected(hello.DeviceID, s.conn)
	return nil
}

func (s *Session) inputDispatchLoop() {
	for {
		select {
		case <-s.closed:
			return
		case ev := <-s.inputQueue:
			if err := s.input.HandleEvent(ev); err != nil {
				log.Warn("input dispatch failed", "streamId", ev.StreamID, "error", err)
			}
		}
	}
}
