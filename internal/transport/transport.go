// Package transport owns the raw sockets the host speaks over: one TCP
// listener for the control channel and one UDP listener for the data
// channel. Connection bookkeeping is a map-of-connections-by-id guarded
// by sync.RWMutex with a sync.Once stop, applied to
// net.Listener/net.PacketConn instead of WebSocket/WebRTC.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/wire"
)

var log = logging.L("transport")

// TransientErrorGrace is the §4.B/§7 grace window: a non-fatal read error
// (per IsFatal) is retried at transientRetryInterval instead of tearing the
// connection down immediately, so a brief network hiccup doesn't cost the
// client its whole session.
const (
	TransientErrorGrace    = 5 * time.Second
	transientRetryInterval = 200 * time.Millisecond
)

// Conn wraps one accepted TCP control connection with buffered framing.
type Conn struct {
	ID         uint64
	RemoteAddr net.Addr

	nc     net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	wmu    sync.Mutex

	closeOnce sync.Once
}

func newConn(id uint64, nc net.Conn) *Conn {
	return &Conn{
		ID:         id,
		RemoteAddr: nc.RemoteAddr(),
		nc:         nc,
		reader:     bufio.NewReaderSize(nc, 64*1024),
		writer:     bufio.NewWriterSize(nc, 64*1024),
	}
}

// ReadLoop reads frames until onFrame returns an error or the connection
// fails, handing each complete frame to onFrame and handling partial TCP
// reads internally via a wire.FrameReader. A read error classified
// transient by IsFatal is retried for up to TransientErrorGrace instead of
// ending the loop immediately; a fatal error (or one that persists past the
// grace window) is returned straight away. onFrame's second argument
// carries wire.ErrVersionMismatch when the frame decoded with a version
// byte other than wire.ProtocolVersion, so the caller can reject rather
// than silently process it.
func (c *Conn) ReadLoop(onFrame func(wire.Frame, error) error) error {
	var fr wire.FrameReader
	buf := make([]byte, 64*1024)
	var graceDeadline time.Time
	for {
		for {
			f, ok, decErr := fr.Next()
			if decErr != nil && decErr != wire.ErrVersionMismatch {
				return decErr
			}
			if !ok {
				break
			}
			if cbErr := onFrame(f, decErr); cbErr != nil {
				return cbErr
			}
		}
		n, err := c.reader.Read(buf)
		if n > 0 {
			fr.Feed(buf[:n])
			graceDeadline = time.Time{}
		}
		if err != nil {
			if IsFatal(err) {
				return err
			}
			now := time.Now()
			if graceDeadline.IsZero() {
				graceDeadline = now.Add(TransientErrorGrace)
			}
			if now.After(graceDeadline) {
				return err
			}
			log.Warn("transient read error, retrying within grace window", "connId", c.ID, "error", err)
			time.Sleep(transientRetryInterval)
			continue
		}
	}
}

// Send writes an already-framed message. Safe for concurrent callers.
func (c *Conn) Send(framed []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.writer.Write(framed); err != nil {
		return err
	}
	return c.writer.Flush()
}

// SendMessage encodes and sends a typed payload.
func (c *Conn) SendMessage(typ wire.Type, payload any) error {
	framed, err := wire.Encode(typ, payload)
	if err != nil {
		return err
	}
	return c.Send(framed)
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.nc.Close()
	})
	return err
}

// Listener runs the TCP control listener and UDP data listener described
// in §4.B / §6. Each accepted TCP connection is handed to onAccept, which
// owns the connection's lifetime (including calling ReadLoop).
type Listener struct {
	tcp *net.TCPListener
	udp *net.UDPConn

	nextConnID uint64
	idMu       sync.Mutex

	wg sync.WaitGroup
}

// Listen opens the control and data sockets. controlPort/dataPort of 0
// request an ephemeral port; the actual bound ports are returned.
func Listen(controlPort, dataPort int) (l *Listener, actualControlPort, actualDataPort int, err error) {
	tcpAddr := &net.TCPAddr{Port: controlPort}
	tcpLn, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("transport: listen control: %w", err)
	}

	udpAddr := &net.UDPAddr{Port: dataPort}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		tcpLn.Close()
		return nil, 0, 0, fmt.Errorf("transport: listen data: %w", err)
	}

	l = &Listener{tcp: tcpLn, udp: udpConn}
	return l, tcpLn.Addr().(*net.TCPAddr).Port, udpConn.LocalAddr().(*net.UDPAddr).Port, nil
}

// ServeControl accepts TCP connections until ctx is cancelled, handing
// each to onAccept in its own goroutine.
func (l *Listener) ServeControl(ctx context.Context, onAccept func(*Conn)) error {
	go func() {
		<-ctx.Done()
		l.tcp.Close()
	}()

	for {
		nc, err := l.tcp.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		l.idMu.Lock()
		l.nextConnID++
		id := l.nextConnID
		l.idMu.Unlock()

		conn := newConn(id, nc)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			onAccept(conn)
		}()
	}
}

// ServeData reads UDP datagrams until ctx is cancelled, handing each to
// onPacket. onPacket must not retain buf beyond the call.
func (l *Listener) ServeData(ctx context.Context, onPacket func(addr *net.UDPAddr, buf []byte)) error {
	go func() {
		<-ctx.Done()
		l.udp.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, addr, err := l.udp.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		if n > 0 {
			onPacket(addr, buf[:n])
		}
	}
}

// WriteData sends a UDP datagram to addr over the shared data socket.
func (l *Listener) WriteData(addr *net.UDPAddr, payload []byte) error {
	_, err := l.udp.WriteToUDP(payload, addr)
	return err
}

// Close tears down both sockets and waits for in-flight accept handlers.
func (l *Listener) Close() error {
	tcpErr := l.tcp.Close()
	udpErr := l.udp.Close()
	l.wg.Wait()
	if tcpErr != nil {
		return tcpErr
	}
	return udpErr
}
