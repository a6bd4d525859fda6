package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mirage/hostcore/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestListenEphemeralPorts(t *testing.T) {
	l, controlPort, dataPort, err := Listen(0, 0)
	require.NoError(t, err)
	defer l.Close()
	require.NotZero(t, controlPort)
	require.NotZero(t, dataPort)
	require.NotEqual(t, controlPort, dataPort)
}

func TestServeControlRoundTrip(t *testing.T) {
	l, controlPort, _, err := Listen(0, 0)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan wire.Frame, 1)
	go l.ServeControl(ctx, func(c *Conn) {
		_ = c.ReadLoop(func(f wire.Frame, decErr error) error {
			received <- f
			return nil
		})
	})

	nc, err := net.Dial("tcp", (&net.TCPAddr{Port: controlPort}).String())
	require.NoError(t, err)
	defer nc.Close()

	buf, err := wire.Encode(wire.TypePing, wire.Ping{Nonce: 42})
	require.NoError(t, err)
	_, err = nc.Write(buf)
	require.NoError(t, err)

	select {
	case f := <-received:
		require.Equal(t, wire.TypePing, f.Type)
		var p wire.Ping
		require.NoError(t, f.Unmarshal(&p))
		require.Equal(t, uint64(42), p.Nonce)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestServeControlSurfacesVersionMismatch(t *testing.T) {
	l, controlPort, _, err := Listen(0, 0)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		frame  wire.Frame
		decErr error
	}
	received := make(chan result, 1)
	go l.ServeControl(ctx, func(c *Conn) {
		_ = c.ReadLoop(func(f wire.Frame, decErr error) error {
			received <- result{f, decErr}
			return nil
		})
	})

	nc, err := net.Dial("tcp", (&net.TCPAddr{Port: controlPort}).String())
	require.NoError(t, err)
	defer nc.Close()

	buf, err := wire.Encode(wire.TypePing, wire.Ping{Nonce: 7})
	require.NoError(t, err)
	buf[5] = wire.ProtocolVersion + 1 // version byte, per the frame header layout
	_, err = nc.Write(buf)
	require.NoError(t, err)

	select {
	case r := <-received:
		require.Equal(t, wire.TypePing, r.frame.Type)
		require.ErrorIs(t, r.decErr, wire.ErrVersionMismatch)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestIsFatalNilError(t *testing.T) {
	require.False(t, IsFatal(nil))
}

func TestIsFatalTransportCode(t *testing.T) {
	require.True(t, IsFatal(TransportCode(ErrCodeAddressUnreachable)))
	require.True(t, IsFatal(TransportCode(ErrCodeNoRoute)))
}

func TestIsFatalClosedConn(t *testing.T) {
	require.True(t, IsFatal(net.ErrClosed))
}
