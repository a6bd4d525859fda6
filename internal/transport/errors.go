package transport

import (
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Transport-specific fatal codes beyond POSIX errno, matching §4.B's
// "transport codes −65554/−65555" (mirroring macOS's NWError transport
// category for address-in-use / no-route conditions at the socket layer).
const (
	ErrCodeAddressUnreachable = -65554
	ErrCodeNoRoute            = -65555
)

// fatalErrno is the POSIX codes §4.B calls out as always fatal:
// EPIPE(32), ENETDOWN(50)/ECONNABORTED(53)/ECONNRESET(54) family,
// ENETUNREACH(51)... the spec names 32, 54, 57, 104 specifically.
var fatalErrno = map[syscall.Errno]bool{
	32:  true, // EPIPE
	54:  true, // ECONNRESET (BSD/darwin numbering)
	57:  true, // ENOTCONN (BSD/darwin numbering)
	104: true, // ECONNRESET (Linux numbering, kept for portability)
}

// IsFatal reports whether err should cause an immediate disconnect rather
// than entering the 5-second transient-error grace window (§4.B, §7).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if fatalErrno[errno] {
			return true
		}
		switch errno {
		case unix.EPIPE, unix.ECONNRESET, unix.ENOTCONN, unix.EBADF, unix.EHOSTUNREACH:
			return true
		}
	}

	var code TransportCode
	if errors.As(err, &code) {
		return code == ErrCodeAddressUnreachable || code == ErrCodeNoRoute
	}

	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return true
	}

	return false
}

// TransportCode lets higher layers synthesize one of the named transport
// fatal codes without depending on a concrete platform error type.
type TransportCode int

func (c TransportCode) Error() string {
	switch c {
	case ErrCodeAddressUnreachable:
		return "transport: address unreachable"
	case ErrCodeNoRoute:
		return "transport: no route to host"
	default:
		return "transport: unknown code"
	}
}
