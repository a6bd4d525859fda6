// Package desktopstream implements the desktop stream controller: a
// singleton, mutually-exclusive-with-app-streams controller that
// mirrors or projects the physical displays onto the shared virtual
// display. Start snapshots the physical-display mirroring topology and
// Stop restores that snapshot; the capture source of the bound stream is
// never swapped by this package.
package desktopstream

import (
	"errors"
	"sync"

	"github.com/mirage/hostcore/internal/display"
	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/streamctx"
)

var log = logging.L("desktopstream")

// Mode selects how the virtual display relates to the physical ones.
type Mode string

const (
	// ModeMirrored: physical displays follow the virtual one; input
	// coordinates map to the primary physical display's bounds
	// (aspect-fit within it).
	ModeMirrored Mode = "mirrored"
	// ModeSecondary: the virtual display is a distinct logical display;
	// input maps directly to its bounds; cursor position is forwarded.
	ModeSecondary Mode = "secondary"
)

// TopologySnapshot captures the physical-display mirroring arrangement
// before Mirage enables mirroring, so Stop can restore it verbatim.
type TopologySnapshot struct {
	// MirroredDisplayIDs lists the physical displays that were already
	// mirroring a target before Mirage intervened (keyed as the platform
	// identifies them; opaque to this package).
	MirroredDisplayIDs map[string]string
}

// TopologyController is the platform collaborator that can read and
// apply a physical-display mirroring arrangement. The concrete macOS
// implementation (out of scope here) would use CGConfigureDisplayMirrorOfDisplay.
type TopologyController interface {
	Snapshot() (TopologySnapshot, error)
	EnableMirroring(physicalDisplayIDs []string, virtualDisplayID string) error
	Restore(snapshot TopologySnapshot) error
}

var (
	ErrAlreadyActive = errors.New("desktopstream: already active")
	ErrNotActive     = errors.New("desktopstream: not active")
)

// StopOtherStreams is invoked before the desktop stream starts, since it
// is mutually exclusive with any app/window stream.
type StopOtherStreams func(reason string)

type Controller struct {
	displays  *display.Manager
	topology  TopologyController
	stopOther StopOtherStreams

	mu       sync.Mutex
	active   bool
	mode     Mode
	snapshot TopologySnapshot
	stream   *streamctx.StreamContext
}

func NewController(displays *display.Manager, topology TopologyController, stopOther StopOtherStreams) *Controller {
	return &Controller{displays: displays, topology: topology, stopOther: stopOther}
}

// Start stops every other stream, snapshots the current mirroring
// topology, acquires the shared virtual display, enables mirroring of the
// chosen physical displays onto it (ModeMirrored only), and records
// stream as the active desktop stream. It returns only an error; the
// caller starts stream against its capture source itself.
func (c *Controller) Start(mode Mode, physicalDisplayIDs []string, stream *streamctx.StreamContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrAlreadyActive
	}

	if c.stopOther != nil {
		c.stopOther("desktop_stream_starting")
	}

	snap, err := c.topology.Snapshot()
	if err != nil {
		return err
	}

	snapDisplay, err := c.displays.Acquire("desktopStream", display.Resolution{Width: 1920, Height: 1080}, 60, "sRGB")
	if err != nil {
		return err
	}

	if mode == ModeMirrored {
		if err := c.topology.EnableMirroring(physicalDisplayIDs, snapDisplay.DisplayID); err != nil {
			c.displays.Release("desktopStream")
			return err
		}
	}

	c.active = true
	c.mode = mode
	c.snapshot = snap
	c.stream = stream
	log.Info("desktop stream started", "mode", mode, "displayId", snapDisplay.DisplayID)
	return nil
}

// Stop tears down the stream and restores the snapshot verbatim.
func (c *Controller) Stop(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ErrNotActive
	}

	if c.stream != nil {
		c.stream.Stop(reason)
	}
	err := c.topology.Restore(c.snapshot)
	c.displays.Release("desktopStream")

	c.active = false
	c.stream = nil
	log.Info("desktop stream stopped", "reason", reason)
	return err
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}
