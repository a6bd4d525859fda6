// Package loginstream implements the login-display stream controller:
// starts a capture from the login/lock screen when the session goes
// non-active, borrowing an existing desktop stream instead of opening a
// second capture when one is already running, and runs a watchdog that
// restarts a stalled capture. Reuses the same fixed-interval
// polling-loop shape internal/sessiontracker uses, here checking "has a
// frame arrived recently" rather than "what is the session state."
package loginstream

import (
	"context"
	"sync"
	"time"

	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/streamctx"
)

var log = logging.L("loginstream")

const (
	WatchdogInterval  = 2 * time.Second
	StaleThreshold    = 6 * time.Second
	StartupGrace      = 4 * time.Second
	RestartCooldown   = 8 * time.Second
	MaxStartRetries   = 5
	StartRetryDelay   = 2 * time.Second
)

// Starter creates a fresh login-display stream when no desktop stream is
// available to borrow.
type Starter interface {
	StartLoginDisplayStream() (*streamctx.StreamContext, error)
}

// DesktopStreamSource lets the controller borrow an already-running
// desktop stream's frames instead of opening a second capture.
type DesktopStreamSource interface {
	BorrowedDesktopStream() *streamctx.StreamContext // nil if no desktop stream is active
}

type Controller struct {
	starter Starter
	desktop DesktopStreamSource

	mu            sync.Mutex
	stream        *streamctx.StreamContext
	borrowed      bool
	lastFrameAt   time.Time
	lastRestartAt time.Time
	retries       int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(starter Starter, desktop DesktopStreamSource) *Controller {
	return &Controller{starter: starter, desktop: desktop}
}

// OnSessionNonActive starts (or borrows) a login-display stream.
// Idempotent: a second call while already running is a no-op.
func (c *Controller) OnSessionNonActive(ctx context.Context) {
	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.startOrBorrow(); err != nil {
		log.Warn("login display stream failed to start", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.lastFrameAt = time.Now()
	c.mu.Unlock()

	c.wg.Add(1)
	go c.watchdogLoop(ctx)
}

// OnSessionActive tears down the login-display stream (called when the
// session unlocks).
func (c *Controller) OnSessionActive() {
	c.mu.Lock()
	cancel := c.cancel
	stream := c.stream
	borrowed := c.borrowed
	c.stream = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	if stream != nil && !borrowed {
		stream.Stop("session_active")
	}
}

// NotifyFrameCaptured resets the stall timer; called by whatever feeds
// frames into the borrowed or owned stream.
func (c *Controller) NotifyFrameCaptured() {
	c.mu.Lock()
	c.lastFrameAt = time.Now()
	c.mu.Unlock()
}

func (c *Controller) startOrBorrow() error {
	if c.desktop != nil {
		if s := c.desktop.BorrowedDesktopStream(); s != nil {
			c.mu.Lock()
			c.stream = s
			c.borrowed = true
			c.mu.Unlock()
			log.Info("login display stream borrowing active desktop stream")
			return nil
		}
	}

	stream, err := c.starter.StartLoginDisplayStream()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.stream = stream
	c.borrowed = false
	c.mu.Unlock()
	return nil
}

func (c *Controller) watchdogLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(WatchdogInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkStale(start)
		}
	}
}

func (c *Controller) checkStale(loopStart time.Time) {
	c.mu.Lock()
	lastFrame := c.lastFrameAt
	lastRestart := c.lastRestartAt
	borrowed := c.borrowed
	c.mu.Unlock()

	if borrowed {
		// Borrowed streams are kept alive by the desktop controller; the
		// watchdog only owns restart responsibility for streams it started.
		return
	}
	if time.Since(loopStart) < StartupGrace {
		return
	}
	if time.Since(lastFrame) < StaleThreshold {
		return
	}
	if !lastRestart.IsZero() && time.Since(lastRestart) < RestartCooldown {
		return
	}

	c.restart()
}

func (c *Controller) restart() {
	c.mu.Lock()
	if c.retries >= MaxStartRetries {
		c.mu.Unlock()
		log.Warn("login display stream exhausted restart retries")
		return
	}
	c.retries++
	old := c.stream
	c.mu.Unlock()

	if old != nil {
		old.Stop("watchdog_restart")
	}

	time.Sleep(StartRetryDelay)

	if err := c.startOrBorrow(); err != nil {
		log.Warn("login display stream restart failed", "error", err, "attempt", c.retries)
		return
	}

	c.mu.Lock()
	c.lastRestartAt = time.Now()
	c.lastFrameAt = time.Now()
	c.mu.Unlock()
}
