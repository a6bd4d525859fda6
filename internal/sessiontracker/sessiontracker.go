// Package sessiontracker reports the macOS session state (active /
// locked / login screen / screensaver / sleeping) to observers on a
// fixed poll cadence, using a periodic-polling-loop shape (fixed
// interval ticker, observer callback list) retargeted from a heartbeat
// send to a local session-state poll and notify.
package sessiontracker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/mirage/hostcore/internal/logging"
)

var log = logging.L("sessiontracker")

// State mirrors wire.SessionState without importing the wire package, so
// this package stays independently testable against the OS query below.
type State string

const (
	StateActive      State = "active"
	StateLocked      State = "locked"
	StateLoginScreen State = "loginScreen"
	StateScreensaver State = "screensaver"
	StateSleeping    State = "sleeping"
)

func (s State) IsActive() bool { return s == StateActive }

// Querier reads the current OS session state. The concrete macOS
// implementation (out of scope here) would use CGSessionCopyCurrentDictionary
// or equivalent; tests supply a fake.
type Querier interface {
	QuerySessionState(ctx context.Context) (State, error)
}

// Observer is notified on every confirmed state transition.
type Observer func(old, new State, token string)

// Tracker polls Querier at a fixed cadence and notifies Observers only on
// transition (not on every poll), minting a fresh session token whenever
// the session leaves the active state.
type Tracker struct {
	mu        sync.Mutex
	querier   Querier
	interval  time.Duration
	state     State
	token     string
	observers []Observer

	unlockMaxRetries int
	retriesUsed      map[string]int // sessionToken -> retries consumed

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(querier Querier, interval time.Duration, unlockMaxRetries int) *Tracker {
	return &Tracker{
		querier:          querier,
		interval:         interval,
		state:            StateActive,
		unlockMaxRetries: unlockMaxRetries,
		retriesUsed:      make(map[string]int),
	}
}

// OnTransition registers an observer invoked on every state change.
func (t *Tracker) OnTransition(fn Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// State returns the last-known session state and its token.
func (t *Tracker) State() (State, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.token
}

// Start begins the poll loop; it runs until ctx is cancelled or Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.pollLoop(ctx)
	}()
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

func (t *Tracker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

func (t *Tracker) poll(ctx context.Context) {
	state, err := t.querier.QuerySessionState(ctx)
	if err != nil {
		log.Warn("session state query failed", "error", err)
		return
	}
	t.transitionTo(state)
}

// transitionTo applies a new state, minting a token on leaving active and
// notifying observers iff the state actually changed.
func (t *Tracker) transitionTo(newState State) {
	t.mu.Lock()
	old := t.state
	if old == newState {
		t.mu.Unlock()
		return
	}
	t.state = newState
	if !newState.IsActive() {
		t.token = mintToken()
		t.retriesUsed[t.token] = 0
	}
	token := t.token
	observers := append([]Observer(nil), t.observers...)
	t.mu.Unlock()

	log.Info("session state transition", "from", old, "to", newState)
	for _, obs := range observers {
		obs(old, newState, token)
	}
}

func mintToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails on a broken entropy source; there is
		// no safe fallback, so surface an obviously-invalid token rather
		// than panicking the control plane.
		log.Error("failed to mint session token", "error", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// UnlockResult mirrors the outcome fields §4.D's unlockResponse carries.
type UnlockResult struct {
	Success           bool
	NewState          State
	NewSessionToken   string
	CanRetry          bool
	RetriesRemaining  int
	RetryAfterSeconds float64
}

// VerifyUnlock checks a client-presented session token against the
// current one, enforcing the configured retry limit per token.
func (t *Tracker) VerifyUnlock(presentedToken string, requiresUsername, usernameOK bool) UnlockResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if presentedToken != t.token || t.token == "" {
		// A stale or unknown token means the session rotated underneath the
		// client (e.g. it unlocked and re-locked while the client was mid
		// unlockRequest). Hand back the current token so the client can
		// retry against it instead of getting stuck presenting a token that
		// will never match again.
		used := t.retriesUsed[t.token]
		remaining := t.unlockMaxRetries - used
		return UnlockResult{
			Success:          false,
			NewState:         t.state,
			NewSessionToken:  t.token,
			CanRetry:         remaining > 0,
			RetriesRemaining: remaining,
		}
	}

	used := t.retriesUsed[t.token]
	remaining := t.unlockMaxRetries - used
	if remaining <= 0 {
		return UnlockResult{Success: false, CanRetry: false, RetriesRemaining: 0, NewState: t.state, NewSessionToken: t.token}
	}

	if requiresUsername && !usernameOK {
		t.retriesUsed[t.token] = used + 1
		return UnlockResult{
			Success:          false,
			NewSessionToken:  t.token,
			CanRetry:         remaining-1 > 0,
			RetriesRemaining: remaining - 1,
			NewState:         t.state,
		}
	}

	// Successful unlock: transition back to active under lock, since the
	// caller already holds the session-token invariant we just verified.
	old := t.state
	t.state = StateActive
	t.token = ""
	observers := append([]Observer(nil), t.observers...)
	t.mu.Unlock()
	for _, obs := range observers {
		obs(old, StateActive, "")
	}
	t.mu.Lock()

	return UnlockResult{Success: true, NewState: StateActive}
}
