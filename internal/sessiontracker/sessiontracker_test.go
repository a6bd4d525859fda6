package sessiontracker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	mu    sync.Mutex
	state State
}

func (f *fakeQuerier) QuerySessionState(ctx context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeQuerier) set(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func TestTrackerNotifiesOnTransition(t *testing.T) {
	q := &fakeQuerier{state: StateActive}
	tr := New(q, 5*time.Millisecond, 3)

	var transitions atomic.Int32
	var lastToken string
	var mu sync.Mutex
	tr.OnTransition(func(old, new State, token string) {
		transitions.Add(1)
		mu.Lock()
		lastToken = token
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	tr.Start(ctx)
	defer func() {
		cancel()
		tr.Stop()
	}()

	q.set(StateLocked)
	require.Eventually(t, func() bool { return transitions.Load() == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	tok := lastToken
	mu.Unlock()
	require.NotEmpty(t, tok)

	state, token := tr.State()
	require.Equal(t, StateLocked, state)
	require.Equal(t, tok, token)
}

func TestTrackerSameStateDoesNotNotify(t *testing.T) {
	q := &fakeQuerier{state: StateActive}
	tr := New(q, 5*time.Millisecond, 3)

	var transitions atomic.Int32
	tr.OnTransition(func(old, new State, token string) { transitions.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	tr.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	tr.Stop()

	require.Zero(t, transitions.Load())
}

func TestVerifyUnlockWrongTokenFails(t *testing.T) {
	q := &fakeQuerier{state: StateActive}
	tr := New(q, time.Hour, 3)
	tr.transitionTo(StateLocked)

	result := tr.VerifyUnlock("bogus", false, false)
	require.False(t, result.Success)
	require.True(t, result.CanRetry)
}

func TestVerifyUnlockCorrectTokenSucceeds(t *testing.T) {
	q := &fakeQuerier{state: StateActive}
	tr := New(q, time.Hour, 3)
	tr.transitionTo(StateLocked)

	_, token := tr.State()
	result := tr.VerifyUnlock(token, false, false)
	require.True(t, result.Success)
	require.Equal(t, StateActive, result.NewState)

	state, _ := tr.State()
	require.Equal(t, StateActive, state)
}

func TestVerifyUnlockRetryLimitExhausts(t *testing.T) {
	q := &fakeQuerier{state: StateActive}
	tr := New(q, time.Hour, 2)
	tr.transitionTo(StateLocked)
	_, token := tr.State()

	r1 := tr.VerifyUnlock(token, true, false)
	require.False(t, r1.Success)
	require.True(t, r1.CanRetry)
	require.Equal(t, 1, r1.RetriesRemaining)

	r2 := tr.VerifyUnlock(token, true, false)
	require.False(t, r2.Success)
	require.False(t, r2.CanRetry)
	require.Equal(t, 0, r2.RetriesRemaining)

	r3 := tr.VerifyUnlock(token, true, false)
	require.False(t, r3.Success)
	require.False(t, r3.CanRetry)
}
