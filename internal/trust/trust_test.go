package trust

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	decision Decision
	err      error
}

func (p fakeProvider) EvaluateTrust(ctx context.Context, identity Identity) (Decision, string, error) {
	return p.decision, "", p.err
}

type fakeDelegate struct {
	approve bool
	delay   time.Duration
}

func (d fakeDelegate) RequestApproval(ctx context.Context, identity Identity, reason string) bool {
	time.Sleep(d.delay)
	return d.approve
}

func TestEvaluateTrustedIsTerminal(t *testing.T) {
	out := Evaluate(context.Background(), fakeProvider{decision: DecisionTrusted}, nil, Identity{}, nil, time.Second)
	require.Equal(t, OutcomeAccepted, out)
}

func TestEvaluateDeniedIsTerminal(t *testing.T) {
	out := Evaluate(context.Background(), fakeProvider{decision: DecisionDenied}, fakeDelegate{approve: true}, Identity{}, nil, time.Second)
	require.Equal(t, OutcomeRejected, out)
}

func TestEvaluateRequiresApprovalGrantsOnApprove(t *testing.T) {
	out := Evaluate(context.Background(), fakeProvider{decision: DecisionRequiresApproval}, fakeDelegate{approve: true}, Identity{}, nil, time.Second)
	require.Equal(t, OutcomeAccepted, out)
}

func TestEvaluateTimesOut(t *testing.T) {
	out := Evaluate(context.Background(), fakeProvider{decision: DecisionRequiresApproval}, fakeDelegate{approve: true, delay: 100 * time.Millisecond}, Identity{}, nil, 10*time.Millisecond)
	require.Equal(t, OutcomeTimedOut, out)
}

func TestEvaluateConnectionClosedWins(t *testing.T) {
	closed := make(chan struct{})
	close(closed)
	out := Evaluate(context.Background(), fakeProvider{decision: DecisionRequiresApproval}, fakeDelegate{approve: true, delay: 50 * time.Millisecond}, Identity{}, closed, time.Second)
	require.Equal(t, OutcomeConnectionClosed, out)
}

func TestEvaluateNoDelegateIsRejected(t *testing.T) {
	out := Evaluate(context.Background(), fakeProvider{decision: DecisionUnavailable}, nil, Identity{}, nil, time.Second)
	require.Equal(t, OutcomeRejected, out)
}
