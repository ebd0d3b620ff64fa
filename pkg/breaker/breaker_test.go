package breaker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarist/sommelier/pkg/config"
	"github.com/cellarist/sommelier/pkg/usage"
)

type fakeHistory struct {
	outcomes []usage.CallOutcome
	err      error
}

func (f *fakeHistory) ProviderOutcomes(context.Context, string, time.Time) ([]usage.CallOutcome, error) {
	return f.outcomes, f.err
}

var testCfg = config.CircuitBreakerConfig{
	FailureThreshold:   5,
	RecoveryTimeoutSec: 300,
	SuccessThreshold:   2,
	SampleWindowSec:    60,
}

func newTestBreaker(h History, now time.Time) *Breaker {
	b := New(h, testCfg, slog.Default())
	b.now = func() time.Time { return now }
	return b
}

func failAt(t time.Time, kind string) usage.CallOutcome {
	return usage.CallOutcome{Success: false, ErrorType: kind, CreatedAt: t}
}

func okAt(t time.Time) usage.CallOutcome {
	return usage.CallOutcome{Success: true, CreatedAt: t}
}

func TestStateClosedWithCleanHistory(t *testing.T) {
	now := time.Now()
	h := &fakeHistory{outcomes: []usage.CallOutcome{
		okAt(now.Add(-10 * time.Second)),
		okAt(now.Add(-20 * time.Second)),
	}}
	b := newTestBreaker(h, now)

	state, err := b.State(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
	assert.True(t, b.IsAvailable(context.Background(), "gemini"))
}

func TestStateOpensAfterThresholdFailures(t *testing.T) {
	now := time.Now()
	var outcomes []usage.CallOutcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, failAt(now.Add(-time.Duration(i+1)*time.Second), "server_error"))
	}
	b := newTestBreaker(&fakeHistory{outcomes: outcomes}, now)

	state, err := b.State(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)
	assert.False(t, b.IsAvailable(context.Background(), "gemini"))
}

func TestNonRetryableFailuresDoNotTrip(t *testing.T) {
	now := time.Now()
	var outcomes []usage.CallOutcome
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, failAt(now.Add(-time.Duration(i+1)*time.Second), "invalid_request"))
	}
	b := newTestBreaker(&fakeHistory{outcomes: outcomes}, now)

	state, err := b.State(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
}

func TestFailuresOutsideWindowDoNotTrip(t *testing.T) {
	now := time.Now()
	// Five failures, but spread so no 60s window holds all five.
	var outcomes []usage.CallOutcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, failAt(now.Add(-time.Duration(i)*90*time.Second), "timeout"))
	}
	b := newTestBreaker(&fakeHistory{outcomes: outcomes}, now)

	state, err := b.State(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
}

func TestHalfOpenAfterRecoveryTimeout(t *testing.T) {
	now := time.Now()
	tripTime := now.Add(-301 * time.Second)
	var outcomes []usage.CallOutcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, failAt(tripTime.Add(-time.Duration(i)*time.Second), "overloaded"))
	}
	b := newTestBreaker(&fakeHistory{outcomes: outcomes}, now)

	state, err := b.State(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, state)
	assert.True(t, b.IsAvailable(context.Background(), "gemini"))
}

func TestHalfOpenClosesAfterSuccesses(t *testing.T) {
	now := time.Now()
	tripTime := now.Add(-400 * time.Second)
	var outcomes []usage.CallOutcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, failAt(tripTime.Add(-time.Duration(i)*time.Second), "rate_limit"))
	}
	// Two probe successes after the recovery period elapsed.
	outcomes = append(outcomes,
		okAt(now.Add(-30*time.Second)),
		okAt(now.Add(-20*time.Second)),
	)
	b := newTestBreaker(&fakeHistory{outcomes: outcomes}, now)

	state, err := b.State(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
}

func TestHalfOpenReopensOnProbeFailure(t *testing.T) {
	now := time.Now()
	tripTime := now.Add(-400 * time.Second)
	var outcomes []usage.CallOutcome
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, failAt(tripTime.Add(-time.Duration(i)*time.Second), "server_error"))
	}
	// One success then a failed probe inside the half-open period.
	outcomes = append(outcomes,
		okAt(now.Add(-60*time.Second)),
		failAt(now.Add(-50*time.Second), "timeout"),
	)
	b := newTestBreaker(&fakeHistory{outcomes: outcomes}, now)

	state, err := b.State(context.Background(), "gemini")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)
}

func TestHistoryErrorFailsOpen(t *testing.T) {
	b := newTestBreaker(&fakeHistory{err: errors.New("connection refused")}, time.Now())
	assert.True(t, b.IsAvailable(context.Background(), "gemini"))
}
