// Package breaker implements a per-provider circuit breaker whose state is
// derived on demand from recent call history, so no breaker state needs to
// be shared between requests or processes.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cellarist/sommelier/pkg/config"
	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/usage"
)

// State is the classic three-state breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// History supplies recent call outcomes for one provider, newest first.
// *usage.PGStore satisfies it.
type History interface {
	ProviderOutcomes(ctx context.Context, provider string, since time.Time) ([]usage.CallOutcome, error)
}

// Breaker evaluates provider availability from recent failures. Only
// retryable failures (timeouts, rate limits, 5xx, overload, TLS) count
// toward tripping; client errors like invalid_request never open the
// circuit.
type Breaker struct {
	history History
	cfg     config.CircuitBreakerConfig
	logger  *slog.Logger
	now     func() time.Time
}

// New wires a Breaker over the given history source.
func New(history History, cfg config.CircuitBreakerConfig, logger *slog.Logger) *Breaker {
	return &Breaker{
		history: history,
		cfg:     cfg,
		logger:  logger.With("component", "breaker"),
		now:     time.Now,
	}
}

// IsAvailable reports whether the provider may be called right now.
// Half-open allows the call through as a probe. On history errors the
// breaker fails open (available) so a store outage never blocks traffic.
func (b *Breaker) IsAvailable(ctx context.Context, provider string) bool {
	state, err := b.State(ctx, provider)
	if err != nil {
		b.logger.WarnContext(ctx, "Breaker history unavailable, allowing call",
			"provider", provider, "error", err)
		return true
	}
	return state != StateOpen
}

// State derives the breaker state for a provider from its recent outcomes.
func (b *Breaker) State(ctx context.Context, provider string) (State, error) {
	window := time.Duration(b.cfg.SampleWindowSec) * time.Second
	recovery := time.Duration(b.cfg.RecoveryTimeoutSec) * time.Second
	now := b.now()

	// Enough history to find a trip that is still inside its recovery
	// period plus its own sample window.
	since := now.Add(-(recovery + window))
	outcomes, err := b.history.ProviderOutcomes(ctx, provider, since)
	if err != nil {
		return StateClosed, fmt.Errorf("failed to load provider history: %w", err)
	}

	// Chronological order for the scan below.
	chrono := make([]usage.CallOutcome, len(outcomes))
	for i, o := range outcomes {
		chrono[len(outcomes)-1-i] = o
	}

	tripAt, tripped := b.findTrip(chrono)
	if !tripped {
		return StateClosed, nil
	}

	for {
		reopenAt := tripAt.Add(recovery)
		if now.Before(reopenAt) {
			return StateOpen, nil
		}

		// Half-open: successes close the circuit, any countable failure
		// re-opens it immediately.
		successes := 0
		retripped := false
		for _, o := range chrono {
			if !o.CreatedAt.After(reopenAt) {
				continue
			}
			if o.Success {
				successes++
				if successes >= b.cfg.SuccessThreshold {
					return StateClosed, nil
				}
				continue
			}
			if countsTowardTrip(o) {
				tripAt = o.CreatedAt
				retripped = true
				break
			}
		}
		if !retripped {
			return StateHalfOpen, nil
		}
	}
}

// findTrip scans chronologically for the latest moment the failure count
// within one sample window reached the threshold.
func (b *Breaker) findTrip(chrono []usage.CallOutcome) (time.Time, bool) {
	window := time.Duration(b.cfg.SampleWindowSec) * time.Second

	var failures []time.Time
	var tripAt time.Time
	tripped := false
	for _, o := range chrono {
		if o.Success || !countsTowardTrip(o) {
			continue
		}
		failures = append(failures, o.CreatedAt)
		cutoff := o.CreatedAt.Add(-window)
		live := failures[:0]
		for _, f := range failures {
			if !f.Before(cutoff) {
				live = append(live, f)
			}
		}
		failures = live
		if len(failures) >= b.cfg.FailureThreshold {
			tripAt = o.CreatedAt
			tripped = true
		}
	}
	return tripAt, tripped
}

func countsTowardTrip(o usage.CallOutcome) bool {
	return llm.ErrorKind(o.ErrorType).Retryable()
}
