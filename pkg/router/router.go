// Package router is the single entry point for all LLM work. It resolves
// per-task routing, enforces daily limits and circuit breakers, applies the
// retry policy, and falls back across providers.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cellarist/sommelier/pkg/config"
	"github.com/cellarist/sommelier/pkg/llm"
)

// UsageTracker records call outcomes and answers limit checks.
type UsageTracker interface {
	CheckLimits(ctx context.Context, userID string) ([]string, error)
	Log(ctx context.Context, userID, sessionID, taskType string, resp *llm.Response) error
}

// Availability gates providers behind the circuit breaker.
type Availability interface {
	IsAvailable(ctx context.Context, provider string) bool
}

// Call identifies the requesting user for limit checks and usage rows.
type Call struct {
	UserID    string
	SessionID string
}

// Router dispatches LLM calls per task-type routing configuration.
type Router struct {
	providers map[string]llm.Provider
	cfg       *config.Config
	tracker   UsageTracker
	breaker   Availability
	logger    *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// New wires a Router over the given providers, keyed by provider name.
func New(providers map[string]llm.Provider, cfg *config.Config, tracker UsageTracker, breaker Availability, logger *slog.Logger) *Router {
	return &Router{
		providers: providers,
		cfg:       cfg,
		tracker:   tracker,
		breaker:   breaker,
		logger:    logger.With("component", "router"),
		sleep:     sleepContext,
		random:    rand.Float64,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// target is one resolved provider/model pair plus its optional fallback.
type target struct {
	provider string
	model    string
	fallback *config.RouteTarget
}

// resolve maps a task type to a target. An explicit opts.Provider is used
// verbatim with no fallback; opts.Model overrides the routed model.
func (r *Router) resolve(taskType string, opts llm.Options) (target, error) {
	if opts.Provider != "" {
		model := opts.Model
		if model == "" {
			p, ok := r.cfg.Providers[opts.Provider]
			if !ok {
				return target{}, fmt.Errorf("%w: %s", config.ErrProviderNotFound, opts.Provider)
			}
			model = p.DefaultModel
		}
		return target{provider: opts.Provider, model: model}, nil
	}

	route, ok := r.cfg.Route(taskType)
	if !ok {
		return target{}, fmt.Errorf("no routing configured for task type %q", taskType)
	}
	model := route.Primary.Model
	if opts.Model != "" {
		model = opts.Model
	}
	return target{provider: route.Primary.Provider, model: model, fallback: route.Fallback}, nil
}

func (r *Router) gateLimits(ctx context.Context, call Call, provider, model string) *llm.Response {
	violations, err := r.tracker.CheckLimits(ctx, call.UserID)
	if err != nil {
		r.logger.WarnContext(ctx, "Limit check failed, allowing request",
			"user_id", call.UserID, "error", err)
		return nil
	}
	if len(violations) == 0 {
		return nil
	}
	msg := violations[0]
	for _, v := range violations[1:] {
		msg += "; " + v
	}
	return failure(provider, model, llm.ErrKindLimitExceeded, msg)
}

func failure(provider, model string, kind llm.ErrorKind, msg string) *llm.Response {
	return &llm.Response{
		Provider:  provider,
		Model:     model,
		Err:       llm.NewError(kind, msg, nil),
		ErrorKind: kind,
	}
}

// Complete performs a buffered completion for the task type.
func (r *Router) Complete(ctx context.Context, call Call, taskType, prompt string, opts llm.Options) *llm.Response {
	return r.complete(ctx, call, taskType, opts, func(p llm.Provider, o llm.Options) *llm.Response {
		return p.Complete(ctx, prompt, o)
	})
}

// CompleteWithImage performs a buffered vision completion for the task type.
func (r *Router) CompleteWithImage(ctx context.Context, call Call, taskType, prompt string, image []byte, mimeType string, opts llm.Options) *llm.Response {
	return r.complete(ctx, call, taskType, opts, func(p llm.Provider, o llm.Options) *llm.Response {
		return p.CompleteWithImage(ctx, prompt, image, mimeType, o)
	})
}

func (r *Router) complete(ctx context.Context, call Call, taskType string, opts llm.Options, invoke func(llm.Provider, llm.Options) *llm.Response) *llm.Response {
	tgt, err := r.resolve(taskType, opts)
	if err != nil {
		return failure(opts.Provider, opts.Model, llm.ErrKindInvalidRequest, err.Error())
	}
	if resp := r.gateLimits(ctx, call, tgt.provider, tgt.model); resp != nil {
		return resp
	}

	provider, ok := r.providers[tgt.provider]
	if !ok {
		return failure(tgt.provider, tgt.model, llm.ErrKindProviderUnavailable,
			fmt.Sprintf("provider %q is not configured", tgt.provider))
	}
	if !r.breaker.IsAvailable(ctx, tgt.provider) {
		return failure(tgt.provider, tgt.model, llm.ErrKindCircuitOpen,
			fmt.Sprintf("circuit open for provider %q", tgt.provider))
	}

	opts.Model = tgt.model
	resp := r.withRetry(ctx, call, taskType, func() *llm.Response {
		return invoke(provider, opts)
	})
	if resp.Success || !resp.ErrorKind.Retryable() || tgt.fallback == nil {
		return resp
	}

	// Primary budget exhausted on a retryable failure: one fallback shot,
	// no retry.
	fb := *tgt.fallback
	fbProvider, ok := r.providers[fb.Provider]
	if !ok || !r.breaker.IsAvailable(ctx, fb.Provider) {
		return resp
	}
	r.logger.InfoContext(ctx, "Falling back to secondary provider",
		"task_type", taskType, "from", tgt.provider, "to", fb.Provider)
	fbOpts := opts
	fbOpts.Model = fb.Model
	fbResp := invoke(fbProvider, fbOpts)
	r.logCall(ctx, call, taskType, fbResp)
	return fbResp
}

// withRetry runs fn under exponential backoff with jitter. Every attempt is
// logged, so the breaker sees each real provider call. Retries fire only on
// retryable error kinds.
func (r *Router) withRetry(ctx context.Context, call Call, taskType string, fn func() *llm.Response) *llm.Response {
	maxAttempts := r.cfg.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var resp *llm.Response
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp = fn()
		r.logCall(ctx, call, taskType, resp)
		if resp.Success || !resp.ErrorKind.Retryable() {
			return resp
		}
		if attempt == maxAttempts {
			break
		}

		delay := r.backoff(attempt)
		r.logger.InfoContext(ctx, "Retrying after failure",
			"task_type", taskType, "attempt", attempt,
			"error_kind", resp.ErrorKind, "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			resp.Err = llm.NewError(llm.ErrKindTimeout, "request cancelled during backoff", err)
			resp.ErrorKind = llm.ErrKindTimeout
			return resp
		}
	}
	return resp
}

// backoff computes delay_i = min(base * 2^(i-1), max) * (1 + rand(0..jitter)).
func (r *Router) backoff(attempt int) time.Duration {
	base := time.Duration(r.cfg.Retry.BaseDelayMs) * time.Millisecond
	max := time.Duration(r.cfg.Retry.MaxDelayMs) * time.Millisecond

	delay := base << (attempt - 1)
	if delay > max || delay <= 0 {
		delay = max
	}
	return time.Duration(float64(delay) * (1 + r.random()*r.cfg.Retry.Jitter))
}

func (r *Router) logCall(ctx context.Context, call Call, taskType string, resp *llm.Response) {
	if err := r.tracker.Log(ctx, call.UserID, call.SessionID, taskType, resp); err != nil {
		r.logger.ErrorContext(ctx, "Failed to log usage", "task_type", taskType, "error", err)
	}
}
