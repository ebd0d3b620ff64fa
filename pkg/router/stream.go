package router

import (
	"context"
	"fmt"

	"github.com/cellarist/sommelier/pkg/llm"
)

// StreamComplete performs a streaming completion for the task type. Streaming
// calls are never retried; a retryable failure before any field was emitted
// may fall back to the secondary provider once. When the resolved model lacks
// streaming capability (or the task is not configured to stream), the router
// runs the buffered completion and synthesizes per-field callbacks from the
// parsed result so clients always see field-level progress.
func (r *Router) StreamComplete(ctx context.Context, call Call, taskType, prompt string, opts llm.Options, onField llm.FieldCallback) *llm.StreamingResponse {
	return r.stream(ctx, call, taskType, opts, onField,
		func(p llm.Provider, o llm.Options) *llm.StreamingResponse {
			return p.StreamComplete(ctx, prompt, o, onField)
		},
		func(p llm.Provider, o llm.Options) *llm.Response {
			return p.Complete(ctx, prompt, o)
		})
}

// StreamCompleteWithImage is the vision variant of StreamComplete.
func (r *Router) StreamCompleteWithImage(ctx context.Context, call Call, taskType, prompt string, image []byte, mimeType string, opts llm.Options, onField llm.FieldCallback) *llm.StreamingResponse {
	return r.stream(ctx, call, taskType, opts, onField,
		func(p llm.Provider, o llm.Options) *llm.StreamingResponse {
			return p.StreamCompleteWithImage(ctx, prompt, image, mimeType, o, onField)
		},
		func(p llm.Provider, o llm.Options) *llm.Response {
			return p.CompleteWithImage(ctx, prompt, image, mimeType, o)
		})
}

func (r *Router) stream(
	ctx context.Context, call Call, taskType string, opts llm.Options, onField llm.FieldCallback,
	invokeStream func(llm.Provider, llm.Options) *llm.StreamingResponse,
	invokeBuffered func(llm.Provider, llm.Options) *llm.Response,
) *llm.StreamingResponse {
	tgt, err := r.resolve(taskType, opts)
	if err != nil {
		return wrap(failure(opts.Provider, opts.Model, llm.ErrKindInvalidRequest, err.Error()))
	}
	if resp := r.gateLimits(ctx, call, tgt.provider, tgt.model); resp != nil {
		return wrap(resp)
	}

	provider, ok := r.providers[tgt.provider]
	if !ok {
		return wrap(failure(tgt.provider, tgt.model, llm.ErrKindProviderUnavailable,
			fmt.Sprintf("provider %q is not configured", tgt.provider)))
	}
	if !r.breaker.IsAvailable(ctx, tgt.provider) {
		return wrap(failure(tgt.provider, tgt.model, llm.ErrKindCircuitOpen,
			fmt.Sprintf("circuit open for provider %q", tgt.provider)))
	}

	opts.Model = tgt.model
	if !r.streamable(taskType, tgt.provider, tgt.model) {
		resp := r.withRetry(ctx, call, taskType, func() *llm.Response {
			return invokeBuffered(provider, opts)
		})
		return r.synthesize(resp, onField)
	}

	sresp := invokeStream(provider, opts)
	r.logCall(ctx, call, taskType, &sresp.Response)
	if sresp.Success || !sresp.ErrorKind.Retryable() || tgt.fallback == nil {
		return sresp
	}
	if len(sresp.FieldTimings) > 0 {
		// A partially delivered stream cannot safely be redone.
		return sresp
	}

	fb := *tgt.fallback
	fbProvider, ok := r.providers[fb.Provider]
	if !ok || !r.breaker.IsAvailable(ctx, fb.Provider) {
		return sresp
	}
	r.logger.InfoContext(ctx, "Streaming fallback to secondary provider",
		"task_type", taskType, "from", tgt.provider, "to", fb.Provider)

	fbOpts := opts
	fbOpts.Model = fb.Model
	if !r.streamable(taskType, fb.Provider, fb.Model) {
		resp := invokeBuffered(fbProvider, fbOpts)
		r.logCall(ctx, call, taskType, resp)
		return r.synthesize(resp, onField)
	}
	fbResp := invokeStream(fbProvider, fbOpts)
	r.logCall(ctx, call, taskType, &fbResp.Response)
	return fbResp
}

// streamable reports whether the task is configured to stream and the model
// advertises streaming.
func (r *Router) streamable(taskType, provider, model string) bool {
	if !r.cfg.Streaming.StreamsTask(taskType) {
		return false
	}
	p, ok := r.cfg.Providers[provider]
	if !ok {
		return false
	}
	return p.Models[model].SupportsStreaming
}

// synthesize turns a buffered response into the streaming shape, replaying
// the parsed top-level fields through onField in emission order.
func (r *Router) synthesize(resp *llm.Response, onField llm.FieldCallback) *llm.StreamingResponse {
	out := &llm.StreamingResponse{Response: *resp, Streamed: false}
	if !resp.Success || onField == nil {
		return out
	}
	detector := llm.NewFieldDetector(onField)
	detector.Feed(resp.Content)
	detector.Finish()
	return out
}

func wrap(resp *llm.Response) *llm.StreamingResponse {
	return &llm.StreamingResponse{Response: *resp}
}
