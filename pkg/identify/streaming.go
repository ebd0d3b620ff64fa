package identify

import (
	"context"
	"encoding/json"

	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/models"
	"github.com/cellarist/sommelier/pkg/prompt"
)

// SSE event names emitted through the sink. The transport forwards them
// verbatim.
const (
	EventField      = "field"
	EventResult     = "result"
	EventRefining   = "refining"
	EventRefined    = "refined"
	EventEscalating = "escalating"
	EventError      = "error"
	EventDone       = "done"
)

// IdentifyStreaming runs the streaming state machine, pushing events to sink
// in strict serial order: field*, result, [refining, field*, refined]?, done.
// The sink is always left on a terminal done event.
func (s *Service) IdentifyStreaming(ctx context.Context, input Input, sink EventSink) {
	start := s.now()
	o := &outcome{}

	onField := func(field string, value any) {
		sink(EventField, map[string]any{"field": field, "value": value})
	}

	sresp := s.streamTier1(ctx, input, onField)
	if !sresp.Success {
		if ctx.Err() == context.Canceled {
			sink(EventDone, map[string]any{})
			return
		}
		emitError(sink, &sresp.Response)
		sink(EventDone, map[string]any{})
		return
	}

	result, err := parseIdentification(sresp.Content)
	if err != nil {
		s.logger.WarnContext(ctx, "Unparseable streamed identification", "error", err)
		emitError(sink, &llm.Response{
			ErrorKind: llm.ErrKindInvalidResponse,
			Err:       llm.NewError(llm.ErrKindInvalidResponse, "model output was not a wine identification", err),
		})
		sink(EventDone, map[string]any{})
		return
	}

	o.record(models.EscalationStep{
		Tier:       "1",
		Model:      sresp.Model,
		Confidence: result.Confidence,
		CostUSD:    sresp.CostUSD,
	}, true)

	// A cancellation observed during the stream ends the session after the
	// fields already delivered: done, with no result.
	if ctx.Err() != nil {
		o.cancelled = true
		sink(EventDone, map[string]any{})
		s.finalize(ctx, input, result, o, start)
		return
	}

	result.Action = s.deriveAction(result)

	// Confidence is always re-emitted last so clients act on the final value.
	sink(EventField, map[string]any{"field": "confidence", "value": result.Confidence})
	sink(EventResult, result)

	if result.Confidence >= s.cfg.Confidence.Tier1Threshold || ctx.Err() != nil {
		o.cancelled = ctx.Err() != nil
		sink(EventDone, map[string]any{})
		s.finalize(ctx, input, result, o, start)
		return
	}

	refiningEvent := EventRefining
	if input.Type == models.InputTypeImage {
		refiningEvent = EventEscalating
	}
	sink(refiningEvent, map[string]any{
		"message":         "Looking closer at this wine",
		"tier1Confidence": result.Confidence,
	})

	refined := s.escalate(ctx, input, result, nil, o)
	if o.cancelled {
		sink(EventDone, map[string]any{})
		s.finalize(ctx, input, result, o, start)
		return
	}

	if refined.Confidence > result.Confidence {
		refined.Action = s.deriveAction(refined)
		for _, change := range diffFields(result, refined) {
			sink(EventField, map[string]any{"field": change.Field, "value": change.Value})
		}
		sink(EventField, map[string]any{"field": "confidence", "value": refined.Confidence})
		sink(EventRefined, refinedPayload(refined, true))
		result = refined
	} else {
		sink(EventRefined, refinedPayload(result, false))
	}

	sink(EventDone, map[string]any{})
	s.finalize(ctx, input, result, o, start)
}

// streamTier1 issues the compact schema-constrained streaming call.
func (s *Service) streamTier1(ctx context.Context, input Input, onField llm.FieldCallback) *llm.StreamingResponse {
	opts := llm.Options{
		JSONResponse:   true,
		ResponseSchema: prompt.IdentificationSchema(),
		ThinkingLevel:  llm.ThinkingMinimal,
		TimeoutSec:     tier1TextTimeout,
	}
	if input.Type == models.InputTypeImage {
		opts.TimeoutSec = tier1VisionTimeout
		return s.router.StreamCompleteWithImage(ctx, input.call(), input.taskType(),
			prompt.Vision(input.SupplementaryText), input.Image, input.MimeType, opts, onField)
	}
	return s.router.StreamComplete(ctx, input.call(), input.taskType(),
		prompt.Tier1Stream(input.Text), opts, onField)
}

// refinedPayload is the result shape plus the escalated marker.
func refinedPayload(r *models.Identification, escalated bool) map[string]any {
	raw, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"escalated": escalated}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"escalated": escalated}
	}
	out["escalated"] = escalated
	return out
}

func emitError(sink EventSink, resp *llm.Response) {
	msg := "identification failed"
	if resp.Err != nil {
		msg = resp.Err.Error()
	}
	sink(EventError, map[string]any{
		"type":      string(resp.ErrorKind),
		"message":   msg,
		"retryable": resp.ErrorKind.Retryable(),
	})
}
