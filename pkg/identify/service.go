// Package identify orchestrates tiered wine identification: a fast streaming
// first impression, then progressively stronger models until confidence
// clears the configured threshold.
package identify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/cellarist/sommelier/pkg/config"
	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/models"
	"github.com/cellarist/sommelier/pkg/prompt"
	"github.com/cellarist/sommelier/pkg/router"
)

// Tier wall-clock budgets in seconds.
const (
	tier1TextTimeout   = 30
	tier1VisionTimeout = 60
	tier15Timeout      = 90
	tier2Timeout       = 60
	tier3Timeout       = 120
)

// clarifyMaxOptions caps the option list passed to the clarification model.
const clarifyMaxOptions = 10

// LLMRouter is the slice of the router the service uses.
type LLMRouter interface {
	Complete(ctx context.Context, call router.Call, taskType, prompt string, opts llm.Options) *llm.Response
	CompleteWithImage(ctx context.Context, call router.Call, taskType, prompt string, image []byte, mimeType string, opts llm.Options) *llm.Response
	StreamComplete(ctx context.Context, call router.Call, taskType, prompt string, opts llm.Options, onField llm.FieldCallback) *llm.StreamingResponse
	StreamCompleteWithImage(ctx context.Context, call router.Call, taskType, prompt string, image []byte, mimeType string, opts llm.Options, onField llm.FieldCallback) *llm.StreamingResponse
}

// Analytics receives the final per-query record. Failures inside must never
// surface to the caller.
type Analytics interface {
	LogIdentificationResult(ctx context.Context, rec *models.IdentificationRecord)
}

// EventSink receives SSE-bound events in strict emission order.
type EventSink func(event string, data any)

// Input is one identification query.
type Input struct {
	Type              models.InputType
	Text              string
	Image             []byte
	MimeType          string
	SupplementaryText string
	UserID            string
	SessionID         string
}

func (in Input) call() router.Call {
	return router.Call{UserID: in.UserID, SessionID: in.SessionID}
}

func (in Input) taskType() string {
	if in.Type == models.InputTypeImage {
		return "identify_image"
	}
	return "identify_text"
}

func (in Input) hash() string {
	h := sha256.New()
	if in.Type == models.InputTypeImage {
		h.Write(in.Image)
	} else {
		h.Write([]byte(in.Text))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Service runs the tiered identification state machine.
type Service struct {
	router    LLMRouter
	analytics Analytics
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
}

// New wires an identification Service.
func New(r LLMRouter, analytics Analytics, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		router:    r,
		analytics: analytics,
		cfg:       cfg,
		logger:    logger.With("component", "identify"),
		now:       time.Now,
	}
}

// outcome accumulates what the tiers actually did during one query.
// traversed holds every tier run; path holds only adopted steps, so its last
// entry always matches the final result's confidence.
type outcome struct {
	traversed []models.EscalationStep
	path      []models.EscalationStep
	totalCost float64
	cancelled bool
	escError  string
}

func (o *outcome) record(step models.EscalationStep, adopted bool) {
	o.traversed = append(o.traversed, step)
	o.totalCost += step.CostUSD
	if adopted {
		o.path = append(o.path, step)
	}
}

// Identify runs the buffered state machine and returns the terminal result
// with its escalation history.
func (s *Service) Identify(ctx context.Context, input Input) (*models.Identification, error) {
	start := s.now()
	o := &outcome{}

	result, resp := s.runTier(ctx, input, "1", nil, o)
	if result == nil {
		return nil, terminalError(resp)
	}

	if result.Confidence < s.cfg.Confidence.Tier1Threshold {
		result = s.escalate(ctx, input, result, nil, o)
	}

	result.Action = s.deriveAction(result)
	s.finalize(ctx, input, result, o, start)
	return result, nil
}

// IdentifyWithOpus is the user-triggered premium tier. It is never entered
// automatically; the caller supplies the prior result and any confirmed
// fields or free-text clarification.
func (s *Service) IdentifyWithOpus(ctx context.Context, input Input, prior *models.Identification, locked map[string]string, clarification string) (*models.Identification, error) {
	start := s.now()
	o := &outcome{}
	aug := &models.AugmentationContext{
		Prior:        prior,
		LockedFields: locked,
		Constraints:  ParseConstraints(clarification),
	}

	result, resp := s.runTier(ctx, input, "3", aug, o)
	if result == nil {
		return nil, terminalError(resp)
	}
	// The user asked for the premium opinion; it stands even when its
	// confidence is below the prior's.
	o.path = append([]models.EscalationStep(nil), o.traversed...)

	result.Action = s.deriveAction(result)
	s.finalize(ctx, input, result, o, start)
	return result, nil
}

// VerifyImage re-examines a label with the grounded tier, keeping the prior
// result when verification does not improve on it.
func (s *Service) VerifyImage(ctx context.Context, input Input, prior *models.Identification, locked map[string]string) (*models.Identification, error) {
	start := s.now()
	o := &outcome{}
	aug := &models.AugmentationContext{Prior: prior, LockedFields: locked}

	result, resp := s.runTier(ctx, input, "1.5", aug, o)
	if result == nil {
		return nil, terminalError(resp)
	}
	if prior != nil && result.Confidence <= prior.Confidence {
		kept := *prior
		kept.Action = s.deriveAction(&kept)
		// The rejected verification stays in traversed for analytics; the
		// client-facing path must end at the kept result's confidence.
		if prior.Escalation != nil && len(prior.Escalation.Path) > 0 {
			o.path = append([]models.EscalationStep(nil), prior.Escalation.Path...)
		} else {
			o.path = []models.EscalationStep{{Tier: "prior", Confidence: prior.Confidence}}
		}
		s.finalize(ctx, input, &kept, o, start)
		return &kept, nil
	}
	o.path = append([]models.EscalationStep(nil), o.traversed...)

	result.Action = s.deriveAction(result)
	s.finalize(ctx, input, result, o, start)
	return result, nil
}

// ClarifyMatch resolves a free-text user answer against the offered options.
func (s *Service) ClarifyMatch(ctx context.Context, call router.Call, kind, identified string, options []string) (string, int, error) {
	if len(options) > clarifyMaxOptions {
		options = options[:clarifyMaxOptions]
	}
	resp := s.router.Complete(ctx, call, "clarify_match",
		prompt.ClarifyMatch(kind, identified, options),
		llm.Options{JSONResponse: true, TimeoutSec: tier1TextTimeout})
	if !resp.Success {
		return "", 0, terminalError(resp)
	}

	fields, err := parsePayload(resp.Content)
	if err != nil {
		return "", 0, llm.NewError(llm.ErrKindClarification, "unparseable clarification response", err)
	}
	match, _ := fields["match"].(string)
	confidence := intField(fields, "confidence")
	return match, confidence, nil
}

// escalate runs the escalation sub-state-machine starting at tier 1.5. A new
// result is adopted only when its confidence strictly beats the current best,
// so the client view never regresses.
func (s *Service) escalate(ctx context.Context, input Input, best *models.Identification, aug *models.AugmentationContext, o *outcome) *models.Identification {
	if aug == nil {
		aug = &models.AugmentationContext{}
	}
	for _, tier := range []string{"1.5", "2"} {
		if ctx.Err() != nil {
			o.cancelled = true
			return best
		}
		aug.Prior = best

		cand, resp := s.runTier(ctx, input, tier, aug, o)
		if cand == nil {
			o.escError = string(resp.ErrorKind)
			return best
		}
		if cand.Confidence > best.Confidence {
			best = cand
		}
		if cand.Confidence >= s.cfg.Confidence.Tier15Threshold {
			break
		}
	}
	return best
}

// runTier performs one buffered tier call and parses its result. On success
// the traversed step is recorded; the step is adopted into the path iff the
// parsed confidence beats everything seen so far.
func (s *Service) runTier(ctx context.Context, input Input, tier string, aug *models.AugmentationContext, o *outcome) (*models.Identification, *llm.Response) {
	text, opts := s.tierCall(input, tier, aug)

	var resp *llm.Response
	if input.Type == models.InputTypeImage {
		resp = s.router.CompleteWithImage(ctx, input.call(), input.taskType(), text, input.Image, input.MimeType, opts)
	} else {
		resp = s.router.Complete(ctx, input.call(), input.taskType(), text, opts)
	}
	if !resp.Success {
		return nil, resp
	}

	result, err := parseIdentification(resp.Content)
	if err != nil {
		s.logger.WarnContext(ctx, "Unparseable tier response",
			"tier", tier, "model", resp.Model, "error", err)
		resp.Success = false
		resp.ErrorKind = llm.ErrKindInvalidResponse
		resp.Err = llm.NewError(llm.ErrKindInvalidResponse, "model output was not a wine identification", err)
		return nil, resp
	}

	step := models.EscalationStep{
		Tier:       tier,
		Model:      resp.Model,
		Confidence: result.Confidence,
		CostUSD:    resp.CostUSD,
	}
	adopted := len(o.path) == 0 || result.Confidence > o.path[len(o.path)-1].Confidence
	o.record(step, adopted)
	return result, resp
}

// tierCall builds the prompt and options for one buffered tier.
func (s *Service) tierCall(input Input, tier string, aug *models.AugmentationContext) (string, llm.Options) {
	var priorCtx string
	if aug != nil {
		priorCtx = prompt.PriorContext(aug.Prior, aug.LockedFields, aug.Constraints)
	}

	opts := llm.Options{JSONResponse: true}
	switch tier {
	case "1":
		opts.ThinkingLevel = llm.ThinkingLow
		opts.TimeoutSec = tier1TextTimeout
	case "1.5":
		opts.ThinkingLevel = llm.ThinkingHigh
		opts.Tools = []llm.ToolDefinition{{Name: llm.ToolGoogleSearch}}
		opts.TimeoutSec = tier15Timeout
	case "2":
		opts.Provider = s.cfg.TierModels.Tier2.Provider
		opts.Model = s.cfg.TierModels.Tier2.Model
		opts.TimeoutSec = tier2Timeout
	case "3":
		opts.Provider = s.cfg.TierModels.Tier3.Provider
		opts.Model = s.cfg.TierModels.Tier3.Model
		opts.TimeoutSec = tier3Timeout
	}

	if input.Type == models.InputTypeImage {
		opts.TimeoutSec = maxInt(opts.TimeoutSec, tier1VisionTimeout)
		if tier == "1" {
			return prompt.Vision(input.SupplementaryText), opts
		}
		return prompt.VisionVerify(priorCtx, input.SupplementaryText), opts
	}

	switch tier {
	case "1":
		return prompt.Tier1Full(input.Text), opts
	case "1.5":
		return prompt.Tier15(input.Text, priorCtx), opts
	default:
		return prompt.Detailed(input.Text, priorCtx), opts
	}
}

// deriveAction maps the final result to a client action.
func (s *Service) deriveAction(r *models.Identification) models.Action {
	const comparableSpread = 10
	cc := s.cfg.Confidence

	if len(r.Candidates) >= 2 && r.Candidates[0].Score-r.Candidates[1].Score <= comparableSpread {
		return models.ActionDisambiguate
	}
	switch {
	case r.Confidence >= cc.AutoThreshold && r.Producer != "" && r.WineName != "" && r.Vintage != "":
		return models.ActionAutoPopulate
	case r.Confidence >= cc.SuggestThreshold && (r.Producer != "" || r.WineName != ""):
		// A producer-only hit on an estate with many wines needs a pick
		// list, not a single suggestion.
		if r.Producer != "" && r.WineName == "" && len(r.Candidates) > 0 {
			return models.ActionDisambiguate
		}
		return models.ActionSuggest
	default:
		return models.ActionUserChoice
	}
}

// finalize attaches the escalation record and writes the analytics row.
func (s *Service) finalize(ctx context.Context, input Input, result *models.Identification, o *outcome, start time.Time) {
	result.Escalation = &models.Escalation{
		Path:      o.path,
		Cancelled: o.cancelled,
		Error:     o.escError,
	}

	rec := &models.IdentificationRecord{
		UserID:          input.UserID,
		SessionID:       input.SessionID,
		InputType:       input.Type,
		InputHash:       input.hash(),
		FinalConfidence: result.Confidence,
		FinalAction:     result.Action,
		FinalTier:       result.Escalation.Last().Tier,
		TotalCostUSD:    o.totalCost,
		TotalLatencyMs:  s.now().Sub(start).Milliseconds(),

		IdentifiedProducer: result.Producer,
		IdentifiedWineName: result.WineName,
		IdentifiedVintage:  result.Vintage,
		IdentifiedRegion:   result.Region,
		CreatedAt:          s.now().UTC(),
	}
	for _, step := range o.traversed {
		rec.TierOutcomes = append(rec.TierOutcomes, models.TierOutcome{
			Tier:       step.Tier,
			Model:      step.Model,
			Confidence: step.Confidence,
		})
	}
	if o.cancelled || o.escError != "" {
		rec.InferencesApplied = map[string]any{}
		if o.cancelled {
			rec.InferencesApplied["cancelled"] = true
		}
		if o.escError != "" {
			rec.InferencesApplied["escalationError"] = o.escError
		}
	}
	s.analytics.LogIdentificationResult(ctx, rec)
}

// terminalError converts a failed response into a typed error.
func terminalError(resp *llm.Response) error {
	if resp.Err != nil {
		return resp.Err
	}
	return llm.NewError(resp.ErrorKind, fmt.Sprintf("%s call failed", resp.Provider), nil)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
