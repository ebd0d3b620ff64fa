package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cellarist/sommelier/pkg/config"
	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/models"
	"github.com/cellarist/sommelier/pkg/prompt"
	"github.com/cellarist/sommelier/pkg/router"
)

// SSE event names emitted through the sink.
const (
	EventField                = "field"
	EventResult               = "result"
	EventConfirmationRequired = "confirmation_required"
	EventError                = "error"
	EventDone                 = "done"
)

// cacheHitDelay paces simulated streaming of cached records so clients
// render progressively.
const cacheHitDelay = 50 * time.Millisecond

// enrichTimeoutSec is generous because the task runs with web-search
// grounding.
const enrichTimeoutSec = 120

// LLMRouter is the slice of the router the service uses. Buffered callers
// pass a nil field callback; the router still returns the full content.
type LLMRouter interface {
	StreamComplete(ctx context.Context, call router.Call, taskType, prompt string, opts llm.Options, onField llm.FieldCallback) *llm.StreamingResponse
}

// EventSink receives SSE-bound events in strict emission order.
type EventSink func(event string, data any)

// Query is one enrichment request.
type Query struct {
	Producer string
	WineName string
	Vintage  string
	WineType string
	Region   string

	// ConfirmMatch accepts a previously proposed fuzzy match; ForceRefresh
	// bypasses the cache entirely.
	ConfirmMatch bool
	ForceRefresh bool

	UserID    string
	SessionID string
}

func (q Query) call() router.Call {
	return router.Call{UserID: q.UserID, SessionID: q.SessionID}
}

// Service answers enrichment queries from the cache or the LLM.
type Service struct {
	router   LLMRouter
	store    Store
	resolver *Resolver
	cfg      *config.Config
	logger   *slog.Logger
	now      func() time.Time
	hitDelay time.Duration
}

// New wires an enrichment Service. The resolver reads candidates through the
// store's key listing only, so it stays a read-only consumer of the cache.
func New(r LLMRouter, store Store, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		router:   r,
		store:    store,
		resolver: NewResolver(store.Keys, cfg.Enrichment.FuzzyThresholds),
		cfg:      cfg,
		logger:   logger.With("component", "enrich"),
		now:      time.Now,
		hitDelay: cacheHitDelay,
	}
}

// Enrich is the buffered entry point. Exactly one of the three returns is
// set: a payload, a pending confirmation, or an error.
func (s *Service) Enrich(ctx context.Context, q Query) (*models.Enrichment, *models.PendingConfirmation, error) {
	hit, pending := s.lookup(ctx, q)
	if pending != nil {
		return nil, pending, nil
	}
	if hit != nil {
		return hit, nil, nil
	}

	fresh, _, err := s.refresh(ctx, q, nil)
	if err != nil {
		return nil, nil, err
	}
	return fresh, nil, nil
}

// EnrichStreaming is the SSE entry point. The sink always ends on done.
func (s *Service) EnrichStreaming(ctx context.Context, q Query, sink EventSink) {
	hit, pending := s.lookup(ctx, q)
	if pending != nil {
		sink(EventConfirmationRequired, pending)
		sink(EventDone, map[string]any{})
		return
	}
	if hit != nil {
		s.emitCached(ctx, hit, sink)
		return
	}

	onField := func(field string, value any) {
		sink(EventField, map[string]any{"field": field, "value": value})
	}
	fresh, dropped, err := s.refresh(ctx, q, onField)
	if err != nil {
		if ctx.Err() == context.Canceled {
			sink(EventDone, map[string]any{})
			return
		}
		kind := llm.KindOf(err)
		sink(EventError, map[string]any{
			"type":      string(kind),
			"message":   err.Error(),
			"retryable": kind.Retryable(),
		})
		sink(EventDone, map[string]any{})
		return
	}
	if fresh.Stale {
		// Stale fallback rows were never streamed; replay them like a hit.
		s.emitCached(ctx, fresh, sink)
		return
	}
	// Sections dropped after their field events already went out get a
	// corrective re-emission before result: the latest emission wins, so a
	// null value retracts the section unless the merge restored a prior one.
	for _, section := range dropped {
		value, ok := sectionValue(fresh, section)
		if !ok {
			value = nil
		}
		sink(EventField, map[string]any{"field": section, "value": value})
	}
	sink(EventResult, fresh)
	sink(EventDone, map[string]any{})
}

// lookup runs the cache fast path: exact hit, then fuzzy proposal.
func (s *Service) lookup(ctx context.Context, q Query) (*models.Enrichment, *models.PendingConfirmation) {
	if q.ForceRefresh {
		return nil, nil
	}
	key := CanonicalKey(q.Producer, q.WineName, q.Vintage)

	row, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "Cache lookup failed, treating as miss", "error", err)
		return nil, nil
	}
	if row != nil && !row.Expired(s.now()) {
		return cachedPayload(row), nil
	}

	match, err := s.resolver.Resolve(ctx, key)
	if err != nil || match == nil {
		return nil, nil
	}
	matched, err := s.store.Get(ctx, match.Key)
	if err != nil || matched == nil || matched.Expired(s.now()) {
		return nil, nil
	}

	if q.ConfirmMatch {
		return cachedPayload(matched), nil
	}
	return nil, &models.PendingConfirmation{
		MatchType:   "fuzzy",
		SearchedFor: q.Producer,
		MatchedTo:   matched.Payload.Producer,
		Confidence:  match.Confidence,
	}
}

// refresh streams a fresh enrichment from the LLM, validates and merges it
// over any prior row, and persists the result. The second return lists the
// section names validation dropped. On failure a prior row, even expired, is
// returned as a stale fallback.
func (s *Service) refresh(ctx context.Context, q Query, onField llm.FieldCallback) (*models.Enrichment, []string, error) {
	key := CanonicalKey(q.Producer, q.WineName, q.Vintage)
	prior, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "Prior row read failed", "error", err)
		prior = nil
	}

	opts := llm.Options{
		JSONResponse:   true,
		ResponseSchema: prompt.EnrichmentSchema(),
		Tools:          []llm.ToolDefinition{{Name: llm.ToolGoogleSearch}},
		TimeoutSec:     enrichTimeoutSec,
	}
	text := prompt.Enrichment(q.Producer, q.WineName, q.Vintage, q.WineType, q.Region)
	sresp := s.router.StreamComplete(ctx, q.call(), "enrich", text, opts, onField)

	if !sresp.Success {
		if prior != nil {
			s.logger.InfoContext(ctx, "Enrichment failed, serving stale cache row",
				"producer", q.Producer, "wine", q.WineName, "error_kind", sresp.ErrorKind)
			stale := cachedPayload(prior)
			stale.Stale = true
			return stale, nil, nil
		}
		if sresp.Err != nil {
			return nil, nil, sresp.Err
		}
		return nil, nil, llm.NewError(sresp.ErrorKind, "enrichment call failed", nil)
	}

	fresh, err := parseEnrichment(sresp.Content)
	if err != nil {
		if prior != nil {
			stale := cachedPayload(prior)
			stale.Stale = true
			return stale, nil, nil
		}
		return nil, nil, llm.NewError(llm.ErrKindInvalidResponse, "model output was not an enrichment", err)
	}
	dropped := validate(fresh, s.logger)

	fresh.Producer = q.Producer
	fresh.WineName = q.WineName
	fresh.Vintage = q.Vintage
	fresh.Source = models.SourceWebSearch

	if prior != nil {
		fresh = merge(&prior.Payload, fresh)
	}

	now := s.now().UTC()
	row := &models.CacheRow{
		CanonicalProducer: key.Producer,
		CanonicalWineName: key.WineName,
		CanonicalVintage:  key.Vintage,
		Payload:           *fresh,
		Source:            fresh.Source,
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Duration(s.cfg.Enrichment.CacheTTLDays) * 24 * time.Hour),
	}
	if err := s.store.Put(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist enrichment", "error", err)
	}
	return fresh, dropped, nil
}

// emitCached simulates streaming for a cached record: style axes first for
// fast visual feedback, then the remaining sections, each paced by a small
// delay, then result and done.
func (s *Service) emitCached(ctx context.Context, e *models.Enrichment, sink EventSink) {
	emit := func(field string, value any) bool {
		sink(EventField, map[string]any{"field": field, "value": value})
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.hitDelay):
			return true
		}
	}

	for _, section := range prompt.EnrichmentFields() {
		if ctx.Err() != nil {
			break
		}
		if section == "styleProfile" {
			if sp := e.StyleProfile; sp != nil {
				for _, axis := range []struct{ name, value string }{
					{"body", sp.Body}, {"tannin", sp.Tannin},
					{"acidity", sp.Acidity}, {"sweetness", sp.Sweetness},
				} {
					if axis.value == "" {
						continue
					}
					if !emit(axis.name, axis.value) {
						break
					}
				}
			}
			continue
		}
		if value, ok := sectionValue(e, section); ok {
			if !emit(section, value) {
				break
			}
		}
	}

	sink(EventResult, e)
	sink(EventDone, map[string]any{})
}

// sectionValue returns one named section and whether it is populated.
func sectionValue(e *models.Enrichment, section string) (any, bool) {
	switch section {
	case "grapeComposition":
		return e.GrapeComposition, len(e.GrapeComposition) > 0
	case "drinkWindow":
		return e.DrinkWindow, e.DrinkWindow != nil
	case "criticScores":
		return e.CriticScores, len(e.CriticScores) > 0
	case "tastingNotes":
		return e.TastingNotes, e.TastingNotes != nil
	case "foodPairings":
		return e.FoodPairings, len(e.FoodPairings) > 0
	case "overview":
		return e.Overview, e.Overview != ""
	}
	return nil, false
}

// cachedPayload returns the stored record retyped as a cache hit, scalar
// fields unchanged.
func cachedPayload(row *models.CacheRow) *models.Enrichment {
	out := row.Payload
	out.Source = models.SourceCache
	return &out
}

// parseEnrichment parses accumulated model text, tolerating fences and
// near-valid JSON.
func parseEnrichment(content string) (*models.Enrichment, error) {
	d := llm.NewFieldDetector(nil)
	d.Feed(content)
	fields, ok := d.TryParseComplete()
	if !ok {
		return nil, fmt.Errorf("content is not a JSON object")
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize fields: %w", err)
	}
	var e models.Enrichment
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("fields do not form an enrichment: %w", err)
	}
	return &e, nil
}
