package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// thinkingBudgets maps a thinking level to an Anthropic budget_tokens value.
var thinkingBudgets = map[ThinkingLevel]int{
	ThinkingMinimal: 1024,
	ThinkingLow:     2048,
	ThinkingMedium:  8192,
	ThinkingHigh:    16384,
}

// AnthropicProvider implements Provider over the Anthropic Messages API using
// raw HTTP so the streaming path has byte-level access for the field
// detector.
type AnthropicProvider struct {
	cfg    AdapterConfig
	model  string
	client *http.Client
}

// AdapterConfig is the construction-time configuration shared by adapters.
// The API key is read once here and never emitted in URLs, logs, or errors.
type AdapterConfig struct {
	Name       string
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int

	// ModelCaps advertises per-model capabilities.
	ModelCaps map[string][]Capability

	// SiblingModels maps a high-tier model to the model used for a single
	// in-provider fallback attempt on 503/404.
	SiblingModels map[string]string
}

func (c AdapterConfig) supports(model string, cap Capability) bool {
	for _, have := range c.ModelCaps[model] {
		if have == cap {
			return true
		}
	}
	return false
}

// NewAnthropicProvider creates the Claude adapter.
func NewAnthropicProvider(cfg AdapterConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicDefaultBaseURL
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 120
	}
	return &AnthropicProvider{
		cfg:   cfg,
		model: cfg.Model,
		// No client-level timeout: per-call deadlines come from the
		// request context so streams are not cut mid-read.
		client: &http.Client{},
	}, nil
}

func (p *AnthropicProvider) Name() string        { return p.cfg.Name }
func (p *AnthropicProvider) Model() string       { return p.model }
func (p *AnthropicProvider) SetModel(m string)   { p.model = m }
func (p *AnthropicProvider) IsHealthy() bool     { return p.cfg.APIKey != "" }

func (p *AnthropicProvider) SupportsCapability(cap Capability) bool {
	return p.cfg.supports(p.model, cap)
}

// ── request payload types (Messages API) ────────────────────────────

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	// Temperature is a pointer so Claude's default survives omission.
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []map[string]any   `json:"tools,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicAPIError `json:"error,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Delta   *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Message *anthropicResponse `json:"message,omitempty"`
	Usage   *anthropicUsage    `json:"usage,omitempty"`
	Error   *anthropicAPIError `json:"error,omitempty"`
}

// ── buffered completions ─────────────────────────────────────────────

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, opts Options) *Response {
	return p.complete(ctx, p.buildRequest(prompt, nil, "", false, opts), opts)
}

func (p *AnthropicProvider) CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string, opts Options) *Response {
	if !p.SupportsCapability(CapabilityVision) {
		return errorResponse(p.Name(), p.model, ErrKindUnsupportedCapability,
			fmt.Sprintf("model %s does not support vision", p.model))
	}
	return p.complete(ctx, p.buildRequest(prompt, image, mimeType, false, opts), opts)
}

func (p *AnthropicProvider) complete(ctx context.Context, req anthropicRequest, opts Options) *Response {
	start := time.Now()
	ctx, cancel := callContext(ctx, opts)
	defer cancel()
	body, status, err := p.post(ctx, req, opts)
	if err != nil {
		// One-shot sibling fallback on 503/404 for high-tier models.
		if sibling, ok := p.siblingFor(req.Model, status); ok {
			req.Model = sibling
			if !p.cfg.supports(sibling, CapabilityThinking) {
				req.Thinking = nil
			}
			body, status, err = p.post(ctx, req, opts)
		}
	}
	if err != nil {
		return classifiedResponse(p.Name(), req.Model, status, err, time.Since(start))
	}

	var parsed anthropicResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil {
		return errorResponse(p.Name(), req.Model, ErrKindInvalidResponse, "malformed response body")
	}
	if parsed.Error != nil {
		kind := ClassifyHTTP(status, parsed.Error.Message)
		return errorResponse(p.Name(), req.Model, kind, parsed.Error.Message)
	}

	content := selectPayloadPart(textParts(parsed.Content))
	if content == "" {
		return errorResponse(p.Name(), req.Model, ErrKindInvalidResponse, "empty content")
	}
	return &Response{
		Success:      true,
		Content:      content,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		CostUSD:      CostUSD(req.Model, parsed.Usage.InputTokens, parsed.Usage.OutputTokens),
		LatencyMs:    time.Since(start).Milliseconds(),
		Provider:     p.Name(),
		Model:        req.Model,
	}
}

// ── streaming completions ────────────────────────────────────────────

func (p *AnthropicProvider) StreamComplete(ctx context.Context, prompt string, opts Options, onField FieldCallback) *StreamingResponse {
	return p.stream(ctx, p.buildRequest(prompt, nil, "", true, opts), opts, onField)
}

func (p *AnthropicProvider) StreamCompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string, opts Options, onField FieldCallback) *StreamingResponse {
	if !p.SupportsCapability(CapabilityVision) {
		return &StreamingResponse{Response: *errorResponse(p.Name(), p.model, ErrKindUnsupportedCapability,
			fmt.Sprintf("model %s does not support vision", p.model))}
	}
	return p.stream(ctx, p.buildRequest(prompt, image, mimeType, true, opts), opts, onField)
}

func (p *AnthropicProvider) stream(ctx context.Context, req anthropicRequest, opts Options, onField FieldCallback) *StreamingResponse {
	start := time.Now()
	out := &StreamingResponse{
		Response:     Response{Provider: p.Name(), Model: req.Model},
		FieldTimings: map[string]int64{},
	}
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	httpReq, err := p.newHTTPRequest(ctx, req, opts)
	if err != nil {
		out.Response = *errorResponse(p.Name(), req.Model, ErrKindInvalidRequest, err.Error())
		return out
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		out.Response = *classifiedResponse(p.Name(), req.Model, 0, err, time.Since(start))
		return out
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := ClassifyHTTP(resp.StatusCode, string(body))
		out.Response = *errorResponse(p.Name(), req.Model, kind,
			fmt.Sprintf("request failed with status %d", resp.StatusCode))
		out.LatencyMs = time.Since(start).Milliseconds()
		return out
	}

	detector := NewFieldDetector(func(field string, value any) {
		out.FieldTimings[field] = time.Since(start).Milliseconds()
		if onField != nil {
			onField(field, value)
		}
	})
	parser := &SSEParser{}
	var inputTokens, outputTokens int
	var streamErr *Error

	buf := make([]byte, 4096)
	// One iteration per received chunk; the request context carries the
	// cancellation signal, so an abort closes the body read directly.
	for streamErr == nil {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, payload := range parser.Feed(buf[:n]) {
				if out.TTFBMs == 0 {
					out.TTFBMs = time.Since(start).Milliseconds()
				}
				streamErr = consumeAnthropicEvent(payload, detector, &inputTokens, &outputTokens)
				if streamErr != nil {
					break
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() == context.Canceled {
				// Cancelled mid-stream: keep the partial fields, no error.
				break
			}
			streamErr = NewError(ClassifyTransport(readErr), "stream read failed", readErr)
		}
	}
	if payload, ok := parser.Flush(); ok && streamErr == nil {
		streamErr = consumeAnthropicEvent(payload, detector, &inputTokens, &outputTokens)
	}
	detector.Finish()

	out.Streamed = true
	out.Content = detector.Buffer()
	out.InputTokens = inputTokens
	out.OutputTokens = outputTokens
	out.CostUSD = CostUSD(req.Model, inputTokens, outputTokens)
	out.LatencyMs = time.Since(start).Milliseconds()
	if streamErr != nil {
		out.Err = streamErr
		out.ErrorKind = streamErr.Kind
		return out
	}
	out.Success = true
	return out
}

// consumeAnthropicEvent feeds one stream event into the detector and usage
// accumulators.
func consumeAnthropicEvent(payload string, detector *FieldDetector, inputTokens, outputTokens *int) *Error {
	var ev anthropicStreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil // non-event data line, skip
	}
	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			*inputTokens = ev.Message.Usage.InputTokens
		}
	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Text != "" {
			detector.Feed(ev.Delta.Text)
		}
	case "message_delta":
		if ev.Usage != nil {
			*outputTokens = ev.Usage.OutputTokens
		}
	case "error":
		if ev.Error != nil {
			kind := ClassifyHTTP(0, ev.Error.Message)
			if ev.Error.Type == "overloaded_error" {
				kind = ErrKindOverloaded
			}
			return NewError(kind, ev.Error.Message, nil)
		}
	}
	return nil
}

// ── request construction / transport ─────────────────────────────────

func (p *AnthropicProvider) buildRequest(prompt string, image []byte, mimeType string, stream bool, opts Options) anthropicRequest {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var content any = prompt
	if len(image) > 0 {
		content = []map[string]any{
			{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": mimeType,
					"data":       base64.StdEncoding.EncodeToString(image),
				},
			},
			{"type": "text", "text": prompt},
		}
	}

	req := anthropicRequest{
		Model:       model,
		Messages:    []anthropicMessage{{Role: "user", Content: content}},
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}

	// Thinking is a capability, not a keyword: dropped silently when the
	// model does not advertise it.
	if opts.ThinkingLevel != "" && p.cfg.supports(model, CapabilityThinking) {
		req.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: thinkingBudgets[opts.ThinkingLevel]}
		req.Temperature = nil // Anthropic rejects temperature with thinking enabled
	}

	for _, tool := range opts.Tools {
		if tool.Name == ToolGoogleSearch {
			if p.cfg.supports(model, CapabilityGrounding) {
				req.Tools = append(req.Tools, map[string]any{
					"type": "web_search_20250305",
					"name": "web_search",
				})
			}
			continue
		}
		req.Tools = append(req.Tools, map[string]any{
			"name":         tool.Name,
			"description":  tool.Description,
			"input_schema": tool.ParametersSchema,
		})
	}
	return req
}

func (p *AnthropicProvider) newHTTPRequest(ctx context.Context, req anthropicRequest, opts Options) (*http.Request, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	return httpReq, nil
}

// post issues one buffered request and returns body, status and a classified
// error on failure.
func (p *AnthropicProvider) post(ctx context.Context, req anthropicRequest, opts Options) ([]byte, int, error) {
	httpReq, err := p.newHTTPRequest(ctx, req, opts)
	if err != nil {
		return nil, 0, NewError(ErrKindInvalidRequest, "build request failed", err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, NewError(ClassifyTransport(err), "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, NewError(ClassifyTransport(err), "read response failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		kind := ClassifyHTTP(resp.StatusCode, string(body))
		return body, resp.StatusCode, NewError(kind, fmt.Sprintf("request failed with status %d", resp.StatusCode), nil)
	}
	return body, resp.StatusCode, nil
}

// siblingFor reports the one-shot in-provider fallback model for a 503/404.
func (p *AnthropicProvider) siblingFor(model string, status int) (string, bool) {
	if status != http.StatusServiceUnavailable && status != http.StatusNotFound {
		return "", false
	}
	sibling, ok := p.cfg.SiblingModels[model]
	return sibling, ok
}

// ── shared helpers ───────────────────────────────────────────────────

// callContext applies the per-call wall-clock budget, if any.
func callContext(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.TimeoutSec > 0 {
		return context.WithTimeout(ctx, time.Duration(opts.TimeoutSec)*time.Second)
	}
	return context.WithCancel(ctx)
}

func textParts(content []anthropicContent) []string {
	var parts []string
	for _, c := range content {
		if c.Type == "text" || c.Type == "thinking" {
			parts = append(parts, c.Text)
		}
	}
	return parts
}

// selectPayloadPart picks the JSON payload among multiple response parts:
// the first part whose trimmed text begins with '{' or '[', else the last
// non-empty part.
func selectPayloadPart(parts []string) string {
	lastNonEmpty := ""
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if trimmed[0] == '{' || trimmed[0] == '[' {
			return part
		}
		lastNonEmpty = part
	}
	return lastNonEmpty
}

func errorResponse(provider, model string, kind ErrorKind, message string) *Response {
	return &Response{
		Provider:  provider,
		Model:     model,
		Err:       NewError(kind, message, nil),
		ErrorKind: kind,
	}
}

func classifiedResponse(provider, model string, status int, err error, elapsed time.Duration) *Response {
	kind := KindOf(err)
	if kind == ErrKindUnknown && status != 0 {
		kind = ClassifyHTTP(status, err.Error())
	}
	return &Response{
		Provider:  provider,
		Model:     model,
		Err:       err,
		ErrorKind: kind,
		LatencyMs: elapsed.Milliseconds(),
	}
}
