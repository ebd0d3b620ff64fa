package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// geminiThinkingBudgets maps a thinking level to a Gemini thinking budget.
var geminiThinkingBudgets = map[ThinkingLevel]int32{
	ThinkingMinimal: 0,
	ThinkingLow:     1024,
	ThinkingMedium:  8192,
	ThinkingHigh:    24576,
}

// GeminiProvider implements Provider over the official genai SDK.
type GeminiProvider struct {
	cfg    AdapterConfig
	model  string
	client *genai.Client
}

// NewGeminiProvider creates the Gemini adapter. The constructor takes
// context.Background internally; client construction does no I/O.
func NewGeminiProvider(cfg AdapterConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{cfg: cfg, model: cfg.Model, client: client}, nil
}

func (p *GeminiProvider) Name() string      { return p.cfg.Name }
func (p *GeminiProvider) Model() string     { return p.model }
func (p *GeminiProvider) SetModel(m string) { p.model = m }
func (p *GeminiProvider) IsHealthy() bool   { return p.client != nil }

func (p *GeminiProvider) SupportsCapability(cap Capability) bool {
	return p.cfg.supports(p.model, cap)
}

func (p *GeminiProvider) Complete(ctx context.Context, prompt string, opts Options) *Response {
	return p.complete(ctx, p.contents(prompt, nil, ""), opts)
}

func (p *GeminiProvider) CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string, opts Options) *Response {
	if !p.SupportsCapability(CapabilityVision) {
		return errorResponse(p.Name(), p.model, ErrKindUnsupportedCapability,
			fmt.Sprintf("model %s does not support vision", p.model))
	}
	return p.complete(ctx, p.contents(prompt, image, mimeType), opts)
}

func (p *GeminiProvider) StreamComplete(ctx context.Context, prompt string, opts Options, onField FieldCallback) *StreamingResponse {
	return p.stream(ctx, p.contents(prompt, nil, ""), opts, onField)
}

func (p *GeminiProvider) StreamCompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string, opts Options, onField FieldCallback) *StreamingResponse {
	if !p.SupportsCapability(CapabilityVision) {
		return &StreamingResponse{Response: *errorResponse(p.Name(), p.model, ErrKindUnsupportedCapability,
			fmt.Sprintf("model %s does not support vision", p.model))}
	}
	return p.stream(ctx, p.contents(prompt, image, mimeType), opts, onField)
}

func (p *GeminiProvider) complete(ctx context.Context, contents []*genai.Content, opts Options) *Response {
	start := time.Now()
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}

	genResp, err := p.client.Models.GenerateContent(ctx, model, contents, p.genConfig(model, opts))
	if err != nil {
		// One-shot sibling fallback when the flagship rung is down.
		if sibling, ok := p.cfg.SiblingModels[model]; ok && isSiblingWorthy(err) {
			fallbackOpts := opts
			if !p.cfg.supports(sibling, CapabilityThinking) {
				fallbackOpts.ThinkingLevel = ""
			}
			genResp, err = p.client.Models.GenerateContent(ctx, sibling, contents, p.genConfig(sibling, fallbackOpts))
			model = sibling
		}
	}
	if err != nil {
		return classifiedResponse(p.Name(), model, 0, classifyGenaiErr(err), time.Since(start))
	}

	content, inTok, outTok := flattenGenaiResponse(genResp)
	if content == "" {
		return errorResponse(p.Name(), model, ErrKindInvalidResponse, "empty content")
	}
	return &Response{
		Success:      true,
		Content:      content,
		InputTokens:  inTok,
		OutputTokens: outTok,
		CostUSD:      CostUSD(model, inTok, outTok),
		LatencyMs:    time.Since(start).Milliseconds(),
		Provider:     p.Name(),
		Model:        model,
	}
}

func (p *GeminiProvider) stream(ctx context.Context, contents []*genai.Content, opts Options, onField FieldCallback) *StreamingResponse {
	start := time.Now()
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}
	out := &StreamingResponse{
		Response:     Response{Provider: p.Name(), Model: model},
		FieldTimings: map[string]int64{},
	}
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	detector := NewFieldDetector(func(field string, value any) {
		out.FieldTimings[field] = time.Since(start).Milliseconds()
		if onField != nil {
			onField(field, value)
		}
	})

	var inTok, outTok int
	var streamErr error
	for genResp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, p.genConfig(model, opts)) {
		if err != nil {
			if ctx.Err() == context.Canceled {
				break // cancelled mid-stream: keep partial fields
			}
			streamErr = classifyGenaiErr(err)
			break
		}
		text, in, outT := flattenGenaiResponse(genResp)
		if text != "" {
			if out.TTFBMs == 0 {
				out.TTFBMs = time.Since(start).Milliseconds()
			}
			detector.Feed(text)
		}
		if in > 0 {
			inTok = in
		}
		if outT > 0 {
			outTok = outT
		}
	}
	detector.Finish()

	out.Streamed = true
	out.Content = detector.Buffer()
	out.InputTokens = inTok
	out.OutputTokens = outTok
	out.CostUSD = CostUSD(model, inTok, outTok)
	out.LatencyMs = time.Since(start).Milliseconds()
	if streamErr != nil {
		out.Err = streamErr
		out.ErrorKind = KindOf(streamErr)
		return out
	}
	out.Success = true
	return out
}

// contents builds the single-turn user content, with an optional inline
// image part ahead of the text so the model reads the label first.
func (p *GeminiProvider) contents(prompt string, image []byte, mimeType string) []*genai.Content {
	var parts []*genai.Part
	if len(image) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: mimeType, Data: image},
		})
	}
	parts = append(parts, &genai.Part{Text: prompt})
	return []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
}

func (p *GeminiProvider) genConfig(model string, opts Options) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.JSONResponse {
		config.ResponseMIMEType = "application/json"
	}
	if opts.ResponseSchema != nil {
		config.ResponseSchema = toGenaiSchema(opts.ResponseSchema)
		if config.ResponseMIMEType == "" {
			config.ResponseMIMEType = "application/json"
		}
	}
	if opts.ThinkingLevel != "" && p.cfg.supports(model, CapabilityThinking) {
		budget := geminiThinkingBudgets[opts.ThinkingLevel]
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}
	for _, tool := range opts.Tools {
		if tool.Name == ToolGoogleSearch {
			if p.cfg.supports(model, CapabilityGrounding) {
				config.Tools = append(config.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
			}
			continue
		}
		config.Tools = append(config.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGenaiSchema(tool.ParametersSchema),
			}},
		})
	}
	return config
}

// toGenaiSchema converts a plain JSON schema map to the SDK schema type.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

// flattenGenaiResponse extracts non-thought text and usage counts. When the
// model emits several parts (thinking plus final), the payload selection rule
// from the adapter contract applies.
func flattenGenaiResponse(genResp *genai.GenerateContentResponse) (string, int, int) {
	var inTok, outTok int
	if genResp.UsageMetadata != nil {
		inTok = int(genResp.UsageMetadata.PromptTokenCount)
		outTok = int(genResp.UsageMetadata.CandidatesTokenCount)
	}
	if len(genResp.Candidates) == 0 || genResp.Candidates[0].Content == nil {
		return "", inTok, outTok
	}
	var parts []string
	for _, part := range genResp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			parts = append(parts, part.Text)
		}
	}
	if len(parts) == 1 {
		return parts[0], inTok, outTok
	}
	return selectPayloadPart(parts), inTok, outTok
}

// classifyGenaiErr wraps SDK errors into the shared taxonomy. The SDK
// surfaces HTTP failures as genai.APIError with the status code attached.
func classifyGenaiErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind := ClassifyHTTP(apiErr.Code, apiErr.Message)
		return NewError(kind, apiErr.Message, err)
	}
	return NewError(ClassifyTransport(err), "gemini request failed", err)
}

// isSiblingWorthy reports whether an error should trigger the one-shot
// in-provider sibling model fallback (model down or unknown).
func isSiblingWorthy(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusServiceUnavailable || apiErr.Code == http.StatusNotFound
	}
	return false
}
