// Package llm defines the uniform provider contract over LLM vendors and the
// streaming machinery shared by all adapters: the SSE wire parser and the
// incremental JSON field detector.
package llm

import "context"

// Capability identifies an optional provider feature.
type Capability string

const (
	CapabilityVision    Capability = "vision"
	CapabilityTools     Capability = "tools"
	CapabilityStreaming Capability = "streaming"
	CapabilityGrounding Capability = "grounding"
	CapabilityThinking  Capability = "thinking"
)

// ThinkingLevel requests a reasoning-effort budget from models that support
// native thinking. Adapters silently drop the option for models that do not.
type ThinkingLevel string

const (
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
)

// ToolGoogleSearch is the sentinel tool name enabling grounded web retrieval
// on providers that support it.
const ToolGoogleSearch = "google_search"

// ToolDefinition describes a function tool available to the model.
// A definition whose Name is ToolGoogleSearch and whose schema is empty
// selects the provider's native search grounding instead.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema map[string]any
}

// Options carries per-call parameters. Zero values mean "provider default".
type Options struct {
	MaxTokens     int
	Temperature   *float64
	JSONResponse  bool
	ResponseSchema map[string]any
	ThinkingLevel ThinkingLevel
	Tools         []ToolDefinition
	TimeoutSec    int

	// Provider and Model override task routing when set; used by higher
	// escalation tiers to force a specific rung.
	Provider string
	Model    string
}

// Response is the buffered result of one completion call.
type Response struct {
	Success      bool
	Content      string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LatencyMs    int64
	Provider     string
	Model        string
	Err          error
	ErrorKind    ErrorKind
}

// StreamingResponse extends Response with stream-specific timings.
type StreamingResponse struct {
	Response
	Streamed     bool
	TTFBMs       int64
	FieldTimings map[string]int64
}

// FieldCallback is invoked exactly once per completed top-level JSON field,
// in model emission order.
type FieldCallback func(field string, value any)

// Provider is the uniform contract over one LLM vendor.
type Provider interface {
	// Complete performs a buffered text completion.
	Complete(ctx context.Context, prompt string, opts Options) *Response

	// CompleteWithImage performs a buffered vision completion.
	CompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string, opts Options) *Response

	// StreamComplete performs a streaming completion, invoking onField as
	// each top-level response field becomes complete.
	StreamComplete(ctx context.Context, prompt string, opts Options, onField FieldCallback) *StreamingResponse

	// StreamCompleteWithImage is the vision variant of StreamComplete.
	StreamCompleteWithImage(ctx context.Context, prompt string, image []byte, mimeType string, opts Options, onField FieldCallback) *StreamingResponse

	// SupportsCapability reports whether the current model advertises cap.
	SupportsCapability(cap Capability) bool

	Name() string
	Model() string
	SetModel(model string)

	// IsHealthy reports whether the adapter is usable (credentials present,
	// client constructed). It does not issue a network call.
	IsHealthy() bool
}
