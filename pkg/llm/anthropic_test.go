package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func testAdapterConfig(baseURL string) AdapterConfig {
	return AdapterConfig{
		Name:    "anthropic",
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "claude-sonnet-4-5",
		ModelCaps: map[string][]Capability{
			"claude-sonnet-4-5": {CapabilityVision, CapabilityTools, CapabilityStreaming},
			"claude-opus-4-6":   {CapabilityVision, CapabilityTools, CapabilityStreaming, CapabilityThinking},
		},
		SiblingModels: map[string]string{"claude-opus-4-6": "claude-sonnet-4-5"},
	}
}

func TestSelectPayloadPart(t *testing.T) {
	assert.Equal(t, `{"a":1}`, selectPayloadPart([]string{"thinking about it", `{"a":1}`, "post"}))
	assert.Equal(t, ` [1,2]`, selectPayloadPart([]string{"prose", ` [1,2]`}))
	assert.Equal(t, "plain answer", selectPayloadPart([]string{"", "plain answer"}))
	assert.Equal(t, "", selectPayloadPart(nil))
}

func TestAnthropicBuildRequestThinkingDroppedForNonThinkingModel(t *testing.T) {
	p, err := NewAnthropicProvider(testAdapterConfig("http://unused"))
	require.NoError(t, err)

	req := p.buildRequest("hi", nil, "", false, Options{ThinkingLevel: ThinkingHigh})
	assert.Nil(t, req.Thinking, "non-thinking model silently drops the option")

	req = p.buildRequest("hi", nil, "", false, Options{ThinkingLevel: ThinkingHigh, Model: "claude-opus-4-6"})
	require.NotNil(t, req.Thinking)
	assert.Equal(t, thinkingBudgets[ThinkingHigh], req.Thinking.BudgetTokens)
}

func TestAnthropicBuildRequestImageBlocks(t *testing.T) {
	p, err := NewAnthropicProvider(testAdapterConfig("http://unused"))
	require.NoError(t, err)

	req := p.buildRequest("read this label", []byte{0xFF, 0xD8}, "image/jpeg", false, Options{})
	blocks, ok := req.Messages[0].Content.([]map[string]any)
	require.True(t, ok)
	require.Len(t, blocks, 2)
	assert.Equal(t, "image", blocks[0]["type"])
	assert.Equal(t, "text", blocks[1]["type"])
}

func TestAnthropicCompleteParsesPartsAndCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NotContains(t, r.URL.String(), "test-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type":"thinking","text":"let me look at the label"},
				{"type":"text","text":"{\"producer\":\"Penfolds\",\"confidence\":90}"}
			],
			"model": "claude-sonnet-4-5",
			"usage": {"input_tokens": 1000, "output_tokens": 200}
		}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(testAdapterConfig(srv.URL))
	require.NoError(t, err)

	resp := p.Complete(context.Background(), "identify", Options{})
	require.True(t, resp.Success)
	assert.JSONEq(t, `{"producer":"Penfolds","confidence":90}`, resp.Content)
	assert.Equal(t, 1000, resp.InputTokens)
	assert.Equal(t, 200, resp.OutputTokens)
	assert.InDelta(t, CostUSD("claude-sonnet-4-5", 1000, 200), resp.CostUSD, 1e-12)
}

func TestAnthropicCompleteClassifiesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(testAdapterConfig(srv.URL))
	require.NoError(t, err)

	resp := p.Complete(context.Background(), "identify", Options{})
	require.False(t, resp.Success)
	assert.Equal(t, ErrKindRateLimit, resp.ErrorKind)
}

func TestAnthropicSiblingFallbackOn503(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string `json:"model"`
			Thinking *struct {
				Type string `json:"type"`
			} `json:"thinking"`
		}
		require.NoError(t, decodeJSONBody(r, &body))
		models = append(models, body.Model)
		if body.Model == "claude-opus-4-6" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Nil(t, body.Thinking, "sibling without thinking capability drops the option")
		_, _ = w.Write([]byte(`{
			"content": [{"type":"text","text":"{\"ok\":true}"}],
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	cfg := testAdapterConfig(srv.URL)
	cfg.Model = "claude-opus-4-6"
	p, err := NewAnthropicProvider(cfg)
	require.NoError(t, err)

	resp := p.Complete(context.Background(), "identify", Options{ThinkingLevel: ThinkingHigh})
	require.True(t, resp.Success)
	assert.Equal(t, []string{"claude-opus-4-6", "claude-sonnet-4-5"}, models)
	assert.Equal(t, "claude-sonnet-4-5", resp.Model)
}

func TestAnthropicStreamCompleteEmitsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		write := func(s string) {
			_, _ = w.Write([]byte(s))
			flusher.Flush()
		}
		write("event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":50,\"output_tokens\":0}}}\n\n")
		write("data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"{\\\"producer\\\":\\\"Cloudy\"}}\n\n")
		write("data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\" Bay\\\",\\\"confidence\\\":72}\"}}\n\n")
		write("data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":20}}\n\n")
		write("data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(testAdapterConfig(srv.URL))
	require.NoError(t, err)

	var fields []string
	resp := p.StreamComplete(context.Background(), "identify", Options{}, func(name string, value any) {
		fields = append(fields, name)
	})
	require.True(t, resp.Success)
	assert.True(t, resp.Streamed)
	assert.Equal(t, []string{"producer", "confidence"}, fields)
	assert.Equal(t, 50, resp.InputTokens)
	assert.Equal(t, 20, resp.OutputTokens)
	assert.Greater(t, resp.TTFBMs, int64(-1))
	assert.Contains(t, resp.FieldTimings, "producer")
	assert.JSONEq(t, `{"producer":"Cloudy Bay","confidence":72}`, resp.Content)
}

func TestAnthropicStreamCancelKeepsPartialFields(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"{\\\"producer\\\":\\\"Penfolds\\\",\"}}\n\n"))
		flusher.Flush()
		<-release // hold the stream open until the client cancels
	}))
	defer srv.Close()
	defer close(release)

	p, err := NewAnthropicProvider(testAdapterConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var fields []string
	done := make(chan *StreamingResponse, 1)
	go func() {
		done <- p.StreamComplete(ctx, "identify", Options{}, func(name string, _ any) {
			fields = append(fields, name)
			cancel() // cancel as soon as the first field lands
		})
	}()

	resp := <-done
	require.True(t, resp.Success, "cancel mid-stream is not an error")
	assert.Equal(t, []string{"producer"}, fields)
	assert.Contains(t, resp.Content, "Penfolds")
}
