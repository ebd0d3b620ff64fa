package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/models"
)

func TestIdentifyTextReturnsResult(t *testing.T) {
	f := newFixture()
	f.identify.result = &models.Identification{
		Producer: "Penfolds", WineName: "Grange", Confidence: 92,
		Action: models.ActionAutoPopulate,
	}

	w := f.do(http.MethodPost, "/api/v1/identify/text",
		IdentifyTextRequest{Text: "Penfolds Grange 2016"},
		map[string]string{headerUserID: "u-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Identification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Penfolds", got.Producer)
	assert.Equal(t, models.InputTypeText, f.identify.lastInput.Type)
	assert.Equal(t, "u-1", f.identify.lastInput.UserID)
}

func TestIdentifyTextMissingBodyIs400(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/v1/identify/text", map[string]string{}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(llm.ErrKindInvalidRequest), resp.Error.Type)
}

func TestIdentifyTextTimeoutMapsTo408(t *testing.T) {
	f := newFixture()
	f.identify.err = llm.NewError(llm.ErrKindTimeout, "deadline exceeded", nil)

	w := f.do(http.MethodPost, "/api/v1/identify/text",
		IdentifyTextRequest{Text: "something"}, nil)
	require.Equal(t, http.StatusRequestTimeout, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(llm.ErrKindTimeout), resp.Error.Type)
	assert.True(t, resp.Error.Retryable)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}$`), resp.Error.SupportRef)
	// Internal detail never reaches the client.
	assert.NotContains(t, resp.Message, "deadline exceeded")
}

func TestIdentifyImageRejectsBadBase64(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/v1/identify/image",
		IdentifyImageRequest{Image: "not-base64!!!", MimeType: "image/jpeg"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdentifyImageDecodesPayload(t *testing.T) {
	f := newFixture()
	f.identify.result = &models.Identification{Confidence: 40}

	img := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	w := f.do(http.MethodPost, "/api/v1/identify/image",
		IdentifyImageRequest{Image: img, MimeType: "image/jpeg", SupplementaryText: "back label"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, models.InputTypeImage, f.identify.lastInput.Type)
	assert.Equal(t, []byte("jpeg-bytes"), f.identify.lastInput.Image)
	assert.Equal(t, "image/jpeg", f.identify.lastInput.MimeType)
	assert.Equal(t, "back label", f.identify.lastInput.SupplementaryText)
}

func TestIdentifyTextStreamEmitsSSE(t *testing.T) {
	f := newFixture()
	f.identify.events = [][2]any{
		{"field", map[string]any{"field": "producer", "value": "Penfolds"}},
		{"result", map[string]any{"confidence": 90}},
		{"done", map[string]any{}},
	}

	w := f.do(http.MethodPost, "/api/v1/identify/text/stream",
		IdentifyTextRequest{Text: "Penfolds Grange"},
		map[string]string{headerRequestID: "req-9"})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	body := w.Body.String()
	assert.Contains(t, body, "event: field\ndata: {\"field\":\"producer\",\"value\":\"Penfolds\"}\n\n")
	assert.Contains(t, body, "event: result\n")
	assert.Contains(t, body, "event: done\n")

	// The stream scope watched the client-provided request ID.
	assert.Equal(t, []string{"req-9"}, f.canceller.watched)
}

func TestStreamErrorEventGetsSupportRef(t *testing.T) {
	f := newFixture()
	f.identify.events = [][2]any{
		{"error", map[string]any{"type": "overloaded", "message": "anthropic 529", "retryable": true}},
		{"done", map[string]any{}},
	}

	w := f.do(http.MethodPost, "/api/v1/identify/text/stream",
		IdentifyTextRequest{Text: "x"}, nil)
	body := w.Body.String()

	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `"supportRef"`)
	assert.Contains(t, body, `"userMessage"`)
	// The raw provider detail stays in the logs.
	assert.NotContains(t, body, "anthropic 529")
}

func TestIdentifyWithOpusRequiresInput(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/v1/identify/opus",
		IdentifyWithOpusRequest{PriorResult: &models.Identification{Confidence: 60}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.identify.opusCalls)
}

func TestIdentifyWithOpusTextPath(t *testing.T) {
	f := newFixture()
	f.identify.result = &models.Identification{Confidence: 88}

	w := f.do(http.MethodPost, "/api/v1/identify/opus", IdentifyWithOpusRequest{
		Text:        "Vega Sicilia Unico",
		PriorResult: &models.Identification{Confidence: 55},
		LockedFields: map[string]string{
			"producer": "Vega Sicilia",
		},
		EscalationContext: "Country must be: Spain",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.identify.opusCalls)
	assert.Equal(t, models.InputTypeText, f.identify.lastInput.Type)
}

func TestClarifyMatchValidation(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/clarify-match",
		ClarifyMatchRequest{Type: "color", Identified: "x", Options: []string{"a"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/clarify-match",
		ClarifyMatchRequest{Type: "region", Identified: "x", Options: []string{}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "at least one option required", resp.Message)
}

func TestClarifyMatchReturnsMatch(t *testing.T) {
	f := newFixture()
	f.identify.match = "Margaux"
	f.identify.matchConf = 95

	w := f.do(http.MethodPost, "/api/v1/clarify-match",
		ClarifyMatchRequest{Type: "region", Identified: "Margaux", Options: []string{"Margaux", "Pauillac"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Margaux", resp["match"])
	assert.Equal(t, float64(95), resp["confidence"])
}

func TestClarifyMatchNoMatchIsNull(t *testing.T) {
	f := newFixture()
	f.identify.match = ""
	f.identify.matchConf = 10

	w := f.do(http.MethodPost, "/api/v1/clarify-match",
		ClarifyMatchRequest{Type: "wine", Identified: "x", Options: []string{"a", "b"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp["match"])
}
