package api

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/cellarist/sommelier/pkg/llm"
)

// sseStream writes one server-sent-event session. Events are written in the
// strict serial order they arrive; every session ends on a single done.
type sseStream struct {
	c        *gin.Context
	server   *Server
	endpoint string
}

// initSSE sets the event-stream headers and disables proxy buffering.
func (s *Server) initSSE(c *gin.Context, endpoint string) *sseStream {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeaderNow()
	return &sseStream{c: c, server: s, endpoint: endpoint}
}

// send writes one event and flushes it to the client immediately.
func (s *sseStream) send(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.server.logger.Error("Failed to marshal SSE payload",
			"event", event, "error", err)
		raw = []byte("{}")
	}
	fmt.Fprintf(s.c.Writer, "event: %s\ndata: %s\n\n", event, raw)
	s.c.Writer.Flush()
}

// sink adapts the stream to the services' event callbacks. Error events get
// a support ref attached and their message replaced with the client-facing
// sentence; everything else passes through verbatim.
func (s *sseStream) sink(event string, data any) {
	if event != "error" {
		s.send(event, data)
		return
	}

	payload, ok := data.(map[string]any)
	if !ok {
		payload = map[string]any{}
	}
	kind := llm.ErrKindUnknown
	if t, ok := payload["type"].(string); ok && t != "" {
		kind = llm.ErrorKind(t)
	}
	ref := supportRef(kind, s.endpoint)
	s.server.logger.ErrorContext(s.c.Request.Context(), "Stream failed",
		"endpoint", s.endpoint, "request_id", reqID(s.c), "error_kind", kind,
		"support_ref", ref, "detail", payload["message"])

	s.send("error", map[string]any{
		"type":        string(kind),
		"userMessage": userMessageFor(kind),
		"retryable":   kind.Retryable(),
		"supportRef":  ref,
	})
}
