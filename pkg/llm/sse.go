package llm

import (
	"bytes"
	"strings"
)

// SSEParser incrementally decodes a Server-Sent-Events byte stream into the
// JSON payloads carried on its data lines. Feed accepts arbitrary chunk
// boundaries; incomplete trailing data is buffered until the next chunk.
// Non-JSON data lines (for example "[DONE]" sentinels) are skipped.
type SSEParser struct {
	buf bytes.Buffer
}

// Feed consumes one chunk of response-body bytes and returns the raw JSON
// payloads of every event completed by this chunk, in order.
func (p *SSEParser) Feed(chunk []byte) []string {
	p.buf.Write(chunk)

	var payloads []string
	for {
		raw := p.buf.Bytes()
		idx, sepLen := findEventBoundary(raw)
		if idx < 0 {
			return payloads
		}
		event := string(raw[:idx])
		p.buf.Next(idx + sepLen)
		if data, ok := extractData(event); ok {
			payloads = append(payloads, data)
		}
	}
}

// Flush recovers a trailing event that was never terminated by a blank line.
// Must be called at stream end.
func (p *SSEParser) Flush() (string, bool) {
	event := p.buf.String()
	p.buf.Reset()
	if strings.TrimSpace(event) == "" {
		return "", false
	}
	return extractData(event)
}

// findEventBoundary locates the first double-newline event separator,
// tolerating both \n\n and \r\n\r\n framing.
func findEventBoundary(raw []byte) (idx, sepLen int) {
	lf := bytes.Index(raw, []byte("\n\n"))
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	switch {
	case lf < 0 && crlf < 0:
		return -1, 0
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	default:
		return lf, 2
	}
}

// extractData concatenates the data: lines of one event and reports whether
// the result looks like a JSON payload.
func extractData(event string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(event, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			parts = append(parts, strings.TrimPrefix(rest, " "))
		}
	}
	data := strings.Join(parts, "\n")
	trimmed := strings.TrimSpace(data)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return "", false
	}
	return data, true
}
