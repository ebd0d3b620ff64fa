package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// FieldDetector accumulates model-emitted text and identifies when each
// top-level JSON field has been fully received, invoking the callback exactly
// once per field in emission order. Malformed input never panics; the
// detector simply stops emitting and preserves what was delivered.
type FieldDetector struct {
	onField FieldCallback

	buf strings.Builder

	pos     int
	phase   detectPhase
	failed  bool
	fields  []string
	emitted map[string]bool

	key        string
	keyStart   int
	valueStart int
}

type detectPhase int

const (
	phaseSeekObject detectPhase = iota
	phaseSeekKey
	phaseInKey
	phaseSeekColon
	phaseSeekValue
	phaseInValue
	phaseAfterValue
	phaseDone
)

// NewFieldDetector creates a detector. onField may be nil, in which case the
// detector only tracks completion order (useful for buffered calls).
func NewFieldDetector(onField FieldCallback) *FieldDetector {
	return &FieldDetector{
		onField: onField,
		emitted: make(map[string]bool),
	}
}

// Feed appends a chunk of model text and emits any fields it completes.
func (d *FieldDetector) Feed(text string) {
	d.buf.WriteString(text)
	if d.failed || d.phase == phaseDone {
		return
	}
	d.scan(false)
}

// Finish flushes a trailing unterminated value (a bare number at stream end
// counts as complete per the grammar). Call once when the stream ends.
func (d *FieldDetector) Finish() {
	if d.failed || d.phase == phaseDone {
		return
	}
	d.scan(true)
}

// Fields returns the names emitted so far, in emission order.
func (d *FieldDetector) Fields() []string { return d.fields }

// Buffer returns the full accumulated model text.
func (d *FieldDetector) Buffer() string { return d.buf.String() }

// TryParseComplete parses the entire accumulated buffer as a single JSON
// document. Markdown code fences are stripped and near-valid JSON is
// repaired before giving up; on success the result is the canonical final
// payload.
func (d *FieldDetector) TryParseComplete() (map[string]any, bool) {
	raw := stripFences(d.buf.String())
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, true
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, false
	}
	return out, true
}

// scan advances the state machine over any newly buffered text. atEOF allows
// a trailing number or literal to terminate at buffer end.
func (d *FieldDetector) scan(atEOF bool) {
	s := d.buf.String()
	for d.pos < len(s) {
		c := s[d.pos]
		switch d.phase {
		case phaseSeekObject:
			if c == '{' {
				d.phase = phaseSeekKey
			}
			d.pos++
		case phaseSeekKey:
			switch {
			case isSpace(c) || c == ',':
				d.pos++
			case c == '"':
				d.keyStart = d.pos
				d.phase = phaseInKey
				d.pos++
			case c == '}':
				d.phase = phaseDone
				return
			default:
				d.failed = true
				return
			}
		case phaseInKey:
			end, ok := scanString(s, d.keyStart)
			if !ok {
				return // key not complete yet
			}
			var key string
			if err := json.Unmarshal([]byte(s[d.keyStart:end]), &key); err != nil {
				d.failed = true
				return
			}
			d.key = key
			d.pos = end
			d.phase = phaseSeekColon
		case phaseSeekColon:
			switch {
			case isSpace(c):
				d.pos++
			case c == ':':
				d.pos++
				d.phase = phaseSeekValue
			default:
				d.failed = true
				return
			}
		case phaseSeekValue:
			if isSpace(c) {
				d.pos++
				continue
			}
			d.valueStart = d.pos
			d.phase = phaseInValue
		case phaseInValue:
			end, ok := scanValue(s, d.valueStart, atEOF)
			if !ok {
				return // value not complete yet
			}
			d.complete(s[d.valueStart:end])
			d.pos = end
			d.phase = phaseAfterValue
		case phaseAfterValue:
			switch {
			case isSpace(c) || c == ',':
				d.pos++
				d.phase = phaseSeekKey
			case c == '}':
				d.phase = phaseDone
				return
			default:
				d.failed = true
				return
			}
		case phaseDone:
			return
		}
	}
	// Buffer exhausted mid-value: at EOF a pending number/literal terminates.
	if atEOF && d.phase == phaseInValue {
		if end, ok := scanValue(s, d.valueStart, true); ok {
			d.complete(s[d.valueStart:end])
			d.pos = end
			d.phase = phaseDone
		}
	}
}

// complete decodes one finished value and fires the callback once.
func (d *FieldDetector) complete(raw string) {
	if d.emitted[d.key] {
		return
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		// A balanced but invalid value; keep scanning, skip the emit.
		return
	}
	d.emitted[d.key] = true
	d.fields = append(d.fields, d.key)
	if d.onField != nil {
		d.onField(d.key, value)
	}
}

// scanString returns the index just past the closing quote of the string
// starting at start, or ok=false if the string is not complete yet.
func scanString(s string, start int) (int, bool) {
	escaped := false
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			return i + 1, true
		}
	}
	return 0, false
}

// scanValue returns the index just past the value starting at start.
// Strings end at their unescaped closing quote; arrays and objects when
// bracket depth returns to zero; numbers and literals at a terminator
// (comma, brace, bracket, whitespace) or, with atEOF, at buffer end.
func scanValue(s string, start int, atEOF bool) (int, bool) {
	switch s[start] {
	case '"':
		return scanString(s, start)
	case '{', '[':
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					return i + 1, true
				}
			}
		}
		return 0, false
	default:
		// Number or literal (true/false/null).
		for i := start; i < len(s); i++ {
			c := s[i]
			if c == ',' || c == '}' || c == ']' || isSpace(c) {
				return i, true
			}
		}
		if atEOF {
			return len(s), true
		}
		return 0, false
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
