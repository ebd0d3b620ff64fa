package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEParserSingleEvent(t *testing.T) {
	p := &SSEParser{}
	payloads := p.Feed([]byte("data: {\"a\":1}\n\n"))
	require.Len(t, payloads, 1)
	assert.Equal(t, `{"a":1}`, payloads[0])
}

func TestSSEParserMultiLineData(t *testing.T) {
	p := &SSEParser{}
	payloads := p.Feed([]byte("event: delta\ndata: {\"a\":\ndata: 1}\n\n"))
	require.Len(t, payloads, 1)
	assert.Equal(t, "{\"a\":\n1}", payloads[0])
}

func TestSSEParserSkipsNonJSONData(t *testing.T) {
	p := &SSEParser{}
	payloads := p.Feed([]byte("data: [DONE]\n\ndata: {\"b\":2}\n\n"))
	require.Len(t, payloads, 1)
	assert.Equal(t, `{"b":2}`, payloads[0])
}

func TestSSEParserCRLFFraming(t *testing.T) {
	p := &SSEParser{}
	payloads := p.Feed([]byte("data: {\"a\":1}\r\n\r\ndata: {\"b\":2}\r\n\r\n"))
	require.Len(t, payloads, 2)
	assert.Equal(t, `{"a":1}`, payloads[0])
	assert.Equal(t, `{"b":2}`, payloads[1])
}

func TestSSEParserCommentsIgnored(t *testing.T) {
	p := &SSEParser{}
	payloads := p.Feed([]byte(": keepalive\n\ndata: {\"x\":true}\n\n"))
	require.Len(t, payloads, 1)
}

func TestSSEParserFlushRecoversTrailingEvent(t *testing.T) {
	p := &SSEParser{}
	require.Empty(t, p.Feed([]byte("data: {\"tail\":1}")))
	payload, ok := p.Flush()
	require.True(t, ok)
	assert.Equal(t, `{"tail":1}`, payload)

	// Flush on an empty buffer yields nothing.
	_, ok = p.Flush()
	assert.False(t, ok)
}

// Byte-at-a-time delivery must produce the same payload sequence as one call.
func TestSSEParserChunkingInvariance(t *testing.T) {
	stream := "event: a\ndata: {\"one\":1}\n\n" +
		": comment\n\n" +
		"data: not json\n\n" +
		"data: {\"two\":\ndata: [2,3]}\r\n\r\n" +
		"data: {\"three\":3}\n\n"

	whole := &SSEParser{}
	want := whole.Feed([]byte(stream))

	byteWise := &SSEParser{}
	var got []string
	for i := 0; i < len(stream); i++ {
		got = append(got, byteWise.Feed([]byte{stream[i]})...)
	}
	assert.Equal(t, want, got)
}
