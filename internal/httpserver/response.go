package httpserver

import (
	"fmt"
	"strconv"
)

// StreamProducer yields successive body chunks; an empty (nil/zero-length)
// chunk signals end of stream.
type StreamProducer func() ([]byte, error)

// Response is a handler-owned description of the bytes to send back.
// Ownership moves to the protocol engine once the handler returns.
type Response struct {
	Status     int
	StatusText string
	Headers    Header

	Body           []byte
	Stream         StreamProducer
	Streaming      bool
	SSE            bool
	Trailers       Header
	HasTrailers    bool
}

// NewResponse builds a fixed-body response.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, StatusText: StatusText(status), Headers: NewHeader(), Body: body}
}

// NewStreamingResponse builds a chunked streaming response.
func NewStreamingResponse(status int, producer StreamProducer) *Response {
	return &Response{Status: status, StatusText: StatusText(status), Headers: NewHeader(), Stream: producer, Streaming: true}
}

var statusText = map[int]string{
	200: "OK",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	414: "URI Too Long",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	503: "Service Unavailable",
}

// StatusText returns the canonical reason phrase for status, or "Unknown"
// if unrecognized.
func StatusText(status int) string {
	if t, ok := statusText[status]; ok {
		return t
	}
	return "Unknown"
}

// Serialize assembles the full on-wire response: status line, headers,
// and (for a fixed body) the body bytes. Streaming/SSE bodies are framed
// separately via ChunkFrame/FinalChunk/FormatSSEEvent as the producer
// yields chunks, since they may outlive a single write.
func Serialize(resp *Response, version string) []byte {
	var out []byte
	out = append(out, fmt.Sprintf("%s %d %s\r\n", version, resp.Status, resp.StatusText)...)

	switch {
	case resp.Streaming || resp.SSE:
		resp.Headers.Set("Transfer-Encoding", "chunked")
		if resp.SSE {
			resp.Headers.Set("Content-Type", "text/event-stream")
			resp.Headers.Set("Cache-Control", "no-cache")
		}
		resp.Headers.Set("Connection", "keep-alive")
	default:
		resp.Headers.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}

	resp.Headers.Each(func(name, value string) {
		out = append(out, CanonicalName(name)...)
		out = append(out, ':', ' ')
		out = append(out, value...)
		out = append(out, '\r', '\n')
	})
	out = append(out, '\r', '\n')

	if !resp.Streaming && !resp.SSE {
		out = append(out, resp.Body...)
	}
	return out
}

// ChunkFrame frames one chunk as "HEX-LEN\r\nbytes\r\n", per spec §4.4.
func ChunkFrame(chunk []byte) []byte {
	if len(chunk) == 0 {
		return FinalChunk(nil)
	}
	out := []byte(strconv.FormatInt(int64(len(chunk)), 16))
	out = append(out, '\r', '\n')
	out = append(out, chunk...)
	out = append(out, '\r', '\n')
	return out
}

// FinalChunk frames the terminating zero-size chunk, optionally with
// trailers.
func FinalChunk(trailers Header) []byte {
	out := []byte("0\r\n")
	trailers.Each(func(name, value string) {
		out = append(out, CanonicalName(name)...)
		out = append(out, ':', ' ')
		out = append(out, value...)
		out = append(out, '\r', '\n')
	})
	out = append(out, '\r', '\n')
	return out
}

// SSEEvent is one Server-Sent Event to frame per spec §4.4/§6.
type SSEEvent struct {
	ID    string
	Event string
	Retry int // milliseconds; 0 means omit
	Data  string
}

// FormatSSEEvent serializes an event per the text/event-stream grammar:
// zero or more of id:/event:/retry:, then one data: line per line of
// Data, terminated by a blank line. The caller frames the result as a
// chunk via ChunkFrame.
func FormatSSEEvent(e SSEEvent) []byte {
	var out []byte
	if e.ID != "" {
		out = append(out, "id: "...)
		out = append(out, e.ID...)
		out = append(out, '\n')
	}
	if e.Event != "" {
		out = append(out, "event: "...)
		out = append(out, e.Event...)
		out = append(out, '\n')
	}
	if e.Retry > 0 {
		out = append(out, "retry: "...)
		out = append(out, strconv.Itoa(e.Retry)...)
		out = append(out, '\n')
	}
	lines := splitLines(e.Data)
	for _, line := range lines {
		out = append(out, "data: "...)
		out = append(out, line...)
		out = append(out, '\n')
	}
	out = append(out, '\n')
	return out
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
