package httpserver

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerialize_FixedBodyContentLength(t *testing.T) {
	body := []byte("hello world")
	resp := NewResponse(200, body)
	out := Serialize(resp, "HTTP/1.1")
	require.Contains(t, string(out), "Content-Length: "+strconv.Itoa(len(body)))
	require.True(t, strings.HasSuffix(string(out), string(body)))
}

func TestChunkFrame_RoundTrip(t *testing.T) {
	chunks := [][]byte{[]byte("one"), []byte("two"), {}}
	var wire []byte
	for _, c := range chunks {
		wire = append(wire, ChunkFrame(c)...)
	}

	decoded, consumed, err := decodeChunked(wire, 1<<20)
	require.NoError(t, err)
	require.Equal(t, "onetwo", string(decoded))
	require.Equal(t, len(wire), consumed)
}

func TestFormatSSEEvent_MultilineData(t *testing.T) {
	out := FormatSSEEvent(SSEEvent{ID: "1", Event: "message", Data: "line one\nline two"})
	s := string(out)
	require.Contains(t, s, "id: 1\n")
	require.Contains(t, s, "event: message\n")
	require.Contains(t, s, "data: line one\n")
	require.Contains(t, s, "data: line two\n")
	require.True(t, strings.HasSuffix(s, "\n\n"))
}

func TestRouter_ExactPathAndAutoOptions(t *testing.T) {
	r := NewRouter()
	r.Handle("GET", "/a", func(ctx *Context) *Response { return NewResponse(200, []byte("a")) })
	r.Handle("POST", "/a", func(ctx *Context) *Response { return NewResponse(200, []byte("a-post")) })

	ctx := &Context{Request: &Request{Method: "OPTIONS", Path: "/a"}}
	resp := r.Dispatch(ctx)
	require.Equal(t, 204, resp.Status)
	allow, _ := resp.Headers.Get("Allow")
	require.Contains(t, allow, "GET")
	require.Contains(t, allow, "POST")

	ctx2 := &Context{Request: &Request{Method: "DELETE", Path: "/a"}}
	resp2 := r.Dispatch(ctx2)
	require.Equal(t, 405, resp2.Status)

	ctx3 := &Context{Request: &Request{Method: "GET", Path: "/missing"}}
	resp3 := r.Dispatch(ctx3)
	require.Equal(t, 404, resp3.Status)
}
