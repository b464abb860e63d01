package httpserver

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildRequest(target string, headers map[string]string, body string) []byte {
	var sb strings.Builder
	sb.WriteString("GET " + target + " HTTP/1.1\r\n")
	for k, v := range headers {
		sb.WriteString(k + ": " + v + "\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

func TestParse_RequestTargetBoundary(t *testing.T) {
	// Exactly 8192 bytes is accepted; 8193 yields 414.
	target := "/" + strings.Repeat("a", 8191)
	require.Equal(t, 8192, len(target))
	buf := buildRequest(target, map[string]string{"Host": "x"}, "")
	res, err := Parse(buf, DefaultLimits)
	require.NoError(t, err)
	require.Equal(t, target, res.Request.URI)

	tooLong := "/" + strings.Repeat("a", 8192)
	buf2 := buildRequest(tooLong, map[string]string{"Host": "x"}, "")
	_, err2 := Parse(buf2, DefaultLimits)
	require.Error(t, err2)
	var statusErr *StatusError
	require.ErrorAs(t, err2, &statusErr)
	require.Equal(t, 414, statusErr.Status)
}

func TestParse_BodySizeBoundary(t *testing.T) {
	body := strings.Repeat("x", DefaultLimits.MaxBodySize)
	buf := buildRequest("/echo", map[string]string{
		"Host":           "x",
		"Content-Length": strconv.Itoa(len(body)),
	}, body)
	res, err := Parse(buf, DefaultLimits)
	require.NoError(t, err)
	require.Len(t, res.Request.Body, DefaultLimits.MaxBodySize)

	tooBig := strings.Repeat("x", DefaultLimits.MaxBodySize+1)
	buf2 := buildRequest("/echo", map[string]string{
		"Host":           "x",
		"Content-Length": strconv.Itoa(len(tooBig)),
	}, tooBig)
	_, err2 := Parse(buf2, DefaultLimits)
	var statusErr *StatusError
	require.ErrorAs(t, err2, &statusErr)
	require.Equal(t, 413, statusErr.Status)
}

func TestParse_QueryParamCountBoundary(t *testing.T) {
	var pairs []string
	for i := 0; i < 100; i++ {
		pairs = append(pairs, "k"+strconv.Itoa(i)+"=v")
	}
	target := "/search?" + strings.Join(pairs, "&")
	buf := buildRequest(target, map[string]string{"Host": "x"}, "")
	res, err := Parse(buf, DefaultLimits)
	require.NoError(t, err)
	require.Len(t, res.Request.Query.Keys(), 100)

	pairs = append(pairs, "k100=v")
	target2 := "/search?" + strings.Join(pairs, "&")
	buf2 := buildRequest(target2, map[string]string{"Host": "x"}, "")
	res2, err2 := Parse(buf2, DefaultLimits)
	require.NoError(t, err2)
	// 101st parameter is dropped silently per the recorded open-question decision.
	require.Len(t, res2.Request.Query.Keys(), 100)
	if _, ok := res2.Request.Query.Get("k100"); ok {
		t.Fatalf("101st query param should have been dropped")
	}
}

func TestParse_ConflictingLengthIndicators(t *testing.T) {
	buf := buildRequest("/echo", map[string]string{
		"Host":              "x",
		"Content-Length":    "5",
		"Transfer-Encoding": "chunked",
	}, "")
	_, err := Parse(buf, DefaultLimits)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 400, statusErr.Status)
}

func TestParse_ChunkedBody(t *testing.T) {
	raw := "POST /echo HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	res, err := Parse([]byte(raw), DefaultLimits)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(res.Request.Body))
}

func TestParse_Incomplete(t *testing.T) {
	_, err := Parse([]byte("GET /a HTTP/1.1\r\nHost: x"), DefaultLimits)
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestParse_QueryDecoding(t *testing.T) {
	res, err := Parse(buildRequest("/s?q=hello+world&x=%2Fpath", map[string]string{"Host": "x"}, ""), DefaultLimits)
	require.NoError(t, err)
	v, ok := res.Request.Query.Get("q")
	require.True(t, ok)
	require.Equal(t, "hello world", v)
	v2, ok := res.Request.Query.Get("x")
	require.True(t, ok)
	require.Equal(t, "/path", v2)
}
