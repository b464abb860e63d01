package middleware

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// MinCompressSize is the smallest fixed-body size worth compressing; below
// this the framing overhead outweighs the savings.
const MinCompressSize = 500

// DefaultCompressionLevel is used when a Registry is built with a level
// outside the valid [1,9] range.
const DefaultCompressionLevel = 6

// Codec compresses and decompresses a response body, satisfying
// decompress(compress(b, level)) == b for every level in [1,9]. Streaming/
// SSE responses are never compressed, since Content-Length is unknown up
// front and framing them through a compressor would require buffering the
// whole stream.
type Codec interface {
	Name() string
	Compress(body []byte, level int) ([]byte, error)
	Decompress(body []byte) ([]byte, error)
}

// clampLevel maps an out-of-range level to DefaultCompressionLevel; both
// gzip and flate accept 1-9 directly.
func clampLevel(level int) int {
	if level < 1 || level > 9 {
		return DefaultCompressionLevel
	}
	return level
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) Compress(body []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, clampLevel(level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(body []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type deflateCodec struct{}

func (deflateCodec) Name() string { return "deflate" }

func (deflateCodec) Compress(body []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, clampLevel(level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decompress(body []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	return io.ReadAll(r)
}

// Registry picks a codec for a response by negotiating against an
// Accept-Encoding header's q-values: highest quality wins, entries of
// equal quality are tried in header order, and "*" selects the first
// registered codec.
type Registry struct {
	codecs []Codec
	level  int

	// CompressibleTypes gates compression by Content-Type policy: a
	// response is only compressed when its Content-Type's media type (the
	// part before any ";" parameter) appears here. Defaults to the common
	// set of already-text/structured formats; already-compressed formats
	// (images, video, archives) are deliberately absent.
	CompressibleTypes map[string]bool
}

// NewRegistry builds a registry with gzip and deflate, the only two
// encodings negotiable without an external dependency, compressing at
// DefaultCompressionLevel.
func NewRegistry() *Registry {
	return NewRegistryWithLevel(DefaultCompressionLevel)
}

// NewRegistryWithLevel builds a registry compressing at the given level
// (a level outside [1,9] is replaced by DefaultCompressionLevel at
// compress time).
func NewRegistryWithLevel(level int) *Registry {
	return &Registry{
		codecs:            []Codec{gzipCodec{}, deflateCodec{}},
		level:             level,
		CompressibleTypes: DefaultCompressibleTypes(),
	}
}

// DefaultCompressibleTypes is the built-in Content-Type compression
// policy: text formats, JSON/XML, and other structured/plain-text bodies
// compress well; images, audio/video, and archives generally don't (and
// re-compressing an already-compressed format wastes CPU for no gain).
func DefaultCompressibleTypes() map[string]bool {
	return map[string]bool{
		"text/plain": true,
		"text/html": true,
		"text/css": true,
		"text/csv": true,
		"text/xml": true,
		"text/event-stream": true,
		"application/json": true,
		"application/xml": true,
		"application/javascript": true,
		"application/x-javascript": true,
		"application/x-www-form-urlencoded": true,
		"application/rss+xml": true,
		"application/atom+xml": true,
		"image/svg+xml": true,
	}
}

// compressibleContentType reports whether contentType's media type (the
// portion before any ";" parameter) is allowed to compress under policy.
// A response with no Content-Type at all is treated as compressible,
// since there's no signal to withhold compression on.
func compressibleContentType(policy map[string]bool, contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType := contentType
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return policy[mediaType]
}

type acceptEntry struct {
	name string
	q    float64
}

func parseAcceptEncoding(header string) []acceptEntry {
	var entries []acceptEntry
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		q := 1.0
		name := part
		if idx := strings.IndexByte(part, ';'); idx >= 0 {
			name = strings.TrimSpace(part[:idx])
			for _, param := range strings.Split(part[idx+1:], ";") {
				param = strings.TrimSpace(param)
				if v, ok := strings.CutPrefix(param, "q="); ok {
					if f, err := strconv.ParseFloat(v, 64); err == nil {
						q = f
					}
				}
			}
		}
		if q > 0 {
			entries = append(entries, acceptEntry{name: name, q: q})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].q > entries[j].q })
	return entries
}

func (r *Registry) negotiate(header string) Codec {
	if header == "" {
		return nil
	}
	for _, entry := range parseAcceptEncoding(header) {
		if entry.name == "*" {
			return r.codecs[0]
		}
		for _, c := range r.codecs {
			if c.Name() == entry.name {
				return c
			}
		}
	}
	return nil
}

// Compress builds a middleware stage run last in the chain: it compresses
// a fixed-body response when (a) the client's Accept-Encoding negotiates a
// known codec, (b) the body is at least MinCompressSize bytes, and (c) the
// response's Content-Type is compressible under reg's policy.
func Compress(reg *Registry) func(httpserver.HandlerFunc) httpserver.HandlerFunc {
	return func(next httpserver.HandlerFunc) httpserver.HandlerFunc {
		return func(ctx *httpserver.Context) *httpserver.Response {
			resp := next(ctx)
			if resp == nil || resp.Streaming || resp.SSE || len(resp.Body) < MinCompressSize {
				return resp
			}
			contentType, _ := resp.Headers.Get("Content-Type")
			if !compressibleContentType(reg.CompressibleTypes, contentType) {
				return resp
			}
			accept, _ := ctx.Request.Headers.Get("Accept-Encoding")
			codec := reg.negotiate(accept)
			if codec == nil {
				return resp
			}
			compressed, err := codec.Compress(resp.Body, reg.level)
			if err != nil || len(compressed) >= len(resp.Body) {
				return resp
			}
			resp.Body = compressed
			resp.Headers.Set("Content-Encoding", codec.Name())
			resp.Headers.Set("Vary", "Accept-Encoding")
			return resp
		}
	}
}
