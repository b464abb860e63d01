// Package httpserver implements the HTTP/1.1 protocol engine described in
// the core specification: strict request parsing, response assembly,
// keep-alive, chunked transfer, Server-Sent Events, and an exact-path
// router. Parse and Serialize operate on plain byte slices; Server drives
// them from the reactor package's event loop, and Request carries the
// reactor's peer Address.
package httpserver

import (
	"net/textproto"
	"strings"

	"github.com/sentinelcore/sentinelcore/internal/reactor"
)

// Limits bounds every parsed dimension of a request, per the core's
// strict HTTP/1.1 subset (spec §4.4/§6).
type Limits struct {
	MaxMethodLen     int
	MaxTargetLen     int
	MaxHeaderNameLen int
	MaxHeaderValLen  int
	MaxHeaderBlock   int
	MaxBodySize      int
	MaxQueryParams   int
	MaxQueryKeyLen   int
	MaxQueryValLen   int
}

// DefaultLimits matches the boundary values named in spec §4.4/§6/§8.
var DefaultLimits = Limits{
	MaxMethodLen:     16,
	MaxTargetLen:     8192,
	MaxHeaderNameLen: 256,
	MaxHeaderValLen:  8192,
	MaxHeaderBlock:   8192,
	MaxBodySize:      2 << 20, // 2 MiB
	MaxQueryParams:   100,
	MaxQueryKeyLen:   256,
	MaxQueryValLen:   4096,
}

// Header is a case-insensitive multimap with first-value semantics on
// read (Get returns the first occurrence), matching HTTP/1.1's
// case-insensitive header-name rule while keeping emission under each
// header's canonical casing.
type Header struct {
	values map[string][]headerEntry
}

type headerEntry struct {
	name  string // original casing, for round-tripping
	value string
}

// NewHeader creates an empty Header multimap.
func NewHeader() Header {
	return Header{values: make(map[string][]headerEntry)}
}

func canon(name string) string {
	return strings.ToLower(name)
}

// Add appends a value, preserving insertion order for repeated headers.
func (h *Header) Add(name, value string) {
	if h.values == nil {
		h.values = make(map[string][]headerEntry)
	}
	key := canon(name)
	h.values[key] = append(h.values[key], headerEntry{name: name, value: value})
}

// Set replaces all existing values for name with a single value.
func (h *Header) Set(name, value string) {
	if h.values == nil {
		h.values = make(map[string][]headerEntry)
	}
	h.values[canon(name)] = []headerEntry{{name: name, value: value}}
}

// Get returns the first value for name, and whether it was present.
func (h Header) Get(name string) (string, bool) {
	entries, ok := h.values[canon(name)]
	if !ok || len(entries) == 0 {
		return "", false
	}
	return entries[0].value, true
}

// Values returns all values for name in insertion order.
func (h Header) Values(name string) []string {
	entries := h.values[canon(name)]
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

// CanonicalName returns the canonical display casing for a header name,
// via textproto's MIME-header convention (e.g. "content-type" ->
// "Content-Type"), used when emitting response headers.
func CanonicalName(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

// Each calls fn once per stored header entry, grouped by name. Values of
// one name are visited in insertion order; the order of the names
// themselves is not defined.
func (h Header) Each(fn func(name, value string)) {
	for _, entries := range h.values {
		for _, e := range entries {
			fn(e.name, e.value)
		}
	}
}

// Query is an ordered map from key to value, capped at Limits.MaxQueryParams.
type Query struct {
	keys   []string
	values map[string]string
}

// Get returns the value for key, and whether it was present.
func (q Query) Get(key string) (string, bool) {
	v, ok := q.values[key]
	return v, ok
}

// Keys returns the query keys in the order they were first parsed.
func (q Query) Keys() []string {
	return q.keys
}

// Request is the immutable result of parsing one HTTP/1.1 request off a
// connection's read buffer.
type Request struct {
	Method     string
	URI        string // full request-target, including query
	Path       string
	Query      Query
	Version    string
	Headers    Header
	Body       []byte
	PeerAddr   reactor.Address

	// Derived, read-only attributes attached by the proxy-aware middleware.
	EffectiveIP    string
	EffectiveProto string
	EffectiveHost  string
	Principal      *Principal
}

// Principal identifies the authenticated caller, attached by the
// authentication middleware when a strategy succeeds.
type Principal struct {
	Name     string
	Strategy string
}
