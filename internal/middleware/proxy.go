// Package middleware implements the core's request-pipeline stages:
// proxy-aware header normalization, pluggable authentication, a CEL-based
// route-protection predicate, and response compression. Stages compose as
// plain httpserver.HandlerFunc wrappers, in the fixed order named in the
// core specification: normalize -> authenticate -> handler -> compress.
package middleware

import (
	"net"
	"strconv"
	"strings"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// TrustPolicy controls which peers' forwarding headers are honored, an
// allowlist model generalized from Origin checking to proxy-header trust.
type TrustPolicy int

const (
	// TrustNone ignores all forwarding headers; EffectiveIP is always the
	// raw socket peer.
	TrustNone TrustPolicy = iota
	// TrustAll honors forwarding headers from any peer. Only safe behind
	// a single, fully-trusted reverse proxy tier.
	TrustAll
	// TrustSpecificIPs honors forwarding headers only when the raw peer
	// address is in TrustedProxies.
	TrustSpecificIPs
)

// ProxyConfig configures NormalizeProxyHeaders.
type ProxyConfig struct {
	Policy         TrustPolicy
	TrustedProxies []string // CIDR or bare IP, only consulted under TrustSpecificIPs
}

func (c ProxyConfig) trusted(peerIP string) bool {
	switch c.Policy {
	case TrustAll:
		return true
	case TrustSpecificIPs:
		ip := net.ParseIP(peerIP)
		if ip == nil {
			return false
		}
		for _, entry := range c.TrustedProxies {
			if entry == peerIP {
				return true
			}
			if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(ip) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// NormalizeProxyHeaders derives EffectiveIP/EffectiveProto/EffectiveHost
// from the raw connection and, when the peer is trusted, the RFC 7239
// Forwarded header or the legacy X-Forwarded-* triplet. Only the first
// hop in a forwarding chain is trusted: only the first IP in
// X-Forwarded-For is honored.
func NormalizeProxyHeaders(cfg ProxyConfig) func(httpserver.HandlerFunc) httpserver.HandlerFunc {
	return func(next httpserver.HandlerFunc) httpserver.HandlerFunc {
		return func(ctx *httpserver.Context) *httpserver.Response {
			req := ctx.Request
			req.EffectiveIP = peerHost(req.PeerAddr.String())
			req.EffectiveProto = "http"
			if host, ok := req.Headers.Get("Host"); ok {
				req.EffectiveHost = host
			}

			if cfg.trusted(req.EffectiveIP) {
				if fwd, ok := req.Headers.Get("Forwarded"); ok {
					applyRFC7239(req, fwd)
				} else {
					applyLegacyForwarded(req)
				}
			}

			return next(ctx)
		}
	}
}

func peerHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func applyLegacyForwarded(req *httpserver.Request) {
	if xff, ok := req.Headers.Get("X-Forwarded-For"); ok {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			req.EffectiveIP = ip
		}
	}
	if proto, ok := req.Headers.Get("X-Forwarded-Proto"); ok && proto != "" {
		req.EffectiveProto = proto
	}
	if host, ok := req.Headers.Get("X-Forwarded-Host"); ok && host != "" {
		req.EffectiveHost = host
	}
}

// applyRFC7239 parses the first element of a Forwarded header, e.g.
// `for=192.0.2.60;proto=https;host=example.com`. Subsequent
// comma-separated elements (added by further proxy hops) are ignored,
// matching the first-hop-only trust rule.
func applyRFC7239(req *httpserver.Request, header string) {
	first := header
	if idx := strings.IndexByte(header, ','); idx >= 0 {
		first = header[:idx]
	}
	for _, pair := range strings.Split(first, ";") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "for":
			req.EffectiveIP = stripPort(val)
		case "proto":
			req.EffectiveProto = val
		case "host":
			req.EffectiveHost = val
		}
	}
}

func stripPort(forVal string) string {
	forVal = strings.TrimPrefix(forVal, "[")
	if idx := strings.LastIndexByte(forVal, ']'); idx >= 0 {
		return forVal[:idx]
	}
	if host, _, err := net.SplitHostPort(forVal); err == nil {
		return host
	}
	return forVal
}

// ParsePort is a small helper exposed for callers that need to reason
// about an EffectiveHost carrying an explicit port.
func ParsePort(hostport string) (host string, port int, ok bool) {
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 0, false
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return h, 0, false
	}
	return h, n, true
}
