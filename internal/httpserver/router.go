package httpserver

import (
	"sort"
	"strings"
)

// HandlerFunc handles one parsed request and produces a response.
type HandlerFunc func(ctx *Context) *Response

// Route is an exact-path, method-masked dispatch entry. There is no path
// parameter syntax in the core; external wrappers may impose one.
type Route struct {
	Method     string // "*" matches any method
	Path       string
	Handler    HandlerFunc
	Protected  bool
	CELExpr    string // optional; generalizes Protected, see SPEC_FULL §4
	inserted   int
}

// Router maps (method, path) to a handler via an exact-path map.
type Router struct {
	routes   map[string][]*Route // keyed by path
	sequence int
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string][]*Route)}
}

// Handle registers a route. Ties between routes registered for the same
// (method, path) are broken by insertion order: the first still wins a
// Find for an exact method match, but a later wildcard never shadows an
// earlier exact match.
func (r *Router) Handle(method, path string, handler HandlerFunc) *Route {
	route := &Route{Method: method, Path: path, Handler: handler, inserted: r.sequence}
	r.sequence++
	r.routes[path] = append(r.routes[path], route)
	return route
}

// Find resolves (method, path). pathKnown is false on no path match
// (caller emits 404); when a path is known but method is not, pathKnown is
// true with a nil route and allowed lists the registered methods for
// Allow/OPTIONS.
func (r *Router) Find(method, path string) (route *Route, pathKnown bool, allowed []string) {
	candidates, ok := r.routes[path]
	if !ok {
		return nil, false, nil
	}
	pathKnown = true

	var best *Route
	seen := map[string]struct{}{}
	for _, c := range candidates {
		if c.Method != "*" {
			seen[c.Method] = struct{}{}
		}
		if c.Method == method && (best == nil || c.inserted < best.inserted) {
			best = c
		}
	}
	if best == nil {
		for _, c := range candidates {
			if c.Method == "*" && (best == nil || c.inserted < best.inserted) {
				best = c
			}
		}
	}
	if best != nil {
		return best, true, nil
	}

	allowed = make([]string, 0, len(seen))
	for m := range seen {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	return nil, true, allowed
}

// AllowHeader formats an Allow header value from a method list, adding
// OPTIONS since the router answers it automatically.
func AllowHeader(methods []string) string {
	set := map[string]struct{}{"OPTIONS": {}}
	for _, m := range methods {
		set[m] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// Dispatch resolves and invokes the handler for a request, producing the
// router-level fallbacks named in spec §4.6: 404 on no path match, and an
// automatic 204 for OPTIONS against a known path with no explicit OPTIONS
// handler.
func (r *Router) Dispatch(ctx *Context) *Response {
	route, pathKnown, allowed := r.Find(ctx.Request.Method, ctx.Request.Path)
	if route != nil {
		return route.Handler(ctx)
	}
	if !pathKnown {
		resp := NewResponse(404, []byte("not found"))
		resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
		return resp
	}
	if ctx.Request.Method == "OPTIONS" {
		resp := NewResponse(204, nil)
		resp.Headers.Set("Allow", AllowHeader(allowed))
		return resp
	}
	resp := NewResponse(405, []byte("method not allowed"))
	resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Headers.Set("Allow", AllowHeader(allowed))
	return resp
}
