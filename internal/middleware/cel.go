package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// maxExpressionLength bounds a route guard's CEL source, preventing an
// operator-authored policy file from embedding an unbounded string.
const maxExpressionLength = 1024

// maxCostBudget bounds CEL evaluation cost per request, guarding against
// a pathological expression turning route protection into a DoS vector.
const maxCostBudget = 100_000

const maxNestingDepth = 50

const evalTimeout = 2 * time.Second

const interruptCheckFreq = 100

// RouteGuard compiles and evaluates a CEL predicate over request
// attributes: request.path, request.method, request.ip, request.host,
// request.authenticated, request.principal, and request.headers (a map
// from header name to value).
type RouteGuard struct {
	env *cel.Env
}

// NewRouteGuard builds the CEL environment route guards compile against.
func NewRouteGuard() (*RouteGuard, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("middleware: cel environment: %w", err)
	}
	return &RouteGuard{env: env}, nil
}

// Compile validates and compiles expr, enforcing length/nesting guards
// on operator-authored policy expressions.
func (g *RouteGuard) Compile(expr string) (cel.Program, error) {
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("middleware: route guard expression too long (%d > %d)", len(expr), maxExpressionLength)
	}
	if expr == "" {
		return nil, errors.New("middleware: route guard expression is empty")
	}
	if depth := maxNestingOf(expr); depth > maxNestingDepth {
		return nil, fmt.Errorf("middleware: route guard nesting too deep: %d levels (max %d)", depth, maxNestingDepth)
	}

	ast, issues := g.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("middleware: route guard compile: %w", issues.Err())
	}
	prg, err := g.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("middleware: route guard program: %w", err)
	}
	return prg, nil
}

func maxNestingOf(expr string) int {
	var depth, max int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > max {
				max = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	return max
}

// Evaluate runs prg against req's derived attributes with a bounded
// context-deadline timeout.
func (g *RouteGuard) Evaluate(prg cel.Program, req *httpserver.Request) (bool, error) {
	activation := map[string]any{"request": requestAttributes(req)}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("middleware: route guard evaluation: %w", err)
	}
	ok, isBool := result.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("middleware: route guard expression did not return bool, got %T", result.Value())
	}
	return ok, nil
}

func requestAttributes(req *httpserver.Request) map[string]any {
	headers := map[string]any{}
	req.Headers.Each(func(name, value string) {
		headers[name] = value
	})

	principal := ""
	authenticated := false
	if req.Principal != nil {
		principal = req.Principal.Name
		authenticated = true
	}

	return map[string]any{
		"path":          req.Path,
		"method":        req.Method,
		"ip":            req.EffectiveIP,
		"host":          req.EffectiveHost,
		"authenticated": authenticated,
		"principal":     principal,
		"headers":       headers,
	}
}

// Guard builds a middleware stage that evaluates a compiled route
// expression before calling next, returning 403 when it evaluates false.
func Guard(guard *RouteGuard, prg cel.Program) func(httpserver.HandlerFunc) httpserver.HandlerFunc {
	return func(next httpserver.HandlerFunc) httpserver.HandlerFunc {
		return func(ctx *httpserver.Context) *httpserver.Response {
			allowed, err := guard.Evaluate(prg, ctx.Request)
			if err != nil || !allowed {
				resp := httpserver.NewResponse(403, []byte("forbidden"))
				resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
				return resp
			}
			return next(ctx)
		}
	}
}

// RoutePrograms maps a "METHOD path" key to its compiled guard, built
// once at startup from config-defined route guards.
type RoutePrograms map[string]cel.Program

// RouteKey formats the lookup key RoutePrograms and GuardRoutes share.
func RouteKey(method, path string) string {
	return method + " " + path
}

// GuardRoutes is the global-stage counterpart to Guard: rather than
// wrapping one specific route's final handler (which would have to sit
// between the router and that handler, impossible to express for routes
// registered elsewhere), it sits in the outer middleware chain ahead of
// the router and evaluates whichever guard matches the incoming
// request's (method, path), so config-declared route guards compose with
// routes registered anywhere else in the chain.
func GuardRoutes(guard *RouteGuard, programs RoutePrograms) Stage {
	return func(next httpserver.HandlerFunc) httpserver.HandlerFunc {
		return func(ctx *httpserver.Context) *httpserver.Response {
			prg, ok := programs[RouteKey(ctx.Request.Method, ctx.Request.Path)]
			if ok {
				allowed, err := guard.Evaluate(prg, ctx.Request)
				if err != nil || !allowed {
					resp := httpserver.NewResponse(403, []byte("forbidden"))
					resp.Headers.Set("Content-Type", "text/plain; charset=utf-8")
					return resp
				}
			}
			return next(ctx)
		}
	}
}
