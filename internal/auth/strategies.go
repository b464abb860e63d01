package auth

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// BearerStrategy authenticates an "Authorization: Bearer <token>" header
// against store, treating the token itself as the credential.
type BearerStrategy struct {
	Store CredentialStore
}

func (s *BearerStrategy) Name() string { return "bearer" }

func (s *BearerStrategy) Authenticate(ctx context.Context, req *httpserver.Request) (*httpserver.Principal, bool, error) {
	auth, ok := req.Headers.Get("Authorization")
	if !ok || !strings.HasPrefix(auth, "Bearer ") {
		return nil, false, nil
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		return nil, false, nil
	}
	name, found, err := resolveCredential(ctx, s.Store, token)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, true, errInvalidCredential
	}
	return &httpserver.Principal{Name: name, Strategy: s.Name()}, true, nil
}

// APIKeyStrategy authenticates an "X-API-Key" header against store.
type APIKeyStrategy struct {
	Store  CredentialStore
	Header string // defaults to "X-API-Key"
}

func (s *APIKeyStrategy) Name() string { return "api_key" }

func (s *APIKeyStrategy) Authenticate(ctx context.Context, req *httpserver.Request) (*httpserver.Principal, bool, error) {
	header := s.Header
	if header == "" {
		header = "X-API-Key"
	}
	key, ok := req.Headers.Get(header)
	if !ok || key == "" {
		return nil, false, nil
	}
	name, found, err := resolveCredential(ctx, s.Store, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, true, errInvalidCredential
	}
	return &httpserver.Principal{Name: name, Strategy: s.Name()}, true, nil
}

// BasicStrategy authenticates "Authorization: Basic base64(user:pass)"
// against store, treating "user:pass" as the credential.
type BasicStrategy struct {
	Store CredentialStore
}

func (s *BasicStrategy) Name() string { return "basic" }

func (s *BasicStrategy) Authenticate(ctx context.Context, req *httpserver.Request) (*httpserver.Principal, bool, error) {
	auth, ok := req.Headers.Get("Authorization")
	if !ok || !strings.HasPrefix(auth, "Basic ") {
		return nil, false, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return nil, true, errInvalidCredential
	}
	name, found, rerr := resolveCredential(ctx, s.Store, string(decoded))
	if rerr != nil {
		return nil, false, rerr
	}
	if !found {
		return nil, true, errInvalidCredential
	}
	return &httpserver.Principal{Name: name, Strategy: s.Name()}, true, nil
}

var errInvalidCredential = &CredentialError{}

// CredentialError marks a recognized-but-invalid credential, distinguishing
// "no credential offered" (try next strategy) from "credential offered and
// rejected" (stop and return 401) in the chain walk.
type CredentialError struct{}

func (*CredentialError) Error() string { return "auth: invalid credential" }

// Chain tries each strategy in order, first-match-wins: the first
// strategy that recognizes a credential (ok==true) decides the outcome,
// whether it authenticates or rejects. A request carrying no credential
// recognized by any strategy falls through with ok=false.
type Chain struct {
	Strategies []Strategy
}

func (c *Chain) Authenticate(ctx context.Context, req *httpserver.Request) (*httpserver.Principal, bool, error) {
	for _, s := range c.Strategies {
		principal, ok, err := s.Authenticate(ctx, req)
		if !ok {
			continue
		}
		return principal, true, err
	}
	return nil, false, nil
}
