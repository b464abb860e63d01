// Package auth implements the core's pluggable authentication strategies:
// Bearer token, API key, and HTTP Basic, each a pure function from a
// request to an authenticated principal or a rejection reason.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

// ErrUnknownHashType is returned when a stored credential hash has an
// unrecognized format.
var ErrUnknownHashType = errors.New("auth: unknown hash type")

// Strategy authenticates one request against a credential store. It never
// mutates the request; the caller (the middleware chain) attaches the
// resulting Principal.
type Strategy interface {
	// Name identifies the strategy for Principal.Strategy and logging.
	Name() string
	// Authenticate inspects req and returns a principal on success. ok is
	// false when the request carries no credential recognized by this
	// strategy (the chain tries the next one); err is set only when a
	// credential was present but invalid, so the chain can stop and
	// surface a 401 immediately instead of falling through.
	Authenticate(ctx context.Context, req *httpserver.Request) (principal *httpserver.Principal, ok bool, err error)
}

// CredentialStore resolves a hashed credential to a principal name. A
// single store backs every strategy; keys are looked up by their stored
// hash form (see HashKey/HashKeyArgon2id).
type CredentialStore interface {
	Lookup(ctx context.Context, hashedKey string) (principalName string, ok bool, err error)
	// All is used by strategies that cannot hash-index the credential up
	// front (Argon2id requires iterating candidates since the salt is
	// embedded per-hash, not derivable from the raw key).
	All(ctx context.Context) ([]StoredCredential, error)
}

// StoredCredential pairs a principal with its stored (possibly salted)
// hash, for iteration-based verification.
type StoredCredential struct {
	Principal string
	Hash      string
}

// HashKey returns the SHA-256 hex digest of a raw credential, used for the
// fast-path direct lookup before falling back to Argon2id iteration.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id hashes raw using OWASP-minimum Argon2id parameters,
// returning a PHC-formatted string.
func HashKeyArgon2id(raw string) (string, error) {
	return argon2id.CreateHash(raw, argon2idParams)
}

// DetectHashType classifies a stored hash so VerifyKey can dispatch to
// the matching comparison.
func DetectHashType(stored string) string {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return "argon2id"
	case strings.HasPrefix(stored, "sha256:"):
		return "sha256"
	case len(stored) == 64 && isHex(stored):
		return "sha256"
	default:
		return "unknown"
	}
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey checks raw against a stored hash in either supported format,
// using a constant-time comparison for the SHA-256 path.
func VerifyKey(raw, stored string) (bool, error) {
	switch DetectHashType(stored) {
	case "argon2id":
		return safeArgon2idCompare(raw, stored)
	case "sha256":
		expect := strings.TrimPrefix(stored, "sha256:")
		got := HashKey(raw)
		return subtle.ConstantTimeCompare([]byte(got), []byte(expect)) == 1, nil
	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare recovers from the underlying library's panic on
// malformed PHC parameters (e.g. zero iterations) and turns it into an
// error so VerifyKey never panics on attacker-controlled input.
func safeArgon2idCompare(raw, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match, err = false, fmt.Errorf("auth: invalid argon2id hash: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(raw, stored)
}

func resolveCredential(ctx context.Context, store CredentialStore, raw string) (string, bool, error) {
	if name, ok, err := store.Lookup(ctx, HashKey(raw)); err == nil && ok {
		return name, true, nil
	}
	all, err := store.All(ctx)
	if err != nil {
		return "", false, nil
	}
	for _, c := range all {
		if match, verr := VerifyKey(raw, c.Hash); verr == nil && match {
			return c.Principal, true, nil
		}
	}
	return "", false, nil
}
