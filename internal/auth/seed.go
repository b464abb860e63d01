package auth

import "strings"

// IdentitySeed and KeySeed are the config-shaped inputs to SeedMemoryStore,
// decoupling this package from internal/config to avoid an import cycle.
type IdentitySeed struct {
	ID    string
	Roles []string
}

type KeySeed struct {
	KeyHash    string
	IdentityID string
}

// SeedMemoryStore populates store from file-based config. Config carries
// already-hashed credentials (never raw secrets), so each key is
// registered directly under its stored hash rather than re-hashed.
func SeedMemoryStore(store *MemoryStore, keys []KeySeed) {
	for _, k := range keys {
		switch DetectHashType(k.KeyHash) {
		case "argon2id":
			store.AddArgon2id(k.IdentityID, k.KeyHash)
		case "sha256":
			store.AddHashedSHA256(k.IdentityID, strings.TrimPrefix(k.KeyHash, "sha256:"))
		}
	}
}
