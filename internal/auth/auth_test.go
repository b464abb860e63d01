package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

func reqWithHeader(name, value string) *httpserver.Request {
	h := httpserver.NewHeader()
	h.Set(name, value)
	return &httpserver.Request{Headers: h}
}

func TestBearerStrategy_ValidAndInvalid(t *testing.T) {
	store := NewMemoryStore()
	store.AddSHA256("svc-a", "topsecret")
	strat := &BearerStrategy{Store: store}

	p, ok, err := strat.Authenticate(context.Background(), reqWithHeader("Authorization", "Bearer topsecret"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "svc-a", p.Name)

	_, ok2, err2 := strat.Authenticate(context.Background(), reqWithHeader("Authorization", "Bearer wrong"))
	require.True(t, ok2)
	require.Error(t, err2)
}

func TestBearerStrategy_NoCredentialFallsThrough(t *testing.T) {
	strat := &BearerStrategy{Store: NewMemoryStore()}
	_, ok, err := strat.Authenticate(context.Background(), reqWithHeader("Host", "x"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestArgon2idRoundTrip(t *testing.T) {
	hash, err := HashKeyArgon2id("rawkey")
	require.NoError(t, err)
	match, err := VerifyKey("rawkey", hash)
	require.NoError(t, err)
	require.True(t, match)

	match2, err2 := VerifyKey("wrongkey", hash)
	require.NoError(t, err2)
	require.False(t, match2)
}

func TestChain_FirstMatchWins(t *testing.T) {
	store := NewMemoryStore()
	store.AddSHA256("api-client", "k1")
	chain := &Chain{Strategies: []Strategy{
		&BearerStrategy{Store: store},
		&APIKeyStrategy{Store: store},
	}}

	p, ok, err := chain.Authenticate(context.Background(), reqWithHeader("X-API-Key", "k1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "api-client", p.Name)

	_, ok2, _ := chain.Authenticate(context.Background(), reqWithHeader("Host", "x"))
	require.False(t, ok2)
}

func TestBasicStrategy(t *testing.T) {
	store := NewMemoryStore()
	store.AddSHA256("operator", "user:pass")
	strat := &BasicStrategy{Store: store}

	p, ok, err := strat.Authenticate(context.Background(), reqWithHeader("Authorization", "Basic dXNlcjpwYXNz"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "operator", p.Name)
}
