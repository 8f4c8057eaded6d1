package services

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

func hintResolverFixture() (*UserHintResolver, *TokenSigner) {
	users := &memUserRepo{users: []*domain.User{
		{ID: "user-1", Issuer: testIssuer, Email: "alice@example.com", Provider: "google", Name: "Alice"},
		{ID: "user-2", Issuer: testIssuer, Email: "alice@example.com", Provider: "github"},
		{ID: "user-3", Issuer: testIssuer, PhoneNumber: "+818012345678"},
	}}
	signer := testSigner()
	return NewUserHintResolver(users, signer, applog.Noop()), signer
}

func TestResolveLoginHintEmailWithProvider(t *testing.T) {
	resolver, _ := hintResolverFixture()

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{LoginHint: "email:alice@example.com,google"})
	require.True(t, user.Exists())
	assert.Equal(t, "user-1", user.ID)

	user = resolver.Resolve(context.Background(), testIssuer, UserHints{LoginHint: "email:alice@example.com,github"})
	require.True(t, user.Exists())
	assert.Equal(t, "user-2", user.ID)
}

func TestResolveLoginHintSubject(t *testing.T) {
	resolver, _ := hintResolverFixture()

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{LoginHint: "sub:user-3"})
	require.True(t, user.Exists())
	assert.Equal(t, "user-3", user.ID)
}

func TestResolveLoginHintPhone(t *testing.T) {
	resolver, _ := hintResolverFixture()

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{LoginHint: "phone:+818012345678"})
	require.True(t, user.Exists())
	assert.Equal(t, "user-3", user.ID)
}

func TestResolveLoginHintUnknownSchemeYieldsNotFound(t *testing.T) {
	resolver, _ := hintResolverFixture()

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{LoginHint: "username:alice"})
	assert.False(t, user.Exists())
}

func TestResolveLoginHintWithoutScheme(t *testing.T) {
	resolver, _ := hintResolverFixture()

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{LoginHint: "alice@example.com"})
	assert.False(t, user.Exists())
}

func TestResolveLoginHintUnknownUser(t *testing.T) {
	resolver, _ := hintResolverFixture()

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{LoginHint: "email:bob@example.com"})
	assert.False(t, user.Exists())
}

func TestResolveLoginHintWinsOverIDTokenHint(t *testing.T) {
	resolver, signer := hintResolverFixture()
	idToken, err := signer.Sign(jwt.MapClaims{"iss": testIssuer, "sub": "user-3"}, "test-key")
	require.NoError(t, err)

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{
		LoginHint:   "sub:user-1",
		IDTokenHint: idToken,
	})
	require.True(t, user.Exists())
	assert.Equal(t, "user-1", user.ID)
}

func TestResolveIDTokenHint(t *testing.T) {
	resolver, signer := hintResolverFixture()
	idToken, err := signer.Sign(jwt.MapClaims{"iss": testIssuer, "sub": "user-1"}, "test-key")
	require.NoError(t, err)

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{IDTokenHint: idToken})
	require.True(t, user.Exists())
	assert.Equal(t, "user-1", user.ID)
}

func TestResolveIDTokenHintWrongIssuer(t *testing.T) {
	resolver, signer := hintResolverFixture()
	idToken, err := signer.Sign(jwt.MapClaims{"iss": "https://other.example.com", "sub": "user-1"}, "test-key")
	require.NoError(t, err)

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{IDTokenHint: idToken})
	assert.False(t, user.Exists())
}

func TestResolveIDTokenHintForeignSignature(t *testing.T) {
	resolver, _ := hintResolverFixture()

	foreign := NewTokenSigner()
	foreign.AddKeySigner("other-key", "ffffffffffffffffffffffffffffffff")
	idToken, err := foreign.Sign(jwt.MapClaims{"iss": testIssuer, "sub": "user-1"}, "other-key")
	require.NoError(t, err)

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{IDTokenHint: idToken})
	assert.False(t, user.Exists())
}

func TestResolveNoHints(t *testing.T) {
	resolver, _ := hintResolverFixture()

	user := resolver.Resolve(context.Background(), testIssuer, UserHints{})
	assert.False(t, user.Exists())
}
