package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// TokenResponse is the wire-level token endpoint response.
type TokenResponse struct {
	AccessToken          string                       `json:"access_token"`
	TokenType            string                       `json:"token_type"`
	ExpiresIn            int64                        `json:"expires_in"`
	RefreshToken         string                       `json:"refresh_token,omitempty"`
	IDToken              string                       `json:"id_token,omitempty"`
	Scope                string                       `json:"scope,omitempty"`
	AuthorizationDetails []domain.AuthorizationDetail `json:"authorization_details,omitempty"`
	CNonce               string                       `json:"c_nonce,omitempty"`
	CNonceExpiresIn      int64                        `json:"c_nonce_expires_in,omitempty"`
}

// TokenOptions steers what a single mint produces beyond the access token.
type TokenOptions struct {
	IncludeRefreshToken bool
	IncludeIDToken      bool
	// CertificateThumbprint binds the access token to the presented mTLS
	// certificate when the client registration asks for it.
	CertificateThumbprint string
	Nonce                 string
	AuthTime              int64
	// ReuseRefreshToken carries an existing refresh credential into the new
	// aggregate for clients registered without rotation.
	ReuseRefreshToken *domain.RefreshToken
}

// TokenCreator mints and persists the token set for an approved grant.
type TokenCreator struct {
	signer    *TokenSigner
	tokenRepo domain.TokenRepository
	logger    applog.Logger
}

func NewTokenCreator(signer *TokenSigner, tokenRepo domain.TokenRepository, logger applog.Logger) *TokenCreator {
	return &TokenCreator{signer: signer, tokenRepo: tokenRepo, logger: logger}
}

// Create mints the token set described by opts, persists it, and returns the
// stored record. The signed access token is a JWT carrying the grant; the
// stored value is the opaque identifier used for introspection lookups.
func (c *TokenCreator) Create(ctx context.Context, serverConfig *domain.ServerConfiguration, clientConfig *domain.ClientConfiguration, grant domain.AuthorizationGrant, opts TokenOptions) (*domain.OAuthToken, error) {
	now := time.Now()
	accessTokenValue, err := randomTokenValue()
	if err != nil {
		return nil, serrors.NewServerError("failed to generate token")
	}
	accessTokenExpiry := now.Add(serverConfig.AccessTokenTTL)

	signedValue, err := c.signAccessToken(serverConfig, grant, accessTokenValue, now, accessTokenExpiry, opts)
	if err != nil {
		c.logger.Error(ctx, "access token signing failed", err, map[string]interface{}{"client_id": grant.ClientID})
		return nil, serrors.NewServerError("failed to sign token")
	}

	token := &domain.OAuthToken{
		ID:        uuid.NewString(),
		Issuer:    serverConfig.Issuer,
		Grant:     grant,
		CreatedAt: now,
		AccessToken: domain.AccessToken{
			Value:                 accessTokenValue,
			SignedValue:           signedValue,
			Issuer:                serverConfig.Issuer,
			ExpiresAt:             accessTokenExpiry,
			CertificateThumbprint: opts.CertificateThumbprint,
		},
	}

	if opts.ReuseRefreshToken != nil {
		token.RefreshToken = opts.ReuseRefreshToken
	} else if opts.IncludeRefreshToken && clientConfig.SupportsGrantType(domain.GrantTypeRefreshToken) {
		refreshValue, err := randomTokenValue()
		if err != nil {
			return nil, serrors.NewServerError("failed to generate token")
		}
		token.RefreshToken = &domain.RefreshToken{
			Value:     refreshValue,
			Issuer:    serverConfig.Issuer,
			ExpiresAt: now.Add(serverConfig.RefreshTokenTTL),
		}
	}

	if grant.HasCredentialDetail() {
		cNonce, err := randomTokenValue()
		if err != nil {
			return nil, serrors.NewServerError("failed to generate token")
		}
		token.CNonce = cNonce
		token.CNonceExpiresAt = now.Add(cNonceTTL(serverConfig))
	}

	if opts.IncludeIDToken && domain.ContainsScope(domain.SplitScope(grant.Scope), "openid") {
		idToken, err := c.signIDToken(serverConfig, grant, now, opts)
		if err != nil {
			c.logger.Error(ctx, "id token signing failed", err, map[string]interface{}{"client_id": grant.ClientID})
			return nil, serrors.NewServerError("failed to sign token")
		}
		token.IDToken = idToken
	}

	if err := c.tokenRepo.Register(ctx, token); err != nil {
		c.logger.Error(ctx, "token persistence failed", err, map[string]interface{}{"client_id": grant.ClientID})
		return nil, serrors.NewServerError("failed to store token")
	}

	return token, nil
}

func (c *TokenCreator) signAccessToken(serverConfig *domain.ServerConfiguration, grant domain.AuthorizationGrant, jti string, now, expiry time.Time, opts TokenOptions) (string, error) {
	claims := jwt.MapClaims{
		"iss":       serverConfig.Issuer,
		"sub":       grant.Subject,
		"client_id": grant.ClientID,
		"scope":     grant.Scope,
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       expiry.Unix(),
	}
	if grant.Subject == "" {
		claims["sub"] = grant.ClientID
	}
	if len(grant.AuthorizationDetails) > 0 {
		claims["authorization_details"] = grant.AuthorizationDetails
	}
	if opts.CertificateThumbprint != "" {
		claims["cnf"] = map[string]string{"x5t#S256": opts.CertificateThumbprint}
	}
	return c.signer.Sign(claims, serverConfig.SigningKeyID)
}

func (c *TokenCreator) signIDToken(serverConfig *domain.ServerConfiguration, grant domain.AuthorizationGrant, now time.Time, opts TokenOptions) (string, error) {
	claims := jwt.MapClaims{
		"iss": serverConfig.Issuer,
		"sub": grant.Subject,
		"aud": grant.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(serverConfig.IDTokenTTL).Unix(),
	}
	if opts.Nonce != "" {
		claims["nonce"] = opts.Nonce
	}
	if opts.AuthTime > 0 {
		claims["auth_time"] = opts.AuthTime
	}
	if acr := grant.CustomProperties["acr"]; acr != "" {
		claims["acr"] = acr
	}
	if amr := grant.CustomProperties["amr"]; amr != "" {
		claims["amr"] = strings.Fields(amr)
	}
	return c.signer.Sign(claims, serverConfig.SigningKeyID)
}

// cNonceTTL applies the tenant's credential-nonce lifetime, defaulting to
// five minutes.
func cNonceTTL(serverConfig *domain.ServerConfiguration) time.Duration {
	if serverConfig.CNonceTTL > 0 {
		return serverConfig.CNonceTTL
	}
	return 5 * time.Minute
}

// Response converts a stored token set into its wire representation.
func Response(token *domain.OAuthToken) *TokenResponse {
	resp := &TokenResponse{
		AccessToken: token.AccessToken.SignedValue,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(token.AccessToken.ExpiresAt).Seconds()),
		IDToken:     token.IDToken,
		Scope:       token.Grant.Scope,
	}
	if token.RefreshToken != nil {
		resp.RefreshToken = token.RefreshToken.Value
	}
	if token.Grant.HasCredentialDetail() {
		resp.AuthorizationDetails = token.Grant.AuthorizationDetails
		resp.CNonce = token.CNonce
		resp.CNonceExpiresIn = int64(time.Until(token.CNonceExpiresAt).Seconds())
	}
	return resp
}

// randomTokenValue produces an unguessable opaque token value.
func randomTokenValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
