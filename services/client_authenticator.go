package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/cache"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/jose"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

const clientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// ClientAuthRequest carries the credential material the transport extracted
// from the inbound token-endpoint request.
type ClientAuthRequest struct {
	Params domain.RequestParameters
	// BasicAuthUser / BasicAuthSecret are the decoded Authorization header
	// credentials, when present.
	BasicAuthUser   string
	BasicAuthSecret string
	// ClientCertificate is the mTLS certificate presented on the connection.
	ClientCertificate *x509.Certificate
}

// ClientAuthenticator verifies the calling client against its registered
// authentication method and produces the ClientCredentials evidence object.
// Every failure is a 401-class invalid_client error, never a 400.
type ClientAuthenticator struct {
	replayCache cache.ReplayCache
	logger      applog.Logger
}

// NewClientAuthenticator creates a new authenticator. The replay cache
// enforces client-assertion jti uniqueness.
func NewClientAuthenticator(replayCache cache.ReplayCache, logger applog.Logger) *ClientAuthenticator {
	return &ClientAuthenticator{replayCache: replayCache, logger: logger}
}

// ResolveClientID determines the claimed client identity before any
// verification: Basic auth user, then the client_id parameter, then the
// unverified iss of a client assertion.
func ResolveClientID(req ClientAuthRequest) string {
	if req.BasicAuthUser != "" {
		return req.BasicAuthUser
	}
	if clientID := req.Params.Get("client_id"); clientID != "" {
		return clientID
	}
	if assertion := req.Params.Get("client_assertion"); assertion != "" {
		var claims jwt.MapClaims
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(assertion, &claims); err == nil {
			if iss, ok := claims["iss"].(string); ok {
				return iss
			}
		}
	}
	return ""
}

// Authenticate dispatches on the client's registered method.
func (a *ClientAuthenticator) Authenticate(ctx context.Context, serverConfig *domain.ServerConfiguration, clientConfig *domain.ClientConfiguration, req ClientAuthRequest) (domain.ClientCredentials, error) {
	switch clientConfig.AuthMethod {
	case domain.ClientAuthNone:
		return domain.ClientCredentials{ClientID: clientConfig.ClientID, Method: domain.ClientAuthNone}, nil
	case domain.ClientAuthSecretBasic:
		return a.authenticateSecret(clientConfig, domain.ClientAuthSecretBasic, req.BasicAuthSecret)
	case domain.ClientAuthSecretPost:
		return a.authenticateSecret(clientConfig, domain.ClientAuthSecretPost, req.Params.Get("client_secret"))
	case domain.ClientAuthPrivateKeyJWT:
		return a.authenticateAssertion(ctx, serverConfig, clientConfig, req)
	case domain.ClientAuthTLSClientAuth, domain.ClientAuthSelfSignedTLSClient:
		return a.authenticateCertificate(clientConfig, req.ClientCertificate)
	default:
		return domain.ClientCredentials{}, serrors.NewInvalidClient("unsupported client authentication method")
	}
}

// authenticateSecret compares the presented secret against the registration.
// Registered secrets are bcrypt hashes; a legacy plain registration falls
// back to a constant-time comparison.
func (a *ClientAuthenticator) authenticateSecret(clientConfig *domain.ClientConfiguration, method domain.ClientAuthMethod, secret string) (domain.ClientCredentials, error) {
	if secret == "" || clientConfig.SecretHash == "" {
		return domain.ClientCredentials{}, serrors.NewInvalidClient("client secret is required")
	}

	if strings.HasPrefix(clientConfig.SecretHash, "$2") {
		if err := bcrypt.CompareHashAndPassword([]byte(clientConfig.SecretHash), []byte(secret)); err != nil {
			return domain.ClientCredentials{}, serrors.NewInvalidClient("client authentication failed")
		}
	} else if subtle.ConstantTimeCompare([]byte(clientConfig.SecretHash), []byte(secret)) != 1 {
		return domain.ClientCredentials{}, serrors.NewInvalidClient("client authentication failed")
	}

	return domain.ClientCredentials{
		ClientID:      clientConfig.ClientID,
		Method:        method,
		SecretMatched: true,
	}, nil
}

// authenticateAssertion verifies a private_key_jwt client assertion.
func (a *ClientAuthenticator) authenticateAssertion(ctx context.Context, serverConfig *domain.ServerConfiguration, clientConfig *domain.ClientConfiguration, req ClientAuthRequest) (domain.ClientCredentials, error) {
	assertion := req.Params.Get("client_assertion")
	if assertion == "" {
		return domain.ClientCredentials{}, serrors.NewInvalidClient("client_assertion is required")
	}
	if req.Params.Get("client_assertion_type") != clientAssertionTypeJWTBearer {
		return domain.ClientCredentials{}, serrors.NewInvalidClient("client_assertion_type must be jwt-bearer")
	}
	if clientConfig.JWKS == "" {
		return domain.ClientCredentials{}, serrors.NewInvalidClient("client has no registered keys")
	}

	joseCtx, err := jose.VerifyWithJWKS(assertion, clientConfig.JWKS)
	if err != nil {
		return domain.ClientCredentials{}, serrors.NewInvalidClient("client assertion signature verification failed")
	}

	if clientConfig.FAPIProfile == domain.ProfileFAPIAdvance {
		if !jose.CheckFAPIAdvanceAlg(joseCtx.Algorithm) {
			return domain.ClientCredentials{}, serrors.NewInvalidClient("client assertion algorithm is not allowed under FAPI")
		}
		if err := jose.CheckFAPIKeyStrength(clientConfig.JWKS, joseCtx.KeyID); err != nil {
			return domain.ClientCredentials{}, serrors.NewInvalidClient("client assertion key does not meet FAPI requirements")
		}
	}

	if err := a.verifyAssertionClaims(ctx, serverConfig, clientConfig, joseCtx); err != nil {
		return domain.ClientCredentials{}, err
	}

	return domain.ClientCredentials{
		ClientID:        clientConfig.ClientID,
		Method:          domain.ClientAuthPrivateKeyJWT,
		AssertionClaims: joseCtx.Claims,
	}, nil
}

func (a *ClientAuthenticator) verifyAssertionClaims(ctx context.Context, serverConfig *domain.ServerConfiguration, clientConfig *domain.ClientConfiguration, joseCtx *jose.Context) error {
	if joseCtx.Claim("iss") != clientConfig.ClientID || joseCtx.Claim("sub") != clientConfig.ClientID {
		return serrors.NewInvalidClient("client assertion iss and sub must be the client_id")
	}
	if !assertionAudienceMatches(joseCtx.Claims["aud"], serverConfig) {
		return serrors.NewInvalidClient("client assertion audience does not match this server")
	}

	exp, ok := numericClaim(joseCtx.Claims["exp"])
	if !ok || time.Unix(exp, 0).Before(time.Now()) {
		return serrors.NewInvalidClient("client assertion is expired")
	}

	jti := joseCtx.Claim("jti")
	if jti == "" {
		return serrors.NewInvalidClient("client assertion jti is required")
	}
	fresh, err := a.replayCache.Register(ctx, serverConfig.Issuer, jti, time.Unix(exp, 0))
	if err != nil {
		a.logger.Error(ctx, "jti replay cache unavailable", err, map[string]interface{}{"client_id": clientConfig.ClientID})
		return serrors.NewServerError("client authentication unavailable")
	}
	if !fresh {
		return serrors.NewInvalidClient("client assertion has already been used")
	}
	return nil
}

// assertionAudienceMatches accepts the token endpoint or the issuer itself.
func assertionAudienceMatches(aud any, serverConfig *domain.ServerConfiguration) bool {
	accepted := func(v string) bool {
		return v == serverConfig.TokenEndpoint || v == serverConfig.Issuer
	}
	switch v := aud.(type) {
	case string:
		return accepted(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && accepted(s) {
				return true
			}
		}
	}
	return false
}

func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// authenticateCertificate handles the two mutual-TLS methods of RFC 8705.
func (a *ClientAuthenticator) authenticateCertificate(clientConfig *domain.ClientConfiguration, cert *x509.Certificate) (domain.ClientCredentials, error) {
	if cert == nil {
		return domain.ClientCredentials{}, serrors.NewInvalidClient("client certificate is required")
	}
	thumbprint := CertificateThumbprint(cert)

	switch clientConfig.AuthMethod {
	case domain.ClientAuthTLSClientAuth:
		if clientConfig.TLSClientAuthSubjectDN == "" || cert.Subject.String() != clientConfig.TLSClientAuthSubjectDN {
			return domain.ClientCredentials{}, serrors.NewInvalidClient("certificate subject does not match the registration")
		}
	case domain.ClientAuthSelfSignedTLSClient:
		if clientConfig.TLSClientCertThumbprint == "" ||
			subtle.ConstantTimeCompare([]byte(thumbprint), []byte(clientConfig.TLSClientCertThumbprint)) != 1 {
			return domain.ClientCredentials{}, serrors.NewInvalidClient("certificate thumbprint does not match the registration")
		}
	}

	return domain.ClientCredentials{
		ClientID:              clientConfig.ClientID,
		Method:                clientConfig.AuthMethod,
		CertificateThumbprint: thumbprint,
	}, nil
}

// CertificateThumbprint computes the base64url SHA-256 digest of the DER
// certificate, the x5t#S256 value of RFC 8705.
func CertificateThumbprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
