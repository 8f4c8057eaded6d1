package echo

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/services"
)

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.OAuthToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: map[string]*domain.OAuthToken{}}
}

func (r *memTokenRepo) Register(_ context.Context, token *domain.OAuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.Issuer+"/"+token.AccessToken.Value] = token
	return nil
}

func (r *memTokenRepo) FindByAccessToken(_ context.Context, issuer, accessToken string) (*domain.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[issuer+"/"+accessToken]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return token, nil
}

func (r *memTokenRepo) ConsumeByRefreshToken(_ context.Context, issuer, refreshToken string) (*domain.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, token := range r.tokens {
		if token.Issuer == issuer && token.RefreshToken != nil && token.RefreshToken.Value == refreshToken {
			delete(r.tokens, key)
			return token, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memTokenRepo) Delete(_ context.Context, issuer, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, token := range r.tokens {
		if token.Issuer == issuer && token.ID == id {
			delete(r.tokens, key)
		}
	}
	return nil
}

func protectedEcho(repo domain.TokenRepository) *echo.Echo {
	e := echo.New()
	e.GET("/:tenant/v1/resource", func(c echo.Context) error {
		token, ok := TokenFromContext(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, map[string]string{"sub": token.Grant.Subject})
	}, TokenValidationMiddleware(repo))
	return e
}

func registeredToken(t *testing.T, repo domain.TokenRepository, issuer string, mutate func(*domain.OAuthToken)) *domain.OAuthToken {
	t.Helper()
	token := &domain.OAuthToken{
		ID:     "token-1",
		Issuer: issuer,
		AccessToken: domain.AccessToken{
			Value:     "at-opaque",
			Issuer:    issuer,
			ExpiresAt: time.Now().Add(time.Hour),
		},
		Grant: domain.AuthorizationGrant{
			Issuer:   issuer,
			ClientID: "client-1",
			Subject:  "user-1",
			Scope:    "openid profile",
		},
		CreatedAt: time.Now(),
	}
	if mutate != nil {
		mutate(token)
	}
	require.NoError(t, repo.Register(context.Background(), token))
	return token
}

func resourceRequest(bearer string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "http://idp.example.com/tenant1/v1/resource", nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	return req
}

func TestTokenValidationMiddlewareAcceptsOpaqueToken(t *testing.T) {
	repo := newMemTokenRepo()
	registeredToken(t, repo, "http://idp.example.com/tenant1", nil)
	e := protectedEcho(repo)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, resourceRequest("at-opaque"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body["sub"])
}

func TestTokenValidationMiddlewareResolvesJWTFormThroughJTI(t *testing.T) {
	repo := newMemTokenRepo()
	registeredToken(t, repo, "http://idp.example.com/tenant1", nil)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "http://idp.example.com/tenant1",
		"sub": "user-1",
		"jti": "at-opaque",
	}).SignedString([]byte("tenant-signing-key"))
	require.NoError(t, err)

	e := protectedEcho(repo)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, resourceRequest(signed))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenValidationMiddlewareRejectsMissingToken(t *testing.T) {
	e := protectedEcho(newMemTokenRepo())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, resourceRequest(""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestTokenValidationMiddlewareRejectsUnknownToken(t *testing.T) {
	e := protectedEcho(newMemTokenRepo())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, resourceRequest("at-unknown"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_token", body["error"])
}

func TestTokenValidationMiddlewareRejectsExpiredToken(t *testing.T) {
	repo := newMemTokenRepo()
	registeredToken(t, repo, "http://idp.example.com/tenant1", func(token *domain.OAuthToken) {
		token.AccessToken.ExpiresAt = time.Now().Add(-time.Minute)
	})
	e := protectedEcho(repo)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, resourceRequest("at-opaque"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenValidationMiddlewareRejectsTokenFromAnotherTenant(t *testing.T) {
	repo := newMemTokenRepo()
	registeredToken(t, repo, "http://idp.example.com/tenant2", nil)
	e := protectedEcho(repo)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, resourceRequest("at-opaque"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func peerCertificate(t *testing.T, commonName string) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestTokenValidationMiddlewareCertificateBoundToken(t *testing.T) {
	cert := peerCertificate(t, "client-1")
	other := peerCertificate(t, "intruder")

	newFixture := func(t *testing.T) *echo.Echo {
		repo := newMemTokenRepo()
		registeredToken(t, repo, "https://idp.example.com/tenant1", func(token *domain.OAuthToken) {
			token.AccessToken.CertificateThumbprint = services.CertificateThumbprint(cert)
		})
		return protectedEcho(repo)
	}

	t.Run("matching peer certificate passes", func(t *testing.T) {
		e := newFixture(t)
		req := resourceRequest("at-opaque")
		req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing peer certificate is rejected", func(t *testing.T) {
		e := newFixture(t)
		req := resourceRequest("at-opaque")
		req.TLS = &tls.ConnectionState{}

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("different peer certificate is rejected", func(t *testing.T) {
		e := newFixture(t)
		req := resourceRequest("at-opaque")
		req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{other}}

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
