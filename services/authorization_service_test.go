package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

type authServiceFixture struct {
	service  *AuthorizationService
	requests *memRequestRepo
	codes    *memCodeRepo
}

func newAuthServiceFixture(t *testing.T) *authServiceFixture {
	t.Helper()
	configs := newMemConfigRepo()
	configs.put(testServerConfig(), testClientConfig())
	requests := newMemRequestRepo()
	codes := newMemCodeRepo()

	builder := NewRequestContextBuilder(configs, nil, applog.Noop())
	service := NewAuthorizationService(builder, NewVerificationPipeline(), configs, requests, codes, applog.Noop())
	return &authServiceFixture{service: service, requests: requests, codes: codes}
}

func TestAuthorizationRequestSnapshot(t *testing.T) {
	f := newAuthServiceFixture(t)

	request, err := f.service.Request(context.Background(), testIssuer, url.Values{
		"response_type": {"code"},
		"client_id":     {"client-1"},
		"redirect_uri":  {"https://rp.example.com/callback"},
		"scope":         {"openid profile unregistered"},
		"state":         {"xyz"},
		"nonce":         {"n-0S6"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, request.ID)
	assert.Equal(t, domain.ProfileOIDC, request.Profile)
	assert.Equal(t, "openid profile", request.Scope, "unregistered scopes are filtered out of the snapshot")
	assert.Equal(t, "xyz", request.State)
	assert.True(t, request.ExpiresAt.After(request.CreatedAt))

	stored, err := f.requests.Find(context.Background(), testIssuer, request.ID)
	require.NoError(t, err)
	assert.Equal(t, request.ID, stored.ID)
}

func TestAuthorizationRequestVerificationFailureNotPersisted(t *testing.T) {
	f := newAuthServiceFixture(t)

	_, err := f.service.Request(context.Background(), testIssuer, url.Values{
		"response_type": {"code"},
		"client_id":     {"client-1"},
		"redirect_uri":  {"https://attacker.example.com/cb"},
		"scope":         {"openid"},
	})
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidRequest, serrors.As(err).Code)
	assert.Empty(t, f.requests.requests)
}

func TestApproveIssuesCode(t *testing.T) {
	f := newAuthServiceFixture(t)

	request, err := f.service.Request(context.Background(), testIssuer, url.Values{
		"response_type": {"code"},
		"client_id":     {"client-1"},
		"redirect_uri":  {"https://rp.example.com/callback"},
		"scope":         {"openid"},
		"state":         {"xyz"},
	})
	require.NoError(t, err)

	authTime := time.Now().Unix()
	resp, err := f.service.Approve(context.Background(), testIssuer, request.ID, "user-1", authTime, map[string]string{"acr": "urn:mace:incommon:iap:silver"})
	require.NoError(t, err)

	assert.Equal(t, "https://rp.example.com/callback", resp.RedirectURI)
	assert.Equal(t, "xyz", resp.State)
	assert.NotEmpty(t, resp.Code)

	code, err := f.codes.Consume(context.Background(), testIssuer, resp.Code)
	require.NoError(t, err)
	assert.Equal(t, "user-1", code.UserID)
	assert.Equal(t, authTime, code.AuthTime)
	assert.Equal(t, request.ID, code.AuthorizationRequestID)
	assert.Equal(t, "urn:mace:incommon:iap:silver", code.CustomProperties["acr"])

	// the snapshot is gone once the code exists
	_, err = f.requests.Find(context.Background(), testIssuer, request.ID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestApproveUnknownRequest(t *testing.T) {
	f := newAuthServiceFixture(t)

	_, err := f.service.Approve(context.Background(), testIssuer, "no-such-request", "user-1", 0, nil)
	require.Error(t, err)
	assert.Equal(t, serrors.StatusNotFound, serrors.StatusOf(err))
}

func TestApproveExpiredRequest(t *testing.T) {
	f := newAuthServiceFixture(t)

	request, err := f.service.Request(context.Background(), testIssuer, url.Values{
		"response_type": {"code"},
		"client_id":     {"client-1"},
		"redirect_uri":  {"https://rp.example.com/callback"},
		"scope":         {"openid"},
	})
	require.NoError(t, err)

	f.requests.requests[request.ID].ExpiresAt = time.Now().Add(-time.Second)

	_, err = f.service.Approve(context.Background(), testIssuer, request.ID, "user-1", 0, nil)
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidRequest, serrors.As(err).Code)
}

func TestDenyReturnsRedirectableAccessDenied(t *testing.T) {
	f := newAuthServiceFixture(t)

	request, err := f.service.Request(context.Background(), testIssuer, url.Values{
		"response_type": {"code"},
		"client_id":     {"client-1"},
		"redirect_uri":  {"https://rp.example.com/callback"},
		"scope":         {"openid"},
		"state":         {"xyz"},
	})
	require.NoError(t, err)

	err = f.service.Deny(context.Background(), testIssuer, request.ID)
	require.Error(t, err)

	oe := serrors.As(err)
	assert.Equal(t, serrors.AccessDenied, oe.Code)
	assert.Equal(t, serrors.StatusRedirectableBadRequest, oe.Status())
	assert.Equal(t, "https://rp.example.com/callback", oe.RedirectURI)
	assert.Equal(t, "xyz", oe.State)

	_, err = f.requests.Find(context.Background(), testIssuer, request.ID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}
