package services

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

type cibaServiceFixture struct {
	service  *CibaService
	configs  *memConfigRepo
	grants   *memCibaRepo
	tokens   *memTokenRepo
	notifier *capturingNotifier
	server   *domain.ServerConfiguration
	client   *domain.ClientConfiguration
}

func newCibaServiceFixture(t *testing.T, mutateClient func(*domain.ClientConfiguration)) *cibaServiceFixture {
	t.Helper()
	server := testServerConfig()
	client := testClientConfig()
	if mutateClient != nil {
		mutateClient(client)
	}

	configs := newMemConfigRepo()
	configs.put(server, client)
	grants := newMemCibaRepo()
	tokens := newMemTokenRepo()
	notifier := newCapturingNotifier()

	users := &memUserRepo{users: []*domain.User{
		{ID: "user-1", Issuer: testIssuer, Email: "alice@example.com", Provider: "google"},
	}}
	resolver := NewUserHintResolver(users, testSigner(), applog.Noop())

	return &cibaServiceFixture{
		service:  NewCibaService(configs, grants, resolver, testTokenCreator(tokens), notifier, applog.Noop()),
		configs:  configs,
		grants:   grants,
		tokens:   tokens,
		notifier: notifier,
		server:   server,
		client:   client,
	}
}

func (f *cibaServiceFixture) requestContext(params url.Values) *domain.CibaRequestContext {
	return &domain.CibaRequestContext{
		Pattern:      domain.RequestPatternNormal,
		Parameters:   domain.NewRequestParameters(params),
		ServerConfig: f.server,
		ClientConfig: f.client,
	}
}

func TestCibaRequestOpensPendingTransaction(t *testing.T) {
	f := newCibaServiceFixture(t, nil)

	resp, err := f.service.Request(context.Background(), f.requestContext(url.Values{
		"scope":      {"openid payments"},
		"login_hint": {"email:alice@example.com,google"},
	}))
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AuthReqID)
	assert.Equal(t, f.server.CibaPollInterval, resp.Interval)
	assert.Greater(t, resp.ExpiresIn, int64(0))

	grant, err := f.grants.Find(context.Background(), testIssuer, resp.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, domain.CibaGrantStatusPending, grant.Status)
	assert.Equal(t, "user-1", grant.UserID)
	assert.Equal(t, "openid payments", grant.Scope)
	assert.Equal(t, domain.CibaModePoll, grant.NotificationMode)
}

func TestCibaRequestUnknownUser(t *testing.T) {
	f := newCibaServiceFixture(t, nil)

	_, err := f.service.Request(context.Background(), f.requestContext(url.Values{
		"scope":      {"openid"},
		"login_hint": {"email:bob@example.com"},
	}))
	require.Error(t, err)
	assert.Equal(t, serrors.UnknownUserID, serrors.As(err).Code)
}

func TestCibaRequestUnknownHintSchemeAlsoUnknownUser(t *testing.T) {
	f := newCibaServiceFixture(t, nil)

	_, err := f.service.Request(context.Background(), f.requestContext(url.Values{
		"scope":      {"openid"},
		"login_hint": {"badge:1234"},
	}))
	require.Error(t, err)
	assert.Equal(t, serrors.UnknownUserID, serrors.As(err).Code)
}

func TestCibaRequestMissingHint(t *testing.T) {
	f := newCibaServiceFixture(t, nil)

	_, err := f.service.Request(context.Background(), f.requestContext(url.Values{
		"scope": {"openid"},
	}))
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidRequest, serrors.As(err).Code)
}

func TestCibaRequestMissingScope(t *testing.T) {
	f := newCibaServiceFixture(t, nil)

	_, err := f.service.Request(context.Background(), f.requestContext(url.Values{
		"login_hint": {"email:alice@example.com"},
	}))
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidScope, serrors.As(err).Code)
}

func TestCibaRequestBindingMessageTooLong(t *testing.T) {
	f := newCibaServiceFixture(t, nil)

	_, err := f.service.Request(context.Background(), f.requestContext(url.Values{
		"scope":           {"openid"},
		"login_hint":      {"email:alice@example.com"},
		"binding_message": {strings.Repeat("x", 141)},
	}))
	require.Error(t, err)
	assert.Equal(t, "invalid_binding_message", serrors.As(err).Code)
}

func TestCibaRequestPingRequiresNotificationToken(t *testing.T) {
	f := newCibaServiceFixture(t, func(c *domain.ClientConfiguration) {
		c.CibaNotificationMode = domain.CibaModePing
		c.CibaNotificationEndpoint = "https://rp.example.com/cb"
	})

	_, err := f.service.Request(context.Background(), f.requestContext(url.Values{
		"scope":      {"openid"},
		"login_hint": {"email:alice@example.com"},
	}))
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidRequest, serrors.As(err).Code)
}

func TestCibaRequestClientNotRegisteredForCiba(t *testing.T) {
	f := newCibaServiceFixture(t, func(c *domain.ClientConfiguration) {
		c.GrantTypes = []domain.GrantType{domain.GrantTypeAuthorizationCode}
	})

	_, err := f.service.Request(context.Background(), f.requestContext(url.Values{
		"scope":      {"openid"},
		"login_hint": {"email:alice@example.com"},
	}))
	require.Error(t, err)
	assert.Equal(t, serrors.UnauthorizedClient, serrors.As(err).Code)
}

func TestCibaAuthorizePollClient(t *testing.T) {
	f := newCibaServiceFixture(t, nil)
	grant := registeredCibaGrant(t, f.grants, nil)

	err := f.service.Authorize(context.Background(), testIssuer, grant.AuthReqID, map[string]string{"method": "fingerprint"})
	require.NoError(t, err)

	stored, err := f.grants.Find(context.Background(), testIssuer, grant.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, domain.CibaGrantStatusAuthorized, stored.Status)
	assert.Equal(t, "fingerprint", stored.AuthenticationEvidence["method"])
}

func TestCibaAuthorizePingClientNotifies(t *testing.T) {
	f := newCibaServiceFixture(t, func(c *domain.ClientConfiguration) {
		c.CibaNotificationMode = domain.CibaModePing
		c.CibaNotificationEndpoint = "https://rp.example.com/cb"
	})
	grant := registeredCibaGrant(t, f.grants, func(g *domain.CibaGrant) {
		g.NotificationMode = domain.CibaModePing
		g.ClientNotificationToken = "notify-token"
	})

	require.NoError(t, f.service.Authorize(context.Background(), testIssuer, grant.AuthReqID, nil))
	require.True(t, f.notifier.wait(time.Second), "ping notification was not dispatched")

	sent, ok := f.notifier.last()
	require.True(t, ok)
	assert.Equal(t, "https://rp.example.com/cb", sent.Endpoint)
	assert.Equal(t, "notify-token", sent.BearerToken)
	assert.Equal(t, grant.AuthReqID, sent.Payload["auth_req_id"])
	assert.NotContains(t, sent.Payload, "access_token", "ping carries only the auth_req_id")
}

func TestCibaAuthorizePushClientDeliversTokens(t *testing.T) {
	f := newCibaServiceFixture(t, func(c *domain.ClientConfiguration) {
		c.CibaNotificationMode = domain.CibaModePush
		c.CibaNotificationEndpoint = "https://rp.example.com/cb"
	})
	grant := registeredCibaGrant(t, f.grants, func(g *domain.CibaGrant) {
		g.NotificationMode = domain.CibaModePush
		g.ClientNotificationToken = "notify-token"
	})

	require.NoError(t, f.service.Authorize(context.Background(), testIssuer, grant.AuthReqID, nil))
	require.True(t, f.notifier.wait(time.Second), "push notification was not dispatched")

	sent, ok := f.notifier.last()
	require.True(t, ok)
	assert.NotEmpty(t, sent.Payload["access_token"])
	assert.NotEmpty(t, sent.Payload["id_token"])
	assert.Equal(t, 1, f.tokens.count())

	// the transaction is consumed before delivery
	stored, err := f.grants.Find(context.Background(), testIssuer, grant.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, domain.CibaGrantStatusConsumed, stored.Status)
}

func TestCibaDeny(t *testing.T) {
	f := newCibaServiceFixture(t, nil)
	grant := registeredCibaGrant(t, f.grants, nil)

	require.NoError(t, f.service.Deny(context.Background(), testIssuer, grant.AuthReqID))

	stored, err := f.grants.Find(context.Background(), testIssuer, grant.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, domain.CibaGrantStatusDenied, stored.Status)
}

func TestCibaDenyPushClientNotified(t *testing.T) {
	f := newCibaServiceFixture(t, func(c *domain.ClientConfiguration) {
		c.CibaNotificationMode = domain.CibaModePush
		c.CibaNotificationEndpoint = "https://rp.example.com/cb"
	})
	grant := registeredCibaGrant(t, f.grants, func(g *domain.CibaGrant) {
		g.NotificationMode = domain.CibaModePush
		g.ClientNotificationToken = "notify-token"
	})

	require.NoError(t, f.service.Deny(context.Background(), testIssuer, grant.AuthReqID))
	require.True(t, f.notifier.wait(time.Second))

	sent, ok := f.notifier.last()
	require.True(t, ok)
	assert.Equal(t, serrors.AccessDenied, sent.Payload["error"])
}

func TestCibaAuthorizeUnknownTransaction(t *testing.T) {
	f := newCibaServiceFixture(t, nil)

	err := f.service.Authorize(context.Background(), testIssuer, "no-such-id", nil)
	require.Error(t, err)
	assert.Equal(t, serrors.StatusNotFound, serrors.StatusOf(err))
}

func TestCibaAuthorizeExpiredTransaction(t *testing.T) {
	f := newCibaServiceFixture(t, nil)
	grant := registeredCibaGrant(t, f.grants, func(g *domain.CibaGrant) {
		g.ExpiresAt = time.Now().Add(-time.Second)
	})

	err := f.service.Authorize(context.Background(), testIssuer, grant.AuthReqID, nil)
	require.Error(t, err)
	assert.Equal(t, serrors.ExpiredToken, serrors.As(err).Code)

	stored, err := f.grants.Find(context.Background(), testIssuer, grant.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, domain.CibaGrantStatusExpired, stored.Status)
}

func TestCibaAuthorizeCompletedTransaction(t *testing.T) {
	f := newCibaServiceFixture(t, nil)
	grant := registeredCibaGrant(t, f.grants, func(g *domain.CibaGrant) {
		g.Status = domain.CibaGrantStatusDenied
	})

	err := f.service.Authorize(context.Background(), testIssuer, grant.AuthReqID, nil)
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidGrant, serrors.As(err).Code)
}
