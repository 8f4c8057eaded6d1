package services

import (
	"context"
	"sync"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// In-memory fakes implementing the repository contracts, including the
// atomic consume semantics the grant services rely on.

type memConfigRepo struct {
	servers map[string]*domain.ServerConfiguration
	clients map[string]*domain.ClientConfiguration
}

func newMemConfigRepo() *memConfigRepo {
	return &memConfigRepo{
		servers: make(map[string]*domain.ServerConfiguration),
		clients: make(map[string]*domain.ClientConfiguration),
	}
}

func (r *memConfigRepo) GetServerConfiguration(_ context.Context, issuer string) (*domain.ServerConfiguration, error) {
	if s, ok := r.servers[issuer]; ok {
		return s, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memConfigRepo) GetClientConfiguration(_ context.Context, issuer, clientID string) (*domain.ClientConfiguration, error) {
	if c, ok := r.clients[issuer+"/"+clientID]; ok {
		return c, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memConfigRepo) put(server *domain.ServerConfiguration, clients ...*domain.ClientConfiguration) {
	r.servers[server.Issuer] = server
	for _, c := range clients {
		r.clients[c.Issuer+"/"+c.ClientID] = c
	}
}

type memRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*domain.AuthorizationRequest
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{requests: make(map[string]*domain.AuthorizationRequest)}
}

func (r *memRequestRepo) Register(_ context.Context, request *domain.AuthorizationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[request.ID] = request
	return nil
}

func (r *memRequestRepo) Find(_ context.Context, issuer, id string) (*domain.AuthorizationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok && req.Issuer == issuer {
		return req, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memRequestRepo) Delete(_ context.Context, _, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, id)
	return nil
}

type memCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*domain.AuthorizationCode
}

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{codes: make(map[string]*domain.AuthorizationCode)}
}

func (r *memCodeRepo) Register(_ context.Context, code *domain.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code.Code] = code
	return nil
}

func (r *memCodeRepo) Consume(_ context.Context, issuer, code string) (*domain.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.codes[code]
	if !ok || stored.Issuer != issuer {
		return nil, domain.ErrRecordNotFound
	}
	if stored.Consumed {
		return nil, domain.ErrAlreadyConsumed
	}
	stored.Consumed = true
	copied := *stored
	return &copied, nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.OAuthToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*domain.OAuthToken)}
}

func (r *memTokenRepo) Register(_ context.Context, token *domain.OAuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
	return nil
}

func (r *memTokenRepo) FindByAccessToken(_ context.Context, issuer, accessToken string) (*domain.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Issuer == issuer && t.AccessToken.Value == accessToken {
			return t, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memTokenRepo) ConsumeByRefreshToken(_ context.Context, issuer, refreshToken string) (*domain.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.Issuer == issuer && t.RefreshToken != nil && t.RefreshToken.Value == refreshToken {
			delete(r.tokens, id)
			return t, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memTokenRepo) Delete(_ context.Context, _, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[id]; !ok {
		return domain.ErrRecordNotFound
	}
	delete(r.tokens, id)
	return nil
}

func (r *memTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

type memCibaRepo struct {
	mu     sync.Mutex
	grants map[string]*domain.CibaGrant
}

func newMemCibaRepo() *memCibaRepo {
	return &memCibaRepo{grants: make(map[string]*domain.CibaGrant)}
}

func (r *memCibaRepo) Register(_ context.Context, grant *domain.CibaGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[grant.AuthReqID] = grant
	return nil
}

func (r *memCibaRepo) Find(_ context.Context, issuer, authReqID string) (*domain.CibaGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.grants[authReqID]; ok && g.Issuer == issuer {
		copied := *g
		return &copied, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memCibaRepo) Update(_ context.Context, grant *domain.CibaGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grants[grant.AuthReqID]; !ok {
		return domain.ErrRecordNotFound
	}
	copied := *grant
	r.grants[grant.AuthReqID] = &copied
	return nil
}

func (r *memCibaRepo) UpdateStatus(_ context.Context, issuer, authReqID string, status domain.CibaGrantStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[authReqID]
	if !ok || g.Issuer != issuer {
		return domain.ErrRecordNotFound
	}
	g.Status = status
	return nil
}

func (r *memCibaRepo) UpdateLastPolledAt(_ context.Context, issuer, authReqID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[authReqID]
	if !ok || g.Issuer != issuer {
		return domain.ErrRecordNotFound
	}
	g.LastPolledAt = time.Now()
	return nil
}

func (r *memCibaRepo) Consume(_ context.Context, issuer, authReqID string) (*domain.CibaGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[authReqID]
	if !ok || g.Issuer != issuer {
		return nil, domain.ErrRecordNotFound
	}
	if g.Status != domain.CibaGrantStatusAuthorized {
		return nil, domain.ErrAlreadyConsumed
	}
	g.Status = domain.CibaGrantStatusConsumed
	copied := *g
	return &copied, nil
}

func (r *memCibaRepo) Delete(_ context.Context, _, authReqID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, authReqID)
	return nil
}

type memUserRepo struct {
	users []*domain.User
}

func (r *memUserRepo) FindBySubject(_ context.Context, issuer, subject string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Issuer == issuer && u.ID == subject {
			return u, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memUserRepo) FindByEmail(_ context.Context, issuer, email, provider string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Issuer == issuer && u.Email == email && (provider == "" || u.Provider == provider) {
			return u, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memUserRepo) FindByPhone(_ context.Context, issuer, phone, provider string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Issuer == issuer && u.PhoneNumber == phone && (provider == "" || u.Provider == provider) {
			return u, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

// capturingNotifier records deliveries for assertions.
type capturingNotifier struct {
	mu            sync.Mutex
	notifications []CibaNotification
	done          chan struct{}
}

func newCapturingNotifier() *capturingNotifier {
	return &capturingNotifier{done: make(chan struct{}, 8)}
}

func (n *capturingNotifier) Notify(_ context.Context, notification CibaNotification) error {
	n.mu.Lock()
	n.notifications = append(n.notifications, notification)
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

func (n *capturingNotifier) wait(timeout time.Duration) bool {
	select {
	case <-n.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (n *capturingNotifier) last() (CibaNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notifications) == 0 {
		return CibaNotification{}, false
	}
	return n.notifications[len(n.notifications)-1], true
}

const testIssuer = "https://idp.example.com/tenant1"

func testServerConfig() *domain.ServerConfiguration {
	return &domain.ServerConfiguration{
		Issuer:                testIssuer,
		AuthorizationEndpoint: testIssuer + "/v1/authorizations",
		TokenEndpoint:         testIssuer + "/v1/tokens",
		SupportedResponseTypes: []domain.ResponseType{
			domain.ResponseTypeCode, domain.ResponseTypeCodeIDToken,
		},
		SupportedGrantTypes: []domain.GrantType{
			domain.GrantTypeAuthorizationCode,
			domain.GrantTypeClientCredentials,
			domain.GrantTypeRefreshToken,
			domain.GrantTypeCiba,
		},
		SupportedScopes:                   []string{"openid", "profile", "email", "payments"},
		SupportedAuthorizationDetailTypes: []string{"payment_initiation", "openid_credential"},
		AuthorizationRequestTTL:           5 * time.Minute,
		AuthorizationCodeTTL:              time.Minute,
		AccessTokenTTL:                    time.Hour,
		RefreshTokenTTL:                   24 * time.Hour,
		IDTokenTTL:                        time.Hour,
		CibaExpiry:                        2 * time.Minute,
		CibaPollInterval:                  2,
		SigningKeyID:                      "test-key",
	}
}

func testClientConfig() *domain.ClientConfiguration {
	return &domain.ClientConfiguration{
		ID:           "client-record-1",
		Issuer:       testIssuer,
		ClientID:     "client-1",
		AuthMethod:   domain.ClientAuthSecretPost,
		RedirectURIs: []string{"https://rp.example.com/callback"},
		ResponseTypes: []domain.ResponseType{
			domain.ResponseTypeCode, domain.ResponseTypeCodeIDToken,
		},
		GrantTypes: []domain.GrantType{
			domain.GrantTypeAuthorizationCode,
			domain.GrantTypeClientCredentials,
			domain.GrantTypeRefreshToken,
			domain.GrantTypeCiba,
		},
		Scopes:               []string{"openid", "profile", "email", "payments"},
		RefreshTokenRotation: true,
	}
}

func testSigner() *TokenSigner {
	signer := NewTokenSigner()
	signer.AddKeySigner("test-key", "0123456789abcdef0123456789abcdef")
	return signer
}

func testTokenCreator(tokenRepo domain.TokenRepository) *TokenCreator {
	return NewTokenCreator(testSigner(), tokenRepo, applog.Noop())
}
