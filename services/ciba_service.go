package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

const maxBindingMessageLength = 140

// CibaBackchannelResponse is the wire response of a successful backchannel
// authentication request.
type CibaBackchannelResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int64  `json:"expires_in"`
	Interval  int    `json:"interval"`
}

// CibaService owns the backchannel authentication lifecycle outside the
// token endpoint: accepting requests, recording the end-user's decision and
// dispatching ping/push notifications after the decision is durable.
type CibaService struct {
	configRepo   domain.ConfigurationRepository
	grantRepo    domain.CibaGrantRepository
	hintResolver *UserHintResolver
	tokenCreator *TokenCreator
	notifier     NotificationClient
	logger       applog.Logger
}

func NewCibaService(configRepo domain.ConfigurationRepository, grantRepo domain.CibaGrantRepository, hintResolver *UserHintResolver, tokenCreator *TokenCreator, notifier NotificationClient, logger applog.Logger) *CibaService {
	return &CibaService{
		configRepo:   configRepo,
		grantRepo:    grantRepo,
		hintResolver: hintResolver,
		tokenCreator: tokenCreator,
		notifier:     notifier,
		logger:       logger,
	}
}

// Request accepts a backchannel authentication request from an already
// authenticated client and opens a PENDING transaction.
func (s *CibaService) Request(ctx context.Context, cctx *domain.CibaRequestContext) (*CibaBackchannelResponse, error) {
	clientConfig := cctx.ClientConfig
	serverConfig := cctx.ServerConfig

	if !clientConfig.SupportsGrantType(domain.GrantTypeCiba) || !serverConfig.SupportsGrantType(domain.GrantTypeCiba) {
		return nil, serrors.NewUnauthorizedClient("client is not registered for backchannel authentication")
	}

	scopes := clientConfig.FilterScopes(domain.SplitScope(cctx.Param("scope")))
	if len(scopes) == 0 {
		return nil, serrors.NewInvalidScope("scope is required")
	}

	mode := clientConfig.CibaNotificationMode
	if mode == "" {
		mode = domain.CibaModePoll
	}
	notificationToken := cctx.Param("client_notification_token")
	if mode != domain.CibaModePoll && notificationToken == "" {
		return nil, serrors.NewInvalidRequest("client_notification_token is required for ping and push clients")
	}

	bindingMessage := cctx.Param("binding_message")
	if len(bindingMessage) > maxBindingMessageLength {
		return nil, serrors.NewBadRequest("invalid_binding_message", "binding_message is too long")
	}

	hints := UserHints{
		LoginHint:   cctx.Param("login_hint"),
		IDTokenHint: cctx.Param("id_token_hint"),
	}
	if hints.LoginHint == "" && hints.IDTokenHint == "" {
		return nil, serrors.NewInvalidRequest("one of login_hint or id_token_hint is required")
	}
	user := s.hintResolver.Resolve(ctx, serverConfig.Issuer, hints)
	if !user.Exists() {
		return nil, serrors.NewBadRequest(serrors.UnknownUserID, "the hint did not identify a known user")
	}

	var details []domain.AuthorizationDetail
	if raw := cctx.Param("authorization_details"); raw != "" {
		parsed, err := domain.ParseAuthorizationDetails(raw)
		if err != nil {
			return nil, serrors.NewInvalidRequest("authorization_details is malformed")
		}
		details = parsed
	}

	now := time.Now()
	grant := &domain.CibaGrant{
		AuthReqID:               uuid.NewString(),
		Issuer:                  serverConfig.Issuer,
		ClientID:                clientConfig.ClientID,
		Status:                  domain.CibaGrantStatusPending,
		UserID:                  user.ID,
		Scope:                   domain.JoinScope(scopes),
		Claims:                  cctx.Param("claims"),
		BindingMessage:          bindingMessage,
		AuthorizationDetails:    details,
		ClientNotificationToken: notificationToken,
		NotificationMode:        mode,
		Interval:                serverConfig.CibaPollInterval,
		ExpiresAt:               now.Add(serverConfig.CibaExpiry),
		CreatedAt:               now,
	}

	if err := s.grantRepo.Register(ctx, grant); err != nil {
		s.logger.Error(ctx, "ciba grant registration failed", err, map[string]interface{}{"client_id": clientConfig.ClientID})
		return nil, serrors.NewServerError("backchannel authentication unavailable")
	}

	s.logger.Info(ctx, "backchannel authentication requested", map[string]interface{}{
		"client_id":   clientConfig.ClientID,
		"auth_req_id": grant.AuthReqID,
		"mode":        string(mode),
	})

	return &CibaBackchannelResponse{
		AuthReqID: grant.AuthReqID,
		ExpiresIn: int64(time.Until(grant.ExpiresAt).Seconds()),
		Interval:  grant.Interval,
	}, nil
}

// Authorize records the end-user's approval. The state transition is made
// durable first; ping and push notifications follow asynchronously and their
// failure never rolls the decision back.
func (s *CibaService) Authorize(ctx context.Context, issuer, authReqID string, evidence map[string]string) error {
	grant, err := s.pendingGrant(ctx, issuer, authReqID)
	if err != nil {
		return err
	}

	grant.Status = domain.CibaGrantStatusAuthorized
	grant.AuthenticationEvidence = evidence
	if err := s.grantRepo.Update(ctx, grant); err != nil {
		s.logger.Error(ctx, "ciba authorize transition failed", err, map[string]interface{}{"auth_req_id": authReqID})
		return serrors.NewServerError("backchannel authentication unavailable")
	}

	switch grant.NotificationMode {
	case domain.CibaModePing:
		s.dispatch(ctx, grant, map[string]any{"auth_req_id": grant.AuthReqID})
	case domain.CibaModePush:
		s.pushTokens(ctx, grant)
	}
	return nil
}

// Deny records the end-user's refusal. Ping and push clients are told the
// transaction finished; the outcome itself stays server side.
func (s *CibaService) Deny(ctx context.Context, issuer, authReqID string) error {
	grant, err := s.pendingGrant(ctx, issuer, authReqID)
	if err != nil {
		return err
	}

	if err := s.grantRepo.UpdateStatus(ctx, issuer, authReqID, domain.CibaGrantStatusDenied); err != nil {
		s.logger.Error(ctx, "ciba deny transition failed", err, map[string]interface{}{"auth_req_id": authReqID})
		return serrors.NewServerError("backchannel authentication unavailable")
	}

	if grant.NotificationMode != domain.CibaModePoll {
		payload := map[string]any{"auth_req_id": grant.AuthReqID}
		if grant.NotificationMode == domain.CibaModePush {
			payload["error"] = serrors.AccessDenied
			payload["error_description"] = "the end-user denied the authorization request"
		}
		s.dispatch(ctx, grant, payload)
	}
	return nil
}

func (s *CibaService) pendingGrant(ctx context.Context, issuer, authReqID string) (*domain.CibaGrant, error) {
	grant, err := s.grantRepo.Find(ctx, issuer, authReqID)
	if err != nil {
		return nil, serrors.NewNotFound(serrors.InvalidGrant, "auth_req_id is unknown")
	}
	if grant.Expired(time.Now()) {
		if err := s.grantRepo.UpdateStatus(ctx, issuer, authReqID, domain.CibaGrantStatusExpired); err != nil {
			s.logger.Warn(ctx, "ciba expiry transition failed", map[string]interface{}{"auth_req_id": authReqID, "error": err.Error()})
		}
		return nil, serrors.ErrExpiredToken
	}
	if grant.Status != domain.CibaGrantStatusPending {
		return nil, serrors.NewInvalidGrant("the transaction has already completed")
	}
	return grant, nil
}

// pushTokens mints the token set for a push client and delivers it. The
// grant is consumed before delivery so the token endpoint can never hand out
// a second set for the same transaction.
func (s *CibaService) pushTokens(ctx context.Context, grant *domain.CibaGrant) {
	serverConfig, err := s.configRepo.GetServerConfiguration(ctx, grant.Issuer)
	if err != nil {
		s.logger.Error(ctx, "push delivery aborted, issuer lookup failed", err, map[string]interface{}{"auth_req_id": grant.AuthReqID})
		return
	}
	clientConfig, err := s.configRepo.GetClientConfiguration(ctx, grant.Issuer, grant.ClientID)
	if err != nil {
		s.logger.Error(ctx, "push delivery aborted, client lookup failed", err, map[string]interface{}{"auth_req_id": grant.AuthReqID})
		return
	}

	consumed, err := s.grantRepo.Consume(ctx, grant.Issuer, grant.AuthReqID)
	if err != nil {
		s.logger.Error(ctx, "push delivery aborted, grant consume failed", err, map[string]interface{}{"auth_req_id": grant.AuthReqID})
		return
	}

	authGrant := domain.AuthorizationGrant{
		Issuer:               consumed.Issuer,
		ClientID:             consumed.ClientID,
		Subject:              consumed.UserID,
		Scope:                consumed.Scope,
		AuthTime:             time.Now().Unix(),
		AuthorizationDetails: consumed.AuthorizationDetails,
	}
	token, err := s.tokenCreator.Create(ctx, serverConfig, clientConfig, authGrant, TokenOptions{
		IncludeRefreshToken: true,
		IncludeIDToken:      true,
		AuthTime:            authGrant.AuthTime,
	})
	if err != nil {
		s.logger.Error(ctx, "push delivery aborted, token minting failed", err, map[string]interface{}{"auth_req_id": grant.AuthReqID})
		return
	}

	resp := Response(token)
	payload := map[string]any{
		"auth_req_id":   consumed.AuthReqID,
		"access_token":  resp.AccessToken,
		"token_type":    resp.TokenType,
		"expires_in":    resp.ExpiresIn,
		"refresh_token": resp.RefreshToken,
		"id_token":      resp.IDToken,
	}
	s.dispatch(ctx, consumed, payload)
}

// dispatch delivers a notification without blocking the caller. The parent
// request may finish long before the client endpoint answers.
func (s *CibaService) dispatch(ctx context.Context, grant *domain.CibaGrant, payload map[string]any) {
	clientConfig, err := s.configRepo.GetClientConfiguration(ctx, grant.Issuer, grant.ClientID)
	if err != nil || clientConfig.CibaNotificationEndpoint == "" {
		s.logger.Warn(ctx, "notification skipped, no endpoint registered", map[string]interface{}{"auth_req_id": grant.AuthReqID})
		return
	}

	notification := CibaNotification{
		Endpoint:    clientConfig.CibaNotificationEndpoint,
		BearerToken: grant.ClientNotificationToken,
		Payload:     payload,
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		if err := s.notifier.Notify(detached, notification); err != nil {
			s.logger.Warn(detached, "notification delivery failed", map[string]interface{}{
				"auth_req_id": grant.AuthReqID,
				"error":       err.Error(),
			})
		}
	}()
}
