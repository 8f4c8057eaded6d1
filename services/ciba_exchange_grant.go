package services

import (
	"context"
	"errors"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// CibaGrantService handles the token-endpoint side of a backchannel
// authentication transaction. Poll and ping clients exchange their
// auth_req_id here; push clients receive tokens out of band and are turned
// away.
type CibaGrantService struct {
	grantRepo    domain.CibaGrantRepository
	tokenCreator *TokenCreator
	logger       applog.Logger
}

func NewCibaGrantService(grantRepo domain.CibaGrantRepository, tokenCreator *TokenCreator, logger applog.Logger) *CibaGrantService {
	return &CibaGrantService{grantRepo: grantRepo, tokenCreator: tokenCreator, logger: logger}
}

func (s *CibaGrantService) GrantType() domain.GrantType {
	return domain.GrantTypeCiba
}

func (s *CibaGrantService) Issue(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	authReqID := req.Params.Get("auth_req_id")
	if authReqID == "" {
		return nil, serrors.NewInvalidRequest("auth_req_id is required")
	}

	grant, err := s.grantRepo.Find(ctx, req.ServerConfig.Issuer, authReqID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, serrors.NewInvalidGrant("auth_req_id is unknown")
		}
		s.logger.Error(ctx, "ciba grant lookup failed", err, map[string]interface{}{"client_id": req.Credentials.ClientID})
		return nil, serrors.NewServerError("token issuance unavailable")
	}

	if grant.ClientID != req.Credentials.ClientID {
		return nil, serrors.NewInvalidGrant("auth_req_id was issued to another client")
	}
	if grant.NotificationMode == domain.CibaModePush {
		return nil, serrors.NewUnauthorizedClient("push clients receive tokens at their notification endpoint")
	}

	// A recorded refusal keeps its protocol answer even after the
	// transaction window has passed.
	if grant.Status == domain.CibaGrantStatusDenied {
		return nil, serrors.ErrAccessDenied
	}

	now := time.Now()
	if grant.Expired(now) && grant.Status != domain.CibaGrantStatusConsumed {
		if grant.Status != domain.CibaGrantStatusExpired {
			if err := s.grantRepo.UpdateStatus(ctx, grant.Issuer, grant.AuthReqID, domain.CibaGrantStatusExpired); err != nil {
				s.logger.Warn(ctx, "ciba expiry transition failed", map[string]interface{}{"auth_req_id": grant.AuthReqID, "error": err.Error()})
			}
		}
		return nil, serrors.ErrExpiredToken
	}

	switch grant.Status {
	case domain.CibaGrantStatusPending:
		return nil, s.pendingResult(ctx, grant, now)
	case domain.CibaGrantStatusExpired:
		return nil, serrors.ErrExpiredToken
	case domain.CibaGrantStatusAuthorized:
		return s.exchange(ctx, req, grant)
	default:
		return nil, serrors.NewInvalidGrant("auth_req_id has already been used")
	}
}

// pendingResult enforces the declared polling interval. A well-behaved
// client sees authorization_pending; a hasty one sees slow_down and its poll
// clock is still advanced, so backing off is the only way forward.
func (s *CibaGrantService) pendingResult(ctx context.Context, grant *domain.CibaGrant, now time.Time) error {
	tooFast := grant.PolledTooFast(now)
	if err := s.grantRepo.UpdateLastPolledAt(ctx, grant.Issuer, grant.AuthReqID); err != nil {
		s.logger.Warn(ctx, "ciba poll timestamp update failed", map[string]interface{}{"auth_req_id": grant.AuthReqID, "error": err.Error()})
	}
	if tooFast {
		return serrors.ErrSlowDown
	}
	return serrors.ErrAuthorizationPending
}

func (s *CibaGrantService) exchange(ctx context.Context, req *TokenRequest, grant *domain.CibaGrant) (*TokenResponse, error) {
	consumed, err := s.grantRepo.Consume(ctx, grant.Issuer, grant.AuthReqID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyConsumed) || errors.Is(err, domain.ErrRecordNotFound) {
			return nil, serrors.NewInvalidGrant("auth_req_id has already been used")
		}
		s.logger.Error(ctx, "ciba grant consume failed", err, map[string]interface{}{"auth_req_id": grant.AuthReqID})
		return nil, serrors.NewServerError("token issuance unavailable")
	}

	authGrant := domain.AuthorizationGrant{
		Issuer:               consumed.Issuer,
		ClientID:             consumed.ClientID,
		Subject:              consumed.UserID,
		Scope:                consumed.Scope,
		AuthTime:             consumed.CreatedAt.Unix(),
		AuthorizationDetails: consumed.AuthorizationDetails,
	}

	token, err := s.tokenCreator.Create(ctx, req.ServerConfig, req.ClientConfig, authGrant, TokenOptions{
		IncludeRefreshToken:   true,
		IncludeIDToken:        true,
		CertificateThumbprint: req.BindingThumbprint(),
		AuthTime:              authGrant.AuthTime,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "ciba grant exchanged", map[string]interface{}{
		"client_id":   consumed.ClientID,
		"auth_req_id": consumed.AuthReqID,
	})

	return Response(token), nil
}
