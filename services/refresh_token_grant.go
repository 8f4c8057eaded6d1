package services

import (
	"context"
	"errors"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// RefreshTokenGrantService rotates a token lineage. The old aggregate is
// removed atomically before the new one is minted, so concurrent redemptions
// of the same refresh token yield exactly one success.
type RefreshTokenGrantService struct {
	tokenRepo    domain.TokenRepository
	tokenCreator *TokenCreator
	logger       applog.Logger
}

func NewRefreshTokenGrantService(tokenRepo domain.TokenRepository, tokenCreator *TokenCreator, logger applog.Logger) *RefreshTokenGrantService {
	return &RefreshTokenGrantService{tokenRepo: tokenRepo, tokenCreator: tokenCreator, logger: logger}
}

func (s *RefreshTokenGrantService) GrantType() domain.GrantType {
	return domain.GrantTypeRefreshToken
}

func (s *RefreshTokenGrantService) Issue(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	refreshToken := req.Params.Get("refresh_token")
	if refreshToken == "" {
		return nil, serrors.NewInvalidRequest("refresh_token is required")
	}

	previous, err := s.tokenRepo.ConsumeByRefreshToken(ctx, req.ServerConfig.Issuer, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, serrors.NewInvalidGrant("refresh token is invalid or already rotated")
		}
		s.logger.Error(ctx, "refresh token lookup failed", err, map[string]interface{}{"client_id": req.Credentials.ClientID})
		return nil, serrors.NewServerError("token issuance unavailable")
	}

	if previous.Grant.ClientID != req.Credentials.ClientID {
		s.restore(ctx, previous)
		return nil, serrors.NewInvalidGrant("refresh token was issued to another client")
	}
	if previous.RefreshToken == nil || time.Now().After(previous.RefreshToken.ExpiresAt) {
		s.restore(ctx, previous)
		return nil, serrors.NewInvalidGrant("refresh token is expired")
	}

	scope := previous.Grant.Scope
	if requested := domain.SplitScope(req.Params.Get("scope")); len(requested) > 0 {
		narrowed := intersectScopes(domain.SplitScope(scope), requested)
		if len(narrowed) == 0 {
			s.restore(ctx, previous)
			return nil, serrors.NewInvalidScope("requested scope exceeds the original grant")
		}
		scope = domain.JoinScope(narrowed)
	}

	grant := previous.Grant
	grant.Scope = scope

	opts := TokenOptions{
		IncludeRefreshToken:   req.ClientConfig.RefreshTokenRotation,
		IncludeIDToken:        true,
		CertificateThumbprint: req.BindingThumbprint(),
		Nonce:                 grant.Nonce,
		AuthTime:              grant.AuthTime,
	}
	// Non-rotating clients keep redeeming the same refresh token, so the
	// consumed aggregate's credential is carried over to the new one.
	if !req.ClientConfig.RefreshTokenRotation {
		opts.ReuseRefreshToken = previous.RefreshToken
	}

	token, err := s.tokenCreator.Create(ctx, req.ServerConfig, req.ClientConfig, grant, opts)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "refresh token rotated", map[string]interface{}{
		"client_id": req.Credentials.ClientID,
		"issuer":    req.ServerConfig.Issuer,
		"rotated":   req.ClientConfig.RefreshTokenRotation,
	})

	return Response(token), nil
}

// restore re-registers a consumed aggregate after a validation failure. The
// rotation boundary only destroys the lineage when a new aggregate replaces
// it; a rejected redemption leaves the credential intact.
func (s *RefreshTokenGrantService) restore(ctx context.Context, token *domain.OAuthToken) {
	if err := s.tokenRepo.Register(ctx, token); err != nil {
		s.logger.Error(ctx, "refresh token aggregate restore failed", err, map[string]interface{}{
			"client_id": token.Grant.ClientID,
			"issuer":    token.Issuer,
		})
	}
}

// intersectScopes keeps requested values present in the original grant,
// preserving request order.
func intersectScopes(granted, requested []string) []string {
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range requested {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
