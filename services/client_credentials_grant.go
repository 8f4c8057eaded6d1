package services

import (
	"context"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// ClientCredentialsGrantService issues tokens for the client itself. No
// refresh token and no ID token are produced for this grant.
type ClientCredentialsGrantService struct {
	tokenCreator *TokenCreator
	logger       applog.Logger
}

func NewClientCredentialsGrantService(tokenCreator *TokenCreator, logger applog.Logger) *ClientCredentialsGrantService {
	return &ClientCredentialsGrantService{tokenCreator: tokenCreator, logger: logger}
}

func (s *ClientCredentialsGrantService) GrantType() domain.GrantType {
	return domain.GrantTypeClientCredentials
}

func (s *ClientCredentialsGrantService) Issue(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.Credentials.Public() {
		return nil, serrors.NewInvalidClient("client_credentials requires an authenticated client")
	}

	requested := domain.SplitScope(req.Params.Get("scope"))
	if len(requested) == 0 {
		requested = req.ClientConfig.Scopes
	}
	granted := req.ClientConfig.FilterScopes(requested)
	if len(granted) == 0 {
		return nil, serrors.NewInvalidScope("no registered scope was requested")
	}

	grant := domain.AuthorizationGrant{
		Issuer:   req.ServerConfig.Issuer,
		ClientID: req.Credentials.ClientID,
		Scope:    domain.JoinScope(granted),
	}

	token, err := s.tokenCreator.Create(ctx, req.ServerConfig, req.ClientConfig, grant, TokenOptions{
		CertificateThumbprint: req.BindingThumbprint(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "client credentials grant issued", map[string]interface{}{
		"client_id": req.Credentials.ClientID,
		"issuer":    req.ServerConfig.Issuer,
	})

	return Response(token), nil
}
