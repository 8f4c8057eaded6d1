package services

import (
	"context"
	"errors"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// TokenEndpointService is the token endpoint front door: it authenticates
// the client, checks grant-type policy on both tenant and client, and
// dispatches to the registered grant service.
type TokenEndpointService struct {
	configRepo    domain.ConfigurationRepository
	authenticator *ClientAuthenticator
	registry      *GrantRegistry
	logger        applog.Logger
}

func NewTokenEndpointService(configRepo domain.ConfigurationRepository, authenticator *ClientAuthenticator, registry *GrantRegistry, logger applog.Logger) *TokenEndpointService {
	return &TokenEndpointService{
		configRepo:    configRepo,
		authenticator: authenticator,
		registry:      registry,
		logger:        logger,
	}
}

func (s *TokenEndpointService) Issue(ctx context.Context, issuer string, req ClientAuthRequest) (*TokenResponse, error) {
	serverConfig, clientConfig, credentials, err := s.authenticate(ctx, issuer, req)
	if err != nil {
		return nil, err
	}

	grantType := domain.GrantType(req.Params.Get("grant_type"))
	if grantType == "" {
		return nil, serrors.NewInvalidRequest("grant_type is required")
	}
	if !serverConfig.SupportsGrantType(grantType) {
		return nil, serrors.NewUnsupportedGrantType()
	}
	if !clientConfig.SupportsGrantType(grantType) {
		return nil, serrors.NewUnauthorizedClient("client is not registered for this grant_type")
	}

	service, ok := s.registry.Resolve(grantType)
	if !ok {
		return nil, serrors.NewUnsupportedGrantType()
	}

	return service.Issue(ctx, &TokenRequest{
		Params:            req.Params,
		ServerConfig:      serverConfig,
		ClientConfig:      clientConfig,
		Credentials:       credentials,
		ClientCertificate: req.ClientCertificate,
	})
}

// AuthenticateBackchannel performs client resolution and authentication for
// the backchannel authentication endpoint, which shares the token endpoint's
// client authentication rules. A signed request object carries the same
// precedence guarantee as on the front channel: once verified, parameter
// reads come from its claims, never from the outer POST body.
func (s *TokenEndpointService) AuthenticateBackchannel(ctx context.Context, issuer string, req ClientAuthRequest) (*domain.CibaRequestContext, error) {
	serverConfig, clientConfig, _, err := s.authenticate(ctx, issuer, req)
	if err != nil {
		return nil, err
	}

	cctx := &domain.CibaRequestContext{
		Pattern:      domain.RequestPatternNormal,
		Parameters:   req.Params,
		ServerConfig: serverConfig,
		ClientConfig: clientConfig,
	}
	switch {
	case req.Params.Has("request"):
		joseCtx, err := verifyClientRequestObject(req.Params.Get("request"), clientConfig)
		if err != nil {
			return nil, err
		}
		cctx.Pattern = domain.RequestPatternRequestObject
		cctx.RequestObjectClaims = joseCtx.Claims
	case clientConfig.RequireSignedRequestObject:
		return nil, serrors.NewInvalidRequestObject("client requires a signed request object")
	}
	return cctx, nil
}

func (s *TokenEndpointService) authenticate(ctx context.Context, issuer string, req ClientAuthRequest) (*domain.ServerConfiguration, *domain.ClientConfiguration, domain.ClientCredentials, error) {
	var none domain.ClientCredentials

	serverConfig, err := s.configRepo.GetServerConfiguration(ctx, issuer)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, nil, none, serrors.NewInvalidRequest("unknown issuer")
		}
		s.logger.Error(ctx, "issuer lookup failed", err, map[string]interface{}{"issuer": issuer})
		return nil, nil, none, serrors.NewServerError("token issuance unavailable")
	}

	clientID := ResolveClientID(req)
	if clientID == "" {
		return nil, nil, none, serrors.NewInvalidClient("client identity could not be determined")
	}

	clientConfig, err := s.configRepo.GetClientConfiguration(ctx, issuer, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, nil, none, serrors.NewInvalidClient("unknown client")
		}
		s.logger.Error(ctx, "client lookup failed", err, map[string]interface{}{"client_id": clientID})
		return nil, nil, none, serrors.NewServerError("token issuance unavailable")
	}

	credentials, err := s.authenticator.Authenticate(ctx, serverConfig, clientConfig, req)
	if err != nil {
		s.logger.Info(ctx, "client authentication failed", map[string]interface{}{
			"client_id": clientID,
			"method":    string(clientConfig.AuthMethod),
		})
		return nil, nil, none, err
	}

	return serverConfig, clientConfig, credentials, nil
}
