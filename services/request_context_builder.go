package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/jose"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// RequestObjectFetcher dereferences a request_uri into the compact JWT it
// points at. Fetching is a transport concern; the engine only consumes the
// result.
type RequestObjectFetcher interface {
	Fetch(ctx context.Context, requestURI string) (string, error)
}

// RequestContextBuilder classifies an inbound authorization request and
// produces the immutable OAuthRequestContext the verification pipeline runs
// against.
type RequestContextBuilder struct {
	configRepo domain.ConfigurationRepository
	fetcher    RequestObjectFetcher
	logger     applog.Logger
}

// NewRequestContextBuilder creates a new builder instance.
func NewRequestContextBuilder(configRepo domain.ConfigurationRepository, fetcher RequestObjectFetcher, logger applog.Logger) *RequestContextBuilder {
	return &RequestContextBuilder{
		configRepo: configRepo,
		fetcher:    fetcher,
		logger:     logger,
	}
}

// Build resolves tenant and client policy, detects the request pattern and
// profile, and verifies the request object when one is present. After Build
// returns, every parameter read goes through the context, which sources
// REQUEST_OBJECT / REQUEST_URI patterns exclusively from verified JWT claims.
func (b *RequestContextBuilder) Build(ctx context.Context, issuer string, values url.Values) (*domain.OAuthRequestContext, error) {
	params := domain.NewRequestParameters(values)

	if name, dup := params.Duplicated(); dup {
		return nil, serrors.NewInvalidRequest(fmt.Sprintf("parameter %q must not be repeated", name))
	}

	serverConfig, err := b.configRepo.GetServerConfiguration(ctx, issuer)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, serrors.NewInvalidRequest("unknown issuer")
		}
		return nil, serrors.NewServerError("failed to resolve server configuration")
	}

	clientID := params.Get("client_id")
	if clientID == "" {
		return nil, serrors.NewInvalidRequest("client_id is required")
	}
	clientConfig, err := b.configRepo.GetClientConfiguration(ctx, issuer, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, serrors.NewInvalidRequest("unknown client")
		}
		return nil, serrors.NewServerError("failed to resolve client configuration")
	}

	pattern, requestObject, err := b.resolveRequestObject(ctx, params, clientConfig)
	if err != nil {
		return nil, err
	}

	var claims map[string]any
	if pattern != domain.RequestPatternNormal {
		joseCtx, err := verifyClientRequestObject(requestObject, clientConfig)
		if err != nil {
			return nil, err
		}
		claims = joseCtx.Claims
	}

	octx := &domain.OAuthRequestContext{
		Pattern:             pattern,
		Parameters:          params,
		RequestObjectClaims: claims,
		ServerConfig:        serverConfig,
		ClientConfig:        clientConfig,
	}
	octx.Profile = detectProfile(octx)

	b.logger.Debug(ctx, "authorization request context built", map[string]interface{}{
		"issuer": issuer, "client_id": clientID,
		"pattern": string(pattern), "profile": string(octx.Profile),
	})
	return octx, nil
}

// resolveRequestObject detects the pattern and, for REQUEST_URI, dereferences
// the URI. The fetched JWT is processed identically to an inline one.
func (b *RequestContextBuilder) resolveRequestObject(ctx context.Context, params domain.RequestParameters, clientConfig *domain.ClientConfiguration) (domain.RequestPattern, string, error) {
	switch {
	case params.Has("request"):
		return domain.RequestPatternRequestObject, params.Get("request"), nil
	case params.Has("request_uri"):
		if b.fetcher == nil {
			return "", "", serrors.NewInvalidRequestObject("request_uri is not supported")
		}
		requestObject, err := b.fetcher.Fetch(ctx, params.Get("request_uri"))
		if err != nil {
			return "", "", serrors.NewInvalidRequestObject("request_uri could not be dereferenced")
		}
		return domain.RequestPatternRequestURI, requestObject, nil
	default:
		if clientConfig.RequireSignedRequestObject {
			return "", "", serrors.NewInvalidRequestObject("client requires a signed request object")
		}
		return domain.RequestPatternNormal, "", nil
	}
}

// verifyClientRequestObject checks a request object JWT against the client's
// registered key set and signing-algorithm policy. Both the front channel and
// the backchannel authentication endpoint go through it.
func verifyClientRequestObject(requestObject string, clientConfig *domain.ClientConfiguration) (*jose.Context, error) {
	if clientConfig.JWKS == "" {
		return nil, serrors.NewInvalidRequestObject("client has no registered keys")
	}
	joseCtx, err := jose.VerifyWithJWKS(requestObject, clientConfig.JWKS)
	if err != nil {
		return nil, serrors.NewInvalidRequestObject("request object signature verification failed")
	}
	if alg := clientConfig.RequestObjectSigningAlg; alg != "" && joseCtx.Algorithm != alg {
		return nil, serrors.NewInvalidRequestObject(fmt.Sprintf("request object must be signed with %s", alg))
	}
	return joseCtx, nil
}

// detectProfile escalates OAUTH2 -> OIDC -> FAPI according to the requested
// scopes and the registered client policy.
func detectProfile(octx *domain.OAuthRequestContext) domain.Profile {
	profile := domain.ProfileOAuth2
	scopes := octx.Scopes()
	if domain.ContainsScope(scopes, "openid") {
		profile = domain.ProfileOIDC
	}
	for _, s := range scopes {
		if domain.ContainsScope(octx.ServerConfig.FAPIBaselineScopes, s) {
			profile = domain.ProfileFAPIBaseline
		}
	}
	for _, s := range scopes {
		if domain.ContainsScope(octx.ServerConfig.FAPIAdvanceScopes, s) {
			profile = domain.ProfileFAPIAdvance
		}
	}
	switch octx.ClientConfig.FAPIProfile {
	case domain.ProfileFAPIBaseline:
		if profile != domain.ProfileFAPIAdvance {
			profile = domain.ProfileFAPIBaseline
		}
	case domain.ProfileFAPIAdvance:
		profile = domain.ProfileFAPIAdvance
	}
	return profile
}
