package services

import (
	"context"
	"crypto/x509"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
)

// TokenRequest is the authenticated token-endpoint request handed to a
// grant service. Client authentication has already succeeded by the time a
// grant service sees it.
type TokenRequest struct {
	Params       domain.RequestParameters
	ServerConfig *domain.ServerConfiguration
	ClientConfig *domain.ClientConfiguration
	Credentials  domain.ClientCredentials
	// ClientCertificate is the mTLS certificate on the connection, used for
	// certificate-bound access tokens independently of the auth method.
	ClientCertificate *x509.Certificate
}

// BindingThumbprint returns the x5t#S256 value to embed in minted access
// tokens, or empty when the client is not registered for bound tokens.
func (r *TokenRequest) BindingThumbprint() string {
	if !r.ClientConfig.TLSBoundAccessTokens || r.ClientCertificate == nil {
		return ""
	}
	return CertificateThumbprint(r.ClientCertificate)
}

// GrantService issues tokens for a single grant_type.
type GrantService interface {
	GrantType() domain.GrantType
	Issue(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
}

// GrantRegistry maps grant_type values to their services. Registration
// happens once at composition time, so lookups need no locking.
type GrantRegistry struct {
	services map[domain.GrantType]GrantService
}

func NewGrantRegistry(services ...GrantService) *GrantRegistry {
	registry := &GrantRegistry{services: make(map[domain.GrantType]GrantService, len(services))}
	for _, s := range services {
		registry.services[s.GrantType()] = s
	}
	return registry
}

func (r *GrantRegistry) Resolve(grantType domain.GrantType) (GrantService, bool) {
	s, ok := r.services[grantType]
	return s, ok
}
