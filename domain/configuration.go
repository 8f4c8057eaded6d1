package domain

import "time"

// ServerConfiguration is the per-tenant authorization server policy. Loaded
// through the configuration repository, keyed by issuer.
type ServerConfiguration struct {
	Issuer                            string         `bson:"_id" json:"issuer"`
	AuthorizationEndpoint             string         `bson:"authorization_endpoint" json:"authorization_endpoint"`
	TokenEndpoint                     string         `bson:"token_endpoint" json:"token_endpoint"`
	BackchannelAuthenticationEndpoint string         `bson:"backchannel_authentication_endpoint,omitempty" json:"backchannel_authentication_endpoint,omitempty"`
	SupportedResponseTypes            []ResponseType `bson:"supported_response_types" json:"supported_response_types"`
	SupportedGrantTypes               []GrantType    `bson:"supported_grant_types" json:"supported_grant_types"`
	SupportedScopes                   []string       `bson:"supported_scopes" json:"supported_scopes"`
	SupportedAuthorizationDetailTypes []string       `bson:"supported_authorization_detail_types,omitempty" json:"supported_authorization_detail_types,omitempty"`
	// FAPIBaselineScopes and FAPIAdvanceScopes escalate the profile when the
	// request asks for any of the listed scopes.
	FAPIBaselineScopes []string `bson:"fapi_baseline_scopes,omitempty" json:"fapi_baseline_scopes,omitempty"`
	FAPIAdvanceScopes  []string `bson:"fapi_advance_scopes,omitempty" json:"fapi_advance_scopes,omitempty"`

	AuthorizationRequestTTL time.Duration `bson:"authorization_request_ttl" json:"authorization_request_ttl"`
	AuthorizationCodeTTL    time.Duration `bson:"authorization_code_ttl" json:"authorization_code_ttl"`
	AccessTokenTTL          time.Duration `bson:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL         time.Duration `bson:"refresh_token_ttl" json:"refresh_token_ttl"`
	IDTokenTTL              time.Duration `bson:"id_token_ttl" json:"id_token_ttl"`
	CibaExpiry              time.Duration `bson:"ciba_expiry" json:"ciba_expiry"`
	CibaPollInterval        int           `bson:"ciba_poll_interval" json:"ciba_poll_interval"`
	CNonceTTL               time.Duration `bson:"c_nonce_ttl,omitempty" json:"c_nonce_ttl,omitempty"`

	SigningKeyID string `bson:"signing_key_id,omitempty" json:"signing_key_id,omitempty"`
}

// SupportsResponseType reports whether the tenant allows the response type.
func (c *ServerConfiguration) SupportsResponseType(rt ResponseType) bool {
	for _, s := range c.SupportedResponseTypes {
		if s == rt {
			return true
		}
	}
	return false
}

// SupportsGrantType reports whether the tenant allows the grant type.
func (c *ServerConfiguration) SupportsGrantType(gt GrantType) bool {
	for _, s := range c.SupportedGrantTypes {
		if s == gt {
			return true
		}
	}
	return false
}

// ClientConfiguration is the registered client metadata consulted during
// verification and client authentication.
type ClientConfiguration struct {
	ID       string `bson:"_id" json:"id"`
	Issuer   string `bson:"issuer" json:"issuer"`
	ClientID string `bson:"client_id" json:"client_id"`
	// SecretHash is the bcrypt hash of the shared secret for the
	// client_secret_basic / client_secret_post methods.
	SecretHash    string           `bson:"secret_hash,omitempty" json:"-"`
	AuthMethod    ClientAuthMethod `bson:"auth_method" json:"auth_method"`
	RedirectURIs  []string         `bson:"redirect_uris" json:"redirect_uris"`
	ResponseTypes []ResponseType   `bson:"response_types" json:"response_types"`
	GrantTypes    []GrantType      `bson:"grant_types" json:"grant_types"`
	Scopes        []string         `bson:"scopes" json:"scopes"`

	// JWKS is the registered key set (raw JSON) for private_key_jwt and
	// request object verification.
	JWKS string `bson:"jwks,omitempty" json:"jwks,omitempty"`
	// RequestObjectSigningAlg restricts request object algorithms when set.
	RequestObjectSigningAlg    string `bson:"request_object_signing_alg,omitempty" json:"request_object_signing_alg,omitempty"`
	RequireSignedRequestObject bool   `bson:"require_signed_request_object,omitempty" json:"require_signed_request_object,omitempty"`

	// TLSClientCertThumbprint is the registered SHA-256 DER thumbprint for
	// self_signed_tls_client_auth; TLSClientAuthSubjectDN is the expected
	// subject for tls_client_auth.
	TLSClientCertThumbprint string `bson:"tls_client_cert_thumbprint,omitempty" json:"tls_client_cert_thumbprint,omitempty"`
	TLSClientAuthSubjectDN  string `bson:"tls_client_auth_subject_dn,omitempty" json:"tls_client_auth_subject_dn,omitempty"`
	// TLSBoundAccessTokens turns on cnf x5t#S256 binding for issued tokens.
	TLSBoundAccessTokens bool `bson:"tls_bound_access_tokens,omitempty" json:"tls_bound_access_tokens,omitempty"`

	RequirePKCE          bool    `bson:"require_pkce,omitempty" json:"require_pkce,omitempty"`
	RefreshTokenRotation bool    `bson:"refresh_token_rotation,omitempty" json:"refresh_token_rotation,omitempty"`
	FAPIProfile          Profile `bson:"fapi_profile,omitempty" json:"fapi_profile,omitempty"`

	AuthorizationDetailTypes []string `bson:"authorization_detail_types,omitempty" json:"authorization_detail_types,omitempty"`

	CibaNotificationMode     CibaNotificationMode `bson:"ciba_notification_mode,omitempty" json:"ciba_notification_mode,omitempty"`
	CibaNotificationEndpoint string               `bson:"ciba_notification_endpoint,omitempty" json:"ciba_notification_endpoint,omitempty"`
}

// SupportsResponseType reports whether the client registered the response type.
func (c *ClientConfiguration) SupportsResponseType(rt ResponseType) bool {
	for _, s := range c.ResponseTypes {
		if s == rt {
			return true
		}
	}
	return false
}

// SupportsGrantType reports whether the client registered the grant type.
func (c *ClientConfiguration) SupportsGrantType(gt GrantType) bool {
	for _, s := range c.GrantTypes {
		if s == gt {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri exactly matches a registered URI.
func (c *ClientConfiguration) HasRedirectURI(uri string) bool {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return true
		}
	}
	return false
}

// FilterScopes returns the intersection of the requested scope values and the
// client's registered scopes, preserving request order.
func (c *ClientConfiguration) FilterScopes(requested []string) []string {
	var out []string
	for _, req := range requested {
		for _, allowed := range c.Scopes {
			if req == allowed {
				out = append(out, req)
				break
			}
		}
	}
	return out
}
