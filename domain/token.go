package domain

import "time"

// GrantType identifies a token-endpoint grant.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeClientCredentials GrantType = "client_credentials"
	GrantTypeRefreshToken      GrantType = "refresh_token"
	GrantTypeCiba              GrantType = "urn:openid:params:grant-type:ciba"
)

// AccessToken is the issued access token and its binding material.
type AccessToken struct {
	Value string `bson:"value" json:"value"`
	// SignedValue is the JWT form when the tenant issues structured tokens.
	SignedValue string    `bson:"signed_value,omitempty" json:"signed_value,omitempty"`
	Issuer      string    `bson:"issuer" json:"issuer"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
	// CertificateThumbprint is the cnf x5t#S256 value for mTLS-bound tokens.
	CertificateThumbprint string `bson:"certificate_thumbprint,omitempty" json:"certificate_thumbprint,omitempty"`
}

// RefreshToken is the rotating refresh credential tied to a token lineage.
type RefreshToken struct {
	Value     string    `bson:"value" json:"value"`
	Issuer    string    `bson:"issuer" json:"issuer"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

// OAuthToken aggregates the tokens minted by one grant execution, together
// with the grant they came from. Rotation replaces the whole aggregate.
type OAuthToken struct {
	ID           string             `bson:"_id" json:"id"`
	Issuer       string             `bson:"issuer" json:"issuer"`
	AccessToken  AccessToken        `bson:"access_token" json:"access_token"`
	RefreshToken *RefreshToken      `bson:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	IDToken      string             `bson:"id_token,omitempty" json:"id_token,omitempty"`
	Grant        AuthorizationGrant `bson:"grant" json:"grant"`
	// CNonce is the credential-issuance nonce minted alongside tokens for
	// grants carrying an openid_credential authorization detail.
	CNonce          string    `bson:"c_nonce,omitempty" json:"c_nonce,omitempty"`
	CNonceExpiresAt time.Time `bson:"c_nonce_expires_at,omitempty" json:"c_nonce_expires_at,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

// CertificateBound reports whether the access token is mTLS bound.
func (t *OAuthToken) CertificateBound() bool {
	return t.AccessToken.CertificateThumbprint != ""
}

// AuthorizationCode is the single-use credential minted by the code flow.
// It carries everything the token grant needs from the original request so
// the exchange does not have to re-read the AuthorizationRequest.
type AuthorizationCode struct {
	Code                   string                `bson:"_id" json:"code"`
	Issuer                 string                `bson:"issuer" json:"issuer"`
	AuthorizationRequestID string                `bson:"authorization_request_id" json:"authorization_request_id"`
	ClientID               string                `bson:"client_id" json:"client_id"`
	UserID                 string                `bson:"user_id" json:"user_id"`
	RedirectURI            string                `bson:"redirect_uri,omitempty" json:"redirect_uri,omitempty"`
	Scope                  string                `bson:"scope" json:"scope"`
	Nonce                  string                `bson:"nonce,omitempty" json:"nonce,omitempty"`
	AuthTime               int64                 `bson:"auth_time,omitempty" json:"auth_time,omitempty"`
	CodeChallenge          string                `bson:"code_challenge,omitempty" json:"code_challenge,omitempty"`
	CodeChallengeMethod    string                `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
	AuthorizationDetails   []AuthorizationDetail `bson:"authorization_details,omitempty" json:"authorization_details,omitempty"`
	CustomProperties       map[string]string     `bson:"custom_properties,omitempty" json:"custom_properties,omitempty"`
	Consumed               bool                  `bson:"consumed" json:"consumed"`
	ExpiresAt              time.Time             `bson:"expires_at" json:"expires_at"`
	CreatedAt              time.Time             `bson:"created_at" json:"created_at"`
}
