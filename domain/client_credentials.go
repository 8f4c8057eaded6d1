package domain

// ClientAuthMethod is a token-endpoint client authentication method.
type ClientAuthMethod string

const (
	ClientAuthNone                ClientAuthMethod = "none"
	ClientAuthSecretBasic         ClientAuthMethod = "client_secret_basic"
	ClientAuthSecretPost          ClientAuthMethod = "client_secret_post"
	ClientAuthPrivateKeyJWT       ClientAuthMethod = "private_key_jwt"
	ClientAuthTLSClientAuth       ClientAuthMethod = "tls_client_auth"
	ClientAuthSelfSignedTLSClient ClientAuthMethod = "self_signed_tls_client_auth"
)

// ClientCredentials is the outcome of client authentication: which client was
// authenticated, how, and the evidence other components may inspect.
// Built once per request; immutable.
type ClientCredentials struct {
	ClientID string           `json:"client_id"`
	Method   ClientAuthMethod `json:"method"`
	// AssertionClaims holds the verified client assertion payload when the
	// method was private_key_jwt.
	AssertionClaims map[string]any `json:"assertion_claims,omitempty"`
	// CertificateThumbprint is the SHA-256 DER thumbprint of the presented
	// client certificate for the tls methods.
	CertificateThumbprint string `json:"certificate_thumbprint,omitempty"`
	// SecretMatched is true when a shared secret method succeeded.
	SecretMatched bool `json:"secret_matched,omitempty"`
}

// Public reports whether the client authenticated without any credential.
func (c ClientCredentials) Public() bool {
	return c.Method == ClientAuthNone
}
