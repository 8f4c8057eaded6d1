package domain

// AuthorizationDetail is one entry of an RFC 9396 authorization_details array.
// Only the common fields are modelled; type-specific members stay in Extra.
type AuthorizationDetail struct {
	Type       string         `bson:"type" json:"type"`
	Locations  []string       `bson:"locations,omitempty" json:"locations,omitempty"`
	Actions    []string       `bson:"actions,omitempty" json:"actions,omitempty"`
	Datatypes  []string       `bson:"datatypes,omitempty" json:"datatypes,omitempty"`
	Identifier string         `bson:"identifier,omitempty" json:"identifier,omitempty"`
	Privileges []string       `bson:"privileges,omitempty" json:"privileges,omitempty"`
	Extra      map[string]any `bson:"extra,omitempty" json:"-"`
}

// CredentialDetailType is the authorization detail type that requests issuance
// of a verifiable credential (OpenID4VCI).
const CredentialDetailType = "openid_credential"

// AuthorizationGrant is the approved authorization from which tokens are
// minted: who approved what, for which client. Immutable once built.
type AuthorizationGrant struct {
	Issuer               string                `bson:"issuer" json:"issuer"`
	ClientID             string                `bson:"client_id" json:"client_id"`
	Subject              string                `bson:"subject,omitempty" json:"subject,omitempty"`
	Scope                string                `bson:"scope" json:"scope"`
	Nonce                string                `bson:"nonce,omitempty" json:"nonce,omitempty"`
	AuthTime             int64                 `bson:"auth_time,omitempty" json:"auth_time,omitempty"`
	AuthorizationDetails []AuthorizationDetail `bson:"authorization_details,omitempty" json:"authorization_details,omitempty"`
	CustomProperties     map[string]string     `bson:"custom_properties,omitempty" json:"custom_properties,omitempty"`
}

// HasCredentialDetail reports whether the grant carries an openid_credential
// authorization detail, which triggers c_nonce issuance on the token response.
func (g AuthorizationGrant) HasCredentialDetail() bool {
	for _, d := range g.AuthorizationDetails {
		if d.Type == CredentialDetailType {
			return true
		}
	}
	return false
}
