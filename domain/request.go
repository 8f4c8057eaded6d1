package domain

import "time"

// RequestPattern classifies how an authorization request arrived.
type RequestPattern string

const (
	// RequestPatternNormal is a plain parameter request without a request object.
	RequestPatternNormal RequestPattern = "NORMAL"
	// RequestPatternRequestObject carries a signed JWT in the "request" parameter.
	RequestPatternRequestObject RequestPattern = "REQUEST_OBJECT"
	// RequestPatternRequestURI references a request object by URI. Once the
	// referenced JWT is fetched the request is processed as REQUEST_OBJECT.
	RequestPatternRequestURI RequestPattern = "REQUEST_URI"
)

// Profile is the protocol profile an authorization request is validated under.
type Profile string

const (
	ProfileOAuth2       Profile = "OAUTH2"
	ProfileOIDC         Profile = "OIDC"
	ProfileFAPIBaseline Profile = "FAPI_BASELINE"
	ProfileFAPIAdvance  Profile = "FAPI_ADVANCE"
)

// ResponseType values registered for the authorization endpoint.
type ResponseType string

const (
	ResponseTypeCode             ResponseType = "code"
	ResponseTypeToken            ResponseType = "token"
	ResponseTypeIDToken          ResponseType = "id_token"
	ResponseTypeCodeIDToken      ResponseType = "code id_token"
	ResponseTypeCodeToken        ResponseType = "code token"
	ResponseTypeCodeTokenIDToken ResponseType = "code token id_token"
	ResponseTypeTokenIDToken     ResponseType = "token id_token"
)

// ResponseMode values, including the JARM JWT modes.
type ResponseMode string

const (
	ResponseModeQuery       ResponseMode = "query"
	ResponseModeFragment    ResponseMode = "fragment"
	ResponseModeFormPost    ResponseMode = "form_post"
	ResponseModeQueryJWT    ResponseMode = "query.jwt"
	ResponseModeFragmentJWT ResponseMode = "fragment.jwt"
	ResponseModeFormPostJWT ResponseMode = "form_post.jwt"
	ResponseModeJWT         ResponseMode = "jwt"
)

// IsJWT reports whether the response mode is one of the JARM modes.
func (m ResponseMode) IsJWT() bool {
	switch m {
	case ResponseModeQueryJWT, ResponseModeFragmentJWT, ResponseModeFormPostJWT, ResponseModeJWT:
		return true
	}
	return false
}

// Display values defined by OIDC Core 3.1.2.1.
var KnownDisplays = []string{"page", "popup", "touch", "wap"}

// Prompt values defined by OIDC Core 3.1.2.1.
var KnownPrompts = []string{"none", "login", "consent", "select_account", "create"}

// AuthorizationRequest is the immutable snapshot of a validated front-channel
// request. It is persisted once per authorization attempt and referenced by ID
// from the login/consent steps and later by the code exchange.
type AuthorizationRequest struct {
	ID                     string                `bson:"_id" json:"id"`
	Issuer                 string                `bson:"issuer" json:"issuer"`
	Profile                Profile               `bson:"profile" json:"profile"`
	ResponseType           ResponseType          `bson:"response_type" json:"response_type"`
	ResponseMode           ResponseMode          `bson:"response_mode,omitempty" json:"response_mode,omitempty"`
	ClientID               string                `bson:"client_id" json:"client_id"`
	RedirectURI            string                `bson:"redirect_uri,omitempty" json:"redirect_uri,omitempty"`
	Scope                  string                `bson:"scope" json:"scope"`
	State                  string                `bson:"state,omitempty" json:"state,omitempty"`
	Nonce                  string                `bson:"nonce,omitempty" json:"nonce,omitempty"`
	Display                string                `bson:"display,omitempty" json:"display,omitempty"`
	Prompt                 string                `bson:"prompt,omitempty" json:"prompt,omitempty"`
	MaxAge                 string                `bson:"max_age,omitempty" json:"max_age,omitempty"`
	CodeChallenge          string                `bson:"code_challenge,omitempty" json:"code_challenge,omitempty"`
	CodeChallengeMethod    string                `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
	AuthorizationDetails   []AuthorizationDetail `bson:"authorization_details,omitempty" json:"authorization_details,omitempty"`
	PresentationDefinition string                `bson:"presentation_definition,omitempty" json:"presentation_definition,omitempty"`
	CustomParams           map[string]string     `bson:"custom_params,omitempty" json:"custom_params,omitempty"`
	CreatedAt              time.Time             `bson:"created_at" json:"created_at"`
	ExpiresAt              time.Time             `bson:"expires_at" json:"expires_at"`
}
