package errors

import (
	stderrors "errors"
	"fmt"
)

// Status classifies an engine outcome for the HTTP boundary.
type Status int

const (
	StatusOK Status = iota
	// StatusBadRequest is a malformed request detected before a trustworthy
	// redirect_uri exists; it must be answered directly, never redirected.
	StatusBadRequest
	// StatusRedirectableBadRequest is a protocol violation found after the
	// redirect_uri was established; RFC 6749 4.1.2.1 delivery applies.
	StatusRedirectableBadRequest
	// StatusUnauthorized is a client authentication failure (401-class).
	StatusUnauthorized
	// StatusNotFound is an unknown grant/token/transaction, surfaced as a
	// protocol error such as invalid_grant rather than a bare 404.
	StatusNotFound
	StatusServerError
)

// OAuth2Error represents a standardized OAuth 2.0 protocol error together
// with its delivery classification.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`

	// RedirectURI is set for redirectable errors so the boundary can build
	// the error redirect.
	RedirectURI string `json:"-"`
	status      Status
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Status returns the delivery classification.
func (e *OAuth2Error) Status() Status {
	return e.status
}

// WithState returns a copy carrying the request's state parameter.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	c := *e
	c.State = state
	return &c
}

// Standard OAuth2 / OIDC / CIBA error codes.
const (
	InvalidRequest          = "invalid_request"
	InvalidRequestObject    = "invalid_request_object"
	UnauthorizedClient      = "unauthorized_client"
	AccessDenied            = "access_denied"
	UnsupportedResponseType = "unsupported_response_type"
	UnsupportedGrantType    = "unsupported_grant_type"
	InvalidScope            = "invalid_scope"
	InvalidClient           = "invalid_client"
	InvalidGrant            = "invalid_grant"
	AuthorizationPending    = "authorization_pending"
	SlowDown                = "slow_down"
	ExpiredToken            = "expired_token"
	UnknownUserID           = "unknown_user_id"
	ServerError             = "server_error"
	TemporarilyUnavailable  = "temporarily_unavailable"
)

// NewBadRequest builds a non-redirectable bad request error.
func NewBadRequest(code, description string) *OAuth2Error {
	return &OAuth2Error{Code: code, Description: description, status: StatusBadRequest}
}

// NewRedirectableBadRequest builds a protocol error deliverable by redirect.
func NewRedirectableBadRequest(code, description, redirectURI string) *OAuth2Error {
	return &OAuth2Error{Code: code, Description: description, RedirectURI: redirectURI, status: StatusRedirectableBadRequest}
}

// NewInvalidRequest builds a non-redirectable invalid_request.
func NewInvalidRequest(description string) *OAuth2Error {
	return NewBadRequest(InvalidRequest, description)
}

// NewInvalidRequestObject reports a malformed or unverifiable request object.
func NewInvalidRequestObject(description string) *OAuth2Error {
	return NewBadRequest(InvalidRequestObject, description)
}

// NewInvalidClient reports a client authentication failure (401-class).
func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description, status: StatusUnauthorized}
}

// NewInvalidGrant reports an unknown, expired or consumed grant credential.
func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description, status: StatusBadRequest}
}

// NewNotFound maps a missing grant/token/transaction onto code.
func NewNotFound(code, description string) *OAuth2Error {
	return &OAuth2Error{Code: code, Description: description, status: StatusNotFound}
}

// NewServerError reports an opaque internal failure. The description must not
// carry collaborator exception detail.
func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description, status: StatusServerError}
}

func NewInvalidScope(description string) *OAuth2Error {
	return NewBadRequest(InvalidScope, description)
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return NewBadRequest(UnauthorizedClient, description)
}

func NewUnsupportedGrantType() *OAuth2Error {
	return NewBadRequest(UnsupportedGrantType, "the authorization grant type is not supported")
}

// CIBA token-endpoint polling outcomes.
var (
	ErrAuthorizationPending = &OAuth2Error{Code: AuthorizationPending, Description: "the authorization request is still pending", status: StatusBadRequest}
	ErrSlowDown             = &OAuth2Error{Code: SlowDown, Description: "polling faster than the declared interval", status: StatusBadRequest}
	ErrExpiredToken         = &OAuth2Error{Code: ExpiredToken, Description: "the auth_req_id has expired", status: StatusBadRequest}
	ErrAccessDenied         = &OAuth2Error{Code: AccessDenied, Description: "the end-user denied the authorization request", status: StatusBadRequest}
)

// StatusOf extracts the delivery classification from any error.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var oe *OAuth2Error
	if stderrors.As(err, &oe) {
		return oe.Status()
	}
	return StatusServerError
}

// As unwraps err into an *OAuth2Error, or wraps it as an opaque server error.
func As(err error) *OAuth2Error {
	var oe *OAuth2Error
	if stderrors.As(err, &oe) {
		return oe
	}
	return NewServerError("internal server error")
}
