package services

import (
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
)

// AuthorizationRequestVerifier is one conditionally-skippable step of the
// verification pipeline. ShouldNotVerify is the skip predicate; Verify
// returns a typed protocol error instead of panicking or throwing, so every
// verifier can be exercised in isolation.
type AuthorizationRequestVerifier interface {
	Name() string
	ShouldNotVerify(octx *domain.OAuthRequestContext) bool
	Verify(octx *domain.OAuthRequestContext) error
}

// VerificationPipeline runs verifiers in a fixed, documented order and fails
// fast on the first error. Order: base, OIDC profile, then the extension
// verifiers (PKCE, JARM, RAR, credential). The OIDC verifier confirms
// redirect_uri validity before any other profile check because later errors
// are delivered by redirecting to it.
type VerificationPipeline struct {
	verifiers []AuthorizationRequestVerifier
}

// NewVerificationPipeline assembles the standard verifier chain plus any
// externally registered extensions. Assembly is an explicit composition-root
// call; there is no runtime discovery.
func NewVerificationPipeline(extensions ...AuthorizationRequestVerifier) *VerificationPipeline {
	verifiers := []AuthorizationRequestVerifier{
		&BaseVerifier{},
		&OIDCVerifier{},
		&PKCEVerifier{},
		&JARMVerifier{},
		&RARVerifier{},
		&CredentialVerifier{},
	}
	verifiers = append(verifiers, extensions...)
	return &VerificationPipeline{verifiers: verifiers}
}

// Verify runs the chain. A failure in any verifier aborts immediately; there
// is no aggregation across verifiers.
func (p *VerificationPipeline) Verify(octx *domain.OAuthRequestContext) error {
	for _, v := range p.verifiers {
		if v.ShouldNotVerify(octx) {
			continue
		}
		if err := v.Verify(octx); err != nil {
			return err
		}
	}
	return nil
}

// establishedRedirectURI returns the redirect_uri when it is present and
// exactly matches a registered URI, which is the precondition for
// redirect-based error delivery.
func establishedRedirectURI(octx *domain.OAuthRequestContext) string {
	uri := octx.Param("redirect_uri")
	if uri != "" && octx.ClientConfig.HasRedirectURI(uri) {
		return uri
	}
	return ""
}

// protocolError builds a redirectable bad request when a trustworthy
// redirect_uri is established, a direct bad request otherwise.
func protocolError(octx *domain.OAuthRequestContext, code, description string) error {
	if uri := establishedRedirectURI(octx); uri != "" {
		return serrors.NewRedirectableBadRequest(code, description, uri).WithState(octx.Param("state"))
	}
	return serrors.NewBadRequest(code, description)
}

// BaseVerifier always runs: response_type must be present, known, and
// supported by both the server and the client, and the scope must remain
// non-empty after filtering against the client's registration.
type BaseVerifier struct{}

func (v *BaseVerifier) Name() string { return "base" }

func (v *BaseVerifier) ShouldNotVerify(_ *domain.OAuthRequestContext) bool { return false }

func (v *BaseVerifier) Verify(octx *domain.OAuthRequestContext) error {
	// A presented redirect_uri that does not match the registration is a
	// parameter-shape failure: no redirect target is trustworthy yet.
	if uri := octx.Param("redirect_uri"); uri != "" && !octx.ClientConfig.HasRedirectURI(uri) {
		return serrors.NewInvalidRequest("redirect_uri does not match any registered redirect URI")
	}

	responseType := domain.ResponseType(octx.Param("response_type"))
	if responseType == "" {
		return protocolError(octx, serrors.InvalidRequest, "response_type is required")
	}
	if !knownResponseType(responseType) {
		return protocolError(octx, serrors.UnsupportedResponseType, "unknown response_type")
	}
	if !octx.ServerConfig.SupportsResponseType(responseType) {
		return protocolError(octx, serrors.UnsupportedResponseType, "response_type is not supported by this server")
	}
	if !octx.ClientConfig.SupportsResponseType(responseType) {
		return protocolError(octx, serrors.UnauthorizedClient, "client is not registered for this response_type")
	}

	filtered := octx.ClientConfig.FilterScopes(octx.Scopes())
	if len(filtered) == 0 {
		return protocolError(octx, serrors.InvalidScope, "no requested scope is registered for this client")
	}
	return nil
}

func knownResponseType(rt domain.ResponseType) bool {
	switch rt {
	case domain.ResponseTypeCode, domain.ResponseTypeToken, domain.ResponseTypeIDToken,
		domain.ResponseTypeCodeIDToken, domain.ResponseTypeCodeToken,
		domain.ResponseTypeCodeTokenIDToken, domain.ResponseTypeTokenIDToken:
		return true
	}
	return false
}

// OIDCVerifier runs for the OIDC and FAPI profiles. redirect_uri presence and
// exact registration match come first; every later failure in the pipeline is
// delivered through that URI.
type OIDCVerifier struct{}

func (v *OIDCVerifier) Name() string { return "oidc" }

func (v *OIDCVerifier) ShouldNotVerify(octx *domain.OAuthRequestContext) bool {
	return octx.Profile == domain.ProfileOAuth2
}

func (v *OIDCVerifier) Verify(octx *domain.OAuthRequestContext) error {
	uri := octx.Param("redirect_uri")
	if uri == "" {
		return serrors.NewInvalidRequest("redirect_uri is required for OpenID Connect requests")
	}
	if !octx.ClientConfig.HasRedirectURI(uri) {
		return serrors.NewInvalidRequest("redirect_uri does not exactly match a registered redirect URI")
	}

	if display := octx.Param("display"); display != "" && !containsString(domain.KnownDisplays, display) {
		return protocolError(octx, serrors.InvalidRequest, "display is invalid")
	}
	if prompt := octx.Param("prompt"); prompt != "" {
		for _, p := range domain.SplitScope(prompt) {
			if !containsString(domain.KnownPrompts, p) {
				return protocolError(octx, serrors.InvalidRequest, "prompt is invalid")
			}
		}
	}
	return nil
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
