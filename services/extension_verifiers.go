package services

import (
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
)

// PKCEVerifier checks the authorize-time half of RFC 7636: the challenge
// shape and method. The verifier/challenge match happens at code exchange.
type PKCEVerifier struct{}

func (v *PKCEVerifier) Name() string { return "pkce" }

func (v *PKCEVerifier) ShouldNotVerify(octx *domain.OAuthRequestContext) bool {
	return !octx.HasParam("code_challenge") && !octx.ClientConfig.RequirePKCE
}

func (v *PKCEVerifier) Verify(octx *domain.OAuthRequestContext) error {
	challenge := octx.Param("code_challenge")
	if challenge == "" {
		// Only reachable when the client registration mandates PKCE.
		return protocolError(octx, serrors.InvalidRequest, "code_challenge is required for this client")
	}
	if len(challenge) < codeVerifierMinLen || len(challenge) > codeVerifierMaxLen {
		return protocolError(octx, serrors.InvalidRequest, "code_challenge length must be 43-128 characters")
	}
	switch octx.Param("code_challenge_method") {
	case "", CodeChallengeMethodPlain, CodeChallengeMethodS256:
		return nil
	default:
		return protocolError(octx, serrors.InvalidRequest, "code_challenge_method must be plain or S256")
	}
}

// JARMVerifier runs when the response_mode is one of the JWT modes.
type JARMVerifier struct{}

func (v *JARMVerifier) Name() string { return "jarm" }

func (v *JARMVerifier) ShouldNotVerify(octx *domain.OAuthRequestContext) bool {
	return !domain.ResponseMode(octx.Param("response_mode")).IsJWT()
}

func (v *JARMVerifier) Verify(octx *domain.OAuthRequestContext) error {
	mode := domain.ResponseMode(octx.Param("response_mode"))
	responseType := domain.ResponseType(octx.Param("response_type"))

	// query.jwt must not carry response types that issue tokens directly:
	// tokens never travel in the query component.
	if mode == domain.ResponseModeQueryJWT && responseType != domain.ResponseTypeCode {
		return protocolError(octx, serrors.InvalidRequest, "response_mode query.jwt is not allowed for token-issuing response types")
	}
	if octx.ClientConfig.JWKS == "" {
		// The authorization response JWT is signed; encrypted responses to
		// a keyless client cannot be registered either.
		return protocolError(octx, serrors.InvalidRequest, "JWT response modes require registered client keys")
	}
	return nil
}

// RARVerifier structurally validates RFC 9396 authorization_details against
// the registered authorization detail types.
type RARVerifier struct{}

func (v *RARVerifier) Name() string { return "rar" }

func (v *RARVerifier) ShouldNotVerify(octx *domain.OAuthRequestContext) bool {
	return !octx.HasParam("authorization_details")
}

func (v *RARVerifier) Verify(octx *domain.OAuthRequestContext) error {
	details, err := octx.AuthorizationDetails()
	if err != nil {
		return protocolError(octx, serrors.InvalidRequest, err.Error())
	}
	registered := octx.ClientConfig.AuthorizationDetailTypes
	if len(registered) == 0 {
		registered = octx.ServerConfig.SupportedAuthorizationDetailTypes
	}
	for _, d := range details {
		if !containsString(registered, d.Type) {
			return protocolError(octx, serrors.InvalidRequest, "authorization_details type is not registered: "+d.Type)
		}
	}
	return nil
}

// CredentialVerifier checks openid_credential authorization details used for
// verifiable-credential issuance.
type CredentialVerifier struct{}

func (v *CredentialVerifier) Name() string { return "credential" }

func (v *CredentialVerifier) ShouldNotVerify(octx *domain.OAuthRequestContext) bool {
	details, err := octx.AuthorizationDetails()
	if err != nil {
		// The RAR verifier reports parse failures; nothing to do here.
		return true
	}
	for _, d := range details {
		if d.Type == domain.CredentialDetailType {
			return false
		}
	}
	return true
}

func (v *CredentialVerifier) Verify(octx *domain.OAuthRequestContext) error {
	details, _ := octx.AuthorizationDetails()
	for _, d := range details {
		if d.Type != domain.CredentialDetailType {
			continue
		}
		_, hasConfigID := d.Extra["credential_configuration_id"]
		_, hasFormat := d.Extra["format"]
		if !hasConfigID && !hasFormat {
			return protocolError(octx, serrors.InvalidRequest, "openid_credential detail requires credential_configuration_id or format")
		}
	}
	return nil
}
