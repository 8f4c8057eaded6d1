package services

import (
	"context"
	"errors"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// AuthorizationCodeGrantService exchanges a single-use authorization code
// for a token set. The code is consumed atomically before any other check,
// so a replayed code can never race its way to a second token set.
type AuthorizationCodeGrantService struct {
	codeRepo     domain.AuthorizationCodeRepository
	tokenCreator *TokenCreator
	logger       applog.Logger
}

func NewAuthorizationCodeGrantService(codeRepo domain.AuthorizationCodeRepository, tokenCreator *TokenCreator, logger applog.Logger) *AuthorizationCodeGrantService {
	return &AuthorizationCodeGrantService{codeRepo: codeRepo, tokenCreator: tokenCreator, logger: logger}
}

func (s *AuthorizationCodeGrantService) GrantType() domain.GrantType {
	return domain.GrantTypeAuthorizationCode
}

func (s *AuthorizationCodeGrantService) Issue(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	codeValue := req.Params.Get("code")
	if codeValue == "" {
		return nil, serrors.NewInvalidRequest("code is required")
	}

	code, err := s.codeRepo.Consume(ctx, req.ServerConfig.Issuer, codeValue)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) || errors.Is(err, domain.ErrAlreadyConsumed) {
			return nil, serrors.NewInvalidGrant("authorization code is invalid or already used")
		}
		s.logger.Error(ctx, "authorization code lookup failed", err, map[string]interface{}{"client_id": req.Credentials.ClientID})
		return nil, serrors.NewServerError("token issuance unavailable")
	}

	if time.Now().After(code.ExpiresAt) {
		return nil, serrors.NewInvalidGrant("authorization code is expired")
	}
	if code.ClientID != req.Credentials.ClientID {
		return nil, serrors.NewInvalidGrant("authorization code was issued to another client")
	}
	if code.RedirectURI != "" && req.Params.Get("redirect_uri") != code.RedirectURI {
		return nil, serrors.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if err := s.verifyPKCE(code, req); err != nil {
		return nil, err
	}

	grant := domain.AuthorizationGrant{
		Issuer:               code.Issuer,
		ClientID:             code.ClientID,
		Subject:              code.UserID,
		Scope:                code.Scope,
		Nonce:                code.Nonce,
		AuthTime:             code.AuthTime,
		AuthorizationDetails: code.AuthorizationDetails,
		CustomProperties:     code.CustomProperties,
	}

	token, err := s.tokenCreator.Create(ctx, req.ServerConfig, req.ClientConfig, grant, TokenOptions{
		IncludeRefreshToken:   true,
		IncludeIDToken:        true,
		CertificateThumbprint: req.BindingThumbprint(),
		Nonce:                 code.Nonce,
		AuthTime:              code.AuthTime,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "authorization code exchanged", map[string]interface{}{
		"client_id": code.ClientID,
		"issuer":    code.Issuer,
	})

	return Response(token), nil
}

func (s *AuthorizationCodeGrantService) verifyPKCE(code *domain.AuthorizationCode, req *TokenRequest) error {
	verifier := req.Params.Get("code_verifier")
	if code.CodeChallenge == "" {
		if req.ClientConfig.RequirePKCE {
			return serrors.NewInvalidGrant("authorization code was issued without a required code_challenge")
		}
		if verifier != "" {
			return serrors.NewInvalidGrant("code_verifier presented for a code without a challenge")
		}
		return nil
	}
	if verifier == "" {
		return serrors.NewInvalidGrant("code_verifier is required")
	}
	if err := VerifyCodeVerifier(code.CodeChallenge, code.CodeChallengeMethod, verifier); err != nil {
		return serrors.NewInvalidGrant("code_verifier verification failed")
	}
	return nil
}
