package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// AuthorizationResponse tells the transport where to send the browser after
// the code was minted.
type AuthorizationResponse struct {
	RedirectURI string
	Code        string
	State       string
}

// AuthorizationService drives the front channel: request validation and
// snapshotting at the authorization endpoint, then code issuance once the
// authentication and consent interaction finished.
type AuthorizationService struct {
	builder     *RequestContextBuilder
	pipeline    *VerificationPipeline
	configRepo  domain.ConfigurationRepository
	requestRepo domain.AuthorizationRequestRepository
	codeRepo    domain.AuthorizationCodeRepository
	logger      applog.Logger
}

func NewAuthorizationService(builder *RequestContextBuilder, pipeline *VerificationPipeline, configRepo domain.ConfigurationRepository, requestRepo domain.AuthorizationRequestRepository, codeRepo domain.AuthorizationCodeRepository, logger applog.Logger) *AuthorizationService {
	return &AuthorizationService{
		builder:     builder,
		pipeline:    pipeline,
		configRepo:  configRepo,
		requestRepo: requestRepo,
		codeRepo:    codeRepo,
		logger:      logger,
	}
}

// Request validates an inbound authorization request and persists its
// immutable snapshot. The returned request ID anchors the later interaction
// steps.
func (s *AuthorizationService) Request(ctx context.Context, issuer string, values url.Values) (*domain.AuthorizationRequest, error) {
	octx, err := s.builder.Build(ctx, issuer, values)
	if err != nil {
		return nil, err
	}
	if err := s.pipeline.Verify(octx); err != nil {
		return nil, err
	}

	details, err := octx.AuthorizationDetails()
	if err != nil {
		return nil, serrors.NewInvalidRequest("authorization_details is malformed")
	}

	now := time.Now()
	request := &domain.AuthorizationRequest{
		ID:                     uuid.NewString(),
		Issuer:                 octx.ServerConfig.Issuer,
		Profile:                octx.Profile,
		ResponseType:           domain.ResponseType(octx.Param("response_type")),
		ResponseMode:           domain.ResponseMode(octx.Param("response_mode")),
		ClientID:               octx.ClientConfig.ClientID,
		RedirectURI:            octx.Param("redirect_uri"),
		Scope:                  domain.JoinScope(octx.ClientConfig.FilterScopes(octx.Scopes())),
		State:                  octx.Param("state"),
		Nonce:                  octx.Param("nonce"),
		Display:                octx.Param("display"),
		Prompt:                 octx.Param("prompt"),
		MaxAge:                 octx.Param("max_age"),
		CodeChallenge:          octx.Param("code_challenge"),
		CodeChallengeMethod:    octx.Param("code_challenge_method"),
		AuthorizationDetails:   details,
		PresentationDefinition: octx.Param("presentation_definition"),
		CreatedAt:              now,
		ExpiresAt:              now.Add(octx.ServerConfig.AuthorizationRequestTTL),
	}

	if err := s.requestRepo.Register(ctx, request); err != nil {
		s.logger.Error(ctx, "authorization request persistence failed", err, map[string]interface{}{"client_id": request.ClientID})
		return nil, serrors.NewServerError("authorization unavailable")
	}

	s.logger.Info(ctx, "authorization request accepted", map[string]interface{}{
		"client_id":  request.ClientID,
		"request_id": request.ID,
		"profile":    string(request.Profile),
	})
	return request, nil
}

// Approve mints the single-use authorization code after the end-user
// authenticated and consented.
func (s *AuthorizationService) Approve(ctx context.Context, issuer, requestID, userID string, authTime int64, customProperties map[string]string) (*AuthorizationResponse, error) {
	request, err := s.findLiveRequest(ctx, issuer, requestID)
	if err != nil {
		return nil, err
	}

	serverConfig, err := s.configRepo.GetServerConfiguration(ctx, issuer)
	if err != nil {
		s.logger.Error(ctx, "issuer lookup failed", err, map[string]interface{}{"issuer": issuer})
		return nil, serrors.NewServerError("authorization unavailable")
	}

	codeValue, err := randomCodeValue()
	if err != nil {
		return nil, serrors.NewServerError("failed to generate authorization code")
	}

	now := time.Now()
	code := &domain.AuthorizationCode{
		Code:                   codeValue,
		Issuer:                 request.Issuer,
		AuthorizationRequestID: request.ID,
		ClientID:               request.ClientID,
		UserID:                 userID,
		RedirectURI:            request.RedirectURI,
		Scope:                  request.Scope,
		Nonce:                  request.Nonce,
		AuthTime:               authTime,
		CodeChallenge:          request.CodeChallenge,
		CodeChallengeMethod:    request.CodeChallengeMethod,
		AuthorizationDetails:   request.AuthorizationDetails,
		CustomProperties:       customProperties,
		ExpiresAt:              now.Add(serverConfig.AuthorizationCodeTTL),
		CreatedAt:              now,
	}

	if err := s.codeRepo.Register(ctx, code); err != nil {
		s.logger.Error(ctx, "authorization code persistence failed", err, map[string]interface{}{"request_id": request.ID})
		return nil, serrors.NewServerError("authorization unavailable")
	}

	if err := s.requestRepo.Delete(ctx, request.Issuer, request.ID); err != nil {
		s.logger.Warn(ctx, "authorization request cleanup failed", map[string]interface{}{"request_id": request.ID, "error": err.Error()})
	}

	s.logger.Info(ctx, "authorization code issued", map[string]interface{}{
		"client_id":  request.ClientID,
		"request_id": request.ID,
	})

	return &AuthorizationResponse{
		RedirectURI: request.RedirectURI,
		Code:        code.Code,
		State:       request.State,
	}, nil
}

// Deny completes the interaction with a refusal. The caller redirects the
// browser with the returned error, which carries the request's state.
func (s *AuthorizationService) Deny(ctx context.Context, issuer, requestID string) error {
	request, err := s.findLiveRequest(ctx, issuer, requestID)
	if err != nil {
		return err
	}

	if err := s.requestRepo.Delete(ctx, request.Issuer, request.ID); err != nil {
		s.logger.Warn(ctx, "authorization request cleanup failed", map[string]interface{}{"request_id": request.ID, "error": err.Error()})
	}

	return serrors.NewRedirectableBadRequest(serrors.AccessDenied, "the end-user denied the authorization request", request.RedirectURI).WithState(request.State)
}

func (s *AuthorizationService) findLiveRequest(ctx context.Context, issuer, requestID string) (*domain.AuthorizationRequest, error) {
	request, err := s.requestRepo.Find(ctx, issuer, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, serrors.NewNotFound(serrors.InvalidRequest, "authorization request is unknown")
		}
		s.logger.Error(ctx, "authorization request lookup failed", err, map[string]interface{}{"request_id": requestID})
		return nil, serrors.NewServerError("authorization unavailable")
	}
	if time.Now().After(request.ExpiresAt) {
		return nil, serrors.NewInvalidRequest("authorization request is expired")
	}
	return request, nil
}

func randomCodeValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
