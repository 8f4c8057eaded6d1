package domain

import (
	"context"
	"errors"
)

// ErrRecordNotFound is the sentinel every repository returns for a miss.
// The service layer maps it onto the protocol-specific not-found errors.
var ErrRecordNotFound = errors.New("record not found")

// ErrAlreadyConsumed is returned by the atomic consume operations when a
// concurrent caller won the race. Exactly one caller per credential succeeds.
var ErrAlreadyConsumed = errors.New("already consumed")

// ConfigurationRepository looks up tenant and client policy.
type ConfigurationRepository interface {
	GetServerConfiguration(ctx context.Context, issuer string) (*ServerConfiguration, error)
	GetClientConfiguration(ctx context.Context, issuer, clientID string) (*ClientConfiguration, error)
}

// AuthorizationRequestRepository persists the immutable request snapshots.
type AuthorizationRequestRepository interface {
	Register(ctx context.Context, request *AuthorizationRequest) error
	Find(ctx context.Context, issuer, id string) (*AuthorizationRequest, error)
	Delete(ctx context.Context, issuer, id string) error
}

// AuthorizationCodeRepository persists single-use authorization codes.
// Consume atomically marks the code consumed and returns it; a second call
// for the same code fails with ErrAlreadyConsumed.
type AuthorizationCodeRepository interface {
	Register(ctx context.Context, code *AuthorizationCode) error
	Consume(ctx context.Context, issuer, code string) (*AuthorizationCode, error)
}

// TokenRepository persists issued token aggregates. ConsumeByRefreshToken
// atomically deletes the aggregate owning the refresh token and returns it,
// forming the rotation boundary: of two concurrent redemptions exactly one
// receives the aggregate, the other ErrRecordNotFound.
type TokenRepository interface {
	Register(ctx context.Context, token *OAuthToken) error
	FindByAccessToken(ctx context.Context, issuer, accessToken string) (*OAuthToken, error)
	ConsumeByRefreshToken(ctx context.Context, issuer, refreshToken string) (*OAuthToken, error)
	Delete(ctx context.Context, issuer, id string) error
}

// CibaGrantRepository persists backchannel authentication transactions.
// Consume atomically flips an AUTHORIZED grant to CONSUMED and returns it;
// a second consume for the same auth_req_id fails with ErrAlreadyConsumed.
type CibaGrantRepository interface {
	Register(ctx context.Context, grant *CibaGrant) error
	Find(ctx context.Context, issuer, authReqID string) (*CibaGrant, error)
	Update(ctx context.Context, grant *CibaGrant) error
	UpdateStatus(ctx context.Context, issuer, authReqID string, status CibaGrantStatus) error
	UpdateLastPolledAt(ctx context.Context, issuer, authReqID string) error
	Consume(ctx context.Context, issuer, authReqID string) (*CibaGrant, error)
	Delete(ctx context.Context, issuer, authReqID string) error
}

// UserRepository resolves end users for CIBA hint resolution.
type UserRepository interface {
	FindBySubject(ctx context.Context, issuer, subject string) (*User, error)
	FindByEmail(ctx context.Context, issuer, email, provider string) (*User, error)
	FindByPhone(ctx context.Context, issuer, phone, provider string) (*User, error)
}
