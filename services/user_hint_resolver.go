package services

import (
	"context"
	"strings"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// UserHints carries the identity hints a backchannel authentication request
// may present. At most one is expected; login_hint wins when several are set.
type UserHints struct {
	LoginHint   string
	IDTokenHint string
}

// UserHintResolver turns a CIBA identity hint into a user. Resolution never
// returns an error to the caller: any failure, malformed hint, unknown
// scheme, or repository miss yields NotFoundUser, keeping the error surface
// of the backchannel endpoint uniform.
type UserHintResolver struct {
	userRepo domain.UserRepository
	signer   *TokenSigner
	logger   applog.Logger
}

func NewUserHintResolver(userRepo domain.UserRepository, signer *TokenSigner, logger applog.Logger) *UserHintResolver {
	return &UserHintResolver{userRepo: userRepo, signer: signer, logger: logger}
}

// Resolve maps the hints onto a stored user. login_hint uses prefix schemes:
//
//	sub:<subject>
//	email:<address>[,<provider>]
//	phone:<number>[,<provider>]
func (r *UserHintResolver) Resolve(ctx context.Context, issuer string, hints UserHints) domain.User {
	if hints.LoginHint != "" {
		return r.resolveLoginHint(ctx, issuer, hints.LoginHint)
	}
	if hints.IDTokenHint != "" {
		return r.resolveIDTokenHint(ctx, issuer, hints.IDTokenHint)
	}
	return domain.NotFoundUser
}

func (r *UserHintResolver) resolveLoginHint(ctx context.Context, issuer, hint string) domain.User {
	scheme, rest, ok := strings.Cut(hint, ":")
	if !ok {
		r.logger.Debug(ctx, "login_hint without a scheme", map[string]interface{}{"issuer": issuer})
		return domain.NotFoundUser
	}

	value, provider, _ := strings.Cut(rest, ",")
	if value == "" {
		return domain.NotFoundUser
	}

	var (
		user *domain.User
		err  error
	)
	switch scheme {
	case "sub":
		user, err = r.userRepo.FindBySubject(ctx, issuer, value)
	case "email":
		user, err = r.userRepo.FindByEmail(ctx, issuer, value, provider)
	case "phone":
		user, err = r.userRepo.FindByPhone(ctx, issuer, value, provider)
	default:
		r.logger.Debug(ctx, "unknown login_hint scheme", map[string]interface{}{"scheme": scheme})
		return domain.NotFoundUser
	}
	if err != nil || user == nil {
		return domain.NotFoundUser
	}
	return *user
}

// resolveIDTokenHint accepts only ID tokens this server signed. Expiry is not
// enforced; an expired ID token still identifies its subject.
func (r *UserHintResolver) resolveIDTokenHint(ctx context.Context, issuer, hint string) domain.User {
	claims, err := r.signer.Verify(hint)
	if err != nil {
		r.logger.Debug(ctx, "id_token_hint verification failed", map[string]interface{}{"issuer": issuer})
		return domain.NotFoundUser
	}
	if iss, _ := claims["iss"].(string); iss != issuer {
		return domain.NotFoundUser
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.NotFoundUser
	}
	user, err := r.userRepo.FindBySubject(ctx, issuer, sub)
	if err != nil || user == nil {
		return domain.NotFoundUser
	}
	return *user
}
