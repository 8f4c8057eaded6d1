package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
)

// UserInfoAPI serves the OIDC userinfo endpoint behind the token validation
// middleware.
type UserInfoAPI struct {
	tokenRepo domain.TokenRepository
	userRepo  domain.UserRepository
}

func NewUserInfoAPI(tokenRepo domain.TokenRepository, userRepo domain.UserRepository) *UserInfoAPI {
	return &UserInfoAPI{tokenRepo: tokenRepo, userRepo: userRepo}
}

func (ua *UserInfoAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/:tenant/v1/userinfo", ua.UserInfoHandler, TokenValidationMiddleware(ua.tokenRepo))
}

func (ua *UserInfoAPI) UserInfoHandler(c echo.Context) error {
	token, ok := TokenFromContext(c)
	if !ok || token.Grant.Subject == "" {
		return unauthorized(c, "token has no end-user subject")
	}

	claims := map[string]any{"sub": token.Grant.Subject}

	user, err := ua.userRepo.FindBySubject(c.Request().Context(), token.Issuer, token.Grant.Subject)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return unauthorized(c, "token subject could not be resolved")
	}
	if err == nil {
		scopes := domain.SplitScope(token.Grant.Scope)
		if domain.ContainsScope(scopes, "email") && user.Email != "" {
			claims["email"] = user.Email
		}
		if domain.ContainsScope(scopes, "phone") && user.PhoneNumber != "" {
			claims["phone_number"] = user.PhoneNumber
		}
		if domain.ContainsScope(scopes, "profile") && user.Name != "" {
			claims["name"] = user.Name
		}
	}

	return c.JSON(http.StatusOK, claims)
}
