package echo

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/services"
)

const tokenContextKey = "oauth_token"

// TokenValidationMiddleware authenticates protected-resource requests with a
// bearer access token. Certificate-bound tokens additionally require the
// same mTLS certificate that was presented at issuance.
func TokenValidationMiddleware(tokenRepo domain.TokenRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			value, ok := bearerToken(c)
			if !ok {
				return unauthorized(c, "bearer token is required")
			}

			token, err := tokenRepo.FindByAccessToken(c.Request().Context(), issuerOf(c), value)
			if err != nil {
				if errors.Is(err, domain.ErrRecordNotFound) {
					return unauthorized(c, "token is unknown")
				}
				return writeProtocolError(c, serrors.NewServerError("token validation unavailable"))
			}
			if time.Now().After(token.AccessToken.ExpiresAt) {
				return unauthorized(c, "token is expired")
			}

			if token.CertificateBound() {
				tls := c.Request().TLS
				if tls == nil || len(tls.PeerCertificates) == 0 {
					return unauthorized(c, "token is certificate bound")
				}
				thumbprint := services.CertificateThumbprint(tls.PeerCertificates[0])
				if subtle.ConstantTimeCompare([]byte(thumbprint), []byte(token.AccessToken.CertificateThumbprint)) != 1 {
					return unauthorized(c, "certificate does not match the bound token")
				}
			}

			c.Set(tokenContextKey, token)
			return next(c)
		}
	}
}

// TokenFromContext returns the validated token set stored by the middleware.
func TokenFromContext(c echo.Context) (*domain.OAuthToken, bool) {
	token, ok := c.Get(tokenContextKey).(*domain.OAuthToken)
	return token, ok
}

// bearerToken accepts the JWT form of the access token and resolves it to
// the stored opaque value through its jti claim, or the opaque value itself.
func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	value := strings.TrimSpace(header[len(prefix):])
	if value == "" {
		return "", false
	}
	// A JWT access token carries the lookup value in its jti claim.
	if strings.Count(value, ".") == 2 {
		if jti := unverifiedJTI(value); jti != "" {
			return jti, true
		}
	}
	return value, true
}

// unverifiedJTI reads the jti claim without signature verification. The
// storage lookup that follows is the trust anchor, not the signature.
func unverifiedJTI(tokenString string) string {
	var claims jwt.MapClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return ""
	}
	jti, _ := claims["jti"].(string)
	return jti
}

func unauthorized(c echo.Context, description string) error {
	c.Response().Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": description,
	})
}
