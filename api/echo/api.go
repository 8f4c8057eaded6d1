package echo

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/services"
)

// OAuth2API wires the protocol services onto Echo routes. Tenants are
// addressed by path segment; the issuer identifier is derived from the
// request host and tenant.
type OAuth2API struct {
	authorization *services.AuthorizationService
	tokens        *services.TokenEndpointService
	ciba          *services.CibaService
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(authorization *services.AuthorizationService, tokens *services.TokenEndpointService, ciba *services.CibaService) *OAuth2API {
	return &OAuth2API{
		authorization: authorization,
		tokens:        tokens,
		ciba:          ciba,
	}
}

// RegisterRoutes registers the protocol routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/:tenant/v1/authorizations", oa.AuthorizeHandler)
	e.POST("/:tenant/v1/authorizations/:id/approve", oa.ApproveHandler)
	e.POST("/:tenant/v1/authorizations/:id/deny", oa.DenyHandler)
	e.POST("/:tenant/v1/tokens", oa.TokenHandler)
	e.POST("/:tenant/v1/backchannel/authentications", oa.BackchannelAuthHandler)
	e.POST("/:tenant/v1/backchannel/authentications/:authReqID/approve", oa.BackchannelApproveHandler)
	e.POST("/:tenant/v1/backchannel/authentications/:authReqID/deny", oa.BackchannelDenyHandler)
}

// AuthorizeHandler validates an authorization request and persists its
// snapshot. The interaction layer picks the request up by the returned id.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	issuer := issuerOf(c)
	request, err := oa.authorization.Request(c.Request().Context(), issuer, c.QueryParams())
	if err != nil {
		return writeProtocolError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"id":         request.ID,
		"client_id":  request.ClientID,
		"scope":      request.Scope,
		"profile":    request.Profile,
		"expires_at": request.ExpiresAt,
	})
}

type approveRequest struct {
	UserID           string            `json:"user_id"`
	AuthTime         int64             `json:"auth_time"`
	CustomProperties map[string]string `json:"custom_properties"`
}

// ApproveHandler finishes the interaction with consent and returns the
// redirect carrying the authorization code.
func (oa *OAuth2API) ApproveHandler(c echo.Context) error {
	var body approveRequest
	if err := c.Bind(&body); err != nil {
		return writeProtocolError(c, serrors.NewInvalidRequest("request body is malformed"))
	}
	if body.UserID == "" {
		return writeProtocolError(c, serrors.NewInvalidRequest("user_id is required"))
	}

	response, err := oa.authorization.Approve(c.Request().Context(), issuerOf(c), c.Param("id"), body.UserID, body.AuthTime, body.CustomProperties)
	if err != nil {
		return writeProtocolError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"redirect_to": codeRedirect(response),
	})
}

// DenyHandler finishes the interaction with a refusal.
func (oa *OAuth2API) DenyHandler(c echo.Context) error {
	err := oa.authorization.Deny(c.Request().Context(), issuerOf(c), c.Param("id"))
	return writeProtocolError(c, err)
}

// TokenHandler is the token endpoint.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	authReq, err := clientAuthRequest(c)
	if err != nil {
		return writeProtocolError(c, err)
	}

	response, err := oa.tokens.Issue(c.Request().Context(), issuerOf(c), authReq)
	if err != nil {
		return writeProtocolError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

// BackchannelAuthHandler accepts a CIBA backchannel authentication request.
func (oa *OAuth2API) BackchannelAuthHandler(c echo.Context) error {
	authReq, err := clientAuthRequest(c)
	if err != nil {
		return writeProtocolError(c, err)
	}

	cctx, err := oa.tokens.AuthenticateBackchannel(c.Request().Context(), issuerOf(c), authReq)
	if err != nil {
		return writeProtocolError(c, err)
	}

	response, err := oa.ciba.Request(c.Request().Context(), cctx)
	if err != nil {
		return writeProtocolError(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

type backchannelDecision struct {
	Evidence map[string]string `json:"evidence"`
}

// BackchannelApproveHandler records the end-user's approval of a pending
// backchannel transaction.
func (oa *OAuth2API) BackchannelApproveHandler(c echo.Context) error {
	var body backchannelDecision
	if err := c.Bind(&body); err != nil {
		return writeProtocolError(c, serrors.NewInvalidRequest("request body is malformed"))
	}

	err := oa.ciba.Authorize(c.Request().Context(), issuerOf(c), c.Param("authReqID"), body.Evidence)
	return writeProtocolError(c, err)
}

// BackchannelDenyHandler records the end-user's refusal.
func (oa *OAuth2API) BackchannelDenyHandler(c echo.Context) error {
	err := oa.ciba.Deny(c.Request().Context(), issuerOf(c), c.Param("authReqID"))
	return writeProtocolError(c, err)
}

// issuerOf derives the tenant issuer identifier from the request.
func issuerOf(c echo.Context) string {
	scheme := c.Scheme()
	if forwarded := c.Request().Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return fmt.Sprintf("%s://%s/%s", scheme, c.Request().Host, c.Param("tenant"))
}

// clientAuthRequest extracts the credential material from the request:
// form parameters, the Basic Authorization header and the mTLS certificate.
func clientAuthRequest(c echo.Context) (services.ClientAuthRequest, error) {
	if err := c.Request().ParseForm(); err != nil {
		return services.ClientAuthRequest{}, serrors.NewInvalidRequest("request body is malformed")
	}

	req := services.ClientAuthRequest{
		Params: domain.NewRequestParameters(c.Request().Form),
	}
	if user, secret, ok := c.Request().BasicAuth(); ok {
		req.BasicAuthUser = user
		req.BasicAuthSecret = secret
	}
	if tls := c.Request().TLS; tls != nil && len(tls.PeerCertificates) > 0 {
		req.ClientCertificate = tls.PeerCertificates[0]
	}
	return req, nil
}

func codeRedirect(response *services.AuthorizationResponse) string {
	query := url.Values{}
	query.Set("code", response.Code)
	if response.State != "" {
		query.Set("state", response.State)
	}
	return response.RedirectURI + "?" + query.Encode()
}

// writeProtocolError maps protocol errors onto transport responses. A nil
// err acknowledges with 204. Redirectable errors become a redirect payload
// carrying the error on the client's redirect URI; everything else is a JSON
// error body with the matching HTTP status.
func writeProtocolError(c echo.Context, err error) error {
	if err == nil {
		return c.NoContent(http.StatusNoContent)
	}

	oauthErr := serrors.As(err)
	switch oauthErr.Status() {
	case serrors.StatusRedirectableBadRequest:
		query := url.Values{}
		query.Set("error", oauthErr.Code)
		if oauthErr.Description != "" {
			query.Set("error_description", oauthErr.Description)
		}
		if oauthErr.State != "" {
			query.Set("state", oauthErr.State)
		}
		return c.JSON(http.StatusOK, map[string]string{
			"redirect_to": oauthErr.RedirectURI + "?" + query.Encode(),
		})
	case serrors.StatusUnauthorized:
		c.Response().Header().Set("WWW-Authenticate", "Basic realm=\"token\"")
		return c.JSON(http.StatusUnauthorized, errorBody(oauthErr))
	case serrors.StatusNotFound:
		return c.JSON(http.StatusNotFound, errorBody(oauthErr))
	case serrors.StatusBadRequest:
		return c.JSON(http.StatusBadRequest, errorBody(oauthErr))
	default:
		log.Error().Err(err).Msg("Protocol request failed")
		return c.JSON(http.StatusInternalServerError, errorBody(oauthErr))
	}
}

func errorBody(err *serrors.OAuth2Error) map[string]string {
	body := map[string]string{"error": err.Code}
	if err.Description != "" {
		body["error_description"] = err.Description
	}
	return body
}
