package echo

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
	serrors "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/errors"
)

// OpenIDConfiguration is the discovery document of RFC 8414 / OIDC Discovery
// for one tenant.
type OpenIDConfiguration struct {
	Issuer                                     string   `json:"issuer"`
	AuthorizationEndpoint                      string   `json:"authorization_endpoint"`
	TokenEndpoint                              string   `json:"token_endpoint"`
	JWKSUri                                    string   `json:"jwks_uri"`
	BackchannelAuthenticationEndpoint          string   `json:"backchannel_authentication_endpoint,omitempty"`
	ResponseTypesSupported                     []string `json:"response_types_supported"`
	GrantTypesSupported                        []string `json:"grant_types_supported"`
	ScopesSupported                            []string `json:"scopes_supported"`
	AuthorizationDetailsTypesSupported         []string `json:"authorization_details_types_supported,omitempty"`
	CodeChallengeMethodsSupported              []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported"`
	BackchannelTokenDeliveryModesSupported     []string `json:"backchannel_token_delivery_modes_supported,omitempty"`
	TLSClientCertificateBoundAccessTokens      bool     `json:"tls_client_certificate_bound_access_tokens"`
	RequestParameterSupported                  bool     `json:"request_parameter_supported"`
	RequestURIParameterSupported               bool     `json:"request_uri_parameter_supported"`
	AuthorizationResponseIssParameterSupported bool     `json:"authorization_response_iss_parameter_supported"`
}

// DiscoveryAPI serves the per-tenant discovery and JWKS documents.
type DiscoveryAPI struct {
	configRepo domain.ConfigurationRepository
	jwks       json.RawMessage
}

func NewDiscoveryAPI(configRepo domain.ConfigurationRepository, jwks json.RawMessage) *DiscoveryAPI {
	return &DiscoveryAPI{configRepo: configRepo, jwks: jwks}
}

func (da *DiscoveryAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/:tenant/.well-known/openid-configuration", da.OpenIDConfigurationHandler)
	e.GET("/:tenant/.well-known/jwks.json", da.JWKSHandler)
}

func (da *DiscoveryAPI) OpenIDConfigurationHandler(c echo.Context) error {
	issuer := issuerOf(c)
	serverConfig, err := da.configRepo.GetServerConfiguration(c.Request().Context(), issuer)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return writeProtocolError(c, serrors.NewNotFound(serrors.InvalidRequest, "unknown issuer"))
		}
		return writeProtocolError(c, serrors.NewServerError("discovery unavailable"))
	}

	return c.JSON(http.StatusOK, discoveryDocument(issuer, serverConfig))
}

func (da *DiscoveryAPI) JWKSHandler(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, da.jwks)
}

func discoveryDocument(issuer string, serverConfig *domain.ServerConfiguration) *OpenIDConfiguration {
	responseTypes := make([]string, 0, len(serverConfig.SupportedResponseTypes))
	for _, rt := range serverConfig.SupportedResponseTypes {
		responseTypes = append(responseTypes, string(rt))
	}
	grantTypes := make([]string, 0, len(serverConfig.SupportedGrantTypes))
	for _, gt := range serverConfig.SupportedGrantTypes {
		grantTypes = append(grantTypes, string(gt))
	}

	doc := &OpenIDConfiguration{
		Issuer:                             issuer,
		AuthorizationEndpoint:              serverConfig.AuthorizationEndpoint,
		TokenEndpoint:                      serverConfig.TokenEndpoint,
		JWKSUri:                            issuer + "/.well-known/jwks.json",
		BackchannelAuthenticationEndpoint:  serverConfig.BackchannelAuthenticationEndpoint,
		ResponseTypesSupported:             responseTypes,
		GrantTypesSupported:                grantTypes,
		ScopesSupported:                    serverConfig.SupportedScopes,
		AuthorizationDetailsTypesSupported: serverConfig.SupportedAuthorizationDetailTypes,
		CodeChallengeMethodsSupported:      []string{"plain", "S256"},
		TokenEndpointAuthMethodsSupported: []string{
			string(domain.ClientAuthSecretBasic),
			string(domain.ClientAuthSecretPost),
			string(domain.ClientAuthPrivateKeyJWT),
			string(domain.ClientAuthTLSClientAuth),
			string(domain.ClientAuthSelfSignedTLSClient),
			string(domain.ClientAuthNone),
		},
		TLSClientCertificateBoundAccessTokens:      true,
		RequestParameterSupported:                  true,
		RequestURIParameterSupported:               true,
		AuthorizationResponseIssParameterSupported: true,
	}
	if serverConfig.SupportsGrantType(domain.GrantTypeCiba) {
		doc.BackchannelTokenDeliveryModesSupported = []string{
			string(domain.CibaModePoll),
			string(domain.CibaModePing),
			string(domain.CibaModePush),
		}
	}
	return doc
}
