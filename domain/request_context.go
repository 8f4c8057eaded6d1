package domain

import (
	"net/url"
	"strconv"
)

// RequestParameters wraps the raw multi-valued request parameters.
type RequestParameters struct {
	values url.Values
}

// NewRequestParameters copies values into an immutable parameter view.
func NewRequestParameters(values url.Values) RequestParameters {
	copied := make(url.Values, len(values))
	for k, v := range values {
		copied[k] = append([]string(nil), v...)
	}
	return RequestParameters{values: copied}
}

// Get returns the single value of name, or "".
func (p RequestParameters) Get(name string) string {
	return p.values.Get(name)
}

// Has reports whether name is present.
func (p RequestParameters) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Duplicated returns the first parameter that appears more than once.
// RFC 6749 3.1 forbids repeated parameters; "resource" (RFC 8707) is the
// documented exception.
func (p RequestParameters) Duplicated() (string, bool) {
	for name, vals := range p.values {
		if name == "resource" {
			continue
		}
		if len(vals) > 1 {
			return name, true
		}
	}
	return "", false
}

// OAuthRequestContext is the working context during authorization request
// processing. Constructed once by the request context builder and treated as
// immutable by every verifier downstream.
type OAuthRequestContext struct {
	Pattern    RequestPattern
	Profile    Profile
	Parameters RequestParameters
	// RequestObjectClaims holds the verified JWT payload for the
	// REQUEST_OBJECT / REQUEST_URI patterns. When present it is the only
	// parameter source, so outer query parameters cannot be injected.
	RequestObjectClaims map[string]any
	ServerConfig        *ServerConfiguration
	ClientConfig        *ClientConfiguration
}

// Param reads a request parameter honoring the pattern guarantee: request
// object claims win over outer parameters whenever a request object was used.
func (c *OAuthRequestContext) Param(name string) string {
	if c.RequestObjectClaims != nil {
		switch v := c.RequestObjectClaims[name].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			return ""
		}
		return ""
	}
	return c.Parameters.Get(name)
}

// HasParam reports parameter presence with the same sourcing rule as Param.
func (c *OAuthRequestContext) HasParam(name string) bool {
	if c.RequestObjectClaims != nil {
		_, ok := c.RequestObjectClaims[name]
		return ok
	}
	return c.Parameters.Has(name)
}

// Scopes splits the scope parameter into its values.
func (c *OAuthRequestContext) Scopes() []string {
	return SplitScope(c.Param("scope"))
}

// CibaRequestContext is the backchannel counterpart of OAuthRequestContext.
type CibaRequestContext struct {
	Pattern             RequestPattern
	Parameters          RequestParameters
	RequestObjectClaims map[string]any
	ServerConfig        *ServerConfiguration
	ClientConfig        *ClientConfiguration
}

// Param reads a backchannel parameter with request-object precedence.
func (c *CibaRequestContext) Param(name string) string {
	if c.RequestObjectClaims != nil {
		if v, ok := c.RequestObjectClaims[name].(string); ok {
			return v
		}
		return ""
	}
	return c.Parameters.Get(name)
}
