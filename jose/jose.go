// Package jose is the JOSE capability consumed by the protocol engine:
// signature verification and claims extraction over compact JWTs given a
// key source (client JWKS or shared secret).
package jose

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

var (
	ErrSignatureInvalid = errors.New("jose: signature verification failed")
	ErrKeyNotFound      = errors.New("jose: no usable verification key")
)

// Context is the resolved outcome of verifying a compact JWT: the validated
// header metadata and the claims payload.
type Context struct {
	Claims    map[string]any
	Algorithm string
	KeyID     string
}

// Claim returns a string claim, or "" when absent or non-string.
func (c *Context) Claim(name string) string {
	if v, ok := c.Claims[name].(string); ok {
		return v
	}
	return ""
}

// VerifyWithJWKS parses and verifies a compact JWT against a registered JWKS
// document (raw JSON). The signing key is selected by kid when present,
// otherwise the first key matching the token algorithm family is tried.
func VerifyWithJWKS(tokenString, jwksJSON string) (*Context, error) {
	set, err := jwk.Parse([]byte(jwksJSON))
	if err != nil {
		return nil, fmt.Errorf("jose: parse jwks: %w", err)
	}

	keyfunc := func(token *jwt.Token) (any, error) {
		if kid, ok := token.Header["kid"].(string); ok && kid != "" {
			key, found := set.LookupKeyID(kid)
			if !found {
				return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
			}
			var raw any
			if err := jwk.Export(key, &raw); err != nil {
				return nil, fmt.Errorf("jose: export key: %w", err)
			}
			return raw, nil
		}
		// No kid: try every key in the set until one exports.
		for i := 0; i < set.Len(); i++ {
			key, ok := set.Key(i)
			if !ok {
				continue
			}
			var raw any
			if err := jwk.Export(key, &raw); err == nil {
				return raw, nil
			}
		}
		return nil, ErrKeyNotFound
	}

	return verify(tokenString, keyfunc, asymmetricMethods)
}

// VerifyWithSecret parses and verifies an HMAC-signed compact JWT.
func VerifyWithSecret(tokenString, secret string) (*Context, error) {
	keyfunc := func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}
	return verify(tokenString, keyfunc, []string{"HS256", "HS384", "HS512"})
}

var asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}

func verify(tokenString string, keyfunc jwt.Keyfunc, methods []string) (*Context, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyfunc,
		jwt.WithValidMethods(methods),
		// Request objects and client assertions validate exp/aud at the
		// protocol layer with their own error codes.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	kid, _ := token.Header["kid"].(string)
	return &Context{
		Claims:    map[string]any(claims),
		Algorithm: token.Method.Alg(),
		KeyID:     kid,
	}, nil
}

// FAPI Part 2 restricts assertion and request-object algorithms to an
// asymmetric allow-list with minimum key sizes.
var fapiAdvanceAlgs = map[string]bool{"PS256": true, "ES256": true}

// CheckFAPIAdvanceAlg reports whether alg is acceptable under FAPI-Advance.
func CheckFAPIAdvanceAlg(alg string) bool {
	return fapiAdvanceAlgs[alg]
}

// CheckFAPIKeyStrength enforces the FAPI minimum key sizes: RSA >= 2048 bits,
// EC >= 160 bits. Unknown key types are rejected.
func CheckFAPIKeyStrength(jwksJSON, kid string) error {
	set, err := jwk.Parse([]byte(jwksJSON))
	if err != nil {
		return fmt.Errorf("jose: parse jwks: %w", err)
	}
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if kid != "" {
			keyID, _ := key.KeyID()
			if keyID != kid {
				continue
			}
		}
		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			continue
		}
		switch k := raw.(type) {
		case *rsa.PublicKey:
			if k.N.BitLen() < 2048 {
				return fmt.Errorf("jose: RSA key below 2048 bits")
			}
			return nil
		case *ecdsa.PublicKey:
			if k.Curve.Params().BitSize < 160 {
				return fmt.Errorf("jose: EC key below 160 bits")
			}
			return nil
		}
	}
	return ErrKeyNotFound
}
