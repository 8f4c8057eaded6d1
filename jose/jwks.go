package jose

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// PublicJWKS renders the server's RSA signing keys as a JWKS document for
// the discovery endpoint.
func PublicJWKS(keys map[string]*rsa.PublicKey) (json.RawMessage, error) {
	set := jwk.NewSet()
	for kid, pub := range keys {
		key, err := jwk.Import(pub)
		if err != nil {
			return nil, fmt.Errorf("jose: import public key: %w", err)
		}
		if err := key.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, fmt.Errorf("jose: set kid: %w", err)
		}
		if err := key.Set(jwk.AlgorithmKey, "RS256"); err != nil {
			return nil, fmt.Errorf("jose: set alg: %w", err)
		}
		if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
			return nil, fmt.Errorf("jose: set use: %w", err)
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("jose: add key: %w", err)
		}
	}

	encoded, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("jose: encode jwks: %w", err)
	}
	return encoded, nil
}
