package services

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

type TokenSignerFunc func(claims jwt.Claims) (string, error)

// TokenSigner signs protocol tokens (JWT access tokens, ID tokens) with one
// of its registered keys, and verifies tokens the server itself issued.
type TokenSigner struct {
	keys    map[string]TokenSignerFunc
	public  map[string]*rsa.PublicKey
	secrets map[string][]byte
}

// NewTokenSigner creates a new Signer instance
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{
		keys:    make(map[string]TokenSignerFunc),
		public:  make(map[string]*rsa.PublicKey),
		secrets: make(map[string][]byte),
	}
}

// AddKeySigner registers an HMAC signing secret under the given key id.
func (s *TokenSigner) AddKeySigner(keyID, secretKey string) {
	s.secrets[keyID] = []byte(secretKey)
	s.keys[keyID] = func(claims jwt.Claims) (string, error) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		token.Header["kid"] = keyID

		tokenString, err := token.SignedString([]byte(secretKey))
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}

		return tokenString, nil
	}
}

// AddRSAKeySigner registers an RSA private key under the given key id.
// Tokens signed with it carry RS256 and the kid header.
func (s *TokenSigner) AddRSAKeySigner(keyID string, key *rsa.PrivateKey) {
	s.public[keyID] = &key.PublicKey
	s.keys[keyID] = func(claims jwt.Claims) (string, error) {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = keyID

		tokenString, err := token.SignedString(key)
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}

		return tokenString, nil
	}
}

func (s *TokenSigner) Sign(claims jwt.Claims, keyID string) (string, error) {
	if keyID == "" { // using default signer
		for _, val := range s.keys {
			if val != nil {
				return val(claims)
			}
		}

		// default signer not found
		return "", ErrInvalidKeyID
	}

	if signer, ok := s.keys[keyID]; ok {
		return signer(claims)
	}

	return "", ErrInvalidKeyID
}

// Verify parses a token this server issued and returns its claims. It is
// used for id_token_hint resolution, so expiry is not enforced here.
func (s *TokenSigner) Verify(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		keyID, _ := token.Header["kid"].(string)
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if pub := s.lookupPublic(keyID); pub != nil {
				return pub, nil
			}
		case *jwt.SigningMethodHMAC:
			if secret := s.lookupSecret(keyID); secret != nil {
				return secret, nil
			}
		}
		return nil, ErrInvalidKeyID
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return claims, nil
}

// PublicKeys exposes the registered RSA public keys for JWKS publication.
func (s *TokenSigner) PublicKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(s.public))
	for kid, pub := range s.public {
		out[kid] = pub
	}
	return out
}

func (s *TokenSigner) lookupPublic(keyID string) *rsa.PublicKey {
	if keyID != "" {
		return s.public[keyID]
	}
	for _, pub := range s.public {
		return pub
	}
	return nil
}

func (s *TokenSigner) lookupSecret(keyID string) []byte {
	if keyID != "" {
		return s.secrets[keyID]
	}
	for _, secret := range s.secrets {
		return secret
	}
	return nil
}
