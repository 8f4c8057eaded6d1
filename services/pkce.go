package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// RFC 7636 constraints on the code_verifier.
const (
	codeVerifierMinLen = 43
	codeVerifierMaxLen = 128
)

const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// validCodeVerifier checks the RFC 7636 length and unreserved character set.
func validCodeVerifier(verifier string) bool {
	if len(verifier) < codeVerifierMinLen || len(verifier) > codeVerifierMaxLen {
		return false
	}
	for _, r := range verifier {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '_' || r == '~':
		default:
			return false
		}
	}
	return true
}

// VerifyCodeVerifier validates a presented code_verifier against the
// challenge stored with the authorization code. S256 compares
// BASE64URL(SHA256(verifier)); plain compares directly. Both comparisons are
// constant time.
func VerifyCodeVerifier(challenge, method, verifier string) error {
	if verifier == "" {
		return fmt.Errorf("code_verifier is required")
	}
	if !validCodeVerifier(verifier) {
		return fmt.Errorf("code_verifier must be 43-128 characters of [A-Za-z0-9-._~]")
	}

	switch method {
	case CodeChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
			return fmt.Errorf("code_verifier does not match code_challenge")
		}
	case CodeChallengeMethodPlain, "":
		if subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) != 1 {
			return fmt.Errorf("code_verifier does not match code_challenge")
		}
	default:
		return fmt.Errorf("unsupported code_challenge_method %q", method)
	}
	return nil
}
