// Package auth implements the session engine for the newsroom CLI: PKCE
// material generation, token persistence and validation, and the hosted-UI
// login and logout flows.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCECodes holds a PKCE (Proof Key for Code Exchange) verifier/challenge
// pair as specified in RFC 7636. The challenge is sent in the authorization
// request; the verifier is presented during the token exchange.
type PKCECodes struct {
	// CodeVerifier is the high-entropy random secret kept by the client.
	CodeVerifier string
	// CodeChallenge is base64url(SHA-256(verifier)), without padding.
	CodeChallenge string
}

// GeneratePKCECodes generates a new PKCE pair. It creates a
// cryptographically random code verifier and its corresponding SHA-256 code
// challenge. The caller must not proceed with a login flow if this fails:
// a predictable verifier defeats the interception protection entirely.
func GeneratePKCECodes() (*PKCECodes, error) {
	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &PKCECodes{
		CodeVerifier:  codeVerifier,
		CodeChallenge: generateCodeChallenge(codeVerifier),
	}, nil
}

// generateCodeVerifier creates a cryptographically secure random string to
// be used as the code verifier. 32 random bytes yield a 43-character
// URL-safe string, the RFC 7636 minimum.
func generateCodeVerifier() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// generateCodeChallenge derives the S256 code challenge from a verifier.
// Any deviation in alphabet or padding breaks the exchange with the
// identity provider, so the encoding must stay RawURLEncoding.
func generateCodeChallenge(codeVerifier string) string {
	hash := sha256.Sum256([]byte(codeVerifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
