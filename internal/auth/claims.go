package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the decoded payload of the identity token issued by the
// hosted UI. Only the claims the session engine relies on are modelled;
// everything else in the token is ignored.
type IdentityClaims struct {
	// Email is the address asserted by the identity provider, if any.
	Email string `json:"email"`
	// CognitoUsername is used as an email fallback for federated accounts
	// whose token carries no email claim.
	CognitoUsername string `json:"cognito:username"`

	jwt.RegisteredClaims
}

// ParseIdentityToken decodes an identity token's claims without verifying
// its signature. Signature verification is the backend's responsibility on
// every API call; the client only needs the claims for expiry checks and
// display. Structural problems (not three base64url segments, undecodable
// payload) are returned as errors.
func ParseIdentityToken(token string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("invalid identity token: %w", err)
	}
	return claims, nil
}

// UserEmail returns the best available email identity for display and
// preference payloads, or the empty string when the token carries neither
// claim.
func (c *IdentityClaims) UserEmail() string {
	if c.Email != "" {
		return c.Email
	}
	return c.CognitoUsername
}

// ExpiresAfter reports whether the token is still live at the given
// instant. A token without an exp claim is never considered live.
func (c *IdentityClaims) ExpiresAfter(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.After(now)
}
