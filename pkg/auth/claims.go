package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Email  string
	Role   string
}

// AccessTokenClaims are the claims the auth provider puts in its access tokens.
// The user id travels in the standard subject claim.
type AccessTokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user's id.
func (c *AccessTokenClaims) UserID() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Subject)
}

// HasRole compares roles case-insensitively.
func (c *AccessTokenClaims) HasRole(role string) bool {
	if c == nil || role == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(c.Role), role)
}
