// Package auth verifies the HS256 access tokens issued by the identity
// provider in front of the owner dashboard and admin console.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/groupescapehouses/escape-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

var (
	// ErrMissingSubject is returned for tokens that do not name a user.
	ErrMissingSubject = errors.New("token subject is required")
	errNoSecret       = errors.New("jwt secret is required")
)

// MintAccessToken signs a token valid from now for ttl. Production tokens
// come from the identity provider; planctl and tests mint their own.
func MintAccessToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errNoSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case ttl <= 0:
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	subject := strings.TrimSpace(payload.UserID)
	if subject == "" {
		return "", ErrMissingSubject
	}

	claims := AccessTokenClaims{
		Email: payload.Email,
		Role:  payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, allowing
// cfg.Leeway of clock skew, and returns the claims.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	claims := &AccessTokenClaims{}
	key := []byte(cfg.Secret)
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil }, opts...); err != nil {
		return nil, err
	}
	if claims.UserID() == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
