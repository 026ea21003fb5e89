// Package auth issues and checks session tokens, hashes passwords and
// talks to GitHub for OAuth sign-in.
//
// A session is an HS256 JWT whose subject is the internal user ID. It is
// carried in the "token" HttpOnly cookie for browsers and in an
// "Authorization: Bearer" header for API clients.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "streakme"

	// DefaultSessionTTL is how long a session token stays valid.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// ErrTokenExpired is returned by Validate for a well-formed but expired token.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and validates session tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService returns a TokenService issuing DefaultSessionTTL tokens.
// The secret must be at least 16 characters.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: DefaultSessionTTL}, nil
}

// TTL reports the lifetime of tokens from Generate.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// WithTTL returns a copy of s issuing tokens that live for ttl.
func (s *TokenService) WithTTL(ttl time.Duration) *TokenService {
	return &TokenService{secret: s.secret, ttl: ttl}
}

// Generate signs a session token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration signs a token that expires after d.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, issuer and expiry and returns the
// user ID in the subject claim.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		// pinning the method rejects "none" and RSA-with-HMAC-key tokens
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return c.Subject, nil
}
