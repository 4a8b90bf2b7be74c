// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token signs and verifies the short-lived JWT access tokens.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTTL    = 15 * time.Minute
	DefaultIssuer = "identity-service"

	// MinSecretLength is the shortest accepted HMAC key.
	MinSecretLength = 32
)

// Claims is what an access token asserts about its bearer.
type Claims struct {
	UserID    string
	Role      models.Role
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

// Codec signs and verifies access tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec creates a codec. The secret must be at least MinSecretLength bytes.
func NewCodec(secret []byte, issuer string, ttl time.Duration) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("access token secret must be at least %d bytes", MinSecretLength)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// NewDevCodec creates a codec with a random secret when none is configured.
// Tokens do not survive a restart.
func NewDevCodec(secret []byte, issuer string, ttl time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		secret = make([]byte, MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate access token secret: %w", err)
		}
		slog.Warn("access_token_secret_generated", "hint", "set --access-token-secret for stable tokens")
	}
	return NewCodec(secret, issuer, ttl)
}

// WithClock replaces the time source.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// TTL returns the access token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Sign mints an access token for userID with the given role and returns it
// together with the claims it carries.
func (c *Codec) Sign(userID string, role models.Role) (string, *Claims, error) {
	if userID == "" || !role.Valid() {
		return "", nil, apperror.New(apperror.KindInvalidInput, "access token needs a user and a valid role")
	}

	now := c.now().Truncate(time.Second)
	claims := &Claims{
		UserID:    userID,
		Role:      role,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			ID:        claims.ID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		Role: role,
	})

	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", nil, apperror.Internal("failed to sign access token", err)
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the
// claims. Expired tokens yield ErrTokenExpired, every other failure
// ErrTokenInvalid.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	var parsed jwtClaims
	tok, err := jwt.ParseWithClaims(tokenString, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.ErrTokenExpired
		}
		return nil, apperror.Wrap(apperror.KindTokenInvalid, "invalid access token", err)
	}
	if !tok.Valid || parsed.Subject == "" || !parsed.Role.Valid() {
		return nil, apperror.ErrTokenInvalid
	}

	claims := &Claims{
		UserID: parsed.Subject,
		Role:   parsed.Role,
		ID:     parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
