// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// TokenType is the single purpose a verification token was issued for.
type TokenType string

const (
	TokenEmailVerify   TokenType = "email_verify"
	TokenPasswordReset TokenType = "password_reset"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	return t == TokenEmailVerify || t == TokenPasswordReset
}

// VerificationToken stores a hashed single-use token.
type VerificationToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Type      TokenType `db:"type" json:"type"`
	TokenHash string    `db:"token_hash" json:"-"` // SHA256 hash
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
