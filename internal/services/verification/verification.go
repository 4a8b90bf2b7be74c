// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification issues and consumes single-use tokens for email
// verification and password reset.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/opaque"
	"codeberg.org/oliverandrich/identity-service/internal/repository"
	"github.com/google/uuid"
)

const (
	DefaultVerifyTTL = 15 * time.Minute
	DefaultResetTTL  = time.Hour
)

// VerificationStore persists hashed tokens. ConsumeVerificationToken must
// delete and return the row in one atomic step.
type VerificationStore interface {
	ReplaceVerificationToken(ctx context.Context, token *models.VerificationToken) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string) (*models.VerificationToken, error)
	DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	store VerificationStore
	ttls  map[models.TokenType]time.Duration
	now   func() time.Time
}

// NewService creates the token manager. Zero TTLs fall back to the defaults.
func NewService(store VerificationStore, verifyTTL, resetTTL time.Duration) *Service {
	if verifyTTL <= 0 {
		verifyTTL = DefaultVerifyTTL
	}
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &Service{
		store: store,
		ttls: map[models.TokenType]time.Duration{
			models.TokenEmailVerify:   verifyTTL,
			models.TokenPasswordReset: resetTTL,
		},
		now: time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TTL returns the lifetime of tokens of the given type.
func (s *Service) TTL(tokenType models.TokenType) time.Duration {
	return s.ttls[tokenType]
}

// Issued is a freshly minted token. Token is the only copy of the plaintext.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Issue creates a token for (userID, tokenType). Any earlier token of the same
// type for that user stops validating immediately.
func (s *Service) Issue(ctx context.Context, userID string, tokenType models.TokenType) (*Issued, error) {
	if !tokenType.Valid() {
		return nil, apperror.New(apperror.KindInvalidInput, "unknown token type")
	}

	plaintext, hash, err := opaque.New()
	if err != nil {
		return nil, apperror.Internal("failed to generate token", err)
	}

	now := s.now().UTC()
	token := &models.VerificationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      tokenType,
		TokenHash: hash,
		ExpiresAt: now.Add(s.ttls[tokenType]),
		CreatedAt: now,
	}

	if err := s.store.ReplaceVerificationToken(ctx, token); err != nil {
		return nil, apperror.Internal("failed to store token", err)
	}

	slog.Debug("verification_token_issued", "user_id", userID, "type", tokenType, "expires_at", token.ExpiresAt)
	return &Issued{Token: plaintext, ExpiresAt: token.ExpiresAt}, nil
}

// Consume redeems a token and returns its owner. The record is deleted even
// when it turns out to be expired or of the wrong type, so a given token
// string succeeds at most once.
func (s *Service) Consume(ctx context.Context, token string, expected models.TokenType) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperror.ErrTokenNotFound
	}

	record, err := s.store.ConsumeVerificationToken(ctx, opaque.Hash(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperror.ErrTokenNotFound
		}
		return "", apperror.Internal("failed to consume token", err)
	}

	if record.Expired(s.now()) {
		slog.Info("verification_token_expired", "user_id", record.UserID, "type", record.Type)
		return "", apperror.ErrTokenExpired
	}
	if record.Type != expected {
		slog.Warn("verification_token_type_mismatch", "user_id", record.UserID, "type", record.Type, "expected", expected)
		return "", apperror.ErrTokenTypeMismatch
	}

	return record.UserID, nil
}

// Sweep deletes expired tokens and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredVerificationTokens(ctx, s.now())
}
