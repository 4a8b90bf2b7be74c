// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session manages refresh token sessions. Each login opens one
// session per device; refreshing rotates the token so that a refresh token
// is accepted at most once.
package session

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

// DefaultTTL is the lifetime of a refresh token.
const DefaultTTL = 7 * 24 * time.Hour

// SessionStore persists hashed refresh tokens. RotateSession must delete the
// old row and insert its successor atomically.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	RotateSession(ctx context.Context, oldHash string, now time.Time, next *models.Session) (*models.Session, error)
	DeleteSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
	ListUserSessions(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

func NewService(store SessionStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TTL returns the refresh token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Device describes the client a session was opened from.
type Device struct {
	UserAgent string
	IP        string
}

// Opened is a new refresh token. Token is the only copy of the plaintext.
type Opened struct {
	Token     string
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

// Open starts a new session for userID.
func (s *Service) Open(ctx context.Context, userID string, dev Device) (*Opened, error) {
	plaintext, next, err := s.newSession(userID, dev)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSession(ctx, next); err != nil {
		return nil, apperror.Internal("failed to store session", err)
	}

	slog.Debug("session_opened", "user_id", userID, "session_id", next.ID)
	return &Opened{Token: plaintext, SessionID: next.ID, UserID: userID, ExpiresAt: next.ExpiresAt}, nil
}

// Rotate exchanges a refresh token for a new one. The old token stops
// working in the same step; presenting it again yields ErrSessionInvalid.
func (s *Service) Rotate(ctx context.Context, token string, dev Device) (*Opened, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.ErrSessionInvalid
	}

	plaintext, next, err := s.newSession("", dev)
	if err != nil {
		return nil, err
	}

	old, err := s.store.RotateSession(ctx, opaque.Hash(token), s.now(), next)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Either never issued or already rotated away.
		slog.Warn("session_refresh_rejected", "reason", "unknown_token", "ip", dev.IP)
		return nil, apperror.ErrSessionInvalid
	case errors.Is(err, repository.ErrExpired):
		slog.Info("session_refresh_rejected", "reason", "expired", "ip", dev.IP)
		return nil, apperror.ErrSessionInvalid
	case err != nil:
		return nil, apperror.Internal("failed to rotate session", err)
	}

	slog.Debug("session_rotated", "user_id", old.UserID, "old_session_id", old.ID, "session_id", next.ID)
	return &Opened{Token: plaintext, SessionID: next.ID, UserID: old.UserID, ExpiresAt: next.ExpiresAt}, nil
}

// Revoke ends the session of a single refresh token. Unknown tokens are
// ignored.
func (s *Service) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	old, err := s.store.DeleteSessionByHash(ctx, opaque.Hash(token))
	if err != nil {
		return apperror.Internal("failed to revoke session", err)
	}
	if old != nil {
		slog.Debug("session_revoked", "user_id", old.UserID, "session_id", old.ID)
	}
	return nil
}

// RevokeAll ends every session of userID and returns how many there were.
func (s *Service) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, apperror.Internal("failed to revoke sessions", err)
	}
	slog.Info("sessions_revoked", "user_id", userID, "count", n)
	return n, nil
}

// List returns the active sessions of userID.
func (s *Service) List(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.store.ListUserSessions(ctx, userID, s.now())
	if err != nil {
		return nil, apperror.Internal("failed to list sessions", err)
	}
	return sessions, nil
}

// Sweep deletes expired sessions and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}

func (s *Service) newSession(userID string, dev Device) (string, *models.Session, error) {
	plaintext, hash, err := opaque.New()
	if err != nil {
		return "", nil, apperror.Internal("failed to generate token", err)
	}
	now := s.now().UTC()
	return plaintext, &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		UserAgent: truncate(dev.UserAgent, 512),
		IP:        truncate(dev.IP, 64),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
