// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/models"
	"github.com/vinovest/sqlx"
)

const sessionColumns = `id, user_id, token_hash, user_agent, ip, expires_at, created_at`

// CreateSession inserts a new refresh token session.
func (r *Repository) CreateSession(ctx context.Context, session *models.Session) error {
	return wrapError(insertSession(ctx, r.db, session))
}

func insertSession(ctx context.Context, db sqlx.ExtContext, session *models.Session) error {
	_, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		session.ID, session.UserID, session.TokenHash, session.UserAgent, session.IP,
		session.ExpiresAt.UTC(), session.CreatedAt.UTC())
	return err
}

// RotateSession deletes the session identified by oldHash and inserts next
// as its successor in one transaction. next inherits the user of the old
// session. It returns the deleted session, ErrNotFound when no session had
// that hash, or ErrExpired when it had already expired at now; in that case
// the old row is still removed and no successor is created.
func (r *Repository) RotateSession(ctx context.Context, oldHash string, now time.Time, next *models.Session) (*models.Session, error) {
	var old models.Session
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &old,
			tx.Rebind(`DELETE FROM sessions WHERE token_hash = ? RETURNING `+sessionColumns), oldHash)
		if err != nil {
			return wrapError(err)
		}
		if old.Expired(now) {
			return ErrExpired
		}

		next.UserID = old.UserID
		if next.UserAgent == "" {
			next.UserAgent = old.UserAgent
		}
		if next.IP == "" {
			next.IP = old.IP
		}
		return wrapError(insertSession(ctx, tx, next))
	}, ErrExpired)
	if err != nil {
		return nil, err
	}
	return &old, nil
}

// DeleteSessionByHash deletes a single session and returns it, or nil when
// it was already gone.
func (r *Repository) DeleteSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session,
		r.q(`DELETE FROM sessions WHERE token_hash = ? RETURNING `+sessionColumns), tokenHash)
	if err != nil {
		err = wrapError(err)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// DeleteUserSessions deletes every session of a user.
func (r *Repository) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM sessions WHERE user_id = ?`), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListUserSessions returns the unexpired sessions of a user, newest first.
func (r *Repository) ListUserSessions(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	sessions := []models.Session{}
	err := r.db.SelectContext(ctx, &sessions,
		r.q(`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND expires_at > ? ORDER BY created_at DESC`),
		userID, now.UTC())
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// CountActiveSessions returns the number of unexpired sessions.
func (r *Repository) CountActiveSessions(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, r.q(`SELECT count(*) FROM sessions WHERE expires_at > ?`), now.UTC())
	return count, err
}

// DeleteExpiredSessions deletes sessions that expired before now.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM sessions WHERE expires_at <= ?`), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
