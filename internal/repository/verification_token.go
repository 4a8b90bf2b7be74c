// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/models"
)

const tokenColumns = `id, user_id, type, token_hash, expires_at, created_at`

// ReplaceVerificationToken stores token as the only token of its type for the
// user. A previous token of the same (user, type) is overwritten in the same
// statement, so it stops validating immediately.
func (r *Repository) ReplaceVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	_, err := r.db.ExecContext(ctx, r.q(`INSERT INTO verification_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, type) DO UPDATE SET
			id = excluded.id,
			token_hash = excluded.token_hash,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`),
		token.ID, token.UserID, token.Type, token.TokenHash, token.ExpiresAt.UTC(), token.CreatedAt.UTC())
	return wrapError(err)
}

// ConsumeVerificationToken deletes the token with the given hash and returns
// the deleted row. Two concurrent calls never both see the row.
func (r *Repository) ConsumeVerificationToken(ctx context.Context, tokenHash string) (*models.VerificationToken, error) {
	var token models.VerificationToken
	err := r.db.GetContext(ctx, &token,
		r.q(`DELETE FROM verification_tokens WHERE token_hash = ? RETURNING `+tokenColumns), tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// GetVerificationToken retrieves the live token of a type for a user.
func (r *Repository) GetVerificationToken(ctx context.Context, userID string, tokenType models.TokenType) (*models.VerificationToken, error) {
	var token models.VerificationToken
	err := r.db.GetContext(ctx, &token,
		r.q(`SELECT `+tokenColumns+` FROM verification_tokens WHERE user_id = ? AND type = ?`), userID, tokenType)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// DeleteExpiredVerificationTokens deletes tokens that expired before now.
func (r *Repository) DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM verification_tokens WHERE expires_at <= ?`), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
