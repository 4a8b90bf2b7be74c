// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/models"
	"github.com/vinovest/sqlx"
)

const userColumns = `id, username, email, password_hash, role, is_email_verified, created_at, updated_at`

// CreateUser inserts a new user. ID and timestamps must be set by the caller.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx, r.q(`INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role,
		user.IsEmailVerified, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	return wrapError(err)
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetUserByUsername retrieves a user by the exact username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// GetUserByEmail retrieves a user by normalised email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, r.q(query), arg); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// ListUsers returns all users ordered by creation date (newest first).
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, username`); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsersByRole returns the number of users per role.
func (r *Repository) CountUsersByRole(ctx context.Context) (map[models.Role]int64, error) {
	var rows []struct {
		Role  models.Role `db:"role"`
		Count int64       `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT role, count(*) AS count FROM users GROUP BY role`); err != nil {
		return nil, err
	}

	counts := make(map[models.Role]int64, len(models.Roles()))
	for _, role := range models.Roles() {
		counts[role] = 0
	}
	for _, row := range rows {
		counts[row.Role] = row.Count
	}
	return counts, nil
}

// CountUnverifiedUsers returns the number of users without a verified email.
func (r *Repository) CountUnverifiedUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, r.q(`SELECT count(*) FROM users WHERE is_email_verified = ?`), false)
	return count, err
}

// CountAdmins returns the number of admin users.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, r.q(`SELECT count(*) FROM users WHERE role = ?`), models.RoleAdmin)
	return count, err
}

// UpdateUserPassword overwrites a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return r.updateUser(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now(), id)
}

// UpdateUserRole sets a user's role.
func (r *Repository) UpdateUserRole(ctx context.Context, id string, role models.Role) error {
	return r.updateUser(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		role, now(), id)
}

// SetUserVerified marks a user's email as verified or unverified.
func (r *Repository) SetUserVerified(ctx context.Context, id string, verified bool) error {
	return r.updateUser(ctx, `UPDATE users SET is_email_verified = ?, updated_at = ? WHERE id = ?`,
		verified, now(), id)
}

// UpdateUserProfile changes username, email and verification state together.
func (r *Repository) UpdateUserProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = now()
	return r.updateUser(ctx, `UPDATE users SET username = ?, email = ?, is_email_verified = ?, updated_at = ? WHERE id = ?`,
		user.Username, user.Email, user.IsEmailVerified, user.UpdatedAt, user.ID)
}

func (r *Repository) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return wrapError(err)
	}
	return expectRows(res)
}

// DeleteUser removes a user together with their sessions and verification tokens.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sessions WHERE user_id = ?`), id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM verification_tokens WHERE user_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE id = ?`), id)
		if err != nil {
			return err
		}
		return expectRows(res)
	})
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectRows(res rowsAffecter) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
