// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/services/credentials"
)

// AdminCreateParams describes an account created by an administrator.
type AdminCreateParams struct {
	Username         string
	Email            string
	Password         string
	Role             models.Role
	SkipVerification bool
}

// AdminCreate creates an account with a non-admin role. Unless verification
// is skipped, the user receives a verification mail like on signup.
func (s *Service) AdminCreate(ctx context.Context, actorID string, p AdminCreateParams) (*models.User, error) {
	if p.Role == models.RoleAdmin {
		return nil, apperror.New(apperror.KindForbidden, "admin accounts cannot be created through the API")
	}

	user, err := s.creds.Create(ctx, credentials.CreateParams{
		Username:    p.Username,
		Email:       p.Email,
		Password:    p.Password,
		Role:        p.Role,
		PreVerified: p.SkipVerification,
	})
	if err != nil {
		return nil, err
	}

	if !p.SkipVerification {
		if _, err := s.sendVerification(ctx, user); err != nil {
			slog.Error("verification_issue_failed", "user_id", user.ID, "error", err)
		}
	}

	slog.Info("admin_user_created", "actor_id", actorID, "user_id", user.ID, "role", user.Role)
	return user, nil
}

// AdminCreateBatch creates every entry independently and reports one result
// per entry in input order.
func (s *Service) AdminCreateBatch(ctx context.Context, actorID string, params []AdminCreateParams) []credentials.BatchResult {
	results := make([]credentials.BatchResult, len(params))
	for i, p := range params {
		user, err := s.AdminCreate(ctx, actorID, p)
		results[i] = credentials.BatchResult{Index: i, User: user, Err: err}
	}
	return results
}

// ListUsers returns all accounts.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.creds.List(ctx)
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.creds.Get(ctx, userID)
}

// DeleteUser removes an account with its sessions and tokens. Admins cannot
// delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return apperror.New(apperror.KindForbidden, "you cannot delete your own account")
	}
	if err := s.creds.Delete(ctx, userID); err != nil {
		return err
	}
	slog.Info("admin_user_deleted", "actor_id", actorID, "user_id", userID)
	return nil
}

// DeleteResult is the outcome of deleting one account of a bulk request.
type DeleteResult struct {
	ID  string
	Err error
}

// DeleteUsers deletes each listed account independently.
func (s *Service) DeleteUsers(ctx context.Context, actorID string, ids []string) []DeleteResult {
	results := make([]DeleteResult, len(ids))
	for i, id := range ids {
		results[i] = DeleteResult{ID: id, Err: s.DeleteUser(ctx, actorID, strings.TrimSpace(id))}
	}
	return results
}

// SetUserRole assigns a non-admin role. Admins cannot change their own role.
func (s *Service) SetUserRole(ctx context.Context, actorID, userID string, role models.Role) (*models.User, error) {
	if actorID == userID {
		return nil, apperror.New(apperror.KindForbidden, "you cannot change your own role")
	}
	if err := s.creds.SetRole(ctx, userID, role); err != nil {
		return nil, err
	}
	slog.Info("admin_role_changed", "actor_id", actorID, "user_id", userID, "role", role)
	return s.creds.Get(ctx, userID)
}

// EnsureAdmin makes username an administrator, creating a verified account
// when it does not exist yet. It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (*models.User, bool, error) {
	user, err := s.creds.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if err := s.creds.GrantAdmin(ctx, user.ID); err != nil {
			return nil, false, err
		}
		user.Role = models.RoleAdmin
		return user, false, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, false, err
	}

	user, err = s.creds.Create(ctx, credentials.CreateParams{
		Username:    username,
		Email:       email,
		Password:    password,
		Role:        models.RoleAdmin,
		PreVerified: true,
	})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Report summarizes the user base for supervisors.
type Report struct {
	TotalUsers      int64
	UsersByRole     map[models.Role]int64
	UnverifiedUsers int64
	ActiveSessions  int64
}

// Reports aggregates account and session counts.
func (s *Service) Reports(ctx context.Context) (*Report, error) {
	byRole, err := s.reports.CountUsersByRole(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to count users", err)
	}
	unverified, err := s.reports.CountUnverifiedUsers(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to count unverified users", err)
	}
	active, err := s.reports.CountActiveSessions(ctx, s.now())
	if err != nil {
		return nil, apperror.Internal("failed to count sessions", err)
	}

	report := &Report{UsersByRole: make(map[models.Role]int64, len(byRole)), UnverifiedUsers: unverified, ActiveSessions: active}
	for _, role := range models.Roles() {
		report.UsersByRole[role] = byRole[role]
		report.TotalUsers += byRole[role]
	}
	return report, nil
}

// Dashboard is the landing view of any signed-in user.
type Dashboard struct {
	User           *models.User
	ActiveSessions int
	CanViewReports bool
	CanManageUsers bool
}

// Dashboard returns the caller's own account overview.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	user, err := s.creds.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		User:           user,
		ActiveSessions: len(sessions),
		CanViewReports: user.Role.AtLeast(models.RoleSupervisor),
		CanManageUsers: user.Role.AtLeast(models.RoleAdmin),
	}, nil
}
