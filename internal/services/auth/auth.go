// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account use cases on top of the credential
// store, verification tokens, sessions and the access token codec.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/services/credentials"
	"codeberg.org/oliverandrich/identity-service/internal/services/session"
	"codeberg.org/oliverandrich/identity-service/internal/services/token"
	"codeberg.org/oliverandrich/identity-service/internal/services/verification"
)

// Mailer delivers the account mails.
type Mailer interface {
	SendVerification(ctx context.Context, user *models.User, token string, ttl time.Duration) error
	SendPasswordReset(ctx context.Context, user *models.User, token string, ttl time.Duration) error
	SendPasswordChanged(ctx context.Context, user *models.User) error
}

// ReportStore answers the aggregate queries behind the supervisor reports.
type ReportStore interface {
	CountUsersByRole(ctx context.Context) (map[models.Role]int64, error)
	CountUnverifiedUsers(ctx context.Context) (int64, error)
	CountActiveSessions(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	creds           *credentials.Service
	verify          *verification.Service
	sessions        *session.Service
	tokens          *token.Codec
	mail            Mailer
	reports         ReportStore
	requireVerified bool
	now             func() time.Time

	// background mail deliveries of the non-revealing flows
	pending sync.WaitGroup
}

// Deps bundles the collaborators of the orchestrator.
type Deps struct {
	Credentials  *credentials.Service
	Verification *verification.Service
	Sessions     *session.Service
	Tokens       *token.Codec
	Mailer       Mailer
	Reports      ReportStore

	// RequireVerified rejects logins of users with an unverified email.
	RequireVerified bool
}

func NewService(d Deps) *Service {
	return &Service{
		creds:           d.Credentials,
		verify:          d.Verification,
		sessions:        d.Sessions,
		tokens:          d.Tokens,
		mail:            d.Mailer,
		reports:         d.Reports,
		requireVerified: d.RequireVerified,
		now:             time.Now,
	}
}

// Tokens is the result of a login or refresh.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             *models.User
}

// ExpiresIn returns the access token lifetime in whole seconds from now.
func (t *Tokens) ExpiresIn(now time.Time) int64 {
	return int64(t.AccessExpiresAt.Sub(now).Round(time.Second) / time.Second)
}

// SignupParams holds the self-service registration fields.
type SignupParams struct {
	Username string
	Email    string
	Password string
}

// Signup creates an unverified end user and mails the verification link. The
// returned token is the same one that was mailed, or empty when issuing it
// failed.
func (s *Service) Signup(ctx context.Context, p SignupParams) (*models.User, string, error) {
	user, err := s.creds.Create(ctx, credentials.CreateParams{
		Username: p.Username,
		Email:    p.Email,
		Password: p.Password,
		Role:     models.RoleEndUser,
	})
	if err != nil {
		return nil, "", err
	}

	// The account stays; a failed token can be replaced through resend.
	issued, err := s.sendVerification(ctx, user)
	if err != nil {
		slog.Error("verification_issue_failed", "user_id", user.ID, "error", err)
	}

	slog.Info("signup_success", "user_id", user.ID, "username", user.Username)
	return user, issued, nil
}

// VerifyEmail redeems an email verification token.
func (s *Service) VerifyEmail(ctx context.Context, tok string) (*models.User, error) {
	userID, err := s.verify.Consume(ctx, tok, models.TokenEmailVerify)
	if err != nil {
		return nil, err
	}
	if err := s.creds.SetVerified(ctx, userID); err != nil {
		return nil, err
	}

	slog.Info("email_verified", "user_id", userID)
	return s.creds.Get(ctx, userID)
}

// ResendVerification issues a fresh verification token for an unverified
// account. The outcome is not revealed to the caller.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	if err := credentials.ValidateEmail(credentials.NormalizeEmail(email)); err != nil {
		return apperror.Wrap(apperror.KindInvalidInput, err.Error(), err)
	}

	user, err := s.creds.GetByEmail(ctx, email)
	if err != nil {
		s.logQuiet("resend_verification_skipped", err)
		return nil
	}
	if user.IsEmailVerified {
		slog.Debug("resend_verification_skipped", "user_id", user.ID, "reason", "already_verified")
		return nil
	}

	issued, err := s.verify.Issue(ctx, user.ID, models.TokenEmailVerify)
	if err != nil {
		slog.Error("resend_verification_failed", "user_id", user.ID, "error", err)
		return nil
	}
	s.deliver(ctx, "verification_mail_failed", user.ID, func(ctx context.Context) error {
		return s.mail.SendVerification(ctx, user, issued.Token, s.verify.TTL(models.TokenEmailVerify))
	})
	return nil
}

// Login checks the credentials and opens a session on the given device.
func (s *Service) Login(ctx context.Context, identifier, password string, dev session.Device) (*Tokens, error) {
	if strings.TrimSpace(identifier) == "" || password == "" {
		return nil, apperror.New(apperror.KindInvalidInput, "username and password are required")
	}

	user, err := s.creds.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	if s.requireVerified && !user.IsEmailVerified {
		slog.Info("login_rejected", "user_id", user.ID, "reason", "email_not_verified")
		return nil, apperror.New(apperror.KindForbidden, "email address not verified")
	}

	opened, err := s.sessions.Open(ctx, user.ID, dev)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issue(user, opened)
	if err != nil {
		return nil, err
	}

	slog.Info("login_success", "user_id", user.ID, "session_id", opened.SessionID)
	return tokens, nil
}

// Refresh rotates a refresh token and mints a new access token carrying the
// user's current role.
func (s *Service) Refresh(ctx context.Context, refreshToken string, dev session.Device) (*Tokens, error) {
	opened, err := s.sessions.Rotate(ctx, refreshToken, dev)
	if err != nil {
		return nil, err
	}

	user, err := s.creds.Get(ctx, opened.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.sessions.Revoke(ctx, opened.Token)
			return nil, apperror.ErrSessionInvalid
		}
		return nil, err
	}

	return s.issue(user, opened)
}

// Logout ends the session of one refresh token. Unknown tokens succeed.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, refreshToken)
}

// LogoutAll ends every session of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.sessions.RevokeAll(ctx, userID)
}

// ForgotPassword mails a reset link when the address belongs to an account.
// The caller cannot tell whether it did.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if err := credentials.ValidateEmail(credentials.NormalizeEmail(email)); err != nil {
		return apperror.Wrap(apperror.KindInvalidInput, err.Error(), err)
	}

	user, err := s.creds.GetByEmail(ctx, email)
	if err != nil {
		s.logQuiet("password_reset_skipped", err)
		return nil
	}

	issued, err := s.verify.Issue(ctx, user.ID, models.TokenPasswordReset)
	if err != nil {
		slog.Error("password_reset_failed", "user_id", user.ID, "error", err)
		return nil
	}
	s.deliver(ctx, "password_reset_mail_failed", user.ID, func(ctx context.Context) error {
		return s.mail.SendPasswordReset(ctx, user, issued.Token, s.verify.TTL(models.TokenPasswordReset))
	})

	slog.Info("password_reset_requested", "user_id", user.ID)
	return nil
}

// ResetPassword redeems a reset token, stores the new password and signs
// the user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, tok, newPassword string) error {
	if err := s.creds.CheckPassword(newPassword); err != nil {
		return err
	}

	userID, err := s.verify.Consume(ctx, tok, models.TokenPasswordReset)
	if err != nil {
		return err
	}
	if err := s.creds.SetPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	// Receiving the reset mail proves control of the address.
	if err := s.creds.SetVerified(ctx, userID); err != nil {
		return err
	}

	s.afterPasswordChange(ctx, userID)
	slog.Info("password_reset", "user_id", userID)
	return nil
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one. All sessions are revoked.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.creds.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !s.creds.VerifyPassword(user, currentPassword) {
		slog.Warn("change_password_failed", "user_id", userID, "reason", "invalid_password")
		return apperror.New(apperror.KindInvalidCredentials, "current password is incorrect")
	}
	if err := s.creds.SetPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	s.afterPasswordChange(ctx, userID)
	return nil
}

func (s *Service) afterPasswordChange(ctx context.Context, userID string) {
	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
		slog.Error("revoke_sessions_failed", "user_id", userID, "error", err)
	}
	user, err := s.creds.Get(ctx, userID)
	if err != nil {
		return
	}
	if err := s.mail.SendPasswordChanged(ctx, user); err != nil {
		slog.Error("password_changed_mail_failed", "user_id", userID, "error", err)
	}
}

// Profile returns the user behind userID.
func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.creds.Get(ctx, userID)
}

// UpdateProfile changes username and/or email. A new email must be verified
// again; the link is mailed to the new address.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd credentials.ProfileUpdate) (*models.User, error) {
	user, emailChanged, err := s.creds.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, err
	}
	if emailChanged {
		if _, err := s.sendVerification(ctx, user); err != nil {
			slog.Error("verification_mail_failed", "user_id", user.ID, "error", err)
		}
	}
	slog.Info("profile_updated", "user_id", userID, "email_changed", emailChanged)
	return user, nil
}

// Sessions lists the active sessions of a user.
func (s *Service) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.List(ctx, userID)
}

// issue signs an access token for user alongside an opened session.
func (s *Service) issue(user *models.User, opened *session.Opened) (*Tokens, error) {
	access, claims, err := s.tokens.Sign(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken:      access,
		RefreshToken:     opened.Token,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshExpiresAt: opened.ExpiresAt,
		User:             user,
	}, nil
}

// sendVerification issues an email verification token and mails it. Mail
// failures are logged; the token stays valid and can be re-sent.
func (s *Service) sendVerification(ctx context.Context, user *models.User) (string, error) {
	issued, err := s.verify.Issue(ctx, user.ID, models.TokenEmailVerify)
	if err != nil {
		return "", err
	}
	if err := s.mail.SendVerification(ctx, user, issued.Token, s.verify.TTL(models.TokenEmailVerify)); err != nil {
		slog.Error("verification_mail_failed", "user_id", user.ID, "error", err)
	}
	return issued.Token, nil
}

// deliver sends a mail in the background so the caller's response time does
// not depend on the mail server. Failures are logged under event.
func (s *Service) deliver(ctx context.Context, event, userID string, send func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := send(ctx); err != nil {
			slog.Error(event, "user_id", userID, "error", err)
		}
	}()
}

// Wait blocks until all background mail deliveries have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// logQuiet records why a public, non-revealing flow did nothing.
func (s *Service) logQuiet(event string, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		slog.Debug(event, "reason", "unknown_email")
		return
	}
	slog.Error(event, "error", err)
}
