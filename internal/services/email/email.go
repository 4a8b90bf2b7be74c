// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email composes and sends the account mails: email verification,
// password reset and password change notices.
package email

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/config"
	"codeberg.org/oliverandrich/identity-service/internal/i18n"
	"codeberg.org/oliverandrich/identity-service/internal/models"
)

// Service renders localized mails and hands them to a Sender.
type Service struct {
	sender  Sender
	baseURL string
}

// NewService creates a mail service. Links in mails point below baseURL.
func NewService(sender Sender, baseURL string) *Service {
	return &Service{
		sender:  sender,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// NewFromConfig picks the SMTP sender when a host is configured and the log
// sender otherwise.
func NewFromConfig(cfg *config.Config) (*Service, error) {
	if cfg.SMTP.Host == "" {
		return NewService(LogSender{}, cfg.Server.BaseURL), nil
	}
	sender, err := NewSMTPSender(&cfg.SMTP)
	if err != nil {
		return nil, err
	}
	return NewService(sender, cfg.Server.BaseURL), nil
}

// SendVerification mails the email verification link.
func (s *Service) SendVerification(ctx context.Context, user *models.User, token string, ttl time.Duration) error {
	return s.sendLink(ctx, user, "email_verification", "/verify-email", token, ttl)
}

// SendPasswordReset mails the password reset link.
func (s *Service) SendPasswordReset(ctx context.Context, user *models.User, token string, ttl time.Duration) error {
	return s.sendLink(ctx, user, "password_reset", "/reset-password", token, ttl)
}

// SendPasswordChanged notifies the user that the password was changed.
func (s *Service) SendPasswordChanged(ctx context.Context, user *models.User) error {
	subject := i18n.T(ctx, "password_changed_subject")
	body := i18n.TData(ctx, "password_changed_body", map[string]any{
		"Username": user.Username,
	})
	return s.send(ctx, user.Email, subject, body)
}

func (s *Service) sendLink(ctx context.Context, user *models.User, messageID, path, token string, ttl time.Duration) error {
	link := s.baseURL + path + "?token=" + url.QueryEscape(token)

	subject := i18n.T(ctx, messageID+"_subject")
	body := i18n.TData(ctx, messageID+"_body", map[string]any{
		"Username": user.Username,
		"URL":      link,
		"TTL":      formatTTL(ctx, ttl),
	})
	return s.send(ctx, user.Email, subject, body)
}

func (s *Service) send(ctx context.Context, to, subject, body string) error {
	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func formatTTL(ctx context.Context, d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return i18n.TPlural(ctx, "duration_hours", int(d/time.Hour))
	}
	return i18n.TPlural(ctx, "duration_minutes", int(d.Round(time.Minute)/time.Minute))
}
