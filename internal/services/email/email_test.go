// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"bytes"
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/config"
	"codeberg.org/oliverandrich/identity-service/internal/i18n"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func validSMTPConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "testuser",
		Password: "testpass",
		From:     "noreply@example.com",
		FromName: "Test App",
		TLS:      true,
	}
}

var alice = &models.User{Username: "alice", Email: "alice@example.com"}

func TestNewSMTPSender(t *testing.T) {
	sender, err := NewSMTPSender(validSMTPConfig())
	require.NoError(t, err)
	assert.NotNil(t, sender)
}

func TestNewSMTPSender_MissingHost(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = ""

	_, err := NewSMTPSender(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP host is required")
}

func TestNewSMTPSender_MissingFrom(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.From = ""

	_, err := NewSMTPSender(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP from address is required")
}

func TestSMTPSender_Message(t *testing.T) {
	sender, err := NewSMTPSender(validSMTPConfig())
	require.NoError(t, err)

	msg, err := sender.message("alice@example.com", "Hello", "Body text")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Subject: Hello")
	assert.Contains(t, buf.String(), `"Test App" <noreply@example.com>`)
	assert.Contains(t, buf.String(), "<alice@example.com>")

	_, err = sender.message("not an address", "Hello", "Body")
	assert.Error(t, err)
}

func TestSMTPSender_ClientOptions(t *testing.T) {
	cfg := validSMTPConfig()
	sender, err := NewSMTPSender(cfg)
	require.NoError(t, err)
	withAuth := len(sender.clientOptions())

	cfg.Username = ""
	assert.Len(t, sender.clientOptions(), withAuth-3)

	cfg.Port = 465
	assert.Len(t, sender.clientOptions(), withAuth-2)
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.BaseURL = "https://id.example.com/"

	svc, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.IsType(t, LogSender{}, svc.sender)
	assert.Equal(t, "https://id.example.com", svc.baseURL)

	cfg.SMTP = *validSMTPConfig()
	svc, err = NewFromConfig(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, svc.sender)
}

func TestSendVerification(t *testing.T) {
	outbox := &testutil.Outbox{}
	svc := NewService(outbox, "https://id.example.com/")

	require.NoError(t, svc.SendVerification(context.Background(), alice, "abc123", 15*time.Minute))

	mail, ok := outbox.Last("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "Confirm your email address", mail.Subject)
	assert.Contains(t, mail.Body, "https://id.example.com/verify-email?token=abc123")
	assert.Contains(t, mail.Body, "15 minutes")
	assert.Equal(t, "abc123", mail.Token())
}

func TestSendPasswordReset_German(t *testing.T) {
	outbox := &testutil.Outbox{}
	svc := NewService(outbox, "https://id.example.com")
	ctx := i18n.WithLocale(context.Background(), language.German)

	require.NoError(t, svc.SendPasswordReset(ctx, alice, "def456", time.Hour))

	mail, ok := outbox.Last("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "Passwort zurücksetzen", mail.Subject)
	assert.Contains(t, mail.Body, "https://id.example.com/reset-password?token=def456")
	assert.Contains(t, mail.Body, "1 Stunde")
}

func TestSendPasswordChanged(t *testing.T) {
	outbox := &testutil.Outbox{}
	svc := NewService(outbox, "https://id.example.com")

	require.NoError(t, svc.SendPasswordChanged(context.Background(), alice))

	mail, ok := outbox.Last("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "Your password was changed", mail.Subject)
	assert.Empty(t, mail.Token())
}

func TestSend_Failure(t *testing.T) {
	outbox := &testutil.Outbox{Fail: true}
	svc := NewService(outbox, "https://id.example.com")

	err := svc.SendPasswordChanged(context.Background(), alice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice@example.com")
}

func TestFormatTTL(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "1 minute", formatTTL(ctx, time.Minute))
	assert.Equal(t, "90 minutes", formatTTL(ctx, 90*time.Minute))
	assert.Equal(t, "168 hours", formatTTL(ctx, 7*24*time.Hour))
}
