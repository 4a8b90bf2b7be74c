// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/identity-service/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestInit(t *testing.T) {
	require.NoError(t, i18n.Init())
	require.NoError(t, i18n.Init())
}

func TestT(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)
	assert.Equal(t, "Reset your password", i18n.T(ctx, "password_reset_subject"))
}

func TestT_German(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.German)
	assert.Equal(t, "Passwort zurücksetzen", i18n.T(ctx, "password_reset_subject"))
}

func TestT_UnknownKey(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	result := i18n.T(ctx, "unknown_key_that_does_not_exist")
	assert.Equal(t, "unknown_key_that_does_not_exist", result)
}

func TestT_NoLocaleContext(t *testing.T) {
	assert.Equal(t, "Identity Service", i18n.T(context.Background(), "app_name"))
}

func TestTData(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	body := i18n.TData(ctx, "email_verification_body", map[string]any{
		"Username": "alice",
		"URL":      "https://id.example.com/verify-email?token=abc",
		"TTL":      "15m0s",
	})
	assert.Contains(t, body, "Hello alice")
	assert.Contains(t, body, "https://id.example.com/verify-email?token=abc")
	assert.Contains(t, body, "15m0s")
}

func TestTPlural(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "1 session revoked.", i18n.TPlural(ctx, "msg_sessions_revoked", 1))
	assert.Equal(t, "3 sessions revoked.", i18n.TPlural(ctx, "msg_sessions_revoked", 3))
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		expected       language.Tag
		acceptLanguage string
	}{
		{language.English, "en"},
		{language.English, "en-US"},
		{language.German, "de"},
		{language.German, "de-DE"},
		{language.German, "de-AT"},
		{language.English, "fr"},
		{language.English, ""},
		{language.German, "de, en;q=0.9"},
		{language.English, "en, de;q=0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.acceptLanguage, func(t *testing.T) {
			tag := i18n.MatchLanguage(tt.acceptLanguage)
			// Compare base language (ignore region)
			assert.Equal(t, tt.expected.String()[:2], tag.String()[:2])
		})
	}
}

func TestWithLocale_Region(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), i18n.MatchLanguage("de-AT"))
	assert.Equal(t, "de", i18n.GetLocale(ctx))
}

func TestGetLocale_Default(t *testing.T) {
	assert.Equal(t, "en", i18n.GetLocale(context.Background()))
}
