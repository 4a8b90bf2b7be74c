// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token_test

import (
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/services/token"
	"codeberg.org/oliverandrich/identity-service/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec([]byte(testutil.TestSecret), "test", time.Minute)
	require.NoError(t, err)
	return codec
}

func TestSignVerify(t *testing.T) {
	codec := newCodec(t)

	signed, issued, err := codec.Sign("user-1", models.RoleSupervisor)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(signed, "."))

	claims, err := codec.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleSupervisor, claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt))
}

func TestSign_RejectsBadInput(t *testing.T) {
	codec := newCodec(t)

	_, _, err := codec.Sign("", models.RoleEndUser)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, _, err = codec.Sign("user-1", models.Role("root"))
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Now()
	codec := newCodec(t).WithClock(func() time.Time { return now })

	signed, _, err := codec.Sign("user-1", models.RoleEndUser)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = codec.Verify(signed)
	assert.ErrorIs(t, err, apperror.ErrTokenExpired)
}

func TestVerify_Invalid(t *testing.T) {
	codec := newCodec(t)
	signed, _, err := codec.Sign("user-1", models.RoleAdmin)
	require.NoError(t, err)

	otherKey, err := token.NewCodec([]byte(strings.Repeat("k", 40)), "test", time.Minute)
	require.NoError(t, err)
	otherIssuer, err := token.NewCodec([]byte(testutil.TestSecret), "someone-else", time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1", "role": "admin", "iss": "test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "user-1", "role": "admin", "iss": "test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testutil.TestSecret))
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		codec *token.Codec
		token string
	}{
		{"empty", codec, ""},
		{"garbage", codec, "not-a-jwt"},
		{"tampered payload", codec, tampered},
		{"wrong key", otherKey, signed},
		{"wrong issuer", otherIssuer, signed},
		{"alg none", codec, none},
		{"other hmac alg", codec, hs512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Verify(tt.token)
			assert.ErrorIs(t, err, apperror.ErrTokenInvalid)
		})
	}
}

func TestVerify_MissingRole(t *testing.T) {
	codec := newCodec(t)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "iss": "test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testutil.TestSecret))
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)
}

func TestNewCodec_ShortSecret(t *testing.T) {
	_, err := token.NewCodec([]byte("short"), "", 0)
	assert.Error(t, err)
}

func TestNewDevCodec_GeneratesSecret(t *testing.T) {
	codec, err := token.NewDevCodec(nil, "", 0)
	require.NoError(t, err)
	assert.Equal(t, token.DefaultTTL, codec.TTL())

	signed, _, err := codec.Sign("user-1", models.RoleEndUser)
	require.NoError(t, err)
	_, err = codec.Verify(signed)
	assert.NoError(t, err)
}
