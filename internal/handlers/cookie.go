// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/config"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
)

// RefreshCookie stores the refresh token in a signed, optionally encrypted,
// HttpOnly cookie so browser clients never handle it directly.
type RefreshCookie struct {
	name   string
	secure bool
	codec  *securecookie.SecureCookie
}

// NewRefreshCookie builds the cookie codec. Keys are 32-byte hex strings; an
// empty hash key is replaced by a random one, which invalidates cookies on
// restart.
func NewRefreshCookie(cfg *config.CookieConfig, maxAge time.Duration) (*RefreshCookie, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		hashKey = make([]byte, 32)
		if _, err := rand.Read(hashKey); err != nil {
			return nil, fmt.Errorf("generate cookie hash key: %w", err)
		}
		slog.Warn("cookie_hash_key_generated", "hint", "set --cookie-hash-key to keep refresh cookies across restarts")
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "_refresh"
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(maxAge / time.Second))

	return &RefreshCookie{name: name, secure: cfg.Secure, codec: codec}, nil
}

func decodeKey(value, kind string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie %s key: %w", kind, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid cookie %s key: must be 32 bytes, got %d", kind, len(key))
	}
	return key, nil
}

// Set writes the refresh token cookie.
func (r *RefreshCookie) Set(c echo.Context, token string, expiresAt time.Time) error {
	encoded, err := r.codec.Encode(r.name, token)
	if err != nil {
		return fmt.Errorf("encode refresh cookie: %w", err)
	}
	c.SetCookie(&http.Cookie{
		Name:     r.name,
		Value:    encoded,
		Path:     "/api/auth",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt) / time.Second),
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Get returns the refresh token from the cookie, or "" when it is missing or
// fails verification.
func (r *RefreshCookie) Get(c echo.Context) string {
	cookie, err := c.Cookie(r.name)
	if err != nil {
		return ""
	}
	var token string
	if err := r.codec.Decode(r.name, cookie.Value, &token); err != nil {
		slog.Debug("refresh_cookie_rejected", "error", err)
		return ""
	}
	return token
}

// Clear removes the cookie from the client.
func (r *RefreshCookie) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     r.name,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
