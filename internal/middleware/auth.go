// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds the echo middleware guarding the API: bearer
// token authentication, role checks, request logging and locale selection.
package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/auth"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/services/token"
	"github.com/labstack/echo/v4"
)

// TokenVerifier decodes access tokens.
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// Authenticate extracts and verifies the bearer token from an Authorization
// header value.
func Authenticate(verifier TokenVerifier, header string) (auth.Principal, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	raw = strings.TrimSpace(raw)
	if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
		return auth.Principal{}, apperror.ErrUnauthenticated
	}

	claims, err := verifier.Verify(raw)
	if err != nil {
		if errors.Is(err, apperror.ErrTokenExpired) {
			return auth.Principal{}, apperror.Wrap(apperror.KindUnauthenticated, "access token expired", err)
		}
		return auth.Principal{}, apperror.Wrap(apperror.KindUnauthenticated, "access token invalid", err)
	}

	return auth.Principal{UserID: claims.UserID, Role: claims.Role, TokenID: claims.ID}, nil
}

// Authorize checks that p holds at least minRole.
func Authorize(p auth.Principal, minRole models.Role) error {
	if !p.Role.AtLeast(minRole) {
		return apperror.ErrForbidden
	}
	return nil
}

// RequireAuth rejects requests without a valid access token and stores the
// principal in the request context.
func RequireAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := Authenticate(verifier, c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}
			ctx := auth.WithPrincipal(c.Request().Context(), p)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireMinRole must run after RequireAuth.
func RequireMinRole(minRole models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := auth.PrincipalFrom(c.Request().Context())
			if !ok {
				return apperror.ErrUnauthenticated
			}
			if err := Authorize(p, minRole); err != nil {
				slog.Info("access_denied", "user_id", p.UserID, "role", p.Role, "required", minRole, "path", c.Path())
				return err
			}
			return next(c)
		}
	}
}

// RequireAdmin ensures the caller is an admin.
func RequireAdmin() echo.MiddlewareFunc {
	return RequireMinRole(models.RoleAdmin)
}

// RequireSupervisor ensures the caller is a supervisor or admin.
func RequireSupervisor() echo.MiddlewareFunc {
	return RequireMinRole(models.RoleSupervisor)
}
