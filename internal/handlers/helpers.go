// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/auth"
	"codeberg.org/oliverandrich/identity-service/internal/services/session"
	"github.com/labstack/echo/v4"
)

// bind decodes the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.Wrap(apperror.KindInvalidInput, "malformed request body", err)
	}
	return nil
}

// principal returns the caller set by the auth middleware.
func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFrom(c.Request().Context())
	if !ok {
		return auth.Principal{}, apperror.ErrUnauthenticated
	}
	return p, nil
}

func device(c echo.Context) session.Device {
	return session.Device{
		UserAgent: c.Request().UserAgent(),
		IP:        c.RealIP(),
	}
}
