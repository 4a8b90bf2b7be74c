// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/identity-service/internal/i18n"
	authsvc "codeberg.org/oliverandrich/identity-service/internal/services/auth"
	"codeberg.org/oliverandrich/identity-service/internal/services/credentials"
	"github.com/labstack/echo/v4"
)

// AccountHandlers serve the signed-in user's own account.
type AccountHandlers struct {
	svc    *authsvc.Service
	cookie *RefreshCookie
}

func NewAccount(svc *authsvc.Service, cookie *RefreshCookie) *AccountHandlers {
	return &AccountHandlers{svc: svc, cookie: cookie}
}

// Profile returns the caller's account.
func (h *AccountHandlers) Profile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	user, err := h.svc.Profile(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userView(user))
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UpdateProfile changes username and/or email.
func (h *AccountHandlers) UpdateProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.svc.UpdateProfile(c.Request().Context(), p.UserID, credentials.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userView(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword replaces the caller's password and signs out all devices.
func (h *AccountHandlers) ChangePassword(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.svc.ChangePassword(c.Request().Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	if h.cookie != nil {
		h.cookie.Clear(c)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(c.Request().Context(), "msg_password_changed")})
}

type dashboardResponse struct {
	User           UserView `json:"user"`
	ActiveSessions int      `json:"activeSessions"`
	CanViewReports bool     `json:"canViewReports"`
	CanManageUsers bool     `json:"canManageUsers"`
}

// Dashboard returns the caller's overview.
func (h *AccountHandlers) Dashboard(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	dash, err := h.svc.Dashboard(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dashboardResponse{
		User:           userView(dash.User),
		ActiveSessions: dash.ActiveSessions,
		CanViewReports: dash.CanViewReports,
		CanManageUsers: dash.CanManageUsers,
	})
}
