// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/i18n"
	authsvc "codeberg.org/oliverandrich/identity-service/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// AuthHandlers serve the public account flows under /api/auth.
type AuthHandlers struct {
	svc    *authsvc.Service
	cookie *RefreshCookie
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *authsvc.Service, cookie *RefreshCookie) *AuthHandlers {
	return &AuthHandlers{svc: svc, cookie: cookie}
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// Signup registers a new end user.
func (h *AuthHandlers) Signup(c echo.Context) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, _, err := h.svc.Signup(c.Request().Context(), authsvc.SignupParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, signupResponse{
		UserID:  user.ID,
		Message: i18n.T(c.Request().Context(), "msg_signup_ok"),
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// VerifyEmail redeems an email verification token.
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	var req tokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}

	user, err := h.svc.VerifyEmail(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": i18n.T(c.Request().Context(), "msg_email_verified"),
		"user":    userView(user),
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResendVerification answers identically whether or not the address exists.
func (h *AuthHandlers) ResendVerification(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(c.Request().Context(), "msg_verification_sent")})
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for an access and a refresh token.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	tokens, err := h.svc.Login(c.Request().Context(), identifier, req.Password, device(c))
	if err != nil {
		return err
	}
	return h.respondTokens(c, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshToken takes the token from the body, falling back to the cookie.
func (h *AuthHandlers) refreshToken(c echo.Context) (string, error) {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return "", err
	}
	if req.RefreshToken == "" && h.cookie != nil {
		req.RefreshToken = h.cookie.Get(c)
	}
	return req.RefreshToken, nil
}

// Refresh rotates the refresh token.
func (h *AuthHandlers) Refresh(c echo.Context) error {
	refresh, err := h.refreshToken(c)
	if err != nil {
		return err
	}
	if refresh == "" {
		return apperror.ErrSessionInvalid
	}

	tokens, err := h.svc.Refresh(c.Request().Context(), refresh, device(c))
	if err != nil {
		if h.cookie != nil {
			h.cookie.Clear(c)
		}
		return err
	}
	return h.respondTokens(c, tokens)
}

// Logout revokes one refresh token. It always succeeds for unknown tokens.
func (h *AuthHandlers) Logout(c echo.Context) error {
	refresh, err := h.refreshToken(c)
	if err != nil {
		return err
	}
	if err := h.svc.Logout(c.Request().Context(), refresh); err != nil {
		return err
	}
	if h.cookie != nil {
		h.cookie.Clear(c)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(c.Request().Context(), "msg_logged_out")})
}

// LogoutAll revokes every session of the caller.
func (h *AuthHandlers) LogoutAll(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	n, err := h.svc.LogoutAll(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	if h.cookie != nil {
		h.cookie.Clear(c)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": i18n.T(c.Request().Context(), "msg_logged_out_all"),
		"revoked": n,
	})
}

// Sessions lists the caller's active sessions.
func (h *AuthHandlers) Sessions(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	sessions, err := h.svc.Sessions(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessionViews(sessions)})
}

// ForgotPassword answers identically whether or not the address exists.
func (h *AuthHandlers) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(c.Request().Context(), "msg_reset_sent")})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword sets a new password using a reset token.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(c.Request().Context(), "msg_password_reset")})
}

func (h *AuthHandlers) respondTokens(c echo.Context, tokens *authsvc.Tokens) error {
	if h.cookie != nil {
		if err := h.cookie.Set(c, tokens.RefreshToken, tokens.RefreshExpiresAt); err != nil {
			slog.Error("refresh_cookie_failed", "user_id", tokens.User.ID, "error", err)
		}
	}
	return c.JSON(http.StatusOK, tokenResponse(tokens))
}
