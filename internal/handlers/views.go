// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/models"
	authsvc "codeberg.org/oliverandrich/identity-service/internal/services/auth"
)

// UserView is the public representation of an account.
type UserView struct {
	ID              string      `json:"id"`
	Username        string      `json:"username"`
	Email           string      `json:"email"`
	Role            models.Role `json:"role"`
	IsEmailVerified bool        `json:"isEmailVerified"`
	CreatedAt       time.Time   `json:"createdAt"`
}

func userView(u *models.User) UserView {
	return UserView{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
	}
}

func userViews(users []models.User) []UserView {
	out := make([]UserView, len(users))
	for i := range users {
		out[i] = userView(&users[i])
	}
	return out
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	ExpiresIn        int64     `json:"expiresIn"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	User             UserView  `json:"user"`
}

func tokenResponse(t *authsvc.Tokens) TokenResponse {
	return TokenResponse{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        t.ExpiresIn(time.Now()),
		RefreshExpiresAt: t.RefreshExpiresAt,
		User:             userView(t.User),
	}
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// SessionView describes one signed-in device.
type SessionView struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func sessionViews(sessions []models.Session) []SessionView {
	out := make([]SessionView, len(sessions))
	for i, s := range sessions {
		out[i] = SessionView{ID: s.ID, UserAgent: s.UserAgent, IP: s.IP, CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt}
	}
	return out
}
