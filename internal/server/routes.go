// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/oliverandrich/identity-service/internal/config"
	"codeberg.org/oliverandrich/identity-service/internal/handlers"
	"codeberg.org/oliverandrich/identity-service/internal/middleware"
	"github.com/labstack/echo/v4"
)

// NewEcho builds the HTTP surface of app.
func NewEcho(cfg *config.Config, app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg)
	setupRoutes(e, app)

	return e
}

func setupRoutes(e *echo.Echo, app *App) {
	h := handlers.New(app.Repo)
	authH := handlers.NewAuth(app.Auth, app.Cookie)
	accountH := handlers.NewAccount(app.Auth, app.Cookie)
	adminH := handlers.NewAdmin(app.Auth)

	e.GET("/health", h.Health)

	api := e.Group("/api")

	// Public
	pub := api.Group("/auth")
	pub.POST("/signup", authH.Signup)
	pub.POST("/verify-email", authH.VerifyEmail)
	pub.GET("/verify-email", authH.VerifyEmail)
	pub.POST("/resend-verification", authH.ResendVerification)
	pub.POST("/login", authH.Login)
	pub.POST("/refresh", authH.Refresh)
	pub.POST("/logout", authH.Logout)
	pub.POST("/forgot-password", authH.ForgotPassword)
	pub.POST("/reset-password", authH.ResetPassword)

	// Authenticated. Route-level middleware keeps unknown /api paths at 404.
	requireAuth := middleware.RequireAuth(app.Tokens)
	api.POST("/auth/logout-all", authH.LogoutAll, requireAuth)
	api.GET("/auth/sessions", authH.Sessions, requireAuth)
	api.GET("/profile", accountH.Profile, requireAuth)
	api.PUT("/profile", accountH.UpdateProfile, requireAuth)
	api.POST("/change-password", accountH.ChangePassword, requireAuth)
	api.GET("/admin/dashboard", accountH.Dashboard, requireAuth)

	// Supervisor and up
	api.GET("/admin/reports", adminH.Reports, requireAuth, middleware.RequireSupervisor())

	// Admin only
	admin := api.Group("/admin/users", requireAuth, middleware.RequireAdmin())
	admin.GET("", adminH.ListUsers)
	admin.POST("", adminH.CreateUsers)
	admin.DELETE("", adminH.DeleteUsers)
	admin.GET("/:id", adminH.GetUser)
	admin.DELETE("/:id", adminH.DeleteUser)
	admin.PUT("/:id/role", adminH.SetRole)
}
