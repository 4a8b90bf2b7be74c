// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"

	"codeberg.org/oliverandrich/identity-service/internal/config"
	"codeberg.org/oliverandrich/identity-service/internal/handlers"
	"codeberg.org/oliverandrich/identity-service/internal/repository"
	authsvc "codeberg.org/oliverandrich/identity-service/internal/services/auth"
	"codeberg.org/oliverandrich/identity-service/internal/services/credentials"
	"codeberg.org/oliverandrich/identity-service/internal/services/email"
	"codeberg.org/oliverandrich/identity-service/internal/services/session"
	"codeberg.org/oliverandrich/identity-service/internal/services/sweeper"
	"codeberg.org/oliverandrich/identity-service/internal/services/token"
	"codeberg.org/oliverandrich/identity-service/internal/services/verification"
)

// App holds the wired services of one process.
type App struct {
	Repo         *repository.Repository
	Credentials  *credentials.Service
	Verification *verification.Service
	Sessions     *session.Service
	Tokens       *token.Codec
	Auth         *authsvc.Service
	Cookie       *handlers.RefreshCookie
	Sweeper      *sweeper.Sweeper
}

// NewApp wires the services on top of repo. A nil mailer is replaced by the
// one configured in cfg.
func NewApp(cfg *config.Config, repo *repository.Repository, mailer authsvc.Mailer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if mailer == nil {
		m, err := email.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to configure mail: %w", err)
		}
		mailer = m
	}

	codec, err := newCodec(cfg)
	if err != nil {
		return nil, err
	}

	creds := credentials.NewService(repo, cfg.Auth.BcryptCost,
		credentials.DefaultPasswordValidator(cfg.Auth.PasswordMinLength))
	verify := verification.NewService(repo, cfg.Auth.VerifyTTL, cfg.Auth.ResetTTL)
	sessions := session.NewService(repo, cfg.Auth.RefreshTTL)

	cookie, err := handlers.NewRefreshCookie(&cfg.Cookie, sessions.TTL())
	if err != nil {
		return nil, fmt.Errorf("failed to configure refresh cookie: %w", err)
	}

	return &App{
		Repo:         repo,
		Credentials:  creds,
		Verification: verify,
		Sessions:     sessions,
		Tokens:       codec,
		Auth: authsvc.NewService(authsvc.Deps{
			Credentials:     creds,
			Verification:    verify,
			Sessions:        sessions,
			Tokens:          codec,
			Mailer:          mailer,
			Reports:         repo,
			RequireVerified: cfg.Auth.RequireVerified,
		}),
		Cookie: cookie,
		Sweeper: sweeper.New(cfg.Database.SweepInterval,
			sweeper.Target{Name: "verification_tokens", Sweepable: verify},
			sweeper.Target{Name: "sessions", Sweepable: sessions},
		),
	}, nil
}

func newCodec(cfg *config.Config) (*token.Codec, error) {
	secret := []byte(cfg.Auth.AccessSecret)
	if cfg.Server.Dev {
		return token.NewDevCodec(secret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	}
	codec, err := token.NewCodec(secret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure access tokens: %w", err)
	}
	return codec, nil
}
