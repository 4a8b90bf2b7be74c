// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"
)

var configFile = altsrc.StringSourcer("config.toml")

// MinSecretLength is the minimum length of the access token signing secret.
const MinSecretLength = 32

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Auth     AuthConfig
	Cookie   CookieConfig
	SMTP     SMTPConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
	Dev         bool
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN           string        // file path, ":memory:" or postgres:// URL
	SweepInterval time.Duration // how often expired tokens and sessions are purged
}

type TLSConfig struct {
	Mode     string // off, manual, acme
	CertDir  string // autocert cache directory (acme mode)
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

// AuthConfig holds the token lifetimes and password policy.
type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	AccessSecret      string
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	VerifyTTL         time.Duration
	ResetTTL          time.Duration
	BcryptCost        int
	PasswordMinLength int
	RequireVerified   bool
}

type CookieConfig struct { //nolint:govet // fieldalignment not critical
	Name     string // refresh token cookie name
	Secure   bool
	HashKey  string // 32-byte hex string for HMAC signing
	BlockKey string // 32-byte hex string for AES encryption (optional)
}

// SMTPConfig configures outbound mail. An empty Host logs mails instead of sending them.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			Dev:         cmd.Bool("dev"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN:           cmd.String("database-dsn"),
			SweepInterval: cmd.Duration("sweep-interval"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Auth: AuthConfig{
			AccessSecret:      cmd.String("access-token-secret"),
			Issuer:            cmd.String("token-issuer"),
			AccessTTL:         cmd.Duration("access-token-ttl"),
			RefreshTTL:        cmd.Duration("refresh-token-ttl"),
			VerifyTTL:         cmd.Duration("verification-token-ttl"),
			ResetTTL:          cmd.Duration("reset-token-ttl"),
			BcryptCost:        int(cmd.Int("bcrypt-cost")),
			PasswordMinLength: int(cmd.Int("password-min-length")),
			RequireVerified:   cmd.Bool("require-verified"),
		},
		Cookie: CookieConfig{
			Name:     cmd.String("cookie-name"),
			Secure:   cmd.Bool("cookie-secure"),
			HashKey:  cmd.String("cookie-hash-key"),
			BlockKey: cmd.String("cookie-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.AccessSecret == "" && !c.Server.Dev {
		errs = append(errs, errors.New("access-token-secret is required outside dev mode"))
	}
	if c.Auth.AccessSecret != "" && len(c.Auth.AccessSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("access-token-secret must be at least %d bytes", MinSecretLength))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 || c.Auth.VerifyTTL <= 0 || c.Auth.ResetTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt-cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Auth.PasswordMinLength < 1 {
		errs = append(errs, errors.New("password-min-length must be at least 1"))
	}
	switch strings.ToLower(c.TLS.Mode) {
	case "", "off", "acme":
	case "manual":
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			errs = append(errs, errors.New("tls-cert-file and tls-key-file are required in manual mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tls-mode %q", c.TLS.Mode))
	}

	return errors.Join(errs...)
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	scheme := "http"
	if mode == "manual" {
		scheme = "https"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL used in mailed links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.BoolFlag{
			Name:    "dev",
			Usage:   "Development mode (generates a throwaway signing secret if none is set)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DEV"), toml.TOML("server.dev", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/identity.db",
			Usage:   "SQLite path or postgres:// URL",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Value:   10 * time.Minute,
			Usage:   "Interval for purging expired tokens and sessions (0 disables)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SWEEP_INTERVAL"), toml.TOML("database.sweep_interval", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "off",
			Usage:   "TLS mode (off, manual, acme)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Certificate cache directory (acme mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "access-token-secret",
			Usage:   "HMAC secret for access tokens (at least 32 bytes)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_SECRET"), toml.TOML("auth.access_token_secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "token-issuer",
			Value:   "identity-service",
			Usage:   "Issuer claim of access tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_ISSUER"), toml.TOML("auth.issuer", configFile)),
		},
		&cli.DurationFlag{
			Name:    "access-token-ttl",
			Value:   15 * time.Minute,
			Usage:   "Access token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_TTL"), toml.TOML("auth.access_token_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "refresh-token-ttl",
			Value:   7 * 24 * time.Hour,
			Usage:   "Refresh token (session) lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_TOKEN_TTL"), toml.TOML("auth.refresh_token_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "verification-token-ttl",
			Value:   15 * time.Minute,
			Usage:   "Email verification token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("VERIFICATION_TOKEN_TTL"), toml.TOML("auth.verification_token_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "reset-token-ttl",
			Value:   time.Hour,
			Usage:   "Password reset token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_TOKEN_TTL"), toml.TOML("auth.reset_token_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   bcrypt.DefaultCost,
			Usage:   "bcrypt work factor",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BCRYPT_COST"), toml.TOML("auth.bcrypt_cost", configFile)),
		},
		&cli.IntFlag{
			Name:    "password-min-length",
			Value:   5,
			Usage:   "Minimum password length",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PASSWORD_MIN_LENGTH"), toml.TOML("auth.password_min_length", configFile)),
		},
		&cli.BoolFlag{
			Name:    "require-verified",
			Usage:   "Reject logins of accounts with unverified email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REQUIRE_VERIFIED"), toml.TOML("auth.require_verified", configFile)),
		},
		// Cookie flags
		&cli.StringFlag{
			Name:    "cookie-name",
			Value:   "_refresh",
			Usage:   "Refresh token cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_NAME"), toml.TOML("cookie.name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "cookie-secure",
			Usage:   "Send the refresh cookie over HTTPS only",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_SECURE"), toml.TOML("cookie.secure", configFile)),
		},
		&cli.StringFlag{
			Name:    "cookie-hash-key",
			Usage:   "Cookie hash key (32-byte hex, auto-generated if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_HASH_KEY"), toml.TOML("cookie.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "cookie-block-key",
			Usage:   "Cookie block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_BLOCK_KEY"), toml.TOML("cookie.block_key", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (empty logs mails instead of sending)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@localhost",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
	}
}
