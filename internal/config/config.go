// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package config

import (
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var (
	configPath = "config.toml"
	configFile = altsrc.NewStringPtrSourcer(&configPath)
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Mailer    MailerConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host string
	Port int
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical
	JWTSecret    string // HMAC secret for bearer tokens
	TokenTTL     time.Duration
	CookieName   string
	CookieSecure bool // HTTPS-only cookie
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// MailerConfig tunes the dispatch worker pool and its retry policy.
type MailerConfig struct { //nolint:govet // fieldalignment not critical
	Workers      int
	PollInterval time.Duration
	LeaseTTL     time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	RetryMaxWait time.Duration
}

// RateLimitConfig tunes the per-account email throttle.
type RateLimitConfig struct {
	WindowMinutes int
	MaxPerWindow  int
}

func NewFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Server: ServerConfig{
			Host: cmd.String("host"),
			Port: int(cmd.Int("port")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Auth: AuthConfig{
			JWTSecret:    cmd.String("jwt-secret"),
			TokenTTL:     time.Duration(cmd.Int("token-ttl-minutes")) * time.Minute,
			CookieName:   cmd.String("cookie-name"),
			CookieSecure: cmd.Bool("cookie-secure"),
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
		Mailer: MailerConfig{
			Workers:      int(cmd.Int("mailer-workers")),
			PollInterval: time.Duration(cmd.Int("mailer-poll-seconds")) * time.Second,
			LeaseTTL:     time.Duration(cmd.Int("mailer-lease-seconds")) * time.Second,
			MaxAttempts:  int(cmd.Int("mailer-max-attempts")),
			RetryBackoff: time.Duration(cmd.Int("mailer-retry-backoff-seconds")) * time.Second,
			RetryMaxWait: time.Duration(cmd.Int("mailer-retry-max-wait-seconds")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			WindowMinutes: int(cmd.Int("email-window-minutes")),
			MaxPerWindow:  int(cmd.Int("email-max-per-window")),
		},
	}
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
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
			Value:   "./data/authgate.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "HMAC secret for bearer tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JWT_SECRET"), toml.TOML("auth.jwt_secret", configFile)),
		},
		&cli.IntFlag{
			Name:    "token-ttl-minutes",
			Value:   60,
			Usage:   "Bearer token lifetime in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_TTL_MINUTES"), toml.TOML("auth.token_ttl_minutes", configFile)),
		},
		&cli.StringFlag{
			Name:    "cookie-name",
			Value:   "token",
			Usage:   "Bearer token cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_NAME"), toml.TOML("auth.cookie_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "cookie-secure",
			Usage:   "HTTPS only cookie",
			Sources: cli.NewValueSourceChain(cli.EnvVar("COOKIE_SECURE"), toml.TOML("auth.cookie_secure", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
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
			Usage:   "Sender address for outbound email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "no-reply",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.IntFlag{
			Name:    "mailer-workers",
			Value:   2,
			Usage:   "Number of concurrent email dispatch workers",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAILER_WORKERS"), toml.TOML("mailer.workers", configFile)),
		},
		&cli.IntFlag{
			Name:    "mailer-poll-seconds",
			Value:   2,
			Usage:   "Queue poll interval in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAILER_POLL_SECONDS"), toml.TOML("mailer.poll_seconds", configFile)),
		},
		&cli.IntFlag{
			Name:    "mailer-lease-seconds",
			Value:   60,
			Usage:   "Job lease TTL in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAILER_LEASE_SECONDS"), toml.TOML("mailer.lease_seconds", configFile)),
		},
		&cli.IntFlag{
			Name:    "mailer-max-attempts",
			Value:   5,
			Usage:   "Delivery attempts before a job is dead-lettered",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAILER_MAX_ATTEMPTS"), toml.TOML("mailer.max_attempts", configFile)),
		},
		&cli.IntFlag{
			Name:    "mailer-retry-backoff-seconds",
			Value:   5,
			Usage:   "Base retry delay in seconds, doubled per attempt",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAILER_RETRY_BACKOFF_SECONDS"), toml.TOML("mailer.retry_backoff_seconds", configFile)),
		},
		&cli.IntFlag{
			Name:    "mailer-retry-max-wait-seconds",
			Value:   300,
			Usage:   "Upper bound on the retry delay in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAILER_RETRY_MAX_WAIT_SECONDS"), toml.TOML("mailer.retry_max_wait_seconds", configFile)),
		},
		&cli.IntFlag{
			Name:    "email-window-minutes",
			Value:   30,
			Usage:   "Email throttle window per account in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_WINDOW_MINUTES"), toml.TOML("ratelimit.window_minutes", configFile)),
		},
		&cli.IntFlag{
			Name:    "email-max-per-window",
			Value:   5,
			Usage:   "Emails allowed per account per window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_MAX_PER_WINDOW"), toml.TOML("ratelimit.max_per_window", configFile)),
		},
	}
}
