// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package server wires the application together: database, repository,
// services, email worker pool, and the echo HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/config"
	"codeberg.org/mkarlsen/authgate/internal/database"
	"codeberg.org/mkarlsen/authgate/internal/handlers"
	"codeberg.org/mkarlsen/authgate/internal/mailer"
	"codeberg.org/mkarlsen/authgate/internal/middleware"
	"codeberg.org/mkarlsen/authgate/internal/repository"
	"codeberg.org/mkarlsen/authgate/internal/services/auth"
	"codeberg.org/mkarlsen/authgate/internal/services/ratelimit"
	"codeberg.org/mkarlsen/authgate/internal/services/token"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Database; Open also runs pending migrations.
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// Repository and services
	repo := repository.New(db)

	tokens, err := token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}

	limiter := ratelimit.Limiter{
		Window:       time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute,
		MaxPerWindow: cfg.RateLimit.MaxPerWindow,
	}

	dispatcher := mailer.NewDispatcher(repo)
	service := auth.NewService(repo, limiter, tokens, dispatcher)

	// Email worker pool
	transport, err := mailer.NewSMTPTransport(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to create SMTP transport: %w", err)
	}
	pool := mailer.NewPool(repo, transport, mailer.PoolConfig{
		Workers:      cfg.Mailer.Workers,
		PollInterval: cfg.Mailer.PollInterval,
		LeaseTTL:     cfg.Mailer.LeaseTTL,
		Policy: mailer.Policy{
			MaxAttempts: cfg.Mailer.MaxAttempts,
			BaseDelay:   cfg.Mailer.RetryBackoff,
			MaxDelay:    cfg.Mailer.RetryMaxWait,
		},
	})
	pool.Start(ctx)
	defer pool.Stop()

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e)
	setupRoutes(e, service, tokens, cfg)

	return startWithGracefulShutdown(e, cfg)
}

func setupRoutes(e *echo.Echo, service *auth.Service, tokens *token.Manager, cfg *config.Config) {
	h := handlers.New()
	ah := handlers.NewAuth(service, handlers.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
		MaxAge: cfg.Auth.TokenTTL,
	})

	e.GET("/health", h.Health)

	api := e.Group("/api/auth")
	api.POST("/register", ah.Register)
	api.POST("/login", ah.Login)
	api.POST("/verify-otp", ah.VerifyOTP)
	api.POST("/resend-otp", ah.ResendOTP)
	api.POST("/reset-password", ah.ResetPassword)
	api.POST("/update-password", ah.UpdatePassword)

	authed := api.Group("", middleware.RequireAuth(tokens, cfg.Auth.CookieName))
	authed.POST("/logout", ah.Logout)
	authed.GET("/profile", ah.Profile)
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("server running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
