// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/mkarlsen/authgate/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// failure is the error response body. RemainingTime is only set for
// rate-limit denials and counts minutes until the window reopens.
type failure struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	RemainingTime int    `json:"remainingTime,omitempty"`
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, failure{Success: false, Message: message})
}

// serviceError maps service outcomes onto HTTP responses. Account
// lookups failing inside the auth flows answer 400, not 404; only the
// profile endpoint reports 404 and handles that itself.
func serviceError(c echo.Context, err error) error {
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		return fail(c, http.StatusBadRequest, verr.Message)
	}

	var rerr *auth.RateLimitError
	if errors.As(err, &rerr) {
		return c.JSON(http.StatusTooManyRequests, failure{
			Success:       false,
			Message:       rerr.Message,
			RemainingTime: rerr.RemainingMinutes,
		})
	}

	var cerr *auth.CredentialError
	if errors.As(err, &cerr) {
		if cerr.AttemptsRemaining > 0 {
			return fail(c, http.StatusBadRequest,
				fmt.Sprintf("Invalid credentials. %d attempts remaining.", cerr.AttemptsRemaining))
		}
		return fail(c, http.StatusBadRequest, "Account blocked due to too many failed attempts.")
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return fail(c, http.StatusBadRequest, "Invalid credentials")
	case errors.Is(err, auth.ErrNotFound):
		return fail(c, http.StatusBadRequest, "User not found")
	case errors.Is(err, auth.ErrAlreadyRegistered):
		return fail(c, http.StatusBadRequest, "User already exists and is verified")
	case errors.Is(err, auth.ErrAlreadyVerified):
		return fail(c, http.StatusBadRequest, "User is already verified")
	case errors.Is(err, auth.ErrNotVerified):
		return fail(c, http.StatusBadRequest, "Please verify your email first")
	case errors.Is(err, auth.ErrOTPInvalid):
		return fail(c, http.StatusBadRequest, "Invalid or expired OTP")
	case errors.Is(err, auth.ErrAccountBlocked):
		return fail(c, http.StatusForbidden,
			"Account is temporarily blocked due to multiple failed login attempts. Please contact support.")
	case errors.Is(err, auth.ErrEmailDelivery):
		return fail(c, http.StatusInternalServerError, "Failed to send verification email")
	default:
		slog.Error("unhandled service error", "path", c.Path(), "error", err)
		return fail(c, http.StatusInternalServerError, "Server error")
	}
}
