// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/middleware"
	"codeberg.org/mkarlsen/authgate/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// CookieConfig describes the session cookie the login handler issues.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// AuthHandlers contains handlers for the authentication flows.
type AuthHandlers struct {
	service *auth.Service
	cookie  CookieConfig
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(service *auth.Service, cookie CookieConfig) *AuthHandlers {
	return &AuthHandlers{service: service, cookie: cookie}
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register creates a new account, or resends the verification code
// when the address is already registered but unverified.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}

	result, err := h.service.Register(c.Request().Context(), auth.RegisterParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return serviceError(c, err)
	}

	if result.Resent {
		return c.JSON(http.StatusOK, map[string]any{
			"success":           true,
			"message":           "User already registered but not verified. OTP resent to your email.",
			"remainingAttempts": result.RemainingAttempts,
		})
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"success":           true,
		"data":              map[string]any{"user": result.Account.Summary()},
		"message":           "User registered successfully. Please check your email for OTP verification.",
		"remainingAttempts": result.RemainingAttempts,
	})
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates the account and issues the bearer token, both in
// the body and as an http-only cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}

	result, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return serviceError(c, err)
	}

	c.SetCookie(h.sessionCookie(result.Token))

	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"data":        map[string]any{"user": result.Account.Summary()},
		"accessToken": result.Token,
		"message":     "Login successful",
	})
}

// Logout clears the session cookie. The bearer token itself stays
// valid until it expires.
func (h *AuthHandlers) Logout(c echo.Context) error {
	cookie := h.sessionCookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Logout successful",
	})
}

// VerifyOTPRequest is the request body for OTP verification.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTP confirms the emailed code and marks the account verified.
func (h *AuthHandlers) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}

	if err := h.service.VerifyOTP(c.Request().Context(), req.Email, req.OTP); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "User verified successfully",
	})
}

// EmailRequest is the request body for the resend and reset flows.
type EmailRequest struct {
	Email string `json:"email"`
}

// ResendOTP sends a fresh verification code to an unverified account.
func (h *AuthHandlers) ResendOTP(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}

	remaining, err := h.service.ResendOTP(c.Request().Context(), req.Email)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":           true,
		"message":           "OTP resent successfully",
		"remainingAttempts": remaining,
	})
}

// ResetPassword emails a password-reset code.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}

	remaining, err := h.service.RequestPasswordReset(c.Request().Context(), req.Email)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":           true,
		"message":           "Password reset OTP sent successfully",
		"remainingAttempts": remaining,
	})
}

// UpdatePasswordRequest is the request body for password updates.
type UpdatePasswordRequest struct {
	Email              string `json:"email"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// UpdatePassword replaces the account password. The confirmation email
// is best-effort and never fails the request.
func (h *AuthHandlers) UpdatePassword(c echo.Context) error {
	var req UpdatePasswordRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body")
	}

	if req.NewPassword != req.ConfirmNewPassword {
		return fail(c, http.StatusBadRequest, "Passwords do not match")
	}

	if err := h.service.UpdatePassword(c.Request().Context(), req.Email, req.NewPassword); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Password updated successfully",
	})
}

// Profile returns the sanitized account behind the bearer token. This
// is the one endpoint that answers 404 for a missing account: the
// token was valid, the resource is gone.
func (h *AuthHandlers) Profile(c echo.Context) error {
	accountID := middleware.AccountID(c)
	if accountID == "" {
		return fail(c, http.StatusUnauthorized, "Not authenticated")
	}

	account, err := h.service.Profile(c.Request().Context(), accountID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return fail(c, http.StatusNotFound, "User not found")
		}
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    account.Summary(),
	})
}

func (h *AuthHandlers) sessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
