// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package middleware provides echo middleware: bearer-token
// authentication and request logging.
package middleware

import (
	"net/http"
	"strings"

	"codeberg.org/mkarlsen/authgate/internal/services/token"
	"github.com/labstack/echo/v4"
)

const accountIDKey = "account_id"

// RequireAuth extracts the bearer token from the Authorization header
// or the session cookie, verifies it and stores the account id on the
// request context. Requests without a valid token answer 401.
func RequireAuth(tokens *token.Manager, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c, cookieName)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"success": false,
					"message": "No token provided",
				})
			}

			accountID, err := tokens.Parse(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"success": false,
					"message": "Unauthorized",
				})
			}

			c.Set(accountIDKey, accountID)
			return next(c)
		}
	}
}

// AccountID returns the authenticated account id, or "" when the
// request did not pass RequireAuth.
func AccountID(c echo.Context) string {
	id, _ := c.Get(accountIDKey).(string)
	return id
}

// bearerToken prefers the Authorization header over the cookie.
func bearerToken(c echo.Context, cookieName string) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
