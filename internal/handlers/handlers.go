// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package handlers contains the HTTP layer: request binding, the
// status mapping for service outcomes, and the session cookie
// handling. All responses are JSON with a success flag and a
// client-facing message.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers contains handlers not tied to authentication.
type Handlers struct{}

// New creates a new Handlers instance.
func New() *Handlers {
	return &Handlers{}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
