// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package ratelimit bounds how many verification/reset emails an
// account may trigger inside a fixed window. The window rolls over
// lazily at the next send attempt; there is no background sweep.
package ratelimit

import (
	"fmt"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/models"
)

// Defaults for the per-account email throttle.
const (
	DefaultWindow       = 30 * time.Minute
	DefaultMaxPerWindow = 5
)

// Limiter is the fixed-window policy. The zero value is unusable; use
// Default or build one from config.
type Limiter struct {
	Window       time.Duration
	MaxPerWindow int
}

// Default returns the stock 5-sends-per-30-minutes limiter.
func Default() Limiter {
	return Limiter{Window: DefaultWindow, MaxPerWindow: DefaultMaxPerWindow}
}

// Decision is the outcome of a throttle check. RemainingMinutes and
// Message are only set on denial.
type Decision struct {
	Allowed          bool
	RemainingMinutes int
	Message          string
}

// CanSend checks the throttle for one more send. An unset or elapsed
// window is reset first, so the returned account must be persisted
// even on denial paths that follow a rollover.
func (l Limiter) CanSend(account models.Account) (models.Account, Decision) {
	now := time.Now().UTC()

	if account.EmailWindowStart == nil || now.Sub(*account.EmailWindowStart) > l.Window {
		account.EmailCount = 0
		account.EmailWindowStart = &now
	}

	if account.EmailCount >= l.MaxPerWindow {
		elapsed := now.Sub(*account.EmailWindowStart)
		minutes := int((l.Window - elapsed + time.Minute - 1) / time.Minute)
		return account, Decision{
			Allowed:          false,
			RemainingMinutes: minutes,
			Message:          fmt.Sprintf("Rate limit exceeded. Please try again in %d minutes.", minutes),
		}
	}

	return account, Decision{Allowed: true}
}

// Increment consumes one unit of quota. Call it only after the email
// job has actually been enqueued; a failed enqueue must not burn quota.
func (l Limiter) Increment(account models.Account) models.Account {
	account.EmailCount++
	return account
}

// Remaining reports how many sends are left in the current window.
func (l Limiter) Remaining(account models.Account) int {
	remaining := l.MaxPerWindow - account.EmailCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the window, returning full quota. Invoked after
// successful OTP verification or a password change.
func Reset(account models.Account) models.Account {
	account.EmailCount = 0
	account.EmailWindowStart = nil
	return account
}
