// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package auth

import (
	"errors"
	"fmt"
)

// Expected outcomes of the authentication flows. Anything else that
// escapes the service is an infrastructure fault.
var (
	ErrNotFound           = errors.New("user not found")
	ErrAlreadyRegistered  = errors.New("user already exists and is verified")
	ErrAlreadyVerified    = errors.New("user is already verified")
	ErrNotVerified        = errors.New("please verify your email first")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBlocked     = errors.New("account is blocked due to multiple failed login attempts, please contact support")
	ErrOTPInvalid         = errors.New("invalid or expired OTP")
	ErrEmailDelivery      = errors.New("failed to enqueue email")
)

// ValidationError rejects malformed input before it reaches the core.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// CredentialError is a failed password check against a known account.
// AttemptsRemaining counts down to the lockout.
type CredentialError struct {
	AttemptsRemaining int
}

func (e *CredentialError) Error() string {
	if e.AttemptsRemaining > 0 {
		return fmt.Sprintf("invalid credentials, %d attempts remaining", e.AttemptsRemaining)
	}
	return "account blocked due to too many failed attempts"
}

// Is makes CredentialError match ErrInvalidCredentials.
func (e *CredentialError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// RateLimitError denies an email send inside an exhausted window.
type RateLimitError struct {
	RemainingMinutes int
	Message          string
}

func (e *RateLimitError) Error() string {
	return e.Message
}
