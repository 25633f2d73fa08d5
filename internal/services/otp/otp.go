// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package otp manages the single short-lived numeric passcode attached
// to an account. Operations take an account value and return the
// updated value; persistence is the caller's explicit step.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/models"
)

// Validity is how long a generated passcode stays usable.
const Validity = 10 * time.Minute

// codeSpan covers the 6-digit range 100000-999999.
const (
	codeMin  = 100000
	codeSpan = 900000
)

// Generate draws a uniformly random 6-digit code and attaches it to
// the account with a fresh expiry. Any prior pending code is
// overwritten, so the most recently issued code is the only valid one.
func Generate(account models.Account) (models.Account, string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return account, "", fmt.Errorf("failed to generate otp: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64()+codeMin)
	expiry := time.Now().Add(Validity).UTC()

	account.OTPCode = &code
	account.OTPExpiry = &expiry
	return account, code, nil
}

// Verify reports whether candidate matches the pending code and the
// code has not expired. False for every other case, including a
// missing code.
func Verify(account models.Account, candidate string) bool {
	if account.OTPCode == nil || account.OTPExpiry == nil {
		return false
	}
	return *account.OTPCode == candidate && time.Now().Before(*account.OTPExpiry)
}

// Clear removes the pending code. Called after successful verification
// or a password change.
func Clear(account models.Account) models.Account {
	account.OTPCode = nil
	account.OTPExpiry = nil
	return account
}
