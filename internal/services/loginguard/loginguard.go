// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package loginguard tracks consecutive failed logins and transitions
// an account into the blocked state. Operations take an account value
// and return the updated value; persistence is the caller's step.
package loginguard

import "codeberg.org/mkarlsen/authgate/internal/models"

// MaxAttempts is the lockout threshold. Reaching it blocks the account.
const MaxAttempts = 5

// RecordFailure increments the consecutive failure counter and blocks
// the account once the threshold is reached. Returns the updated
// account and the attempts remaining before lockout.
func RecordFailure(account models.Account) (models.Account, int) {
	account.LoginAttempts++
	if account.LoginAttempts >= MaxAttempts {
		account.Blocked = true
	}
	return account, Remaining(account)
}

// RecordSuccess resets the failure counter after a successful
// credential check.
func RecordSuccess(account models.Account) models.Account {
	account.LoginAttempts = 0
	return account
}

// Unblock returns a blocked account to the active state with a clean
// counter. The login path never does this on its own; it exists as an
// explicit recovery operation.
func Unblock(account models.Account) models.Account {
	account.Blocked = false
	account.LoginAttempts = 0
	return account
}

// Remaining reports how many failed attempts are left before lockout.
func Remaining(account models.Account) int {
	remaining := MaxAttempts - account.LoginAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}
