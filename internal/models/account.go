// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package models

import "time"

// Account is one registered email address and everything the
// authentication flows track about it. The OTP pair and the email
// window are embedded in the row; they are only ever written together
// by the otp and ratelimit packages.
type Account struct { //nolint:govet // fieldalignment: readability over optimization
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	Verified      bool       `db:"verified" json:"verified"`
	LoginAttempts int        `db:"login_attempts" json:"-"`
	Blocked       bool       `db:"blocked" json:"-"`

	// OTP pair: both set or both nil.
	OTPCode   *string    `db:"otp_code" json:"-"`
	OTPExpiry *time.Time `db:"otp_expiry" json:"-"`

	// Fixed-window email throttle state.
	EmailCount       int        `db:"email_count" json:"-"`
	EmailWindowStart *time.Time `db:"email_window_start" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Summary is the sanitized shape returned to clients. Hash, OTP,
// lockout and throttle state never leave the service.
type Summary struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Verified  bool   `json:"verified"`
}

// Summary returns the client-facing view of the account.
func (a Account) Summary() Summary {
	return Summary{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Verified:  a.Verified,
	}
}
