// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/models"
)

// FindAccountByEmail retrieves an account by its normalized email.
func (r *Repository) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &account, nil
}

// FindAccountByID retrieves an account by its ID.
func (r *Repository) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := r.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &account, nil
}

// InsertAccount creates a new account. Returns ErrDuplicateEmail when
// the email is already registered.
func (r *Repository) InsertAccount(ctx context.Context, account *models.Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			id, email, first_name, last_name, password_hash,
			verified, login_attempts, blocked,
			otp_code, otp_expiry, email_count, email_window_start,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.Email, account.FirstName, account.LastName, account.PasswordHash,
		account.Verified, account.LoginAttempts, account.Blocked,
		account.OTPCode, account.OTPExpiry, account.EmailCount, account.EmailWindowStart,
		account.CreatedAt, account.UpdatedAt)
	return wrapError(err)
}

// SaveAccount overwrites the whole account record.
func (r *Repository) SaveAccount(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET
			email = ?, first_name = ?, last_name = ?, password_hash = ?,
			verified = ?, login_attempts = ?, blocked = ?,
			otp_code = ?, otp_expiry = ?, email_count = ?, email_window_start = ?,
			updated_at = ?
		WHERE id = ?`,
		account.Email, account.FirstName, account.LastName, account.PasswordHash,
		account.Verified, account.LoginAttempts, account.Blocked,
		account.OTPCode, account.OTPExpiry, account.EmailCount, account.EmailWindowStart,
		account.UpdatedAt, account.ID)
	if err != nil {
		return wrapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccountByID deletes an account. Used as the compensating
// action when the very first verification email cannot be enqueued.
func (r *Repository) DeleteAccountByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return wrapError(err)
}
