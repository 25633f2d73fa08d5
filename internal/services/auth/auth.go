// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package auth orchestrates the account lifecycle: registration with
// emailed OTP verification, login with progressive lockout, OTP
// resend/reset flows under the per-account email throttle, and
// password updates. All mutations run load-modify-save under a
// per-account lock; email leaves the process only through the
// dispatcher's durable queue.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"codeberg.org/mkarlsen/authgate/internal/mailer"
	"codeberg.org/mkarlsen/authgate/internal/models"
	"codeberg.org/mkarlsen/authgate/internal/repository"
	"codeberg.org/mkarlsen/authgate/internal/services/credential"
	"codeberg.org/mkarlsen/authgate/internal/services/loginguard"
	"codeberg.org/mkarlsen/authgate/internal/services/otp"
	"codeberg.org/mkarlsen/authgate/internal/services/ratelimit"
	"codeberg.org/mkarlsen/authgate/internal/services/token"
	"github.com/google/uuid"
)

// MinPasswordLength is the floor applied on registration and update.
const MinPasswordLength = 6

// Enqueuer hands messages to the durable email queue. Satisfied by
// *mailer.Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg mailer.Message) error
}

// Service wires the account store, the throttle policy, the token
// manager and the notification dispatcher into the account operations.
type Service struct {
	repo       *repository.Repository
	limiter    ratelimit.Limiter
	tokens     *token.Manager
	dispatcher Enqueuer
	locks      *keyedMutex
}

// NewService creates the auth service.
func NewService(repo *repository.Repository, limiter ratelimit.Limiter, tokens *token.Manager, dispatcher Enqueuer) *Service {
	return &Service{
		repo:       repo,
		limiter:    limiter,
		tokens:     tokens,
		dispatcher: dispatcher,
		locks:      newKeyedMutex(),
	}
}

// RegisterParams holds the parameters for account registration.
type RegisterParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// RegisterResult reports a successful registration or OTP resend for
// an existing unverified account.
type RegisterResult struct {
	Account           models.Account
	Resent            bool
	RemainingAttempts int
}

// LoginResult carries the issued bearer token and the account.
type LoginResult struct {
	Account models.Account
	Token   string
}

// Register creates a new unverified account and enqueues its first OTP
// email. If the email is already registered but unverified, a fresh
// OTP is resent instead (subject to the throttle). Enqueue failure for
// a brand-new account deletes it again so no unreachable account is
// left behind.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	email, err := normalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if len(params.Password) < MinPasswordLength {
		return nil, &ValidationError{Message: fmt.Sprintf("password must be at least %d characters long", MinPasswordLength)}
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	existing, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}

	if existing != nil {
		if existing.Verified {
			return nil, ErrAlreadyRegistered
		}
		remaining, resendErr := s.issueOTP(ctx, *existing, "OTP Verification")
		if resendErr != nil {
			return nil, resendErr
		}
		slog.Info("otp_resent", "email", email, "reason", "duplicate_registration")
		return &RegisterResult{Account: *existing, Resent: true, RemainingAttempts: remaining}, nil
	}

	hash, err := credential.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	account := models.Account{
		ID:           uuid.New().String(),
		Email:        email,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		PasswordHash: hash,
	}

	account, code, err := otp.Generate(account)
	if err != nil {
		return nil, err
	}
	account, decision := s.limiter.CanSend(account)
	if !decision.Allowed {
		// Unreachable for a fresh account; kept for symmetry.
		return nil, &RateLimitError{RemainingMinutes: decision.RemainingMinutes, Message: decision.Message}
	}

	if err := s.repo.InsertAccount(ctx, &account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if err := s.dispatcher.Enqueue(ctx, mailer.Message{
		To:      email,
		Subject: "OTP Verification",
		HTML:    mailer.OTPVerificationBody(account.FirstName, code),
	}); err != nil {
		// Compensating delete: a registration whose first email never
		// leaves the queue must not leave an unreachable account.
		slog.Error("register_email_enqueue_failed", "email", email, "error", err)
		if delErr := s.repo.DeleteAccountByID(ctx, account.ID); delErr != nil {
			slog.Error("register_compensating_delete_failed", "email", email, "error", delErr)
		}
		return nil, ErrEmailDelivery
	}

	account = s.limiter.Increment(account)
	if err := s.repo.SaveAccount(ctx, &account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	slog.Info("register_success", "account_id", account.ID, "email", email)
	return &RegisterResult{Account: account, RemainingAttempts: s.limiter.Remaining(account)}, nil
}

// VerifyOTP marks the account verified when the candidate matches the
// pending unexpired code, clearing the code and restoring full email
// quota.
func (s *Service) VerifyOTP(ctx context.Context, rawEmail, candidate string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load account: %w", err)
	}

	if !otp.Verify(*account, candidate) {
		slog.Warn("otp_verify_failed", "email", email)
		return ErrOTPInvalid
	}

	updated := otp.Clear(*account)
	updated.Verified = true
	updated = ratelimit.Reset(updated)
	if err := s.repo.SaveAccount(ctx, &updated); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	slog.Info("otp_verify_success", "account_id", account.ID, "email", email)
	return nil
}

// Login authenticates the account and issues a bearer token. Blocked
// accounts are rejected before the credential check runs.
func (s *Service) Login(ctx context.Context, rawEmail, password string) (*LoginResult, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: burn a bcrypt comparison so timing does
			// not reveal whether the email exists.
			credential.CompareDummy(password)
			slog.Warn("login_failed", "email", email, "reason", "account_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if !account.Verified {
		return nil, ErrNotVerified
	}
	if account.Blocked {
		slog.Warn("login_failed", "email", email, "reason", "account_blocked")
		return nil, ErrAccountBlocked
	}

	ok, err := credential.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		updated, remaining := loginguard.RecordFailure(*account)
		if err := s.repo.SaveAccount(ctx, &updated); err != nil {
			return nil, fmt.Errorf("failed to save account: %w", err)
		}
		slog.Warn("login_failed",
			"email", email, "reason", "invalid_password",
			"attempts_remaining", remaining, "blocked", updated.Blocked)
		return nil, &CredentialError{AttemptsRemaining: remaining}
	}

	updated := loginguard.RecordSuccess(*account)
	if err := s.repo.SaveAccount(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	signed, err := s.tokens.Issue(updated.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("login_success", "account_id", updated.ID, "email", email)
	return &LoginResult{Account: updated, Token: signed}, nil
}

// ResendOTP issues a fresh verification code to an unverified account,
// subject to the email throttle. Returns the remaining quota.
func (s *Service) ResendOTP(ctx context.Context, rawEmail string) (int, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to load account: %w", err)
	}
	if account.Verified {
		return 0, ErrAlreadyVerified
	}

	remaining, err := s.issueOTP(ctx, *account, "OTP Verification")
	if err != nil {
		return 0, err
	}
	slog.Info("otp_resent", "account_id", account.ID, "email", email)
	return remaining, nil
}

// RequestPasswordReset emails a reset OTP, subject to the same
// throttle as verification email. Returns the remaining quota.
func (s *Service) RequestPasswordReset(ctx context.Context, rawEmail string) (int, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to load account: %w", err)
	}

	remaining, err := s.issueOTP(ctx, *account, "Password Reset OTP")
	if err != nil {
		return 0, err
	}
	slog.Info("password_reset_requested", "account_id", account.ID, "email", email)
	return remaining, nil
}

// UpdatePassword replaces the password hash wholesale, clears any
// pending OTP and restores full email quota. The confirmation email is
// best-effort: the update has already succeeded and is never rolled
// back for a notification failure.
func (s *Service) UpdatePassword(ctx context.Context, rawEmail, newPassword string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	if len(newPassword) < MinPasswordLength {
		return &ValidationError{Message: fmt.Sprintf("password must be at least %d characters long", MinPasswordLength)}
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load account: %w", err)
	}

	hash, err := credential.Hash(newPassword)
	if err != nil {
		return err
	}

	updated := otp.Clear(*account)
	updated.PasswordHash = hash
	updated = ratelimit.Reset(updated)
	if err := s.repo.SaveAccount(ctx, &updated); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	if err := s.dispatcher.Enqueue(ctx, mailer.Message{
		To:      email,
		Subject: "Password Changed Successfully",
		HTML:    mailer.PasswordChangedBody(updated.FirstName),
	}); err != nil {
		slog.Error("password_changed_email_enqueue_failed", "email", email, "error", err)
	}

	slog.Info("password_updated", "account_id", account.ID, "email", email)
	return nil
}

// Profile loads the account behind a bearer token subject.
func (s *Service) Profile(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

// Unblock returns a locked-out account to the active state. The login
// path never unblocks on its own, so this is the only way back.
func (s *Service) Unblock(ctx context.Context, rawEmail string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load account: %w", err)
	}

	updated := loginguard.Unblock(*account)
	if err := s.repo.SaveAccount(ctx, &updated); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	slog.Info("account_unblocked", "account_id", account.ID, "email", email)
	return nil
}

// Tokens exposes the token manager for the middleware layer.
func (s *Service) Tokens() *token.Manager {
	return s.tokens
}

// issueOTP runs the throttle check, generates a fresh code, enqueues
// the email and consumes quota — in that order, so a failed enqueue
// never burns quota. The caller holds the account lock.
func (s *Service) issueOTP(ctx context.Context, account models.Account, subject string) (int, error) {
	account, decision := s.limiter.CanSend(account)
	if !decision.Allowed {
		return 0, &RateLimitError{RemainingMinutes: decision.RemainingMinutes, Message: decision.Message}
	}

	account, code, err := otp.Generate(account)
	if err != nil {
		return 0, err
	}

	if err := s.dispatcher.Enqueue(ctx, mailer.Message{
		To:      account.Email,
		Subject: subject,
		HTML:    mailer.OTPVerificationBody(account.FirstName, code),
	}); err != nil {
		slog.Error("otp_email_enqueue_failed", "email", account.Email, "error", err)
		return 0, ErrEmailDelivery
	}

	account = s.limiter.Increment(account)
	if err := s.repo.SaveAccount(ctx, &account); err != nil {
		return 0, fmt.Errorf("failed to save account: %w", err)
	}
	return s.limiter.Remaining(account), nil
}

// normalizeEmail lowercases and validates the address. The store only
// ever sees normalized email.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", &ValidationError{Message: "invalid email format"}
	}
	return email, nil
}
