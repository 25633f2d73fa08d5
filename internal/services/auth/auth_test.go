// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/mailer"
	"codeberg.org/mkarlsen/authgate/internal/models"
	"codeberg.org/mkarlsen/authgate/internal/repository"
	"codeberg.org/mkarlsen/authgate/internal/services/ratelimit"
	"codeberg.org/mkarlsen/authgate/internal/services/token"
	"codeberg.org/mkarlsen/authgate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnqueuer records messages instead of writing queue rows, with
// optional failure injection.
type fakeEnqueuer struct {
	mu       sync.Mutex
	messages []mailer.Message
	failWith error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeEnqueuer) last() mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

func newTestService(t *testing.T) (*Service, *repository.Repository, *fakeEnqueuer) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	tokens, err := token.NewManager("test-secret", time.Hour)
	require.NoError(t, err)
	enq := &fakeEnqueuer{}
	svc := NewService(repo, ratelimit.Default(), tokens, enq)
	return svc, repo, enq
}

func registerParams(email string) RegisterParams {
	return RegisterParams{
		FirstName: "Nora",
		LastName:  "Berg",
		Email:     email,
		Password:  "correct horse",
	}
}

// verifiedAccount inserts an account and flips it to verified.
func verifiedAccount(t *testing.T, repo *repository.Repository, email, password string) *models.Account {
	t.Helper()
	account := testutil.NewTestAccount(t, repo, email, password)
	account.Verified = true
	require.NoError(t, repo.SaveAccount(context.Background(), account))
	return account
}

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	svc, repo, enq := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, registerParams("nora@example.com"))
	require.NoError(t, err)
	assert.False(t, result.Resent)
	assert.Equal(t, 4, result.RemainingAttempts)

	stored, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.False(t, stored.Verified)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)
	require.NotNil(t, stored.OTPCode)
	require.NotNil(t, stored.OTPExpiry)
	assert.Equal(t, 1, stored.EmailCount)

	require.Equal(t, 1, enq.count())
	msg := enq.last()
	assert.Equal(t, "nora@example.com", msg.To)
	assert.Equal(t, "OTP Verification", msg.Subject)
	assert.Contains(t, msg.HTML, *stored.OTPCode)
}

func TestRegisterNormalizesEmail(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerParams("  Nora@Example.COM "))
	require.NoError(t, err)

	_, err = repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	svc, _, enq := newTestService(t)
	ctx := context.Background()

	var verr *ValidationError

	_, err := svc.Register(ctx, RegisterParams{Email: "not-an-email", Password: "correct horse"})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Register(ctx, RegisterParams{Email: "nora@example.com", Password: "short"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "at least 6 characters")

	assert.Zero(t, enq.count())
}

func TestRegisterVerifiedDuplicateRejected(t *testing.T) {
	svc, repo, enq := newTestService(t)
	ctx := context.Background()
	verifiedAccount(t, repo, "nora@example.com", "correct horse")

	_, err := svc.Register(ctx, registerParams("nora@example.com"))
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Zero(t, enq.count())
}

func TestRegisterUnverifiedDuplicateResendsOTP(t *testing.T) {
	svc, repo, enq := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerParams("nora@example.com"))
	require.NoError(t, err)
	first, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)

	result, err := svc.Register(ctx, registerParams("nora@example.com"))
	require.NoError(t, err)
	assert.True(t, result.Resent)
	assert.Equal(t, 3, result.RemainingAttempts)
	assert.Equal(t, 2, enq.count())

	second, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, *first.OTPCode, *second.OTPCode, "resend must replace the pending code")
}

func TestRegisterEnqueueFailureDeletesAccount(t *testing.T) {
	svc, repo, enq := newTestService(t)
	ctx := context.Background()
	enq.failWith = errors.New("queue unavailable")

	_, err := svc.Register(ctx, registerParams("nora@example.com"))
	require.ErrorIs(t, err, ErrEmailDelivery)

	_, err = repo.FindAccountByEmail(ctx, "nora@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound, "account must not survive a failed first email")
}

func TestVerifyOTP(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerParams("nora@example.com"))
	require.NoError(t, err)
	account, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)

	require.ErrorIs(t, svc.VerifyOTP(ctx, "nora@example.com", "000000"), ErrOTPInvalid)
	require.NoError(t, svc.VerifyOTP(ctx, "nora@example.com", *account.OTPCode))

	stored, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Nil(t, stored.OTPCode)
	assert.Nil(t, stored.OTPExpiry)
	assert.Zero(t, stored.EmailCount, "verification restores full email quota")

	// A consumed code does not work twice.
	require.ErrorIs(t, svc.VerifyOTP(ctx, "nora@example.com", *account.OTPCode), ErrOTPInvalid)
}

func TestVerifyOTPUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.VerifyOTP(context.Background(), "ghost@example.com", "123456")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoginSuccess(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	account := verifiedAccount(t, repo, "nora@example.com", "correct horse")

	result, err := svc.Login(ctx, "nora@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, account.ID, result.Account.ID)

	subject, err := svc.Tokens().Parse(result.Token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, subject)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Login(context.Background(), "ghost@example.com", "whatever pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnverifiedAccount(t *testing.T) {
	svc, repo, _ := newTestService(t)
	testutil.NewTestAccount(t, repo, "nora@example.com", "correct horse")

	_, err := svc.Login(context.Background(), "nora@example.com", "correct horse")
	require.ErrorIs(t, err, ErrNotVerified)
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	verifiedAccount(t, repo, "nora@example.com", "correct horse")

	for i := 1; i <= 5; i++ {
		_, err := svc.Login(ctx, "nora@example.com", "wrong password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		var cerr *CredentialError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 5-i, cerr.AttemptsRemaining)
	}

	stored, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.True(t, stored.Blocked)
	assert.Equal(t, 5, stored.LoginAttempts)

	// Even the correct password is rejected once blocked.
	_, err = svc.Login(ctx, "nora@example.com", "correct horse")
	require.ErrorIs(t, err, ErrAccountBlocked)
}

func TestLoginSuccessResetsFailureCount(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	verifiedAccount(t, repo, "nora@example.com", "correct horse")

	for range 3 {
		_, err := svc.Login(ctx, "nora@example.com", "wrong password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := svc.Login(ctx, "nora@example.com", "correct horse")
	require.NoError(t, err)

	stored, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.Zero(t, stored.LoginAttempts)
	assert.False(t, stored.Blocked)
}

func TestUnblockRestoresAccess(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	verifiedAccount(t, repo, "nora@example.com", "correct horse")

	for range 5 {
		_, _ = svc.Login(ctx, "nora@example.com", "wrong password")
	}
	_, err := svc.Login(ctx, "nora@example.com", "correct horse")
	require.ErrorIs(t, err, ErrAccountBlocked)

	require.NoError(t, svc.Unblock(ctx, "nora@example.com"))

	_, err = svc.Login(ctx, "nora@example.com", "correct horse")
	require.NoError(t, err)
}

func TestResendOTPThrottled(t *testing.T) {
	svc, repo, enq := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerParams("nora@example.com"))
	require.NoError(t, err)

	// Registration consumed one send; four resends exhaust the window.
	for i := 0; i < 4; i++ {
		remaining, err := svc.ResendOTP(ctx, "nora@example.com")
		require.NoError(t, err)
		assert.Equal(t, 3-i, remaining)
	}
	assert.Equal(t, 5, enq.count())

	_, err = svc.ResendOTP(ctx, "nora@example.com")
	var rerr *RateLimitError
	require.ErrorAs(t, err, &rerr)
	assert.Greater(t, rerr.RemainingMinutes, 0)
	assert.LessOrEqual(t, rerr.RemainingMinutes, 30)
	assert.Contains(t, rerr.Message, "Rate limit exceeded")
	assert.Equal(t, 5, enq.count(), "denied resend must not enqueue")

	stored, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.EmailCount)
}

func TestResendOTPEnqueueFailurePreservesQuota(t *testing.T) {
	svc, repo, enq := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerParams("nora@example.com"))
	require.NoError(t, err)
	before, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	require.Equal(t, 1, before.EmailCount)

	enq.failWith = errors.New("queue unavailable")
	_, err = svc.ResendOTP(ctx, "nora@example.com")
	require.ErrorIs(t, err, ErrEmailDelivery)

	after, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, after.EmailCount, "failed enqueue must not burn quota")
	require.NotNil(t, after.OTPCode)
	assert.Equal(t, *before.OTPCode, *after.OTPCode, "pending code stays valid")
}

func TestResendOTPAlreadyVerified(t *testing.T) {
	svc, repo, _ := newTestService(t)
	verifiedAccount(t, repo, "nora@example.com", "correct horse")

	_, err := svc.ResendOTP(context.Background(), "nora@example.com")
	require.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestRequestPasswordReset(t *testing.T) {
	svc, repo, enq := newTestService(t)
	ctx := context.Background()
	verifiedAccount(t, repo, "nora@example.com", "correct horse")

	remaining, err := svc.RequestPasswordReset(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)

	msg := enq.last()
	assert.Equal(t, "Password Reset OTP", msg.Subject)

	stored, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.OTPCode)
	assert.Contains(t, msg.HTML, *stored.OTPCode)
}

func TestUpdatePassword(t *testing.T) {
	svc, repo, enq := newTestService(t)
	ctx := context.Background()
	verifiedAccount(t, repo, "nora@example.com", "old password")

	_, err := svc.RequestPasswordReset(ctx, "nora@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.UpdatePassword(ctx, "nora@example.com", "new password"))

	stored, err := repo.FindAccountByEmail(ctx, "nora@example.com")
	require.NoError(t, err)
	assert.Nil(t, stored.OTPCode, "password change invalidates any pending code")
	assert.Zero(t, stored.EmailCount)

	msg := enq.last()
	assert.Equal(t, "Password Changed Successfully", msg.Subject)

	_, err = svc.Login(ctx, "nora@example.com", "old password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nora@example.com", "new password")
	require.NoError(t, err)
}

func TestUpdatePasswordSurvivesEnqueueFailure(t *testing.T) {
	svc, _, enq := newTestService(t)
	ctx := context.Background()
	verifiedAccount(t, svc.repo, "nora@example.com", "old password")

	enq.failWith = errors.New("queue unavailable")
	require.NoError(t, svc.UpdatePassword(ctx, "nora@example.com", "new password"),
		"confirmation email is best-effort only")

	enq.failWith = nil
	_, err := svc.Login(ctx, "nora@example.com", "new password")
	require.NoError(t, err)
}

func TestUpdatePasswordRejectsShortPassword(t *testing.T) {
	svc, repo, _ := newTestService(t)
	verifiedAccount(t, repo, "nora@example.com", "old password")

	err := svc.UpdatePassword(context.Background(), "nora@example.com", "tiny")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProfile(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	account := verifiedAccount(t, repo, "nora@example.com", "correct horse")

	loaded, err := svc.Profile(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Email, loaded.Email)

	_, err = svc.Profile(ctx, "no-such-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialErrorMessage(t *testing.T) {
	err := &CredentialError{AttemptsRemaining: 2}
	assert.True(t, strings.Contains(err.Error(), "2 attempts remaining"))

	blocked := &CredentialError{AttemptsRemaining: 0}
	assert.Contains(t, blocked.Error(), "blocked")
}
