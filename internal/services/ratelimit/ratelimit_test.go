// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package ratelimit_test

import (
	"testing"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/models"
	"codeberg.org/mkarlsen/authgate/internal/services/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanSend_FreshAccountStartsWindow(t *testing.T) {
	limiter := ratelimit.Default()

	account, decision := limiter.CanSend(models.Account{})

	assert.True(t, decision.Allowed)
	require.NotNil(t, account.EmailWindowStart)
	assert.Zero(t, account.EmailCount)
}

func TestCanSend_DeniesSixthInsideWindow(t *testing.T) {
	limiter := ratelimit.Default()
	account := models.Account{}

	var decision ratelimit.Decision
	for i := 0; i < ratelimit.DefaultMaxPerWindow; i++ {
		account, decision = limiter.CanSend(account)
		require.True(t, decision.Allowed)
		account = limiter.Increment(account)
	}

	_, decision = limiter.CanSend(account)

	assert.False(t, decision.Allowed)
	assert.GreaterOrEqual(t, decision.RemainingMinutes, 1)
	assert.LessOrEqual(t, decision.RemainingMinutes, 30)
	assert.NotEmpty(t, decision.Message)
}

func TestCanSend_ElapsedWindowResets(t *testing.T) {
	limiter := ratelimit.Default()
	past := time.Now().Add(-ratelimit.DefaultWindow - time.Minute).UTC()
	account := models.Account{
		EmailCount:       ratelimit.DefaultMaxPerWindow,
		EmailWindowStart: &past,
	}

	account, decision := limiter.CanSend(account)

	assert.True(t, decision.Allowed)
	assert.Zero(t, account.EmailCount)
	require.NotNil(t, account.EmailWindowStart)
	assert.WithinDuration(t, time.Now(), *account.EmailWindowStart, 2*time.Second)
}

func TestIncrementAndRemaining(t *testing.T) {
	limiter := ratelimit.Default()
	account := models.Account{}

	account = limiter.Increment(account)
	assert.Equal(t, 1, account.EmailCount)
	assert.Equal(t, ratelimit.DefaultMaxPerWindow-1, limiter.Remaining(account))

	account.EmailCount = ratelimit.DefaultMaxPerWindow + 2
	assert.Zero(t, limiter.Remaining(account))
}

func TestReset(t *testing.T) {
	limiter := ratelimit.Default()
	now := time.Now().UTC()
	account := models.Account{EmailCount: 4, EmailWindowStart: &now}

	account = ratelimit.Reset(account)

	assert.Zero(t, account.EmailCount)
	assert.Nil(t, account.EmailWindowStart)
	assert.Equal(t, ratelimit.DefaultMaxPerWindow, limiter.Remaining(account))
}

func TestCanSend_CustomPolicy(t *testing.T) {
	limiter := ratelimit.Limiter{Window: time.Hour, MaxPerWindow: 1}
	account := models.Account{}

	account, decision := limiter.CanSend(account)
	require.True(t, decision.Allowed)
	account = limiter.Increment(account)

	_, decision = limiter.CanSend(account)
	assert.False(t, decision.Allowed)
	assert.LessOrEqual(t, decision.RemainingMinutes, 60)
}
