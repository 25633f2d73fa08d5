// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package mailer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_DelayDoublesPerAttempt(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute}

	assert.Equal(t, time.Second, policy.Delay(0))
	assert.Equal(t, 2*time.Second, policy.Delay(1))
	assert.Equal(t, 4*time.Second, policy.Delay(2))
	assert.Equal(t, 8*time.Second, policy.Delay(3))
}

func TestPolicy_DelayCapped(t *testing.T) {
	policy := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, 5*time.Second, policy.Delay(4))
	assert.Equal(t, 5*time.Second, policy.Delay(30))
}

func TestPolicy_Exhausted(t *testing.T) {
	policy := Policy{MaxAttempts: 3}

	assert.False(t, policy.Exhausted(0))
	assert.False(t, policy.Exhausted(1))
	assert.True(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(5))
}

func TestPolicy_NormalizedDefaults(t *testing.T) {
	policy := Policy{}.normalized()

	assert.Equal(t, DefaultPolicy(), policy)
}
