// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package token_test

import (
	"testing"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/services/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, ttl time.Duration) *token.Manager {
	t.Helper()
	m, err := token.NewManager("test-secret", ttl)
	require.NoError(t, err)
	return m
}

func TestIssueAndParse(t *testing.T) {
	m := newManager(t, time.Hour)

	raw, err := m.Issue("account-123")
	require.NoError(t, err)

	subject, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "account-123", subject)
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := token.NewManager("", time.Hour)

	assert.Error(t, err)
}

func TestNewManager_DefaultTTL(t *testing.T) {
	m := newManager(t, 0)

	assert.Equal(t, token.DefaultTTL, m.TTL())
}

func TestParse_Expired(t *testing.T) {
	m := newManager(t, -time.Minute)

	raw, err := m.Issue("account-123")
	require.NoError(t, err)

	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestParse_WrongSecret(t *testing.T) {
	m := newManager(t, time.Hour)
	other, err := token.NewManager("other-secret", time.Hour)
	require.NoError(t, err)

	raw, err := m.Issue("account-123")
	require.NoError(t, err)

	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestParse_Garbage(t *testing.T) {
	m := newManager(t, time.Hour)

	_, err := m.Parse("not-a-token")

	assert.ErrorIs(t, err, token.ErrInvalidToken)
}
