// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package credential provides one-way password hashing and verification.
package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMalformedHash is returned when a stored hash cannot be parsed.
// A plain mismatch is never an error, only a false result.
var ErrMalformedHash = errors.New("malformed password hash")

// dummyHash is compared against for unknown accounts so login timing
// does not reveal whether an email exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Hash computes a salted bcrypt hash of the plaintext. Cost is the
// bcrypt default, tuned for roughly 100ms on commodity hardware.
func Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches the stored hash.
func Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
}

// CompareDummy burns one bcrypt comparison. Called on the
// unknown-account path to keep login timing constant.
func CompareDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plaintext))
}
