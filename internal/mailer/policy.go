// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package mailer

import "time"

// Policy bounds delivery retries: up to MaxAttempts tries per job,
// delayed by BaseDelay doubled per failed attempt and capped at
// MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy allows five attempts starting at five seconds, capped
// at five minutes.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
	}
}

// normalized fills zero fields with defaults.
func (p Policy) normalized() Policy {
	defaults := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	return p
}

// Delay returns the wait before the next try after the given number of
// completed attempts.
func (p Policy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether a job that has already used the given
// number of attempts gets another try.
func (p Policy) Exhausted(attempts int) bool {
	return attempts+1 >= p.MaxAttempts
}
