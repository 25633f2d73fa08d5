// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package models

import "time"

// Email job statuses. A pending job becomes leased while a worker owns
// it, then either sent, pending again (retry with a later
// next_attempt_at), or dead once the attempt budget is exhausted.
const (
	EmailJobPending = "pending"
	EmailJobLeased  = "leased"
	EmailJobSent    = "sent"
	EmailJobDead    = "dead"
)

// EmailJob is one durable email delivery unit. Delivery is
// at-least-once: a worker whose lease expires mid-send leaves the job
// claimable again, so the transport may be invoked twice for one job.
type EmailJob struct { //nolint:govet // fieldalignment: readability over optimization
	ID           string     `db:"id"`
	Recipient    string     `db:"recipient"`
	Subject      string     `db:"subject"`
	Body         string     `db:"body"`
	Status       string     `db:"status"`
	AttemptCount int        `db:"attempt_count"`
	NextAttempt  time.Time  `db:"next_attempt_at"`
	LeaseOwner   string     `db:"lease_owner"`
	LeaseExpiry  *time.Time `db:"lease_expires_at"`
	LastError    string     `db:"last_error"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}
