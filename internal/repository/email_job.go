// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/models"
)

// EnqueueEmailJob appends one durable email job. The caller owns the
// error; a failed insert means the email will never be sent.
func (r *Repository) EnqueueEmailJob(ctx context.Context, job *models.EmailJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.EmailJobPending
	}
	if job.NextAttempt.IsZero() {
		job.NextAttempt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_jobs (
			id, recipient, subject, body, status,
			attempt_count, next_attempt_at, lease_owner, lease_expires_at, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Recipient, job.Subject, job.Body, job.Status,
		job.AttemptCount, job.NextAttempt, job.LeaseOwner, job.LeaseExpiry, job.LastError,
		job.CreatedAt, job.UpdatedAt)
	return wrapError(err)
}

// GetEmailJob returns one email job by ID.
func (r *Repository) GetEmailJob(ctx context.Context, id string) (*models.EmailJob, error) {
	var job models.EmailJob
	err := r.db.GetContext(ctx, &job, `SELECT * FROM email_jobs WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &job, nil
}

// LeaseEmailJobs claims up to limit due jobs for one worker. A job is
// due when it is pending and its next attempt time has passed, or when
// a previous lease expired without an acknowledgement. Claimed jobs
// stay invisible to other workers until the lease runs out.
func (r *Repository) LeaseEmailJobs(ctx context.Context, owner string, limit int, leaseTTL time.Duration) ([]models.EmailJob, error) {
	if owner == "" {
		return nil, fmt.Errorf("lease owner is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	now := time.Now().UTC()
	leaseExpiry := now.Add(leaseTTL)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start lease transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var candidates []string
	err = tx.SelectContext(ctx, &candidates,
		`SELECT id FROM email_jobs
		WHERE (status = ? AND next_attempt_at <= ?)
		   OR (status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT ?`,
		models.EmailJobPending, now, models.EmailJobLeased, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select lease candidates: %w", err)
	}

	leased := make([]models.EmailJob, 0, len(candidates))
	for _, id := range candidates {
		result, updateErr := tx.ExecContext(ctx,
			`UPDATE email_jobs
			SET status = ?, lease_owner = ?, lease_expires_at = ?, updated_at = ?
			WHERE id = ?
			AND ((status = ? AND next_attempt_at <= ?)
			  OR (status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?))`,
			models.EmailJobLeased, owner, leaseExpiry, now,
			id,
			models.EmailJobPending, now, models.EmailJobLeased, now)
		if updateErr != nil {
			return nil, fmt.Errorf("lease email job %s: %w", id, updateErr)
		}
		affected, affErr := result.RowsAffected()
		if affErr != nil {
			return nil, affErr
		}
		if affected == 0 {
			continue
		}

		var job models.EmailJob
		if getErr := tx.GetContext(ctx, &job, `SELECT * FROM email_jobs WHERE id = ?`, id); getErr != nil {
			return nil, fmt.Errorf("load leased email job %s: %w", id, getErr)
		}
		leased = append(leased, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease transaction: %w", err)
	}
	return leased, nil
}

// MarkEmailJobSent acknowledges a leased job as delivered.
func (r *Repository) MarkEmailJobSent(ctx context.Context, id, owner string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE email_jobs
		SET status = ?, attempt_count = attempt_count + 1,
		    lease_owner = '', lease_expires_at = NULL, last_error = '', updated_at = ?
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		models.EmailJobSent, now, id, models.EmailJobLeased, owner)
	if err != nil {
		return fmt.Errorf("mark email job sent: %w", err)
	}
	return requireAffected(result.RowsAffected())
}

// MarkEmailJobRetry returns a leased job to the queue with a later
// attempt time after a transport failure.
func (r *Repository) MarkEmailJobRetry(ctx context.Context, id, owner string, nextAttempt time.Time, lastError string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE email_jobs
		SET status = ?, attempt_count = attempt_count + 1, next_attempt_at = ?,
		    lease_owner = '', lease_expires_at = NULL, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		models.EmailJobPending, nextAttempt.UTC(), lastError, now,
		id, models.EmailJobLeased, owner)
	if err != nil {
		return fmt.Errorf("mark email job retry: %w", err)
	}
	return requireAffected(result.RowsAffected())
}

// MarkEmailJobDead parks a leased job after its attempt budget is
// exhausted. Dead jobs are kept for inspection, never retried.
func (r *Repository) MarkEmailJobDead(ctx context.Context, id, owner, lastError string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE email_jobs
		SET status = ?, attempt_count = attempt_count + 1,
		    lease_owner = '', lease_expires_at = NULL, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		models.EmailJobDead, lastError, now, id, models.EmailJobLeased, owner)
	if err != nil {
		return fmt.Errorf("mark email job dead: %w", err)
	}
	return requireAffected(result.RowsAffected())
}

// CountEmailJobs returns the number of jobs in the given status.
func (r *Repository) CountEmailJobs(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM email_jobs WHERE status = ?`, status)
	return count, err
}

func requireAffected(affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
