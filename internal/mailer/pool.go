// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/mkarlsen/authgate/internal/repository"
)

const (
	defaultWorkers      = 2
	defaultPollInterval = 2 * time.Second
	defaultLeaseTTL     = time.Minute
)

// PoolConfig tunes the dispatch worker pool.
type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
	LeaseTTL     time.Duration
	Policy       Policy
}

// Pool consumes email jobs from the durable queue with bounded
// concurrency. Each worker leases one job at a time and processes it
// to completion, so one slow or failing job never stalls the others.
type Pool struct {
	repo      *repository.Repository
	transport Transport
	cfg       PoolConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool. Zero config fields fall back to
// defaults.
func NewPool(repo *repository.Repository, transport Transport, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	cfg.Policy = cfg.Policy.normalized()
	return &Pool{repo: repo, transport: transport, cfg: cfg}
}

// Start launches the workers. They run until Stop is called or the
// parent context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 1; i <= p.cfg.Workers; i++ {
		name := fmt.Sprintf("mailer-%d", i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx, name)
		}()
	}
	slog.Info("mailer_pool_started", "workers", p.cfg.Workers)
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("mailer_pool_stopped")
}

func (p *Pool) runWorker(ctx context.Context, name string) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything due before going back to sleep.
		for {
			processed, err := p.ProcessOne(ctx, name)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("mailer_worker_error", "worker", name, "error", err)
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOne leases and processes at most one due job as the named
// worker. Returns whether a job was handled. Exposed for synchronous
// draining in tests.
func (p *Pool) ProcessOne(ctx context.Context, worker string) (bool, error) {
	jobs, err := p.repo.LeaseEmailJobs(ctx, worker, 1, p.cfg.LeaseTTL)
	if err != nil {
		return false, fmt.Errorf("lease email jobs: %w", err)
	}
	if len(jobs) == 0 {
		return false, nil
	}

	job := jobs[0]
	messageID, sendErr := p.transport.Send(ctx, job.Recipient, job.Subject, job.Body)
	if sendErr == nil {
		if err := p.repo.MarkEmailJobSent(ctx, job.ID, worker); err != nil {
			return true, fmt.Errorf("ack email job %s: %w", job.ID, err)
		}
		slog.Info("email_sent", "job_id", job.ID, "to", job.Recipient, "message_id", messageID)
		return true, nil
	}

	if p.cfg.Policy.Exhausted(job.AttemptCount) {
		if err := p.repo.MarkEmailJobDead(ctx, job.ID, worker, sendErr.Error()); err != nil {
			return true, fmt.Errorf("dead-letter email job %s: %w", job.ID, err)
		}
		slog.Error("email_dead_lettered",
			"job_id", job.ID, "to", job.Recipient,
			"attempts", job.AttemptCount+1, "error", sendErr)
		return true, nil
	}

	nextAttempt := time.Now().Add(p.cfg.Policy.Delay(job.AttemptCount)).UTC()
	if err := p.repo.MarkEmailJobRetry(ctx, job.ID, worker, nextAttempt, sendErr.Error()); err != nil {
		return true, fmt.Errorf("reschedule email job %s: %w", job.ID, err)
	}
	slog.Warn("email_send_failed",
		"job_id", job.ID, "to", job.Recipient,
		"attempt", job.AttemptCount+1, "next_attempt_at", nextAttempt, "error", sendErr)
	return true, nil
}
