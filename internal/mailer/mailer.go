// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

// Package mailer is the asynchronous email delivery path. Request
// handlers enqueue durable jobs through the Dispatcher; a Pool of
// workers drains them independently and invokes the Transport, with
// failed deliveries retried under a bounded exponential backoff and
// dead-lettered once the attempt budget runs out.
package mailer

import (
	"context"
	"fmt"

	"codeberg.org/mkarlsen/authgate/internal/models"
	"codeberg.org/mkarlsen/authgate/internal/repository"
	"github.com/google/uuid"
)

// Message is one email to deliver.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport is the external send-a-message API. Any non-nil error is
// treated as retryable by the queue layer.
type Transport interface {
	Send(ctx context.Context, to, subject, html string) (messageID string, err error)
}

// Dispatcher appends email jobs to the durable queue. Enqueue failure
// is surfaced synchronously; whether it fails the whole operation or
// is merely logged is the caller's policy.
type Dispatcher struct {
	repo *repository.Repository
}

// NewDispatcher creates a dispatcher over the given repository.
func NewDispatcher(repo *repository.Repository) *Dispatcher {
	return &Dispatcher{repo: repo}
}

// Enqueue durably records the message for delivery and returns once
// the queue has acknowledged it. It never waits for the send itself.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) error {
	job := &models.EmailJob{
		ID:        uuid.New().String(),
		Recipient: msg.To,
		Subject:   msg.Subject,
		Body:      msg.HTML,
	}
	if err := d.repo.EnqueueEmailJob(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue email job: %w", err)
	}
	return nil
}
