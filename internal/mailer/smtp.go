// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package mailer

import (
	"context"
	"fmt"

	"codeberg.org/mkarlsen/authgate/internal/config"
	"github.com/wneessen/go-mail"
)

// SMTPTransport sends email via SMTP using go-mail. It implements
// Transport; every failure is returned for the queue layer to retry.
type SMTPTransport struct {
	cfg *config.SMTPConfig
}

// NewSMTPTransport validates the SMTP configuration and returns a
// transport.
func NewSMTPTransport(cfg *config.SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &SMTPTransport{cfg: cfg}, nil
}

// Send delivers one message and returns its message ID.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, html string) (string, error) {
	msg := mail.NewMsg()

	if t.cfg.FromName != "" {
		if err := msg.FromFormat(t.cfg.FromName, t.cfg.From); err != nil {
			return "", fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(t.cfg.From); err != nil {
			return "", fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return "", fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)

	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
	}

	// Implicit TLS (SSL) for port 465, STARTTLS for others
	if t.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if t.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if t.cfg.Username != "" && t.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}

	client, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("sending email: %w", err)
	}

	return msg.GetMessageID(), nil
}
