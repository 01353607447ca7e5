// Package mail sends account notifications. The SMTP sender covers
// production; Nop disables delivery for local runs and tests.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"aide/internal/logging"
)

// Mailer delivers one message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	addr   string
	from   string
	logger logging.Logger
}

// NewSMTPMailer builds a mailer for the given relay address ("host:port").
func NewSMTPMailer(addr, from string, logger logging.Logger) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from, logger: logging.OrNop(logger)}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	m.logger.Debug("sent mail to %s: %s", to, subject)
	return nil
}

// NopMailer drops every message.
type NopMailer struct{}

// Send implements Mailer.
func (NopMailer) Send(context.Context, string, string, string) error { return nil }
