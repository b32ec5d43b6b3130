package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"gopkg.in/gomail.v2"
)

// SMTPProvider sends through a plain SMTP relay.
type SMTPProvider struct {
	dialer   *gomail.Dialer
	logger   *slog.Logger
	fromAddr string
}

// NewSMTPProvider creates an SMTP provider.
func NewSMTPProvider(host string, port int, username, password, fromAddr string, logger *slog.Logger) *SMTPProvider {
	return &SMTPProvider{
		dialer:   gomail.NewDialer(host, port, username, password),
		fromAddr: fromAddr,
		logger:   logger,
	}
}

func (p *SMTPProvider) message(to, subject, htmlBody string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", sanitizeHeader(p.fromAddr))
	m.SetHeader("To", sanitizeHeader(to))
	m.SetHeader("Subject", sanitizeHeader(subject))
	m.SetBody("text/html", htmlBody)
	return m
}

// Send dials the relay and sends one message.
func (p *SMTPProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	m := p.message(to, subject, htmlBody)

	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			start := time.Now()
			if err := p.dialer.DialAndSend(m); err != nil {
				p.logger.Warn("SMTP send failed", "to", to, "host", p.dialer.Host, "error", err)
				return err
			}
			p.logger.Info("SMTP send completed",
				"to", to,
				"host", p.dialer.Host,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying SMTP send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
