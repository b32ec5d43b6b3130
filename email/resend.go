package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/resend/resend-go/v2"
)

// ResendProvider sends through the Resend API.
type ResendProvider struct {
	client   *resend.Client
	logger   *slog.Logger
	fromAddr string
}

// NewResendProvider creates a Resend provider.
func NewResendProvider(apiKey, fromAddr string, logger *slog.Logger) (*ResendProvider, error) {
	if apiKey == "" {
		return nil, errors.New("resend API key is required")
	}
	if fromAddr == "" {
		return nil, errors.New("from address is required")
	}
	return &ResendProvider{
		client:   resend.NewClient(apiKey),
		fromAddr: fromAddr,
		logger:   logger,
	}, nil
}

// Send sends an email via Resend.
func (p *ResendProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	params := &resend.SendEmailRequest{
		From:    sanitizeHeader(p.fromAddr),
		To:      []string{sanitizeHeader(to)},
		Subject: sanitizeHeader(subject),
		Html:    htmlBody,
	}

	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			start := time.Now()
			sent, err := p.client.Emails.Send(params)
			if err != nil {
				p.logger.Warn("Resend API send failed", "to", to, "error", err)
				return err
			}
			p.logger.Info("Resend API request completed",
				"to", to,
				"message_id", sent.Id,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying Resend send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	return nil
}
