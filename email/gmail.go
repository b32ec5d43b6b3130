package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/gmail/v1"
)

// GmailProvider sends through the Gmail API as the authenticated account.
type GmailProvider struct {
	service  *gmail.Service
	logger   *slog.Logger
	fromAddr string
}

// NewGmailProvider creates a Gmail provider. fromAddr may be empty, in which case
// Gmail uses the account address.
func NewGmailProvider(service *gmail.Service, fromAddr string, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{service: service, fromAddr: fromAddr, logger: logger}
}

// rawMessage builds the base64url MIME message the API expects.
func rawMessage(from, to, subject, htmlBody string) string {
	var msg strings.Builder
	msg.WriteString("MIME-Version: 1.0\r\n")
	if from != "" {
		msg.WriteString("From: " + sanitizeHeader(from) + "\r\n")
	}
	msg.WriteString("To: " + sanitizeHeader(to) + "\r\n")
	msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(subject)) + "\r\n")
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	msg.WriteString(htmlBody)
	return base64.URLEncoding.EncodeToString([]byte(msg.String()))
}

// Send sends an email via the Gmail API.
func (g *GmailProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	encoded := rawMessage(g.fromAddr, to, subject, htmlBody)

	err := retry.Do(
		func() error {
			start := time.Now()
			_, err := g.service.Users.Messages.Send("me", &gmail.Message{Raw: encoded}).Context(ctx).Do()
			if err != nil {
				g.logger.Warn("Gmail API send failed",
					"to", to,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err)
				return err
			}
			g.logger.Info("Gmail API request completed",
				"endpoint", "users.messages.send",
				"to", to,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Info("Retrying Gmail send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}
