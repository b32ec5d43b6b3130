package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"hackers/pkg/hn"
)

// Sender renders notification emails and hands them to a Provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	baseURL  string // For manage links
}

// New creates a new email sender with the given provider.
func New(provider Provider, logger *slog.Logger, baseURL string) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// SendNotification emails the new comments of a watched thread.
func (s *Sender) SendNotification(ctx context.Context, sub *hn.Subscription, thread *hn.Thread, comments []*hn.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	body, err := s.notificationBody(sub, thread, comments)
	if err != nil {
		return fmt.Errorf("render notification: %w", err)
	}
	subject := subjectFor(thread)

	s.logger.Info("Sending notification email",
		"to", sub.Email,
		"subject", subject,
		"comment_count", len(comments))

	if err := s.provider.Send(ctx, sub.Email, subject, body); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// SendWelcome confirms a new watch, including where the request came from.
func (s *Sender) SendWelcome(ctx context.Context, sub *hn.Subscription, thread *hn.Thread, ip, userAgent string) error {
	body, err := s.welcomeBody(sub, thread, ip, userAgent)
	if err != nil {
		return fmt.Errorf("render welcome: %w", err)
	}
	subject := subjectFor(thread)

	s.logger.Info("Sending welcome email", "to", sub.Email, "subject", subject)

	if err := s.provider.Send(ctx, sub.Email, subject, body); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

// subjectFor keeps one subject per thread so mail clients group the updates.
func subjectFor(thread *hn.Thread) string {
	if thread.Title == "" {
		return "Hacker News Thread Update"
	}
	return thread.Title
}

func (s *Sender) manageURL(sub *hn.Subscription) string {
	return fmt.Sprintf("%s/api/watch?token=%s", s.baseURL, url.QueryEscape(sub.Token))
}

func threadURL(thread *hn.Thread) string {
	if thread.URL != "" {
		return thread.URL
	}
	return hn.ItemURL(thread.ItemID)
}
