// Package readlater sends links to bookmarking services such as Instapaper and Pocket.
package readlater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"hackers/pkg/hn"
)

// Item is a link to bookmark.
type Item struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Folder      string `json:"folder,omitempty"` // Instapaper folder_id
}

// Service is a read-later backend.
type Service interface {
	Name() string
	Login(ctx context.Context, username, password string) (*hn.Credential, error)
	Add(ctx context.Context, cred *hn.Credential, item Item) error
}

// classifyTransport maps a failed round trip to an authentication reason.
func classifyTransport(op string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return hn.AuthError(op, hn.NoInternet, err)
	}
	return hn.AuthError(op, hn.ServerUnreachable, err)
}

// classifyStatus maps a non-2xx reply to a classified error. The body is included for context.
func classifyStatus(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // best effort for error message
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return hn.AuthError(op, hn.BadCredentials, cause)
	case resp.StatusCode >= 500:
		return hn.AuthError(op, hn.ServerUnreachable, cause)
	default:
		return &hn.Error{Kind: hn.KindRequestFailure, Op: op, Err: cause}
	}
}

// retryable reports whether a classified failure is worth another attempt.
func retryable(err error) bool {
	var e *hn.Error
	if !errors.As(err, &e) {
		return true
	}
	return e.Kind == hn.KindAuthentication && (e.Reason == hn.ServerUnreachable || e.Reason == hn.NoInternet)
}

func doWithRetry(ctx context.Context, logger *slog.Logger, service, op string, attempts uint, fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Info("Retrying read-later request", "service", service, "op", op, "attempt", n, "error", err)
		}),
	)
}

// unwrapClassified returns the classified error inside a retry error list, if any.
func unwrapClassified(err error) error {
	var e *hn.Error
	if errors.As(err, &e) {
		return e
	}
	return err
}

func closeBody(logger *slog.Logger, resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		logger.Warn("Failed to close response body", "error", err)
	}
}
