// Package email delivers watched-thread notifications through pluggable providers.
package email

import (
	"context"
	"strings"
)

// Provider sends one HTML email.
type Provider interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// sanitizeHeader removes CR, LF and other control characters so a value cannot
// start a new header line.
func sanitizeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
