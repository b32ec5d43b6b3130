package hn

import (
	"strconv"
	"strings"
	"time"
)

// ParseAge parses the title attribute of an .age span.
// Hacker News renders either "2024-05-01T12:34:56" or that followed by a unix timestamp.
func ParseAge(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	iso, unix, found := strings.Cut(s, " ")
	if found {
		if sec, err := strconv.ParseInt(strings.TrimSpace(unix), 10, 64); err == nil {
			return time.Unix(sec, 0).UTC()
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, iso, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
