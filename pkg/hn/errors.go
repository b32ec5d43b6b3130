package hn

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to API clients.
type Kind string

// Error kinds.
const (
	KindRequestFailure  Kind = "request_failure"
	KindScraper         Kind = "scraper_error"
	KindUnauthenticated Kind = "unauthenticated"
	KindAuthentication  Kind = "authentication_error"
	KindNotFound        Kind = "not_found"
)

// AuthReason refines KindAuthentication.
type AuthReason string

// Authentication failure reasons.
const (
	BadCredentials    AuthReason = "bad_credentials"
	ServerUnreachable AuthReason = "server_unreachable"
	NoInternet        AuthReason = "no_internet"
	UnknownReason     AuthReason = "unknown"
)

// Error is a classified failure.
type Error struct {
	Err    error
	Kind   Kind
	Reason AuthReason
	Op     string
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += " (" + string(e.Reason) + ")"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// NotFound reports a missing record.
func NotFound(op string) error {
	return &Error{Kind: KindNotFound, Op: op}
}

// AuthError reports a read-later login or request failure.
func AuthError(op string, reason AuthReason, err error) error {
	return &Error{Kind: KindAuthentication, Reason: reason, Op: op, Err: err}
}

// KindOf returns the kind of a classified error, or "" for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind checks whether err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound checks if an error indicates a missing record.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}
