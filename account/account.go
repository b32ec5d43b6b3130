// Package account keeps a Hacker News login per API account and votes with it.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hackers/pkg/hn"
)

// Service is the credential store namespace for Hacker News sessions.
const Service = "hackernews"

// Client talks to the site on behalf of a logged-in user.
type Client interface {
	Login(ctx context.Context, username, password string) (*hn.Credential, error)
	Vote(ctx context.Context, cred *hn.Credential, itemID int, up bool) error
}

// CredentialStore persists sessions per service and account.
type CredentialStore interface {
	SaveCredential(ctx context.Context, service, account string, cred *hn.Credential) error
	LoadCredential(ctx context.Context, service, account string) (*hn.Credential, error)
	DeleteCredential(ctx context.Context, service, account string) error
}

// Status describes the Hacker News login of an account.
type Status struct {
	Since    time.Time `json:"since,omitzero"`
	Username string    `json:"username,omitempty"`
	LoggedIn bool      `json:"logged_in"`
}

// Manager logs accounts in and votes with their sessions.
type Manager struct {
	client     Client
	creds      CredentialStore
	isNotFound func(error) bool
	logger     *slog.Logger
}

// NewManager creates a manager. isNotFound recognises the store's missing-credential error.
func NewManager(client Client, creds CredentialStore, isNotFound func(error) bool, logger *slog.Logger) *Manager {
	return &Manager{client: client, creds: creds, isNotFound: isNotFound, logger: logger}
}

// Login signs in and stores the session under account, replacing any earlier one.
func (m *Manager) Login(ctx context.Context, account, username, password string) (*Status, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, hn.AuthError("hackernews login", hn.BadCredentials, errors.New("username and password are required"))
	}

	cred, err := m.client.Login(ctx, username, password)
	if err != nil {
		m.logger.Warn("Hacker News login failed", "account", account, "username", username, "error", err)
		return nil, err
	}
	if err := m.creds.SaveCredential(ctx, Service, account, cred); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	m.logger.Info("Hacker News login succeeded", "account", account, "username", cred.Account)
	return &Status{Username: cred.Account, Since: cred.CreatedAt, LoggedIn: true}, nil
}

// Logout forgets the session of account.
func (m *Manager) Logout(ctx context.Context, account string) error {
	return m.creds.DeleteCredential(ctx, Service, account)
}

// Status reports whether account holds a session.
func (m *Manager) Status(ctx context.Context, account string) (*Status, error) {
	cred, err := m.creds.LoadCredential(ctx, Service, account)
	if err != nil {
		if m.isNotFound(err) {
			return &Status{}, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &Status{Username: cred.Account, Since: cred.CreatedAt, LoggedIn: !cred.IsEmpty()}, nil
}

// Vote upvotes or unvotes itemID as the logged-in user of account.
// A session the site no longer accepts is forgotten.
func (m *Manager) Vote(ctx context.Context, account string, itemID int, up bool) error {
	cred, err := m.creds.LoadCredential(ctx, Service, account)
	if err != nil {
		if m.isNotFound(err) {
			return &hn.Error{Kind: hn.KindUnauthenticated, Op: "vote", Err: errors.New("not logged in")}
		}
		return fmt.Errorf("load session: %w", err)
	}

	err = m.client.Vote(ctx, cred, itemID, up)
	if hn.IsKind(err, hn.KindUnauthenticated) {
		m.logger.Info("Dropping expired session", "account", account, "username", cred.Account)
		if delErr := m.creds.DeleteCredential(ctx, Service, account); delErr != nil {
			m.logger.Warn("Failed to delete expired session", "account", account, "error", delErr)
		}
	}
	return err
}
