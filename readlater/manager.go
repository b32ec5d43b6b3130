package readlater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"hackers/pkg/hn"
)

// CredentialStore persists grants per service and account.
type CredentialStore interface {
	SaveCredential(ctx context.Context, service, account string, cred *hn.Credential) error
	LoadCredential(ctx context.Context, service, account string) (*hn.Credential, error)
	DeleteCredential(ctx context.Context, service, account string) error
}

// Status describes the login state of one service for an account.
type Status struct {
	Since    time.Time `json:"since,omitzero"`
	Service  string    `json:"service"`
	Username string    `json:"username,omitempty"`
	LoggedIn bool      `json:"logged_in"`
	Expired  bool      `json:"expired,omitempty"`
}

// Manager routes requests to services and keeps their credentials.
type Manager struct {
	creds      CredentialStore
	isNotFound func(error) bool
	services   map[string]Service
	logger     *slog.Logger
	now        func() time.Time
}

// NewManager creates a manager over the given services.
// isNotFound recognises the store's missing-credential error.
func NewManager(creds CredentialStore, isNotFound func(error) bool, logger *slog.Logger, services ...Service) *Manager {
	m := &Manager{
		creds:      creds,
		isNotFound: isNotFound,
		services:   make(map[string]Service, len(services)),
		logger:     logger,
		now:        time.Now,
	}
	for _, s := range services {
		m.services[s.Name()] = s
	}
	return m
}

// Services returns the configured service names, sorted.
func (m *Manager) Services() []string {
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *Manager) service(name string) (Service, error) {
	s, ok := m.services[strings.ToLower(name)]
	if !ok {
		return nil, hn.NotFound("read-later service " + name)
	}
	return s, nil
}

// Login authenticates with the service and stores the grant under account.
func (m *Manager) Login(ctx context.Context, service, account, username, password string) (*Status, error) {
	s, err := m.service(service)
	if err != nil {
		return nil, err
	}
	if username == "" {
		return nil, hn.AuthError(s.Name()+" login", hn.BadCredentials, errors.New("username is required"))
	}

	cred, err := s.Login(ctx, username, password)
	if err != nil {
		m.logger.Warn("Read-later login failed", "service", s.Name(), "account", account, "error", err)
		return nil, err
	}
	if err := m.creds.SaveCredential(ctx, s.Name(), account, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	return &Status{Service: s.Name(), Username: cred.Account, LoggedIn: true, Since: cred.CreatedAt}, nil
}

// Send bookmarks item with the stored grant.
// A grant the service rejects is forgotten so the next Status reports logged out.
func (m *Manager) Send(ctx context.Context, service, account string, item Item) error {
	s, err := m.service(service)
	if err != nil {
		return err
	}
	if item.URL == "" {
		return &hn.Error{Kind: hn.KindRequestFailure, Op: s.Name() + " add", Err: errors.New("url is required")}
	}

	cred, err := m.credential(ctx, s.Name(), account)
	if err != nil {
		return err
	}

	err = s.Add(ctx, cred, item)
	var e *hn.Error
	if errors.As(err, &e) && e.Kind == hn.KindAuthentication && e.Reason == hn.BadCredentials {
		m.logger.Info("Dropping rejected credential", "service", s.Name(), "account", account)
		if delErr := m.creds.DeleteCredential(ctx, s.Name(), account); delErr != nil {
			m.logger.Warn("Failed to delete rejected credential", "service", s.Name(), "error", delErr)
		}
	}
	return err
}

// credential loads a usable grant or fails with KindUnauthenticated.
func (m *Manager) credential(ctx context.Context, service, account string) (*hn.Credential, error) {
	op := service + " credential"
	cred, err := m.creds.LoadCredential(ctx, service, account)
	if err != nil {
		if m.isNotFound(err) {
			return nil, &hn.Error{Kind: hn.KindUnauthenticated, Op: op}
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred.IsExpired(m.now()) {
		return nil, &hn.Error{Kind: hn.KindUnauthenticated, Op: op, Err: errors.New("credential expired")}
	}
	return cred, nil
}

// Logout forgets the stored grant.
func (m *Manager) Logout(ctx context.Context, service, account string) error {
	s, err := m.service(service)
	if err != nil {
		return err
	}
	return m.creds.DeleteCredential(ctx, s.Name(), account)
}

// Status reports whether account holds a usable grant for service.
func (m *Manager) Status(ctx context.Context, service, account string) (*Status, error) {
	s, err := m.service(service)
	if err != nil {
		return nil, err
	}
	st := &Status{Service: s.Name()}

	cred, err := m.creds.LoadCredential(ctx, s.Name(), account)
	if err != nil {
		if m.isNotFound(err) {
			return st, nil
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	st.Username = cred.Account
	st.Since = cred.CreatedAt
	st.Expired = cred.IsExpired(m.now())
	st.LoggedIn = !st.Expired
	return st, nil
}
