package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hackers/pkg/hn"
)

func (s *Store) credentialKey(service, account string) string {
	return "cred-" + s.digest(strings.ToLower(service), strings.ToLower(strings.TrimSpace(account))) + ".json"
}

// SaveCredential stores a read-later grant or site session for service and account, replacing any earlier one.
func (s *Store) SaveCredential(ctx context.Context, service, account string, cred *hn.Credential) error {
	if cred.IsEmpty() {
		return errors.New("refusing to store empty credential")
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := s.put(ctx, s.credentialKey(service, account), data); err != nil {
		return err
	}
	s.logger.Info("Credential saved", "service", service, "account", account)
	return nil
}

// LoadCredential returns the stored grant, or an error satisfying IsNotFound.
func (s *Store) LoadCredential(ctx context.Context, service, account string) (*hn.Credential, error) {
	data, err := s.get(ctx, s.credentialKey(service, account))
	if err != nil {
		return nil, err
	}
	var cred hn.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &cred, nil
}

// DeleteCredential forgets a grant. Deleting a missing grant succeeds.
func (s *Store) DeleteCredential(ctx context.Context, service, account string) error {
	if err := s.remove(ctx, s.credentialKey(service, account)); err != nil {
		return err
	}
	s.logger.Info("Credential deleted", "service", service, "account", account)
	return nil
}
