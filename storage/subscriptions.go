package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hackers/pkg/hn"
)

// TokenFromEmail derives a deterministic, unguessable token from an email address.
func (s *Store) TokenFromEmail(email string) string {
	return s.digest(strings.ToLower(strings.TrimSpace(email)))
}

// SubscriptionKey returns the blob name for a token, or "" when the token is malformed.
func SubscriptionKey(token string) string {
	if !validHex(token) {
		return ""
	}
	return "sub-" + token + ".json"
}

// Save saves a subscription.
func (s *Store) Save(ctx context.Context, sub *hn.Subscription) error {
	key := SubscriptionKey(sub.Token)
	if key == "" {
		return errors.New("invalid token format")
	}

	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	if err := s.put(ctx, key, data); err != nil {
		return err
	}

	s.logger.Info("Subscription saved", "key", key, "email", sub.Email, "thread_count", len(sub.Threads))
	return nil
}

// Load loads a subscription by blob name.
func (s *Store) Load(ctx context.Context, key string) (*hn.Subscription, error) {
	if key == "" {
		return nil, ErrNotExist
	}
	data, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}

	var sub hn.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("unmarshal subscription: %w", err)
	}
	if sub.Threads == nil {
		sub.Threads = make(map[string]*hn.Thread)
	}
	return &sub, nil
}

// LoadByEmail loads a subscription by email address.
func (s *Store) LoadByEmail(ctx context.Context, email string) (*hn.Subscription, error) {
	return s.Load(ctx, SubscriptionKey(s.TokenFromEmail(email)))
}

// LoadByToken loads a subscription by its manage token.
// A malformed token reads as missing.
func (s *Store) LoadByToken(ctx context.Context, token string) (*hn.Subscription, error) {
	return s.Load(ctx, SubscriptionKey(token))
}

// Delete removes a subscription by email.
func (s *Store) Delete(ctx context.Context, email string) error {
	key := SubscriptionKey(s.TokenFromEmail(email))
	if err := s.remove(ctx, key); err != nil {
		return err
	}
	s.logger.Info("Subscription deleted", "key", key, "email", email)
	return nil
}

// List loads every subscription. Unreadable blobs are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*hn.Subscription, error) {
	names, err := s.keys(ctx, "sub-", ".json")
	if err != nil {
		return nil, err
	}

	subs := make([]*hn.Subscription, 0, len(names))
	for _, name := range names {
		sub, err := s.Load(ctx, name)
		if err != nil {
			s.logger.Warn("Failed to load subscription", "key", name, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
