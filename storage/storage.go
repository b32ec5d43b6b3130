// Package storage persists subscriptions and read-later credentials as JSON blobs,
// either in a local directory or in a Cloud Storage bucket.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
)

// ErrNotExist is returned when a blob is missing.
var ErrNotExist = errors.New("storage: object doesn't exist")

// Store handles blob persistence.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	salt      []byte
}

// New creates a new storage handler. A non-empty localPath selects the local directory mode.
func New(client *storage.Client, bucket string, localPath string, salt []byte, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		salt:      salt,
		localPath: localPath,
		bucket:    bucket,
	}
}

// digest returns the hex HMAC-SHA256 of the parts under the store's salt.
func (s *Store) digest(parts ...string) string {
	h := hmac.New(sha256.New, s.salt)
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// validHex checks that token is a 64 character lowercase hex string without exiting early.
func validHex(token string) bool {
	if len(token) != 64 {
		return false
	}
	valid := true
	for _, c := range token {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			valid = false
		}
	}
	return valid
}

func (s *Store) retryOpts(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2 * time.Minute),
		retry.MaxJitter(10 * time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying storage operation after error", "op", op, "attempt", n, "key", key, "error", err)
		}),
	}
}

func (s *Store) put(ctx context.Context, key string, data []byte) error {
	if s.localPath != "" {
		if err := os.WriteFile(filepath.Join(s.localPath, key), data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		return nil
	}

	err := retry.Do(func() error {
		w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			if closeErr := w.Close(); closeErr != nil {
				s.logger.Warn("Failed to close writer after error", "error", closeErr)
			}
			return fmt.Errorf("write to storage: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close storage writer: %w", err)
		}
		return nil
	}, s.retryOpts(ctx, "put", key)...)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, key))
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		if err != nil {
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	var data []byte
	err := retry.Do(func() error {
		r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return retry.Unrecoverable(ErrNotExist)
		}
		if err != nil {
			return fmt.Errorf("open storage reader: %w", err)
		}
		defer func() {
			if closeErr := r.Close(); closeErr != nil {
				s.logger.Warn("Failed to close storage reader", "error", closeErr)
			}
		}()
		data, err = io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read from storage: %w", err)
		}
		return nil
	}, s.retryOpts(ctx, "get", key)...)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

// remove deletes a blob; deleting a missing blob is not an error.
func (s *Store) remove(ctx context.Context, key string) error {
	if s.localPath != "" {
		if err := os.Remove(filepath.Join(s.localPath, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete from local storage: %w", err)
		}
		return nil
	}

	err := retry.Do(func() error {
		err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete from storage: %w", err)
		}
		return nil
	}, s.retryOpts(ctx, "delete", key)...)
	if err != nil {
		return fmt.Errorf("delete after retries: %w", err)
	}
	return nil
}

// keys lists blob names with the given prefix and suffix.
func (s *Store) keys(ctx context.Context, prefix, suffix string) ([]string, error) {
	var names []string

	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), suffix) {
				names = append(names, e.Name())
			}
		}
		return names, nil
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		if strings.HasSuffix(attrs.Name, suffix) {
			names = append(names, attrs.Name)
		}
	}
	return names, nil
}

// IsNotFound checks if an error indicates a missing blob.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotExist)
}
