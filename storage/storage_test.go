package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"hackers/pkg/hn"
)

func newLocalStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(nil, "", t.TempDir(), []byte("test-salt"), logger)
}

func TestTokenFromEmail(t *testing.T) {
	s := newLocalStore(t)

	a := s.TokenFromEmail("User@Example.com ")
	b := s.TokenFromEmail("user@example.com")
	if a != b {
		t.Errorf("tokens differ for normalised email: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64", len(a))
	}

	other := New(nil, "", t.TempDir(), []byte("other-salt"), s.logger)
	if other.TokenFromEmail("user@example.com") == a {
		t.Error("token should depend on the salt")
	}
}

func TestSubscriptionKey(t *testing.T) {
	valid := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"valid", valid, "sub-" + valid + ".json"},
		{"too short", "abc", ""},
		{"uppercase", "0123456789ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef", ""},
		{"path traversal", "../../../../etc/passwd/../../../../../../../../../../../../../../..", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SubscriptionKey(tt.token); got != tt.want {
				t.Errorf("SubscriptionKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	email := "reader@example.com"
	sub := &hn.Subscription{
		Email: email,
		Token: s.TokenFromEmail(email),
		Threads: map[string]*hn.Thread{
			"41000000": {ItemID: 41000000, Title: "Show HN", LastCommentID: 12, CreatedAt: time.Unix(100, 0).UTC()},
		},
	}
	if err := s.Save(ctx, sub); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.LoadByEmail(ctx, email)
	if err != nil {
		t.Fatalf("LoadByEmail() error = %v", err)
	}
	if got.Threads["41000000"].LastCommentID != 12 {
		t.Errorf("LoadByEmail() threads = %+v", got.Threads)
	}

	byToken, err := s.LoadByToken(ctx, sub.Token)
	if err != nil || byToken.Email != email {
		t.Fatalf("LoadByToken() = %+v, %v", byToken, err)
	}

	if _, err := s.LoadByToken(ctx, "not-a-token"); !IsNotFound(err) {
		t.Errorf("LoadByToken(bad) error = %v, want not found", err)
	}

	subs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("List() returned %d subscriptions, want 1", len(subs))
	}

	if err := s.Delete(ctx, email); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, email); err != nil {
		t.Errorf("Delete() twice error = %v", err)
	}
	if _, err := s.LoadByEmail(ctx, email); !IsNotFound(err) {
		t.Errorf("LoadByEmail() after delete error = %v, want not found", err)
	}
}

func TestSaveRejectsBadToken(t *testing.T) {
	s := newLocalStore(t)
	if err := s.Save(context.Background(), &hn.Subscription{Email: "a@b.c", Token: "x"}); err == nil {
		t.Error("Save() with malformed token should fail")
	}
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	s := newLocalStore(t)

	if _, err := s.LoadCredential(ctx, "instapaper", "me"); !IsNotFound(err) {
		t.Fatalf("LoadCredential(missing) error = %v, want not found", err)
	}
	if err := s.SaveCredential(ctx, "instapaper", "me", &hn.Credential{}); err == nil {
		t.Error("SaveCredential(empty) should fail")
	}

	cred := &hn.Credential{Service: "instapaper", Account: "me", Token: "tok", Secret: "sec", CreatedAt: time.Unix(500, 0).UTC()}
	if err := s.SaveCredential(ctx, "instapaper", "me", cred); err != nil {
		t.Fatalf("SaveCredential() error = %v", err)
	}

	// Credentials are scoped by service.
	if _, err := s.LoadCredential(ctx, "pocket", "me"); !IsNotFound(err) {
		t.Errorf("LoadCredential(other service) error = %v, want not found", err)
	}

	got, err := s.LoadCredential(ctx, "Instapaper", " ME")
	if err != nil {
		t.Fatalf("LoadCredential() error = %v", err)
	}
	if got.Token != "tok" || got.Secret != "sec" || !got.ExpiresAt.IsZero() {
		t.Errorf("LoadCredential() = %+v", got)
	}

	if err := s.DeleteCredential(ctx, "instapaper", "me"); err != nil {
		t.Fatalf("DeleteCredential() error = %v", err)
	}
	if _, err := s.LoadCredential(ctx, "instapaper", "me"); !IsNotFound(err) {
		t.Errorf("LoadCredential() after delete error = %v, want not found", err)
	}
}
