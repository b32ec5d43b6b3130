package account

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"hackers/pkg/hn"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var errMissing = errors.New("missing")

type memCreds struct {
	mu    sync.Mutex
	creds map[string]*hn.Credential
}

func (m *memCreds) SaveCredential(_ context.Context, service, account string, cred *hn.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		m.creds = make(map[string]*hn.Credential)
	}
	m.creds[service+"/"+account] = cred
	return nil
}

func (m *memCreds) LoadCredential(_ context.Context, service, account string) (*hn.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[service+"/"+account]
	if !ok {
		return nil, errMissing
	}
	return c, nil
}

func (m *memCreds) DeleteCredential(_ context.Context, service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, service+"/"+account)
	return nil
}

type vote struct {
	item int
	up   bool
}

type fakeClient struct {
	voteErr error
	votes   []vote
	token   string
}

func (*fakeClient) Login(_ context.Context, username, password string) (*hn.Credential, error) {
	if password != "pw" {
		return nil, hn.AuthError("hackernews login", hn.BadCredentials, errors.New("bad login"))
	}
	return &hn.Credential{Service: Service, Account: username, Token: username + "&abc", CreatedAt: time.Unix(100, 0)}, nil
}

func (f *fakeClient) Vote(_ context.Context, cred *hn.Credential, itemID int, up bool) error {
	if f.voteErr != nil {
		return f.voteErr
	}
	f.token = cred.Token
	f.votes = append(f.votes, vote{itemID, up})
	return nil
}

func newManager() (*Manager, *fakeClient, *memCreds) {
	client := &fakeClient{}
	creds := &memCreds{}
	return NewManager(client, creds, func(err error) bool { return errors.Is(err, errMissing) }, testLogger()), client, creds
}

func TestLoginAndStatus(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager()

	st, err := m.Status(ctx, "me")
	if err != nil || st.LoggedIn {
		t.Errorf("Status() before login = %+v, %v", st, err)
	}

	if _, err := m.Login(ctx, "me", "alice", "wrong"); !hn.IsKind(err, hn.KindAuthentication) {
		t.Errorf("Login(wrong) error = %v, want authentication error", err)
	}
	if _, err := m.Login(ctx, "me", " ", "pw"); !hn.IsKind(err, hn.KindAuthentication) {
		t.Errorf("Login(blank) error = %v, want authentication error", err)
	}

	st, err = m.Login(ctx, "me", "alice", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !st.LoggedIn || st.Username != "alice" || !st.Since.Equal(time.Unix(100, 0)) {
		t.Errorf("Login() = %+v", st)
	}

	st, err = m.Status(ctx, "me")
	if err != nil || !st.LoggedIn || st.Username != "alice" {
		t.Errorf("Status() after login = %+v, %v", st, err)
	}
	if st, _ := m.Status(ctx, "someone-else"); st.LoggedIn {
		t.Error("sessions should be per account")
	}

	if err := m.Logout(ctx, "me"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if st, _ := m.Status(ctx, "me"); st.LoggedIn {
		t.Error("Status() after logout should be logged out")
	}
}

func TestVote(t *testing.T) {
	ctx := context.Background()
	m, client, _ := newManager()

	if err := m.Vote(ctx, "me", 42, true); !hn.IsKind(err, hn.KindUnauthenticated) {
		t.Errorf("Vote() before login error = %v, want unauthenticated", err)
	}

	if _, err := m.Login(ctx, "me", "alice", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := m.Vote(ctx, "me", 42, true); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if err := m.Vote(ctx, "me", 42, false); err != nil {
		t.Fatalf("Vote(unvote) error = %v", err)
	}
	if len(client.votes) != 2 || client.votes[0] != (vote{42, true}) || client.votes[1] != (vote{42, false}) {
		t.Errorf("votes = %+v", client.votes)
	}
	if client.token != "alice&abc" {
		t.Errorf("voted with token %q", client.token)
	}
}

func TestVoteDropsExpiredSession(t *testing.T) {
	ctx := context.Background()
	m, client, _ := newManager()
	if _, err := m.Login(ctx, "me", "alice", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	client.voteErr = hn.Errorf(hn.KindScraper, "vote", "no vote link")
	if err := m.Vote(ctx, "me", 1, true); !hn.IsKind(err, hn.KindScraper) {
		t.Errorf("Vote() error = %v, want scraper error", err)
	}
	if st, _ := m.Status(ctx, "me"); !st.LoggedIn {
		t.Error("a scraper error should keep the session")
	}

	client.voteErr = &hn.Error{Kind: hn.KindUnauthenticated, Op: "vote"}
	if err := m.Vote(ctx, "me", 1, true); !hn.IsKind(err, hn.KindUnauthenticated) {
		t.Errorf("Vote() error = %v, want unauthenticated", err)
	}
	if st, _ := m.Status(ctx, "me"); st.LoggedIn {
		t.Error("rejected session should have been dropped")
	}
}
