package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"hackers/pkg/hn"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testThread() (*hn.Subscription, *hn.Thread) {
	sub := &hn.Subscription{Email: "test@example.com", Token: "tok+en"}
	thread := &hn.Thread{ItemID: 100, Title: "Ask HN: <Favorite> tools?", URL: hn.ItemURL(100)}
	return sub, thread
}

func TestNotificationBodySingleComment(t *testing.T) {
	sender := New(NewMockProvider(testLogger()), testLogger(), "http://localhost:8080/")
	sub, thread := testThread()
	comments := []*hn.Comment{{
		ID:   101,
		By:   "pg",
		Time: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
		Body: `Use <i>grep</i>.`,
	}}

	body, err := sender.notificationBody(sub, thread, comments)
	if err != nil {
		t.Fatalf("notificationBody() error = %v", err)
	}

	for _, want := range []string{
		`style="border-bottom: none; padding-bottom: 0;"`,
		`class="comment"`,
		`<span class="author"> &bull; pg</span>`,
		"Jan 2, 2026 at 3:04 PM UTC",
		"Use <i>grep</i>.",
		`href="https://news.ycombinator.com/item?id=101"`,
		`href="http://localhost:8080/api/watch?token=tok%2Ben"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("notification body missing %q\ngot:\n%s", want, body)
		}
	}
	if strings.Contains(body, "with-border") {
		t.Error("single comment footer should not have a border")
	}
}

func TestNotificationBodyMultipleComments(t *testing.T) {
	sender := New(NewMockProvider(testLogger()), testLogger(), "http://localhost:8080")
	sub, thread := testThread()
	comments := []*hn.Comment{
		{ID: 101, By: "a", Text: "plain <text>\nsecond line"},
		{ID: 102, By: "b", Body: "<p>html</p>"},
	}

	body, err := sender.notificationBody(sub, thread, comments)
	if err != nil {
		t.Fatalf("notificationBody() error = %v", err)
	}
	if strings.Count(body, `class="comment"`) != 2 {
		t.Errorf("expected 2 comments in body:\n%s", body)
	}
	if !strings.Contains(body, "plain &lt;text&gt;<br>second line") {
		t.Errorf("text fallback not escaped:\n%s", body)
	}
	if !strings.Contains(body, "footer with-border") {
		t.Error("multiple comments should use a bordered footer")
	}
	if !strings.Contains(body, `<a href="https://news.ycombinator.com/item?id=102">View thread</a>`) {
		t.Error("thread link should point at the newest comment")
	}
}

func TestSendNotification(t *testing.T) {
	mock := NewMockProvider(testLogger())
	sender := New(mock, testLogger(), "http://localhost:8080")
	sub, thread := testThread()
	ctx := context.Background()

	if err := sender.SendNotification(ctx, sub, thread, nil); err != nil {
		t.Fatalf("SendNotification(no comments) error = %v", err)
	}
	if len(mock.Sent()) != 0 {
		t.Fatal("no email expected without comments")
	}

	if err := sender.SendNotification(ctx, sub, thread, []*hn.Comment{{ID: 101, By: "a", Text: "hi"}}); err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].To != sub.Email || sent[0].Subject != thread.Title {
		t.Errorf("sent = %+v", sent)
	}
}

func TestSendWelcome(t *testing.T) {
	mock := NewMockProvider(testLogger())
	sender := New(mock, testLogger(), "http://localhost:8080")
	sub, thread := testThread()

	if err := sender.SendWelcome(context.Background(), sub, thread, "203.0.113.9", `Mozilla <script>`); err != nil {
		t.Fatalf("SendWelcome() error = %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sent))
	}
	body := sent[0].HTML
	for _, want := range []string{"Ask HN: &lt;Favorite&gt; tools?", "203.0.113.9", "Mozilla &lt;script&gt;", "/api/watch?token="} {
		if !strings.Contains(body, want) {
			t.Errorf("welcome body missing %q\ngot:\n%s", want, body)
		}
	}

	untitled := &hn.Thread{ItemID: 5}
	if got := subjectFor(untitled); got != "Hacker News Thread Update" {
		t.Errorf("subjectFor(untitled) = %q", got)
	}
}

func TestRawMessage(t *testing.T) {
	raw := rawMessage("me@example.com", "you@example.com\r\nBcc: x@example.com", "Hi", "<p>body</p>")
	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatal(err)
	}
	msg := string(decoded)
	if !strings.Contains(msg, "To: you@example.comBcc: x@example.com\r\n") {
		t.Errorf("header injection not neutralised:\n%s", msg)
	}
	if !strings.Contains(msg, "From: me@example.com\r\n") || !strings.HasSuffix(msg, "\r\n\r\n<p>body</p>") {
		t.Errorf("unexpected message:\n%s", msg)
	}
}

func TestBrevoProvider(t *testing.T) {
	var got brevoSendRequest
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := NewBrevoProvider("key", "from@example.com", "HN Watch", testLogger()).WithEndpoint(srv.URL)
	if err := p.Send(context.Background(), "to@example.com", "Subject\n", "<p>x</p>"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.Subject != "Subject" || got.To[0].Email != "to@example.com" || got.Sender.Name != "HN Watch" {
		t.Errorf("request = %+v", got)
	}

	calls = 0
	bad := NewBrevoProvider("wrong", "from@example.com", "", testLogger()).WithEndpoint(srv.URL)
	if err := bad.Send(context.Background(), "to@example.com", "s", "b"); err == nil {
		t.Fatal("Send() with a bad key should fail")
	}
	if calls != 1 {
		t.Errorf("client errors should not be retried, got %d calls", calls)
	}
}
