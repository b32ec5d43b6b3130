package syncer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hackers/pkg/hn"
	"hackers/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigs(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "front.yml", `
type: News
pages: 2
fetch_comments: true
filter:
  exclude: ["crypto"]
  min_score: 10
`)
	writeConfig(t, dir, "ask.yaml", `
name: ask-rss
type: ask
source: rss
`)
	writeConfig(t, dir, "notes.txt", "ignored")

	configs, err := LoadConfigs(dir, testLogger())
	if err != nil {
		t.Fatalf("LoadConfigs() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("LoadConfigs() returned %d configs, want 2", len(configs))
	}

	ask, front := configs[0], configs[1]
	if ask.Name != "ask-rss" || ask.RSSURL != "https://hnrss.org/ask" || ask.Pages != 1 {
		t.Errorf("ask config = %+v", ask)
	}
	if front.Name != "front" || front.Type != hn.News || front.Pages != 2 {
		t.Errorf("front config = %+v", front)
	}
	if front.RefreshInterval != 900 || front.MaxCommentsPosts != 10 || front.Source != SourceScrape {
		t.Errorf("front defaults = %+v", front)
	}
	if front.Filter.MinScore != 10 || len(front.Filter.Exclude) != 1 {
		t.Errorf("front filter = %+v", front.Filter)
	}
}

func TestLoadConfigsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown type", "type: podcasts"},
		{"unknown source", "type: news\nsource: email"},
		{"rss without feed", "type: active\nsource: rss"},
		{"too many pages", "type: news\npages: 50"},
		{"short interval", "type: news\nrefresh_interval: 5"},
		{"bad yaml", "type: [news"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "feed.yml", tt.content)
			if _, err := LoadConfigs(dir, testLogger()); err == nil {
				t.Error("LoadConfigs() should fail")
			}
		})
	}

	dir := t.TempDir()
	writeConfig(t, dir, "a.yml", "name: same\ntype: news")
	writeConfig(t, dir, "b.yml", "name: same\ntype: ask")
	if _, err := LoadConfigs(dir, testLogger()); err == nil {
		t.Error("duplicate feed names should fail")
	}

	configs, err := LoadConfigs(filepath.Join(dir, "missing"), testLogger())
	if err != nil || len(configs) != 0 {
		t.Errorf("LoadConfigs(missing dir) = %v, %v", configs, err)
	}
}

func TestLoadConfigsSameListing(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "front.yml", "type: news\nfilter:\n  min_score: 100")
	writeConfig(t, dir, "front-rust.yml", "type: news\nfilter:\n  include: [\"rust\"]")
	if _, err := LoadConfigs(dir, testLogger()); err == nil {
		t.Error("two enabled feeds on the news listing should fail")
	}

	// A disabled duplicate never writes the listing
	writeConfig(t, dir, "front-rust.yml", "type: news\ndisabled: true")
	configs, err := LoadConfigs(dir, testLogger())
	if err != nil {
		t.Fatalf("LoadConfigs() error = %v", err)
	}
	if len(configs) != 2 {
		t.Errorf("LoadConfigs() returned %d configs, want 2", len(configs))
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.n); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

type fakeScraper struct {
	mu       sync.Mutex
	pages    map[int][]*hn.Post // by nextID for newest, by page otherwise
	threads  map[int][]*hn.Comment
	calls    []int
	failPage int
}

func (f *fakeScraper) Posts(_ context.Context, t hn.PostType, page, nextID int) ([]*hn.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := page
	if t.PagesByID() {
		key = nextID
	}
	f.calls = append(f.calls, key)
	if page == f.failPage {
		return nil, errors.New("boom")
	}
	return f.pages[key], nil
}

func (f *fakeScraper) Post(_ context.Context, id int, _ bool) (*hn.Post, []*hn.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	comments, ok := f.threads[id]
	if !ok {
		return nil, nil, hn.NotFound("item")
	}
	return &hn.Post{ID: id, Title: "thread", CommentCount: len(comments)}, comments, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), testLogger())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() }) //nolint:errcheck // test cleanup
	return s
}

func TestSyncFeedTaskFollowsNextID(t *testing.T) {
	ctx := context.Background()
	cache := openStore(t)
	sc := &fakeScraper{pages: map[int][]*hn.Post{
		0:  {{ID: 30, Title: "a"}, {ID: 20, Title: "b"}},
		20: {{ID: 10, Title: "c"}},
	}}
	cfg := &FeedConfig{Name: "new", Type: hn.Newest, Pages: 3}
	cfg.setDefaults()

	task := NewSyncFeedTask(cfg, &Deps{Scraper: sc, Cache: cache, Logger: testLogger()})
	if err := task.Execute(ctx); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(sc.calls) != 3 || sc.calls[0] != 0 || sc.calls[1] != 20 || sc.calls[2] != 10 {
		t.Errorf("scraper calls = %v, want [0 20 10]", sc.calls)
	}

	posts, err := cache.ListPosts(ctx, hn.Newest, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 3 || posts[0].ID != 30 || posts[2].ID != 10 {
		t.Errorf("cached listing = %v", posts)
	}

	st, err := cache.SyncState(ctx, "new")
	if err != nil {
		t.Fatal(err)
	}
	if st.PostCount != 3 || st.LastError != "" || !st.NextSyncAt.After(st.LastSyncAt) {
		t.Errorf("sync state = %+v", st)
	}
	if len(task.FollowUps()) != 0 {
		t.Error("no follow-ups expected without fetch_comments")
	}
}

func TestSyncFeedTaskRecordsFailure(t *testing.T) {
	ctx := context.Background()
	cache := openStore(t)
	cfg := &FeedConfig{Name: "front", Type: hn.News}
	cfg.setDefaults()

	task := NewSyncFeedTask(cfg, &Deps{Scraper: &fakeScraper{failPage: 1}, Cache: cache, Logger: testLogger()})
	if err := task.Execute(ctx); err == nil {
		t.Fatal("Execute() should fail")
	}
	st, err := cache.SyncState(ctx, "front")
	if err != nil {
		t.Fatal(err)
	}
	if st.LastError == "" {
		t.Errorf("sync state = %+v, want recorded error", st)
	}
}

func TestSyncFeedTaskFilterAndComments(t *testing.T) {
	ctx := context.Background()
	cache := openStore(t)
	sc := &fakeScraper{
		pages: map[int][]*hn.Post{1: {
			{ID: 1, Title: "Rust 2.0", Score: 50, CommentCount: 2, Rank: 1},
			{ID: 2, Title: "Crypto winter", Score: 90, Rank: 2},
			{ID: 3, Title: "Low score", Score: 1, Rank: 3},
		}},
		threads: map[int][]*hn.Comment{1: {
			{ID: 11, PostID: 1, Text: "first"},
			{ID: 12, PostID: 1, ParentID: 11, Level: 1, Text: "reply"},
		}},
	}
	cfg := &FeedConfig{Name: "front", Type: hn.News, FetchComments: true}
	cfg.Filter.Exclude = []string{"CRYPTO"}
	cfg.Filter.MinScore = 5
	cfg.setDefaults()
	deps := &Deps{Scraper: sc, Cache: cache, Logger: testLogger()}

	task := NewSyncFeedTask(cfg, deps)
	if err := task.Execute(ctx); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	posts, err := cache.ListPosts(ctx, hn.News, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != 1 {
		t.Fatalf("filtered listing = %v, want only post 1", posts)
	}

	next := task.FollowUps()
	if len(next) != 1 || next[0].GetType() != TaskTypeSyncComments {
		t.Fatalf("FollowUps() = %v, want one comment sync", next)
	}
	if err := next[0].Execute(ctx); err != nil {
		t.Fatalf("comment sync error = %v", err)
	}
	comments, err := cache.Comments(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 2 || comments[1].ParentID != 11 {
		t.Errorf("cached comments = %v", comments)
	}
}

func TestSchedulerQueue(t *testing.T) {
	cfg := &FeedConfig{Name: "front", Type: hn.News}
	cfg.setDefaults()
	s := NewScheduler([]*FeedConfig{cfg}, &Deps{Logger: testLogger()}, 1, time.Hour)

	for i := range queueSize {
		if err := s.EnqueueTask(NewSyncCommentsTask(cfg, s.deps)); err != nil {
			t.Fatalf("EnqueueTask() #%d error = %v", i, err)
		}
	}
	if err := s.EnqueueTask(NewSyncCommentsTask(cfg, s.deps)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("EnqueueTask() on full queue error = %v, want ErrQueueFull", err)
	}

	if _, err := s.TriggerFeed("missing"); !hn.IsNotFound(err) {
		t.Errorf("TriggerFeed(missing) error = %v, want not found", err)
	}
}

func TestSchedulerSyncsDueFeeds(t *testing.T) {
	ctx := context.Background()
	cache := openStore(t)
	sc := &fakeScraper{pages: map[int][]*hn.Post{1: {{ID: 1, Title: "a"}}}}
	cfg := &FeedConfig{Name: "front", Type: hn.News}
	cfg.setDefaults()

	s := NewScheduler([]*FeedConfig{cfg}, &Deps{Scraper: sc, Cache: cache, Logger: testLogger()}, 2, time.Hour)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := cache.SyncState(ctx, "front")
		if err != nil {
			t.Fatal(err)
		}
		if st.PostCount == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("feed was not synced on start")
		}
		time.Sleep(20 * time.Millisecond)
	}

	feeds, err := s.Feeds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 1 || feeds[0].State.PostCount != 1 {
		t.Errorf("Feeds() = %+v", feeds)
	}
}
