package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hackers/pkg/hn"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), logger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	path := filepath.Join(t.TempDir(), "cache.db")
	for i := range 2 {
		s, err := Open(context.Background(), path, logger)
		if err != nil {
			t.Fatalf("Open() #%d error = %v", i+1, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}
}

func TestSaveListingAndReadMarks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	posts := []*hn.Post{
		{ID: 3, Title: "Third", URL: "https://c.example", Score: 5, Rank: 1, Time: time.Unix(1714566896, 0)},
		{ID: 1, Title: "First", Score: 10, Rank: 2},
		{ID: 2, Title: "Second", Rank: 3},
	}
	if err := s.SaveListing(ctx, hn.News, posts); err != nil {
		t.Fatalf("SaveListing() error = %v", err)
	}

	if err := s.MarkRead(ctx, 1); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	// Second mark is a no-op.
	if err := s.MarkRead(ctx, 1); err != nil {
		t.Fatalf("MarkRead() again error = %v", err)
	}

	// Re-fetching the listing keeps the read mark.
	posts[1].Score = 42
	if err := s.SaveListing(ctx, hn.News, posts); err != nil {
		t.Fatalf("SaveListing() again error = %v", err)
	}

	got, err := s.ListPosts(ctx, hn.News, 0, 0)
	if err != nil {
		t.Fatalf("ListPosts() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListPosts() returned %d posts, want 3", len(got))
	}
	wantOrder := []int{3, 1, 2}
	for i, p := range got {
		if p.ID != wantOrder[i] {
			t.Errorf("post[%d].ID = %d, want %d", i, p.ID, wantOrder[i])
		}
		if p.Type != hn.News {
			t.Errorf("post[%d].Type = %q, want news", i, p.Type)
		}
	}
	if !got[1].Read || got[0].Read {
		t.Errorf("read flags = %v/%v, want false/true", got[0].Read, got[1].Read)
	}
	if got[1].Score != 42 {
		t.Errorf("Score = %d, want 42", got[1].Score)
	}
	if !got[0].Time.Equal(time.Unix(1714566896, 0)) {
		t.Errorf("Time = %v, want 1714566896", got[0].Time)
	}

	page, err := s.ListPosts(ctx, hn.News, 1, 1)
	if err != nil {
		t.Fatalf("ListPosts(offset) error = %v", err)
	}
	if len(page) != 1 || page[0].ID != 1 {
		t.Errorf("ListPosts(1, 1) = %v, want post 1", page)
	}

	read, err := s.ReadIDs(ctx, []int{1, 2, 3})
	if err != nil {
		t.Fatalf("ReadIDs() error = %v", err)
	}
	if !read[1] || read[2] || read[3] {
		t.Errorf("ReadIDs() = %v, want only 1", read)
	}

	if err := s.MarkUnread(ctx, 1); err != nil {
		t.Fatalf("MarkUnread() error = %v", err)
	}
	if ok, err := s.IsRead(ctx, 1); err != nil || ok {
		t.Errorf("IsRead() = %v, %v; want false", ok, err)
	}
}

func TestUpsertPostKeepsSelfText(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertPost(ctx, &hn.Post{ID: 7, Title: "Ask HN", Text: "body", Time: time.Unix(100, 0)}); err != nil {
		t.Fatalf("UpsertPost() error = %v", err)
	}
	// A listing refresh carries neither self text nor a timestamp.
	if err := s.SaveListing(ctx, hn.Ask, []*hn.Post{{ID: 7, Title: "Ask HN (edited)"}}); err != nil {
		t.Fatalf("SaveListing() error = %v", err)
	}

	p, err := s.GetPost(ctx, 7)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if p.Title != "Ask HN (edited)" || p.Text != "body" || p.Time.Unix() != 100 {
		t.Errorf("GetPost() = %+v", p)
	}

	if _, err := s.GetPost(ctx, 8); !hn.IsNotFound(err) {
		t.Errorf("GetPost(missing) error = %v, want not found", err)
	}
	if err := s.UpsertPost(ctx, &hn.Post{ID: 0}); err == nil {
		t.Error("UpsertPost(id 0) should fail")
	}
}

func testComments() []*hn.Comment {
	comments := []*hn.Comment{
		{ID: 10, PostID: 1, By: "a", Text: "root"},
		{ID: 11, PostID: 1, ParentID: 10, Level: 1, By: "b", Text: "reply"},
		{ID: 12, PostID: 1, ParentID: 11, Level: 2, By: "c", Text: "nested"},
		{ID: 13, PostID: 1, By: "d", Text: "second root"},
	}
	return comments
}

func TestCommentsToggle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.ReplaceComments(ctx, 1, testComments()); err != nil {
		t.Fatalf("ReplaceComments() error = %v", err)
	}
	if cached, err := s.Comments(ctx, 1); err != nil || len(cached) != len(testComments()) {
		t.Fatalf("Comments() = %d comments, %v", len(cached), err)
	}

	c, err := s.ToggleComment(ctx, 10)
	if err != nil {
		t.Fatalf("ToggleComment() error = %v", err)
	}
	if c.Expanded || c.Visibility != hn.Compact {
		t.Errorf("toggled comment = expanded %v visibility %v, want collapsed compact", c.Expanded, c.Visibility)
	}

	comments, err := s.Comments(ctx, 1)
	if err != nil {
		t.Fatalf("Comments() error = %v", err)
	}
	want := map[int]hn.Visibility{10: hn.Compact, 11: hn.Hidden, 12: hn.Hidden, 13: hn.Visible}
	for _, c := range comments {
		if c.Visibility != want[c.ID] {
			t.Errorf("comment %d visibility = %v, want %v", c.ID, c.Visibility, want[c.ID])
		}
	}

	// Refreshing the thread keeps the collapsed state.
	if err := s.ReplaceComments(ctx, 1, testComments()); err != nil {
		t.Fatalf("ReplaceComments() again error = %v", err)
	}
	comments, err = s.Comments(ctx, 1)
	if err != nil {
		t.Fatalf("Comments() error = %v", err)
	}
	if comments[0].Expanded {
		t.Error("comment 10 should still be collapsed after refresh")
	}

	c, err = s.ToggleComment(ctx, 10)
	if err != nil {
		t.Fatalf("ToggleComment() error = %v", err)
	}
	if !c.Expanded || c.Visibility != hn.Visible {
		t.Errorf("re-toggled comment = expanded %v visibility %v", c.Expanded, c.Visibility)
	}

	if _, err := s.ToggleComment(ctx, 999); !hn.IsNotFound(err) {
		t.Errorf("ToggleComment(missing) error = %v, want not found", err)
	}
}

func TestReplaceCommentsValidation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tests := []struct {
		name     string
		comments []*hn.Comment
	}{
		{"wrong post", []*hn.Comment{{ID: 1, PostID: 2}}},
		{"duplicate", []*hn.Comment{{ID: 1, PostID: 1}, {ID: 1, PostID: 1}}},
		{"orphan", []*hn.Comment{{ID: 2, PostID: 1, ParentID: 5}}},
		{"parent after child", []*hn.Comment{{ID: 3, PostID: 1, ParentID: 4}, {ID: 4, PostID: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ReplaceComments(ctx, 1, tt.comments)
			if !hn.IsKind(err, hn.KindScraper) {
				t.Errorf("ReplaceComments() error = %v, want scraper error", err)
			}
		})
	}

	if cached, err := s.Comments(ctx, 1); err != nil || len(cached) != 0 {
		t.Errorf("Comments() = %d comments, %v; invalid trees must not be stored", len(cached), err)
	}
}

func TestArticleCache(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.Article(ctx, 5); !hn.IsNotFound(err) {
		t.Fatalf("Article(missing) error = %v, want not found", err)
	}

	a := &hn.Article{PostID: 5, URL: "https://example.com/a", Title: "A", TextContent: "hello", FetchedAt: time.Unix(200, 0)}
	if err := s.SaveArticle(ctx, a); err != nil {
		t.Fatalf("SaveArticle() error = %v", err)
	}
	got, err := s.Article(ctx, 5)
	if err != nil {
		t.Fatalf("Article() error = %v", err)
	}
	if got.Title != "A" || got.TextContent != "hello" || got.FetchedAt.Unix() != 200 {
		t.Errorf("Article() = %+v", got)
	}
}

func TestSyncState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st, err := s.SyncState(ctx, "front")
	if err != nil {
		t.Fatalf("SyncState() error = %v", err)
	}
	if !st.LastSyncAt.IsZero() {
		t.Errorf("fresh SyncState = %+v, want zero", st)
	}

	want := &SyncState{LastSyncAt: time.Unix(300, 0).UTC(), NextSyncAt: time.Unix(1200, 0).UTC(), PostCount: 30}
	if err := s.SetSyncState(ctx, "front", want); err != nil {
		t.Fatalf("SetSyncState() error = %v", err)
	}
	want.LastError = "boom"
	if err := s.SetSyncState(ctx, "front", want); err != nil {
		t.Fatalf("SetSyncState() update error = %v", err)
	}

	st, err = s.SyncState(ctx, "front")
	if err != nil {
		t.Fatalf("SyncState() error = %v", err)
	}
	if !st.LastSyncAt.Equal(want.LastSyncAt) || st.LastError != "boom" || st.PostCount != 30 {
		t.Errorf("SyncState() = %+v, want %+v", st, want)
	}
}

func TestListPostsAfter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	posts := []*hn.Post{{ID: 300, Title: "a"}, {ID: 299, Title: "b"}, {ID: 250, Title: "c"}, {ID: 240, Title: "d"}}
	if err := s.SaveListing(ctx, hn.Newest, posts); err != nil {
		t.Fatalf("SaveListing() error = %v", err)
	}

	got, err := s.ListPostsAfter(ctx, hn.Newest, 299, 1)
	if err != nil {
		t.Fatalf("ListPostsAfter() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != 250 {
		t.Errorf("ListPostsAfter(299, 1) = %v, want post 250", got)
	}

	got, err = s.ListPostsAfter(ctx, hn.Newest, 240, 30)
	if err != nil || len(got) != 0 {
		t.Errorf("ListPostsAfter(last) = %v, %v; want nothing", got, err)
	}
	// An id outside the cached listing cannot be continued from the cache
	got, err = s.ListPostsAfter(ctx, hn.Newest, 100, 30)
	if err != nil || len(got) != 0 {
		t.Errorf("ListPostsAfter(unknown) = %v, %v; want nothing", got, err)
	}
}

func TestCommentsFetchedAt(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertPost(ctx, &hn.Post{ID: 1, Title: "Quiet thread"}); err != nil {
		t.Fatalf("UpsertPost() error = %v", err)
	}
	p, err := s.GetPost(ctx, 1)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if !p.CommentsAt.IsZero() {
		t.Errorf("CommentsAt = %v before any comment fetch, want zero", p.CommentsAt)
	}

	// An empty thread still counts as fetched.
	if err := s.ReplaceComments(ctx, 1, nil); err != nil {
		t.Fatalf("ReplaceComments() error = %v", err)
	}
	if err := s.UpsertPost(ctx, &hn.Post{ID: 1, Title: "Quiet thread", Score: 3}); err != nil {
		t.Fatalf("UpsertPost() error = %v", err)
	}
	p, err = s.GetPost(ctx, 1)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if p.CommentsAt.IsZero() {
		t.Error("CommentsAt is zero after ReplaceComments")
	}
}

func TestBookmarks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, id := range []int{1, 2, 3} {
		if err := s.UpsertPost(ctx, &hn.Post{ID: id, Title: "post"}); err != nil {
			t.Fatalf("UpsertPost(%d) error = %v", id, err)
		}
	}

	if err := s.AddBookmark(ctx, 2); err != nil {
		t.Fatalf("AddBookmark(2) error = %v", err)
	}
	on, err := s.ToggleBookmark(ctx, 3)
	if err != nil || !on {
		t.Fatalf("ToggleBookmark(3) = %v, %v; want true", on, err)
	}
	if err := s.AddBookmark(ctx, 2); err != nil {
		t.Fatalf("AddBookmark(2) again error = %v", err)
	}

	got, err := s.Bookmarks(ctx)
	if err != nil {
		t.Fatalf("Bookmarks() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 2 {
		t.Fatalf("Bookmarks() = %v, want [3 2]", got)
	}
	if !got[0].Bookmarked {
		t.Error("bookmarked post should carry the flag")
	}

	p, err := s.GetPost(ctx, 1)
	if err != nil || p.Bookmarked {
		t.Errorf("GetPost(1) = %+v, %v; want not bookmarked", p, err)
	}

	on, err = s.ToggleBookmark(ctx, 3)
	if err != nil || on {
		t.Fatalf("ToggleBookmark(3) again = %v, %v; want false", on, err)
	}
	if err := s.RemoveBookmark(ctx, 2); err != nil {
		t.Fatalf("RemoveBookmark() error = %v", err)
	}
	if err := s.RemoveBookmark(ctx, 2); err != nil {
		t.Fatalf("RemoveBookmark() of missing error = %v", err)
	}
	if got, err := s.Bookmarks(ctx); err != nil || len(got) != 0 {
		t.Errorf("Bookmarks() = %v, %v; want empty", got, err)
	}

	if err := s.AddBookmark(ctx, 99); !hn.IsNotFound(err) {
		t.Errorf("AddBookmark(uncached) error = %v, want not found", err)
	}
	if _, err := s.ToggleBookmark(ctx, 99); !hn.IsNotFound(err) {
		t.Errorf("ToggleBookmark(uncached) error = %v, want not found", err)
	}
}
