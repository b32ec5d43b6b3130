package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hackers/pkg/hn"
)

// SaveArticle caches the readable extraction of a post's link.
func (s *Store) SaveArticle(ctx context.Context, a *hn.Article) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO articles (post_id, url, title, byline, site_name, excerpt, content, text_content, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PostID, a.URL, a.Title, a.Byline, a.SiteName, a.Excerpt, a.Content, a.TextContent, unix(a.FetchedAt))
	if err != nil {
		return fmt.Errorf("save article %d: %w", a.PostID, err)
	}
	return nil
}

// Article returns the cached extraction for a post.
func (s *Store) Article(ctx context.Context, postID int) (*hn.Article, error) {
	var (
		a         hn.Article
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT post_id, url, title, byline, site_name, excerpt, content, text_content, fetched_at
FROM articles WHERE post_id = ?`, postID).Scan(
		&a.PostID, &a.URL, &a.Title, &a.Byline, &a.SiteName, &a.Excerpt, &a.Content, &a.TextContent, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hn.NotFound(fmt.Sprintf("article %d", postID))
	}
	if err != nil {
		return nil, fmt.Errorf("load article %d: %w", postID, err)
	}
	a.FetchedAt = fromUnix(fetchedAt)
	return &a, nil
}

// SyncState is the bookkeeping of a configured feed.
type SyncState struct {
	LastSyncAt time.Time `json:"last_sync_at,omitzero"`
	NextSyncAt time.Time `json:"next_sync_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
	PostCount  int       `json:"post_count"`
}

// SyncState returns the state of a feed; a feed never synced has a zero state.
func (s *Store) SyncState(ctx context.Context, feed string) (*SyncState, error) {
	var (
		st         SyncState
		last, next int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sync_at, next_sync_at, last_error, post_count FROM sync_state WHERE feed = ?`, feed).
		Scan(&last, &next, &st.LastError, &st.PostCount)
	if errors.Is(err, sql.ErrNoRows) {
		return &SyncState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync state %s: %w", feed, err)
	}
	st.LastSyncAt = fromUnix(last)
	st.NextSyncAt = fromUnix(next)
	return &st, nil
}

// SetSyncState records the outcome of a feed sync.
func (s *Store) SetSyncState(ctx context.Context, feed string, st *SyncState) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sync_state (feed, last_sync_at, next_sync_at, last_error, post_count)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (feed) DO UPDATE SET
    last_sync_at = excluded.last_sync_at,
    next_sync_at = excluded.next_sync_at,
    last_error   = excluded.last_error,
    post_count   = excluded.post_count`,
		feed, unix(st.LastSyncAt), unix(st.NextSyncAt), st.LastError, st.PostCount)
	if err != nil {
		return fmt.Errorf("save sync state %s: %w", feed, err)
	}
	return nil
}
