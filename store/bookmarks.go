package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hackers/pkg/hn"
)

// AddBookmark bookmarks a cached post. Bookmarking twice keeps the first timestamp.
func (s *Store) AddBookmark(ctx context.Context, postID int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return addBookmark(ctx, tx, postID)
	})
}

func addBookmark(ctx context.Context, tx *sql.Tx, postID int) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = ?)`, postID).Scan(&exists); err != nil {
		return fmt.Errorf("check post %d: %w", postID, err)
	}
	if !exists {
		return hn.NotFound(fmt.Sprintf("post %d", postID))
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bookmarks (post_id, created_at) VALUES (?, ?) ON CONFLICT (post_id) DO NOTHING`,
		postID, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("bookmark post %d: %w", postID, err)
	}
	return nil
}

// RemoveBookmark deletes a bookmark; removing a missing one is not an error.
func (s *Store) RemoveBookmark(ctx context.Context, postID int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("remove bookmark %d: %w", postID, err)
	}
	return nil
}

// ToggleBookmark flips the bookmark of a cached post and reports whether it is now bookmarked.
func (s *Store) ToggleBookmark(ctx context.Context, postID int) (bool, error) {
	var bookmarked bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE post_id = ?`, postID)
		if err != nil {
			return fmt.Errorf("remove bookmark %d: %w", postID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("remove bookmark %d: %w", postID, err)
		} else if n > 0 {
			return nil
		}
		bookmarked = true
		return addBookmark(ctx, tx, postID)
	})
	if err != nil {
		return false, err
	}
	return bookmarked, nil
}

// Bookmarks returns the bookmarked posts, most recently bookmarked first.
func (s *Store) Bookmarks(ctx context.Context) ([]*hn.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+postColumns+`
FROM bookmarks b0 JOIN posts p ON p.id = b0.post_id
ORDER BY b0.created_at DESC, b0.post_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	var posts []*hn.Post
	for rows.Next() {
		p, err := scanPost(rows, false)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}
	return posts, nil
}
