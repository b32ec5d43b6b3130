package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MarkRead records that a post was opened. Marking twice is a no-op.
func (s *Store) MarkRead(ctx context.Context, postID int) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO read_marks (post_id, read_at) VALUES (?, ?)`,
		postID, time.Now().Unix()); err != nil {
		return fmt.Errorf("mark %d read: %w", postID, err)
	}
	return nil
}

// MarkUnread removes a post's read mark.
func (s *Store) MarkUnread(ctx context.Context, postID int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM read_marks WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("mark %d unread: %w", postID, err)
	}
	return nil
}

// IsRead reports whether a read mark exists for the post.
func (s *Store) IsRead(ctx context.Context, postID int) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM read_marks WHERE post_id = ?`, postID).Scan(&n); err != nil {
		return false, fmt.Errorf("check read mark %d: %w", postID, err)
	}
	return n > 0, nil
}

// ReadIDs returns which of ids have read marks.
func (s *Store) ReadIDs(ctx context.Context, ids []int) (map[int]bool, error) {
	read := make(map[int]bool, len(ids))
	if len(ids) == 0 {
		return read, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx, `SELECT post_id FROM read_marks WHERE post_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query read marks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan read mark: %w", err)
		}
		read[id] = true
	}
	return read, rows.Err()
}
