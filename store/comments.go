package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hackers/pkg/hn"
)

// ReplaceComments stores the full comment tree of a post, replacing the previous copy.
// Comments must be in thread order with parents before replies. The collapsed state
// of comments already on disk is carried over.
func (s *Store) ReplaceComments(ctx context.Context, postID int, comments []*hn.Comment) error {
	if err := validateTree(postID, comments); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		expanded, err := expandedFlags(ctx, tx, postID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, postID); err != nil {
			return fmt.Errorf("clear comments: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO comments (id, post_id, parent_id, level, position, author, body_html, body_text, posted_at, age, expanded)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare comment insert: %w", err)
		}
		defer func() {
			if closeErr := stmt.Close(); closeErr != nil {
				s.logger.Warn("Failed to close statement", "error", closeErr)
			}
		}()

		for i, c := range comments {
			exp, ok := expanded[c.ID]
			if !ok {
				exp = true
			}
			c.Expanded = exp
			if _, err := stmt.ExecContext(ctx,
				c.ID, postID, c.ParentID, c.Level, i, c.By, c.Body, c.Text, unix(c.Time), c.Age, exp); err != nil {
				return fmt.Errorf("insert comment %d: %w", c.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE posts SET comments_fetched_at = ? WHERE id = ?`, time.Now().Unix(), postID); err != nil {
			return fmt.Errorf("mark comments fetched: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace comments of %d: %w", postID, err)
	}

	hn.ApplyVisibility(comments)
	s.logger.Debug("Comments saved", "post_id", postID, "count", len(comments))
	return nil
}

// validateTree checks that IDs are unique and every reply's parent appears before it.
func validateTree(postID int, comments []*hn.Comment) error {
	seen := make(map[int]bool, len(comments))
	for _, c := range comments {
		if c.PostID != postID {
			return hn.Errorf(hn.KindScraper, "validate comments", "comment %d belongs to post %d, not %d", c.ID, c.PostID, postID)
		}
		if seen[c.ID] {
			return hn.Errorf(hn.KindScraper, "validate comments", "duplicate comment %d", c.ID)
		}
		if c.ParentID != 0 && !seen[c.ParentID] {
			return hn.Errorf(hn.KindScraper, "validate comments", "comment %d references missing parent %d", c.ID, c.ParentID)
		}
		seen[c.ID] = true
	}
	return nil
}

func expandedFlags(ctx context.Context, tx *sql.Tx, postID int) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, expanded FROM comments WHERE post_id = ?`, postID)
	if err != nil {
		return nil, fmt.Errorf("query expanded flags: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	flags := make(map[int]bool)
	for rows.Next() {
		var (
			id  int
			exp bool
		)
		if err := rows.Scan(&id, &exp); err != nil {
			return nil, fmt.Errorf("scan expanded flag: %w", err)
		}
		flags[id] = exp
	}
	return flags, rows.Err()
}

// Comments returns a post's comments in thread order with visibility applied.
func (s *Store) Comments(ctx context.Context, postID int) ([]*hn.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, post_id, parent_id, level, author, body_html, body_text, posted_at, age, expanded
FROM comments WHERE post_id = ? ORDER BY position`, postID)
	if err != nil {
		return nil, fmt.Errorf("query comments of %d: %w", postID, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	var comments []*hn.Comment
	for rows.Next() {
		var (
			c        hn.Comment
			postedAt int64
		)
		if err := rows.Scan(&c.ID, &c.PostID, &c.ParentID, &c.Level, &c.By, &c.Body, &c.Text, &postedAt, &c.Age, &c.Expanded); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Time = fromUnix(postedAt)
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments of %d: %w", postID, err)
	}

	hn.ApplyVisibility(comments)
	return comments, nil
}

// ToggleComment flips a comment between expanded and collapsed.
// It returns the comment with its visibility recomputed against its ancestors.
func (s *Store) ToggleComment(ctx context.Context, id int) (*hn.Comment, error) {
	var postID int
	err := s.db.QueryRowContext(ctx, `SELECT post_id FROM comments WHERE id = ?`, id).Scan(&postID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hn.NotFound(fmt.Sprintf("comment %d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("look up comment %d: %w", id, err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE comments SET expanded = 1 - expanded WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("toggle comment %d: %w", id, err)
	}

	comments, err := s.Comments(ctx, postID)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if c.ID == id {
			s.logger.Debug("Comment toggled", "comment_id", id, "post_id", postID, "visibility", c.Visibility,
				"descendants", hn.CountDescendants(comments, id))
			return c, nil
		}
	}
	return nil, hn.NotFound(fmt.Sprintf("comment %d", id))
}
