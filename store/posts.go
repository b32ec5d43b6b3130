package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hackers/pkg/hn"
)

const upsertPost = `
INSERT INTO posts (id, title, url, domain, submitter, posted_at, age, score, comment_count, self_text, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    title         = excluded.title,
    url           = excluded.url,
    domain        = excluded.domain,
    submitter     = excluded.submitter,
    posted_at     = CASE WHEN excluded.posted_at != 0 THEN excluded.posted_at ELSE posts.posted_at END,
    age           = CASE WHEN excluded.age != '' THEN excluded.age ELSE posts.age END,
    score         = excluded.score,
    comment_count = excluded.comment_count,
    self_text     = CASE WHEN excluded.self_text != '' THEN excluded.self_text ELSE posts.self_text END,
    updated_at    = excluded.updated_at`

const postColumns = `p.id, p.title, p.url, p.domain, p.submitter, p.posted_at, p.age, p.score, p.comment_count, p.self_text,
    p.comments_fetched_at,
    EXISTS (SELECT 1 FROM read_marks r WHERE r.post_id = p.id),
    EXISTS (SELECT 1 FROM bookmarks b WHERE b.post_id = p.id)`

// SaveListing replaces the ranking of a listing and upserts its posts.
// Read marks are untouched, so a re-fetched post keeps its read state.
func (s *Store) SaveListing(ctx context.Context, postType hn.PostType, posts []*hn.Post) error {
	now := time.Now().Unix()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE type = ?`, string(postType)); err != nil {
			return fmt.Errorf("clear listing: %w", err)
		}
		seen := make(map[int]bool, len(posts))
		for i, p := range posts {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			if err := execUpsertPost(ctx, tx, p, now); err != nil {
				return err
			}
			rank := p.Rank
			if rank == 0 {
				rank = i + 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO listings (type, post_id, rank) VALUES (?, ?, ?)`,
				string(postType), p.ID, rank); err != nil {
				return fmt.Errorf("insert listing entry %d: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s listing: %w", postType, err)
	}

	s.logger.Debug("Listing saved", "type", postType, "posts", len(posts))
	return nil
}

// UpsertPost inserts or refreshes a single post without touching listings.
func (s *Store) UpsertPost(ctx context.Context, p *hn.Post) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return execUpsertPost(ctx, tx, p, time.Now().Unix())
	})
}

func execUpsertPost(ctx context.Context, tx *sql.Tx, p *hn.Post, now int64) error {
	if p.ID <= 0 {
		return fmt.Errorf("invalid post id %d", p.ID)
	}
	_, err := tx.ExecContext(ctx, upsertPost,
		p.ID, p.Title, p.URL, p.Domain, p.By, unix(p.Time), p.Age,
		p.Score, p.CommentCount, p.Text, now)
	if err != nil {
		return fmt.Errorf("upsert post %d: %w", p.ID, err)
	}
	return nil
}

// ListPosts returns a page of a listing ordered by rank.
func (s *Store) ListPosts(ctx context.Context, postType hn.PostType, offset, limit int) ([]*hn.Post, error) {
	if limit <= 0 {
		limit = 30
	}
	return s.queryListing(ctx, postType, `
SELECT `+postColumns+`, l.rank
FROM listings l JOIN posts p ON p.id = l.post_id
WHERE l.type = ?
ORDER BY l.rank
LIMIT ? OFFSET ?`, string(postType), limit, offset)
}

// ListPostsAfter continues a listing from the post ranked after afterID, the way
// newest and jobs pages continue with ?next=. It returns nothing when afterID is
// not part of the cached listing.
func (s *Store) ListPostsAfter(ctx context.Context, postType hn.PostType, afterID, limit int) ([]*hn.Post, error) {
	if limit <= 0 {
		limit = 30
	}
	return s.queryListing(ctx, postType, `
SELECT `+postColumns+`, l.rank
FROM listings l JOIN posts p ON p.id = l.post_id
WHERE l.type = ?
  AND l.rank > (SELECT a.rank FROM listings a WHERE a.type = l.type AND a.post_id = ?)
ORDER BY l.rank
LIMIT ?`, string(postType), afterID, limit)
}

func (s *Store) queryListing(ctx context.Context, postType hn.PostType, query string, args ...any) ([]*hn.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s listing: %w", postType, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	var posts []*hn.Post
	for rows.Next() {
		p, err := scanPost(rows, true)
		if err != nil {
			return nil, err
		}
		p.Type = postType
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s listing: %w", postType, err)
	}
	return posts, nil
}

// GetPost returns a cached post.
func (s *Store) GetPost(ctx context.Context, id int) (*hn.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, id)
	p, err := scanPost(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hn.NotFound(fmt.Sprintf("post %d", id))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner, withRank bool) (*hn.Post, error) {
	var (
		p          hn.Post
		postedAt   int64
		commentsAt int64
	)
	dest := []any{&p.ID, &p.Title, &p.URL, &p.Domain, &p.By, &postedAt, &p.Age, &p.Score, &p.CommentCount, &p.Text,
		&commentsAt, &p.Read, &p.Bookmarked}
	if withRank {
		dest = append(dest, &p.Rank)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	p.Time = fromUnix(postedAt)
	p.CommentsAt = fromUnix(commentsAt)
	return &p, nil
}
