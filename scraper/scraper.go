// Package scraper handles fetching and parsing Hacker News pages.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hackers/pkg/hn"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
)

const (
	defaultAttempts        = 5
	defaultMaxCommentPages = 10
	userAgent              = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// HTTP403Error indicates a 403 Forbidden response (rate limited or login required).
type HTTP403Error struct {
	URL string
}

func (e *HTTP403Error) Error() string {
	return fmt.Sprintf("HTTP 403 Forbidden: %s", e.URL)
}

// IsHTTP403Error checks if an error is an HTTP 403 error.
func IsHTTP403Error(err error) bool {
	var forbidden *HTTP403Error
	return errors.As(err, &forbidden)
}

// Scraper fetches and parses Hacker News listings, items and profiles.
type Scraper struct {
	client          *http.Client
	logger          *slog.Logger
	baseURL         string
	attempts        uint
	delay           time.Duration
	maxCommentPages int
}

// New creates a new scraper against news.ycombinator.com.
func New(client *http.Client, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:          client,
		logger:          logger,
		baseURL:         hn.BaseURL,
		attempts:        defaultAttempts,
		delay:           time.Second,
		maxCommentPages: defaultMaxCommentPages,
	}
}

// WithBaseURL points the scraper at another host, such as a test server.
func (s *Scraper) WithBaseURL(baseURL string) *Scraper {
	s.baseURL = strings.TrimSuffix(baseURL, "/")
	return s
}

// WithRetry overrides the retry policy for page fetches.
func (s *Scraper) WithRetry(attempts uint, delay time.Duration) *Scraper {
	s.attempts = attempts
	s.delay = delay
	return s
}

// WithMaxCommentPages caps how many "more" pages an item fetch follows.
func (s *Scraper) WithMaxCommentPages(n int) *Scraper {
	s.maxCommentPages = n
	return s
}

// Posts fetches one page of a listing.
// nextID continues newest and jobs listings; page is used by the others.
func (s *Scraper) Posts(ctx context.Context, postType hn.PostType, page, nextID int) ([]*hn.Post, error) {
	path := hn.ListPath(postType, page, nextID)
	doc, err := s.fetch(ctx, path, "fetch_listing")
	if err != nil {
		return nil, fmt.Errorf("fetch %s listing: %w", postType, err)
	}

	posts, err := parseListing(doc, postType)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Listing parsed",
		"type", postType,
		"page", page,
		"next_id", nextID,
		"posts_found", len(posts))

	return posts, nil
}

// Post fetches an item page with its comments.
// When allPages is set it follows "more" links until the comment pages run out or the cap is hit.
func (s *Scraper) Post(ctx context.Context, id int, allPages bool) (*hn.Post, []*hn.Comment, error) {
	s.logger.Info("Starting item fetch", "post_id", id, "all_pages", allPages)

	doc, err := s.fetch(ctx, hn.ItemPath(id, 0), "fetch_item")
	if err != nil {
		return nil, nil, fmt.Errorf("fetch item %d: %w", id, err)
	}

	post, err := parseItem(doc, id)
	if err != nil {
		return nil, nil, err
	}

	comments := parseComments(doc)
	if selfText := postComment(post); selfText != nil {
		comments = append([]*hn.Comment{selfText}, comments...)
	}

	for page := 2; allPages && hasMore(doc) && page <= s.maxCommentPages; page++ {
		doc, err = s.fetch(ctx, hn.ItemPath(id, page), "fetch_item_page")
		if err != nil {
			// Keep what we have rather than failing the whole thread
			s.logger.Warn("Failed to fetch comment page, continuing with partial thread",
				"post_id", id,
				"page", page,
				"error", err)
			break
		}
		more := parseComments(doc)
		s.logger.Info("Comment page fetched", "post_id", id, "page", page, "comments_on_page", len(more))
		comments = append(comments, more...)
	}

	comments = dedupe(comments)
	hn.BuildTree(id, comments)

	s.logger.Info("Item parsed",
		"post_id", id,
		"title", post.Title,
		"comments_found", len(comments))

	return post, comments, nil
}

// Comments fetches every comment of an item.
func (s *Scraper) Comments(ctx context.Context, id int) (*hn.Post, []*hn.Comment, error) {
	return s.Post(ctx, id, true)
}

// User fetches a public profile.
func (s *Scraper) User(ctx context.Context, name string) (*hn.User, error) {
	doc, err := s.fetch(ctx, hn.UserPath(name), "fetch_user")
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", name, err)
	}
	return parseUser(doc, name)
}

func (s *Scraper) fetch(ctx context.Context, path, purpose string) (*goquery.Document, error) {
	return s.fetchAs(ctx, path, purpose, "")
}

// fetchAs fetches a page, sending the session cookie when one is given.
func (s *Scraper) fetchAs(ctx context.Context, path, purpose, session string) (*goquery.Document, error) {
	pageURL := s.baseURL + path
	var doc *goquery.Document

	err := retry.Do(
		func() error {
			s.logger.Info("HTTP request starting",
				"method", "GET",
				"url", pageURL,
				"purpose", purpose)

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", userAgent)
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")
			if session != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
			}

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", pageURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return hn.Errorf(hn.KindRequestFailure, purpose, "%w", err)
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds(),
				"content_length", resp.ContentLength)

			switch {
			case resp.StatusCode == http.StatusForbidden:
				s.logger.Warn("HTTP 403 Forbidden", "url", pageURL)
				return &HTTP403Error{URL: pageURL}
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(hn.NotFound(purpose))
			case resp.StatusCode != http.StatusOK:
				s.logger.Warn("HTTP request returned non-OK status, will retry", "status_code", resp.StatusCode)
				return hn.Errorf(hn.KindRequestFailure, purpose, "HTTP %d", resp.StatusCode)
			}

			doc, err = goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				s.logger.Error("Failed to parse HTML", "error", err)
				return retry.Unrecoverable(hn.Errorf(hn.KindScraper, purpose, "parse html: %w", err))
			}
			if isLoginPage(doc) {
				return retry.Unrecoverable(&hn.Error{Kind: hn.KindUnauthenticated, Op: purpose, Err: errors.New("login required")})
			}
			if doc.Find("#hnmain").Length() == 0 {
				return retry.Unrecoverable(hn.Errorf(hn.KindScraper, purpose, "unexpected page layout at %s", pageURL))
			}
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(s.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "attempt", n, "url", pageURL, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return !IsHTTP403Error(err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}

	return doc, nil
}

func hasMore(doc *goquery.Document) bool {
	return doc.Find("a.morelink").Length() > 0
}

func dedupe(comments []*hn.Comment) []*hn.Comment {
	seen := make(map[int]bool, len(comments))
	out := comments[:0]
	for _, c := range comments {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
