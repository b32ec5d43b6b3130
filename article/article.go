// Package article extracts the readable text of the pages posts link to.
package article

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/go-shiori/go-readability"

	"hackers/pkg/hn"
	"hackers/render"
)

const (
	maxPageBytes = 5 << 20
	userAgent    = "Mozilla/5.0 (compatible; hackers/1.0; +https://news.ycombinator.com)"
)

// Extractor downloads pages and runs readability over them.
type Extractor struct {
	client   *http.Client
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

// NewExtractor creates an extractor.
func NewExtractor(client *http.Client, logger *slog.Logger) *Extractor {
	return &Extractor{client: client, logger: logger, attempts: 3, delay: time.Second}
}

// WithRetry overrides the retry policy.
func (e *Extractor) WithRetry(attempts uint, delay time.Duration) *Extractor {
	e.attempts = attempts
	e.delay = delay
	return e
}

// Extract fetches pageURL and returns its readable content.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*hn.Article, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, hn.Errorf(hn.KindRequestFailure, "extract article", "unsupported url %q", pageURL)
	}

	var body []byte
	err = retry.Do(
		func() error {
			var fetchErr error
			body, fetchErr = e.fetch(ctx, pageURL)
			return fetchErr
		},
		retry.Attempts(e.attempts),
		retry.Delay(e.delay),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Info("Retrying article fetch", "url", pageURL, "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, &hn.Error{Kind: hn.KindRequestFailure, Op: "fetch article", Err: err}
	}

	parsed, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return nil, hn.Errorf(hn.KindScraper, "extract article", "readability: %w", err)
	}
	if strings.TrimSpace(parsed.Content) == "" {
		return nil, hn.Errorf(hn.KindScraper, "extract article", "no readable content at %s", pageURL)
	}

	text := strings.TrimSpace(parsed.TextContent)
	excerpt := strings.TrimSpace(parsed.Excerpt)
	if excerpt == "" {
		excerpt = render.Excerpt(text, 280)
	}

	e.logger.Debug("Article extracted", "url", pageURL, "title", parsed.Title, "content_length", len(parsed.Content))
	return &hn.Article{
		URL:         pageURL,
		Title:       parsed.Title,
		Byline:      parsed.Byline,
		SiteName:    parsed.SiteName,
		Excerpt:     excerpt,
		Content:     parsed.Content,
		TextContent: text,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			e.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	e.logger.Debug("Article page fetched", "url", pageURL, "status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	default:
		return nil, retry.Unrecoverable(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, retry.Unrecoverable(fmt.Errorf("not an html page: %s", ct))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	return body, nil
}

// Cache is the article persistence the service needs.
type Cache interface {
	GetPost(ctx context.Context, id int) (*hn.Post, error)
	Article(ctx context.Context, postID int) (*hn.Article, error)
	SaveArticle(ctx context.Context, a *hn.Article) error
}

// Service returns cached articles and extracts missing ones.
type Service struct {
	cache     Cache
	extractor *Extractor
	logger    *slog.Logger
}

// NewService creates an article service.
func NewService(cache Cache, extractor *Extractor, logger *slog.Logger) *Service {
	return &Service{cache: cache, extractor: extractor, logger: logger}
}

// ForPost returns the readable article behind a post's link.
// Posts without an external link have no article.
func (s *Service) ForPost(ctx context.Context, postID int) (*hn.Article, error) {
	cached, err := s.cache.Article(ctx, postID)
	if err == nil {
		return cached, nil
	}
	if !hn.IsNotFound(err) {
		return nil, err
	}

	post, err := s.cache.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.HasExternalURL() {
		return nil, hn.NotFound(fmt.Sprintf("article for post %d", postID))
	}

	a, err := s.extractor.Extract(ctx, post.URL)
	if err != nil {
		return nil, err
	}
	a.PostID = postID
	if a.Title == "" {
		a.Title = post.Title
	}
	if err := s.cache.SaveArticle(ctx, a); err != nil {
		s.logger.Warn("Failed to cache article", "post_id", postID, "error", err)
	}
	return a, nil
}
