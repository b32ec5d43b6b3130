// Package search queries the Algolia Hacker News search API for stories.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"hackers/pkg/hn"
)

// Endpoint is the Algolia story search URL.
const Endpoint = "https://hn.algolia.com/api/v1/search"

// PageSize matches the length of a site listing page.
const PageSize = 30

// Client searches stories.
type Client struct {
	client   *http.Client
	logger   *slog.Logger
	endpoint string
	attempts uint
	delay    time.Duration
}

// New creates a search client against Algolia.
func New(client *http.Client, logger *slog.Logger) *Client {
	return &Client{
		client:   client,
		logger:   logger,
		endpoint: Endpoint,
		attempts: 3,
		delay:    time.Second,
	}
}

// WithEndpoint points the client at another search URL.
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

// WithRetry sets the attempt count and base delay.
func (c *Client) WithRetry(attempts uint, delay time.Duration) *Client {
	c.attempts = attempts
	c.delay = delay
	return c
}

type response struct {
	Hits []hit `json:"hits"`
}

type hit struct {
	Title       *string `json:"title"`
	URL         *string `json:"url"`
	Author      *string `json:"author"`
	StoryText   *string `json:"story_text"`
	Points      *int    `json:"points"`
	NumComments *int    `json:"num_comments"`
	CreatedAt   *int64  `json:"created_at_i"`
	ObjectID    string  `json:"objectID"`
}

// Stories returns one page of stories matching query, best match first. Pages start at 1.
func (c *Client) Stories(ctx context.Context, query string, page int) ([]*hn.Post, error) {
	const op = "search"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, hn.Errorf(hn.KindRequestFailure, op, "query is required")
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{
		"query":       {query},
		"tags":        {"story"},
		"page":        {strconv.Itoa(page - 1)},
		"hitsPerPage": {strconv.Itoa(PageSize)},
	}
	searchURL := c.endpoint + "?" + params.Encode()

	var out response
	err := retry.Do(
		func() error {
			return c.get(ctx, op, searchURL, &out)
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(c.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying search after error", "attempt", n, "query", query, "error", err)
		}),
	)
	if err != nil {
		var e *hn.Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	posts := make([]*hn.Post, 0, len(out.Hits))
	for _, h := range out.Hits {
		p, ok := h.post()
		if !ok {
			c.logger.Debug("Skipping search hit without numeric id", "object_id", h.ObjectID)
			continue
		}
		p.Rank = (page-1)*PageSize + len(posts) + 1
		posts = append(posts, p)
	}
	c.logger.Info("Search completed", "query", query, "page", page, "results", len(posts))
	return posts, nil
}

func (c *Client) get(ctx context.Context, op, searchURL string, out *response) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Search request failed, will retry", "error", err)
		return hn.Errorf(hn.KindRequestFailure, op, "%w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	c.logger.Info("Search request completed",
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return hn.Errorf(hn.KindRequestFailure, op, "HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return retry.Unrecoverable(hn.Errorf(hn.KindRequestFailure, op, "HTTP %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Unrecoverable(hn.Errorf(hn.KindRequestFailure, op, "decode response: %w", err))
	}
	return nil
}

func (h *hit) post() (*hn.Post, bool) {
	id, err := strconv.Atoi(h.ObjectID)
	if err != nil || id <= 0 {
		return nil, false
	}

	p := &hn.Post{
		ID:           id,
		Title:        "(no title)",
		URL:          hn.ItemURL(id),
		By:           "unknown",
		Type:         hn.News,
		Score:        deref(h.Points),
		CommentCount: deref(h.NumComments),
		Text:         deref(h.StoryText),
	}
	if t := deref(h.Title); t != "" {
		p.Title = t
	}
	if a := deref(h.Author); a != "" {
		p.By = a
	}
	if raw := deref(h.URL); raw != "" {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			p.URL = raw
			p.Domain = strings.TrimPrefix(u.Hostname(), "www.")
		}
	}
	if h.CreatedAt != nil {
		p.Time = time.Unix(*h.CreatedAt, 0).UTC()
	}
	return p, true
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
