// Package feed reads Hacker News RSS feeds and filters posts.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"hackers/pkg/hn"

	"github.com/codeGROOVE-dev/retry"
	"github.com/mmcdole/gofeed"
)

// DefaultURL is the front page feed served by Hacker News itself.
const DefaultURL = hn.BaseURL + "/rss"

var (
	itemIDRegex   = regexp.MustCompile(`item\?id=(\d+)`)
	pointsRegex   = regexp.MustCompile(`Points:\s*(\d+)`)
	commentsRegex = regexp.MustCompile(`# Comments:\s*(\d+)`)
)

// Source fetches RSS feeds such as news.ycombinator.com/rss or hnrss.org.
type Source struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// New creates a feed source using client for HTTP.
func New(client *http.Client, userAgent string, logger *slog.Logger) *Source {
	parser := gofeed.NewParser()
	parser.Client = client
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &Source{parser: parser, logger: logger}
}

// Fetch reads a feed and converts its items to posts ranked by feed order.
// Items without a recognisable Hacker News item ID are skipped.
func (s *Source) Fetch(ctx context.Context, feedURL string, postType hn.PostType) ([]*hn.Post, error) {
	var parsed *gofeed.Feed

	err := retry.Do(
		func() error {
			startTime := time.Now()
			f, err := s.parser.ParseURLWithContext(feedURL, ctx)
			duration := time.Since(startTime)
			if err != nil {
				s.logger.Warn("Feed fetch failed",
					"url", feedURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			s.logger.Info("Feed fetched",
				"url", feedURL,
				"duration_ms", duration.Milliseconds(),
				"items", len(f.Items))
			parsed = f
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying feed fetch after error", "attempt", n, "url", feedURL, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			// Client errors will not fix themselves
			var httpErr gofeed.HTTPError
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
			}
			return true
		}),
	)
	if err != nil {
		return nil, hn.Errorf(hn.KindRequestFailure, "fetch feed", "%s: %w", feedURL, err)
	}

	posts := make([]*hn.Post, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		post := itemToPost(item, postType)
		if post == nil {
			s.logger.Debug("Skipping feed item without item ID", "title", item.Title, "link", item.Link)
			continue
		}
		post.Rank = len(posts) + 1
		posts = append(posts, post)
	}
	return posts, nil
}

func itemToPost(item *gofeed.Item, postType hn.PostType) *hn.Post {
	id := itemID(item.GUID, item.Description, item.Content, item.Link)
	if id == 0 {
		return nil
	}

	post := &hn.Post{
		ID:    id,
		Title: strings.TrimSpace(item.Title),
		URL:   item.Link,
		Type:  postType,
	}
	if post.URL == "" {
		post.URL = hn.ItemURL(id)
	}
	if u, err := url.Parse(post.URL); err == nil && post.HasExternalURL() {
		post.Domain = strings.TrimPrefix(u.Hostname(), "www.")
	}
	if item.PublishedParsed != nil {
		post.Time = item.PublishedParsed.UTC()
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		post.By = item.Authors[0].Name
	} else if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		post.By = item.DublinCoreExt.Creator[0]
	}
	post.Score = firstInt(pointsRegex, item.Description)
	post.CommentCount = firstInt(commentsRegex, item.Description)
	return post
}

// itemID returns the first Hacker News item ID referenced by any of the fields.
func itemID(fields ...string) int {
	for _, f := range fields {
		if n := firstInt(itemIDRegex, f); n > 0 {
			return n
		}
	}
	return 0
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
