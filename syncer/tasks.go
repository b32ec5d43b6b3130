package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hackers/pkg/hn"
	"hackers/store"
)

// PostScraper fetches listings and threads from the site.
type PostScraper interface {
	Posts(ctx context.Context, postType hn.PostType, page, nextID int) ([]*hn.Post, error)
	Post(ctx context.Context, id int, allPages bool) (*hn.Post, []*hn.Comment, error)
}

// RSSSource fetches listings from a syndication feed.
type RSSSource interface {
	Fetch(ctx context.Context, feedURL string, postType hn.PostType) ([]*hn.Post, error)
}

// Cache is the local persistence the tasks write to.
type Cache interface {
	SaveListing(ctx context.Context, postType hn.PostType, posts []*hn.Post) error
	ListPosts(ctx context.Context, postType hn.PostType, offset, limit int) ([]*hn.Post, error)
	UpsertPost(ctx context.Context, p *hn.Post) error
	ReplaceComments(ctx context.Context, postID int, comments []*hn.Comment) error
	SyncState(ctx context.Context, feed string) (*store.SyncState, error)
	SetSyncState(ctx context.Context, feed string, st *store.SyncState) error
}

// ArticleFetcher extracts and caches readable articles.
type ArticleFetcher interface {
	ForPost(ctx context.Context, postID int) (*hn.Article, error)
}

// Deps are the collaborators shared by every task.
type Deps struct {
	Scraper  PostScraper
	RSS      RSSSource
	Cache    Cache
	Articles ArticleFetcher // Optional
	Logger   *slog.Logger
}

// SyncFeedTask refreshes one listing.
type SyncFeedTask struct {
	Task
	deps   *Deps
	Config *FeedConfig
	synced int
}

// NewSyncFeedTask creates a listing refresh.
func NewSyncFeedTask(cfg *FeedConfig, deps *Deps) *SyncFeedTask {
	return &SyncFeedTask{Task: NewTask(TaskTypeSyncFeed, cfg.Name), Config: cfg, deps: deps}
}

// Execute fetches the configured pages, filters them and saves the listing.
func (t *SyncFeedTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	posts, err := t.fetch(ctx)
	if err == nil {
		posts = t.Config.Filter.Apply(posts)
		err = t.deps.Cache.SaveListing(ctx, t.Config.Type, posts)
	}

	now := time.Now().UTC()
	st := &store.SyncState{LastSyncAt: now, NextSyncAt: now.Add(t.Config.Interval()), PostCount: len(posts)}
	if err != nil {
		st.LastError = err.Error()
		st.PostCount = 0
		if prev, prevErr := t.deps.Cache.SyncState(ctx, t.FeedName); prevErr == nil {
			st.LastSyncAt = prev.LastSyncAt
			st.PostCount = prev.PostCount
		}
	}
	if stateErr := t.deps.Cache.SetSyncState(ctx, t.FeedName, st); stateErr != nil {
		t.deps.Logger.Warn("Failed to record sync state", "feed", t.FeedName, "error", stateErr)
	}
	if err != nil {
		return fmt.Errorf("sync feed %s: %w", t.FeedName, err)
	}

	t.synced = len(posts)
	t.deps.Logger.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"posts", len(posts))
	return nil
}

func (t *SyncFeedTask) fetch(ctx context.Context) ([]*hn.Post, error) {
	if t.Config.Source == SourceRSS {
		if t.deps.RSS == nil {
			return nil, errors.New("rss source is not configured")
		}
		return t.deps.RSS.Fetch(ctx, t.Config.RSSURL, t.Config.Type)
	}

	var (
		all    []*hn.Post
		nextID int
	)
	for page := 1; page <= t.Config.Pages; page++ {
		posts, err := t.deps.Scraper.Posts(ctx, t.Config.Type, page, nextID)
		if err != nil {
			if page > 1 && len(all) > 0 {
				t.deps.Logger.Warn("Failed to fetch listing page, keeping earlier pages",
					"feed", t.FeedName, "page", page, "error", err)
				break
			}
			return nil, err
		}
		if len(posts) == 0 {
			break
		}
		all = append(all, posts...)
		// newest and jobs continue after the last item shown
		nextID = posts[len(posts)-1].ID
	}

	for i, p := range all {
		if p.Rank == 0 {
			p.Rank = i + 1
		}
	}
	return all, nil
}

// FollowUps schedules comment and article refreshes after a successful sync.
func (t *SyncFeedTask) FollowUps() []TaskInterface {
	if t.synced == 0 {
		return nil
	}
	var next []TaskInterface
	if t.Config.FetchComments {
		next = append(next, NewSyncCommentsTask(t.Config, t.deps))
	}
	if t.Config.ExtractArticles && t.deps.Articles != nil {
		next = append(next, NewExtractArticlesTask(t.Config, t.deps))
	}
	return next
}

// SyncCommentsTask refreshes the comment trees of a listing's top posts.
type SyncCommentsTask struct {
	Task
	deps   *Deps
	Config *FeedConfig
}

// NewSyncCommentsTask creates a comment refresh.
func NewSyncCommentsTask(cfg *FeedConfig, deps *Deps) *SyncCommentsTask {
	return &SyncCommentsTask{Task: NewTask(TaskTypeSyncComments, cfg.Name), Config: cfg, deps: deps}
}

// Execute fetches every comment page of the top posts. Individual failures are logged;
// the task fails only when no thread could be refreshed.
func (t *SyncCommentsTask) Execute(ctx context.Context) error {
	posts, err := t.deps.Cache.ListPosts(ctx, t.Config.Type, 0, t.Config.MaxCommentsPosts)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	var success, failed int
	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.CommentCount == 0 && p.Text == "" {
			continue
		}
		if err := t.refresh(ctx, p.ID); err != nil {
			failed++
			t.deps.Logger.Error("Failed to refresh comments", "feed", t.FeedName, "post_id", p.ID, "error", err)
			continue
		}
		success++
	}

	t.deps.Logger.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"success", success,
		"errors", failed)

	if success == 0 && failed > 0 {
		return fmt.Errorf("all %d comment refreshes failed", failed)
	}
	return nil
}

func (t *SyncCommentsTask) refresh(ctx context.Context, id int) error {
	post, comments, err := t.deps.Scraper.Post(ctx, id, true)
	if err != nil {
		return err
	}
	if err := t.deps.Cache.UpsertPost(ctx, post); err != nil {
		return err
	}
	return t.deps.Cache.ReplaceComments(ctx, id, comments)
}

// ExtractArticlesTask pre-fetches readable articles for a listing's top posts.
type ExtractArticlesTask struct {
	Task
	deps   *Deps
	Config *FeedConfig
}

// NewExtractArticlesTask creates an article prefetch.
func NewExtractArticlesTask(cfg *FeedConfig, deps *Deps) *ExtractArticlesTask {
	return &ExtractArticlesTask{Task: NewTask(TaskTypeExtractArticles, cfg.Name), Config: cfg, deps: deps}
}

// Execute extracts articles one by one. Failures are logged and never retried.
func (t *ExtractArticlesTask) Execute(ctx context.Context) error {
	posts, err := t.deps.Cache.ListPosts(ctx, t.Config.Type, 0, t.Config.MaxCommentsPosts)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	var success, failed int
	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.HasExternalURL() {
			continue
		}
		extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := t.deps.Articles.ForPost(extractCtx, p.ID)
		cancel()
		if err != nil {
			failed++
			t.deps.Logger.Warn("Failed to extract article", "post_id", p.ID, "url", p.URL, "error", err)
			continue
		}
		success++
	}

	t.deps.Logger.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"success", success,
		"errors", failed)
	return nil
}
