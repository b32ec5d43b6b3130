// Package poll watches Hacker News threads and emails subscribers about new comments.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"hackers/pkg/hn"
)

const (
	maxCommentsPerEmail = 5 // Safety limit: max comments to include in a single email
	minInterval         = 5 * time.Minute
	maxInterval         = 4 * time.Hour
	doublingPeriod      = 3 * time.Hour
)

// Scraper fetches a thread with all of its comments.
type Scraper interface {
	Comments(ctx context.Context, id int) (*hn.Post, []*hn.Comment, error)
}

// Store interface for subscription persistence.
type Store interface {
	Save(ctx context.Context, sub *hn.Subscription) error
	List(ctx context.Context) ([]*hn.Subscription, error)
}

// Emailer interface for sending notifications.
type Emailer interface {
	SendNotification(ctx context.Context, sub *hn.Subscription, thread *hn.Thread, comments []*hn.Comment) error
}

// Monitor handles thread polling logic.
type Monitor struct {
	scraper Scraper
	store   Store
	emailer Emailer
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a new poll monitor.
func New(scraper Scraper, store Store, emailer Emailer, logger *slog.Logger) *Monitor {
	return &Monitor{
		scraper: scraper,
		store:   store,
		emailer: emailer,
		logger:  logger,
		now:     time.Now,
	}
}

type fetched struct {
	post     *hn.Post
	err      error
	comments []*hn.Comment
}

// CheckAll checks every watched thread that is due and emails new comments.
func (m *Monitor) CheckAll(ctx context.Context) error {
	subs, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	now := m.now()
	m.logger.Info("Checking subscriptions", "count", len(subs), "timestamp", now.Format(time.RFC3339))

	// One fetch per item per run, however many subscribers watch it
	cache := make(map[int]*fetched)
	var totalThreads, skippedThreads, failedThreads int

	for _, sub := range subs {
		for threadID, thread := range sub.Threads {
			if err := ctx.Err(); err != nil {
				m.logger.Info("Context cancelled, stopping poll check", "error", err)
				return err
			}
			totalThreads++

			if !thread.LastPolledAt.IsZero() {
				interval, reason := CalculateInterval(thread.LastCommentTime, thread.LastPolledAt)
				if next := thread.LastPolledAt.Add(interval); now.Before(next) {
					m.logger.Debug("Skipping thread (not due for polling)",
						"email", sub.Email,
						"thread_id", threadID,
						"next_poll", next.Format(time.RFC3339),
						"interval", interval.String(),
						"reason", reason)
					skippedThreads++
					continue
				}
			}

			if err := m.checkThread(ctx, sub, threadID, thread, cache, now); err != nil {
				failedThreads++
				m.logger.Warn("Thread check failed", "email", sub.Email, "thread_id", threadID, "error", err)
			}
		}
	}

	m.logger.Info("Subscription check completed",
		"total_threads", totalThreads,
		"checked", totalThreads-skippedThreads,
		"skipped", skippedThreads,
		"failed", failedThreads,
		"items_fetched", len(cache))

	return nil
}

func (m *Monitor) checkThread(ctx context.Context, sub *hn.Subscription, threadID string, thread *hn.Thread, cache map[int]*fetched, now time.Time) error {
	itemID := thread.ItemID
	if itemID == 0 {
		id, err := strconv.Atoi(threadID)
		if err != nil {
			return fmt.Errorf("invalid thread id %q", threadID)
		}
		itemID = id
		thread.ItemID = id
	}

	f, ok := cache[itemID]
	if !ok {
		post, comments, err := m.scraper.Comments(ctx, itemID)
		f = &fetched{post: post, comments: comments, err: err}
		cache[itemID] = f
	}
	if f.err != nil {
		return fmt.Errorf("fetch item %d: %w", itemID, f.err)
	}

	if thread.Title == "" && f.post != nil {
		thread.Title = f.post.Title
	}
	if thread.URL == "" {
		thread.URL = hn.ItemURL(itemID)
	}

	firstCheck := thread.LastPolledAt.IsZero() && thread.LastCommentID == 0
	thread.LastPolledAt = now

	fresh := newComments(itemID, f.comments, thread.LastCommentID)
	for _, c := range f.comments {
		if c.ID != itemID && c.Time.After(thread.LastCommentTime) {
			thread.LastCommentTime = c.Time
		}
	}

	if firstCheck {
		thread.LastCommentID = maxCommentID(itemID, f.comments)
		if err := m.store.Save(ctx, sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		m.logger.Info("Initial comment ID recorded",
			"email", sub.Email,
			"item_id", itemID,
			"comment_id", thread.LastCommentID,
			"title", thread.Title)
		return nil
	}

	if len(fresh) == 0 {
		// Still save to update LastPolledAt and LastCommentTime
		if err := m.store.Save(ctx, sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		return nil
	}

	latest := fresh[len(fresh)-1].ID
	if len(fresh) > maxCommentsPerEmail {
		m.logger.Warn("Too many new comments, limiting to most recent",
			"email", sub.Email,
			"item_id", itemID,
			"total_new", len(fresh),
			"sending", maxCommentsPerEmail)
		fresh = fresh[len(fresh)-maxCommentsPerEmail:]
	}

	m.logger.Info("New comments detected",
		"email", sub.Email,
		"item_id", itemID,
		"count", len(fresh),
		"latest_comment_id", latest,
		"previous", thread.LastCommentID)

	if err := m.emailer.SendNotification(ctx, sub, thread, fresh); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	thread.LastCommentID = latest
	if err := m.store.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// newComments returns comments with IDs above lastSeen in ascending ID order.
// Item IDs are allocated in sequence, so a higher ID is a later comment.
func newComments(itemID int, comments []*hn.Comment, lastSeen int) []*hn.Comment {
	var out []*hn.Comment
	for _, c := range comments {
		if c.ID != itemID && c.ID > lastSeen {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *hn.Comment) int { return a.ID - b.ID })
	return out
}

func maxCommentID(itemID int, comments []*hn.Comment) int {
	highest := 0
	for _, c := range comments {
		if c.ID != itemID && c.ID > highest {
			highest = c.ID
		}
	}
	return highest
}

// CalculateInterval determines how often to poll a thread based on activity.
// The interval starts at 5 minutes for a fresh comment and doubles for every
// 3 hours of silence, up to 4 hours.
func CalculateInterval(lastCommentTime, lastPolledAt time.Time) (time.Duration, string) {
	if lastPolledAt.IsZero() {
		return maxInterval, "never polled"
	}
	if lastCommentTime.IsZero() {
		return 30 * time.Minute, "no comments yet"
	}

	silence := lastPolledAt.Sub(lastCommentTime)
	if silence < 0 {
		silence = 0
	}

	factor := math.Pow(2, float64(silence)/float64(doublingPeriod))
	interval := time.Duration(float64(minInterval) * factor)
	switch {
	case interval >= maxInterval || interval <= 0:
		return maxInterval, fmt.Sprintf("inactive for %s, capped", silence.Round(time.Minute))
	case interval < minInterval:
		interval = minInterval
	}
	return interval.Round(time.Second), fmt.Sprintf("last comment %s before last poll", silence.Round(time.Minute))
}
