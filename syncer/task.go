package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskType names a kind of background work.
type TaskType string

// Task types.
const (
	TaskTypeSyncFeed        TaskType = "sync_feed"
	TaskTypeSyncComments    TaskType = "sync_comments"
	TaskTypeExtractArticles TaskType = "extract_articles"
)

// DefaultMaxRetries bounds how often a failed task is re-queued.
const DefaultMaxRetries = 3

// TaskInterface is a unit of work run by the scheduler's workers.
type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetFeedName() string
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	Start()
	GetDuration() time.Duration
}

// chained is implemented by tasks that schedule more work after succeeding.
type chained interface {
	FollowUps() []TaskInterface
}

// Task carries the bookkeeping shared by all task types.
type Task struct {
	StartedAt  *time.Time
	ID         string
	Type       TaskType
	FeedName   string
	RetryCount int
	MaxRetries int
}

func (t *Task) GetID() string       { return t.ID }
func (t *Task) GetType() TaskType   { return t.Type }
func (t *Task) GetFeedName() string { return t.FeedName }
func (t *Task) GetRetryCount() int  { return t.RetryCount }
func (t *Task) GetMaxRetries() int  { return t.MaxRetries }

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

// NewTask returns bookkeeping for a fresh task.
func NewTask(taskType TaskType, feedName string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		FeedName:   feedName,
		MaxRetries: DefaultMaxRetries,
	}
}

// retryDelay is the backoff before the n-th retry: 1s doubling, capped at 30s.
func retryDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 6 {
		return 30 * time.Second
	}
	return min(time.Duration(1<<uint(n-1))*time.Second, 30*time.Second)
}
