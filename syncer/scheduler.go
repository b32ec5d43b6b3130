// Package syncer keeps the local cache in step with the configured listings.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hackers/pkg/hn"
	"hackers/store"
)

// Scheduling errors.
var (
	ErrQueueFull    = errors.New("task queue is full")
	ErrFeedDisabled = errors.New("feed is disabled")
	ErrFeedBusy     = errors.New("feed is already syncing")
)

const queueSize = 300

// FeedStatus is a configured feed with its sync bookkeeping.
type FeedStatus struct {
	Config *FeedConfig      `json:"config"`
	State  *store.SyncState `json:"state"`
}

// Scheduler runs tasks on a pool of workers and enqueues feeds as they come due.
type Scheduler struct {
	ctx       context.Context
	deps      *Deps
	cancel    context.CancelFunc
	taskQueue chan TaskInterface
	inflight  map[string]bool
	configs   []*FeedConfig
	wg        sync.WaitGroup
	mu        sync.Mutex
	interval  time.Duration
	workers   int
}

// NewScheduler creates a scheduler. interval is how often due feeds are checked.
func NewScheduler(configs []*FeedConfig, deps *Deps, workers int, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		ctx:       ctx,
		cancel:    cancel,
		deps:      deps,
		configs:   configs,
		workers:   workers,
		interval:  interval,
		taskQueue: make(chan TaskInterface, queueSize),
		inflight:  make(map[string]bool),
	}
}

// Start launches the workers and the due-feed ticker.
func (s *Scheduler) Start() {
	for i := range s.workers {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueDue()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueDue()
			}
		}
	}()

	s.deps.Logger.Info("Scheduler started", "workers", s.workers, "feeds", len(s.configs), "interval", s.interval.String())
}

// Stop cancels running tasks and waits for the workers to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.deps.Logger.Info("Scheduler stopped")
}

// EnqueueTask queues a task without blocking.
func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	select {
	case s.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// TriggerFeed queues an immediate sync of the named feed.
func (s *Scheduler) TriggerFeed(name string) (string, error) {
	cfg := s.config(name)
	if cfg == nil {
		return "", hn.NotFound("feed " + name)
	}
	if cfg.Disabled {
		return "", fmt.Errorf("trigger %s: %w", name, ErrFeedDisabled)
	}
	task := NewSyncFeedTask(cfg, s.deps)
	if err := s.enqueueSync(task); err != nil {
		return "", err
	}
	s.deps.Logger.Info("Feed sync triggered", "feed", name, "task_id", task.GetID())
	return task.GetID(), nil
}

// Feeds returns every configured feed with its sync state.
func (s *Scheduler) Feeds(ctx context.Context) ([]FeedStatus, error) {
	out := make([]FeedStatus, 0, len(s.configs))
	for _, cfg := range s.configs {
		st, err := s.deps.Cache.SyncState(ctx, cfg.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, FeedStatus{Config: cfg, State: st})
	}
	return out, nil
}

func (s *Scheduler) config(name string) *FeedConfig {
	for _, cfg := range s.configs {
		if cfg.Name == name {
			return cfg
		}
	}
	return nil
}

// enqueueSync queues a feed sync unless one is already queued or running.
func (s *Scheduler) enqueueSync(task *SyncFeedTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[task.FeedName] {
		return fmt.Errorf("enqueue %s: %w", task.FeedName, ErrFeedBusy)
	}
	if err := s.EnqueueTask(task); err != nil {
		return err
	}
	s.inflight[task.FeedName] = true
	return nil
}

func (s *Scheduler) done(task TaskInterface) {
	if task.GetType() != TaskTypeSyncFeed {
		return
	}
	s.mu.Lock()
	delete(s.inflight, task.GetFeedName())
	s.mu.Unlock()
}

func (s *Scheduler) enqueueDue() {
	now := time.Now()
	for _, cfg := range s.configs {
		if cfg.Disabled {
			continue
		}
		st, err := s.deps.Cache.SyncState(s.ctx, cfg.Name)
		if err != nil {
			s.deps.Logger.Warn("Failed to load sync state, skipping", "feed", cfg.Name, "error", err)
			continue
		}
		if !st.NextSyncAt.IsZero() && st.NextSyncAt.After(now) {
			s.deps.Logger.Debug("Feed not due for refresh yet", "feed", cfg.Name, "next_sync_at", st.NextSyncAt)
			continue
		}
		if err := s.enqueueSync(NewSyncFeedTask(cfg, s.deps)); err != nil {
			s.deps.Logger.Debug("Feed sync not enqueued", "feed", cfg.Name, "reason", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.done(task)
		if c, ok := task.(chained); ok {
			for _, next := range c.FollowUps() {
				if err := s.EnqueueTask(next); err != nil {
					s.deps.Logger.Warn("Failed to enqueue follow-up task", "type", next.GetType(), "feed", next.GetFeedName(), "error", err)
				}
			}
		}
		return
	}

	s.deps.Logger.Error("Worker task execution failed",
		"worker_id", workerID,
		"type", task.GetType(),
		"id", task.GetID(),
		"retry_count", task.GetRetryCount(),
		"error", err)

	if !task.CanRetry() || s.ctx.Err() != nil {
		s.done(task)
		s.deps.Logger.Error("Task failed after maximum retries",
			"type", task.GetType(),
			"id", task.GetID(),
			"retry_count", task.GetRetryCount(),
			"max_retries", task.GetMaxRetries(),
			"last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())
	s.deps.Logger.Warn("Task retry scheduled",
		"type", task.GetType(),
		"feed", task.GetFeedName(),
		"retry_count", task.GetRetryCount(),
		"max_retries", task.GetMaxRetries(),
		"delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
			s.done(task)
		case <-time.After(delay):
			if err := s.EnqueueTask(task); err != nil {
				s.done(task)
				s.deps.Logger.Error("Failed to re-enqueue task for retry", "type", task.GetType(), "id", task.GetID(), "error", fmt.Errorf("requeue: %w", err))
			}
		}
	}()
}
