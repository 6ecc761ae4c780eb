package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/rss-reader/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskQueueSize = 300
	taskTimeout   = 5 * time.Minute
)

type Options struct {
	WorkerCount int
	// Interval between scheduled refreshes; zero disables them.
	Interval       time.Duration
	ExtractContent bool
	FetchTimeout   time.Duration
}

type Scheduler struct {
	store            FeedStore
	pages            PageFetcher
	contentExtractor *feed.ContentExtractor
	opts             Options
	attempts         *ExtractionAttempts
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	taskQueue        chan TaskInterface
	retryDelay       func(retryCount int) time.Duration
}

func NewScheduler(store FeedStore, pages PageFetcher, contentExtractor *feed.ContentExtractor, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}

	return &Scheduler{
		store:            store,
		pages:            pages,
		contentExtractor: contentExtractor,
		opts:             opts,
		attempts:         NewExtractionAttempts(),
		ctx:              ctx,
		cancel:           cancel,
		taskQueue:        make(chan TaskInterface, taskQueueSize),
		retryDelay:       retryDelay,
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.opts.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.opts.Interval <= 0 {
		slog.Info("Scheduled refresh disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

// Stop cancels running tasks and waits for the workers to exit. Queued
// tasks are dropped.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueRefreshAll queues a refresh of every active feed and returns how
// many were queued.
func (s *Scheduler) EnqueueRefreshAll() int {
	queued := 0
	for _, f := range s.store.Feeds() {
		if !f.IsActive {
			continue
		}
		if err := s.EnqueueTask(NewRefreshFeedTask(f.ID, s.store)); err != nil {
			slog.Warn("Failed to enqueue RefreshFeedTask", "feed", f.ID, "error", err)
			continue
		}
		queued++
	}
	return queued
}

// EnqueueExtractContent queues full-text extraction for one feed's items.
// It does nothing unless extraction is enabled.
func (s *Scheduler) EnqueueExtractContent(feedID string) error {
	if !s.opts.ExtractContent {
		return nil
	}
	return s.EnqueueTask(NewExtractContentTask(feedID, s.store, s.pages, s.contentExtractor, s.attempts, s.opts.FetchTimeout))
}

func (s *Scheduler) enqueueTasks() {
	queued := s.EnqueueRefreshAll()
	slog.Debug("Scheduled feed refresh", "feeds", queued)

	if err := s.EnqueueExtractContent(""); err != nil {
		slog.Warn("Failed to enqueue ExtractContentTask", "error", err)
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

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := s.retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed", task.GetFeedID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
