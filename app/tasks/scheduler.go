package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"peerpress/app/cfg"
	"peerpress/app/database"
	"peerpress/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	friendRepo  database.FriendRepository
	subRepo     database.SubscriptionRepository
	postRepo    database.PostRepository
	tokenRepo   database.TokenRepository
	registry    *feed.Registry
	reconciler  *feed.Reconciler
	extractor   *feed.ContentExtractor
	httpClient  *http.Client
	userAgent   string
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(friendRepo database.FriendRepository, subRepo database.SubscriptionRepository,
	postRepo database.PostRepository, tokenRepo database.TokenRepository,
	registry *feed.Registry, reconciler *feed.Reconciler, extractor *feed.ContentExtractor,
	httpClient *http.Client) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	c := cfg.Get()

	return &Scheduler{
		friendRepo:  friendRepo,
		subRepo:     subRepo,
		postRepo:    postRepo,
		tokenRepo:   tokenRepo,
		registry:    registry,
		reconciler:  reconciler,
		extractor:   extractor,
		httpClient:  httpClient,
		userAgent:   c.UserAgent,
		interval:    time.Duration(c.SchedulerInterval) * time.Second,
		workerCount: c.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
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

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// RefreshFriend schedules an immediate fetch of all feeds of a friend.
func (s *Scheduler) RefreshFriend(friendID string) {
	task := NewRefreshFriendTask(friendID, s.friendRepo, s.subRepo, s.registry, s.reconciler)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue RefreshFriendTask", "friend", friendID, "error", err)
	}
}

// enqueueTasks schedules one pass over the active subscriptions of all
// feed-bearing friends, plus housekeeping.
func (s *Scheduler) enqueueTasks() {
	if err := s.tokenRepo.DeleteExpiredTokens(); err != nil {
		slog.Warn("Failed to delete expired tokens", "error", err)
	}

	subscriptions, err := s.subRepo.GetActiveSubscriptions(database.FeedBearingRoles...)
	if err != nil {
		slog.Error("Failed to load active subscriptions", "error", err)
		return
	}
	if len(subscriptions) == 0 {
		slog.Debug("No active subscriptions found")
		return
	}

	slog.Debug("Scheduling subscription processing", "count", len(subscriptions))

	extractionScheduled := make(map[string]bool)
	for _, subscription := range subscriptions {
		task := NewProcessSubscriptionTask(subscription, s.friendRepo, s.subRepo, s.registry, s.reconciler)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue ProcessSubscriptionTask", "url", subscription.URL, "error", err)
		}

		if !extractionScheduled[subscription.FriendID] {
			extractionScheduled[subscription.FriendID] = true
			extractTask := NewExtractContentTask(subscription.FriendID, s.httpClient, s.extractor, s.postRepo, s.userAgent)
			if err := s.EnqueueTask(extractTask); err != nil {
				slog.Warn("Failed to enqueue ExtractContentTask", "friend", subscription.FriendID, "error", err)
			}
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
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

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
		return
	}

	slog.Debug("Task completed", "worker_id", workerID, "type", string(task.GetType()), "subject", task.GetSubject(), "duration", task.GetDuration().String())
}
