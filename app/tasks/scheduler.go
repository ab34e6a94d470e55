package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lysyi3m/event-feed/app/database"
	"github.com/lysyi3m/event-feed/app/fetch"
	"github.com/lysyi3m/event-feed/app/ingest"
	"github.com/lysyi3m/event-feed/app/metrics"
	"github.com/lysyi3m/event-feed/app/source"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultQueueSize   = 300
	DefaultTaskTimeout = 5 * time.Minute

	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

type Options struct {
	UserAgent   string
	Interval    time.Duration
	WorkerCount int
}

type Scheduler struct {
	sourceRepo  database.SourceRepository
	itemRepo    database.ItemRepository
	configCache *source.ConfigCache
	httpClient  *http.Client
	parser      *ingest.Parser
	userAgent   string
	interval    time.Duration
	workerCount int
	retryBase   time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(configCache *source.ConfigCache, sourceRepo database.SourceRepository,
	itemRepo database.ItemRepository, httpClient *http.Client, parser *ingest.Parser, options Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if options.WorkerCount < 1 {
		options.WorkerCount = 1
	}
	if options.Interval <= 0 {
		options.Interval = 30 * time.Second
	}

	return &Scheduler{
		sourceRepo:  sourceRepo,
		itemRepo:    itemRepo,
		configCache: configCache,
		httpClient:  httpClient,
		parser:      parser,
		userAgent:   options.UserAgent,
		interval:    options.Interval,
		workerCount: options.WorkerCount,
		retryBase:   retryBaseDelay,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, DefaultQueueSize),
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

		s.enqueueStartupTasks()

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

// EnqueueSource schedules a sync and, for enabled sources, an immediate import.
func (s *Scheduler) EnqueueSource(config *source.Config) error {
	if err := s.EnqueueTask(NewSyncSourceTask(config, s.sourceRepo)); err != nil {
		return fmt.Errorf("failed to enqueue sync task: %w", err)
	}

	if !config.Settings.Enabled {
		slog.Debug("Source disabled, skipping ImportSourceTask", "source", config.Name)
		return nil
	}

	if err := s.EnqueueTask(s.newImportTask(config)); err != nil {
		return fmt.Errorf("failed to enqueue import task: %w", err)
	}
	return nil
}

func (s *Scheduler) newImportTask(config *source.Config) *ImportSourceTask {
	return NewImportSourceTask(config, s.httpClient, s.parser, s.sourceRepo, s.itemRepo, s.userAgent)
}

func (s *Scheduler) enqueueStartupTasks() {
	sourceConfigs := s.configCache.GetConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No source configurations found")
		return
	}

	slog.Debug("Processing source configurations", "count", len(sourceConfigs))

	for _, sourceConfig := range sourceConfigs {
		if err := s.EnqueueSource(sourceConfig); err != nil {
			slog.Warn("Failed to enqueue source tasks", "source", sourceConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	sourceConfigs := s.configCache.GetEnabledConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No enabled source configurations found")
		return
	}

	now := time.Now().UTC()

	for _, sourceConfig := range sourceConfigs {
		src, err := s.sourceRepo.GetSource(s.ctx, sourceConfig.Name)
		if err != nil {
			slog.Warn("Failed to get source from database, skipping", "source", sourceConfig.Name, "error", err)
			continue
		}
		if src == nil {
			slog.Warn("Source not found in database, skipping", "source", sourceConfig.Name)
			continue
		}

		if src.NextFetchAt != nil && src.NextFetchAt.After(now) {
			slog.Debug("Source not due for refresh yet", "source", sourceConfig.Name, "next_fetch_at", src.NextFetchAt)
			continue
		}

		if err := s.EnqueueTask(s.newImportTask(sourceConfig)); err != nil {
			slog.Warn("Failed to enqueue ImportSourceTask", "source", sourceConfig.Name, "error", err)
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

	taskCtx, cancel := context.WithTimeout(s.ctx, DefaultTaskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		metrics.TasksExecuted.WithLabelValues(string(task.GetType()), "success").Inc()
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		metrics.TasksExecuted.WithLabelValues(string(task.GetType()), "failure").Inc()
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	metrics.TasksExecuted.WithLabelValues(string(task.GetType()), "retry").Inc()
	task.IncrementRetryCount()
	retryDelay := RetryDelay(s.retryBase, task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		select {
		case <-time.After(retryDelay):
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		}
		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
		}
	}()
}

// RetryDelay is the wait before the given one-based retry, capped at 30s.
func RetryDelay(base time.Duration, retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := fetch.Delay(base, retry-1)
	if delay > retryMaxDelay || delay <= 0 {
		return retryMaxDelay
	}
	return delay
}
