package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
	"github.com/custodia-labs/persona-core/internal/core/ports/driving"
)

// Worker processes background tasks from the task queue: queued ingestion,
// deletions, corpus reindexing and embedding retries.
type Worker struct {
	taskQueue     driven.TaskQueue
	ingestService driving.IngestService
	adminService  driving.AdminService
	logger        *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config holds configuration for the worker.
type Config struct {
	TaskQueue      driven.TaskQueue
	IngestService  driving.IngestService
	AdminService   driving.AdminService
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		ingestService:  cfg.IngestService,
		adminService:   cfg.AdminService,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	// Wait for workers to finish
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask processes a single task.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type)
	logger.Info("processing task")

	startTime := time.Now()
	var err error

	switch task.Type {
	case domain.TaskTypeIngestRecord:
		err = w.handleIngestRecord(ctx, task)
	case domain.TaskTypeIngestDelete:
		err = w.handleIngestDelete(ctx, task)
	case domain.TaskTypeReindex:
		err = w.handleReindex(ctx, task)
	case domain.TaskTypeRetryEmbeddings:
		err = w.handleRetryEmbeddings(ctx, task)
	default:
		err = fmt.Errorf("unknown task type: %s", task.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		logger.Error("task failed",
			"duration", duration,
			"error", err,
		)

		// Nack the task so it can be retried
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)

	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// handleIngestRecord ingests one raw record carried in the task payload.
func (w *Worker) handleIngestRecord(ctx context.Context, task *domain.Task) error {
	raw, ok := task.Payload["record"]
	if !ok || raw == "" {
		return fmt.Errorf("record not found in task payload")
	}

	var record domain.RawRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return fmt.Errorf("failed to decode record payload: %w", err)
	}

	if _, err := w.ingestService.Ingest(ctx, &record); err != nil {
		// A record that cannot be normalized will never succeed; dropping it
		// here keeps the queue from retrying it to exhaustion.
		if errors.Is(err, domain.ErrNormalization) {
			w.logger.Warn("dropping record that failed normalization",
				"source_kind", record.SourceKind,
				"external_id", record.ExternalID,
				"error", err,
			)
			return nil
		}
		return err
	}
	return nil
}

// handleIngestDelete removes the document named by the task payload.
func (w *Worker) handleIngestDelete(ctx context.Context, task *domain.Task) error {
	kind := task.Payload["source_kind"]
	externalID := task.Payload["external_id"]
	if kind == "" || externalID == "" {
		return fmt.Errorf("source_kind or external_id not found in task payload")
	}

	return w.ingestService.IngestDelete(ctx, &domain.Deletion{
		SourceKind: domain.SourceKind(kind),
		ExternalID: externalID,
	})
}

// handleReindex runs a corpus reindex under the task's target model version.
func (w *Worker) handleReindex(ctx context.Context, task *domain.Task) error {
	err := w.adminService.Reindex(ctx, task.ModelVersion())
	if errors.Is(err, domain.ErrReindexInProgress) {
		// Another worker already holds the reindex lock; the run this task
		// asked for is happening, so the task is done.
		return nil
	}
	return err
}

// handleRetryEmbeddings retries embedding for unindexed passages.
func (w *Worker) handleRetryEmbeddings(ctx context.Context, task *domain.Task) error {
	recovered, err := w.ingestService.RetryUnindexed(ctx, 0)
	if err != nil {
		return err
	}
	w.logger.Info("embedding retry pass finished", "recovered", recovered)
	return nil
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
