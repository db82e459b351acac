package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/repository"
)

// Worker drains the jobs table. Submissions enqueue their notification
// emails here so the public API answers before SMTP does.
type Worker struct {
	store    repository.Store
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New validates config and returns an idle worker. Register handlers, then
// call Start.
func New(store repository.Store, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	return &Worker{
		store:    store,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger.With("component", "worker"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Register routes jobs of h.Type() to h. A later registration for the same
// type replaces the earlier one.
func (w *Worker) Register(h JobHandler) {
	if _, exists := w.handlers[h.Type()]; exists {
		w.logger.Warn("Replacing job handler", "job_type", h.Type())
	}
	w.handlers[h.Type()] = h
}

// Start requeues jobs abandoned by a previous process and launches the
// polling goroutines.
func (w *Worker) Start(ctx context.Context) {
	if err := w.recoverStaleJobs(ctx); err != nil {
		w.logger.Error("Failed to recover stale jobs", "error", err)
	}

	for i := 1; i <= w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.poll(ctx, w.logger.With("worker_id", i))
	}
	w.logger.Info("Worker started", "concurrency", w.config.Concurrency, "handlers", len(w.handlers))
}

// Stop signals the pollers and waits up to ShutdownTimeout for them.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timed out with jobs still running")
	}
}

func (w *Worker) recoverStaleJobs(ctx context.Context) error {
	count, err := w.store.RecoverStaleJobs(ctx, w.config.StaleJobThreshold.Seconds())
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}
	if count > 0 {
		w.logger.Warn("Requeued stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}
	return nil
}

func (w *Worker) poll(ctx context.Context, logger *slog.Logger) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Keep claiming while jobs succeed; any error waits for the next tick.
			for !w.stopping() {
				err := w.processNextJob(ctx, logger)
				if err == nil {
					continue
				}
				if !errors.Is(err, sql.ErrNoRows) {
					logger.Error("Job processing failed", "error", err)
				}
				break
			}
		}
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// processNextJob claims and runs one due job. It returns sql.ErrNoRows when
// the queue is empty.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	// The claim and the status flip share a transaction so two pollers never
	// run the same row.
	var job repository.Job
	err := w.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		if job, err = q.DequeueJob(ctx); err != nil {
			return err
		}
		return q.UpdateJobStarted(ctx, job.ID)
	})
	if err != nil {
		return err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts+1)
	finish := metrics.TrackJob(job.JobType)

	if err := w.execute(ctx, job); err != nil {
		finish(w.recordFailure(ctx, job, err, logger))
		return fmt.Errorf("job %s: %w", job.ID, err)
	}

	finish(metrics.JobOutcomeCompleted)
	if err := w.store.UpdateJobCompleted(ctx, job.ID); err != nil {
		return fmt.Errorf("mark job %s completed: %w", job.ID, err)
	}
	logger.Info("Job completed")
	return nil
}

func (w *Worker) execute(ctx context.Context, job repository.Job) error {
	h, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler for job type %q", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()
	return h.Handle(jobCtx, job.Payload)
}

// recordFailure stores the error on the row. Permanent errors and the last
// allowed attempt end as 'failed'; anything else is rescheduled with backoff
// by the query. It returns the outcome for metrics.
func (w *Worker) recordFailure(ctx context.Context, job repository.Job, jobErr error, logger *slog.Logger) string {
	permanent := IsPermanent(jobErr)
	outcome := metrics.JobOutcomeRetried
	if permanent || job.Attempts+1 >= job.MaxAttempts {
		outcome = metrics.JobOutcomeFailed
	}

	if outcome == metrics.JobOutcomeFailed {
		logger.Error("Job failed", "error", jobErr, "permanent", permanent)
	} else {
		logger.Warn("Job will be retried", "error", jobErr)
	}

	err := w.store.UpdateJobFailed(ctx, repository.UpdateJobFailedParams{
		ID:           job.ID,
		ErrorMessage: sql.NullString{String: jobErr.Error(), Valid: true},
		Permanent:    permanent,
	})
	if err != nil {
		logger.Error("Failed to record job failure", "error", err)
	}
	return outcome
}
