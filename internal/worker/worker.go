package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bobarin/shortform/internal/engine"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/models"
	"github.com/bobarin/shortform/internal/queue"
)

// JobStore is the slice of the Redis queue the worker consumes.
type JobStore interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	SetState(ctx context.Context, jobID string, state models.JobState, errMsg string) error
	StoreResult(ctx context.Context, jobID string, video []byte) error
}

// Worker renders jobs pulled from the render queue.
type Worker struct {
	jobs        JobStore
	compositor  engine.Compositor
	pollTimeout time.Duration
	logger      *slog.Logger
}

func New(jobs JobStore, compositor engine.Compositor) *Worker {
	return &Worker{
		jobs:        jobs,
		compositor:  compositor,
		pollTimeout: 5 * time.Second,
		logger:      logging.Component("worker"),
	}
}

// Start begins processing jobs and blocks until ctx is cancelled and every
// in-flight job has recorded its terminal state.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.logger.Info("worker started", "concurrency", concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processQueue(ctx)
		}()
	}

	<-ctx.Done()
	w.logger.Info("worker shutting down")
	wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.jobs.Dequeue(ctx, w.pollTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("error dequeuing render job", "error", err)
				time.Sleep(time.Second)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			w.handleRender(ctx, job)
		}
	}
}

// handleRender renders one job and records its terminal state.
func (w *Worker) handleRender(ctx context.Context, job *queue.Job) {
	jobCtx := logging.WithCorrelationID(ctx, job.CorrelationID)
	logger := logging.FromContext(jobCtx).With("job_id", job.ID)

	if err := w.jobs.SetState(jobCtx, job.ID, models.JobStateRendering, ""); err != nil {
		logger.Warn("failed to mark job rendering", "error", err)
	}

	start := time.Now()
	video, err := w.compositor.Compose(jobCtx, job.Plan)

	// Terminal state is written even when shutdown cancelled the render.
	storeCtx := context.WithoutCancel(jobCtx)
	if err != nil {
		logger.Error("render job failed", "error", err)
		if err := w.jobs.SetState(storeCtx, job.ID, models.JobStateFailed, err.Error()); err != nil {
			logger.Error("failed to mark job failed", "error", err)
		}
		return
	}

	if err := w.jobs.StoreResult(storeCtx, job.ID, video); err != nil {
		logger.Error("failed to store render result", "error", err)
		if err := w.jobs.SetState(storeCtx, job.ID, models.JobStateFailed, "result could not be stored"); err != nil {
			logger.Error("failed to mark job failed", "error", err)
		}
		return
	}

	logger.Info("render job completed", "bytes", len(video), "elapsed_ms", time.Since(start).Milliseconds())
}
