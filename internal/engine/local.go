package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/models"
)

// finishedRetention is how long an unfetched finished job stays in the table.
const finishedRetention = 10 * time.Minute

type localJob struct {
	state      models.JobState
	result     []byte
	err        error
	finishedAt time.Time
}

// LocalEngine renders jobs in-process, at most maxConcurrent at a time.
type LocalEngine struct {
	compositor Compositor
	sem        chan struct{}
	logger     *slog.Logger
	now        func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*localJob
}

func NewLocalEngine(compositor Compositor, maxConcurrent int) *LocalEngine {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalEngine{
		compositor: compositor,
		sem:        make(chan struct{}, maxConcurrent),
		logger:     logging.Component("local-engine"),
		now:        time.Now,
		baseCtx:    ctx,
		cancel:     cancel,
		jobs:       make(map[string]*localJob),
	}
}

// Submit registers a queued job and starts rendering it in the background. The
// job outlives ctx; only Close stops it.
func (e *LocalEngine) Submit(ctx context.Context, plan *models.RenderPlan) (string, error) {
	if plan == nil {
		return "", fmt.Errorf("nil render plan")
	}
	if err := e.baseCtx.Err(); err != nil {
		return "", fmt.Errorf("engine closed: %w", err)
	}

	jobID := uuid.NewString()

	e.mu.Lock()
	e.pruneLocked()
	e.jobs[jobID] = &localJob{state: models.JobStateQueued}
	e.mu.Unlock()

	jobCtx := logging.WithCorrelationID(e.baseCtx, logging.CorrelationID(ctx))

	e.wg.Add(1)
	go e.run(jobCtx, jobID, plan)

	return jobID, nil
}

func (e *LocalEngine) run(ctx context.Context, jobID string, plan *models.RenderPlan) {
	defer e.wg.Done()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		e.finish(jobID, nil, ctx.Err())
		return
	}
	defer func() { <-e.sem }()

	e.setState(jobID, models.JobStateRendering)
	e.logger.Debug("render job started", "job_id", jobID, "correlation_id", logging.CorrelationID(ctx))

	video, err := e.compositor.Compose(ctx, plan)
	e.finish(jobID, video, err)
}

func (e *LocalEngine) setState(jobID string, state models.JobState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if job, ok := e.jobs[jobID]; ok {
		job.state = state
	}
}

func (e *LocalEngine) finish(jobID string, video []byte, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return
	}
	job.finishedAt = e.now()
	if err != nil {
		job.state = models.JobStateFailed
		job.err = err
		e.logger.Warn("render job failed", "job_id", jobID, "error", err)
		return
	}
	job.state = models.JobStateReady
	job.result = video
	e.logger.Debug("render job ready", "job_id", jobID, "bytes", len(video))
}

// pruneLocked drops finished jobs nobody collected within the retention window.
func (e *LocalEngine) pruneLocked() {
	cutoff := e.now().Add(-finishedRetention)
	for id, job := range e.jobs {
		if job.state.Terminal() && job.finishedAt.Before(cutoff) {
			delete(e.jobs, id)
		}
	}
}

func (e *LocalEngine) Status(ctx context.Context, jobID string) (models.JobState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return job.state, nil
}

// FetchResult returns a ready job's bytes and forgets the job.
func (e *LocalEngine) FetchResult(ctx context.Context, jobID string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if job.state != models.JobStateReady {
		return nil, fmt.Errorf("render job %s is %s, not ready", jobID, job.state)
	}
	delete(e.jobs, jobID)
	return job.result, nil
}

func (e *LocalEngine) FailureReason(ctx context.Context, jobID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if job, ok := e.jobs[jobID]; ok && job.err != nil {
		return job.err.Error()
	}
	return ""
}

// Close cancels in-flight renders and waits for them to exit.
func (e *LocalEngine) Close() {
	e.cancel()
	e.wg.Wait()
}
