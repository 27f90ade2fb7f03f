package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/engine"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/metrics"
	"github.com/bobarin/shortform/internal/models"
)

// Orchestrator submits one job per render and polls it until it is ready, fails,
// or the deadline passes. It never cancels the job it submitted.
type Orchestrator struct {
	engine   engine.Engine
	interval time.Duration
	deadline time.Duration
	metrics  *metrics.Metrics
}

func NewOrchestrator(e engine.Engine, interval, deadline time.Duration, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		engine:   e,
		interval: interval,
		deadline: deadline,
		metrics:  m,
	}
}

// Render returns the rendered bytes of plan. Failures are render errors classified
// as timeout or collaborator-failure.
func (o *Orchestrator) Render(ctx context.Context, plan *models.RenderPlan) ([]byte, error) {
	logger := logging.FromContext(ctx)

	jobID, err := o.engine.Submit(ctx, plan)
	if err != nil {
		return nil, apperr.Render(apperr.CauseCollaboratorFailure, "render job submission failed", err)
	}

	start := time.Now()
	logger.Info("render job submitted", "job_id", jobID, "frames", plan.TotalFrames())

	// The deadline is absolute from submission and also bounds every collaborator call.
	pollCtx, cancel := context.WithDeadline(ctx, start.Add(o.deadline))
	defer cancel()
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	polls := 0
	defer func() { o.metrics.ObservePolls(polls) }()

	for {
		select {
		case <-pollCtx.Done():
			return nil, o.stopped(ctx, jobID, polls)

		case <-ticker.C:
			polls++

			state, err := o.engine.Status(pollCtx, jobID)
			if err != nil {
				if pollCtx.Err() != nil {
					return nil, o.stopped(ctx, jobID, polls)
				}
				if errors.Is(err, engine.ErrUnknownJob) {
					return nil, apperr.Render(apperr.CauseCollaboratorFailure, "render job was lost", err)
				}
				// Status lookups can blip; the deadline bounds how long we tolerate it.
				logger.Warn("render status check failed", "job_id", jobID, "error", err)
				continue
			}

			switch state {
			case models.JobStateReady:
				video, err := o.engine.FetchResult(pollCtx, jobID)
				if err != nil {
					if pollCtx.Err() != nil {
						return nil, o.stopped(ctx, jobID, polls)
					}
					return nil, apperr.Render(apperr.CauseCollaboratorFailure, "render result could not be fetched", err)
				}
				logger.Info("render job ready",
					"job_id", jobID,
					"polls", polls,
					"elapsed_ms", time.Since(start).Milliseconds(),
					"bytes", len(video),
				)
				return video, nil

			case models.JobStateFailed:
				return nil, apperr.Render(apperr.CauseCollaboratorFailure, "render job failed", o.failureReason(pollCtx, jobID))

			default:
				logger.Debug("render job pending", "job_id", jobID, "state", state, "polls", polls)
			}
		}
	}
}

// stopped classifies the end of polling: the caller went away, or the deadline passed.
func (o *Orchestrator) stopped(ctx context.Context, jobID string, polls int) error {
	if err := ctx.Err(); err != nil {
		return apperr.Render(apperr.CauseNone, "render abandoned", err)
	}
	logging.FromContext(ctx).Warn("render job deadline exceeded", "job_id", jobID, "polls", polls)
	return apperr.Render(apperr.CauseTimeout,
		fmt.Sprintf("render job did not finish within %dms", o.deadline.Milliseconds()), nil)
}

func (o *Orchestrator) failureReason(ctx context.Context, jobID string) error {
	reporter, ok := o.engine.(engine.FailureReporter)
	if !ok {
		return nil
	}
	if reason := reporter.FailureReason(ctx, jobID); reason != "" {
		return errors.New(reason)
	}
	return nil
}
