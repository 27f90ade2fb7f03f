// Package engine runs render jobs. Callers submit a plan, observe the job's
// state by polling, and collect the bytes once it is ready.
package engine

import (
	"context"
	"errors"

	"github.com/bobarin/shortform/internal/models"
)

// ErrUnknownJob is returned for job ids the engine does not (or no longer) track.
var ErrUnknownJob = errors.New("unknown render job")

// Engine is the render collaborator. Job state transitions belong to the engine;
// callers only observe them.
type Engine interface {
	Submit(ctx context.Context, plan *models.RenderPlan) (string, error)
	Status(ctx context.Context, jobID string) (models.JobState, error)
	FetchResult(ctx context.Context, jobID string) ([]byte, error)
}

// Compositor turns a plan into encoded video.
type Compositor interface {
	Compose(ctx context.Context, plan *models.RenderPlan) ([]byte, error)
}

// FailureReporter is implemented by engines that remember why a job failed.
type FailureReporter interface {
	FailureReason(ctx context.Context, jobID string) string
}
