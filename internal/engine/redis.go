package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/models"
	"github.com/bobarin/shortform/internal/queue"
)

// RedisEngine hands jobs to worker processes through the Redis render queue.
// Asset paths in a plan are local files, so workers must share the API's filesystem.
type RedisEngine struct {
	queue *queue.Queue
}

func NewRedisEngine(q *queue.Queue) *RedisEngine {
	return &RedisEngine{queue: q}
}

func (e *RedisEngine) Submit(ctx context.Context, plan *models.RenderPlan) (string, error) {
	job := &queue.Job{
		ID:            uuid.NewString(),
		CorrelationID: logging.CorrelationID(ctx),
		Plan:          plan,
	}
	if err := e.queue.Enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (e *RedisEngine) Status(ctx context.Context, jobID string) (models.JobState, error) {
	state, _, err := e.queue.State(ctx, jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return state, err
}

func (e *RedisEngine) FetchResult(ctx context.Context, jobID string) ([]byte, error) {
	data, err := e.queue.TakeResult(ctx, jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return data, err
}

func (e *RedisEngine) FailureReason(ctx context.Context, jobID string) string {
	_, reason, err := e.queue.State(ctx, jobID)
	if err != nil {
		return ""
	}
	return reason
}
