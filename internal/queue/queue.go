package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bobarin/shortform/internal/models"
)

const (
	QueueRender = "shortform:queue:render"

	// Job state and results expire so abandoned jobs don't accumulate.
	jobTTL = time.Hour

	fieldState = "state"
	fieldError = "error"
)

// ErrJobNotFound is returned when a job's state or result has expired or never existed.
var ErrJobNotFound = errors.New("render job not found")

type Queue struct {
	client *redis.Client
}

// Job is the queued unit of work: one render plan.
type Job struct {
	ID            string             `json:"id"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Plan          *models.RenderPlan `json:"plan"`
	CreatedAt     time.Time          `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue records the job as queued and pushes it onto the render queue.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, StateKey(job.ID), fieldState, string(models.JobStateQueued))
		pipe.Expire(ctx, StateKey(job.ID), jobTTL)
		pipe.RPush(ctx, QueueRender, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. Returns nil, nil when none arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueRender).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return DecodeJob([]byte(result[1]))
}

// DecodeJob parses a queued job payload.
func DecodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ID == "" || job.Plan == nil {
		return nil, fmt.Errorf("job payload missing id or plan")
	}
	return &job, nil
}

// SetState moves a job to state, recording errMsg when non-empty.
func (q *Queue) SetState(ctx context.Context, jobID string, state models.JobState, errMsg string) error {
	fields := map[string]interface{}{fieldState: string(state)}
	if errMsg != "" {
		fields[fieldError] = errMsg
	}

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, StateKey(jobID), fields)
		pipe.Expire(ctx, StateKey(jobID), jobTTL)
		return nil
	})
	return err
}

// State returns the job's current state and failure message, if any.
func (q *Queue) State(ctx context.Context, jobID string) (models.JobState, string, error) {
	fields, err := q.client.HGetAll(ctx, StateKey(jobID)).Result()
	if err != nil {
		return "", "", fmt.Errorf("failed to read job state: %w", err)
	}
	state, ok := fields[fieldState]
	if !ok {
		return "", "", ErrJobNotFound
	}
	return models.JobState(state), fields[fieldError], nil
}

// StoreResult saves the rendered bytes, then marks the job ready.
func (q *Queue) StoreResult(ctx context.Context, jobID string, video []byte) error {
	if err := q.client.Set(ctx, ResultKey(jobID), video, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return q.SetState(ctx, jobID, models.JobStateReady, "")
}

// TakeResult returns the rendered bytes and removes them from Redis.
func (q *Queue) TakeResult(ctx context.Context, jobID string) ([]byte, error) {
	data, err := q.client.GetDel(ctx, ResultKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	return data, nil
}

func (q *Queue) GetQueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueRender).Result()
}

func StateKey(jobID string) string {
	return "shortform:job:" + jobID
}

func ResultKey(jobID string) string {
	return "shortform:job:" + jobID + ":result"
}
