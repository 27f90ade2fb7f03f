package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobarin/shortform/internal/models"
)

type fakeCompositor struct {
	video   []byte
	err     error
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeCompositor) Compose(ctx context.Context, plan *models.RenderPlan) ([]byte, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.video, f.err
}

func waitForState(t *testing.T, e *LocalEngine, jobID string, want models.JobState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, err := e.Status(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if state == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, want)
}

func TestLocalEngineReady(t *testing.T) {
	comp := &fakeCompositor{video: []byte("mp4")}
	e := NewLocalEngine(comp, 1)
	defer e.Close()

	jobID, err := e.Submit(context.Background(), &models.RenderPlan{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitForState(t, e, jobID, models.JobStateReady)

	video, err := e.FetchResult(context.Background(), jobID)
	if err != nil {
		t.Fatalf("FetchResult failed: %v", err)
	}
	if string(video) != "mp4" {
		t.Errorf("unexpected result %q", video)
	}

	if _, err := e.Status(context.Background(), jobID); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected fetched job to be forgotten, got %v", err)
	}
}

func TestLocalEngineFailed(t *testing.T) {
	e := NewLocalEngine(&fakeCompositor{err: errors.New("ffmpeg exploded")}, 1)
	defer e.Close()

	jobID, _ := e.Submit(context.Background(), &models.RenderPlan{})
	waitForState(t, e, jobID, models.JobStateFailed)

	if reason := e.FailureReason(context.Background(), jobID); reason != "ffmpeg exploded" {
		t.Errorf("unexpected failure reason %q", reason)
	}
	if _, err := e.FetchResult(context.Background(), jobID); err == nil {
		t.Error("expected FetchResult to fail for a failed job")
	}
}

func TestLocalEngineBoundsConcurrency(t *testing.T) {
	comp := &fakeCompositor{video: []byte("x"), release: make(chan struct{})}
	e := NewLocalEngine(comp, 2)
	defer e.Close()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := e.Submit(context.Background(), &models.RenderPlan{})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		ids = append(ids, id)
	}

	time.Sleep(50 * time.Millisecond)
	if got := comp.running.Load(); got != 2 {
		t.Errorf("expected 2 concurrent renders, got %d", got)
	}
	close(comp.release)

	for _, id := range ids {
		waitForState(t, e, id, models.JobStateReady)
	}
	if comp.peak.Load() > 2 {
		t.Errorf("concurrency exceeded limit: %d", comp.peak.Load())
	}
}

func TestLocalEnginePrunesOldFinishedJobs(t *testing.T) {
	e := NewLocalEngine(&fakeCompositor{video: []byte("x")}, 1)
	defer e.Close()

	now := time.Now()
	e.now = func() time.Time { return now }

	old, _ := e.Submit(context.Background(), &models.RenderPlan{})
	waitForState(t, e, old, models.JobStateReady)

	now = now.Add(finishedRetention + time.Minute)
	fresh, _ := e.Submit(context.Background(), &models.RenderPlan{})

	if _, err := e.Status(context.Background(), old); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected old job to be pruned, got %v", err)
	}
	if _, err := e.Status(context.Background(), fresh); err != nil {
		t.Errorf("expected fresh job to be tracked, got %v", err)
	}
}

func TestLocalEngineRejectsAfterClose(t *testing.T) {
	e := NewLocalEngine(&fakeCompositor{}, 1)
	e.Close()

	if _, err := e.Submit(context.Background(), &models.RenderPlan{}); err == nil {
		t.Error("expected Submit to fail after Close")
	}
}
