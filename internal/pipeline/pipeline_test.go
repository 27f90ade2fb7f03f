package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/config"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/models"
	"github.com/bobarin/shortform/internal/services"
)

const (
	audioURL  = "https://tts.example.com/narration.mp3"
	assetOK   = "https://cdn.example.com/ok.mp4"
	assetGone = "https://cdn.example.com/gone.mp4"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []string
	bodies map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if body, ok := f.bodies[url]; ok {
		return body, nil
	}
	return nil, apperr.DownloadStatus(url, 404)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeUploader struct {
	key string
	err error
}

func (u *fakeUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.key = key
	return "https://cdn.example.com/" + key, nil
}

type fakeTranscriber struct {
	words []models.CaptionWord
	err   error
}

func (t fakeTranscriber) Transcribe(ctx context.Context, audio []byte) ([]models.CaptionWord, error) {
	return t.words, t.err
}

// blockingTranscriber never answers before its context ends.
type blockingTranscriber struct{}

func (blockingTranscriber) Transcribe(ctx context.Context, audio []byte) ([]models.CaptionWord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// fakeRecorder keeps the context error seen by each call; a history row written
// with a dead context would never reach the database.
type fakeRecorder struct {
	started   []*models.RenderRecord
	finished  map[string]error
	ctxErrors []error
}

func (r *fakeRecorder) Start(ctx context.Context, rec *models.RenderRecord) error {
	r.ctxErrors = append(r.ctxErrors, ctx.Err())
	r.started = append(r.started, rec)
	return nil
}

func (r *fakeRecorder) Finish(ctx context.Context, correlationID string, videoURL *string, failure error) error {
	r.ctxErrors = append(r.ctxErrors, ctx.Err())
	if r.finished == nil {
		r.finished = make(map[string]error)
	}
	r.finished[correlationID] = failure
	return nil
}

type harness struct {
	fetcher  *fakeFetcher
	engine   *scriptedEngine
	uploader *fakeUploader
	recorder *fakeRecorder
	pipeline *Pipeline
}

func newHarness(t *testing.T, mode config.ResponseMode, transcriber services.Transcriber) *harness {
	t.Helper()

	h := &harness{
		fetcher: &fakeFetcher{bodies: map[string][]byte{
			audioURL: []byte("ID3-audio"),
			assetOK:  []byte("stock-footage"),
		}},
		engine: &scriptedEngine{
			states: []models.JobState{models.JobStateRendering, models.JobStateReady},
			result: []byte("rendered-mp4"),
		},
		uploader: &fakeUploader{},
		recorder: &fakeRecorder{},
	}

	cfg := config.Config{
		ResponseMode:         mode,
		AudioDownloadTimeout: time.Second,
		TranscribeTimeout:    50 * time.Millisecond,
		TempDir:              t.TempDir(),
	}

	dispatcher, err := NewDispatcher(mode, h.uploader)
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	h.pipeline = New(cfg, Deps{
		Fetcher:      h.fetcher,
		Transcriber:  transcriber,
		Resolver:     services.NewAssetResolver(h.fetcher, time.Second, 2, nil),
		Orchestrator: NewOrchestrator(h.engine, testInterval, time.Second, nil),
		Dispatcher:   dispatcher,
		Recorder:     h.recorder,
	})
	return h
}

func strPtr(s string) *string { return &s }

func validRequest() *models.RenderRequest {
	return &models.RenderRequest{
		Scenes: []models.Scene{
			{Text: "Hello", DurationMs: 1000, SearchTerms: []string{"sunrise"}},
			{Text: "World", DurationMs: 2000, SearchTerms: []string{"city"}},
		},
		Config: &models.RenderConfig{
			Resolution: "1080x1920",
			Tone:       models.ToneEpic,
			Platform:   models.PlatformTikTok,
			TTSURL:     audioURL,
			Assets: []models.AssetRef{
				{SearchTerms: "sunrise", VideoURL: strPtr(assetOK)},
				{SearchTerms: "city", VideoURL: strPtr(assetGone)},
			},
		},
		Narrative: &models.Narrative{SummaryID: strPtr("summary-7")},
	}
}

func TestRunBinaryWithAssetFallback(t *testing.T) {
	h := newHarness(t, config.ResponseModeBinary, nil)
	ctx := logging.WithCorrelationID(context.Background(), "corr-1")

	result, err := h.pipeline.Run(ctx, validRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(result.Video) != "rendered-mp4" || result.VideoURL != "" {
		t.Errorf("unexpected result %+v", result)
	}

	if h.engine.submissions() != 1 {
		t.Fatalf("expected one submission, got %d", h.engine.submissions())
	}
	plan := h.engine.submitted[0]
	if plan.Width != 1080 || plan.Height != 1920 || plan.FPS != 30 {
		t.Errorf("unexpected plan geometry %dx%d@%d", plan.Width, plan.Height, plan.FPS)
	}
	if plan.Scenes[0].StartFrame != 0 || plan.Scenes[0].DurationInFrames != 30 {
		t.Errorf("unexpected scene 0 %+v", plan.Scenes[0])
	}
	if plan.Scenes[1].StartFrame != 30 || plan.Scenes[1].DurationInFrames != 60 {
		t.Errorf("unexpected scene 1 %+v", plan.Scenes[1])
	}
	if plan.Scenes[0].AssetPath == "" {
		t.Error("expected downloaded asset bound to scene 0")
	}
	if plan.Scenes[1].AssetPath != "" {
		t.Error("expected 404 asset to fall back to no asset")
	}
	if string(plan.AudioBytes) != "ID3-audio" {
		t.Errorf("unexpected audio %q", plan.AudioBytes)
	}

	if _, err := os.Stat(plan.Scenes[0].AssetPath); !os.IsNotExist(err) {
		t.Errorf("expected temp asset to be removed after the run, stat err: %v", err)
	}

	if len(h.recorder.started) != 1 || *h.recorder.started[0].SummaryID != "summary-7" {
		t.Errorf("expected narrative passthrough to be recorded, got %+v", h.recorder.started)
	}
	if failure, ok := h.recorder.finished["corr-1"]; !ok || failure != nil {
		t.Errorf("expected successful finish record, got %v (present=%v)", failure, ok)
	}
}

func TestRunMalformedResolutionMakesNoNetworkCall(t *testing.T) {
	h := newHarness(t, config.ResponseModeBinary, nil)
	req := validRequest()
	req.Config.Resolution = "1080"

	_, err := h.pipeline.Run(logging.WithCorrelationID(context.Background(), "corr-2"), req)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if appErr.CorrelationID != "corr-2" {
		t.Errorf("expected correlation id on error, got %q", appErr.CorrelationID)
	}
	if h.fetcher.callCount() != 0 {
		t.Errorf("expected no downloads, got %d", h.fetcher.callCount())
	}
	if h.engine.submissions() != 0 {
		t.Error("expected no render submission")
	}
	if len(h.recorder.started) != 0 {
		t.Error("rejected requests should not be recorded")
	}
}

func TestRunAudioFailureIsFatal(t *testing.T) {
	h := newHarness(t, config.ResponseModeBinary, nil)
	delete(h.fetcher.bodies, audioURL)

	_, err := h.pipeline.Run(context.Background(), validRequest())
	if apperr.KindOf(err) != apperr.KindDownload || apperr.CauseOf(err) != apperr.CauseHTTPStatus {
		t.Fatalf("expected http-status download error, got %v", err)
	}
	if h.engine.submissions() != 0 {
		t.Error("expected no render submission after audio failure")
	}
	if h.fetcher.callCount() != 1 {
		t.Errorf("expected assets not to be fetched, got %d calls", h.fetcher.callCount())
	}
}

func TestRunURLMode(t *testing.T) {
	h := newHarness(t, config.ResponseModeURL, nil)
	ctx := logging.WithCorrelationID(context.Background(), "corr-3")

	result, err := h.pipeline.Run(ctx, validRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.VideoURL != "https://cdn.example.com/renders/corr-3.mp4" {
		t.Errorf("unexpected url %q", result.VideoURL)
	}
	if result.Video != nil {
		t.Error("url mode should not return bytes")
	}
}

func TestRunUploadFailureIsDistinct(t *testing.T) {
	h := newHarness(t, config.ResponseModeURL, nil)
	h.uploader.err = errors.New("bucket unavailable")

	_, err := h.pipeline.Run(context.Background(), validRequest())
	if apperr.KindOf(err) != apperr.KindUpload {
		t.Fatalf("expected upload error, got %v", err)
	}
	if apperr.PublicMessage(err) != "Rendering failed: video upload failed" {
		t.Errorf("unexpected public message %q", apperr.PublicMessage(err))
	}
}

func TestRunCaptions(t *testing.T) {
	words := []models.CaptionWord{{Word: "hello", Start: 0, End: 0.4}}

	h := newHarness(t, config.ResponseModeBinary, fakeTranscriber{words: words})
	if _, err := h.pipeline.Run(context.Background(), validRequest()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(h.engine.submitted[0].Captions) != 1 {
		t.Errorf("expected captions on plan, got %+v", h.engine.submitted[0].Captions)
	}

	h = newHarness(t, config.ResponseModeBinary, fakeTranscriber{err: errors.New("whisper down")})
	if _, err := h.pipeline.Run(context.Background(), validRequest()); err != nil {
		t.Fatalf("transcription failure should not fail the render: %v", err)
	}
	if h.engine.submitted[0].Captions != nil {
		t.Error("expected no captions when transcription fails")
	}
}

func TestRunRenderFailureRecorded(t *testing.T) {
	h := newHarness(t, config.ResponseModeBinary, nil)
	h.engine.states = []models.JobState{models.JobStateFailed}
	ctx := logging.WithCorrelationID(context.Background(), "corr-4")

	_, err := h.pipeline.Run(ctx, validRequest())
	if apperr.KindOf(err) != apperr.KindRender {
		t.Fatalf("expected render error, got %v", err)
	}
	if h.recorder.finished["corr-4"] == nil {
		t.Error("expected failure to be recorded")
	}
}

func TestRunTranscriptionTimeoutFallsBack(t *testing.T) {
	h := newHarness(t, config.ResponseModeBinary, blockingTranscriber{})

	done := make(chan error, 1)
	go func() {
		_, err := h.pipeline.Run(context.Background(), validRequest())
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("slow transcription should not fail the render: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the transcribe timeout")
	}
	if h.engine.submitted[0].Captions != nil {
		t.Error("expected scene captions fallback after transcription timed out")
	}
}

func TestRunRecordsHistoryAfterClientDisconnect(t *testing.T) {
	h := newHarness(t, config.ResponseModeBinary, nil)
	ctx, cancel := context.WithCancel(logging.WithCorrelationID(context.Background(), "corr-5"))
	cancel()

	_, err := h.pipeline.Run(ctx, validRequest())
	if apperr.KindOf(err) != apperr.KindRender {
		t.Fatalf("expected abandoned render error, got %v", err)
	}
	if _, ok := h.recorder.finished["corr-5"]; !ok {
		t.Fatal("expected outcome to be recorded")
	}
	for i, ctxErr := range h.recorder.ctxErrors {
		if ctxErr != nil {
			t.Errorf("recorder call %d received a cancelled context: %v", i, ctxErr)
		}
	}
	if len(h.recorder.ctxErrors) != 2 {
		t.Errorf("expected start and finish calls, got %d", len(h.recorder.ctxErrors))
	}
}
