// Package pipeline turns a render request into a video: validate, fetch narration,
// resolve stock footage, plan frames, render, then dispatch.
package pipeline

import (
	"context"
	"time"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/config"
	"github.com/bobarin/shortform/internal/db"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/metrics"
	"github.com/bobarin/shortform/internal/models"
	"github.com/bobarin/shortform/internal/plan"
	"github.com/bobarin/shortform/internal/services"
)

// Deps are the collaborators a Pipeline runs against. Transcriber, Recorder and
// Metrics are optional.
type Deps struct {
	Fetcher      services.ResourceFetcher
	Transcriber  services.Transcriber
	Resolver     *services.AssetResolver
	Orchestrator *Orchestrator
	Dispatcher   *Dispatcher
	Recorder     db.Recorder
	Metrics      *metrics.Metrics
}

type Pipeline struct {
	deps              Deps
	audioTimeout      time.Duration
	transcribeTimeout time.Duration
	tempDir           string
	responseMode      config.ResponseMode
}

const defaultTranscribeTimeout = 30 * time.Second

func New(cfg config.Config, deps Deps) *Pipeline {
	if deps.Recorder == nil {
		deps.Recorder = db.NoopRecorder{}
	}
	transcribeTimeout := cfg.TranscribeTimeout
	if transcribeTimeout <= 0 {
		transcribeTimeout = defaultTranscribeTimeout
	}
	return &Pipeline{
		deps:              deps,
		audioTimeout:      cfg.AudioDownloadTimeout,
		transcribeTimeout: transcribeTimeout,
		tempDir:           cfg.TempDir,
		responseMode:      cfg.ResponseMode,
	}
}

// Run executes one render request. Every error is an *apperr.Error tagged with the
// correlation id carried by ctx.
func (p *Pipeline) Run(ctx context.Context, req *models.RenderRequest) (*Result, error) {
	start := time.Now()
	correlationID := logging.CorrelationID(ctx)
	logger := logging.FromContext(ctx)

	if err := plan.Validate(ctx, req); err != nil {
		logger.Info("render request rejected", "error", err)
		p.deps.Metrics.ObserveRender(string(apperr.KindValidation), time.Since(start))
		return nil, apperr.WithCorrelation(err, correlationID)
	}

	p.recordStart(ctx, req)

	result, err := p.execute(ctx, req)

	var videoURL *string
	if result != nil && result.VideoURL != "" {
		videoURL = &result.VideoURL
	}
	// History writes outlive a disconnected client.
	if recErr := p.deps.Recorder.Finish(context.WithoutCancel(ctx), correlationID, videoURL, err); recErr != nil {
		logger.Warn("failed to record render outcome", "error", recErr)
	}

	if err != nil {
		appErr := apperr.WithCorrelation(err, correlationID)
		logger.Error("render pipeline failed",
			"kind", appErr.Kind,
			"cause", appErr.Cause,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", appErr,
		)
		p.deps.Metrics.ObserveRender(string(appErr.Kind), time.Since(start))
		return nil, appErr
	}

	logger.Info("render pipeline completed",
		"mode", result.Mode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	p.deps.Metrics.ObserveRender(string(models.RenderStatusSucceeded), time.Since(start))
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, req *models.RenderRequest) (*Result, error) {
	audio, err := p.deps.Fetcher.Fetch(ctx, req.Config.TTSURL, p.audioTimeout)
	if err != nil {
		p.deps.Metrics.ObserveDownloadFailure("audio", string(apperr.CauseOf(err)))
		return nil, err
	}
	logging.FromContext(ctx).Debug("narration downloaded", "bytes", len(audio))

	captionsCh := make(chan []models.CaptionWord, 1)
	go func() { captionsCh <- p.transcribe(ctx, audio) }()

	scope, err := services.NewTempScope(p.tempDir)
	if err != nil {
		<-captionsCh
		return nil, apperr.Internal("temp storage unavailable", err)
	}
	defer scope.Release()

	assets := p.deps.Resolver.Resolve(ctx, scope, req.Config.Assets)
	captions := <-captionsCh

	renderPlan := plan.Build(req, audio, assets)
	renderPlan.Captions = captions

	video, err := p.deps.Orchestrator.Render(ctx, &renderPlan)
	if err != nil {
		return nil, err
	}

	return p.deps.Dispatcher.Dispatch(ctx, video)
}

// transcribe returns word captions for the narration, or nil when transcription
// is disabled, fails or runs past the transcribe timeout.
func (p *Pipeline) transcribe(ctx context.Context, audio []byte) []models.CaptionWord {
	if p.deps.Transcriber == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.transcribeTimeout)
	defer cancel()
	words, err := p.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		logging.FromContext(ctx).Warn("narration transcription failed, falling back to scene captions", "error", err)
		return nil
	}
	return words
}

func (p *Pipeline) recordStart(ctx context.Context, req *models.RenderRequest) {
	rec := &models.RenderRecord{
		CorrelationID:   logging.CorrelationID(ctx),
		Status:          models.RenderStatusAccepted,
		SceneCount:      len(req.Scenes),
		TotalDurationMs: req.TotalDurationMs(),
		ResponseMode:    string(p.responseMode),
	}
	if req.Narrative != nil {
		rec.SummaryID = req.Narrative.SummaryID
		rec.StylePackID = req.Narrative.StylePackID
	}
	if err := p.deps.Recorder.Start(context.WithoutCancel(ctx), rec); err != nil {
		logging.FromContext(ctx).Warn("failed to record render start", "error", err)
	}
}
