package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/shortform/internal/api"
	"github.com/bobarin/shortform/internal/config"
	"github.com/bobarin/shortform/internal/db"
	"github.com/bobarin/shortform/internal/engine"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/metrics"
	"github.com/bobarin/shortform/internal/pipeline"
	"github.com/bobarin/shortform/internal/queue"
	"github.com/bobarin/shortform/internal/services"
	"github.com/bobarin/shortform/internal/storage"
	"github.com/bobarin/shortform/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel})
	slog.Info("starting shortform render API", "response_mode", cfg.ResponseMode, "render_engine", cfg.RenderEngine)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	compositor, err := services.NewFFmpegCompositor(cfg.FFmpegPath, cfg.TempDir)
	if err != nil {
		fatal("failed to initialize compositor", err)
	}

	// Render engine
	var renderEngine engine.Engine
	var workerCancel context.CancelFunc
	workerDone := make(chan struct{})
	switch cfg.RenderEngine {
	case config.EngineRedis:
		q, err := queue.New(cfg.RedisURL)
		if err != nil {
			fatal("failed to connect to queue", err)
		}
		defer q.Close()
		slog.Info("connected to redis render queue")

		renderEngine = engine.NewRedisEngine(q)

		if cfg.WorkerEnabled {
			var workerCtx context.Context
			workerCtx, workerCancel = context.WithCancel(context.Background())
			go func() {
				defer close(workerDone)
				worker.New(q, compositor).Start(workerCtx, cfg.MaxConcurrentRenders)
			}()
		}
	default:
		local := engine.NewLocalEngine(compositor, cfg.MaxConcurrentRenders)
		defer local.Close()
		renderEngine = local
	}

	// Storage (url mode only)
	var uploader storage.Uploader
	if cfg.ResponseMode == config.ResponseModeURL {
		switch cfg.StorageBackend {
		case config.StorageBlob:
			blobStore, err := storage.OpenBlobStore(context.Background(), cfg.BlobBucketURL, cfg.StorageBaseURL)
			if err != nil {
				fatal("failed to open blob storage", err)
			}
			defer blobStore.Close()
			uploader = blobStore
		default:
			uploader = storage.NewSupabase(cfg.StorageBaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		}
		slog.Info("initialized video storage", "backend", cfg.StorageBackend)
	}

	dispatcher, err := pipeline.NewDispatcher(cfg.ResponseMode, uploader)
	if err != nil {
		fatal("failed to initialize dispatcher", err)
	}

	// Render history (optional)
	var recorder db.Recorder = db.NoopRecorder{}
	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			fatal("failed to connect to database", err)
		}
		defer database.Close()

		if err := database.EnsureSchema(context.Background()); err != nil {
			fatal("failed to prepare database schema", err)
		}
		recorder = database
		slog.Info("render history enabled")
	}

	// Captions (optional)
	var transcriber services.Transcriber
	if cfg.OpenAIKey != "" {
		transcriber = services.NewWhisperTranscriber(cfg.OpenAIKey, cfg.CaptionLanguage)
		slog.Info("narration captions enabled", "language", cfg.CaptionLanguage)
	}

	fetcher := services.NewFetcher(nil)
	p := pipeline.New(cfg, pipeline.Deps{
		Fetcher:      fetcher,
		Transcriber:  transcriber,
		Resolver:     services.NewAssetResolver(fetcher, cfg.AssetDownloadTimeout, cfg.AssetConcurrency, m),
		Orchestrator: pipeline.NewOrchestrator(renderEngine, cfg.RenderPollInterval, cfg.RenderDeadline, m),
		Dispatcher:   dispatcher,
		Recorder:     recorder,
		Metrics:      m,
	})

	routerCfg := api.RouterConfig{CorsAllowedOrigins: cfg.CorsAllowedOrigins}
	if m != nil {
		routerCfg.MetricsHandler = m.Handler()
	}
	router := api.NewRouter(api.NewHandler(p), routerCfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("server error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	if workerCancel != nil {
		workerCancel()
		<-workerDone
	}

	// In-flight renders can take up to the render deadline
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RenderDeadline+30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exited")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
