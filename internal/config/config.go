package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ResponseMode selects how a rendered video is returned to the caller.
type ResponseMode string

const (
	ResponseModeBinary ResponseMode = "binary"
	ResponseModeURL    ResponseMode = "url"
)

// Render engine backends
const (
	EngineLocal = "local"
	EngineRedis = "redis"
)

// Storage backends (url mode only)
const (
	StorageSupabase = "supabase"
	StorageBlob     = "blob"
)

type Config struct {
	// Server
	Port               string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *)
	MetricsEnabled     bool

	// Logging
	LogLevel  string
	LogFormat string

	// Response
	ResponseMode ResponseMode

	// Downloads
	AudioDownloadTimeout time.Duration
	AssetDownloadTimeout time.Duration
	AssetConcurrency     int
	TempDir              string

	// Render engine
	RenderEngine         string // "local" or "redis"
	RenderPollInterval   time.Duration
	RenderDeadline       time.Duration
	MaxConcurrentRenders int
	FFmpegPath           string
	WorkerEnabled        bool // Only consulted by the redis engine

	// Redis
	RedisURL string

	// Storage
	StorageBackend        string
	StorageBaseURL        string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	BlobBucketURL         string

	// OpenAI (optional, enables narration captions)
	OpenAIKey         string
	CaptionLanguage   string
	TranscribeTimeout time.Duration

	// Database (optional, enables render history)
	DatabaseURL string
}

func Load() (Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := Config{
		Port:                  getEnv("PORT", "3123"),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		MetricsEnabled:        getEnvBool("METRICS_ENABLED", true),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		ResponseMode:          ResponseMode(getEnv("RESPONSE_MODE", string(ResponseModeBinary))),
		AudioDownloadTimeout:  getEnvMillis("AUDIO_DOWNLOAD_TIMEOUT_MS", 15000),
		AssetDownloadTimeout:  getEnvMillis("ASSET_DOWNLOAD_TIMEOUT_MS", 15000),
		AssetConcurrency:      getEnvInt("ASSET_CONCURRENCY", 4),
		TempDir:               getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "shortform")),
		RenderEngine:          getEnv("RENDER_ENGINE", EngineLocal),
		RenderPollInterval:    getEnvMillis("RENDER_POLL_INTERVAL_MS", 1000),
		RenderDeadline:        getEnvMillis("RENDER_DEADLINE_MS", 180000),
		MaxConcurrentRenders:  getEnvInt("MAX_CONCURRENT_RENDERS", 2),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		RedisURL:              getEnv("REDIS_URL", ""),
		StorageBackend:        getEnv("STORAGE_BACKEND", StorageSupabase),
		StorageBaseURL:        getEnv("STORAGE_BASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "short-videos"),
		BlobBucketURL:         getEnv("BLOB_BUCKET_URL", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		CaptionLanguage:       getEnv("CAPTION_LANGUAGE", "en"),
		TranscribeTimeout:     getEnvMillis("TRANSCRIBE_TIMEOUT_MS", 30000),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field requirements of a loaded configuration.
func (c Config) Validate() error {
	switch c.ResponseMode {
	case ResponseModeBinary, ResponseModeURL:
	default:
		return fmt.Errorf("RESPONSE_MODE must be %q or %q, got %q", ResponseModeBinary, ResponseModeURL, c.ResponseMode)
	}

	if c.AudioDownloadTimeout <= 0 || c.AssetDownloadTimeout <= 0 {
		return fmt.Errorf("download timeouts must be positive")
	}
	if c.TranscribeTimeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT_MS must be positive")
	}
	if c.RenderPollInterval <= 0 || c.RenderDeadline <= 0 {
		return fmt.Errorf("RENDER_POLL_INTERVAL_MS and RENDER_DEADLINE_MS must be positive")
	}

	if c.ResponseMode == ResponseModeURL {
		if c.StorageBaseURL == "" {
			return fmt.Errorf("STORAGE_BASE_URL is required in url response mode")
		}
		switch c.StorageBackend {
		case StorageSupabase:
			if c.SupabaseServiceKey == "" {
				return fmt.Errorf("SUPABASE_SERVICE_KEY is required for the supabase storage backend")
			}
		case StorageBlob:
			if c.BlobBucketURL == "" {
				return fmt.Errorf("BLOB_BUCKET_URL is required for the blob storage backend")
			}
		default:
			return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
		}
	}

	switch c.RenderEngine {
	case EngineLocal:
	case EngineRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis render engine")
		}
	default:
		return fmt.Errorf("unknown RENDER_ENGINE %q", c.RenderEngine)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
