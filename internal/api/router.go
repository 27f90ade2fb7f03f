package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string

	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(Correlation)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(Recover)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{correlationHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Post("/api/short-video/render", h.RenderShortVideo)

	return r
}

// allowedOrigins restricts origins when configured, otherwise allows all.
func allowedOrigins(configured string) []string {
	if configured == "" {
		return []string{"*"}
	}
	origins := strings.Split(configured, ",")
	trimmed := make([]string, 0, len(origins))
	for _, o := range origins {
		if s := strings.TrimSpace(o); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return []string{"*"}
	}
	return trimmed
}
