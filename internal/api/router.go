package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"voc-dashboard/internal/middleware"
)

// Health is the snapshot served by /healthz.
type Health struct {
	Status          string `json:"status"`
	CredentialValid bool   `json:"credential_valid"`
	PoolIdle        int    `json:"pool_idle"`
	CacheEntries    int    `json:"cache_entries"`
}

// RouterConfig carries the outer-surface knobs.
type RouterConfig struct {
	CORSOrigins     []string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewRouter assembles the HTTP stack: request ids, structured logging,
// panic recovery, CORS, and per-client rate limiting around the API routes,
// plus the unlimited operator endpoints.
func NewRouter(h *Handler, healthFn func() Health, metricsHandler http.Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(2 * time.Minute))

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthFn())
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimitPerSec > 0 {
			r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimitPerSec,
				Burst:             cfg.RateLimitBurst,
			}))
		}
		h.Routes(r)
	})

	return r
}
