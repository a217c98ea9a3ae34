package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"geofence-api/internal/logger"
	"geofence-api/internal/metrics"
	"geofence-api/internal/middleware"
)

// RouterConfig：入口层参数
type RouterConfig struct {
	APIBase        string
	RateLimitQPS   float64
	RateLimitBurst int
	RateLimit      bool
}

// NewRouter：挂载 API、/metrics 与健康检查
// 约束：限流只作用于 API_BASE 下的路由；/metrics 与 /healthz 不限流
func NewRouter(h *Handler, cfg RouterConfig, l *slog.Logger) http.Handler {
	if cfg.APIBase == "" {
		cfg.APIBase = "/api"
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(logger.AccessMiddleware(l))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimit {
			r.Use(middleware.RateLimit(cfg.RateLimitQPS, cfg.RateLimitBurst))
		}
		r.Mount(cfg.APIBase, h.Routes())
	})
	return r
}
