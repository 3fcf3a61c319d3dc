package api

import (
	"net/http"

	"sharedrop/internal/config"
	sdmiddleware "sharedrop/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(cfg *config.Config, fileHandler *FileHandler, eventsHandler *EventsHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(sdmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(sdmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	r.Use(sdmiddleware.Metrics())

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	if fileHandler != nil {
		// 公开端点：按 fileId 查元数据和下载，无需身份
		fileHandler.RegisterPublicRoutes(r)

		// 属主端点：必须携带可验证的身份
		r.Group(func(r chi.Router) {
			if cfg.AuthEnabled {
				r.Use(sdmiddleware.JWTAuth(cfg.JWKSURL, cfg.JWTSecret))
			} else {
				// 开发模式：固定主体
				r.Use(sdmiddleware.StaticPrincipal(sdmiddleware.Principal{
					ID:    "dev-owner",
					Email: "dev@localhost",
				}))
			}
			fileHandler.RegisterRoutes(r)
		})
	}

	if eventsHandler != nil {
		// 存储桶通知 webhook，由共享令牌保护
		r.Group(func(r chi.Router) {
			if cfg.EventsToken != "" {
				r.Use(sdmiddleware.EventsTokenAuth(cfg.EventsToken))
			}
			r.Post("/events/storage", eventsHandler.StorageEvent)
		})
	}

	return r
}
