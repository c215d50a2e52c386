package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/xela07ax/crm-activity-dashboard/internal/console/handler"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"go.uber.org/zap"
)

type DashboardServer struct {
	router  *chi.Mux
	logger  *zap.Logger
	cfg     infra.ServerConfig
	metrics *infra.Metrics
	limiter *clientRateLimiter

	// Обработчики
	dashHandler    *handler.DashboardHandler // /api/dashboard/summary, /api/credentials
	rolloutHandler *handler.RolloutHandler   // /api/rollout/token, /api/config
}

// NewDashboardServer собирает HTTP API дашборда со всеми зависимостями
func NewDashboardServer(
	cfg infra.ServerConfig,
	logger *zap.Logger,
	metrics *infra.Metrics,
	dashH *handler.DashboardHandler,
	rolloutH *handler.RolloutHandler,
) *DashboardServer {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	s := &DashboardServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("dashboard-api"),
		cfg:            cfg,
		metrics:        metrics,
		limiter:        newClientRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		dashHandler:    dashH,
		rolloutHandler: rolloutH,
	}

	s.routes()
	return s
}

func (s *DashboardServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	if s.cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(TracingMiddleware)
	r.Use(AccessLog(s.logger, s.metrics))
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Trace-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- 2. API (только чтение) ---
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.Health(time.Now))
		r.Get("/config", s.rolloutHandler.Config)
		r.Get("/rollout/token", s.rolloutHandler.Token)
		r.Get("/credentials", s.dashHandler.Credentials)
		r.Get("/dashboard/summary", s.dashHandler.Summary)
	})

	// --- 3. Собранный SPA (если указан каталог) ---
	if s.cfg.StaticDir != "" {
		r.NotFound(spaHandler(s.cfg.StaticDir))
	} else {
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		})
	}
}

// ServeHTTP позволяет использовать DashboardServer как стандартный http.Handler
func (s *DashboardServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
