package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/crm-activity-dashboard/internal/cache"
	"github.com/xela07ax/crm-activity-dashboard/internal/console/handler"
	"github.com/xela07ax/crm-activity-dashboard/internal/console/server"
	"github.com/xela07ax/crm-activity-dashboard/internal/console/service"
	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra/auth"
	"github.com/xela07ax/crm-activity-dashboard/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст живет до SIGINT/SIGTERM
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(reg)

	// 2. Хранилище
	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer pool.Close()

	repo, err := postgres.NewActivityRepo(pool, postgres.Options{
		Schema:           cfg.Dashboard.Schema,
		TablePrefix:      cfg.Dashboard.TablePrefix,
		CredentialColumn: cfg.Dashboard.CredentialColumn,
	}, metrics, logger)
	if err != nil {
		logger.Fatal("init activity repo", zap.Error(err))
	}

	// 3. Кэш discovery (опционально)
	var discovery service.TableDiscoverer = repo
	if ttl := cfg.Dashboard.DiscoveryCacheTTL; ttl > 0 {
		var rdb *redis.Client
		if cfg.Redis.Addr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
		}

		dc := cache.NewDiscoveryCache(repo, rdb,
			infra.GetDiscoveryKey(cfg.Dashboard.Schema, cfg.Dashboard.TablePrefix), ttl, metrics, logger)

		warmCtx, cancel := context.WithTimeout(appCtx, 10*time.Second)
		if err := dc.Warmup(warmCtx, infra.GetWarmupLockKey("discovery")); err != nil {
			// не фатально: первый запрос сходит в базу сам
			logger.Warn("discovery warm-up failed", zap.Error(err))
		}
		cancel()

		// Сигналы сброса от других инстансов и от процесса синхронизации схемы
		go dc.ListenInvalidations(appCtx)

		discovery = dc
	}

	registry := domain.DefaultMetrics()
	if key := cfg.Dashboard.DefaultMetric; key != "" && key != domain.DefaultMetricKey {
		registry, err = domain.NewMetricRegistry(key, registry.All()...)
		if err != nil {
			logger.Fatal("invalid default metric", zap.Error(err))
		}
	}

	// 4. Сервисный слой
	dashService := service.NewDashboardService(repo, discovery, registry, service.DashboardOptions{
		Ranges: service.RangePolicy{
			Min:     cfg.Dashboard.MinRangeDays,
			Max:     cfg.Dashboard.MaxRangeDays,
			Default: cfg.Dashboard.DefaultRangeDays,
		},
		CredentialLimit: cfg.Dashboard.CredentialLimit,
	}, logger)

	issuer := auth.NewIssuer(cfg.Rollout.ClientSecret, cfg.Rollout.ProjectKey, cfg.Rollout.TokenTTL)
	rolloutService := service.NewRolloutService(issuer, dashService, service.RolloutSettings{
		APIBaseURL:    cfg.Rollout.APIBaseURL,
		AppKey:        cfg.Rollout.AppKey,
		DefaultUserID: cfg.Rollout.DefaultUserID,
	}, logger)

	// 5. HTTP
	api := server.NewDashboardServer(cfg.Server, logger, metrics,
		handler.NewDashboardHandler(dashService, registry.Resolve("").Key, logger),
		handler.NewRolloutHandler(rolloutService, logger),
	)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			logger.Info("metrics listener started", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("dashboard API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 6. Graceful Shutdown
	select {
	case <-appCtx.Done():
		logger.Info("dashboard API stopping...")
	case err := <-serveErr:
		logger.Error("listen failed", zap.Error(err))
	}

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info("dashboard API exited properly")
}
