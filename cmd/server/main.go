package main

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/sessions/api/handler"
	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/internal/config"
	"github.com/fastygo/sessions/internal/infrastructure/buffer"
	"github.com/fastygo/sessions/internal/infrastructure/metrics"
	"github.com/fastygo/sessions/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/sessions/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/sessions/internal/infrastructure/redis"
	"github.com/fastygo/sessions/internal/middleware"
	"github.com/fastygo/sessions/internal/router"
	"github.com/fastygo/sessions/internal/services"
	"github.com/fastygo/sessions/internal/services/lifecycle"
	"github.com/fastygo/sessions/pkg/httpcontext"
	"github.com/fastygo/sessions/pkg/logger"
	"github.com/fastygo/sessions/pkg/token"
	"github.com/fastygo/sessions/repository"
	"github.com/fastygo/sessions/repository/hybrid"
	"github.com/fastygo/sessions/repository/postgres"
	redisRepo "github.com/fastygo/sessions/repository/redis"
	authUC "github.com/fastygo/sessions/usecase/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(context.Background(), cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen()
	appCtx := manager.Context()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sessionMetrics := metrics.NewSessions(registry)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("redis client failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	userRepo := postgres.NewUserRepository(pool)
	sessionDB := postgres.NewSessionRepository(pool)
	sessionCache := redisRepo.NewSessionRepository(redisClient, cfg.Session.CacheTTL)

	probes := monitor.Probes{
		Postgres: pool.Ping,
		Redis: func(ctx context.Context) error {
			return redisInfra.Ping(ctx, redisClient)
		},
	}

	var bufferStore *buffer.Store
	if cfg.Buffer.Enabled {
		bufferStore, err = buffer.Open(cfg.Buffer.Path, "")
		if err != nil {
			zapLogger.Fatal("failed to open buffer store", zap.Error(err))
		}
		manager.Register("buffer", func(ctx context.Context) error {
			return bufferStore.Close()
		})
		probes.Buffer = bufferStore
	}

	mon := monitor.New(probes, sessionMetrics, cfg.Monitor.Interval, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	var opBuffer repository.OperationBuffer
	if bufferStore != nil {
		processor := services.NewBufferProcessor(bufferStore, mon, sessionDB, sessionMetrics, zapLogger, services.ProcessorConfig{
			Interval:   cfg.Buffer.SyncInterval,
			BatchSize:  cfg.Buffer.BatchSize,
			MaxRetries: cfg.Buffer.MaxRetry,
			MaxAge:     cfg.Buffer.Retention,
		})
		processor.Start(appCtx)
		manager.Register("buffer_processor", func(ctx context.Context) error {
			processor.Stop(ctx)
			return nil
		})
		opBuffer = services.NewBufferBridge(processor)
	}

	sessions := hybrid.New(sessionCache, sessionDB, opBuffer, sessionMetrics, zapLogger, hybrid.Config{
		ReconcileInterval: cfg.Session.ReconcileInterval,
	})
	sessions.Start(appCtx)
	manager.Register("sessions", func(ctx context.Context) error {
		sessions.Stop(ctx)
		return nil
	})

	authUseCase := authUC.New(userRepo, sessions, token.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer), cfg.Session.DefaultTTL, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout, cfg.HTTP.TrustProxy)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Session: apiHandler.NewSessionHandler(authUseCase, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}
	if cfg.HTTP.EnableMetrics {
		handlers.Metrics = apiHandler.NewMetricsHandler(registry)
	}

	r := router.New(handlers,
		middleware.SessionAuth(authUseCase, ctxAdapter, zapLogger),
		middleware.RequireRole(domain.RoleAdmin),
	)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
