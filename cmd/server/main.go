package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zombar/feedbackpulse/internal/api"
	"github.com/zombar/feedbackpulse/internal/app"
	"github.com/zombar/feedbackpulse/internal/auth"
	"github.com/zombar/feedbackpulse/internal/config"
	"github.com/zombar/feedbackpulse/internal/dashboard"
	"github.com/zombar/feedbackpulse/internal/queue"
	"github.com/zombar/feedbackpulse/internal/realtime"
	"github.com/zombar/feedbackpulse/pkg/logging"
	"github.com/zombar/feedbackpulse/pkg/metrics"
	"github.com/zombar/feedbackpulse/pkg/tracing"
)

const serviceName = "feedbackpulse"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	// Setup structured logging with JSON output
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("feedbackpulse service initializing", "version", "1.0.0")

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	if cfg.OTelEnabled {
		tp, err := tracing.InitTracer(serviceName)
		if err != nil {
			logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Error("error shutting down tracer", "error", err)
				}
			}()
			logger.Info("tracing initialized successfully")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err, "backend", cfg.StoreBackend)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	if store.SQL != nil {
		dbMetrics := metrics.NewDatabaseMetrics(serviceName)
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					dbMetrics.UpdateDBStats(store.SQL.Conn())
				}
			}
		}()
		logger.Info("database metrics initialized")
	}

	businessMetrics := metrics.NewBusinessMetrics(serviceName)

	responseAnalyzer, err := app.NewAnalyzer(cfg, logger, businessMetrics)
	if err != nil {
		logger.Error("failed to initialize analyzer", "error", err)
		os.Exit(1)
	}

	aggregator := dashboard.NewAggregator(store, responseAnalyzer,
		dashboard.WithConcurrency(cfg.AnalysisConcurrency),
		dashboard.WithLogger(logger),
		dashboard.WithMetrics(businessMetrics),
	)

	hub := realtime.NewHub(logger)
	defer hub.Close()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	wsHandler := realtime.NewHandler(hub, verifier, cfg.AllowedOrigins, logger)

	apiCfg := api.Config{
		Store:          store,
		Analyzer:       responseAnalyzer,
		Metrics:        aggregator,
		Emitter:        hub,
		Verifier:       verifier,
		WebSocket:      http.HandlerFunc(wsHandler.ServeDashboard),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	}

	var worker *queue.Worker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		bridge := realtime.NewRedisBridge(redisClient, hub, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("redis bridge stopped", "error", err)
			}
		}()

		queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: cfg.RedisAddr})
		defer queueClient.Close()

		apiCfg.Emitter = bridge
		apiCfg.Queue = queueClient

		worker = queue.NewWorker(
			queue.WorkerConfig{RedisAddr: cfg.RedisAddr, Concurrency: cfg.AnalysisConcurrency},
			queue.WorkerDeps{
				Store:       store,
				Analyzer:    responseAnalyzer,
				Aggregator:  aggregator,
				Emitter:     bridge,
				QueueClient: queueClient,
				Logger:      logger,
				Metrics:     businessMetrics,
			},
		)
		go func() {
			if err := worker.Start(); err != nil {
				logger.Error("queue worker stopped", "error", err)
			}
		}()
		logger.Info("queue enabled", "redis_addr", cfg.RedisAddr)
	} else {
		logger.Info("REDIS_ADDR not set, responses are analyzed on the next metrics request")
	}

	apiHandler := api.NewHandler(apiCfg)

	// Wrap handler with middleware chain: HTTP logging -> tracing -> handlers
	handler := logging.HTTPLoggingMiddleware(logger, "/health", "/metrics")(
		tracing.HTTPMiddleware(serviceName)(apiHandler),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("feedbackpulse service starting",
			"port", cfg.Port,
			"store", cfg.StoreBackend,
			"providers", responseAnalyzer.Providers(),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if worker != nil {
		worker.Shutdown()
	}

	logger.Info("server stopped")
}
