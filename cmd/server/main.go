package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/quantfolio/allocengine/internal/cache"
	"github.com/quantfolio/allocengine/internal/config"
	"github.com/quantfolio/allocengine/internal/engine"
	"github.com/quantfolio/allocengine/internal/handlers"
	"github.com/quantfolio/allocengine/internal/logger"
	"github.com/quantfolio/allocengine/internal/middleware"
	"github.com/quantfolio/allocengine/internal/monitoring"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(logger.Config{Level: cfg.App.LogLevel})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	metrics := monitoring.NewMetrics("allocengine")
	health := monitoring.NewHealthChecker()

	eng := engine.New(engine.Config{
		RiskFreeRate:       cfg.Engine.RiskFreeRate,
		DrawdownConfidence: cfg.Engine.DrawdownConfidence,
		MaxWeight:          cfg.Engine.MaxWeight,
	}, appLog)

	// The result cache is optional; without a Redis address every run
	// is computed fresh.
	var resultCache handlers.ResultCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		resultCache = cache.NewResultCache(client, cfg.Redis.TTL)
		health.RegisterCheck("redis", monitoring.RedisCheck(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		appLog.Infow("Result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}

	portfolioHandler := handlers.NewPortfolioHandler(eng, resultCache, metrics, appLog)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	router := mux.NewRouter()
	router.Use(middleware.Recovery(appLog))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(appLog))
	router.Use(rateLimiter.RateLimit)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	}).Handler)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.MaxBodySize(1 << 20))
	portfolioHandler.Register(api)

	router.Handle("/healthz", health.Handler()).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      metrics.Instrument("api", router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLog.Infow("Server starting", "port", cfg.App.Port, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalw("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLog.Fatalw("Server forced to shutdown", "error", err)
	}

	appLog.Info("Server stopped")
}
