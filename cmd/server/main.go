package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/application/receivables"
	"github.com/ledgerlens/backend/internal/domain/aging"
	"github.com/ledgerlens/backend/internal/infrastructure/cache"
	"github.com/ledgerlens/backend/internal/infrastructure/config"
	"github.com/ledgerlens/backend/internal/infrastructure/logger"
	"github.com/ledgerlens/backend/internal/infrastructure/tally"
	"github.com/ledgerlens/backend/internal/interfaces/http/handler"
	"github.com/ledgerlens/backend/internal/interfaces/http/middleware"
	"github.com/ledgerlens/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting LedgerLens Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Second cache tier is optional; without Redis the in-process tier
	// stands alone.
	var l2 cache.Store
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, "shared", cfg.Cache.TTL)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		l2 = redisStore
		log.Info("Redis cache tier connected", zap.String("addr", cfg.Redis.Addr()))
	}

	resultCache := cache.NewTieredCache(
		cache.NewMemoryStore(),
		l2,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(log.Named("cache")),
	)

	// Upstream accounting system gateway
	client, err := tally.NewClient(tally.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
	}, tally.WithClientLogger(log.Named("tally")))
	if err != nil {
		log.Fatal("Failed to create upstream client", zap.Error(err))
	}

	buckets := bucketsFromConfig(cfg.Aging)
	if err := buckets.Validate(); err != nil {
		log.Fatal("Invalid aging bucket configuration", zap.Error(err))
	}

	svc := receivables.NewService(client, resultCache, buckets,
		receivables.WithServiceLogger(log.Named("receivables")))

	// HTTP engine and middleware stack
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxy configuration", zap.Error(err))
		}
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.SessionID(),
		logger.GinMiddleware(log),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	// Routes
	router.NewRouter(engine).
		Register(handler.NewReceivablesHandler(svc, log.Named("http"))).
		Register(handler.NewSystemHandler(svc)).
		Setup()

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// bucketsFromConfig converts configured bucket specs, falling back to the
// built-in ladder when none are configured.
func bucketsFromConfig(cfg config.AgingConfig) aging.BucketConfig {
	if len(cfg.Buckets) == 0 {
		return aging.DefaultBuckets()
	}
	out := make(aging.BucketConfig, len(cfg.Buckets))
	for i, b := range cfg.Buckets {
		out[i] = aging.Bucket{Label: b.Label, MaxDays: b.MaxDays, Color: b.Color}
	}
	return out
}
