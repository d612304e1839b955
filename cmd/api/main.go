package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collegeattend/internal/api"
	"collegeattend/internal/attendance"
	"collegeattend/internal/auth"
	"collegeattend/internal/config"
	"collegeattend/internal/docstore"
	"collegeattend/internal/httpmiddleware"
	"collegeattend/internal/logging"
	"collegeattend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logging.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	docs, err := store.OpenDocuments(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = docs.Close() }()

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" {
		if redisClient, err = store.NewRedis(cfg.RedisAddr); err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
	}
	q, err := store.OpenQueue(cfg, redisClient)
	if err != nil {
		return err
	}

	svc := attendance.NewService(docs, attendance.Options{
		Limits: attendance.Limits{DefaultMinutes: cfg.DefaultMinutes, MaxMinutes: cfg.MaxMinutes},
		Events: q,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Without a shared broker nothing else drains the in-process queue.
	if cfg.QueueBackend == "memory" {
		messages, err := q.Consume(ctx)
		if err != nil {
			return err
		}
		go svc.Drain(ctx, messages)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog("/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: !containsWildcard(cfg.CORSOrigins),
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		_, err := docs.Get(ctx, attendance.CollSessions, "healthz")
		storeHealthy := err == nil || errors.Is(err, docstore.ErrNotFound)
		queueHealthy := cfg.QueueBackend == "memory" || redisClient.Healthy(ctx)
		status := http.StatusOK
		if !storeHealthy || !queueHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "store": storeHealthy, "queue": queueHealthy})
	})

	api.NewHandler(svc).Register(r, auth.Authenticate(cfg.JWTSigningKey, cfg.JWTIssuer))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Str("queue", cfg.QueueBackend).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logging.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
