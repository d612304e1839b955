package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"collegeattend/internal/attendance"
	"collegeattend/internal/config"
	"collegeattend/internal/logging"
	"collegeattend/internal/store"
)

// Worker consumes attendance.marked events and repairs session counters that drifted from
// their records.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" || cfg.StoreBackend != "postgres" {
		logging.Fatal().
			Str("queue", cfg.QueueBackend).
			Str("store", cfg.StoreBackend).
			Msg("worker shares state with the api; it needs QUEUE_BACKEND=redis and STORE_BACKEND=postgres")
	}
	docs, err := store.OpenDocuments(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("store init failed")
	}
	defer func() { _ = docs.Close() }()

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		logging.Fatal().Err(err).Msg("redis init failed")
	}
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		logging.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet; consumer will keep retrying")
	}
	q, err := store.OpenQueue(cfg, redisClient)
	if err != nil {
		logging.Fatal().Err(err).Msg("queue init failed")
	}

	svc := attendance.NewService(docs, attendance.Options{
		Limits: attendance.Limits{DefaultMinutes: cfg.DefaultMinutes, MaxMinutes: cfg.MaxMinutes},
	})

	messages, err := q.Consume(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("queue consume init failed")
	}

	logging.Info().Str("queue", cfg.QueueKey).Msg("worker started, waiting for messages")
	svc.Drain(ctx, messages)
	logging.Info().Msg("worker stopped")
}
