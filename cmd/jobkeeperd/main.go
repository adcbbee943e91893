// Command jobkeeperd runs the scheduler engine behind its embedding HTTP
// surface, adapted from the teacher's cmd/main.go composition root.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/minisource/jobkeeper/config"
	"github.com/minisource/jobkeeper/internal/clock"
	"github.com/minisource/jobkeeper/internal/database"
	"github.com/minisource/jobkeeper/internal/engine"
	"github.com/minisource/jobkeeper/internal/httpapi"
	"github.com/minisource/jobkeeper/internal/lock"
	"github.com/minisource/jobkeeper/internal/store/pgstore"
	"github.com/minisource/jobkeeper/pkg/logging"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.Default()

	db, err := database.NewPostgresConnection(&cfg.Postgres)
	if err != nil {
		log.Error("connect to postgres", err)
		os.Exit(1)
	}
	defer database.Close(db)

	store := pgstore.New(db)

	var leader engine.LeaderGate
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cancel()
			log.Error("connect to redis", err)
			os.Exit(1)
		}
		cancel()

		leader = lock.NewLeaderGate(redisClient, cfg.Engine.SchedulerID, time.Duration(cfg.Engine.LeaseMs)*time.Millisecond)
	}

	var globalRateLimit *engine.RateLimitConfig
	if cfg.Engine.GlobalRateLimit != nil {
		globalRateLimit = &engine.RateLimitConfig{
			Capacity:         cfg.Engine.GlobalRateLimit.Capacity,
			RefillRate:       cfg.Engine.GlobalRateLimit.RefillRate,
			RefillIntervalMs: cfg.Engine.GlobalRateLimit.RefillIntervalMs,
			Burst:            cfg.Engine.GlobalRateLimit.Burst,
		}
	}

	eng := engine.New(engine.Config{
		ID:                cfg.Engine.SchedulerID,
		Clock:             clock.New(),
		Logger:            log,
		Store:             store,
		Leader:            leader,
		PollInterval:      time.Duration(cfg.Engine.PollIntervalMs) * time.Millisecond,
		LeaseDuration:     time.Duration(cfg.Engine.LeaseMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.Engine.HeartbeatIntervalMs) * time.Millisecond,
		StalledAfter:      time.Duration(cfg.Engine.StalledAfterMs) * time.Millisecond,
		MisfireTolerance:  time.Duration(cfg.Engine.MisfireToleranceMs) * time.Millisecond,
		MaxMisfireSkip:    cfg.Engine.MaxMisfireSkip,
		MaxConcurrentRuns: cfg.Engine.MaxConcurrentRuns,
		GlobalRateLimit:   globalRateLimit,
	})

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		log.Error("start engine", err)
		os.Exit(1)
	}

	app := fiber.New(fiber.Config{
		AppName:      "jobkeeperd",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	httpapi.SetupRouter(app, httpapi.NewHandlers(eng, db, store))

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("starting jobkeeperd", logging.F("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Error("http server stopped", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down jobkeeperd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("http server shutdown", err)
	}

	if err := eng.Shutdown(context.Background(), engine.ShutdownOptions{Graceful: true, GraceMs: 5000}); err != nil {
		log.Error("engine shutdown", err)
	}
}
