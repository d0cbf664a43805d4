// Command server runs the Chessica backend: session engine, analyzer
// gateway, matchmaking, and the HTTP/websocket boundary.
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

	"github.com/jcai27/Chessica/internal/api"
	"github.com/jcai27/Chessica/internal/coach"
	"github.com/jcai27/Chessica/internal/config"
	"github.com/jcai27/Chessica/internal/engine"
	"github.com/jcai27/Chessica/internal/matchmaking"
	"github.com/jcai27/Chessica/internal/metrics"
	"github.com/jcai27/Chessica/internal/session"
	"github.com/jcai27/Chessica/internal/store"
	"github.com/jcai27/Chessica/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	db, driver, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.Migrate(context.Background(), db, driver); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	var (
		cache   store.Cache       = store.NewMemoryCache()
		mmStore matchmaking.Store = matchmaking.NewMemoryStore()
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, using in-process cache and queue", "error", err)
		} else {
			cache = store.NewRedisCache(client)
			mmStore = matchmaking.NewRedisStore(client)
			defer client.Close()
		}
	}

	m := metrics.New()
	gateway := engine.NewGateway(cfg.StockfishPath, cfg.EngineMoveTimeLimit,
		engine.WithSearchObserver(m.EngineSearchObserver()))
	defer gateway.Close()

	hub := stream.NewHub(logger)
	events := &countingSink{hub: hub, metrics: m}

	repo := store.NewSessionStore(db, driver, cache, logger)
	telemetry := store.NewTelemetryStore(db, driver, logger)
	users := store.NewUserStore(db, driver)

	var summarizer coach.Summarizer
	if cfg.CoachLLMURL != "" {
		summarizer = coach.NewHTTPSummarizer(cfg.CoachLLMURL, cfg.CoachLLMAPIKey, cfg.CoachLLMModel)
	}
	coachSvc := coach.NewService(summarizer, logger)
	limiter := coach.NewLimiter(cfg.CoachRateLimitWindow, cfg.CoachRateLimitMax)

	sessions := session.NewService(repo, gateway, events, telemetry, coachSvc, limiter, users,
		cfg.EngineDefaultDepth, logger)
	mm := matchmaking.NewService(mmStore, sessions, logger)

	server := api.NewServer(api.Deps{
		Config:      cfg,
		Sessions:    sessions,
		Matchmaking: mm,
		Hub:         hub,
		Telemetry:   telemetry,
		Users:       users,
		Metrics:     m,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "api_prefix", cfg.APIPrefix)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// countingSink forwards events to the hub and counts them.
type countingSink struct {
	hub     *stream.Hub
	metrics *metrics.Metrics
}

func (c *countingSink) Publish(sessionID, eventType string, payload any) {
	c.metrics.EventEmitted(eventType)
	c.hub.Publish(sessionID, eventType, payload)
}
