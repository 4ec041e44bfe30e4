package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"byedebt/internal/config"
	"byedebt/internal/currency"
	"byedebt/internal/feed"
	"byedebt/internal/ledger"
	applog "byedebt/internal/log"
	"byedebt/internal/rates"
	"byedebt/internal/refresh"
	"byedebt/internal/storage"
)

// byedebt-worker keeps aggregation warm out of process: it consumes change
// events from the shared AMQP exchange and recomputes snapshots, so API
// instances that restart find a recent rate table and preference state.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting byedebt-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.FeedBackend != "amqp" {
		logger.Error("Worker requires the amqp feed backend", "feed_backend", cfg.FeedBackend)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpFeed, err := feed.NewAMQPFeed(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Error("Failed to initialize AMQP feed", "error", err)
		os.Exit(1)
	}
	defer amqpFeed.Close()

	ratesCache := rates.NewCache(
		rates.NewHTTPSource(cfg.RatesBaseURL, cfg.RatesTimeout),
		repo.Preferences(),
	)
	ratesCache.SetTTL(cfg.RatesTTL)

	currencies := currency.NewService(ratesCache, repo.Preferences())
	aggregator := ledger.New(currencies)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator := refresh.NewCoordinator(repo, amqpFeed, aggregator, refresh.Config{
		OwnerID:  cfg.DefaultOwnerID,
		UserName: cfg.DefaultOwnerName,
		Display: func(ctx context.Context) string {
			return currencies.Preferred(ctx).Code
		},
		Publish: func(snap refresh.Snapshot) {
			slog.Info("Recomputed ledger snapshot",
				"net", snap.Totals.Net().String(),
				"currency", snap.Totals.Currency,
				"persons", len(snap.Persons),
				"overdue", snap.Insights.Overdue)
		},
	})
	if err := coordinator.Start(ctx); err != nil {
		logger.Error("Failed to start refresh coordinator", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	coordinator.Stop()

	// Give an in-flight refresh a moment to discard its result.
	time.Sleep(time.Second)
	logger.Info("Worker shutdown complete")
}
