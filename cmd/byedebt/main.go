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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"byedebt/internal/config"
	"byedebt/internal/currency"
	"byedebt/internal/feed"
	apphttp "byedebt/internal/http"
	"byedebt/internal/ledger"
	applog "byedebt/internal/log"
	"byedebt/internal/rates"
	"byedebt/internal/refresh"
	"byedebt/internal/services"
	"byedebt/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Choose change feed backend (default: in-process bus).
	var bus feed.Feed
	switch cfg.FeedBackend {
	case "amqp":
		amqpFeed, err := feed.NewAMQPFeed(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("Failed to initialize AMQP feed", "error", err)
			os.Exit(1)
		}
		defer amqpFeed.Close()
		bus = amqpFeed
		logger.Info("Initialized AMQP change feed", "exchange", cfg.AMQPExchange)
	default:
		bus = feed.NewBus()
		logger.Info("Initialized in-memory change feed")
	}

	ratesCache := rates.NewCache(
		rates.NewHTTPSource(cfg.RatesBaseURL, cfg.RatesTimeout),
		repo.Preferences(),
	)
	ratesCache.SetTTL(cfg.RatesTTL)

	currencies := currency.NewService(ratesCache, repo.Preferences())
	aggregator := ledger.New(currencies)
	ledgerSvc := services.NewLedgerService(repo, bus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator := refresh.NewCoordinator(repo, bus, aggregator, refresh.Config{
		OwnerID:  cfg.DefaultOwnerID,
		UserName: cfg.DefaultOwnerName,
		Display: func(ctx context.Context) string {
			return currencies.Preferred(ctx).Code
		},
		Publish: func(snap refresh.Snapshot) {
			slog.Debug("Ledger snapshot published",
				"net", snap.Totals.Net().String(),
				"persons", len(snap.Persons),
				"computed_at", snap.ComputedAt)
		},
	})
	if err := coordinator.Start(ctx); err != nil {
		logger.Error("Failed to start refresh coordinator", "error", err)
		os.Exit(1)
	}
	defer coordinator.Stop()

	srv := apphttp.NewServer(apphttp.Config{
		Addr:             ":" + cfg.Port,
		DefaultOwnerID:   cfg.DefaultOwnerID,
		DefaultOwnerName: cfg.DefaultOwnerName,
	}, ledgerSvc, currencies, aggregator, coordinator)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting byedebt server", "port", cfg.Port, "feed_backend", cfg.FeedBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
