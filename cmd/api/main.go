package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/veriflow/veriflow/internal/config"
	"github.com/veriflow/veriflow/internal/events"
	"github.com/veriflow/veriflow/internal/infra"
	"github.com/veriflow/veriflow/internal/logging"
	"github.com/veriflow/veriflow/internal/merchant"
	"github.com/veriflow/veriflow/internal/migrations"
	"github.com/veriflow/veriflow/internal/routes"
	"github.com/veriflow/veriflow/internal/server"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := migrations.Up(ctx, db); err != nil {
			logger.Error("run migrations", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	var directory merchant.Directory
	if db != nil {
		directory = merchant.NewPostgresDirectory(db)
	}
	profile, err := merchant.Resolve(ctx, directory, cfg.MerchantAPIKey, cfg.MerchantLabel, cfg.IsDevelopment())
	if err != nil {
		logger.Error("resolve merchant", "error", err)
		os.Exit(1)
	}
	logger.Info("merchant resolved", "label", profile.Label)

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers,
			[]string{events.TopicPurchaseDecided, events.TopicApprovalPush}, events.RetryConfig{Jitter: true}, logger)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("close kafka publisher", "error", err)
			}
		}()
		publisher = kafkaPublisher
	}

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Merchant: profile,
		Events:   publisher,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
