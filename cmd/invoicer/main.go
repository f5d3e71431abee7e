package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/oakhaven-brewing/invoicer/internal/app"
	"github.com/oakhaven-brewing/invoicer/internal/billing"
	"github.com/oakhaven-brewing/invoicer/internal/books"
	"github.com/oakhaven-brewing/invoicer/internal/catalog"
	"github.com/oakhaven-brewing/invoicer/internal/observability"
	"github.com/oakhaven-brewing/invoicer/internal/parse"
	"github.com/oakhaven-brewing/invoicer/internal/platform/cache"
	"github.com/oakhaven-brewing/invoicer/internal/platform/db"
	"github.com/oakhaven-brewing/invoicer/internal/pricing"
	"github.com/oakhaven-brewing/invoicer/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// The contact directory degrades to uncached lookups without Redis.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, contact search cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	booksClient := books.NewClient(books.Config{
		BaseURL:  cfg.BooksBaseURL,
		Token:    cfg.BooksToken,
		TenantID: cfg.BooksTenantID,
		Timeout:  cfg.BooksTimeout,
	})
	directory := books.NewDirectory(booksClient, redisClient, cfg.ContactSearchTTL)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, booksClient)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	parser := parse.NewParser(catalogRepo)
	evaluator := pricing.NewEvaluator(pricing.Config{
		VATMultiplier: cfg.VAT(),
		Strict:        cfg.StrictPricing,
	})
	billingService := billing.NewService(catalogRepo, parser, evaluator, booksClient, billing.Config{
		VATMultiplier:  cfg.VAT(),
		DefaultAccount: cfg.DefaultAccount,
		SwapAccount:    cfg.SwapAccount,
		BillAccount:    cfg.BillAccount,
	}, logger)
	billingHandler := billing.NewHandler(logger, billingService, directory, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalogHandler,
		BillingHandler: billingHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
