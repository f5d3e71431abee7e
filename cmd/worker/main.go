package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/oakhaven-brewing/invoicer/internal/app"
	"github.com/oakhaven-brewing/invoicer/internal/books"
	"github.com/oakhaven-brewing/invoicer/internal/catalog"
	"github.com/oakhaven-brewing/invoicer/internal/platform/db"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	catalogRepo := catalog.NewRepository(pool)
	booksClient := books.NewClient(books.Config{
		BaseURL:  cfg.BooksBaseURL,
		Token:    cfg.BooksToken,
		TenantID: cfg.BooksTenantID,
		Timeout:  cfg.BooksTimeout,
	})

	productSync := jobs.NewProductSyncJob(catalogRepo, booksClient, logger)
	contactRefresh := jobs.NewContactRefreshJob(catalogRepo, booksClient, logger)

	productSyncTask, err := jobs.NewProductSyncTask(time.Now().UTC())
	if err != nil {
		logger.Error("build product sync task", slog.Any("error", err))
		os.Exit(1)
	}
	contactRefreshTask, err := jobs.NewContactRefreshTask(time.Now().UTC(), 24*time.Hour)
	if err != nil {
		logger.Error("build contact refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskProductSync, Handler: productSync.Handle},
			{Type: jobs.TaskContactRefresh, Handler: contactRefresh.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: productSyncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 5 * * *", Task: contactRefreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
