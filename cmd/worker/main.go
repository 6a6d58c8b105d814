package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/tindahan-erp/tindahan-erp/internal/app"
	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
	"github.com/tindahan-erp/tindahan-erp/internal/platform/db"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
	"github.com/tindahan-erp/tindahan-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	journalService := journal.NewService(journal.NewRepository(pool), nil)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), nil)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Deps: jobs.Deps{
			Logger:       logger,
			LowStock:     inventoryService,
			Balances:     journalService,
			Replays:      inventoryService,
			Keys:         idempotencyStore,
			KeyRetention: cfg.IdempotencyRetention,
		},
		Cron: jobs.DefaultCron(),
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
