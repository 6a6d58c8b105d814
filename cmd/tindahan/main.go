package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tindahan-erp/tindahan-erp/internal/app"
	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/accounts"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
	"github.com/tindahan-erp/tindahan-erp/internal/platform/cache"
	"github.com/tindahan-erp/tindahan-erp/internal/platform/db"
	"github.com/tindahan-erp/tindahan-erp/internal/postings"
	"github.com/tindahan-erp/tindahan-erp/internal/purchasing"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, entity locks disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	var locker *shared.EntityLocker
	if redisClient != nil {
		locker = shared.NewEntityLocker(redisClient, cfg.LockTTL)
	}

	accountsRepo := accounts.NewRepository(pool)
	registry := accounts.NewRegistry(accountsRepo)
	if err := registry.Reload(ctx); err != nil {
		logger.Warn("account registry empty at startup", slog.Any("error", err))
	}
	accountsService := accounts.NewService(accountsRepo, registry, auditLogger)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	journalRepo := journal.NewRepository(pool)
	journalService := journal.NewService(journalRepo, auditLogger)
	journalHandler := journal.NewHandler(journalService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger)
	inventoryHandler := inventory.NewHandler(inventoryService)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, auditLogger)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	postingsRepo := postings.NewRepository(pool)
	postingsService := postings.NewService(postingsRepo, registry, locker, idempotencyStore, auditLogger,
		postings.Config{
			VATRateBasisPoints: cfg.VATRateBasisPoints,
			AllowNegativeStock: cfg.AllowNegativeStock,
		}, logger)
	postingsHandler := postings.NewHandler(postingsService, postingsRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountsHandler:   accountsHandler,
		JournalHandler:    journalHandler,
		InventoryHandler:  inventoryHandler,
		PurchasingHandler: purchasingHandler,
		PostingsHandler:   postingsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		// Keep the role index fresh so a chart edit made through another
		// instance is picked up without a restart.
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if err := registry.Reload(groupCtx); err != nil {
					logger.Warn("account registry reload", slog.Any("error", err))
				}
			}
		}
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
