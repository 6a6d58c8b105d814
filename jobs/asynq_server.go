package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Deps collects the services the built-in tasks run against.
type Deps struct {
	Logger       *slog.Logger
	LowStock     LowStockLister
	Balances     BalanceChecker
	Replays      ReplayChecker
	Keys         KeyCleaner
	KeyRetention time.Duration
}

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Deps      Deps
	Cron      []CronRegistration
}

// DefaultCron is the standard schedule: low-stock hourly, integrity nightly,
// cleanup daily.
func DefaultCron() []CronRegistration {
	return []CronRegistration{
		{Spec: "0 * * * *", Task: NewLowStockScanTask()},
		{Spec: "30 2 * * *", Task: NewLedgerIntegrityTask()},
		{Spec: "0 3 * * *", Task: NewIdempotencyCleanupTask()},
	}
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	deps := cfg.Deps
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskLowStockScan, func(ctx context.Context, _ *asynq.Task) error {
		return RunLowStockScan(ctx, deps.LowStock, deps.Logger)
	})
	mux.HandleFunc(TaskLedgerIntegrity, func(ctx context.Context, _ *asynq.Task) error {
		return RunLedgerIntegrityCheck(ctx, deps.Balances, deps.Replays, deps.Logger)
	})
	mux.HandleFunc(TaskIdempotencyCleanup, func(ctx context.Context, _ *asynq.Task) error {
		return RunIdempotencyCleanup(ctx, deps.Keys, deps.KeyRetention, deps.Logger)
	})

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// Enqueue submits a prepared task to the default queue.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
