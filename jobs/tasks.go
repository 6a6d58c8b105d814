// Package jobs holds the background work: the low-stock scan, the nightly
// ledger integrity check and idempotency key cleanup, all running on Asynq.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan flags products at or below their minimum stock.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskLedgerIntegrity verifies entry balances and stock replay.
	TaskLedgerIntegrity = "ledger:integrity_check"
	// TaskIdempotencyCleanup prunes processed idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// NewLedgerIntegrityTask constructs the integrity check task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
