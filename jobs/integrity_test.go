package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
)

type fakeBalances struct {
	report journal.BalanceReport
}

func (f fakeBalances) VerifyBalances(context.Context) (journal.BalanceReport, error) {
	return f.report, nil
}

type fakeReplays struct {
	products []inventory.Product
	reports  map[int64]inventory.ReplayReport
}

func (f fakeReplays) ListProducts(context.Context) ([]inventory.Product, error) {
	return f.products, nil
}

func (f fakeReplays) VerifyReplay(_ context.Context, productID int64) (inventory.ReplayReport, error) {
	return f.reports[productID], nil
}

func TestRunLedgerIntegrityCheck(t *testing.T) {
	balances := fakeBalances{report: journal.BalanceReport{
		Totals:   journal.BalanceTotals{Debits: 44800, Credits: 44800, Entries: 1},
		Balanced: true,
	}}
	replays := fakeReplays{
		products: []inventory.Product{{ID: 1, SKU: "A"}, {ID: 2, SKU: "B"}},
		reports: map[int64]inventory.ReplayReport{
			1: {ProductID: 1, Consistent: true},
			2: {ProductID: 2, Consistent: false, RecordedStock: 5, ReplayedStock: 7},
		},
	}

	err := RunLedgerIntegrityCheck(context.Background(), balances, replays, slog.Default())
	require.NoError(t, err)
}

type fakeLowStock struct {
	products []inventory.Product
}

func (f fakeLowStock) ListLowStock(context.Context) ([]inventory.Product, error) {
	return f.products, nil
}

func TestRunLowStockScan(t *testing.T) {
	err := RunLowStockScan(context.Background(), fakeLowStock{
		products: []inventory.Product{{ID: 1, SKU: "A", Stock: 2, MinStock: 5}},
	}, slog.Default())
	require.NoError(t, err)
}

type fakeCleaner struct {
	removed   int64
	retention time.Duration
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return f.removed, nil
}

func TestRunIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{removed: 3}
	err := RunIdempotencyCleanup(context.Background(), cleaner, 0, slog.Default())
	require.NoError(t, err)
	require.Equal(t, 30*24*time.Hour, cleaner.retention)
}
