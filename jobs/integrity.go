package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

// BalanceChecker is the slice of the journal service the check needs.
type BalanceChecker interface {
	VerifyBalances(ctx context.Context) (journal.BalanceReport, error)
}

// ReplayChecker is the slice of the inventory service the check needs.
type ReplayChecker interface {
	ListProducts(ctx context.Context) ([]inventory.Product, error)
	VerifyReplay(ctx context.Context, productID int64) (inventory.ReplayReport, error)
}

// RunLedgerIntegrityCheck sweeps both ledgers: the posted book must balance
// entry by entry, and every product's movement history must replay to its
// recorded stock. Defects are logged as errors, never auto-fixed; a
// correction is a human posting a reversal or an adjustment.
func RunLedgerIntegrityCheck(ctx context.Context, balances BalanceChecker, replays ReplayChecker, logger *slog.Logger) error {
	report, err := shared.RetryRead(ctx, 3, 250*time.Millisecond, balances.VerifyBalances)
	if err != nil {
		return fmt.Errorf("jobs: verify balances: %w", err)
	}
	if !report.Balanced {
		logger.Error("journal out of balance",
			slog.String("job", "ledger_integrity"),
			slog.Int64("debits", int64(report.Totals.Debits)),
			slog.Int64("credits", int64(report.Totals.Credits)),
			slog.Any("unbalanced_entries", report.Unbalanced))
	}

	products, err := shared.RetryRead(ctx, 3, 250*time.Millisecond, replays.ListProducts)
	if err != nil {
		return fmt.Errorf("jobs: list products: %w", err)
	}
	defects := 0
	for _, product := range products {
		replay, err := replays.VerifyReplay(ctx, product.ID)
		if err != nil {
			return fmt.Errorf("jobs: replay product %d: %w", product.ID, err)
		}
		if !replay.Consistent {
			defects++
			logger.Error("stock replay mismatch",
				slog.String("job", "ledger_integrity"),
				slog.String("sku", product.SKU),
				slog.Int64("recorded", replay.RecordedStock),
				slog.Int64("replayed", replay.ReplayedStock))
		}
	}
	logger.Info("ledger integrity check finished",
		slog.String("job", "ledger_integrity"),
		slog.Bool("journal_balanced", report.Balanced),
		slog.Int("products_checked", len(products)),
		slog.Int("replay_defects", defects))
	return nil
}
