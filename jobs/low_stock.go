package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

// LowStockLister is the slice of the inventory service the scan needs.
type LowStockLister interface {
	ListLowStock(ctx context.Context) ([]inventory.Product, error)
}

// RunLowStockScan logs every active product at or below its minimum stock.
// It never mutates anything; reordering stays a human decision.
func RunLowStockScan(ctx context.Context, lister LowStockLister, logger *slog.Logger) error {
	products, err := shared.RetryRead(ctx, 3, 250*time.Millisecond, lister.ListLowStock)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		logger.Info("low stock scan clean", slog.String("job", "low_stock_scan"))
		return nil
	}
	for _, product := range products {
		logger.Warn("product at or below minimum stock",
			slog.String("job", "low_stock_scan"),
			slog.String("sku", product.SKU),
			slog.Int64("stock", product.Stock),
			slog.Int64("min_stock", product.MinStock))
	}
	return nil
}
