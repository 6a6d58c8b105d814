package postings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
	"github.com/tindahan-erp/tindahan-erp/internal/platform/db"
	"github.com/tindahan-erp/tindahan-erp/internal/purchasing"
	"github.com/tindahan-erp/tindahan-erp/internal/sales"
)

// RepositoryPort describes the storage the coordinator needs.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository spans every table a coordinated write touches. Having one
// transaction-scoped port, instead of composing the per-module repositories,
// is what lets a sale commit its stock, document and posting atomically.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (inventory.Product, error)
	InsertStockMovement(ctx context.Context, movement *inventory.StockMovement) error
	SetProductStock(ctx context.Context, productID, stock int64) error
	InsertSale(ctx context.Context, sale *sales.Sale) error
	InsertJournalEntry(ctx context.Context, entry *journal.Entry) error
	LinkJournalSource(ctx context.Context, sourceType, sourceID string, entryID int64) error
	GetPurchaseOrderForUpdate(ctx context.Context, id int64) (purchasing.PurchaseOrder, error)
	UpdatePurchaseOrderReceipt(ctx context.Context, poID int64, plan purchasing.ReceiptPlan) error
}

// Repository is the pgx implementation.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetSale loads one sale with items, for the read side.
func (r *Repository) GetSale(ctx context.Context, id int64) (sales.Sale, error) {
	var sale sales.Sale
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, reference, payment_method, subtotal_centavos, tax_centavos,
		       discount_centavos, total_centavos, created_by, created_at
		FROM sales WHERE id = $1`, id,
	).Scan(&sale.ID, &sale.Number, &sale.Reference, &sale.PaymentMethod, &sale.Subtotal,
		&sale.Tax, &sale.Discount, &sale.Total, &sale.CreatedBy, &sale.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sales.Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return sales.Sale{}, fmt.Errorf("get sale: %w", err)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity, unit_price_centavos, unit_cost_centavos
		FROM sale_items WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return sales.Sale{}, fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item sales.Item
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &item.UnitCost); err != nil {
			return sales.Sale{}, fmt.Errorf("scan sale item: %w", err)
		}
		sale.Items = append(sale.Items, item)
	}
	return sale, rows.Err()
}

// ListSales returns sales newest first, without items.
func (r *Repository) ListSales(ctx context.Context, limit int) ([]sales.Sale, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, reference, payment_method, subtotal_centavos, tax_centavos,
		       discount_centavos, total_centavos, created_by, created_at
		FROM sales ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var out []sales.Sale
	for rows.Next() {
		var sale sales.Sale
		if err := rows.Scan(&sale.ID, &sale.Number, &sale.Reference, &sale.PaymentMethod, &sale.Subtotal,
			&sale.Tax, &sale.Discount, &sale.Total, &sale.CreatedBy, &sale.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, sale)
	}
	return out, rows.Err()
}

// ErrSaleNotFound indicates a missing sale.
var ErrSaleNotFound = errors.New("postings: sale not found")

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetProductForUpdate(ctx context.Context, id int64) (inventory.Product, error) {
	var p inventory.Product
	err := t.tx.QueryRow(ctx, `
		SELECT id, sku, name, stock, min_stock, cost_centavos, price_centavos, active, created_at, updated_at
		FROM products WHERE id = $1 FOR UPDATE`, id,
	).Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.MinStock, &p.Cost, &p.Price, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Product{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Product{}, fmt.Errorf("get product for update: %w", err)
	}
	return p, nil
}

func (t *txRepository) InsertStockMovement(ctx context.Context, movement *inventory.StockMovement) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (product_id, delta, reason, reference_id, resulting_stock, note, occurred_at, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		movement.ProductID, movement.Delta, movement.Reason, movement.ReferenceID,
		movement.ResultingStock, movement.Note, movement.OccurredAt, movement.ActorID,
	).Scan(&movement.ID)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func (t *txRepository) SetProductStock(ctx context.Context, productID, stock int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, productID, stock)
	if err != nil {
		return fmt.Errorf("set product stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (t *txRepository) InsertSale(ctx context.Context, sale *sales.Sale) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (number, reference, payment_method, subtotal_centavos, tax_centavos,
		                   discount_centavos, total_centavos, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		sale.Number, sale.Reference, sale.PaymentMethod, sale.Subtotal, sale.Tax,
		sale.Discount, sale.Total, sale.CreatedBy, sale.CreatedAt,
	).Scan(&sale.ID)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	for _, item := range sale.Items {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price_centavos, unit_cost_centavos)
			VALUES ($1, $2, $3, $4, $5)`,
			sale.ID, item.ProductID, item.Quantity, item.UnitPrice, item.UnitCost)
		if err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}
	return nil
}

func (t *txRepository) InsertJournalEntry(ctx context.Context, entry *journal.Entry) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO journal_entries (number, entry_date, memo, status, source_type, source_id, posted_by, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		entry.Number, entry.Date, entry.Memo, entry.Status, entry.SourceType, entry.SourceID,
		entry.PostedBy, entry.PostedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.EntryID = entry.ID
		err := t.tx.QueryRow(ctx, `
			INSERT INTO journal_lines (entry_id, account_id, debit_centavos, credit_centavos, memo)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			line.EntryID, line.AccountID, line.Debit, line.Credit, line.Memo,
		).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("insert journal line: %w", err)
		}
	}
	return nil
}

func (t *txRepository) LinkJournalSource(ctx context.Context, sourceType, sourceID string, entryID int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO journal_sources (source_type, source_id, entry_id)
		VALUES ($1, $2, $3)`,
		sourceType, sourceID, entryID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s %s", journal.ErrSourceAlreadyLinked, sourceType, sourceID)
	}
	if err != nil {
		return fmt.Errorf("link journal source: %w", err)
	}
	return nil
}

func (t *txRepository) GetPurchaseOrderForUpdate(ctx context.Context, id int64) (purchasing.PurchaseOrder, error) {
	var po purchasing.PurchaseOrder
	err := t.tx.QueryRow(ctx, `
		SELECT id, number, supplier_id, status, note, received_date, created_by, created_at, updated_at
		FROM purchase_orders WHERE id = $1 FOR UPDATE`, id,
	).Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.Note, &po.ReceivedDate,
		&po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return purchasing.PurchaseOrder{}, purchasing.ErrNotFound
	}
	if err != nil {
		return purchasing.PurchaseOrder{}, fmt.Errorf("get purchase order for update: %w", err)
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, product_id, quantity_ordered, quantity_received, unit_cost_centavos
		FROM purchase_order_items WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return purchasing.PurchaseOrder{}, fmt.Errorf("list purchase order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item purchasing.Item
		if err := rows.Scan(&item.ID, &item.ProductID, &item.QuantityOrdered, &item.QuantityReceived, &item.UnitCost); err != nil {
			return purchasing.PurchaseOrder{}, fmt.Errorf("scan purchase order item: %w", err)
		}
		po.Items = append(po.Items, item)
	}
	return po, rows.Err()
}

func (t *txRepository) UpdatePurchaseOrderReceipt(ctx context.Context, poID int64, plan purchasing.ReceiptPlan) error {
	for _, line := range plan.Lines {
		tag, err := t.tx.Exec(ctx, `
			UPDATE purchase_order_items SET quantity_received = $3
			WHERE po_id = $1 AND product_id = $2`,
			poID, line.ProductID, line.CumulativeReceived)
		if err != nil {
			return fmt.Errorf("update received quantity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: product %d", purchasing.ErrUnknownItem, line.ProductID)
		}
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_orders SET status = $2, received_date = $3, updated_at = now()
		WHERE id = $1`,
		poID, plan.NextStatus, plan.ReceivedDate)
	if err != nil {
		return fmt.Errorf("update purchase order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return purchasing.ErrNotFound
	}
	return nil
}
