package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertItem(ctx context.Context, poID int64, item Item) error
	UpdateStatus(ctx context.Context, poID int64, status Status) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const poColumns = `id, number, supplier_id, status, note, received_date, created_by, created_at, updated_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var receivedDate *time.Time
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.Note, &receivedDate, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	po.ReceivedDate = receivedDate
	return po, err
}

// Get loads a purchase order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, err := r.loadItems(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = items
	return po, nil
}

func (r *Repository) loadItems(ctx context.Context, poID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, quantity_ordered, quantity_received, unit_cost FROM purchase_order_items WHERE po_id=$1 ORDER BY id ASC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.ProductID, &item.QuantityOrdered, &item.QuantityReceived, &item.UnitCost); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListFilters narrows List results.
type ListFilters struct {
	Status     Status
	SupplierID int64
	Limit      int
	Offset     int
}

// List returns purchase orders ordered by creation, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]PurchaseOrder, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+poColumns+` FROM purchase_orders
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR supplier_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`,
		string(filters.Status), filters.SupplierID, limit, filters.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	return orders, rows.Err()
}

func (t *txRepository) CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO purchase_orders (number, supplier_id, status, note, created_by) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		po.Number, po.SupplierID, po.Status, po.Note, po.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) InsertItem(ctx context.Context, poID int64, item Item) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO purchase_order_items (po_id, product_id, quantity_ordered, quantity_received, unit_cost) VALUES ($1, $2, $3, 0, $4)`,
		poID, item.ProductID, item.QuantityOrdered, item.UnitCost)
	return err
}

func (t *txRepository) UpdateStatus(ctx context.Context, poID int64, status Status) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE purchase_orders SET status=$2, updated_at=NOW() WHERE id=$1`, poID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
