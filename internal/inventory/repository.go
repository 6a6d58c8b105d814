package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tindahan-erp/tindahan-erp/internal/platform/db"
)

// Repository persists products and their movement history.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the writes that must share one transaction.
type TxRepository interface {
	CreateProduct(ctx context.Context, product *Product) error
	UpdateProduct(ctx context.Context, product Product) error
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	InsertMovement(ctx context.Context, movement *StockMovement) error
	SetStock(ctx context.Context, productID, stock int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn inside one repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, repo TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const productColumns = `id, sku, name, stock, min_stock, cost_centavos, price_centavos, active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.MinStock, &p.Cost, &p.Price, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *Repository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	return scanProduct(row)
}

// ListProducts returns active products ordered by SKU.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE active ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

// ListLowStock returns active products at or below their minimum stock.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE active AND stock <= min_stock ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListMovements returns a product's movement history, oldest first so the
// caller can replay it.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]StockMovement, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, delta, reason, reference_id, resulting_stock, note, occurred_at, actor_id
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY id
		LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.Reason, &m.ReferenceID,
			&m.ResultingStock, &m.Note, &m.OccurredAt, &m.ActorID); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (t *txRepository) CreateProduct(ctx context.Context, product *Product) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO products (sku, name, stock, min_stock, cost_centavos, price_centavos, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, created_at, updated_at`,
		product.SKU, product.Name, product.Stock, product.MinStock, product.Cost, product.Price, product.Active,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: duplicate sku %s", ErrValidation, product.SKU)
	}
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateProduct(ctx context.Context, product Product) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products
		SET name = $2, min_stock = $3, cost_centavos = $4, price_centavos = $5, active = $6, updated_at = now()
		WHERE id = $1`,
		product.ID, product.Name, product.MinStock, product.Cost, product.Price, product.Active)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProductForUpdate locks the product row for the rest of the transaction.
func (t *txRepository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	return scanProduct(row)
}

func (t *txRepository) InsertMovement(ctx context.Context, movement *StockMovement) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (product_id, delta, reason, reference_id, resulting_stock, note, occurred_at, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		movement.ProductID, movement.Delta, movement.Reason, movement.ReferenceID,
		movement.ResultingStock, movement.Note, movement.OccurredAt, movement.ActorID,
	).Scan(&movement.ID)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (t *txRepository) SetStock(ctx context.Context, productID, stock int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, productID, stock)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
