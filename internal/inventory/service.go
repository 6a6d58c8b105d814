package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

// RepositoryPort is what the service needs from storage.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductBySKU(ctx context.Context, sku string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListLowStock(ctx context.Context) ([]Product, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]StockMovement, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, repo TxRepository) error) error
}

// AuditPort records who changed what.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the product catalogue and the movement history reads. Stock
// changes driven by sales and receipts run through the posting coordinator;
// this service only applies standalone manual adjustments.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateProductInput carries a new catalogue entry.
type CreateProductInput struct {
	SKU      string          `json:"sku" validate:"required,max=64"`
	Name     string          `json:"name" validate:"required,max=255"`
	Stock    int64           `json:"stock" validate:"gte=0"`
	MinStock int64           `json:"min_stock" validate:"gte=0"`
	Cost     ledger.Centavos `json:"cost" validate:"gte=0"`
	Price    ledger.Centavos `json:"price" validate:"gte=0"`
}

func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (Product, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if in.SKU == "" || in.Name == "" {
		return Product{}, fmt.Errorf("%w: sku and name are required", ErrValidation)
	}
	product := Product{
		SKU:      in.SKU,
		Name:     in.Name,
		Stock:    in.Stock,
		MinStock: in.MinStock,
		Cost:     in.Cost,
		Price:    in.Price,
		Active:   true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		if err := repo.CreateProduct(ctx, &product); err != nil {
			return err
		}
		if product.Stock != 0 {
			// Opening stock is recorded as an adjustment so replay from
			// zero still reconciles.
			movement := StockMovement{
				ProductID:      product.ID,
				Delta:          product.Stock,
				Reason:         ReasonAdjustment,
				ReferenceID:    fmt.Sprintf("opening:%s", product.SKU),
				ResultingStock: product.Stock,
				Note:           "opening stock",
				OccurredAt:     s.now().UTC(),
				ActorID:        shared.ActorFromContext(ctx),
			}
			return repo.InsertMovement(ctx, &movement)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, "product.create", product.ID, map[string]any{"sku": product.SKU})
	return product, nil
}

// UpdateProductInput changes catalogue fields only; stock is untouched.
type UpdateProductInput struct {
	Name     string          `json:"name" validate:"required,max=255"`
	MinStock int64           `json:"min_stock" validate:"gte=0"`
	Cost     ledger.Centavos `json:"cost" validate:"gte=0"`
	Price    ledger.Centavos `json:"price" validate:"gte=0"`
	Active   *bool           `json:"active"`
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, in UpdateProductInput) (Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	product.Name = strings.TrimSpace(in.Name)
	product.MinStock = in.MinStock
	product.Cost = in.Cost
	product.Price = in.Price
	if in.Active != nil {
		product.Active = *in.Active
	}
	if product.Name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		return repo.UpdateProduct(ctx, product)
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, "product.update", product.ID, map[string]any{"sku": product.SKU})
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListLowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *Service) ListMovements(ctx context.Context, productID int64, limit int) ([]StockMovement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

// ReplayReport compares a product's recorded stock with a replay of its
// movement history.
type ReplayReport struct {
	ProductID     int64 `json:"product_id"`
	RecordedStock int64 `json:"recorded_stock"`
	ReplayedStock int64 `json:"replayed_stock"`
	Consistent    bool  `json:"consistent"`
	Movements     int   `json:"movements"`
}

// VerifyReplay folds the full movement history and checks it lands on the
// product's recorded stock.
func (s *Service) VerifyReplay(ctx context.Context, productID int64) (ReplayReport, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return ReplayReport{}, err
	}
	movements, err := s.repo.ListMovements(ctx, productID, 0)
	if err != nil {
		return ReplayReport{}, err
	}
	replayed, err := Replay(movements)
	report := ReplayReport{
		ProductID:     productID,
		RecordedStock: product.Stock,
		ReplayedStock: replayed,
		Consistent:    err == nil && replayed == product.Stock,
		Movements:     len(movements),
	}
	if !report.Consistent {
		slog.Warn("stock replay mismatch",
			"product_id", productID,
			"recorded", report.RecordedStock,
			"replayed", report.ReplayedStock)
	}
	return report, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}
