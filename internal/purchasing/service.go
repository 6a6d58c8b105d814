package purchasing

import (
	"context"
	"fmt"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PurchaseOrder, error)
	List(ctx context.Context, filters ListFilters) ([]PurchaseOrder, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the administrative purchase order lifecycle: draft,
// approval, dispatch, cancellation. Receiving goods belongs to the postings
// coordinator, which owns every stock and journal mutation.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	Number     string
	SupplierID int64
	Note       string
	CreatedBy  int64
	Items      []CreateItemInput
}

// CreateItemInput describes one ordered line.
type CreateItemInput struct {
	ProductID       int64
	QuantityOrdered int64
	UnitCost        ledger.Centavos
}

// Create persists a draft purchase order with its items.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	if len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	if input.SupplierID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	for _, item := range input.Items {
		if item.ProductID == 0 || item.QuantityOrdered <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: product and positive quantity required", ErrValidation)
		}
		if item.UnitCost < 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: unit cost must not be negative", ErrValidation)
		}
	}
	if input.Number == "" {
		input.Number = generateNumber("PO", s.now())
	}
	po := PurchaseOrder{
		Number:     input.Number,
		SupplierID: input.SupplierID,
		Status:     StatusDraft,
		Note:       input.Note,
		CreatedBy:  input.CreatedBy,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.CreatePurchaseOrder(ctx, po)
		if err != nil {
			return err
		}
		for _, item := range input.Items {
			line := Item{ProductID: item.ProductID, QuantityOrdered: item.QuantityOrdered, UnitCost: item.UnitCost}
			if err := tx.InsertItem(ctx, poID, line); err != nil {
				return err
			}
			po.Items = append(po.Items, line)
		}
		po.ID = poID
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "po.create", po.ID, map[string]any{"number": po.Number, "supplier_id": po.SupplierID})
	return po, nil
}

// Submit moves a draft into pending approval.
func (s *Service) Submit(ctx context.Context, poID int64) error {
	return s.transition(ctx, poID, StatusPendingApproval, "po.submit")
}

// Approve marks the order ready to send to the supplier.
func (s *Service) Approve(ctx context.Context, poID int64) error {
	return s.transition(ctx, poID, StatusApproved, "po.approve")
}

// Send records the order as dispatched, opening it for receiving.
func (s *Service) Send(ctx context.Context, poID int64) error {
	return s.transition(ctx, poID, StatusSent, "po.send")
}

// Cancel aborts any non-terminal order.
func (s *Service) Cancel(ctx context.Context, poID int64) error {
	return s.transition(ctx, poID, StatusCancelled, "po.cancel")
}

func (s *Service) transition(ctx context.Context, poID int64, to Status, action string) error {
	po, err := s.repo.Get(ctx, poID)
	if err != nil {
		return err
	}
	if err := EnsureTransition(po.Status, to); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, poID, to)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, action, poID, map[string]any{"from": string(po.Status), "to": string(to)})
	return nil
}

// Get loads one purchase order with items.
func (s *Service) Get(ctx context.Context, poID int64) (PurchaseOrder, error) {
	return s.repo.Get(ctx, poID)
}

// List returns purchase orders.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]PurchaseOrder, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) recordAudit(ctx context.Context, action string, poID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", poID),
		Meta:     meta,
	})
}

func generateNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, now.UnixNano())
}
