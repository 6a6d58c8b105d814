// Package postings is the transaction coordinator: the single writer for
// every business event that touches more than one ledger. A completed sale,
// a goods receipt or a stock adjustment commits its document, its stock
// movements and its journal entry in one database transaction, so no reader
// ever observes stock moved without the matching posting.
package postings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
	"github.com/tindahan-erp/tindahan-erp/internal/observability"
	"github.com/tindahan-erp/tindahan-erp/internal/purchasing"
	"github.com/tindahan-erp/tindahan-erp/internal/sales"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

// WarnStockShortfall is emitted when a sale decrement was clamped at zero.
const WarnStockShortfall = "stock-shortfall"

// WarnMissingOrder is emitted when a receipt references an order that does
// not exist; the receipt becomes a no-op rather than an error so a retried
// batch against a purged order cannot wedge the caller.
const WarnMissingOrder = "missing-order"

// receiptNamespace seeds deterministic receipt references so the same batch
// against the same order hashes to the same idempotency key.
var receiptNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

var (
	// ErrDuplicateRequest indicates an idempotency key seen before.
	ErrDuplicateRequest = errors.New("postings: duplicate request")
	// ErrValidation indicates invalid coordinator input.
	ErrValidation = errors.New("postings: invalid input")
)

// Locker serialises mutations per entity. *shared.EntityLocker satisfies it;
// a nil locker runs unserialised.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// IdempotencyPort guards retried writes. *shared.IdempotencyStore satisfies it.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config carries the posting policies.
type Config struct {
	// VATRateBasisPoints is the sales tax rate, 1200 = 12%.
	VATRateBasisPoints int64
	// AllowNegativeStock permits adjustments below zero (back orders).
	AllowNegativeStock bool
}

// Service coordinates multi-ledger writes.
type Service struct {
	repo        RepositoryPort
	resolver    journal.AccountResolver
	locker      Locker
	idempotency IdempotencyPort
	audit       AuditPort
	cfg         Config
	log         *slog.Logger
	now         func() time.Time
}

// NewService constructs the coordinator. locker, idempotency and audit may be
// nil; the corresponding guard is then skipped.
func NewService(repo RepositoryPort, resolver journal.AccountResolver, locker Locker,
	idempotency IdempotencyPort, audit AuditPort, cfg Config, log *slog.Logger) *Service {
	if cfg.VATRateBasisPoints == 0 {
		cfg.VATRateBasisPoints = 1200
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:        repo,
		resolver:    resolver,
		locker:      locker,
		idempotency: idempotency,
		audit:       audit,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SaleItemInput is one line of a sale draft. Price and cost are captured from
// the product at completion time, never supplied by the caller.
type SaleItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// SaleInput is a sale draft arriving at checkout.
type SaleInput struct {
	Reference     string              `json:"reference" validate:"max=128"`
	PaymentMethod sales.PaymentMethod `json:"payment_method" validate:"required"`
	Discount      ledger.Centavos     `json:"discount" validate:"gte=0"`
	TaxExempt     bool                `json:"tax_exempt"`
	Items         []SaleItemInput     `json:"items" validate:"required,min=1,dive"`
}

// SaleResult is what checkout gets back. JournalEntry is nil when the
// posting was skipped; Warnings then says why.
type SaleResult struct {
	Sale         sales.Sale     `json:"sale"`
	JournalEntry *journal.Entry `json:"journal_entry,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
}

// CompleteSale finalises a sale draft: decrements stock per the clamp policy,
// writes the sale document and posts the journal entry, all in one
// transaction. A missing posting account downgrades the journal side to a
// warning; the stock and the sale still commit.
func (s *Service) CompleteSale(ctx context.Context, input SaleInput) (SaleResult, error) {
	if len(input.Items) == 0 {
		return SaleResult{}, fmt.Errorf("%w: %s", ErrValidation, sales.ErrNoItems)
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return SaleResult{}, fmt.Errorf("%w: %s", ErrValidation, sales.ErrInvalidQuantity)
		}
	}
	if !input.PaymentMethod.Valid() {
		return SaleResult{}, fmt.Errorf("%w: %s", ErrValidation, sales.ErrInvalidPayment)
	}

	if input.Reference != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.Reference, "sales"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return SaleResult{}, fmt.Errorf("%w: reference %s", ErrDuplicateRequest, input.Reference)
			}
			return SaleResult{}, err
		}
	}

	now := s.now().UTC()
	number := fmt.Sprintf("SALE-%d", now.UnixNano())
	result := SaleResult{}

	// Lock products in id order so two concurrent sales cannot deadlock on
	// each other's rows.
	ordered := make([]SaleItemInput, len(input.Items))
	copy(ordered, input.Items)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quantities := make(map[int64]int64, len(ordered))
		items := make([]sales.Item, 0, len(input.Items))
		for _, line := range ordered {
			quantities[line.ProductID] += line.Quantity
		}
		for _, line := range ordered {
			qty, pending := quantities[line.ProductID]
			if !pending {
				continue
			}
			delete(quantities, line.ProductID)

			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			plan, err := inventory.PlanMovement(product, -qty, inventory.ReasonSale, s.cfg.AllowNegativeStock)
			if err != nil {
				return err
			}
			if plan.Clamped() {
				result.Warnings = append(result.Warnings, WarnStockShortfall)
				observability.StockShortfalls.Inc()
				s.log.Warn("sale clamped at zero stock",
					"product_id", product.ID, "requested", qty, "shortfall", plan.Shortfall)
			}
			movement := inventory.StockMovement{
				ProductID:      product.ID,
				Delta:          plan.Delta,
				Reason:         inventory.ReasonSale,
				ReferenceID:    number,
				ResultingStock: plan.ResultingStock,
				OccurredAt:     now,
				ActorID:        shared.ActorFromContext(ctx),
			}
			if err := tx.InsertStockMovement(ctx, &movement); err != nil {
				return err
			}
			if err := tx.SetProductStock(ctx, product.ID, plan.ResultingStock); err != nil {
				return err
			}
			items = append(items, sales.Item{
				ProductID: product.ID,
				Quantity:  qty,
				UnitPrice: product.Price,
				UnitCost:  product.Cost,
			})
		}

		totals := sales.ComputeTotals(items, s.cfg.VATRateBasisPoints, input.Discount, input.TaxExempt)
		sale := sales.Sale{
			Number:        number,
			Reference:     input.Reference,
			PaymentMethod: input.PaymentMethod,
			Items:         items,
			Subtotal:      totals.Subtotal,
			Tax:           totals.Tax,
			Discount:      totals.Discount,
			Total:         totals.Total,
			CreatedBy:     shared.ActorFromContext(ctx),
			CreatedAt:     now,
		}
		if err := tx.InsertSale(ctx, &sale); err != nil {
			return err
		}
		result.Sale = sale

		posting, skip := journal.BuildSaleEntry(s.resolver, sale, now)
		if skip != nil {
			result.Warnings = append(result.Warnings, skip.Reason)
			observability.PostingsSkipped.WithLabelValues(skip.Reason).Inc()
			s.log.Warn("sale posting skipped", "sale", sale.Number, "reason", skip.Reason, "missing", skip.Missing)
			return nil
		}
		entry, err := s.postEntry(ctx, tx, posting)
		if err != nil {
			return err
		}
		result.JournalEntry = entry
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, input.Reference)
		return SaleResult{}, err
	}

	observability.SalesCompleted.Inc()
	s.recordAudit(ctx, "sale.complete", "sale", result.Sale.Number, map[string]any{
		"total":    int64(result.Sale.Total),
		"warnings": result.Warnings,
	})
	return result, nil
}

// ReceiveInput is a goods receipt batch against one purchase order.
type ReceiveInput struct {
	Reference string                   `json:"reference" validate:"max=128"`
	Lines     []purchasing.ReceiptLine `json:"lines" validate:"required,dive"`
}

// ReceiveResult reports what a receipt batch did.
type ReceiveResult struct {
	NoOp         bool                      `json:"no_op"`
	Order        purchasing.PurchaseOrder  `json:"order"`
	Amount       ledger.Centavos           `json:"amount"`
	Movements    []inventory.StockMovement `json:"movements,omitempty"`
	JournalEntry *journal.Entry            `json:"journal_entry,omitempty"`
	Warnings     []string                  `json:"warnings,omitempty"`
}

// ReceivePurchaseOrder applies a receiving batch: validates it against the
// order, increments stock, advances the order status and posts the
// inventory/AP entry, all in one transaction under a per-order lock. A batch
// that fails validation leaves zero side effects.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, poID int64, input ReceiveInput) (ReceiveResult, error) {
	var result ReceiveResult
	run := func(ctx context.Context) error {
		var err error
		result, err = s.receive(ctx, poID, input)
		return err
	}
	if s.locker != nil {
		if err := s.locker.WithLock(ctx, shared.PurchaseOrderLockKey(poID), run); err != nil {
			return ReceiveResult{}, err
		}
		return result, nil
	}
	if err := run(ctx); err != nil {
		return ReceiveResult{}, err
	}
	return result, nil
}

func (s *Service) receive(ctx context.Context, poID int64, input ReceiveInput) (ReceiveResult, error) {
	now := s.now().UTC()
	receiptRef := input.Reference
	if receiptRef == "" {
		receiptRef = deterministicReceiptRef(poID, input.Lines)
	}

	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, receiptRef, "purchasing"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ReceiveResult{}, fmt.Errorf("%w: reference %s", ErrDuplicateRequest, receiptRef)
			}
			return ReceiveResult{}, err
		}
	}

	var result ReceiveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPurchaseOrderForUpdate(ctx, poID)
		if errors.Is(err, purchasing.ErrNotFound) {
			result.NoOp = true
			result.Warnings = append(result.Warnings, WarnMissingOrder)
			s.log.Warn("receipt against missing purchase order", "po_id", poID)
			return nil
		}
		if err != nil {
			return err
		}

		plan, err := purchasing.PlanReceipt(po, input.Lines, now)
		if err != nil {
			return err
		}
		if plan.NoOp {
			result.NoOp = true
			result.Order = po
			return nil
		}

		for _, line := range plan.Lines {
			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			movePlan, err := inventory.PlanMovement(product, line.Quantity, inventory.ReasonReceiving, s.cfg.AllowNegativeStock)
			if err != nil {
				return err
			}
			movement := inventory.StockMovement{
				ProductID:      product.ID,
				Delta:          movePlan.Delta,
				Reason:         inventory.ReasonReceiving,
				ReferenceID:    receiptRef,
				ResultingStock: movePlan.ResultingStock,
				OccurredAt:     now,
				ActorID:        shared.ActorFromContext(ctx),
			}
			if err := tx.InsertStockMovement(ctx, &movement); err != nil {
				return err
			}
			if err := tx.SetProductStock(ctx, product.ID, movePlan.ResultingStock); err != nil {
				return err
			}
			result.Movements = append(result.Movements, movement)
		}

		if err := tx.UpdatePurchaseOrderReceipt(ctx, po.ID, plan); err != nil {
			return err
		}
		result.Amount = plan.Amount()

		posting, skip := journal.BuildReceiptEntry(s.resolver, po.Number, receiptRef, plan.Amount(), now)
		if skip != nil {
			result.Warnings = append(result.Warnings, skip.Reason)
			observability.PostingsSkipped.WithLabelValues(skip.Reason).Inc()
			s.log.Warn("receipt posting skipped", "po", po.Number, "reason", skip.Reason, "missing", skip.Missing)
		} else {
			entry, err := s.postEntry(ctx, tx, posting)
			if err != nil {
				return err
			}
			result.JournalEntry = entry
		}

		updated, err := tx.GetPurchaseOrderForUpdate(ctx, po.ID)
		if err != nil {
			return err
		}
		result.Order = updated
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, receiptRef)
		return ReceiveResult{}, err
	}
	if result.NoOp {
		// A no-op consumed no state; free the key so a later real batch with
		// the same reference is not refused.
		s.releaseKey(ctx, receiptRef)
		return result, nil
	}

	observability.ReceiptsPosted.Inc()
	s.recordAudit(ctx, "po.receive", "purchase_order", fmt.Sprintf("%d", poID), map[string]any{
		"reference": receiptRef,
		"amount":    int64(result.Amount),
		"status":    string(result.Order.Status),
	})
	return result, nil
}

// AdjustmentInput is a manual stock correction.
type AdjustmentInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Delta     int64  `json:"delta" validate:"required"`
	Note      string `json:"note" validate:"max=500"`
	Reference string `json:"reference" validate:"max=128"`
}

// AdjustmentResult reports the applied correction.
type AdjustmentResult struct {
	Product      inventory.Product       `json:"product"`
	Movement     inventory.StockMovement `json:"movement"`
	JournalEntry *journal.Entry          `json:"journal_entry,omitempty"`
	Warnings     []string                `json:"warnings,omitempty"`
}

// AdjustStock applies a manual correction. Adjustments never clamp: a delta
// that would drive stock negative is rejected unless negative stock is
// allowed by config. The inventory value change posts against expense.
func (s *Service) AdjustStock(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	if input.ProductID <= 0 {
		return AdjustmentResult{}, fmt.Errorf("%w: product required", ErrValidation)
	}
	if input.Delta == 0 {
		return AdjustmentResult{}, fmt.Errorf("%w: %s", ErrValidation, inventory.ErrZeroDelta)
	}
	now := s.now().UTC()
	reference := input.Reference
	if reference == "" {
		reference = fmt.Sprintf("ADJ-%d", now.UnixNano())
	}

	var result AdjustmentResult
	run := func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			product, err := tx.GetProductForUpdate(ctx, input.ProductID)
			if err != nil {
				return err
			}
			plan, err := inventory.PlanMovement(product, input.Delta, inventory.ReasonAdjustment, s.cfg.AllowNegativeStock)
			if err != nil {
				return err
			}
			movement := inventory.StockMovement{
				ProductID:      product.ID,
				Delta:          plan.Delta,
				Reason:         inventory.ReasonAdjustment,
				ReferenceID:    reference,
				ResultingStock: plan.ResultingStock,
				Note:           input.Note,
				OccurredAt:     now,
				ActorID:        shared.ActorFromContext(ctx),
			}
			if err := tx.InsertStockMovement(ctx, &movement); err != nil {
				return err
			}
			if err := tx.SetProductStock(ctx, product.ID, plan.ResultingStock); err != nil {
				return err
			}
			product.Stock = plan.ResultingStock
			result.Product = product
			result.Movement = movement

			valueChange := ledger.MulQty(product.Cost, plan.Delta)
			if valueChange == 0 {
				return nil
			}
			posting, skip := journal.BuildAdjustmentEntry(s.resolver, reference, valueChange, now)
			if skip != nil {
				result.Warnings = append(result.Warnings, skip.Reason)
				observability.PostingsSkipped.WithLabelValues(skip.Reason).Inc()
				s.log.Warn("adjustment posting skipped", "reference", reference, "reason", skip.Reason)
				return nil
			}
			entry, err := s.postEntry(ctx, tx, posting)
			if err != nil {
				return err
			}
			result.JournalEntry = entry
			return nil
		})
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, shared.ProductLockKey(input.ProductID), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return AdjustmentResult{}, err
	}
	s.recordAudit(ctx, "stock.adjust", "product", fmt.Sprintf("%d", input.ProductID), map[string]any{
		"delta":     input.Delta,
		"reference": reference,
	})
	return result, nil
}

// postEntry materialises a builder posting inside the caller's transaction.
func (s *Service) postEntry(ctx context.Context, tx TxRepository, input journal.PostingInput) (*journal.Entry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	entry := journal.Entry{
		Number:     fmt.Sprintf("JE-%d", now.UnixNano()),
		Date:       input.Date,
		Memo:       input.Memo,
		Status:     journal.StatusPosted,
		SourceType: input.SourceType,
		SourceID:   input.SourceID,
		PostedBy:   shared.ActorFromContext(ctx),
		PostedAt:   now,
	}
	for _, line := range input.Lines {
		entry.Lines = append(entry.Lines, journal.Line{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Memo:      line.Memo,
		})
	}
	if err := tx.InsertJournalEntry(ctx, &entry); err != nil {
		return nil, err
	}
	if err := tx.LinkJournalSource(ctx, entry.SourceType, entry.SourceID, entry.ID); err != nil {
		return nil, err
	}
	observability.JournalEntriesPosted.WithLabelValues(entry.SourceType).Inc()
	return &entry, nil
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.idempotency.Delete(cleanup, key); err != nil {
		s.log.Warn("idempotency key release failed", "key", key, "err", err)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
}

// deterministicReceiptRef hashes the order id and batch content so a retried
// identical batch maps to the same idempotency key.
func deterministicReceiptRef(poID int64, lines []purchasing.ReceiptLine) string {
	sorted := make([]purchasing.ReceiptLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	payload := fmt.Sprintf("po:%d", poID)
	for _, line := range sorted {
		payload += fmt.Sprintf("|%d:%d", line.ProductID, line.Quantity)
	}
	return "RCPT-" + uuid.NewSHA1(receiptNamespace, []byte(payload)).String()
}
