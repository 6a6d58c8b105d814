package inventory

import (
	"errors"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
)

// Reason enumerates why stock moved.
type Reason string

const (
	// ReasonSale is a checkout decrement.
	ReasonSale Reason = "sale"
	// ReasonReceiving is a purchase order receipt increment.
	ReasonReceiving Reason = "receiving"
	// ReasonAdjustment is a manual correction, either direction.
	ReasonAdjustment Reason = "adjustment"
)

// Valid reports whether r is a known movement reason.
func (r Reason) Valid() bool {
	return r == ReasonSale || r == ReasonReceiving || r == ReasonAdjustment
}

// Product carries the stock, cost and price the ledger needs. Stock is only
// ever changed by applying a StockMovement.
type Product struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Stock     int64           `json:"stock"`
	MinStock  int64           `json:"min_stock"`
	Cost      ledger.Centavos `json:"cost"`
	Price     ledger.Centavos `json:"price"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StockMovement is the append-only record of one stock change. Replaying a
// product's movements in order from zero reproduces its current stock; the
// movement history, not the product row, is the source of truth.
type StockMovement struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"product_id"`
	Delta          int64     `json:"delta"`
	Reason         Reason    `json:"reason"`
	ReferenceID    string    `json:"reference_id"`
	ResultingStock int64     `json:"resulting_stock"`
	Note           string    `json:"note"`
	OccurredAt     time.Time `json:"occurred_at"`
	ActorID        int64     `json:"actor_id"`
}

var (
	// ErrNotFound indicates a missing product.
	ErrNotFound = errors.New("inventory: product not found")
	// ErrNegativeStock triggered when a movement would drive stock negative.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrZeroDelta indicates a movement with no quantity change.
	ErrZeroDelta = errors.New("inventory: delta must be non zero")
	// ErrInvalidReason indicates an unknown movement reason.
	ErrInvalidReason = errors.New("inventory: invalid movement reason")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("inventory: invalid input")
)

// MovementPlan is the validated outcome of applying a delta to a product.
// Delta is the quantity actually applied; Shortfall is the portion of a sale
// decrement that could not be covered by stock on hand.
type MovementPlan struct {
	ProductID      int64
	Requested      int64
	Delta          int64
	ResultingStock int64
	Shortfall      int64
}

// Clamped reports whether the plan trimmed a sale decrement at zero.
func (p MovementPlan) Clamped() bool {
	return p.Shortfall > 0
}

// PlanMovement validates a stock delta against the current product state.
// Sale decrements clamp at zero so an oversell never drives recorded stock
// negative; the shortfall is surfaced as a warning instead. Receiving and
// manual adjustments never clamp: an adjustment below zero is rejected
// outright unless allowNegative is set (back-order modelling).
func PlanMovement(product Product, delta int64, reason Reason, allowNegative bool) (MovementPlan, error) {
	if !reason.Valid() {
		return MovementPlan{}, ErrInvalidReason
	}
	if delta == 0 {
		return MovementPlan{}, ErrZeroDelta
	}
	plan := MovementPlan{ProductID: product.ID, Requested: delta, Delta: delta}
	resulting := product.Stock + delta
	if resulting < 0 {
		switch reason {
		case ReasonSale:
			if !allowNegative {
				plan.Shortfall = -resulting
				plan.Delta = -product.Stock
				resulting = 0
			}
		default:
			if !allowNegative {
				return MovementPlan{}, ErrNegativeStock
			}
		}
	}
	plan.ResultingStock = resulting
	return plan, nil
}

// Replay recomputes stock by folding movements in order, verifying each
// recorded resulting stock along the way.
func Replay(movements []StockMovement) (int64, error) {
	var stock int64
	for _, movement := range movements {
		stock += movement.Delta
		if stock != movement.ResultingStock {
			return stock, errors.New("inventory: movement history diverges from recorded resulting stock")
		}
	}
	return stock, nil
}
