// Package sales models the finalised sale document produced at checkout.
// The in-progress cart lives in the UI layer; only the completed sale enters
// the ledger, through the postings coordinator.
package sales

import (
	"errors"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
)

// PaymentMethod selects which account absorbs the sale total.
type PaymentMethod string

const (
	// PaymentCash settles immediately against the cash account.
	PaymentCash PaymentMethod = "cash"
	// PaymentCredit books the total as a receivable.
	PaymentCredit PaymentMethod = "credit"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCredit
}

// Item is one sold line. UnitCost is the product cost captured from the
// inventory ledger at sale time; a later cost change must not alter the COGS
// of an already-recorded sale.
type Item struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice ledger.Centavos `json:"unit_price"`
	UnitCost  ledger.Centavos `json:"unit_cost"`
}

// Sale is the immutable checkout document.
type Sale struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	Reference     string          `json:"reference"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Items         []Item          `json:"items"`
	Subtotal      ledger.Centavos `json:"subtotal"`
	Tax           ledger.Centavos `json:"tax"`
	Discount      ledger.Centavos `json:"discount"`
	Total         ledger.Centavos `json:"total"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CostTotal sums quantity times captured unit cost across all items.
func (s Sale) CostTotal() ledger.Centavos {
	var total ledger.Centavos
	for _, item := range s.Items {
		total += ledger.MulQty(item.UnitCost, item.Quantity)
	}
	return total
}

// Totals groups the derived money fields of a sale.
type Totals struct {
	Subtotal ledger.Centavos
	Tax      ledger.Centavos
	Discount ledger.Centavos
	Total    ledger.Centavos
}

// ComputeTotals derives subtotal, VAT and total from the sold items.
// taxRateBasisPoints is usually 1200 (12% VAT); taxExempt forces a zero tax
// line regardless of rate.
func ComputeTotals(items []Item, taxRateBasisPoints int64, discount ledger.Centavos, taxExempt bool) Totals {
	var subtotal ledger.Centavos
	for _, item := range items {
		subtotal += ledger.MulQty(item.UnitPrice, item.Quantity)
	}
	var tax ledger.Centavos
	if !taxExempt {
		tax = ledger.TaxOn(subtotal, taxRateBasisPoints)
	}
	if discount < 0 {
		discount = 0
	}
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal + tax - discount,
	}
}

var (
	// ErrNoItems indicates an empty sale.
	ErrNoItems = errors.New("sales: at least one item required")
	// ErrInvalidQuantity indicates a non-positive item quantity.
	ErrInvalidQuantity = errors.New("sales: quantity must be positive")
	// ErrInvalidPayment indicates an unknown payment method.
	ErrInvalidPayment = errors.New("sales: invalid payment method")
)

// ValidateItems applies the basic shape checks shared by callers.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}
