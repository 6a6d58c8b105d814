package purchasing

import (
	"errors"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
)

// Status enumerates the purchase order lifecycle. The string values are the
// stable wire representation shared with the UI and the database.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingApproval   Status = "pending_approval"
	StatusApproved          Status = "approved"
	StatusSent              Status = "sent"
	StatusPartiallyReceived Status = "partially_received"
	StatusReceived          Status = "received"
	StatusCancelled         Status = "cancelled"
)

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusReceived || s == StatusCancelled
}

// Item is one ordered line. QuantityReceived accumulates across partial
// receipts and never exceeds QuantityOrdered.
type Item struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	QuantityOrdered  int64           `json:"quantity_ordered"`
	QuantityReceived int64           `json:"quantity_received"`
	UnitCost         ledger.Centavos `json:"unit_cost"`
}

// Outstanding returns the quantity still receivable for the item.
func (i Item) Outstanding() int64 {
	return i.QuantityOrdered - i.QuantityReceived
}

// PurchaseOrder is the ordering document. Status only moves forward through
// the transition graph; ReceivedDate is set if and only if the order reached
// the received state.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	SupplierID   int64      `json:"supplier_id"`
	Status       Status     `json:"status"`
	Note         string     `json:"note"`
	ReceivedDate *time.Time `json:"received_date,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Items        []Item     `json:"items"`
}

// ItemByProduct finds the ordered line for a product.
func (po PurchaseOrder) ItemByProduct(productID int64) (Item, bool) {
	for _, item := range po.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return Item{}, false
}

// ReceiptLine is one product quantity arriving in a receiving batch.
type ReceiptLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

var (
	// ErrNotFound indicates a missing purchase order.
	ErrNotFound = errors.New("purchasing: purchase order not found")
	// ErrInvalidTransition occurs when an action violates the status graph.
	ErrInvalidTransition = errors.New("purchasing: invalid state transition")
	// ErrOverReceipt indicates a batch exceeding the ordered quantity.
	ErrOverReceipt = errors.New("purchasing: received quantity exceeds ordered")
	// ErrInvalidQuantity indicates a negative received quantity.
	ErrInvalidQuantity = errors.New("purchasing: received quantity must not be negative")
	// ErrUnknownItem indicates a receipt line for a product not on the order.
	ErrUnknownItem = errors.New("purchasing: product not on purchase order")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: invalid input")
)
