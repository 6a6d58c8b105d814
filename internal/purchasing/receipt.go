package purchasing

import (
	"fmt"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
)

// PlannedReceipt is one validated line of a receiving batch.
type PlannedReceipt struct {
	ProductID          int64
	Quantity           int64
	UnitCost           ledger.Centavos
	CumulativeReceived int64
}

// ReceiptPlan is the validated outcome of a receiving batch, computed before
// any mutation so a rejected batch produces zero side effects.
type ReceiptPlan struct {
	NoOp         bool
	Lines        []PlannedReceipt
	NextStatus   Status
	Complete     bool
	ReceivedDate *time.Time
}

// Amount sums quantity times unit cost over the planned lines.
func (p ReceiptPlan) Amount() ledger.Centavos {
	var total ledger.Centavos
	for _, line := range p.Lines {
		total += ledger.MulQty(line.UnitCost, line.Quantity)
	}
	return total
}

// OverReceiptError reports which item would exceed its ordered quantity.
// Over-receipt is rejected rather than clamped; clamping would hide supplier
// or data-entry errors.
type OverReceiptError struct {
	ProductID       int64
	Ordered         int64
	AlreadyReceived int64
	Requested       int64
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("purchasing: product %d over-receipt: ordered %d, received %d, requested %d",
		e.ProductID, e.Ordered, e.AlreadyReceived, e.Requested)
}

// Unwrap lets errors.Is match ErrOverReceipt.
func (e *OverReceiptError) Unwrap() error {
	return ErrOverReceipt
}

// PlanReceipt validates a receiving batch against the order and computes the
// resulting status. Rules:
//   - any negative quantity rejects the whole batch;
//   - any line whose cumulative received would exceed ordered rejects the
//     whole batch with OverReceiptError;
//   - a batch with no positive quantity is a no-op, not an error;
//   - full coverage of every item yields received with ReceivedDate=now,
//     anything less yields partially_received.
func PlanReceipt(po PurchaseOrder, batch []ReceiptLine, now time.Time) (ReceiptPlan, error) {
	if !po.Status.Receivable() {
		return ReceiptPlan{}, &TransitionError{Current: po.Status, Attempted: StatusPartiallyReceived}
	}

	received := make(map[int64]int64, len(batch))
	for _, line := range batch {
		if line.Quantity < 0 {
			return ReceiptPlan{}, fmt.Errorf("%w: product %d", ErrInvalidQuantity, line.ProductID)
		}
		if line.Quantity == 0 {
			continue
		}
		item, ok := po.ItemByProduct(line.ProductID)
		if !ok {
			return ReceiptPlan{}, fmt.Errorf("%w: product %d", ErrUnknownItem, line.ProductID)
		}
		total := received[line.ProductID] + line.Quantity
		if item.QuantityReceived+total > item.QuantityOrdered {
			return ReceiptPlan{}, &OverReceiptError{
				ProductID:       line.ProductID,
				Ordered:         item.QuantityOrdered,
				AlreadyReceived: item.QuantityReceived,
				Requested:       total,
			}
		}
		received[line.ProductID] = total
	}

	if len(received) == 0 {
		return ReceiptPlan{NoOp: true}, nil
	}

	plan := ReceiptPlan{Complete: true}
	for _, item := range po.Items {
		qty := received[item.ProductID]
		if qty > 0 {
			plan.Lines = append(plan.Lines, PlannedReceipt{
				ProductID:          item.ProductID,
				Quantity:           qty,
				UnitCost:           item.UnitCost,
				CumulativeReceived: item.QuantityReceived + qty,
			})
		}
		if item.QuantityReceived+qty < item.QuantityOrdered {
			plan.Complete = false
		}
	}

	if plan.Complete {
		plan.NextStatus = StatusReceived
		receivedAt := now.UTC()
		plan.ReceivedDate = &receivedAt
	} else {
		plan.NextStatus = StatusPartiallyReceived
	}
	if err := EnsureTransition(po.Status, plan.NextStatus); err != nil {
		return ReceiptPlan{}, err
	}
	return plan, nil
}
