package postings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tindahan-erp/tindahan-erp/internal/inventory"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/accounts"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/journal"
	"github.com/tindahan-erp/tindahan-erp/internal/purchasing"
	"github.com/tindahan-erp/tindahan-erp/internal/sales"
	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

type fakeResolver map[accounts.Role]accounts.Account

func (f fakeResolver) Resolve(role accounts.Role) (accounts.Account, bool) {
	account, ok := f[role]
	return account, ok
}

func fullChart() fakeResolver {
	chart := fakeResolver{}
	for i, role := range accounts.Roles() {
		chart[role] = accounts.Account{ID: int64(i + 1), Role: role}
	}
	return chart
}

// memoryState is the coordinator's world: products, orders, sales, the book.
type memoryState struct {
	products  map[int64]inventory.Product
	movements []inventory.StockMovement
	sales     []sales.Sale
	entries   []journal.Entry
	sources   map[string]int64
	orders    map[int64]purchasing.PurchaseOrder
}

func newMemoryState() *memoryState {
	return &memoryState{
		products: make(map[int64]inventory.Product),
		sources:  make(map[string]int64),
		orders:   make(map[int64]purchasing.PurchaseOrder),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for id, p := range s.products {
		c.products[id] = p
	}
	c.movements = append([]inventory.StockMovement(nil), s.movements...)
	c.sales = append([]sales.Sale(nil), s.sales...)
	c.entries = append([]journal.Entry(nil), s.entries...)
	for k, v := range s.sources {
		c.sources[k] = v
	}
	for id, po := range s.orders {
		po.Items = append([]purchasing.Item(nil), po.Items...)
		c.orders[id] = po
	}
	return c
}

type memoryRepo struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemoryState()}
}

// WithTx snapshots the state and restores it when fn fails, mimicking a
// rolled-back transaction.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx, &memoryTx{state: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetProductForUpdate(_ context.Context, id int64) (inventory.Product, error) {
	p, ok := t.state.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrNotFound
	}
	return p, nil
}

func (t *memoryTx) InsertStockMovement(_ context.Context, movement *inventory.StockMovement) error {
	movement.ID = int64(len(t.state.movements) + 1)
	t.state.movements = append(t.state.movements, *movement)
	return nil
}

func (t *memoryTx) SetProductStock(_ context.Context, productID, stock int64) error {
	p, ok := t.state.products[productID]
	if !ok {
		return inventory.ErrNotFound
	}
	p.Stock = stock
	t.state.products[productID] = p
	return nil
}

func (t *memoryTx) InsertSale(_ context.Context, sale *sales.Sale) error {
	sale.ID = int64(len(t.state.sales) + 1)
	t.state.sales = append(t.state.sales, *sale)
	return nil
}

func (t *memoryTx) InsertJournalEntry(_ context.Context, entry *journal.Entry) error {
	entry.ID = int64(len(t.state.entries) + 1)
	t.state.entries = append(t.state.entries, *entry)
	return nil
}

func (t *memoryTx) LinkJournalSource(_ context.Context, sourceType, sourceID string, entryID int64) error {
	key := sourceType + "/" + sourceID
	if _, exists := t.state.sources[key]; exists {
		return journal.ErrSourceAlreadyLinked
	}
	t.state.sources[key] = entryID
	return nil
}

func (t *memoryTx) GetPurchaseOrderForUpdate(_ context.Context, id int64) (purchasing.PurchaseOrder, error) {
	po, ok := t.state.orders[id]
	if !ok {
		return purchasing.PurchaseOrder{}, purchasing.ErrNotFound
	}
	po.Items = append([]purchasing.Item(nil), po.Items...)
	return po, nil
}

func (t *memoryTx) UpdatePurchaseOrderReceipt(_ context.Context, poID int64, plan purchasing.ReceiptPlan) error {
	po, ok := t.state.orders[poID]
	if !ok {
		return purchasing.ErrNotFound
	}
	for _, line := range plan.Lines {
		for i := range po.Items {
			if po.Items[i].ProductID == line.ProductID {
				po.Items[i].QuantityReceived = line.CumulativeReceived
			}
		}
	}
	po.Status = plan.NextStatus
	po.ReceivedDate = plan.ReceivedDate
	t.state.orders[poID] = po
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func testClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
}

func newTestService(repo *memoryRepo, chart fakeResolver) (*Service, *memoryIdempotency) {
	idem := newMemoryIdempotency()
	svc := NewService(repo, chart, nil, idem, nil, Config{VATRateBasisPoints: 1200}, nil)
	svc.WithNow(testClock())
	return svc, idem
}

func seedProducts(repo *memoryRepo) {
	repo.state.products[1] = inventory.Product{ID: 1, SKU: "A", Name: "Sardinas", Stock: 10, Cost: 6000, Price: 10000, Active: true}
	repo.state.products[2] = inventory.Product{ID: 2, SKU: "B", Name: "Bigas 1kg", Stock: 10, Cost: 12000, Price: 20000, Active: true}
}

func entryAmounts(entry *journal.Entry, chart fakeResolver, role accounts.Role) (debit, credit ledger.Centavos) {
	account := chart[role]
	for _, line := range entry.Lines {
		if line.AccountID == account.ID {
			debit += line.Debit
			credit += line.Credit
		}
	}
	return debit, credit
}

func TestCompleteSaleCashVAT(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	chart := fullChart()
	svc, _ := newTestService(repo, chart)

	result, err := svc.CompleteSale(context.Background(), SaleInput{
		PaymentMethod: sales.PaymentCash,
		Items: []SaleItemInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	require.Equal(t, ledger.Centavos(40000), result.Sale.Subtotal)
	require.Equal(t, ledger.Centavos(4800), result.Sale.Tax)
	require.Equal(t, ledger.Centavos(44800), result.Sale.Total)

	require.Equal(t, int64(8), repo.state.products[1].Stock)
	require.Equal(t, int64(9), repo.state.products[2].Stock)
	require.Len(t, repo.state.movements, 2)

	entry := result.JournalEntry
	require.NotNil(t, entry)
	require.Len(t, entry.Lines, 5)
	require.True(t, entry.Balanced())
	debit, _ := entryAmounts(entry, chart, accounts.RoleCash)
	require.Equal(t, ledger.Centavos(44800), debit)
	_, credit := entryAmounts(entry, chart, accounts.RoleSalesRevenue)
	require.Equal(t, ledger.Centavos(40000), credit)
	_, credit = entryAmounts(entry, chart, accounts.RoleVATPayable)
	require.Equal(t, ledger.Centavos(4800), credit)
	debit, _ = entryAmounts(entry, chart, accounts.RoleCOGS)
	require.Equal(t, ledger.Centavos(24000), debit)
	_, credit = entryAmounts(entry, chart, accounts.RoleInventory)
	require.Equal(t, ledger.Centavos(24000), credit)
}

func TestCompleteSaleTaxExempt(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	chart := fullChart()
	svc, _ := newTestService(repo, chart)

	result, err := svc.CompleteSale(context.Background(), SaleInput{
		PaymentMethod: sales.PaymentCash,
		TaxExempt:     true,
		Items: []SaleItemInput{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.Centavos(0), result.Sale.Tax)
	require.Equal(t, ledger.Centavos(40000), result.Sale.Total)
	require.NotNil(t, result.JournalEntry)
	require.Len(t, result.JournalEntry.Lines, 4)
	require.True(t, result.JournalEntry.Balanced())
}

func TestCompleteSaleCreditBooksReceivable(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	chart := fullChart()
	svc, _ := newTestService(repo, chart)

	result, err := svc.CompleteSale(context.Background(), SaleInput{
		PaymentMethod: sales.PaymentCredit,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)
	debit, _ := entryAmounts(result.JournalEntry, chart, accounts.RoleAccountsReceivable)
	require.Equal(t, result.Sale.Total, debit)
}

func TestCompleteSaleMissingAccountsSkipsWholePosting(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	chart := fullChart()
	delete(chart, accounts.RoleSalesRevenue)
	svc, _ := newTestService(repo, chart)

	result, err := svc.CompleteSale(context.Background(), SaleInput{
		PaymentMethod: sales.PaymentCash,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"missing-accounts"}, result.Warnings)
	require.Nil(t, result.JournalEntry)

	// Stock and the sale document still committed.
	require.Equal(t, int64(8), repo.state.products[1].Stock)
	require.Len(t, repo.state.sales, 1)
	require.Empty(t, repo.state.entries)
	require.Empty(t, repo.state.sources)
}

func TestCompleteSaleShortfallClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc, _ := newTestService(repo, fullChart())

	result, err := svc.CompleteSale(context.Background(), SaleInput{
		PaymentMethod: sales.PaymentCash,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 15}},
	})
	require.NoError(t, err)
	require.Contains(t, result.Warnings, WarnStockShortfall)
	require.Equal(t, int64(0), repo.state.products[1].Stock)
	require.Len(t, repo.state.movements, 1)
	require.Equal(t, int64(-10), repo.state.movements[0].Delta)
	require.Equal(t, int64(0), repo.state.movements[0].ResultingStock)

	// The sale still bills the full requested quantity.
	require.Equal(t, int64(15), result.Sale.Items[0].Quantity)
}

func TestCompleteSaleDuplicateReference(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc, _ := newTestService(repo, fullChart())

	input := SaleInput{
		Reference:     "pos-term1-0042",
		PaymentMethod: sales.PaymentCash,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 1}},
	}
	_, err := svc.CompleteSale(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.CompleteSale(context.Background(), input)
	require.ErrorIs(t, err, ErrDuplicateRequest)
	require.Len(t, repo.state.sales, 1)
}

func TestCompleteSaleFailureReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc, idem := newTestService(repo, fullChart())

	input := SaleInput{
		Reference:     "pos-term1-0042",
		PaymentMethod: sales.PaymentCash,
		Items:         []SaleItemInput{{ProductID: 99, Quantity: 1}},
	}
	_, err := svc.CompleteSale(context.Background(), input)
	require.ErrorIs(t, err, inventory.ErrNotFound)
	require.False(t, idem.keys["pos-term1-0042"])

	// The retry with a fixed payload succeeds under the same reference.
	input.Items[0].ProductID = 1
	_, err = svc.CompleteSale(context.Background(), input)
	require.NoError(t, err)
}

func seedSentOrder(repo *memoryRepo) {
	repo.state.orders[7] = purchasing.PurchaseOrder{
		ID: 7, Number: "PO-7", SupplierID: 3, Status: purchasing.StatusSent,
		Items: []purchasing.Item{
			{ID: 1, ProductID: 1, QuantityOrdered: 20, UnitCost: 6000},
		},
	}
}

func TestReceivePartialThenComplete(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	seedSentOrder(repo)
	chart := fullChart()
	svc, _ := newTestService(repo, chart)

	result, err := svc.ReceivePurchaseOrder(context.Background(), 7, ReceiveInput{
		Reference: "rcpt-1",
		Lines:     []purchasing.ReceiptLine{{ProductID: 1, Quantity: 15}},
	})
	require.NoError(t, err)
	require.False(t, result.NoOp)
	require.Equal(t, purchasing.StatusPartiallyReceived, result.Order.Status)
	require.Nil(t, result.Order.ReceivedDate)
	require.Equal(t, ledger.Centavos(90000), result.Amount)
	require.Equal(t, int64(25), repo.state.products[1].Stock)

	entry := result.JournalEntry
	require.NotNil(t, entry)
	require.True(t, entry.Balanced())
	debit, _ := entryAmounts(entry, chart, accounts.RoleInventory)
	require.Equal(t, ledger.Centavos(90000), debit)
	_, credit := entryAmounts(entry, chart, accounts.RoleAccountsPayable)
	require.Equal(t, ledger.Centavos(90000), credit)

	result, err = svc.ReceivePurchaseOrder(context.Background(), 7, ReceiveInput{
		Reference: "rcpt-2",
		Lines:     []purchasing.ReceiptLine{{ProductID: 1, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusReceived, result.Order.Status)
	require.NotNil(t, result.Order.ReceivedDate)
	require.Equal(t, int64(30), repo.state.products[1].Stock)
	require.Equal(t, int64(20), result.Order.Items[0].QuantityReceived)
}

func TestReceiveOverReceiptLeavesZeroSideEffects(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	seedSentOrder(repo)
	svc, idem := newTestService(repo, fullChart())

	_, err := svc.ReceivePurchaseOrder(context.Background(), 7, ReceiveInput{
		Reference: "rcpt-1",
		Lines:     []purchasing.ReceiptLine{{ProductID: 1, Quantity: 25}},
	})
	require.ErrorIs(t, err, purchasing.ErrOverReceipt)

	require.Equal(t, int64(10), repo.state.products[1].Stock)
	require.Empty(t, repo.state.movements)
	require.Empty(t, repo.state.entries)
	require.Equal(t, purchasing.StatusSent, repo.state.orders[7].Status)
	require.False(t, idem.keys["rcpt-1"])
}

func TestReceiveEmptyBatchIsIdempotentNoOp(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	seedSentOrder(repo)
	svc, _ := newTestService(repo, fullChart())

	for i := 0; i < 2; i++ {
		result, err := svc.ReceivePurchaseOrder(context.Background(), 7, ReceiveInput{
			Lines: []purchasing.ReceiptLine{{ProductID: 1, Quantity: 0}},
		})
		require.NoError(t, err)
		require.True(t, result.NoOp)
	}
	require.Empty(t, repo.state.movements)
	require.Equal(t, purchasing.StatusSent, repo.state.orders[7].Status)
}

func TestReceiveMissingOrderIsNoOpWithWarning(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc, _ := newTestService(repo, fullChart())

	result, err := svc.ReceivePurchaseOrder(context.Background(), 404, ReceiveInput{
		Lines: []purchasing.ReceiptLine{{ProductID: 1, Quantity: 5}},
	})
	require.NoError(t, err)
	require.True(t, result.NoOp)
	require.Equal(t, []string{WarnMissingOrder}, result.Warnings)
	require.Empty(t, repo.state.movements)
}

func TestReceiveDuplicateBatchRefused(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	seedSentOrder(repo)
	svc, _ := newTestService(repo, fullChart())

	input := ReceiveInput{Lines: []purchasing.ReceiptLine{{ProductID: 1, Quantity: 5}}}
	_, err := svc.ReceivePurchaseOrder(context.Background(), 7, input)
	require.NoError(t, err)

	// Same batch, no explicit reference: the deterministic key refuses it.
	_, err = svc.ReceivePurchaseOrder(context.Background(), 7, input)
	require.ErrorIs(t, err, ErrDuplicateRequest)
	require.Equal(t, int64(15), repo.state.products[1].Stock)
}

func TestAdjustStockWriteDown(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	chart := fullChart()
	svc, _ := newTestService(repo, chart)

	result, err := svc.AdjustStock(context.Background(), AdjustmentInput{
		ProductID: 1, Delta: -3, Note: "breakage",
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), result.Product.Stock)
	require.Equal(t, inventory.ReasonAdjustment, result.Movement.Reason)

	entry := result.JournalEntry
	require.NotNil(t, entry)
	require.True(t, entry.Balanced())
	debit, _ := entryAmounts(entry, chart, accounts.RoleExpense)
	require.Equal(t, ledger.Centavos(18000), debit)
	_, credit := entryAmounts(entry, chart, accounts.RoleInventory)
	require.Equal(t, ledger.Centavos(18000), credit)
}

func TestAdjustStockNeverClamps(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc, _ := newTestService(repo, fullChart())

	_, err := svc.AdjustStock(context.Background(), AdjustmentInput{ProductID: 1, Delta: -12})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.Equal(t, int64(10), repo.state.products[1].Stock)
	require.Empty(t, repo.state.movements)
}

func TestAdjustStockAllowNegative(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	idem := newMemoryIdempotency()
	svc := NewService(repo, fullChart(), nil, idem, nil,
		Config{VATRateBasisPoints: 1200, AllowNegativeStock: true}, nil)
	svc.WithNow(testClock())

	result, err := svc.AdjustStock(context.Background(), AdjustmentInput{ProductID: 1, Delta: -12})
	require.NoError(t, err)
	require.Equal(t, int64(-2), result.Product.Stock)
}

func TestMovementReplayAfterMixedFlows(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	seedSentOrder(repo)
	svc, _ := newTestService(repo, fullChart())

	_, err := svc.CompleteSale(context.Background(), SaleInput{
		PaymentMethod: sales.PaymentCash,
		Items:         []SaleItemInput{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)
	_, err = svc.ReceivePurchaseOrder(context.Background(), 7, ReceiveInput{
		Reference: "rcpt-1",
		Lines:     []purchasing.ReceiptLine{{ProductID: 1, Quantity: 20}},
	})
	require.NoError(t, err)
	_, err = svc.AdjustStock(context.Background(), AdjustmentInput{ProductID: 1, Delta: -2, Note: "spoilage"})
	require.NoError(t, err)

	var history []inventory.StockMovement
	for _, movement := range repo.state.movements {
		if movement.ProductID == 1 {
			history = append(history, movement)
		}
	}
	replayed, err := inventory.Replay(history)
	require.NoError(t, err)
	require.Equal(t, repo.state.products[1].Stock, replayed)
	require.Equal(t, int64(24), replayed)
}
