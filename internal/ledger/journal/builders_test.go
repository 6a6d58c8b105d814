package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/accounts"
	"github.com/tindahan-erp/tindahan-erp/internal/sales"
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

func cashSale() sales.Sale {
	items := []sales.Item{
		{ProductID: 1, Quantity: 2, UnitPrice: 10000, UnitCost: 6000},
		{ProductID: 2, Quantity: 1, UnitPrice: 20000, UnitCost: 12000},
	}
	totals := sales.ComputeTotals(items, 1200, 0, false)
	return sales.Sale{
		Number:        "SALE-1",
		PaymentMethod: sales.PaymentCash,
		Items:         items,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Discount:      totals.Discount,
		Total:         totals.Total,
	}
}

func lineFor(t *testing.T, input PostingInput, chart fakeResolver, role accounts.Role) PostingLine {
	t.Helper()
	account, ok := chart[role]
	require.True(t, ok)
	for _, line := range input.Lines {
		if line.AccountID == account.ID {
			return line
		}
	}
	t.Fatalf("no line for role %s", role)
	return PostingLine{}
}

func TestBuildSaleEntryCash(t *testing.T) {
	chart := fullChart()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	input, skip := BuildSaleEntry(chart, cashSale(), now)
	require.Nil(t, skip)
	require.NoError(t, input.Validate())
	require.Equal(t, "sale", input.SourceType)
	require.Equal(t, "SALE-1", input.SourceID)

	require.Equal(t, ledger.Centavos(44800), lineFor(t, input, chart, accounts.RoleCash).Debit)
	require.Equal(t, ledger.Centavos(40000), lineFor(t, input, chart, accounts.RoleSalesRevenue).Credit)
	require.Equal(t, ledger.Centavos(4800), lineFor(t, input, chart, accounts.RoleVATPayable).Credit)
	require.Equal(t, ledger.Centavos(24000), lineFor(t, input, chart, accounts.RoleCOGS).Debit)
	require.Equal(t, ledger.Centavos(24000), lineFor(t, input, chart, accounts.RoleInventory).Credit)
	require.Equal(t, ledger.Centavos(68800), input.Amount())
}

func TestBuildSaleEntryCreditUsesReceivable(t *testing.T) {
	chart := fullChart()
	sale := cashSale()
	sale.PaymentMethod = sales.PaymentCredit

	input, skip := BuildSaleEntry(chart, sale, time.Now())
	require.Nil(t, skip)
	require.NoError(t, input.Validate())
	require.Equal(t, sale.Total, lineFor(t, input, chart, accounts.RoleAccountsReceivable).Debit)
}

func TestBuildSaleEntryTaxExemptDropsVATLine(t *testing.T) {
	chart := fullChart()
	sale := cashSale()
	totals := sales.ComputeTotals(sale.Items, 1200, 0, true)
	sale.Subtotal, sale.Tax, sale.Total = totals.Subtotal, totals.Tax, totals.Total

	input, skip := BuildSaleEntry(chart, sale, time.Now())
	require.Nil(t, skip)
	require.NoError(t, input.Validate())
	vatAccount := chart[accounts.RoleVATPayable]
	for _, line := range input.Lines {
		require.NotEqual(t, vatAccount.ID, line.AccountID)
	}
}

func TestBuildSaleEntrySkipsWholePostingOnMissingAccounts(t *testing.T) {
	chart := fullChart()
	delete(chart, accounts.RoleVATPayable)
	delete(chart, accounts.RoleCOGS)

	input, skip := BuildSaleEntry(chart, cashSale(), time.Now())
	require.NotNil(t, skip)
	require.Equal(t, SkipMissingAccounts, skip.Reason)
	require.ElementsMatch(t, []accounts.Role{accounts.RoleVATPayable, accounts.RoleCOGS}, skip.Missing)
	require.Empty(t, input.Lines)
}

func TestBuildReceiptEntry(t *testing.T) {
	chart := fullChart()

	input, skip := BuildReceiptEntry(chart, "PO-77", "RCPT-1", 90000, time.Now())
	require.Nil(t, skip)
	require.NoError(t, input.Validate())
	require.Equal(t, "po_receipt", input.SourceType)
	require.Equal(t, "RCPT-1", input.SourceID)
	require.Equal(t, ledger.Centavos(90000), lineFor(t, input, chart, accounts.RoleInventory).Debit)
	require.Equal(t, ledger.Centavos(90000), lineFor(t, input, chart, accounts.RoleAccountsPayable).Credit)
}

func TestBuildAdjustmentEntryWriteDown(t *testing.T) {
	chart := fullChart()

	input, skip := BuildAdjustmentEntry(chart, "adj-3", -18000, time.Now())
	require.Nil(t, skip)
	require.NoError(t, input.Validate())
	require.Equal(t, ledger.Centavos(18000), lineFor(t, input, chart, accounts.RoleExpense).Debit)
	require.Equal(t, ledger.Centavos(18000), lineFor(t, input, chart, accounts.RoleInventory).Credit)
}

func TestBuildAdjustmentEntryWriteUp(t *testing.T) {
	chart := fullChart()

	input, skip := BuildAdjustmentEntry(chart, "adj-4", 5000, time.Now())
	require.Nil(t, skip)
	require.NoError(t, input.Validate())
	require.Equal(t, ledger.Centavos(5000), lineFor(t, input, chart, accounts.RoleInventory).Debit)
	require.Equal(t, ledger.Centavos(5000), lineFor(t, input, chart, accounts.RoleExpense).Credit)
}
