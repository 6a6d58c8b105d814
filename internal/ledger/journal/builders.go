package journal

import (
	"fmt"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
	"github.com/tindahan-erp/tindahan-erp/internal/ledger/accounts"
	"github.com/tindahan-erp/tindahan-erp/internal/sales"
)

// AccountResolver maps posting roles to concrete accounts. The accounts
// registry satisfies it.
type AccountResolver interface {
	Resolve(role accounts.Role) (accounts.Account, bool)
}

// SkipMissingAccounts is the warning emitted when a posting is skipped
// because the chart of accounts lacks a required role.
const SkipMissingAccounts = "missing-accounts"

// Skip explains why a builder produced no posting. The business event still
// completes; only the journal side is dropped, whole, never partially.
type Skip struct {
	Reason  string          `json:"reason"`
	Missing []accounts.Role `json:"missing,omitempty"`
}

func (s *Skip) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", s.Reason, s.Missing)
}

// BuildSaleEntry derives the journal posting for a completed sale:
//
//	Dr cash or accounts_receivable   total
//	Dr cogs                          cost total
//	Cr sales_revenue                 subtotal less discount
//	Cr vat_payable                   tax
//	Cr inventory                     cost total
//
// Roles whose amount is zero are not required and produce no line. If any
// required role is missing from the chart, the whole posting is skipped and
// the missing roles are reported.
func BuildSaleEntry(resolver AccountResolver, sale sales.Sale, now time.Time) (PostingInput, *Skip) {
	settlement := accounts.RoleCash
	if sale.PaymentMethod == sales.PaymentCredit {
		settlement = accounts.RoleAccountsReceivable
	}
	cost := sale.CostTotal()

	b := newEntryBuilder(resolver)
	b.debit(settlement, sale.Total, "")
	b.credit(accounts.RoleSalesRevenue, sale.Subtotal-sale.Discount, "")
	b.credit(accounts.RoleVATPayable, sale.Tax, "")
	b.debit(accounts.RoleCOGS, cost, "")
	b.credit(accounts.RoleInventory, cost, "")
	return b.finish(PostingInput{
		Date:       now.UTC(),
		Memo:       fmt.Sprintf("Sale %s", sale.Number),
		SourceType: "sale",
		SourceID:   sale.Number,
	})
}

// BuildReceiptEntry derives the journal posting for goods received against a
// purchase order:
//
//	Dr inventory          received quantity times unit cost
//	Cr accounts_payable   same amount
//
// receiptRef identifies this batch; a partially received order produces one
// entry per batch, so the order number alone cannot be the source id.
func BuildReceiptEntry(resolver AccountResolver, poNumber, receiptRef string, amount ledger.Centavos, now time.Time) (PostingInput, *Skip) {
	b := newEntryBuilder(resolver)
	b.debit(accounts.RoleInventory, amount, "")
	b.credit(accounts.RoleAccountsPayable, amount, "")
	return b.finish(PostingInput{
		Date:       now.UTC(),
		Memo:       fmt.Sprintf("Goods receipt %s", poNumber),
		SourceType: "po_receipt",
		SourceID:   receiptRef,
	})
}

// BuildAdjustmentEntry derives the posting for a manual stock correction.
// A write-down (negative value change) debits expense and credits inventory;
// a write-up does the opposite.
func BuildAdjustmentEntry(resolver AccountResolver, reference string, valueChange ledger.Centavos, now time.Time) (PostingInput, *Skip) {
	b := newEntryBuilder(resolver)
	if valueChange < 0 {
		b.debit(accounts.RoleExpense, -valueChange, "")
		b.credit(accounts.RoleInventory, -valueChange, "")
	} else {
		b.debit(accounts.RoleInventory, valueChange, "")
		b.credit(accounts.RoleExpense, valueChange, "")
	}
	return b.finish(PostingInput{
		Date:       now.UTC(),
		Memo:       fmt.Sprintf("Stock adjustment %s", reference),
		SourceType: "stock_adjustment",
		SourceID:   reference,
	})
}

// entryBuilder accumulates lines, deferring the missing-role verdict until
// finish so the caller learns every missing role at once.
type entryBuilder struct {
	resolver AccountResolver
	lines    []PostingLine
	missing  []accounts.Role
}

func newEntryBuilder(resolver AccountResolver) *entryBuilder {
	return &entryBuilder{resolver: resolver}
}

func (b *entryBuilder) debit(role accounts.Role, amount ledger.Centavos, memo string) {
	b.add(role, amount, 0, memo)
}

func (b *entryBuilder) credit(role accounts.Role, amount ledger.Centavos, memo string) {
	b.add(role, 0, amount, memo)
}

func (b *entryBuilder) add(role accounts.Role, debit, credit ledger.Centavos, memo string) {
	if debit == 0 && credit == 0 {
		return
	}
	account, ok := b.resolver.Resolve(role)
	if !ok {
		b.missing = append(b.missing, role)
		return
	}
	b.lines = append(b.lines, PostingLine{AccountID: account.ID, Debit: debit, Credit: credit, Memo: memo})
}

func (b *entryBuilder) finish(input PostingInput) (PostingInput, *Skip) {
	if len(b.missing) > 0 {
		return PostingInput{}, &Skip{Reason: SkipMissingAccounts, Missing: b.missing}
	}
	input.Lines = b.lines
	return input, nil
}
