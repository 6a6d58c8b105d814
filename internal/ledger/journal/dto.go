package journal

import (
	"fmt"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
)

// PostingLine is one requested line of a posting.
type PostingLine struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     ledger.Centavos `json:"debit" validate:"gte=0"`
	Credit    ledger.Centavos `json:"credit" validate:"gte=0"`
	Memo      string          `json:"memo"`
}

// PostingInput is a request to post one journal entry.
type PostingInput struct {
	Date       time.Time     `json:"date"`
	Memo       string        `json:"memo" validate:"max=500"`
	SourceType string        `json:"source_type" validate:"max=64"`
	SourceID   string        `json:"source_id" validate:"max=128"`
	Lines      []PostingLine `json:"lines" validate:"required,min=2,dive"`
}

// Validate enforces the double-entry shape: at least two lines, each line
// one-sided with a positive amount, and debits equal to credits. Amounts are
// integer centavos so the balance comparison is exact.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debits, credits ledger.Centavos
	for i, line := range in.Lines {
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("%w: line %d", ErrEmptyLine, i)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("%w: line %d", ErrTwoSidedLine, i)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("%w: line %d", ErrEmptyLine, i)
		}
		if line.AccountID <= 0 {
			return fmt.Errorf("journal: line %d missing account", i)
		}
		debits += line.Debit
		credits += line.Credit
	}
	if debits != credits {
		return fmt.Errorf("%w: debits %d, credits %d", ErrUnbalanced, debits, credits)
	}
	return nil
}

// Amount returns the entry total, the shared debit and credit sum.
func (in PostingInput) Amount() ledger.Centavos {
	var debits ledger.Centavos
	for _, line := range in.Lines {
		debits += line.Debit
	}
	return debits
}
