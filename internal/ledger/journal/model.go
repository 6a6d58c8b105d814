// Package journal keeps the double-entry book. Entries are append-only:
// mistakes are corrected by posting a reversal, never by editing or deleting
// a posted entry.
package journal

import (
	"errors"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
)

// Status of a journal entry.
type Status string

const (
	// StatusPosted marks a live entry counted in balances.
	StatusPosted Status = "posted"
	// StatusVoid marks an entry cancelled out by a reversal.
	StatusVoid Status = "void"
)

// Line is one side of a double entry. Exactly one of Debit or Credit is
// positive; the other is zero.
type Line struct {
	ID        int64           `json:"id"`
	EntryID   int64           `json:"entry_id"`
	AccountID int64           `json:"account_id"`
	Debit     ledger.Centavos `json:"debit"`
	Credit    ledger.Centavos `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
}

// Entry is a posted journal document. SourceType and SourceID tie the entry
// back to the business event that produced it; a source may be linked to at
// most one live entry.
type Entry struct {
	ID         int64     `json:"id"`
	Number     string    `json:"number"`
	Date       time.Time `json:"date"`
	Memo       string    `json:"memo"`
	Status     Status    `json:"status"`
	SourceType string    `json:"source_type,omitempty"`
	SourceID   string    `json:"source_id,omitempty"`
	ReversalOf int64     `json:"reversal_of,omitempty"`
	Lines      []Line    `json:"lines"`
	PostedBy   int64     `json:"posted_by"`
	PostedAt   time.Time `json:"posted_at"`
}

// Debits sums the debit side.
func (e Entry) Debits() ledger.Centavos {
	var total ledger.Centavos
	for _, line := range e.Lines {
		total += line.Debit
	}
	return total
}

// Credits sums the credit side.
func (e Entry) Credits() ledger.Centavos {
	var total ledger.Centavos
	for _, line := range e.Lines {
		total += line.Credit
	}
	return total
}

// Balanced reports whether debits equal credits, compared as integers.
func (e Entry) Balanced() bool {
	return e.Debits() == e.Credits()
}

var (
	// ErrNotFound indicates a missing entry.
	ErrNotFound = errors.New("journal: entry not found")
	// ErrUnbalanced indicates debits do not equal credits.
	ErrUnbalanced = errors.New("journal: entry is not balanced")
	// ErrTooFewLines indicates fewer than two lines.
	ErrTooFewLines = errors.New("journal: entry needs at least two lines")
	// ErrTwoSidedLine indicates a line carrying both a debit and a credit.
	ErrTwoSidedLine = errors.New("journal: line must be debit or credit, not both")
	// ErrEmptyLine indicates a line with neither side set.
	ErrEmptyLine = errors.New("journal: line must carry a positive amount")
	// ErrSourceAlreadyLinked indicates the source event already produced an entry.
	ErrSourceAlreadyLinked = errors.New("journal: source already linked to an entry")
	// ErrAlreadyVoid indicates a reversal of a void entry.
	ErrAlreadyVoid = errors.New("journal: entry already void")
)
