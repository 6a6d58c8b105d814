package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Entry, error)
	List(ctx context.Context, filters ListFilters) ([]Entry, error)
	SumPosted(ctx context.Context) (BalanceTotals, error)
	ListUnbalanced(ctx context.Context) ([]int64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts and reverses journal entries. Automated postings from
// checkout and receiving flow through the postings coordinator instead, so
// they commit atomically with their stock and document writes; this service
// carries manual postings and the read side.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the journal service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists one entry. When the input names a source, the
// source link is written in the same transaction so a duplicate posting for
// the same event rolls the entry back too.
func (s *Service) Post(ctx context.Context, input PostingInput) (Entry, error) {
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	now := s.now().UTC()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	entry := Entry{
		Number:     generateNumber("JE", now),
		Date:       date,
		Memo:       input.Memo,
		Status:     StatusPosted,
		SourceType: input.SourceType,
		SourceID:   input.SourceID,
		PostedBy:   shared.ActorFromContext(ctx),
		PostedAt:   now,
	}
	for _, line := range input.Lines {
		entry.Lines = append(entry.Lines, Line{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Memo:      line.Memo,
		})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertEntry(ctx, &entry); err != nil {
			return err
		}
		if entry.SourceType != "" && entry.SourceID != "" {
			return tx.LinkSource(ctx, entry.SourceType, entry.SourceID, entry.ID)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, "journal.post", entry.ID, map[string]any{
		"number": entry.Number,
		"amount": int64(entry.Debits()),
	})
	return entry, nil
}

// Reverse voids a posted entry by posting its mirror: every debit becomes a
// credit and vice versa. The original stays in the book marked void; the
// pair nets to zero.
func (s *Service) Reverse(ctx context.Context, entryID int64, memo string) (Entry, error) {
	original, err := s.repo.Get(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if original.Status == StatusVoid {
		return Entry{}, ErrAlreadyVoid
	}
	now := s.now().UTC()
	if memo == "" {
		memo = fmt.Sprintf("Reversal of %s", original.Number)
	}
	reversal := Entry{
		Number:     generateNumber("JE", now),
		Date:       now,
		Memo:       memo,
		Status:     StatusPosted,
		ReversalOf: original.ID,
		PostedBy:   shared.ActorFromContext(ctx),
		PostedAt:   now,
	}
	for _, line := range original.Lines {
		reversal.Lines = append(reversal.Lines, Line{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
			Memo:      line.Memo,
		})
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertEntry(ctx, &reversal); err != nil {
			return err
		}
		return tx.SetStatus(ctx, original.ID, StatusVoid)
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, "journal.reverse", original.ID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

// Get loads one entry with lines.
func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.repo.Get(ctx, id)
}

// List returns entries matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Entry, error) {
	return s.repo.List(ctx, filters)
}

// BalanceReport is the book-wide double-entry check.
type BalanceReport struct {
	Totals     BalanceTotals `json:"totals"`
	Balanced   bool          `json:"balanced"`
	Unbalanced []int64       `json:"unbalanced_entries,omitempty"`
}

// VerifyBalances checks the posted book: total debits must equal total
// credits, and no individual posted entry may diverge.
func (s *Service) VerifyBalances(ctx context.Context) (BalanceReport, error) {
	totals, err := s.repo.SumPosted(ctx)
	if err != nil {
		return BalanceReport{}, err
	}
	unbalanced, err := s.repo.ListUnbalanced(ctx)
	if err != nil {
		return BalanceReport{}, err
	}
	return BalanceReport{
		Totals:     totals,
		Balanced:   totals.Debits == totals.Credits && len(unbalanced) == 0,
		Unbalanced: unbalanced,
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
	})
}

func generateNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, now.UnixNano())
}
