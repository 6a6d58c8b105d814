package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
)

type memoryRepo struct {
	entries map[int64]Entry
	sources map[string]int64
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[int64]Entry), sources: make(map[string]int64), nextID: 1}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: m}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Entry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (m *memoryRepo) List(_ context.Context, filters ListFilters) ([]Entry, error) {
	var out []Entry
	for _, entry := range m.entries {
		if filters.Status != "" && entry.Status != filters.Status {
			continue
		}
		if filters.SourceType != "" && entry.SourceType != filters.SourceType {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *memoryRepo) SumPosted(_ context.Context) (BalanceTotals, error) {
	var totals BalanceTotals
	for _, entry := range m.entries {
		if entry.Status != StatusPosted {
			continue
		}
		totals.Debits += entry.Debits()
		totals.Credits += entry.Credits()
		totals.Entries++
	}
	return totals, nil
}

func (m *memoryRepo) ListUnbalanced(_ context.Context) ([]int64, error) {
	var ids []int64
	for id, entry := range m.entries {
		if entry.Status == StatusPosted && !entry.Balanced() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memoryTx struct {
	repo           *memoryRepo
	insertedIDs    []int64
	linkedSources  []string
	statusRestores map[int64]Status
}

func (t *memoryTx) InsertEntry(_ context.Context, entry *Entry) error {
	entry.ID = t.repo.nextID
	t.repo.nextID++
	for i := range entry.Lines {
		entry.Lines[i].EntryID = entry.ID
		entry.Lines[i].ID = int64(i + 1)
	}
	t.repo.entries[entry.ID] = *entry
	t.insertedIDs = append(t.insertedIDs, entry.ID)
	return nil
}

func (t *memoryTx) LinkSource(_ context.Context, sourceType, sourceID string, entryID int64) error {
	key := sourceType + "/" + sourceID
	if _, exists := t.repo.sources[key]; exists {
		return ErrSourceAlreadyLinked
	}
	t.repo.sources[key] = entryID
	t.linkedSources = append(t.linkedSources, key)
	return nil
}

func (t *memoryTx) SetStatus(_ context.Context, entryID int64, status Status) error {
	entry, ok := t.repo.entries[entryID]
	if !ok {
		return ErrNotFound
	}
	if t.statusRestores == nil {
		t.statusRestores = make(map[int64]Status)
	}
	if _, seen := t.statusRestores[entryID]; !seen {
		t.statusRestores[entryID] = entry.Status
	}
	entry.Status = status
	t.repo.entries[entryID] = entry
	return nil
}

func (t *memoryTx) rollback() {
	for _, id := range t.insertedIDs {
		delete(t.repo.entries, id)
	}
	for _, key := range t.linkedSources {
		delete(t.repo.sources, key)
	}
	for id, status := range t.statusRestores {
		entry := t.repo.entries[id]
		entry.Status = status
		t.repo.entries[id] = entry
	}
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) })
	return svc
}

func balancedInput(sourceID string) PostingInput {
	return PostingInput{
		Memo:       "Sale " + sourceID,
		SourceType: "sale",
		SourceID:   sourceID,
		Lines: []PostingLine{
			{AccountID: 1, Debit: 44800},
			{AccountID: 2, Credit: 40000},
			{AccountID: 3, Credit: 4800},
		},
	}
}

func TestPostPersistsEntryAndSourceLink(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	entry, err := svc.Post(context.Background(), balancedInput("SALE-1"))
	require.NoError(t, err)
	require.Equal(t, StatusPosted, entry.Status)
	require.NotEmpty(t, entry.Number)
	require.True(t, entry.Balanced())
	require.Equal(t, entry.ID, repo.sources["sale/SALE-1"])
}

func TestPostSameSourceTwiceRollsBackSecondEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), balancedInput("SALE-1"))
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), balancedInput("SALE-1"))
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
	require.Len(t, repo.entries, 1)
}

func TestPostRejectsUnbalancedInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	input := balancedInput("SALE-1")
	input.Lines[0].Debit = 44799
	_, err := svc.Post(context.Background(), input)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.entries)
}

func TestReverseMirrorsLinesAndVoidsOriginal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	original, err := svc.Post(context.Background(), balancedInput("SALE-1"))
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), original.ID, "")
	require.NoError(t, err)
	require.Equal(t, original.ID, reversal.ReversalOf)
	require.True(t, reversal.Balanced())
	require.Equal(t, original.Credits(), reversal.Debits())

	voided, err := svc.Get(context.Background(), original.ID)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)

	// The pair nets to zero account by account.
	net := map[int64]ledger.Centavos{}
	for _, line := range append(original.Lines, reversal.Lines...) {
		net[line.AccountID] += line.Debit - line.Credit
	}
	for accountID, remainder := range net {
		require.Zero(t, remainder, "account %d", accountID)
	}
}

func TestReverseVoidEntryRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	original, err := svc.Post(context.Background(), balancedInput("SALE-1"))
	require.NoError(t, err)
	_, err = svc.Reverse(context.Background(), original.ID, "")
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), original.ID, "")
	require.ErrorIs(t, err, ErrAlreadyVoid)
}

func TestVerifyBalances(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), balancedInput("SALE-1"))
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), balancedInput("SALE-2"))
	require.NoError(t, err)

	report, err := svc.VerifyBalances(context.Background())
	require.NoError(t, err)
	require.True(t, report.Balanced)
	require.Equal(t, int64(2), report.Totals.Entries)
	require.Equal(t, report.Totals.Debits, report.Totals.Credits)

	// Corrupt one stored entry directly; the sweep must flag it.
	entry := repo.entries[1]
	entry.Lines[0].Debit += 7
	repo.entries[1] = entry

	report, err = svc.VerifyBalances(context.Background())
	require.NoError(t, err)
	require.False(t, report.Balanced)
	require.Equal(t, []int64{1}, report.Unbalanced)
}
