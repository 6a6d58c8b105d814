package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tindahan-erp/tindahan-erp/internal/ledger"
	"github.com/tindahan-erp/tindahan-erp/internal/platform/db"
)

// Repository persists journal entries, lines and source links.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the writes that must share one transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, entry *Entry) error
	LinkSource(ctx context.Context, sourceType, sourceID string, entryID int64) error
	SetStatus(ctx context.Context, entryID int64, status Status) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn inside one repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, repo TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) Get(ctx context.Context, id int64) (Entry, error) {
	var entry Entry
	var reversalOf *int64
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, entry_date, memo, status, source_type, source_id, reversal_of, posted_by, posted_at
		FROM journal_entries WHERE id = $1`, id,
	).Scan(&entry.ID, &entry.Number, &entry.Date, &entry.Memo, &entry.Status,
		&entry.SourceType, &entry.SourceID, &reversalOf, &entry.PostedBy, &entry.PostedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}
	if reversalOf != nil {
		entry.ReversalOf = *reversalOf
	}
	lines, err := r.listLines(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *Repository) listLines(ctx context.Context, entryID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_id, account_id, debit_centavos, credit_centavos, memo
		FROM journal_lines WHERE entry_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListFilters narrows List.
type ListFilters struct {
	Status     Status
	SourceType string
	From       time.Time
	To         time.Time
	Limit      int
}

// List returns entries newest first, without lines.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Entry, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	query := `
		SELECT id, number, entry_date, memo, status, source_type, source_id, COALESCE(reversal_of, 0), posted_by, posted_at
		FROM journal_entries WHERE 1=1`
	args := []any{}
	n := 0
	if filters.Status != "" {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, filters.Status)
	}
	if filters.SourceType != "" {
		n++
		query += fmt.Sprintf(" AND source_type = $%d", n)
		args = append(args, filters.SourceType)
	}
	if !filters.From.IsZero() {
		n++
		query += fmt.Sprintf(" AND entry_date >= $%d", n)
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		n++
		query += fmt.Sprintf(" AND entry_date < $%d", n)
		args = append(args, filters.To)
	}
	n++
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", n)
	args = append(args, filters.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Number, &entry.Date, &entry.Memo, &entry.Status,
			&entry.SourceType, &entry.SourceID, &entry.ReversalOf, &entry.PostedBy, &entry.PostedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// BalanceTotals aggregates the posted book.
type BalanceTotals struct {
	Debits  ledger.Centavos `json:"debits"`
	Credits ledger.Centavos `json:"credits"`
	Entries int64           `json:"entries"`
}

// SumPosted totals debits and credits across all posted entries.
func (r *Repository) SumPosted(ctx context.Context) (BalanceTotals, error) {
	var totals BalanceTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.debit_centavos), 0), COALESCE(SUM(l.credit_centavos), 0), COUNT(DISTINCT e.id)
		FROM journal_entries e
		JOIN journal_lines l ON l.entry_id = e.id
		WHERE e.status = 'posted'`,
	).Scan(&totals.Debits, &totals.Credits, &totals.Entries)
	if err != nil {
		return BalanceTotals{}, fmt.Errorf("sum posted: %w", err)
	}
	return totals, nil
}

// ListUnbalanced returns ids of posted entries whose line sums diverge.
// A healthy book returns nothing.
func (r *Repository) ListUnbalanced(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id
		FROM journal_entries e
		JOIN journal_lines l ON l.entry_id = e.id
		WHERE e.status = 'posted'
		GROUP BY e.id
		HAVING SUM(l.debit_centavos) <> SUM(l.credit_centavos)
		ORDER BY e.id`)
	if err != nil {
		return nil, fmt.Errorf("list unbalanced: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unbalanced id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *txRepository) InsertEntry(ctx context.Context, entry *Entry) error {
	var reversalOf *int64
	if entry.ReversalOf != 0 {
		reversalOf = &entry.ReversalOf
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO journal_entries (number, entry_date, memo, status, source_type, source_id, reversal_of, posted_by, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		entry.Number, entry.Date, entry.Memo, entry.Status, entry.SourceType, entry.SourceID,
		reversalOf, entry.PostedBy, entry.PostedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.EntryID = entry.ID
		err := t.tx.QueryRow(ctx, `
			INSERT INTO journal_lines (entry_id, account_id, debit_centavos, credit_centavos, memo)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			line.EntryID, line.AccountID, line.Debit, line.Credit, line.Memo,
		).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
	}
	return nil
}

// LinkSource records the event-to-entry link. The unique index on
// (source_type, source_id) makes double posting a constraint violation.
func (t *txRepository) LinkSource(ctx context.Context, sourceType, sourceID string, entryID int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO journal_sources (source_type, source_id, entry_id)
		VALUES ($1, $2, $3)`,
		sourceType, sourceID, entryID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s %s", ErrSourceAlreadyLinked, sourceType, sourceID)
	}
	if err != nil {
		return fmt.Errorf("link source: %w", err)
	}
	return nil
}

func (t *txRepository) SetStatus(ctx context.Context, entryID int64, status Status) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE journal_entries SET status = $2 WHERE id = $1`, entryID, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
