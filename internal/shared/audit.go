package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one row in audit_logs. Every ledger mutation writes one:
// posted entries, stock movements, order transitions.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends to audit_logs. Rows are never updated or deleted.
type AuditLogger struct {
	pool *pgxpool.Pool
}

func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

const insertAuditSQL = `
INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Record appends one entry. Action, entity and entity id are mandatory;
// a zero timestamp is filled with the current UTC time.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("shared: audit logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("shared: audit log requires action, entity and entity_id")
	}

	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("shared: marshal audit meta: %w", err)
	}

	if _, err := l.pool.Exec(ctx, insertAuditSQL,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, metaJSON, at); err != nil {
		return fmt.Errorf("shared: insert audit log: %w", err)
	}
	return nil
}
