package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLogger writes records into audit_logs. Reversals are the only
// ledger-affecting operation that mutates counters downward, so they always
// leave an audit row in addition to the counter-allocation.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, action, entity, entityID string, meta map[string]any) error {
	if l == nil {
		return errors.New("finance: audit logger not initialised")
	}
	if action == "" || entity == "" || entityID == "" {
		return errors.New("finance: audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, NOW())`,
		action, entity, entityID, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("finance: record audit log: %w", err)
	}
	return nil
}
