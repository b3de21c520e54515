package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OverdueScanJob persists the OVERDUE status for open invoices that are past
// due with an outstanding balance. Reads derive the same status on the fly;
// the persisted value keeps filters and exports cheap.
type OverdueScanJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// overdueScanQuery targets the same invoices table the finance repository
// serves reads from.
const overdueScanQuery = `
	UPDATE invoices
	SET status = 'OVERDUE', updated_at = NOW()
	WHERE status IN ('SENT', 'PARTIAL')
	  AND due_at < $1
	  AND total - amount_paid > 0`

// NewOverdueScanJob constructs an OverdueScanJob.
func NewOverdueScanJob(pool *pgxpool.Pool, logger *slog.Logger) *OverdueScanJob {
	return &OverdueScanJob{pool: pool, logger: logger}
}

// Handler returns the Asynq handler for TaskOverdueScan.
func (j *OverdueScanJob) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OverdueScanPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		asOf := payload.AsOf
		if asOf.IsZero() {
			asOf = time.Now()
		}
		return j.Run(ctx, asOf)
	}
}

// Run marks past-due invoices. Cancelled, paid and written-off invoices are
// never touched; a later payment moves the invoice forward out of OVERDUE
// through the allocation engine.
func (j *OverdueScanJob) Run(ctx context.Context, asOf time.Time) error {
	tag, err := j.pool.Exec(ctx, overdueScanQuery, asOf)
	if err != nil {
		j.logger.Error("overdue scan failed", slog.Any("error", err))
		return err
	}
	j.logger.Info("overdue scan completed",
		slog.Time("as_of", asOf),
		slog.Int64("invoices_marked", tag.RowsAffected()))
	return nil
}
