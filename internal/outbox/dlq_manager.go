package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxBackoff = time.Hour

// Defaults applied by NewDLQManager to non-positive settings.
const (
	DefaultDLQMaxRetries = 5
	DefaultDLQBaseDelay  = time.Minute
)

// DLQManager moves dead-lettered events back into the outbox. An entry whose requeue fails
// is rescheduled with exponential backoff; once it has been retried maxRetries times it is
// quarantined for manual inspection.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = DefaultDLQMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultDLQBaseDelay
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// dlqEntry is an outbox_dlq row that is due for another attempt.
type dlqEntry struct {
	ID         int64
	Message    Message
	Reason     string
	RetryCount int
}

// Run calls RunOnce every interval until ctx is cancelled. report, when set, receives the
// result of every pass.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int, report func(requeued int, err error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		requeued, err := m.RunOnce(ctx, batchSize)
		if report != nil {
			report(requeued, err)
		}
	}
}

// RunOnce handles up to batchSize due entries and returns how many went back to the outbox.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, `SELECT dlq_id, tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1`, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, scanDLQEntry)
	if err != nil {
		return 0, err
	}

	var errs []error
	requeued := 0
	for _, entry := range entries {
		outcome, err := m.handle(ctx, entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, err))
			continue
		}
		dlqOutcomeCounter.WithLabelValues(entry.Message.Topic, outcome).Inc()
		if outcome == outcomeRequeued {
			requeued++
		}
	}
	refreshBacklog(ctx, m.pool)
	return requeued, errors.Join(errs...)
}

// handle settles one entry inside the tenant's transaction and names the outcome.
func (m *DLQManager) handle(ctx context.Context, entry dlqEntry) (outcome string, err error) {
	err = inTenantTx(ctx, m.pool, entry.Message.TenantID, func(tx pgx.Tx) error {
		if entry.RetryCount >= m.maxRetries {
			outcome = outcomeQuarantined
			_, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
				fmt.Sprintf("retry limit %d reached", m.maxRetries), entry.ID)
			return err
		}

		// A failed insert aborts the transaction, so it runs under a savepoint.
		sp, err := tx.Begin(ctx)
		if err != nil {
			return err
		}
		if requeueErr := requeue(ctx, sp, entry); requeueErr != nil {
			_ = sp.Rollback(ctx)
			outcome = outcomeRescheduled
			_, err := tx.Exec(ctx, `UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
              WHERE dlq_id = $3`,
				BackoffDelay(m.baseDelay, entry.RetryCount+1), requeueErr.Error(), entry.ID)
			return err
		}
		if err := sp.Commit(ctx); err != nil {
			return err
		}

		outcome = outcomeRequeued
		_, err = tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return err
	})
	return outcome, err
}

// BackoffDelay doubles base for every attempt after the first, capped at one hour.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= maxBackoff/2 {
			return maxBackoff
		}
		delay *= 2
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// requeue inserts the entry as a fresh outbox row. The dedupe key ties it to the DLQ row.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	msg := entry.Message
	if msg.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}
	_, err := tx.Exec(ctx, `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.TenantID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Topic, msg.SchemaSubject, msg.PartitionKey, msg.Payload,
		fmt.Sprintf("dlq:%d", entry.ID),
	)
	return err
}

func scanDLQEntry(row pgx.CollectableRow) (dlqEntry, error) {
	var e dlqEntry
	err := row.Scan(&e.ID, &e.Message.TenantID, &e.Message.EventID, &e.Message.EventType, &e.Message.Topic, &e.Message.Payload, &e.Reason,
		&e.Message.AggregateType, &e.Message.AggregateID, &e.Message.SchemaSubject, &e.Message.PartitionKey, &e.RetryCount)
	return e, err
}
