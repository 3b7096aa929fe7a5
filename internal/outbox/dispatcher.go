// Package outbox delivers productivity events written by the Postgres repository to Kafka.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// failedMessage is a message that could not be published and the reason recorded in the DLQ.
type failedMessage struct {
	Message
	reason string
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the logger used for delivery failures.
func WithDispatcherLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher claims unpublished outbox rows, publishes them per topic, and settles each
// batch: published rows are stamped, rows that failed are copied to outbox_dlq in the
// same transaction.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	logger       *log.Logger
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time

	mu        sync.Mutex
	schemaIDs map[string]int

	done chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		logger:       log.New(os.Stderr, "[outbox] ", log.LstdFlags),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          func() time.Time { return time.Now().UTC() },
		schemaIDs:    make(map[string]int),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. Run it in its own goroutine and call Wait on shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.done)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("dispatch failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	messages, err := d.claim(ctx)
	if err != nil || len(messages) == 0 {
		return err
	}
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	sent, failed := d.deliver(ctx, messages)
	for _, f := range failed {
		d.logger.Printf("event %d (%s) to %s failed: %s", f.EventID, f.EventType, f.Topic, f.reason)
	}
	return d.settle(ctx, sent, failed)
}

// claim locks a batch with SKIP LOCKED so parallel dispatchers never share rows.
func (d *Dispatcher) claim(ctx context.Context) (messages []Message, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || len(messages) == 0 {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `SELECT event_id, tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`, d.batchSize)
	if err != nil {
		return nil, err
	}
	messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.EventID, &m.TenantID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic, &m.SchemaSubject, &m.PartitionKey, &m.Payload)
		return m, err
	})
	if err != nil || len(messages) == 0 {
		return nil, err
	}

	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.EventID
	}
	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	claimedCounter.Add(float64(len(messages)))
	return messages, nil
}

// schemaID resolves the registry ID of subject once per dispatcher.
func (d *Dispatcher) schemaID(ctx context.Context, subject, eventType string) (int, error) {
	entry, ok := schemaCatalog[eventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", eventType)
	}

	d.mu.Lock()
	id, cached := d.schemaIDs[subject]
	d.mu.Unlock()
	if cached {
		return id, nil
	}

	id, err := d.registry.EnsureSchema(ctx, subject, entry.Schema)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	if d.schemaIDs == nil {
		d.schemaIDs = make(map[string]int)
	}
	d.schemaIDs[subject] = id
	d.mu.Unlock()
	return id, nil
}

// deliver publishes messages grouped by topic in first-seen order. A message that cannot be
// framed fails on its own; a failed write fails every message of that topic.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) (sent []Message, failed []failedMessage) {
	now := time.Now().UTC()
	if d.now != nil {
		now = d.now()
	}

	var topics []string
	pending := make(map[string][]Message)
	records := make(map[string][]kafka.Message)
	for _, m := range messages {
		id, err := d.schemaID(ctx, m.SchemaSubject, m.EventType)
		if err != nil {
			failed = append(failed, failedMessage{Message: m, reason: err.Error()})
			continue
		}
		if _, seen := pending[m.Topic]; !seen {
			topics = append(topics, m.Topic)
		}
		pending[m.Topic] = append(pending[m.Topic], m)
		records[m.Topic] = append(records[m.Topic], m.record(id, now))
	}

	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, records[topic]...); err != nil {
			for _, m := range pending[topic] {
				failed = append(failed, failedMessage{Message: m, reason: fmt.Sprintf("%v (topic=%s)", err, topic)})
			}
			continue
		}
		sent = append(sent, pending[topic]...)
	}
	return sent, failed
}

// settle stamps published_at on every handled row and copies failures into outbox_dlq, one
// transaction per tenant.
func (d *Dispatcher) settle(ctx context.Context, sent []Message, failed []failedMessage) error {
	type tenantBatch struct {
		sent   []Message
		failed []failedMessage
	}
	batches := make(map[string]*tenantBatch)
	batchFor := func(tenantID string) *tenantBatch {
		b, ok := batches[tenantID]
		if !ok {
			b = &tenantBatch{}
			batches[tenantID] = b
		}
		return b
	}
	for _, m := range sent {
		b := batchFor(m.TenantID)
		b.sent = append(b.sent, m)
	}
	for _, f := range failed {
		b := batchFor(f.TenantID)
		b.failed = append(b.failed, f)
	}

	tenants := make([]string, 0, len(batches))
	for tenantID := range batches {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)

	var errs []error
	for _, tenantID := range tenants {
		b := batches[tenantID]
		ids := make([]int64, 0, len(b.sent)+len(b.failed))
		for _, m := range b.sent {
			ids = append(ids, m.EventID)
		}
		for _, f := range b.failed {
			ids = append(ids, f.EventID)
		}

		err := inTenantTx(ctx, d.pool, tenantID, func(tx pgx.Tx) error {
			for _, f := range b.failed {
				if err := insertDLQ(ctx, tx, f); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("settle tenant %s: %w", tenantID, err))
			continue
		}
		for _, m := range b.sent {
			publishedCounter.WithLabelValues(m.Topic).Inc()
		}
		for _, f := range b.failed {
			deadLetteredCounter.WithLabelValues(f.Topic).Inc()
		}
	}
	return errors.Join(errs...)
}

func insertDLQ(ctx context.Context, tx pgx.Tx, f failedMessage) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
		f.TenantID, f.EventID, f.EventType, f.Topic, f.Payload, f.reason, f.AggregateType, f.AggregateID, f.SchemaSubject, f.PartitionKey,
	)
	return err
}
