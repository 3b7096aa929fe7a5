package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/taskflow/internal/observability"
)

// AuditHandler appends every consumed event to the task_event_log table.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs a handler backed by the provided pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// Handle stores the event. Redelivered offsets are ignored.
func (h *AuditHandler) Handle(ctx context.Context, event Event) error {
	aggregateID, err := AggregateID(event.Payload)
	if err != nil {
		return err
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO task_event_log (tenant_id, event_type, aggregate_id, schema_id, schema_subject, topic, kafka_partition, kafka_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (topic, kafka_partition, kafka_offset) DO NOTHING`,
		event.TenantID,
		event.EventType,
		aggregateID,
		event.SchemaID,
		event.SchemaSubject,
		event.Topic,
		event.Partition,
		event.Offset,
		event.Payload,
		event.Timestamp,
	)
	if err != nil {
		return err
	}
	observability.RecordAudited(event.Timestamp)
	return nil
}

// AggregateID extracts the identifier of the record an event payload describes.
func AggregateID(payload json.RawMessage) (string, error) {
	var ids struct {
		TaskID     string `json:"task_id"`
		ProjectID  string `json:"project_id"`
		ActivityID string `json:"activity_id"`
		SessionID  string `json:"session_id"`
	}
	if err := json.Unmarshal(payload, &ids); err != nil {
		return "", fmt.Errorf("decode payload ids: %w", err)
	}
	for _, id := range []string{ids.TaskID, ids.SessionID, ids.ProjectID, ids.ActivityID} {
		if id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("payload carries no aggregate id")
}
