// Package postgres implements the repository on PostgreSQL with row-level tenant
// isolation and a transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/events"
	"example.com/taskflow/internal/observability"
)

// Repository provides Postgres-backed persistence for the productivity domain and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// inTenantTx runs fn in a transaction scoped to tenantID for row-level security.
func (r *Repository) inTenantTx(ctx context.Context, tenantID string, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type outboxEvent struct {
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	OccurredAt    time.Time
	Payload       any
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, evt outboxEvent) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[evt.EventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", evt.EventType)
	}

	partitionKey := meta.PartitionKeyFn(evt)
	dedupeKey := fmt.Sprintf("%s:%s:%d", evt.AggregateID, evt.EventType, evt.OccurredAt.UnixNano())

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		evt.TenantID,
		evt.AggregateType,
		evt.AggregateID,
		evt.EventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func activityUpserted(a domain.Activity) outboxEvent {
	return outboxEvent{
		TenantID:      a.TenantID,
		AggregateType: string(domain.KindActivity),
		AggregateID:   a.ID,
		EventType:     events.TypeActivityUpserted,
		OccurredAt:    a.UpdatedAt,
		Payload: events.ActivityUpserted{
			ActivityID:  a.ID,
			TenantID:    a.TenantID,
			Title:       a.Title,
			Description: a.Description,
			Order:       a.Order,
			UpdatedAt:   a.UpdatedAt,
		},
	}
}

func projectUpserted(p domain.Project) outboxEvent {
	return outboxEvent{
		TenantID:      p.TenantID,
		AggregateType: string(domain.KindProject),
		AggregateID:   p.ID,
		EventType:     events.TypeProjectUpserted,
		OccurredAt:    p.UpdatedAt,
		Payload: events.ProjectUpserted{
			ProjectID:  p.ID,
			TenantID:   p.TenantID,
			ActivityID: p.ActivityID,
			Title:      p.Title,
			Order:      p.Order,
			UpdatedAt:  p.UpdatedAt,
		},
	}
}

func projectDeleted(tenantID, projectID string, at time.Time) outboxEvent {
	return outboxEvent{
		TenantID:      tenantID,
		AggregateType: string(domain.KindProject),
		AggregateID:   projectID,
		EventType:     events.TypeProjectDeleted,
		OccurredAt:    at,
		Payload:       events.ProjectDeleted{ProjectID: projectID, TenantID: tenantID, DeletedAt: at},
	}
}

const activityColumns = `id, tenant_id, title, description, sort_order, created_at, updated_at`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.TenantID, &a.Title, &a.Description, &a.Order, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// ListActivities returns every activity of the tenant.
func (r *Repository) ListActivities(ctx context.Context, tenantID string) ([]domain.Activity, error) {
	var out []domain.Activity
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+activityColumns+` FROM activities WHERE tenant_id=$1 ORDER BY sort_order ASC, created_at DESC`, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanActivity(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("activity list: %w", err)
	}
	return out, nil
}

// GetActivity returns nil, nil when the activity does not exist.
func (r *Repository) GetActivity(ctx context.Context, tenantID, activityID string) (*domain.Activity, error) {
	var found *domain.Activity
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		found, err = getActivity(ctx, tx, tenantID, activityID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func getActivity(ctx context.Context, tx pgx.Tx, tenantID, activityID string, forUpdate bool) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanActivity(tx.QueryRow(ctx, query, tenantID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("activity get: %w", err)
	}
	return &a, nil
}

// CreateActivity persists the activity and records an outbox event inside a single transaction.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) error {
	err := r.inTenantTx(ctx, a.TenantID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO activities (`+activityColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			a.ID, a.TenantID, a.Title, a.Description, a.Order, a.CreatedAt, a.UpdatedAt); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, activityUpserted(a))
	})
	if err != nil {
		return fmt.Errorf("activity create: %w", err)
	}
	observability.RecordPersisted(domain.KindActivity, a.UpdatedAt)
	return nil
}

// UpdateActivity locks the row, applies mutate and writes it back.
func (r *Repository) UpdateActivity(ctx context.Context, tenantID, activityID string, mutate func(*domain.Activity) error) (*domain.Activity, error) {
	var updated *domain.Activity
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		current, err := getActivity(ctx, tx, tenantID, activityID, true)
		if err != nil || current == nil {
			return err
		}
		if err := mutate(current); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE activities SET title=$1, description=$2, sort_order=$3, updated_at=$4 WHERE tenant_id=$5 AND id=$6`,
			current.Title, current.Description, current.Order, current.UpdatedAt, tenantID, activityID); err != nil {
			return fmt.Errorf("activity update: %w", err)
		}
		if err := r.insertOutbox(ctx, tx, activityUpserted(*current)); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		observability.RecordPersisted(domain.KindActivity, updated.UpdatedAt)
	}
	return updated, nil
}

// DeleteActivity removes the activity and its projects and unassigns their tasks.
func (r *Repository) DeleteActivity(ctx context.Context, tenantID, activityID string) (bool, error) {
	var deleted bool
	now := time.Now().UTC()
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		current, err := getActivity(ctx, tx, tenantID, activityID, true)
		if err != nil || current == nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE tasks SET project_id=NULL, updated_at=$3
            WHERE tenant_id=$1 AND project_id IN (SELECT id FROM projects WHERE tenant_id=$1 AND activity_id=$2)`,
			tenantID, activityID, now); err != nil {
			return fmt.Errorf("activity unassign tasks: %w", err)
		}
		rows, err := tx.Query(ctx, `DELETE FROM projects WHERE tenant_id=$1 AND activity_id=$2 RETURNING id`, tenantID, activityID)
		if err != nil {
			return fmt.Errorf("activity delete projects: %w", err)
		}
		projectIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		for _, id := range projectIDs {
			if err := r.insertOutbox(ctx, tx, projectDeleted(tenantID, id, now)); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE tenant_id=$1 AND id=$2`, tenantID, activityID); err != nil {
			return fmt.Errorf("activity delete: %w", err)
		}
		deleted = true
		return r.insertOutbox(ctx, tx, outboxEvent{
			TenantID:      tenantID,
			AggregateType: string(domain.KindActivity),
			AggregateID:   activityID,
			EventType:     events.TypeActivityDeleted,
			OccurredAt:    now,
			Payload:       events.ActivityDeleted{ActivityID: activityID, TenantID: tenantID, DeletedAt: now},
		})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

const projectColumns = `id, tenant_id, activity_id, title, description, sort_order, created_at, updated_at`

func scanProject(row pgx.Row) (domain.Project, error) {
	var p domain.Project
	var activityID *string
	if err := row.Scan(&p.ID, &p.TenantID, &activityID, &p.Title, &p.Description, &p.Order, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	if activityID != nil {
		p.ActivityID = *activityID
	}
	return p, nil
}

// ListProjects returns the tenant's projects, optionally for one activity.
func (r *Repository) ListProjects(ctx context.Context, tenantID string, filter domain.ProjectFilter) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE tenant_id=$1`
	args := []interface{}{tenantID}
	switch {
	case filter.ActivityID != "":
		query += ` AND activity_id=$2`
		args = append(args, filter.ActivityID)
	case filter.Unassigned:
		query += ` AND activity_id IS NULL`
	}
	query += ` ORDER BY sort_order ASC, created_at ASC`

	var out []domain.Project
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("project list: %w", err)
	}
	return out, nil
}

// GetProject returns nil, nil when the project does not exist.
func (r *Repository) GetProject(ctx context.Context, tenantID, projectID string) (*domain.Project, error) {
	var found *domain.Project
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		found, err = getProject(ctx, tx, tenantID, projectID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func getProject(ctx context.Context, tx pgx.Tx, tenantID, projectID string, forUpdate bool) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE tenant_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanProject(tx.QueryRow(ctx, query, tenantID, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("project get: %w", err)
	}
	return &p, nil
}

// CreateProject persists the project and records an outbox event.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	err := r.inTenantTx(ctx, p.TenantID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			p.ID, p.TenantID, nullIfEmpty(p.ActivityID), p.Title, p.Description, p.Order, p.CreatedAt, p.UpdatedAt); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, projectUpserted(p))
	})
	if err != nil {
		return fmt.Errorf("project create: %w", err)
	}
	observability.RecordPersisted(domain.KindProject, p.UpdatedAt)
	return nil
}

// UpdateProject locks the row, applies mutate and writes it back.
func (r *Repository) UpdateProject(ctx context.Context, tenantID, projectID string, mutate func(*domain.Project) error) (*domain.Project, error) {
	var updated *domain.Project
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		current, err := getProject(ctx, tx, tenantID, projectID, true)
		if err != nil || current == nil {
			return err
		}
		if err := mutate(current); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE projects SET activity_id=$1, title=$2, description=$3, sort_order=$4, updated_at=$5 WHERE tenant_id=$6 AND id=$7`,
			nullIfEmpty(current.ActivityID), current.Title, current.Description, current.Order, current.UpdatedAt, tenantID, projectID); err != nil {
			return fmt.Errorf("project update: %w", err)
		}
		if err := r.insertOutbox(ctx, tx, projectUpserted(*current)); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		observability.RecordPersisted(domain.KindProject, updated.UpdatedAt)
	}
	return updated, nil
}

// DeleteProject removes the project and unassigns its tasks.
func (r *Repository) DeleteProject(ctx context.Context, tenantID, projectID string) (bool, error) {
	var deleted bool
	now := time.Now().UTC()
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE tasks SET project_id=NULL, updated_at=$3 WHERE tenant_id=$1 AND project_id=$2`, tenantID, projectID, now); err != nil {
			return fmt.Errorf("project unassign tasks: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE tenant_id=$1 AND id=$2`, tenantID, projectID)
		if err != nil {
			return fmt.Errorf("project delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errNothingDeleted
		}
		deleted = true
		return r.insertOutbox(ctx, tx, projectDeleted(tenantID, projectID, now))
	})
	if errors.Is(err, errNothingDeleted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// errNothingDeleted rolls back cascading statements when the parent row was missing.
var errNothingDeleted = errors.New("nothing deleted")

var orderTables = map[domain.EntityKind]string{
	domain.KindActivity: "activities",
	domain.KindProject:  "projects",
	domain.KindTask:     "tasks",
}

// UpdateOrders writes new order values for a batch of records in one transaction.
func (r *Repository) UpdateOrders(ctx context.Context, tenantID string, kind domain.EntityKind, updates []domain.OrderUpdate) error {
	table, ok := orderTables[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	stmt := fmt.Sprintf(`UPDATE %s SET sort_order=$1 WHERE tenant_id=$2 AND id=$3`, table)
	return r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range updates {
			batch.Queue(stmt, u.Order, tenantID, u.ID)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(outboxEvent) string
}

func byAggregate(evt outboxEvent) string {
	return evt.AggregateID
}

func byTenant(evt outboxEvent) string {
	return evt.TenantID
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityUpserted: {
		Topic:          "productivity_activities",
		SchemaSubject:  "productivity_activities-value",
		PartitionKeyFn: byAggregate,
	},
	events.TypeActivityDeleted: {
		Topic:          "productivity_activities",
		SchemaSubject:  "productivity_activities-value",
		PartitionKeyFn: byAggregate,
	},
	events.TypeProjectUpserted: {
		Topic:          "productivity_projects",
		SchemaSubject:  "productivity_projects-value",
		PartitionKeyFn: byAggregate,
	},
	events.TypeProjectDeleted: {
		Topic:          "productivity_projects",
		SchemaSubject:  "productivity_projects-value",
		PartitionKeyFn: byAggregate,
	},
	events.TypeTaskUpserted: {
		Topic:          "productivity_tasks",
		SchemaSubject:  "productivity_tasks-value",
		PartitionKeyFn: byAggregate,
	},
	events.TypeTaskDeleted: {
		Topic:          "productivity_tasks",
		SchemaSubject:  "productivity_tasks-value",
		PartitionKeyFn: byAggregate,
	},
	events.TypeRoundCompleted: {
		Topic:          "productivity_rounds",
		SchemaSubject:  "productivity_rounds-value",
		PartitionKeyFn: byAggregate,
	},
	events.TypePomodoroSessionLogged: {
		Topic:          "productivity_pomodoro",
		SchemaSubject:  "productivity_pomodoro-value",
		PartitionKeyFn: byTenant,
	},
}

var _ domain.Repository = (*Repository)(nil)
