package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/events"
	"example.com/taskflow/internal/observability"
	"example.com/taskflow/internal/persistence"
)

const taskColumns = `id, tenant_id, project_id, title, notes, status, progress, rounds, goal, goal_type, sort_order,
    detailed_notes, time_entries, activity_logs, media, completed_at, created_at, updated_at`

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	var projectID *string
	var status, progress, goalType string
	var c persistence.TaskCollections
	if err := row.Scan(&t.ID, &t.TenantID, &projectID, &t.Title, &t.Notes, &status, &progress, &t.Rounds, &t.Goal, &goalType, &t.Order,
		&c.DetailedNotes, &c.TimeEntries, &c.ActivityLogs, &c.Media, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	if projectID != nil {
		t.ProjectID = *projectID
	}
	t.Status = domain.TaskStatus(status)
	t.Progress = domain.Progress(progress)
	t.GoalType = domain.GoalType(goalType)
	return t, c.Decode(&t)
}

func taskUpserted(t domain.Task) outboxEvent {
	return outboxEvent{
		TenantID:      t.TenantID,
		AggregateType: string(domain.KindTask),
		AggregateID:   t.ID,
		EventType:     events.TypeTaskUpserted,
		OccurredAt:    t.UpdatedAt,
		Payload: events.TaskUpserted{
			TaskID:      t.ID,
			TenantID:    t.TenantID,
			ProjectID:   t.ProjectID,
			Title:       t.Title,
			Status:      string(t.Status),
			Progress:    string(t.Progress),
			Rounds:      t.Rounds,
			Goal:        t.Goal,
			GoalType:    string(t.GoalType),
			Order:       t.Order,
			CompletedAt: t.CompletedAt,
			UpdatedAt:   t.UpdatedAt,
		},
	}
}

// ListTasks returns the tenant's tasks matching filter.
func (r *Repository) ListTasks(ctx context.Context, tenantID string, filter domain.TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE tenant_id=$1`
	args := []interface{}{tenantID}
	switch {
	case filter.ProjectID != "":
		query += ` AND project_id=$2`
		args = append(args, filter.ProjectID)
	case filter.Unassigned:
		query += ` AND project_id IS NULL`
	}
	query += ` ORDER BY sort_order ASC, created_at ASC`

	var out []domain.Task
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("task list: %w", err)
	}
	return out, nil
}

// GetTask returns nil, nil when the task does not exist.
func (r *Repository) GetTask(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	var found *domain.Task
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		found, err = getTask(ctx, tx, tenantID, taskID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func getTask(ctx context.Context, tx pgx.Tx, tenantID, taskID string, forUpdate bool) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE tenant_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTask(tx.QueryRow(ctx, query, tenantID, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("task get: %w", err)
	}
	return &t, nil
}

// CreateTask persists the task and records an outbox event.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	c, err := persistence.EncodeTaskCollections(t)
	if err != nil {
		return err
	}
	err = r.inTenantTx(ctx, t.TenantID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			t.ID, t.TenantID, nullIfEmpty(t.ProjectID), t.Title, t.Notes, string(t.Status), string(t.Progress), t.Rounds, t.Goal, string(t.GoalType), t.Order,
			c.DetailedNotes, c.TimeEntries, c.ActivityLogs, c.Media, t.CompletedAt, t.CreatedAt, t.UpdatedAt); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, taskUpserted(t))
	})
	if err != nil {
		return fmt.Errorf("task create: %w", err)
	}
	observability.RecordPersisted(domain.KindTask, t.UpdatedAt)
	return nil
}

// UpdateTask locks the row, applies mutate and writes the task, its round records and
// the matching outbox events in one transaction.
func (r *Repository) UpdateTask(ctx context.Context, tenantID, taskID string, mutate domain.TaskMutator) (*domain.Task, error) {
	var updated *domain.Task
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		current, err := getTask(ctx, tx, tenantID, taskID, true)
		if err != nil || current == nil {
			return err
		}
		effects, err := mutate(current)
		if err != nil {
			return err
		}
		c, err := persistence.EncodeTaskCollections(*current)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE tasks SET project_id=$1, title=$2, notes=$3, status=$4, progress=$5, rounds=$6, goal=$7, goal_type=$8,
            sort_order=$9, detailed_notes=$10, time_entries=$11, activity_logs=$12, media=$13, completed_at=$14, updated_at=$15
            WHERE tenant_id=$16 AND id=$17`,
			nullIfEmpty(current.ProjectID), current.Title, current.Notes, string(current.Status), string(current.Progress), current.Rounds, current.Goal, string(current.GoalType),
			current.Order, c.DetailedNotes, c.TimeEntries, c.ActivityLogs, c.Media, current.CompletedAt, current.UpdatedAt,
			tenantID, taskID); err != nil {
			return fmt.Errorf("task update: %w", err)
		}
		for _, rec := range effects.RoundRecords {
			if _, err := tx.Exec(ctx, `INSERT INTO round_records (id, tenant_id, task_id, round, recorded_at) VALUES ($1,$2,$3,$4,$5)`,
				rec.ID, rec.TenantID, rec.TaskID, rec.Round, rec.Timestamp); err != nil {
				return fmt.Errorf("round record insert: %w", err)
			}
			if err := r.insertOutbox(ctx, tx, outboxEvent{
				TenantID:      rec.TenantID,
				AggregateType: string(domain.KindTask),
				AggregateID:   rec.TaskID,
				EventType:     events.TypeRoundCompleted,
				OccurredAt:    rec.Timestamp,
				Payload: events.RoundCompleted{
					RecordID:    rec.ID,
					TaskID:      rec.TaskID,
					TenantID:    rec.TenantID,
					Round:       rec.Round,
					CompletedAt: rec.Timestamp,
				},
			}); err != nil {
				return err
			}
		}
		if err := r.insertOutbox(ctx, tx, taskUpserted(*current)); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		observability.RecordPersisted(domain.KindTask, updated.UpdatedAt)
	}
	return updated, nil
}

// DeleteTask removes the task. Round records go with it through the foreign key.
func (r *Repository) DeleteTask(ctx context.Context, tenantID, taskID string) (bool, error) {
	now := time.Now().UTC()
	var deleted bool
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE tenant_id=$1 AND id=$2`, tenantID, taskID)
		if err != nil {
			return fmt.Errorf("task delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		deleted = true
		return r.insertOutbox(ctx, tx, outboxEvent{
			TenantID:      tenantID,
			AggregateType: string(domain.KindTask),
			AggregateID:   taskID,
			EventType:     events.TypeTaskDeleted,
			OccurredAt:    now,
			Payload:       events.TaskDeleted{TaskID: taskID, TenantID: tenantID, DeletedAt: now},
		})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// ListRoundRecords returns the task's round records newest first. A limit of zero returns all.
func (r *Repository) ListRoundRecords(ctx context.Context, tenantID, taskID string, cursor *domain.Cursor, limit int) ([]domain.RoundRecord, *domain.Cursor, error) {
	args := []interface{}{tenantID, taskID}
	query := `SELECT id, tenant_id, task_id, round, recorded_at FROM round_records WHERE tenant_id=$1 AND task_id=$2`
	if cursor != nil {
		query += fmt.Sprintf(` AND (recorded_at, id) < ($%d, $%d)`, len(args)+1, len(args)+2)
		args = append(args, cursor.At, cursor.ID)
	}
	query += ` ORDER BY recorded_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	var results []domain.RoundRecord
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec domain.RoundRecord
			if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.TaskID, &rec.Round, &rec.Timestamp); err != nil {
				return err
			}
			results = append(results, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("round record list: %w", err)
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{At: last.Timestamp, ID: last.ID}
	}
	return results, nextCursor, nil
}

// CountRoundRecordsSince counts the task's round records at or after since.
func (r *Repository) CountRoundRecordsSince(ctx context.Context, tenantID, taskID string, since time.Time) (int, error) {
	var count int
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM round_records WHERE tenant_id=$1 AND task_id=$2 AND recorded_at >= $3`,
			tenantID, taskID, since).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("round record count: %w", err)
	}
	return count, nil
}

// CreatePomodoroSession persists a completed session and records an outbox event.
func (r *Repository) CreatePomodoroSession(ctx context.Context, s domain.PomodoroSession) error {
	err := r.inTenantTx(ctx, s.TenantID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO pomodoro_sessions (id, tenant_id, task_id, day, completed_at) VALUES ($1,$2,$3,$4::date,$5)`,
			s.ID, s.TenantID, nullIfEmpty(s.TaskID), s.Day, s.CompletedAt); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, outboxEvent{
			TenantID:      s.TenantID,
			AggregateType: "pomodoro_session",
			AggregateID:   s.ID,
			EventType:     events.TypePomodoroSessionLogged,
			OccurredAt:    s.CompletedAt,
			Payload: events.PomodoroSessionLogged{
				SessionID:   s.ID,
				TenantID:    s.TenantID,
				TaskID:      s.TaskID,
				Day:         s.Day,
				CompletedAt: s.CompletedAt,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("pomodoro session create: %w", err)
	}
	return nil
}

// CountPomodoroSessions counts sessions whose day falls within [fromDay, toDay].
func (r *Repository) CountPomodoroSessions(ctx context.Context, tenantID, fromDay, toDay string) (int, error) {
	var count int
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM pomodoro_sessions WHERE tenant_id=$1 AND day BETWEEN $2::date AND $3::date`,
			tenantID, fromDay, toDay).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("pomodoro session count: %w", err)
	}
	return count, nil
}
