package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/observability"
	"example.com/taskflow/internal/persistence"
)

const taskColumns = `id, tenant_id, project_id, title, notes, status, progress, rounds, goal, goal_type, sort_order,
	detailed_notes, time_entries, activity_logs, media, completed_at, created_at, updated_at`

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var projectID, completedAt sql.NullString
	var status, progress, goalType string
	var createdAt, updatedAt string
	var notes, entries, logs, media string
	if err := row.Scan(&t.ID, &t.TenantID, &projectID, &t.Title, &t.Notes, &status, &progress, &t.Rounds, &t.Goal, &goalType, &t.Order,
		&notes, &entries, &logs, &media, &completedAt, &createdAt, &updatedAt); err != nil {
		return t, err
	}
	t.ProjectID = projectID.String
	t.Status = domain.TaskStatus(status)
	t.Progress = domain.Progress(progress)
	t.GoalType = domain.GoalType(goalType)

	collections := persistence.TaskCollections{
		DetailedNotes: []byte(notes),
		TimeEntries:   []byte(entries),
		ActivityLogs:  []byte(logs),
		Media:         []byte(media),
	}
	if err := collections.Decode(&t); err != nil {
		return t, err
	}

	var err error
	if completedAt.Valid {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return t, err
		}
		t.CompletedAt = &ts
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, err
	}
	return t, nil
}

func completedAtValue(t domain.Task) sql.NullString {
	if t.CompletedAt == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t.CompletedAt), Valid: true}
}

// ListTasks returns the tenant's tasks matching filter.
func (r *Repository) ListTasks(ctx context.Context, tenantID string, filter domain.TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE tenant_id = ?`
	args := []any{tenantID}
	switch {
	case filter.ProjectID != "":
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	case filter.Unassigned:
		query += ` AND project_id IS NULL`
	}
	query += ` ORDER BY sort_order ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("task list: %w", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("task scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task rows: %w", err)
	}
	return out, nil
}

// GetTask returns nil, nil when the task does not exist.
func (r *Repository) GetTask(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	return getTask(ctx, r.db, tenantID, taskID)
}

func getTask(ctx context.Context, q queryRower, tenantID, taskID string) (*domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id = ? AND id = ?`, tenantID, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("task get: %w", err)
	}
	return &t, nil
}

// CreateTask inserts a new task.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	c, err := persistence.EncodeTaskCollections(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, nullString(t.ProjectID), t.Title, t.Notes, string(t.Status), string(t.Progress), t.Rounds, t.Goal, string(t.GoalType), t.Order,
		string(c.DetailedNotes), string(c.TimeEntries), string(c.ActivityLogs), string(c.Media), completedAtValue(t), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("task create: %w", err)
	}
	observability.RecordPersisted(domain.KindTask, t.UpdatedAt)
	return nil
}

// UpdateTask loads the task, applies mutate and writes the task plus any round records
// in one transaction. An error from mutate rolls everything back.
func (r *Repository) UpdateTask(ctx context.Context, tenantID, taskID string, mutate domain.TaskMutator) (*domain.Task, error) {
	var updated *domain.Task
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := getTask(ctx, tx, tenantID, taskID)
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
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET project_id = ?, title = ?, notes = ?, status = ?, progress = ?, rounds = ?, goal = ?, goal_type = ?,
			sort_order = ?, detailed_notes = ?, time_entries = ?, activity_logs = ?, media = ?, completed_at = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ?`,
			nullString(current.ProjectID), current.Title, current.Notes, string(current.Status), string(current.Progress), current.Rounds, current.Goal, string(current.GoalType),
			current.Order, string(c.DetailedNotes), string(c.TimeEntries), string(c.ActivityLogs), string(c.Media), completedAtValue(*current), formatTime(current.UpdatedAt),
			tenantID, taskID); err != nil {
			return fmt.Errorf("task update: %w", err)
		}
		if err := insertRoundRecords(ctx, tx, effects.RoundRecords); err != nil {
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

func insertRoundRecords(ctx context.Context, db execer, records []domain.RoundRecord) error {
	for _, rec := range records {
		if _, err := db.ExecContext(ctx, `INSERT INTO round_records (id, tenant_id, task_id, round, recorded_at) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, rec.TenantID, rec.TaskID, rec.Round, formatTime(rec.Timestamp)); err != nil {
			return fmt.Errorf("round record insert: %w", err)
		}
	}
	return nil
}

// DeleteTask removes the task and its round records.
func (r *Repository) DeleteTask(ctx context.Context, tenantID, taskID string) (bool, error) {
	var deleted bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM round_records WHERE tenant_id = ? AND task_id = ?`, tenantID, taskID); err != nil {
			return fmt.Errorf("task delete rounds: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE tenant_id = ? AND id = ?`, tenantID, taskID)
		if err != nil {
			return fmt.Errorf("task delete: %w", err)
		}
		if deleted, err = affected(res); err != nil {
			return err
		}
		if !deleted {
			return errNothingDeleted
		}
		return nil
	})
	if errors.Is(err, errNothingDeleted) {
		return false, nil
	}
	return deleted, err
}

// ListRoundRecords returns the task's round records newest first. A limit of zero returns all.
func (r *Repository) ListRoundRecords(ctx context.Context, tenantID, taskID string, cursor *domain.Cursor, limit int) ([]domain.RoundRecord, *domain.Cursor, error) {
	query := `SELECT id, tenant_id, task_id, round, recorded_at FROM round_records WHERE tenant_id = ? AND task_id = ?`
	args := []any{tenantID, taskID}
	if cursor != nil {
		query += ` AND (recorded_at < ? OR (recorded_at = ? AND id < ?))`
		at := formatTime(cursor.At)
		args = append(args, at, at, cursor.ID)
	}
	query += ` ORDER BY recorded_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("round record list: %w", err)
	}
	defer rows.Close()

	var out []domain.RoundRecord
	for rows.Next() {
		var rec domain.RoundRecord
		var recordedAt string
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.TaskID, &rec.Round, &recordedAt); err != nil {
			return nil, nil, fmt.Errorf("round record scan: %w", err)
		}
		if rec.Timestamp, err = parseTime(recordedAt); err != nil {
			return nil, nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("round record rows: %w", err)
	}

	var next *domain.Cursor
	if limit > 0 && len(out) == limit {
		last := out[len(out)-1]
		next = &domain.Cursor{At: last.Timestamp, ID: last.ID}
	}
	return out, next, nil
}

// CountRoundRecordsSince counts the task's round records at or after since.
func (r *Repository) CountRoundRecordsSince(ctx context.Context, tenantID, taskID string, since time.Time) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM round_records WHERE tenant_id = ? AND task_id = ? AND recorded_at >= ?`,
		tenantID, taskID, formatTime(since))
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("round record count: %w", err)
	}
	return count, nil
}

// CreatePomodoroSession inserts a completed session.
func (r *Repository) CreatePomodoroSession(ctx context.Context, s domain.PomodoroSession) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO pomodoro_sessions (id, tenant_id, task_id, day, completed_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.TenantID, nullString(s.TaskID), s.Day, formatTime(s.CompletedAt))
	if err != nil {
		return fmt.Errorf("pomodoro session create: %w", err)
	}
	return nil
}

// CountPomodoroSessions counts sessions whose day falls within [fromDay, toDay].
func (r *Repository) CountPomodoroSessions(ctx context.Context, tenantID, fromDay, toDay string) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pomodoro_sessions WHERE tenant_id = ? AND day >= ? AND day <= ?`, tenantID, fromDay, toDay)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("pomodoro session count: %w", err)
	}
	return count, nil
}

var _ domain.Repository = (*Repository)(nil)
