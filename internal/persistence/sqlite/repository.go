package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/observability"
)

// Repository provides SQLite-backed persistence for the productivity domain.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const activityColumns = `id, tenant_id, title, description, sort_order, created_at, updated_at`

func scanActivity(row scanner) (domain.Activity, error) {
	var a domain.Activity
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.TenantID, &a.Title, &a.Description, &a.Order, &createdAt, &updatedAt); err != nil {
		return a, err
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return a, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return a, err
	}
	return a, nil
}

// ListActivities returns every activity of the tenant.
func (r *Repository) ListActivities(ctx context.Context, tenantID string) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE tenant_id = ? ORDER BY sort_order ASC, created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("activity list: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("activity scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity rows: %w", err)
	}
	return out, nil
}

// GetActivity returns nil, nil when the activity does not exist.
func (r *Repository) GetActivity(ctx context.Context, tenantID, activityID string) (*domain.Activity, error) {
	return getActivity(ctx, r.db, tenantID, activityID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getActivity(ctx context.Context, q queryRower, tenantID, activityID string) (*domain.Activity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE tenant_id = ? AND id = ?`, tenantID, activityID)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("activity get: %w", err)
	}
	return &a, nil
}

// CreateActivity inserts a new activity.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO activities (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.Title, a.Description, a.Order, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("activity create: %w", err)
	}
	observability.RecordPersisted(domain.KindActivity, a.UpdatedAt)
	return nil
}

// UpdateActivity loads the activity, applies mutate and writes it back in one transaction.
func (r *Repository) UpdateActivity(ctx context.Context, tenantID, activityID string, mutate func(*domain.Activity) error) (*domain.Activity, error) {
	var updated *domain.Activity
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := getActivity(ctx, tx, tenantID, activityID)
		if err != nil || current == nil {
			return err
		}
		if err := mutate(current); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE activities SET title = ?, description = ?, sort_order = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
			current.Title, current.Description, current.Order, formatTime(current.UpdatedAt), tenantID, activityID); err != nil {
			return fmt.Errorf("activity update: %w", err)
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
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET project_id = NULL
			WHERE tenant_id = ? AND project_id IN (SELECT id FROM projects WHERE tenant_id = ? AND activity_id = ?)`,
			tenantID, tenantID, activityID); err != nil {
			return fmt.Errorf("activity unassign tasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE tenant_id = ? AND activity_id = ?`, tenantID, activityID); err != nil {
			return fmt.Errorf("activity delete projects: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE tenant_id = ? AND id = ?`, tenantID, activityID)
		if err != nil {
			return fmt.Errorf("activity delete: %w", err)
		}
		deleted, err = affected(res)
		if err != nil {
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

// errNothingDeleted rolls back cascading statements when the parent row was missing.
var errNothingDeleted = errors.New("nothing deleted")

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

const projectColumns = `id, tenant_id, activity_id, title, description, sort_order, created_at, updated_at`

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var activityID sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.TenantID, &activityID, &p.Title, &p.Description, &p.Order, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	p.ActivityID = activityID.String
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return p, err
	}
	return p, nil
}

// ListProjects returns the tenant's projects, optionally for one activity.
func (r *Repository) ListProjects(ctx context.Context, tenantID string, filter domain.ProjectFilter) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE tenant_id = ?`
	args := []any{tenantID}
	switch {
	case filter.ActivityID != "":
		query += ` AND activity_id = ?`
		args = append(args, filter.ActivityID)
	case filter.Unassigned:
		query += ` AND activity_id IS NULL`
	}
	query += ` ORDER BY sort_order ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("project list: %w", err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("project scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project rows: %w", err)
	}
	return out, nil
}

// GetProject returns nil, nil when the project does not exist.
func (r *Repository) GetProject(ctx context.Context, tenantID, projectID string) (*domain.Project, error) {
	return getProject(ctx, r.db, tenantID, projectID)
}

func getProject(ctx context.Context, q queryRower, tenantID, projectID string) (*domain.Project, error) {
	row := q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE tenant_id = ? AND id = ?`, tenantID, projectID)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("project get: %w", err)
	}
	return &p, nil
}

// CreateProject inserts a new project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, nullString(p.ActivityID), p.Title, p.Description, p.Order, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("project create: %w", err)
	}
	observability.RecordPersisted(domain.KindProject, p.UpdatedAt)
	return nil
}

// UpdateProject loads the project, applies mutate and writes it back in one transaction.
func (r *Repository) UpdateProject(ctx context.Context, tenantID, projectID string, mutate func(*domain.Project) error) (*domain.Project, error) {
	var updated *domain.Project
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := getProject(ctx, tx, tenantID, projectID)
		if err != nil || current == nil {
			return err
		}
		if err := mutate(current); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE projects SET activity_id = ?, title = ?, description = ?, sort_order = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
			nullString(current.ActivityID), current.Title, current.Description, current.Order, formatTime(current.UpdatedAt), tenantID, projectID); err != nil {
			return fmt.Errorf("project update: %w", err)
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
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET project_id = NULL WHERE tenant_id = ? AND project_id = ?`, tenantID, projectID); err != nil {
			return fmt.Errorf("project unassign tasks: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE tenant_id = ? AND id = ?`, tenantID, projectID)
		if err != nil {
			return fmt.Errorf("project delete: %w", err)
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
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt := fmt.Sprintf(`UPDATE %s SET sort_order = ? WHERE tenant_id = ? AND id = ?`, table)
		for _, u := range updates {
			if _, err := tx.ExecContext(ctx, stmt, u.Order, tenantID, u.ID); err != nil {
				return fmt.Errorf("%s reorder: %w", kind, err)
			}
		}
		return nil
	})
}
