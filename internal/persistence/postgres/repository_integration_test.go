//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/taskflow/internal/domain"
)

func setupRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("taskflow"),
		postgrescontainer.WithUsername("taskflow"),
		postgrescontainer.WithPassword("taskflow"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return NewRepository(pool), pool
}

func TestRepositoryRespectsTenantIsolation(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	activity := domain.Activity{
		ID:        uuid.NewString(),
		TenantID:  uuid.NewString(),
		Title:     "Deep work",
		Order:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateActivity(ctx, activity))

	stored, err := repo.GetActivity(ctx, activity.TenantID, activity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, activity.Title, stored.Title)

	storedOther, err := repo.GetActivity(ctx, uuid.NewString(), activity.ID)
	require.NoError(t, err)
	require.Nil(t, storedOther, "other tenants must not see the activity")
}

func TestUpdateTaskWritesRoundsAndOutbox(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t)

	tenantID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	task := domain.Task{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Title:     "Read chapter",
		Status:    domain.TaskStatusActive,
		Progress:  domain.ProgressNotStarted,
		GoalType:  domain.GoalDaily,
		Order:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateTask(ctx, task))

	updated, err := repo.UpdateTask(ctx, tenantID, task.ID, func(tk *domain.Task) (domain.TaskEffects, error) {
		tk.Rounds = 2
		tk.DetailedNotes = append(tk.DetailedNotes, domain.Note{Text: "pages 1-20", Timestamp: now})
		return domain.TaskEffects{RoundRecords: []domain.RoundRecord{
			{ID: uuid.NewString(), TenantID: tenantID, TaskID: tk.ID, Round: 1, Timestamp: now},
			{ID: uuid.NewString(), TenantID: tenantID, TaskID: tk.ID, Round: 2, Timestamp: now},
		}}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Rounds)

	reloaded, err := repo.GetTask(ctx, tenantID, task.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.DetailedNotes, 1)
	require.Equal(t, "pages 1-20", reloaded.DetailedNotes[0].Text)

	records, next, err := repo.ListRoundRecords(ctx, tenantID, task.ID, nil, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, next)

	rest, _, err := repo.ListRoundRecords(ctx, tenantID, task.ID, next, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.NotEqual(t, records[0].ID, rest[0].ID)

	var outboxCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1`, task.ID).Scan(&outboxCount))
	// create + 2 rounds + update
	require.Equal(t, 4, outboxCount)
}

func TestDeleteActivityUnassignsTasks(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t)

	tenantID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	activity := domain.Activity{ID: uuid.NewString(), TenantID: tenantID, Title: "Health", CreatedAt: now, UpdatedAt: now}
	project := domain.Project{ID: uuid.NewString(), TenantID: tenantID, ActivityID: activity.ID, Title: "Running", CreatedAt: now, UpdatedAt: now}
	task := domain.Task{
		ID: uuid.NewString(), TenantID: tenantID, ProjectID: project.ID, Title: "5k",
		Status: domain.TaskStatusActive, Progress: domain.ProgressNotStarted, GoalType: domain.GoalWeekly,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.CreateActivity(ctx, activity))
	require.NoError(t, repo.CreateProject(ctx, project))
	require.NoError(t, repo.CreateTask(ctx, task))

	deleted, err := repo.DeleteActivity(ctx, tenantID, activity.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	gone, err := repo.GetProject(ctx, tenantID, project.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := repo.GetTask(ctx, tenantID, task.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	require.Empty(t, kept.ProjectID)

	deleted, err = repo.DeleteActivity(ctx, tenantID, activity.ID)
	require.NoError(t, err)
	require.False(t, deleted)
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files, err := filepath.Glob(filepath.Join(resolvePath(t, "../../../db/postgres/migrations"), "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, path := range files {
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
