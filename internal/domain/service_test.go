package domain_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/persistence/sqlite"
)

const tenant = "tenant-1"

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newService(t *testing.T, start time.Time) (*domain.Service, *fakeClock) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &fakeClock{now: start}
	svc := domain.NewService(sqlite.NewRepository(db),
		domain.WithClock(clock.Now),
		domain.WithLocation(time.UTC),
	)
	return svc, clock
}

func ptr[T any](v T) *T { return &v }

// Wednesday 2025-03-12 10:00 UTC.
var wednesday = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

func TestUpdateTaskLogsEachChangeAndRecordsRounds(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, wednesday)

	task, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "Read paper"})
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusActive, task.Status)
	require.Equal(t, domain.ProgressNotStarted, task.Progress)
	require.Equal(t, domain.GoalDaily, task.GoalType)

	clock.Advance(time.Minute)
	task, err = svc.UpdateTask(ctx, tenant, task.ID, domain.TaskPatch{
		Title:    ptr("Read two papers"),
		Status:   ptr("completed"),
		Progress: ptr("started"),
		Rounds:   ptr(3),
		Goal:     ptr(4),
	})
	require.NoError(t, err)
	require.Equal(t, domain.ProgressStarted, task.Progress)
	require.NotNil(t, task.CompletedAt)
	require.True(t, task.CompletedAt.Equal(clock.now))

	var actions []string
	for _, entry := range task.ActivityLogs {
		actions = append(actions, entry.Action)
	}
	require.Equal(t, []string{"Task created", "Title updated", "Status changed", "Progress updated", "Rounds updated", "Goal updated"}, actions)

	records, _, err := svc.RoundRecords(ctx, tenant, task.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Lowering rounds records nothing; going back to active clears completedAt.
	task, err = svc.UpdateTask(ctx, tenant, task.ID, domain.TaskPatch{Rounds: ptr(1), Status: ptr("active")})
	require.NoError(t, err)
	require.Nil(t, task.CompletedAt)
	records, _, err = svc.RoundRecords(ctx, tenant, task.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestUpdateTaskValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, wednesday)
	task, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "x"})
	require.NoError(t, err)

	for name, patch := range map[string]domain.TaskPatch{
		"negative rounds": {Rounds: ptr(-1)},
		"negative goal":   {Goal: ptr(-2)},
		"bad status":      {Status: ptr("done")},
		"bad progress":    {Progress: ptr("halfway")},
		"bad goal type":   {GoalType: ptr("yearly")},
		"blank title":     {Title: ptr("  ")},
		"unknown project": {ProjectID: ptr("nope")},
	} {
		_, err := svc.UpdateTask(ctx, tenant, task.ID, patch)
		require.ErrorIs(t, err, domain.ErrValidation, name)
	}

	_, err = svc.UpdateTask(ctx, tenant, "missing", domain.TaskPatch{Notes: ptr("x")})
	require.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestTimerIsIdempotentAndCountsWholeSeconds(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, wednesday)
	task, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "Focus"})
	require.NoError(t, err)

	task, err = svc.StopTimer(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Empty(t, task.TimeEntries)

	_, err = svc.StartTimer(ctx, tenant, task.ID)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)
	task, err = svc.StartTimer(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Len(t, task.TimeEntries, 1)
	require.True(t, task.Running())

	clock.Advance(80*time.Second + 700*time.Millisecond)
	task, err = svc.StopTimer(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.False(t, task.Running())
	require.Equal(t, int64(90), task.TimeEntries[0].Duration)
}

func TestGoalProgressUsesPeriod(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, wednesday.AddDate(0, 0, -3)) // Sunday
	task, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "Practice"})
	require.NoError(t, err)

	_, err = svc.UpdateTask(ctx, tenant, task.ID, domain.TaskPatch{Rounds: ptr(2), Goal: ptr(3), GoalType: ptr("weekly")})
	require.NoError(t, err)

	clock.now = wednesday
	_, err = svc.UpdateTask(ctx, tenant, task.ID, domain.TaskPatch{Rounds: ptr(4)})
	require.NoError(t, err)

	progress, err := svc.GoalProgress(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.GoalWeekly, progress.GoalType)
	require.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), progress.PeriodStart)
	require.Equal(t, 2, progress.PeriodRounds, "Sunday's rounds belong to the previous week")
	require.Equal(t, 4, progress.TotalRounds)
	require.False(t, progress.Met)
}

func TestPeriodStart(t *testing.T) {
	sunday := time.Date(2025, time.March, 16, 23, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, time.March, 16, 0, 0, 0, 0, time.UTC), domain.GoalDaily.PeriodStart(sunday))
	require.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), domain.GoalWeekly.PeriodStart(sunday))
	require.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), domain.GoalMonthly.PeriodStart(sunday))
}

func TestPlacementAndReorder(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, wednesday)

	a1, err := svc.CreateActivity(ctx, tenant, domain.ActivityInput{Title: "One"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	a2, err := svc.CreateActivity(ctx, tenant, domain.ActivityInput{Title: "Two"})
	require.NoError(t, err)
	require.Less(t, a2.Order, a1.Order, "new activities go first")

	_, err = svc.CreateProject(ctx, tenant, domain.ProjectInput{Title: "P", ActivityID: "missing"})
	require.ErrorIs(t, err, domain.ErrValidation)

	p1, err := svc.CreateProject(ctx, tenant, domain.ProjectInput{Title: "P1", ActivityID: a1.ID})
	require.NoError(t, err)
	p2, err := svc.CreateProject(ctx, tenant, domain.ProjectInput{Title: "P2", ActivityID: a1.ID})
	require.NoError(t, err)
	require.Greater(t, p2.Order, p1.Order, "projects are appended")

	projects, err := svc.ReorderProjects(ctx, tenant, a1.ID, []string{p2.ID, p1.ID})
	require.NoError(t, err)
	require.Equal(t, []string{p2.ID, p1.ID}, []string{projects[0].ID, projects[1].ID})

	_, err = svc.ReorderProjects(ctx, tenant, a1.ID, []string{p2.ID, p2.ID})
	require.ErrorIs(t, err, domain.ErrValidation)

	t1, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "T1"})
	require.NoError(t, err)
	t2, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "T2"})
	require.NoError(t, err)
	tasks, err := svc.ReorderTasks(ctx, tenant, "", []string{t2.ID, t1.ID})
	require.NoError(t, err)
	require.Equal(t, []string{t2.ID, t1.ID}, []string{tasks[0].ID, tasks[1].ID})
}

func TestDeleteProjectUnassignsTasks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, wednesday)
	project, err := svc.CreateProject(ctx, tenant, domain.ProjectInput{Title: "P"})
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "T", ProjectID: project.ID})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProject(ctx, tenant, project.ID))
	require.ErrorIs(t, svc.DeleteProject(ctx, tenant, project.ID), domain.ErrProjectNotFound)

	got, err := svc.GetTask(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Empty(t, got.ProjectID)
}

func TestPomodoroSessions(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, wednesday)

	_, err := svc.LogPomodoroSession(ctx, tenant, "missing")
	require.ErrorIs(t, err, domain.ErrTaskNotFound)

	_, err = svc.LogPomodoroSession(ctx, tenant, "")
	require.NoError(t, err)
	_, err = svc.LogPomodoroSession(ctx, tenant, "")
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	_, err = svc.LogPomodoroSession(ctx, tenant, "")
	require.NoError(t, err)

	count, err := svc.CountPomodoroSessions(ctx, tenant, "2025-03-12")
	require.NoError(t, err)
	require.Equal(t, 2, count.SessionsCount)

	count, err = svc.CountPomodoroSessions(ctx, tenant, "")
	require.NoError(t, err)
	require.Equal(t, domain.PomodoroCount{Date: "2025-03-13", SessionsCount: 1}, *count)

	_, err = svc.CountPomodoroSessions(ctx, tenant, "13/03/2025")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, wednesday)

	done, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "Done"})
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "Open"})
	require.NoError(t, err)

	_, err = svc.StartTimer(ctx, tenant, done.ID)
	require.NoError(t, err)
	clock.Advance(25 * time.Minute)
	_, err = svc.StopTimer(ctx, tenant, done.ID)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.UpdateTask(ctx, tenant, done.ID, domain.TaskPatch{Status: ptr("completed")})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, tenant, domain.StatsQuery{})
	require.NoError(t, err)
	require.Equal(t, domain.GranularityDaily, stats.Granularity)
	require.Equal(t, 2, stats.TotalTasks)
	require.Equal(t, 1, stats.CompletedTasks)
	require.Equal(t, 1, stats.PendingTasks)
	require.Equal(t, int64(25*60), stats.TotalTimeWorked)
	require.Equal(t, []domain.TrendPoint{{Period: "2025-03-12", Completed: 1}}, stats.ProductivityTrend)
	require.Equal(t, "Status changed", stats.RecentActivity[0].Action)

	monthly, err := svc.Stats(ctx, tenant, domain.StatsQuery{Granularity: "monthly"})
	require.NoError(t, err)
	require.Len(t, monthly.ProductivityTrend, 12)
	require.Equal(t, "2024-04", monthly.ProductivityTrend[0].Period)
	require.Equal(t, domain.TrendPoint{Period: "2025-03", Completed: 1}, monthly.ProductivityTrend[11])

	_, err = svc.Stats(ctx, tenant, domain.StatsQuery{Start: "2025-03-12", End: "2025-03-01"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Stats(ctx, tenant, domain.StatsQuery{Granularity: "hourly"})
	require.ErrorIs(t, err, domain.ErrValidation)

	alerts, err := svc.Alerts(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 1, alerts.TasksCompletedToday)
	require.Equal(t, 2, alerts.TotalTasks)
}

func TestDeleteActivityCascades(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, wednesday)
	activity, err := svc.CreateActivity(ctx, tenant, domain.ActivityInput{Title: "Study"})
	require.NoError(t, err)
	project, err := svc.CreateProject(ctx, tenant, domain.ProjectInput{Title: "Thesis", ActivityID: activity.ID})
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "Outline", ProjectID: project.ID})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteActivity(ctx, tenant, activity.ID))
	require.ErrorIs(t, svc.DeleteActivity(ctx, tenant, activity.ID), domain.ErrActivityNotFound)

	_, err = svc.GetProject(ctx, tenant, project.ID)
	require.ErrorIs(t, err, domain.ErrProjectNotFound)
	got, err := svc.GetTask(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Empty(t, got.ProjectID)
}

func TestRoundRecordsPaginateNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, wednesday)
	task, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "Push-ups"})
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		clock.Advance(time.Minute)
		_, err = svc.UpdateTask(ctx, tenant, task.ID, domain.TaskPatch{Rounds: ptr(i)})
		require.NoError(t, err)
	}

	var rounds []int
	var cursor *domain.Cursor
	for page := 0; page < 3; page++ {
		records, next, err := svc.RoundRecords(ctx, tenant, task.ID, cursor, 2)
		require.NoError(t, err)
		for _, r := range records {
			rounds = append(rounds, r.Round)
		}
		cursor = next
		if next == nil {
			break
		}
	}
	require.Equal(t, []int{5, 4, 3, 2, 1}, rounds)
	require.Nil(t, cursor)

	_, _, err = svc.RoundRecords(ctx, tenant, task.ID, nil, -1)
	require.ErrorIs(t, err, domain.ErrValidation)
	_, _, err = svc.RoundRecords(ctx, tenant, "missing", nil, 0)
	require.ErrorIs(t, err, domain.ErrTaskNotFound)
}

// brokenStore saves uploads but cannot delete them.
type brokenStore struct{ removes int }

func (b *brokenStore) Save(_ context.Context, _, filename string, body io.Reader) (domain.StoredMedia, error) {
	n, err := io.Copy(io.Discard, body)
	return domain.StoredMedia{Key: "k-" + filename, URL: "/media/" + filename, Size: n}, err
}

func (b *brokenStore) Remove(context.Context, string, string) error {
	b.removes++
	return errors.New("disk is read-only")
}

func TestRemoveMediaSucceedsWhenFileDeleteFails(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var logs bytes.Buffer
	store := &brokenStore{}
	svc := domain.NewService(sqlite.NewRepository(db),
		domain.WithMediaStore(store),
		domain.WithLogger(log.New(&logs, "", 0)),
	)

	task, err := svc.CreateTask(ctx, tenant, domain.TaskInput{Title: "Scan receipts"})
	require.NoError(t, err)
	task, err = svc.AttachMedia(ctx, tenant, task.ID, domain.MediaUpload{Filename: "r.pdf", Body: strings.NewReader("pdf")})
	require.NoError(t, err)
	require.Len(t, task.Media, 1)

	task, err = svc.RemoveMedia(ctx, tenant, task.ID, task.Media[0].ID)
	require.NoError(t, err)
	require.Empty(t, task.Media)
	require.Equal(t, 1, store.removes)
	require.Contains(t, logs.String(), "disk is read-only")

	stored, err := svc.GetTask(ctx, tenant, task.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Media)

	require.NoError(t, svc.DeleteTask(ctx, tenant, task.ID))
}
