package client

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/taskflow/internal/api"
	"example.com/taskflow/internal/auth"
	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/media"
	"example.com/taskflow/internal/persistence/sqlite"
)

// newAPI serves the real API over an in-memory database as a single local tenant.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := media.NewStore(t.TempDir())
	require.NoError(t, err)

	service := domain.NewService(sqlite.NewRepository(db), domain.WithMediaStore(store))
	mux := http.NewServeMux()
	api.NewHandler(service).RegisterRoutes(mux)
	mux.Handle(media.URLPrefix, store.Handler())

	srv := httptest.NewServer(auth.NewStaticMiddleware(auth.LocalClaims("local")).Wrap(mux))
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(buf, "", 0)
}

func TestBoardAddReconcilesPlaceholder(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	board := NewBoard(New(srv.URL), WithLogger(quietLogger(&bytes.Buffer{})))

	created, err := board.AddActivity(ctx, ActivityInput{Title: "Writing"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, strings.HasPrefix(created.ID, "temp-"))
	require.Equal(t, []Activity{created}, board.Activities())

	project, err := board.AddProject(ctx, ProjectInput{Title: "Book", ActivityID: created.ID})
	require.NoError(t, err)
	require.Equal(t, []Project{project}, board.Projects(created.ID))

	task, err := board.AddTask(ctx, TaskInput{Title: "Chapter 1", ProjectID: project.ID})
	require.NoError(t, err)
	require.Equal(t, "Not started", task.Progress)
	require.Len(t, board.Tasks(project.ID), 1)

	require.NoError(t, board.Refresh(ctx))
	require.Len(t, board.Activities(), 1)
	require.Equal(t, task.ID, board.Tasks(project.ID)[0].ID)
}

func TestBoardAddFailureRemovesPlaceholder(t *testing.T) {
	srv := newAPI(t)
	var logs bytes.Buffer
	board := NewBoard(New(srv.URL), WithLogger(quietLogger(&logs)))

	_, err := board.AddActivity(context.Background(), ActivityInput{Title: "   "})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "validation_failed", apiErr.Type)
	require.Empty(t, board.Activities())
	require.Contains(t, logs.String(), "add activity failed")
}

func TestBoardShowsPlaceholderWhileInFlight(t *testing.T) {
	var board *Board
	var sawPending atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := board.Activities()
		sawPending.Store(len(current) == 2 && current[0].Pending && current[0].ID == "temp-1700000000000")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"a-2","title":"New","order":0}`))
	}))
	defer srv.Close()

	board = NewBoard(New(srv.URL), WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	board.activities = []Activity{{ID: "a-1", Title: "Old", Order: 1}}

	created, err := board.AddActivity(context.Background(), ActivityInput{Title: "New"})
	require.NoError(t, err)
	require.True(t, sawPending.Load())
	require.Equal(t, []string{"a-2", "a-1"}, []string{board.Activities()[0].ID, board.Activities()[1].ID})
	require.Equal(t, "a-2", created.ID)
}

func TestBoardMoveTaskPersistsOrder(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	c := New(srv.URL)
	board := NewBoard(c)

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		task, err := board.AddTask(ctx, TaskInput{Title: title})
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	require.NoError(t, board.MoveTask(ctx, "", 2, 0))
	local := board.Tasks("")
	require.Equal(t, []string{ids[2], ids[0], ids[1]}, []string{local[0].ID, local[1].ID, local[2].ID})

	stored, err := c.ListTasks(ctx, TaskQuery{Unassigned: true})
	require.NoError(t, err)
	require.Equal(t, []string{ids[2], ids[0], ids[1]}, []string{stored[0].ID, stored[1].ID, stored[2].ID})

	require.NoError(t, board.MoveTask(ctx, "", 0, 1))
	require.NoError(t, board.Refresh(ctx))
	local = board.Tasks("")
	require.Equal(t, []string{ids[0], ids[2], ids[1]}, []string{local[0].ID, local[1].ID, local[2].ID})
}

func TestBoardMoveSkipsPlaceholders(t *testing.T) {
	var puts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		puts.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	board := NewBoard(New(srv.URL))
	board.projects["act"] = []Project{
		{ID: "p-1", Order: 1},
		{ID: "temp-1", Order: 5, Pending: true},
	}
	require.NoError(t, board.MoveProject(context.Background(), "act", 1, 0))
	require.Equal(t, int32(0), puts.Load())
	require.Equal(t, "temp-1", board.Projects("act")[0].ID)
}

func TestBoardMoveAcrossPlaceholderIgnoresItsOrder(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	c := New(srv.URL)
	board := NewBoard(c)

	ids := map[string]string{}
	for _, title := range []string{"a", "b", "c"} {
		created, err := board.AddActivity(ctx, ActivityInput{Title: title})
		require.NoError(t, err)
		ids[title] = created.ID
	}
	require.NoError(t, board.Refresh(ctx))
	list := board.Activities()
	require.Equal(t, []string{ids["c"], ids["b"], ids["a"]}, []string{list[0].ID, list[1].ID, list[2].ID})

	// A placeholder whose order sits between b and a must not be used as a neighbour.
	board.mu.Lock()
	placeholder := Activity{ID: "temp-1", Title: "pending", Order: list[1].Order + 0.5, Pending: true}
	board.activities = append([]Activity{placeholder}, board.activities...)
	board.mu.Unlock()

	require.NoError(t, board.MoveActivity(ctx, 3, 0))
	local := board.Activities()
	require.Equal(t, []string{ids["a"], "temp-1", ids["c"], ids["b"]},
		[]string{local[0].ID, local[1].ID, local[2].ID, local[3].ID})
	require.Less(t, local[0].Order, local[2].Order)

	stored, err := c.ListActivities(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{ids["a"], ids["c"], ids["b"]}, []string{stored[0].ID, stored[1].ID, stored[2].ID})
}

func TestWatchLogsFailuresAndKeepsPolling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	board := NewBoard(New(srv.URL), WithLogger(quietLogger(&logs)))
	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		board.Watch(ctx, 10*time.Millisecond, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		close(done)
	}()

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watch never completed a refresh")
	}
	cancel()
	<-done
	require.Contains(t, logs.String(), "refresh failed")
}

func TestClientEndpoints(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	c := New(srv.URL)

	task, err := c.CreateTask(ctx, TaskInput{Title: "Practice"})
	require.NoError(t, err)

	rounds, goal := 3, 2
	task, err = c.UpdateTask(ctx, task.ID, TaskPatch{Rounds: &rounds, Goal: &goal})
	require.NoError(t, err)
	require.Equal(t, 3, task.Rounds)

	page, next, err := c.RoundRecords(ctx, task.ID, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	rest, _, err := c.RoundRecords(ctx, task.ID, next, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	progress, err := c.GoalProgress(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, progress.Met)

	task, err = c.StartTimer(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, task.Running())
	task, err = c.StopTimer(ctx, task.ID)
	require.NoError(t, err)
	require.False(t, task.Running())

	task, err = c.AddDetailedNote(ctx, task.ID, "warm up")
	require.NoError(t, err)
	require.Equal(t, "warm up", task.DetailedNotes[0].Text)

	task, err = c.AttachMedia(ctx, task.ID, "notes.txt", strings.NewReader("scales"))
	require.NoError(t, err)
	require.Len(t, task.Media, 1)
	task, err = c.RemoveMedia(ctx, task.ID, task.Media[0].ID)
	require.NoError(t, err)
	require.Empty(t, task.Media)

	session, err := c.LogPomodoroSession(ctx, task.ID)
	require.NoError(t, err)
	count, err := c.PomodoroCount(ctx, session.Day)
	require.NoError(t, err)
	require.Equal(t, 1, count.SessionsCount)

	alerts, err := c.Alerts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, alerts.GoalsCompleted)

	stats, err := c.Stats(ctx, "weekly", "", "")
	require.NoError(t, err)
	require.Len(t, stats.ProductivityTrend, 7)

	require.NoError(t, c.DeleteTask(ctx, task.ID))
	_, err = c.GetTask(ctx, task.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}
