package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/taskflow/internal/auth"
	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/media"
	"example.com/taskflow/internal/persistence/sqlite"
)

type testServer struct {
	t      *testing.T
	mux    *http.ServeMux
	claims *auth.Claims
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := media.NewStore(t.TempDir())
	require.NoError(t, err)

	service := domain.NewService(sqlite.NewRepository(db),
		domain.WithLocation(time.UTC),
		domain.WithMediaStore(store),
	)
	mux := http.NewServeMux()
	NewHandler(service, WithMaxUploadBytes(1024)).RegisterRoutes(mux)
	mux.Handle(media.URLPrefix, store.Handler())

	return &testServer{t: t, mux: mux, claims: auth.LocalClaims("tenant-1")}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), s.claims))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestActivityProjectTaskLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/api/activities", map[string]string{"name": "Deep work"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	activity := decode[ActivityView](t, rec)
	require.Equal(t, "Deep work", activity.Title)
	require.NotEmpty(t, activity.ID)

	rec = srv.do(http.MethodPost, "/api/projects", map[string]string{"title": "Thesis", "activityId": activity.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	project := decode[ProjectView](t, rec)
	require.Equal(t, activity.ID, project.ActivityID)

	rec = srv.do(http.MethodPost, "/api/tasks", map[string]string{"title": "Write intro", "projectId": project.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[TaskView](t, rec)
	require.Equal(t, "active", task.Status)
	require.Equal(t, "Not started", task.Progress)
	require.Equal(t, "Daily", task.GoalType)
	require.Equal(t, []domain.Note{}, task.DetailedNotes)

	rec = srv.do(http.MethodPut, "/api/tasks/"+task.ID, map[string]interface{}{"status": "completed", "rounds": 2, "goal": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	task = decode[TaskView](t, rec)
	require.NotNil(t, task.CompletedAt)
	require.Equal(t, 2, task.Rounds)

	rec = srv.do(http.MethodGet, "/api/round-records?taskId="+task.ID+"&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[[]RoundRecordView](t, rec)
	require.Len(t, page, 1)
	next := rec.Header().Get("X-Next-Cursor")
	require.NotEmpty(t, next)

	rec = srv.do(http.MethodGet, "/api/round-records?taskId="+task.ID+"&limit=1&cursor="+next, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rest := decode[[]RoundRecordView](t, rec)
	require.Len(t, rest, 1)
	require.ElementsMatch(t, []int{1, 2}, []int{page[0].Round, rest[0].Round})

	rec = srv.do(http.MethodGet, "/api/tasks/"+task.ID+"/goal-progress", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	progress := decode[GoalProgressView](t, rec)
	require.True(t, progress.Met)
	require.Equal(t, 2, progress.PeriodRounds)

	rec = srv.do(http.MethodGet, "/api/dashboard/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	alerts := decode[AlertsView](t, rec)
	require.Equal(t, AlertsView{TasksCompletedToday: 1, TotalTasks: 1, TasksWithGoals: 1, GoalsCompleted: 1}, alerts)

	rec = srv.do(http.MethodDelete, "/api/activities/"+activity.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodGet, "/api/projects/"+project.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(http.MethodGet, "/api/tasks?unassigned=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	orphans := decode[[]TaskView](t, rec)
	require.Len(t, orphans, 1)
	require.Empty(t, orphans[0].ProjectID)
}

func TestTaskPatchNullProjectUnassigns(t *testing.T) {
	srv := newTestServer(t)

	project := decode[ProjectView](t, srv.do(http.MethodPost, "/api/projects", map[string]string{"title": "Home"}))
	task := decode[TaskView](t, srv.do(http.MethodPost, "/api/tasks", map[string]string{"title": "Dishes", "projectId": project.ID}))
	require.Equal(t, project.ID, task.ProjectID)

	rec := srv.do(http.MethodPut, "/api/tasks/"+task.ID, map[string]interface{}{"projectId": nil})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Empty(t, decode[TaskView](t, rec).ProjectID)

	rec = srv.do(http.MethodPut, "/api/tasks/"+task.ID, map[string]interface{}{"title": "Dishes!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Empty(t, decode[TaskView](t, rec).ProjectID)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/api/tasks", map[string]string{"title": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_failed", decode[map[string]string](t, rec)["type"])

	rec = srv.do(http.MethodGet, "/api/tasks/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decode[map[string]string](t, rec)["type"])

	rec = srv.do(http.MethodPut, "/api/tasks/missing", map[string]interface{}{"rounds": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/api/round-records", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	srv.claims = &auth.Claims{TenantID: "tenant-1", Scopes: map[string]struct{}{auth.ScopeProductivityRead: {}}}
	rec = srv.do(http.MethodPost, "/api/activities", map[string]string{"title": "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = srv.do(http.MethodGet, "/api/activities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	srv.claims = nil
	rec = srv.do(http.MethodGet, "/api/activities", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantsAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	created := decode[ActivityView](t, srv.do(http.MethodPost, "/api/activities", map[string]string{"title": "Mine"}))

	srv.claims = auth.LocalClaims("tenant-2")
	rec := srv.do(http.MethodGet, "/api/activities/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, decode[[]ActivityView](t, srv.do(http.MethodGet, "/api/activities", nil)))
}

func TestReorderActivities(t *testing.T) {
	srv := newTestServer(t)
	first := decode[ActivityView](t, srv.do(http.MethodPost, "/api/activities", map[string]string{"title": "A"}))
	second := decode[ActivityView](t, srv.do(http.MethodPost, "/api/activities", map[string]string{"title": "B"}))

	listed := decode[[]ActivityView](t, srv.do(http.MethodGet, "/api/activities", nil))
	require.Equal(t, second.ID, listed[0].ID, "new activities are placed first")

	rec := srv.do(http.MethodPut, "/api/activities/reorder", map[string][]string{"ids": {first.ID, second.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listed = decode[[]ActivityView](t, rec)
	require.Equal(t, []string{first.ID, second.ID}, []string{listed[0].ID, listed[1].ID})
	require.Equal(t, 1.0, listed[0].Order)
	require.Equal(t, 2.0, listed[1].Order)

	rec = srv.do(http.MethodPut, "/api/activities/reorder", map[string][]string{"ids": {first.ID}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReorderProjectsWithoutActivity(t *testing.T) {
	srv := newTestServer(t)
	activity := decode[ActivityView](t, srv.do(http.MethodPost, "/api/activities", map[string]string{"title": "A"}))
	owned := decode[ProjectView](t, srv.do(http.MethodPost, "/api/projects", map[string]string{"title": "Owned", "activityId": activity.ID}))
	first := decode[ProjectView](t, srv.do(http.MethodPost, "/api/projects", map[string]string{"title": "Loose 1"}))
	second := decode[ProjectView](t, srv.do(http.MethodPost, "/api/projects", map[string]string{"title": "Loose 2"}))

	loose := decode[[]ProjectView](t, srv.do(http.MethodGet, "/api/projects?unassigned=true", nil))
	require.Equal(t, []string{first.ID, second.ID}, []string{loose[0].ID, loose[1].ID})

	rec := srv.do(http.MethodPut, "/api/projects/reorder", map[string]any{"activityId": "", "ids": []string{second.ID, first.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listed := decode[[]ProjectView](t, rec)
	require.Equal(t, []string{second.ID, first.ID}, []string{listed[0].ID, listed[1].ID})

	rec = srv.do(http.MethodPut, "/api/projects/reorder", map[string]any{"ids": []string{second.ID, first.ID, owned.ID}})
	require.Equal(t, http.StatusBadRequest, rec.Code, "projects of an activity are not part of the unassigned list")

	all := decode[[]ProjectView](t, srv.do(http.MethodGet, "/api/projects", nil))
	require.Len(t, all, 3)
}

func TestTimerNotesAndPomodoro(t *testing.T) {
	srv := newTestServer(t)
	task := decode[TaskView](t, srv.do(http.MethodPost, "/api/tasks", map[string]string{"title": "Focus"}))

	rec := srv.do(http.MethodPost, "/api/tasks/"+task.ID+"/time-entry/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = srv.do(http.MethodPost, "/api/tasks/"+task.ID+"/time-entry/start", nil)
	require.Len(t, decode[TaskView](t, rec).TimeEntries, 1, "starting twice keeps one open entry")

	rec = srv.do(http.MethodPost, "/api/tasks/"+task.ID+"/time-entry/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decode[TaskView](t, rec).TimeEntries
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].EndTime)

	rec = srv.do(http.MethodPost, "/api/tasks/"+task.ID+"/detailed-notes", map[string]string{"text": "outline first"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "outline first", decode[TaskView](t, rec).DetailedNotes[0].Text)

	rec = srv.do(http.MethodPost, "/api/pomodoro-sessions", map[string]string{"taskId": task.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode[PomodoroSessionView](t, rec)

	rec = srv.do(http.MethodGet, "/api/pomodoro-sessions?date="+session.Day, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, PomodoroCountView{Date: session.Day, SessionsCount: 1}, decode[PomodoroCountView](t, rec))

	rec = srv.do(http.MethodGet, "/api/pomodoro-sessions?date=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/api/dashboard/stats?granularity=weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[StatsView](t, rec)
	require.Equal(t, 1, stats.TotalTasks)
	require.Equal(t, 1, stats.PomodoroSessions)
	require.Len(t, stats.ProductivityTrend, 7)
	require.NotEmpty(t, stats.RecentActivity)
}

func TestAttachAndRemoveMedia(t *testing.T) {
	srv := newTestServer(t)
	task := decode[TaskView](t, srv.do(http.MethodPost, "/api/tasks", map[string]string{"title": "Scan"}))

	upload := func(content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", "receipt.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/tasks/"+task.ID+"/media", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req = req.WithContext(auth.WithClaims(req.Context(), srv.claims))
		rec := httptest.NewRecorder()
		srv.mux.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("hello")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	attached := decode[TaskView](t, rec).Media
	require.Len(t, attached, 1)
	require.Equal(t, "receipt.txt", attached[0].Filename)
	require.Equal(t, int64(5), attached[0].Size)

	rec = srv.do(http.MethodGet, attached[0].URL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())

	rec = upload(string(bytes.Repeat([]byte("x"), 4096)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodDelete, "/api/tasks/"+task.ID+"/media/"+attached[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Empty(t, decode[TaskView](t, rec).Media)

	rec = srv.do(http.MethodDelete, "/api/tasks/"+task.ID+"/media/"+attached[0].ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
