package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"example.com/taskflow/internal/auth"
	"example.com/taskflow/internal/domain"
	"example.com/taskflow/internal/persistence"
)

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := domain.TaskFilter{ProjectID: query.Get("projectId")}
	if unassigned, err := strconv.ParseBool(query.Get("unassigned")); err == nil && unassigned {
		filter = domain.TaskFilter{Unassigned: true}
	}
	tasks, err := h.service.ListTasks(r.Context(), claims.TenantID, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskViews(tasks))
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := h.service.CreateTask(r.Context(), claims.TenantID, domain.TaskInput{
		Title:     req.Title,
		Notes:     req.Notes,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskView(*task))
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	task, err := h.service.GetTask(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(*task))
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := h.service.UpdateTask(r.Context(), claims.TenantID, r.PathValue("id"), domain.TaskPatch{
		Title:     req.Title,
		Notes:     req.Notes,
		Status:    req.Status,
		Progress:  req.Progress,
		Rounds:    req.Rounds,
		Goal:      req.Goal,
		GoalType:  req.GoalType,
		ProjectID: req.ProjectID.ptr(),
		Order:     req.Order,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(*task))
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	if err := h.service.DeleteTask(r.Context(), claims.TenantID, r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reorderTasks(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tasks, err := h.service.ReorderTasks(r.Context(), claims.TenantID, req.ProjectID, req.IDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskViews(tasks))
}

func (h *Handler) addDetailedNote(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := h.service.AddDetailedNote(r.Context(), claims.TenantID, r.PathValue("id"), req.Text)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(*task))
}

func (h *Handler) startTimer(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	task, err := h.service.StartTimer(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(*task))
}

func (h *Handler) stopTimer(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	task, err := h.service.StopTimer(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(*task))
}

func (h *Handler) attachMedia(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	if r.ContentLength > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	task, err := h.service.AttachMedia(r.Context(), claims.TenantID, r.PathValue("id"), domain.MediaUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Body:        file,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskView(*task))
}

func (h *Handler) removeMedia(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	task, err := h.service.RemoveMedia(r.Context(), claims.TenantID, r.PathValue("id"), r.PathValue("mediaId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(*task))
}

func (h *Handler) goalProgress(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	progress, err := h.service.GoalProgress(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GoalProgressView{
		TaskID:       progress.TaskID,
		Goal:         progress.Goal,
		GoalType:     string(progress.GoalType),
		PeriodStart:  progress.PeriodStart,
		PeriodRounds: progress.PeriodRounds,
		TotalRounds:  progress.TotalRounds,
		Met:          progress.Met,
	})
}

// listRoundRecords returns a JSON array; the next page token travels in X-Next-Cursor.
func (h *Handler) listRoundRecords(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	query := r.URL.Query()
	taskID := strings.TrimSpace(query.Get("taskId"))
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing taskId parameter")
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid limit")
			return
		}
		if parsed > 500 {
			parsed = 500
		}
		limit = parsed
	}

	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.RoundRecords(r.Context(), claims.TenantID, taskID, cursor, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if token := persistence.EncodeCursor(next); token != "" {
		w.Header().Set("X-Next-Cursor", token)
	}
	items := make([]RoundRecordView, 0, len(records))
	for _, rec := range records {
		items = append(items, RoundRecordView{ID: rec.ID, TaskID: rec.TaskID, Round: rec.Round, Timestamp: rec.Timestamp})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) logPomodoroSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req PomodoroSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.service.LogPomodoroSession(r.Context(), claims.TenantID, req.TaskID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PomodoroSessionView{
		ID:          session.ID,
		TaskID:      session.TaskID,
		Day:         session.Day,
		CompletedAt: session.CompletedAt,
	})
}

func (h *Handler) countPomodoroSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	count, err := h.service.CountPomodoroSessions(r.Context(), claims.TenantID, r.URL.Query().Get("date"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PomodoroCountView{Date: count.Date, SessionsCount: count.SessionsCount})
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	alerts, err := h.service.Alerts(r.Context(), claims.TenantID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AlertsView{
		TasksCompletedToday:   alerts.TasksCompletedToday,
		TotalTasks:            alerts.TotalTasks,
		TasksWithGoals:        alerts.TasksWithGoals,
		GoalsCompleted:        alerts.GoalsCompleted,
		PomodoroSessionsToday: alerts.PomodoroSessionsToday,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	query := r.URL.Query()
	stats, err := h.service.Stats(r.Context(), claims.TenantID, domain.StatsQuery{
		Granularity: query.Get("granularity"),
		Start:       query.Get("startDate"),
		End:         query.Get("endDate"),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsView(*stats))
}
