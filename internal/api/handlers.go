// Package api exposes HTTP handlers for the taskflow service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"example.com/taskflow/internal/auth"
	"example.com/taskflow/internal/domain"
)

const defaultMaxUploadBytes = 10 << 20

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service        *domain.Service
	maxUploadBytes int64
	logger         *log.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithMaxUploadBytes caps the size of media uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithLogger sets the logger used for unexpected errors.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{service: service, maxUploadBytes: defaultMaxUploadBytes, logger: log.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/activities", h.listActivities)
	mux.HandleFunc("POST /api/activities", h.createActivity)
	mux.HandleFunc("PUT /api/activities/reorder", h.reorderActivities)
	mux.HandleFunc("GET /api/activities/{id}", h.getActivity)
	mux.HandleFunc("PUT /api/activities/{id}", h.updateActivity)
	mux.HandleFunc("PATCH /api/activities/{id}", h.updateActivity)
	mux.HandleFunc("DELETE /api/activities/{id}", h.deleteActivity)

	mux.HandleFunc("GET /api/projects", h.listProjects)
	mux.HandleFunc("POST /api/projects", h.createProject)
	mux.HandleFunc("PUT /api/projects/reorder", h.reorderProjects)
	mux.HandleFunc("GET /api/projects/{id}", h.getProject)
	mux.HandleFunc("PUT /api/projects/{id}", h.updateProject)
	mux.HandleFunc("PATCH /api/projects/{id}", h.updateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", h.deleteProject)

	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("PUT /api/tasks/reorder", h.reorderTasks)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/detailed-notes", h.addDetailedNote)
	mux.HandleFunc("POST /api/tasks/{id}/time-entry/start", h.startTimer)
	mux.HandleFunc("POST /api/tasks/{id}/time-entry/stop", h.stopTimer)
	mux.HandleFunc("POST /api/tasks/{id}/media", h.attachMedia)
	mux.HandleFunc("DELETE /api/tasks/{id}/media/{mediaId}", h.removeMedia)
	mux.HandleFunc("GET /api/tasks/{id}/goal-progress", h.goalProgress)

	mux.HandleFunc("GET /api/round-records", h.listRoundRecords)
	mux.HandleFunc("GET /api/pomodoro-sessions", h.countPomodoroSessions)
	mux.HandleFunc("POST /api/pomodoro-sessions", h.logPomodoroSession)

	mux.HandleFunc("GET /api/dashboard/alerts", h.alerts)
	mux.HandleFunc("GET /api/dashboard/stats", h.stats)

	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize resolves the caller's claims and checks scope.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.Allows(scope) {
		writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("scope %s required", scope))
		return nil, false
	}
	return claims, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// writeServiceError maps domain errors onto HTTP responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound),
		errors.Is(err, domain.ErrProjectNotFound),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrMediaNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	activities, err := h.service.ListActivities(r.Context(), claims.TenantID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityViews(activities))
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req CreateActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	title := req.Title
	if strings.TrimSpace(title) == "" {
		title = req.Name
	}
	activity, err := h.service.CreateActivity(r.Context(), claims.TenantID, domain.ActivityInput{
		Title:       title,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	activity, err := h.service.GetActivity(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req UpdateActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	title := req.Title
	if title == nil {
		title = req.Name
	}
	activity, err := h.service.UpdateActivity(r.Context(), claims.TenantID, r.PathValue("id"), domain.ActivityPatch{
		Title:       title,
		Description: req.Description,
		Order:       req.Order,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	if err := h.service.DeleteActivity(r.Context(), claims.TenantID, r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reorderActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	activities, err := h.service.ReorderActivities(r.Context(), claims.TenantID, req.IDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityViews(activities))
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := domain.ProjectFilter{ActivityID: query.Get("activityId")}
	if unassigned, err := strconv.ParseBool(query.Get("unassigned")); err == nil && unassigned {
		filter = domain.ProjectFilter{Unassigned: true}
	}
	projects, err := h.service.ListProjects(r.Context(), claims.TenantID, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectViews(projects))
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := h.service.CreateProject(r.Context(), claims.TenantID, domain.ProjectInput{
		Title:       req.Title,
		Description: req.Description,
		ActivityID:  req.ActivityID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectView(*project))
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityRead)
	if !ok {
		return
	}
	project, err := h.service.GetProject(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(*project))
}

func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req UpdateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := h.service.UpdateProject(r.Context(), claims.TenantID, r.PathValue("id"), domain.ProjectPatch{
		Title:       req.Title,
		Description: req.Description,
		ActivityID:  req.ActivityID.ptr(),
		Order:       req.Order,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(*project))
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	if err := h.service.DeleteProject(r.Context(), claims.TenantID, r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reorderProjects(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeProductivityWrite)
	if !ok {
		return
	}
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	projects, err := h.service.ReorderProjects(r.Context(), claims.TenantID, req.ActivityID, req.IDs)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectViews(projects))
}
