// Package client talks to the taskflow REST API and keeps a local, optimistically updated
// copy of the board.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response decoded from the {"type","detail"} error body.
type APIError struct {
	Status int
	Type   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("taskflow api: status %d", e.Status)
	}
	return fmt.Sprintf("taskflow api: %s (%d): %s", e.Type, e.Status, e.Detail)
}

// Client is a typed client for every taskflow endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New constructs a Client for baseURL.
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) (http.Header, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Type   string `json:"type"`
			Detail string `json:"detail"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Type, apiErr.Detail = payload.Type, payload.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		return resp.Header, apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
		}
	}
	return resp.Header, nil
}

func pathID(prefix, id string, rest ...string) string {
	parts := append([]string{prefix, url.PathEscape(id)}, rest...)
	return strings.Join(parts, "/")
}

// ListActivities returns every activity sorted by order.
func (c *Client) ListActivities(ctx context.Context) ([]Activity, error) {
	var out []Activity
	_, err := c.do(ctx, http.MethodGet, "/api/activities", nil, &out)
	return out, err
}

// CreateActivity creates an activity; the server places it first.
func (c *Client) CreateActivity(ctx context.Context, input ActivityInput) (Activity, error) {
	var out Activity
	_, err := c.do(ctx, http.MethodPost, "/api/activities", input, &out)
	return out, err
}

// UpdateActivity applies patch and returns the stored activity.
func (c *Client) UpdateActivity(ctx context.Context, id string, patch ActivityPatch) (Activity, error) {
	var out Activity
	_, err := c.do(ctx, http.MethodPut, pathID("/api/activities", id), patch, &out)
	return out, err
}

// DeleteActivity removes an activity and its projects.
func (c *Client) DeleteActivity(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, pathID("/api/activities", id), nil, nil)
	return err
}

// ReorderActivities renumbers every activity server-side to follow ids.
func (c *Client) ReorderActivities(ctx context.Context, ids []string) ([]Activity, error) {
	var out []Activity
	_, err := c.do(ctx, http.MethodPut, "/api/activities/reorder", map[string]interface{}{"ids": ids}, &out)
	return out, err
}

// ListProjects lists projects, optionally only those of activityID.
func (c *Client) ListProjects(ctx context.Context, activityID string) ([]Project, error) {
	path := "/api/projects"
	if activityID != "" {
		path += "?activityId=" + url.QueryEscape(activityID)
	}
	var out []Project
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CreateProject appends a project to its activity.
func (c *Client) CreateProject(ctx context.Context, input ProjectInput) (Project, error) {
	var out Project
	_, err := c.do(ctx, http.MethodPost, "/api/projects", input, &out)
	return out, err
}

// UpdateProject applies patch and returns the stored project.
func (c *Client) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (Project, error) {
	var out Project
	_, err := c.do(ctx, http.MethodPut, pathID("/api/projects", id), patch, &out)
	return out, err
}

// DeleteProject removes a project; its tasks become unassigned.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, pathID("/api/projects", id), nil, nil)
	return err
}

// ReorderProjects renumbers the projects of activityID ("" for those without one) to follow ids.
func (c *Client) ReorderProjects(ctx context.Context, activityID string, ids []string) ([]Project, error) {
	var out []Project
	_, err := c.do(ctx, http.MethodPut, "/api/projects/reorder", map[string]interface{}{"activityId": activityID, "ids": ids}, &out)
	return out, err
}

// ListTasks lists tasks matching query.
func (c *Client) ListTasks(ctx context.Context, query TaskQuery) ([]Task, error) {
	values := url.Values{}
	if query.ProjectID != "" {
		values.Set("projectId", query.ProjectID)
	}
	if query.Unassigned {
		values.Set("unassigned", "true")
	}
	path := "/api/tasks"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var out []Task
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CreateTask appends a task to its project.
func (c *Client) CreateTask(ctx context.Context, input TaskInput) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodPost, "/api/tasks", input, &out)
	return out, err
}

// GetTask fetches one task with its notes, time entries, logs and media.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodGet, pathID("/api/tasks", id), nil, &out)
	return out, err
}

// UpdateTask applies a partial update and returns the stored task.
func (c *Client) UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodPut, pathID("/api/tasks", id), patch, &out)
	return out, err
}

// DeleteTask removes a task and its round records.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, pathID("/api/tasks", id), nil, nil)
	return err
}

// ReorderTasks renumbers the tasks of projectID ("" for unassigned ones) to follow ids.
func (c *Client) ReorderTasks(ctx context.Context, projectID string, ids []string) ([]Task, error) {
	var out []Task
	_, err := c.do(ctx, http.MethodPut, "/api/tasks/reorder", map[string]interface{}{"projectId": projectID, "ids": ids}, &out)
	return out, err
}

// AddDetailedNote appends a timestamped note to a task.
func (c *Client) AddDetailedNote(ctx context.Context, id, text string) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodPost, pathID("/api/tasks", id, "detailed-notes"), map[string]string{"text": text}, &out)
	return out, err
}

// StartTimer opens a time entry. Starting a running timer is a no-op.
func (c *Client) StartTimer(ctx context.Context, id string) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodPost, pathID("/api/tasks", id, "time-entry", "start"), nil, &out)
	return out, err
}

// StopTimer closes the open time entry. Stopping an idle timer is a no-op.
func (c *Client) StopTimer(ctx context.Context, id string) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodPost, pathID("/api/tasks", id, "time-entry", "stop"), nil, &out)
	return out, err
}

// AttachMedia uploads body as a multipart "file" field.
func (c *Client) AttachMedia(ctx context.Context, id, filename string, body io.Reader) (Task, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return Task{}, err
	}
	if _, err := io.Copy(part, body); err != nil {
		return Task{}, err
	}
	if err := writer.Close(); err != nil {
		return Task{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathID("/api/tasks", id, "media"), &buf)
	if err != nil {
		return Task{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	var out Task
	_, err = c.send(req, &out)
	return out, err
}

// RemoveMedia detaches an attachment from a task.
func (c *Client) RemoveMedia(ctx context.Context, id, mediaID string) (Task, error) {
	var out Task
	_, err := c.do(ctx, http.MethodDelete, pathID("/api/tasks", id, "media", url.PathEscape(mediaID)), nil, &out)
	return out, err
}

// GoalProgress reports the rounds recorded in the task's current goal period.
func (c *Client) GoalProgress(ctx context.Context, id string) (GoalProgress, error) {
	var out GoalProgress
	_, err := c.do(ctx, http.MethodGet, pathID("/api/tasks", id, "goal-progress"), nil, &out)
	return out, err
}

// RoundRecords returns one page of a task's rounds, newest first, and the cursor of the
// next page ("" when exhausted). A zero limit returns every record.
func (c *Client) RoundRecords(ctx context.Context, taskID, cursor string, limit int) ([]RoundRecord, string, error) {
	values := url.Values{"taskId": {taskID}}
	if cursor != "" {
		values.Set("cursor", cursor)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out []RoundRecord
	header, err := c.do(ctx, http.MethodGet, "/api/round-records?"+values.Encode(), nil, &out)
	if err != nil {
		return nil, "", err
	}
	return out, header.Get("X-Next-Cursor"), nil
}

// LogPomodoroSession records a completed work interval, optionally against a task.
func (c *Client) LogPomodoroSession(ctx context.Context, taskID string) (PomodoroSession, error) {
	var out PomodoroSession
	_, err := c.do(ctx, http.MethodPost, "/api/pomodoro-sessions", map[string]string{"taskId": taskID}, &out)
	return out, err
}

// PomodoroCount returns the sessions logged on date (YYYY-MM-DD, "" for today).
func (c *Client) PomodoroCount(ctx context.Context, date string) (PomodoroCount, error) {
	path := "/api/pomodoro-sessions"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var out PomodoroCount
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Alerts returns today's counters for the contextual banner.
func (c *Client) Alerts(ctx context.Context) (Alerts, error) {
	var out Alerts
	_, err := c.do(ctx, http.MethodGet, "/api/dashboard/alerts", nil, &out)
	return out, err
}

// Stats returns dashboard totals for granularity and the optional YYYY-MM-DD window.
func (c *Client) Stats(ctx context.Context, granularity, startDate, endDate string) (Stats, error) {
	values := url.Values{}
	for key, value := range map[string]string{"granularity": granularity, "startDate": startDate, "endDate": endDate} {
		if value != "" {
			values.Set(key, value)
		}
	}
	path := "/api/dashboard/stats"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var out Stats
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}
