package api

import (
	"encoding/json"
	"time"

	"example.com/taskflow/internal/domain"
)

// optionalString tells an absent field apart from an explicit null, which clears the value.
type optionalString struct {
	Set   bool
	Value string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = ""
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func (o optionalString) ptr() *string {
	if !o.Set {
		return nil
	}
	value := o.Value
	return &value
}

// CreateActivityRequest is the payload for POST /api/activities. Name is accepted as an
// alias of Title.
type CreateActivityRequest struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateActivityRequest is the payload for PUT /api/activities/{id}.
type UpdateActivityRequest struct {
	Title       *string  `json:"title"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Order       *float64 `json:"order"`
}

// CreateProjectRequest is the payload for POST /api/projects.
type CreateProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ActivityID  string `json:"activityId"`
}

// UpdateProjectRequest is the payload for PUT /api/projects/{id}.
type UpdateProjectRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	ActivityID  optionalString `json:"activityId"`
	Order       *float64       `json:"order"`
}

// CreateTaskRequest is the payload for POST /api/tasks.
type CreateTaskRequest struct {
	Title     string `json:"title"`
	Notes     string `json:"notes"`
	ProjectID string `json:"projectId"`
}

// UpdateTaskRequest is the payload for PUT /api/tasks/{id}.
type UpdateTaskRequest struct {
	Title     *string        `json:"title"`
	Notes     *string        `json:"notes"`
	Status    *string        `json:"status"`
	Progress  *string        `json:"progress"`
	Rounds    *int           `json:"rounds"`
	Goal      *int           `json:"goal"`
	GoalType  *string        `json:"goalType"`
	ProjectID optionalString `json:"projectId"`
	Order     *float64       `json:"order"`
}

// ReorderRequest lists ids in their new order. ActivityID and ProjectID scope project and
// task reorders.
type ReorderRequest struct {
	IDs        []string `json:"ids"`
	ActivityID string   `json:"activityId"`
	ProjectID  string   `json:"projectId"`
}

// NoteRequest is the payload for POST /api/tasks/{id}/detailed-notes.
type NoteRequest struct {
	Text string `json:"text"`
}

// PomodoroSessionRequest is the payload for POST /api/pomodoro-sessions.
type PomodoroSessionRequest struct {
	TaskID string `json:"taskId"`
}

// ActivityView is the JSON shape of an activity.
type ActivityView struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       float64   `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectView is the JSON shape of a project.
type ProjectView struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ActivityID  string    `json:"activityId,omitempty"`
	Order       float64   `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MediaView is the JSON shape of an attachment.
type MediaView struct {
	ID          string    `json:"_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// TaskView is the JSON shape of a task.
type TaskView struct {
	ID            string               `json:"_id"`
	Title         string               `json:"title"`
	Notes         string               `json:"notes"`
	Status        string               `json:"status"`
	Progress      string               `json:"progress"`
	Rounds        int                  `json:"rounds"`
	Goal          int                  `json:"goal"`
	GoalType      string               `json:"goalType"`
	Order         float64              `json:"order"`
	ProjectID     string               `json:"projectId,omitempty"`
	DetailedNotes []domain.Note        `json:"detailedNotes"`
	TimeEntries   []domain.TimeEntry   `json:"timeEntries"`
	ActivityLogs  []domain.ActivityLog `json:"activityLogs"`
	Media         []MediaView          `json:"media"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// RoundRecordView is the JSON shape of a round record.
type RoundRecordView struct {
	ID        string    `json:"_id"`
	TaskID    string    `json:"taskId"`
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

// GoalProgressView reports rounds in the current goal period.
type GoalProgressView struct {
	TaskID       string    `json:"taskId"`
	Goal         int       `json:"goal"`
	GoalType     string    `json:"goalType"`
	PeriodStart  time.Time `json:"periodStart"`
	PeriodRounds int       `json:"periodRounds"`
	TotalRounds  int       `json:"totalRounds"`
	Met          bool      `json:"met"`
}

// PomodoroSessionView is the JSON shape of a logged session.
type PomodoroSessionView struct {
	ID          string    `json:"_id"`
	TaskID      string    `json:"taskId,omitempty"`
	Day         string    `json:"day"`
	CompletedAt time.Time `json:"completedAt"`
}

// PomodoroCountView is the per-day session count.
type PomodoroCountView struct {
	Date          string `json:"date"`
	SessionsCount int    `json:"sessionsCount"`
}

// AlertsView carries the contextual banner counters.
type AlertsView struct {
	TasksCompletedToday   int `json:"tasksCompletedToday"`
	TotalTasks            int `json:"totalTasks"`
	TasksWithGoals        int `json:"tasksWithGoals"`
	GoalsCompleted        int `json:"goalsCompleted"`
	PomodoroSessionsToday int `json:"pomodoroSessionsToday"`
}

// TrendPointView is one productivity trend bucket.
type TrendPointView struct {
	Period    string `json:"period"`
	Completed int    `json:"completed"`
}

// RecentActivityView is one entry of the recent activity feed.
type RecentActivityView struct {
	TaskID    string    `json:"taskId"`
	TaskTitle string    `json:"taskTitle"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// StatsView is the dashboard summary.
type StatsView struct {
	Granularity       string               `json:"granularity"`
	StartDate         string               `json:"startDate"`
	EndDate           string               `json:"endDate"`
	TotalTasks        int                  `json:"totalTasks"`
	CompletedTasks    int                  `json:"completedTasks"`
	PendingTasks      int                  `json:"pendingTasks"`
	TotalTimeWorked   int64                `json:"totalTimeWorked"`
	PomodoroSessions  int                  `json:"pomodoroSessions"`
	ProductivityTrend []TrendPointView     `json:"productivityTrend"`
	RecentActivity    []RecentActivityView `json:"recentActivity"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Order:       a.Order,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toActivityViews(activities []domain.Activity) []ActivityView {
	out := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		out = append(out, toActivityView(a))
	}
	return out
}

func toProjectView(p domain.Project) ProjectView {
	return ProjectView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		ActivityID:  p.ActivityID,
		Order:       p.Order,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProjectViews(projects []domain.Project) []ProjectView {
	out := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectView(p))
	}
	return out
}

func toTaskView(t domain.Task) TaskView {
	view := TaskView{
		ID:            t.ID,
		Title:         t.Title,
		Notes:         t.Notes,
		Status:        string(t.Status),
		Progress:      string(t.Progress),
		Rounds:        t.Rounds,
		Goal:          t.Goal,
		GoalType:      string(t.GoalType),
		Order:         t.Order,
		ProjectID:     t.ProjectID,
		DetailedNotes: nonNil(t.DetailedNotes),
		TimeEntries:   nonNil(t.TimeEntries),
		ActivityLogs:  nonNil(t.ActivityLogs),
		Media:         make([]MediaView, 0, len(t.Media)),
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	for _, m := range t.Media {
		view.Media = append(view.Media, MediaView{
			ID:          m.ID,
			Filename:    m.Filename,
			ContentType: m.ContentType,
			Size:        m.Size,
			URL:         m.URL,
			UploadedAt:  m.UploadedAt,
		})
	}
	return view
}

func toTaskViews(tasks []domain.Task) []TaskView {
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskView(t))
	}
	return out
}

func toStatsView(s domain.Stats) StatsView {
	view := StatsView{
		Granularity:       string(s.Granularity),
		StartDate:         s.Start,
		EndDate:           s.End,
		TotalTasks:        s.TotalTasks,
		CompletedTasks:    s.CompletedTasks,
		PendingTasks:      s.PendingTasks,
		TotalTimeWorked:   s.TotalTimeWorked,
		PomodoroSessions:  s.PomodoroSessions,
		ProductivityTrend: make([]TrendPointView, 0, len(s.ProductivityTrend)),
		RecentActivity:    make([]RecentActivityView, 0, len(s.RecentActivity)),
	}
	for _, p := range s.ProductivityTrend {
		view.ProductivityTrend = append(view.ProductivityTrend, TrendPointView{Period: p.Period, Completed: p.Completed})
	}
	for _, a := range s.RecentActivity {
		view.RecentActivity = append(view.RecentActivity, RecentActivityView{
			TaskID:    a.TaskID,
			TaskTitle: a.TaskTitle,
			Action:    a.Action,
			Details:   a.Details,
			Timestamp: a.Timestamp,
		})
	}
	return view
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
