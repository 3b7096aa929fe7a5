package client

import "time"

// Activity mirrors the API's activity JSON. Pending marks an optimistic placeholder.
type Activity struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       float64   `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Pending     bool      `json:"-"`
}

// Project mirrors the API's project JSON.
type Project struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ActivityID  string    `json:"activityId,omitempty"`
	Order       float64   `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Pending     bool      `json:"-"`
}

type Note struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type TimeEntry struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Duration  int64      `json:"duration,omitempty"`
}

type ActivityLog struct {
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

type Media struct {
	ID          string    `json:"_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Task mirrors the API's task JSON.
type Task struct {
	ID            string        `json:"_id"`
	Title         string        `json:"title"`
	Notes         string        `json:"notes"`
	Status        string        `json:"status"`
	Progress      string        `json:"progress"`
	Rounds        int           `json:"rounds"`
	Goal          int           `json:"goal"`
	GoalType      string        `json:"goalType"`
	Order         float64       `json:"order"`
	ProjectID     string        `json:"projectId,omitempty"`
	DetailedNotes []Note        `json:"detailedNotes"`
	TimeEntries   []TimeEntry   `json:"timeEntries"`
	ActivityLogs  []ActivityLog `json:"activityLogs"`
	Media         []Media       `json:"media"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Pending       bool          `json:"-"`
}

// Running reports whether the task has an open time entry.
func (t Task) Running() bool {
	for _, e := range t.TimeEntries {
		if e.EndTime == nil {
			return true
		}
	}
	return false
}

type RoundRecord struct {
	ID        string    `json:"_id"`
	TaskID    string    `json:"taskId"`
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

type GoalProgress struct {
	TaskID       string    `json:"taskId"`
	Goal         int       `json:"goal"`
	GoalType     string    `json:"goalType"`
	PeriodStart  time.Time `json:"periodStart"`
	PeriodRounds int       `json:"periodRounds"`
	TotalRounds  int       `json:"totalRounds"`
	Met          bool      `json:"met"`
}

type PomodoroSession struct {
	ID          string    `json:"_id"`
	TaskID      string    `json:"taskId,omitempty"`
	Day         string    `json:"day"`
	CompletedAt time.Time `json:"completedAt"`
}

type PomodoroCount struct {
	Date          string `json:"date"`
	SessionsCount int    `json:"sessionsCount"`
}

type Alerts struct {
	TasksCompletedToday   int `json:"tasksCompletedToday"`
	TotalTasks            int `json:"totalTasks"`
	TasksWithGoals        int `json:"tasksWithGoals"`
	GoalsCompleted        int `json:"goalsCompleted"`
	PomodoroSessionsToday int `json:"pomodoroSessionsToday"`
}

type TrendPoint struct {
	Period    string `json:"period"`
	Completed int    `json:"completed"`
}

type RecentActivity struct {
	TaskID    string    `json:"taskId"`
	TaskTitle string    `json:"taskTitle"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

type Stats struct {
	Granularity       string           `json:"granularity"`
	StartDate         string           `json:"startDate"`
	EndDate           string           `json:"endDate"`
	TotalTasks        int              `json:"totalTasks"`
	CompletedTasks    int              `json:"completedTasks"`
	PendingTasks      int              `json:"pendingTasks"`
	TotalTimeWorked   int64            `json:"totalTimeWorked"`
	PomodoroSessions  int              `json:"pomodoroSessions"`
	ProductivityTrend []TrendPoint     `json:"productivityTrend"`
	RecentActivity    []RecentActivity `json:"recentActivity"`
}

// ActivityInput creates an activity.
type ActivityInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ActivityPatch updates an activity; nil fields are left unchanged.
type ActivityPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Order       *float64 `json:"order,omitempty"`
}

type ProjectInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ActivityID  string `json:"activityId,omitempty"`
}

// ProjectPatch updates a project. A pointer to "" detaches it from its activity.
type ProjectPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	ActivityID  *string  `json:"activityId,omitempty"`
	Order       *float64 `json:"order,omitempty"`
}

type TaskInput struct {
	Title     string `json:"title"`
	Notes     string `json:"notes,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
}

// TaskPatch updates a task. A pointer to "" unassigns it from its project.
type TaskPatch struct {
	Title     *string  `json:"title,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	Status    *string  `json:"status,omitempty"`
	Progress  *string  `json:"progress,omitempty"`
	Rounds    *int     `json:"rounds,omitempty"`
	Goal      *int     `json:"goal,omitempty"`
	GoalType  *string  `json:"goalType,omitempty"`
	ProjectID *string  `json:"projectId,omitempty"`
	Order     *float64 `json:"order,omitempty"`
}

// TaskQuery filters ListTasks.
type TaskQuery struct {
	ProjectID  string
	Unassigned bool
}
