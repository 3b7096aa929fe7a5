// Package events defines the event payloads published through the outbox.
package events

import "time"

// Event type names. They double as the outbox event_type column and the Kafka event_type header.
const (
	TypeActivityUpserted      = "activity.upserted"
	TypeActivityDeleted       = "activity.deleted"
	TypeProjectUpserted       = "project.upserted"
	TypeProjectDeleted        = "project.deleted"
	TypeTaskUpserted          = "task.upserted"
	TypeTaskDeleted           = "task.deleted"
	TypeRoundCompleted        = "task.round_completed"
	TypePomodoroSessionLogged = "pomodoro.session_logged"
)

// ActivityUpserted is emitted when an activity is created or changed.
type ActivityUpserted struct {
	ActivityID  string    `json:"activity_id"`
	TenantID    string    `json:"tenant_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       float64   `json:"order"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActivityDeleted is emitted when an activity and its projects are removed.
type ActivityDeleted struct {
	ActivityID string    `json:"activity_id"`
	TenantID   string    `json:"tenant_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// ProjectUpserted is emitted when a project is created or changed.
type ProjectUpserted struct {
	ProjectID  string    `json:"project_id"`
	TenantID   string    `json:"tenant_id"`
	ActivityID string    `json:"activity_id,omitempty"`
	Title      string    `json:"title"`
	Order      float64   `json:"order"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProjectDeleted is emitted when a project is removed.
type ProjectDeleted struct {
	ProjectID string    `json:"project_id"`
	TenantID  string    `json:"tenant_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// TaskUpserted carries the scalar state of a task after a change.
type TaskUpserted struct {
	TaskID      string     `json:"task_id"`
	TenantID    string     `json:"tenant_id"`
	ProjectID   string     `json:"project_id,omitempty"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Progress    string     `json:"progress"`
	Rounds      int        `json:"rounds"`
	Goal        int        `json:"goal"`
	GoalType    string     `json:"goal_type"`
	Order       float64    `json:"order"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskDeleted is emitted when a task is removed.
type TaskDeleted struct {
	TaskID    string    `json:"task_id"`
	TenantID  string    `json:"tenant_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// RoundCompleted is emitted once per round recorded against a task.
type RoundCompleted struct {
	RecordID    string    `json:"record_id"`
	TaskID      string    `json:"task_id"`
	TenantID    string    `json:"tenant_id"`
	Round       int       `json:"round"`
	CompletedAt time.Time `json:"completed_at"`
}

// PomodoroSessionLogged is emitted when a work interval completes.
type PomodoroSessionLogged struct {
	SessionID   string    `json:"session_id"`
	TenantID    string    `json:"tenant_id"`
	TaskID      string    `json:"task_id,omitempty"`
	Day         string    `json:"day"`
	CompletedAt time.Time `json:"completed_at"`
}
