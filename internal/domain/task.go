package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the coarse completion flag toggled from the card header.
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
)

// ParseTaskStatus normalises user input into a TaskStatus.
func ParseTaskStatus(input string) (TaskStatus, error) {
	switch TaskStatus(strings.ToLower(strings.TrimSpace(input))) {
	case TaskStatusActive:
		return TaskStatusActive, nil
	case TaskStatusCompleted:
		return TaskStatusCompleted, nil
	}
	return "", validationError(fmt.Sprintf("invalid status %q", input))
}

// Progress is the broad progress label picked from the task body.
type Progress string

const (
	ProgressNotStarted Progress = "Not started"
	ProgressStarted    Progress = "Started"
	ProgressOnIce      Progress = "On ice"
	ProgressCompleted  Progress = "Completed"
)

var progressValues = []Progress{ProgressNotStarted, ProgressStarted, ProgressOnIce, ProgressCompleted}

// ParseProgress matches input case-insensitively against the known labels.
func ParseProgress(input string) (Progress, error) {
	trimmed := strings.TrimSpace(input)
	for _, p := range progressValues {
		if strings.EqualFold(string(p), trimmed) {
			return p, nil
		}
	}
	return "", validationError(fmt.Sprintf("invalid progress %q", input))
}

// GoalType is the frequency a round goal is measured against.
type GoalType string

const (
	GoalDaily   GoalType = "Daily"
	GoalWeekly  GoalType = "Weekly"
	GoalMonthly GoalType = "Monthly"
)

// ParseGoalType accepts daily/weekly/monthly in any case.
func ParseGoalType(input string) (GoalType, error) {
	trimmed := strings.TrimSpace(input)
	for _, g := range []GoalType{GoalDaily, GoalWeekly, GoalMonthly} {
		if strings.EqualFold(string(g), trimmed) {
			return g, nil
		}
	}
	return "", validationError(fmt.Sprintf("invalid goal type %q", input))
}

// PeriodStart returns the beginning of the goal period containing t, in t's location.
// Weeks start on Monday.
func (g GoalType) PeriodStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch g {
	case GoalWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GoalMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return day
	}
}

// Note is a timestamped checklist entry attached to a task.
type Note struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TimeEntry is one tracked work interval. EndTime is nil while the timer runs.
type TimeEntry struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Duration  int64      `json:"duration,omitempty"`
}

// ActivityLog records a single change applied to a task.
type ActivityLog struct {
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// Media describes a file attached to a task.
type Media struct {
	ID          string    `json:"_id"`
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Task is the unit of work tracked inside a project.
type Task struct {
	ID            string
	TenantID      string
	ProjectID     string
	Title         string
	Notes         string
	Status        TaskStatus
	Progress      Progress
	Rounds        int
	Goal          int
	GoalType      GoalType
	Order         float64
	DetailedNotes []Note
	TimeEntries   []TimeEntry
	ActivityLogs  []ActivityLog
	Media         []Media
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Running reports whether the task has an open time entry.
func (t Task) Running() bool {
	return t.openEntry() >= 0
}

func (t Task) openEntry() int {
	for i := len(t.TimeEntries) - 1; i >= 0; i-- {
		if t.TimeEntries[i].EndTime == nil {
			return i
		}
	}
	return -1
}

// TrackedBetween sums tracked time that overlaps [from, to). Open entries count up to now.
func (t Task) TrackedBetween(from, to, now time.Time) time.Duration {
	var total time.Duration
	for _, entry := range t.TimeEntries {
		end := now
		if entry.EndTime != nil {
			end = *entry.EndTime
		}
		start := entry.StartTime
		if !from.IsZero() && start.Before(from) {
			start = from
		}
		if !to.IsZero() && end.After(to) {
			end = to
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return total
}

// GoalMet reports whether the lifetime rounds reached a positive goal.
func (t Task) GoalMet() bool {
	return t.Goal > 0 && t.Rounds >= t.Goal
}

func (t *Task) log(action, details string, at time.Time) {
	t.ActivityLogs = append(t.ActivityLogs, ActivityLog{Action: action, Details: details, Timestamp: at})
}

// TaskFilter narrows task listings. Unassigned selects tasks without a project.
type TaskFilter struct {
	ProjectID  string
	Unassigned bool
}

// TaskEffects carries records produced alongside a task mutation.
type TaskEffects struct {
	RoundRecords []RoundRecord
}

// TaskMutator applies an in-place change to a task loaded inside a repository transaction.
type TaskMutator func(task *Task) (TaskEffects, error)

// RoundRecord marks the completion of one round of a task.
type RoundRecord struct {
	ID        string
	TenantID  string
	TaskID    string
	Round     int
	Timestamp time.Time
}

// GoalProgress summarises the rounds completed in the current goal period.
type GoalProgress struct {
	TaskID       string
	Goal         int
	GoalType     GoalType
	PeriodStart  time.Time
	PeriodRounds int
	TotalRounds  int
	Met          bool
}
