package domain

import "time"

// Activity is the top-level grouping record shown as a card on the dashboard.
type Activity struct {
	ID          string
	TenantID    string
	Title       string
	Description string
	Order       float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Project groups tasks and optionally belongs to an activity.
type Project struct {
	ID          string
	TenantID    string
	ActivityID  string
	Title       string
	Description string
	Order       float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectFilter narrows project listings. The zero value lists every project; Unassigned
// keeps only the projects without an activity.
type ProjectFilter struct {
	ActivityID string
	Unassigned bool
}

// EntityKind names the orderable collections.
type EntityKind string

const (
	KindActivity EntityKind = "activity"
	KindProject  EntityKind = "project"
	KindTask     EntityKind = "task"
)

// OrderUpdate assigns a new order index to one record.
type OrderUpdate struct {
	ID    string
	Order float64
}

// Cursor models the pagination token for time-ordered listings.
type Cursor struct {
	At time.Time
	ID string
}
