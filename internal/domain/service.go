// Package domain defines the business logic for the productivity service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/taskflow/internal/ordering"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrProjectNotFound is returned when a project cannot be located.
	ErrProjectNotFound = errors.New("project not found")
	// ErrTaskNotFound is returned when a task cannot be located.
	ErrTaskNotFound = errors.New("task not found")
	// ErrMediaNotFound is returned when a media attachment cannot be located.
	ErrMediaNotFound = errors.New("media not found")
	// ErrValidation wraps every input validation failure.
	ErrValidation = errors.New("validation failed")
)

func validationError(detail string) error {
	return fmt.Errorf("%w: %s", ErrValidation, detail)
}

// ActivityRepository captures activity persistence.
type ActivityRepository interface {
	ListActivities(ctx context.Context, tenantID string) ([]Activity, error)
	GetActivity(ctx context.Context, tenantID, activityID string) (*Activity, error)
	CreateActivity(ctx context.Context, activity Activity) error
	UpdateActivity(ctx context.Context, tenantID, activityID string, mutate func(*Activity) error) (*Activity, error)
	DeleteActivity(ctx context.Context, tenantID, activityID string) (bool, error)
}

// ProjectRepository captures project persistence.
type ProjectRepository interface {
	ListProjects(ctx context.Context, tenantID string, filter ProjectFilter) ([]Project, error)
	GetProject(ctx context.Context, tenantID, projectID string) (*Project, error)
	CreateProject(ctx context.Context, project Project) error
	UpdateProject(ctx context.Context, tenantID, projectID string, mutate func(*Project) error) (*Project, error)
	DeleteProject(ctx context.Context, tenantID, projectID string) (bool, error)
}

// TaskRepository captures task, round record and ordering persistence.
type TaskRepository interface {
	ListTasks(ctx context.Context, tenantID string, filter TaskFilter) ([]Task, error)
	GetTask(ctx context.Context, tenantID, taskID string) (*Task, error)
	CreateTask(ctx context.Context, task Task) error
	UpdateTask(ctx context.Context, tenantID, taskID string, mutate TaskMutator) (*Task, error)
	DeleteTask(ctx context.Context, tenantID, taskID string) (bool, error)
	ListRoundRecords(ctx context.Context, tenantID, taskID string, cursor *Cursor, limit int) ([]RoundRecord, *Cursor, error)
	CountRoundRecordsSince(ctx context.Context, tenantID, taskID string, since time.Time) (int, error)
}

// PomodoroRepository captures pomodoro session persistence. Days are YYYY-MM-DD strings.
type PomodoroRepository interface {
	CreatePomodoroSession(ctx context.Context, session PomodoroSession) error
	CountPomodoroSessions(ctx context.Context, tenantID, fromDay, toDay string) (int, error)
}

// Repository is the full persistence contract. Get methods return nil, nil when the
// record does not exist; Update methods return nil, nil likewise.
type Repository interface {
	ActivityRepository
	ProjectRepository
	TaskRepository
	PomodoroRepository
	UpdateOrders(ctx context.Context, tenantID string, kind EntityKind, updates []OrderUpdate) error
}

// MediaStore persists uploaded task attachments.
type MediaStore interface {
	Save(ctx context.Context, tenantID, filename string, body io.Reader) (StoredMedia, error)
	Remove(ctx context.Context, tenantID, key string) error
}

// StoredMedia is the result of saving a file to a MediaStore.
type StoredMedia struct {
	Key  string
	URL  string
	Size int64
}

// Service orchestrates productivity workflows.
type Service struct {
	repo   Repository
	media  MediaStore
	now    func() time.Time
	loc    *time.Location
	logger *log.Logger
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone used for day, week and month boundaries.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMediaStore enables task attachments.
func WithMediaStore(store MediaStore) Option {
	return func(s *Service) { s.media = store }
}

// WithLogger sets the logger used for failures that do not fail the request.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		now:    time.Now,
		loc:    time.UTC,
		logger: log.New(log.Writer(), "[domain] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// removeFiles deletes stored media after their records are gone. Failures only leave
// orphaned files behind, so they are logged.
func (s *Service) removeFiles(ctx context.Context, tenantID string, files ...Media) {
	if s.media == nil {
		return
	}
	for _, m := range files {
		if m.Key == "" {
			continue
		}
		if err := s.media.Remove(ctx, tenantID, m.Key); err != nil {
			s.logger.Printf("remove media file %s (tenant=%s): %v", m.Key, tenantID, err)
		}
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) localNow() time.Time {
	return s.now().In(s.loc)
}

// ActivityInput is the payload for creating an activity.
type ActivityInput struct {
	Title       string
	Description string
}

// ActivityPatch holds optional activity changes.
type ActivityPatch struct {
	Title       *string
	Description *string
	Order       *float64
}

// ListActivities returns activities sorted by order.
func (s *Service) ListActivities(ctx context.Context, tenantID string) ([]Activity, error) {
	activities, err := s.repo.ListActivities(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(activities, func(i, j int) bool {
		if activities[i].Order != activities[j].Order {
			return activities[i].Order < activities[j].Order
		}
		return activities[i].CreatedAt.After(activities[j].CreatedAt)
	})
	return activities, nil
}

// CreateActivity stores a new activity ahead of the existing ones.
func (s *Service) CreateActivity(ctx context.Context, tenantID string, input ActivityInput) (*Activity, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}

	existing, err := s.repo.ListActivities(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	orders := make([]float64, 0, len(existing))
	for _, a := range existing {
		orders = append(orders, a.Order)
	}

	now := s.clock()
	activity := Activity{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Order:       ordering.First(orders),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, tenantID, activityID string) (*Activity, error) {
	activity, err := s.repo.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// UpdateActivity applies a partial update.
func (s *Service) UpdateActivity(ctx context.Context, tenantID, activityID string, patch ActivityPatch) (*Activity, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, validationError("title must not be empty")
	}
	now := s.clock()
	updated, err := s.repo.UpdateActivity(ctx, tenantID, activityID, func(a *Activity) error {
		if patch.Title != nil {
			a.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			a.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Order != nil {
			a.Order = *patch.Order
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrActivityNotFound
	}
	return updated, nil
}

// DeleteActivity removes an activity together with its projects. Tasks of those projects
// become unassigned.
func (s *Service) DeleteActivity(ctx context.Context, tenantID, activityID string) error {
	deleted, err := s.repo.DeleteActivity(ctx, tenantID, activityID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrActivityNotFound
	}
	return nil
}

// ReorderActivities renumbers activities to follow ids. Every activity must be listed once.
func (s *Service) ReorderActivities(ctx context.Context, tenantID string, ids []string) ([]Activity, error) {
	existing, err := s.repo.ListActivities(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	known := make([]string, 0, len(existing))
	for _, a := range existing {
		known = append(known, a.ID)
	}
	if err := s.reorder(ctx, tenantID, KindActivity, known, ids); err != nil {
		return nil, err
	}
	return s.ListActivities(ctx, tenantID)
}

func (s *Service) reorder(ctx context.Context, tenantID string, kind EntityKind, known, ids []string) error {
	if len(ids) != len(known) {
		return validationError(fmt.Sprintf("expected %d ids, got %d", len(known), len(ids)))
	}
	members := make(map[string]struct{}, len(known))
	for _, id := range known {
		members[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := members[id]; !ok {
			return validationError(fmt.Sprintf("unknown %s id %q", kind, id))
		}
		if _, dup := seen[id]; dup {
			return validationError(fmt.Sprintf("duplicate %s id %q", kind, id))
		}
		seen[id] = struct{}{}
	}

	orders := ordering.Sequential(len(ids))
	updates := make([]OrderUpdate, len(ids))
	for i, id := range ids {
		updates[i] = OrderUpdate{ID: id, Order: orders[i]}
	}
	return s.repo.UpdateOrders(ctx, tenantID, kind, updates)
}

// ProjectInput is the payload for creating a project.
type ProjectInput struct {
	Title       string
	Description string
	ActivityID  string
}

// ProjectPatch holds optional project changes. An empty ActivityID detaches the project.
type ProjectPatch struct {
	Title       *string
	Description *string
	ActivityID  *string
	Order       *float64
}

// ListProjects returns projects sorted by order, optionally for one activity.
func (s *Service) ListProjects(ctx context.Context, tenantID string, filter ProjectFilter) ([]Project, error) {
	projects, err := s.repo.ListProjects(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].Order != projects[j].Order {
			return projects[i].Order < projects[j].Order
		}
		return projects[i].CreatedAt.Before(projects[j].CreatedAt)
	})
	return projects, nil
}

// CreateProject appends a project to its activity.
func (s *Service) CreateProject(ctx context.Context, tenantID string, input ProjectInput) (*Project, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	activityID := strings.TrimSpace(input.ActivityID)
	if err := s.requireActivity(ctx, tenantID, activityID); err != nil {
		return nil, err
	}

	siblings, err := s.repo.ListProjects(ctx, tenantID, ProjectFilter{ActivityID: activityID, Unassigned: activityID == ""})
	if err != nil {
		return nil, err
	}
	orders := make([]float64, 0, len(siblings))
	for _, p := range siblings {
		orders = append(orders, p.Order)
	}

	now := s.clock()
	project := Project{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ActivityID:  activityID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Order:       ordering.Last(orders),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *Service) requireActivity(ctx context.Context, tenantID, activityID string) error {
	if activityID == "" {
		return nil
	}
	activity, err := s.repo.GetActivity(ctx, tenantID, activityID)
	if err != nil {
		return err
	}
	if activity == nil {
		return validationError(fmt.Sprintf("activity %q does not exist", activityID))
	}
	return nil
}

// GetProject fetches by ID.
func (s *Service) GetProject(ctx context.Context, tenantID, projectID string) (*Project, error) {
	project, err := s.repo.GetProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// UpdateProject applies a partial update.
func (s *Service) UpdateProject(ctx context.Context, tenantID, projectID string, patch ProjectPatch) (*Project, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, validationError("title must not be empty")
	}
	if patch.ActivityID != nil {
		if err := s.requireActivity(ctx, tenantID, strings.TrimSpace(*patch.ActivityID)); err != nil {
			return nil, err
		}
	}
	now := s.clock()
	updated, err := s.repo.UpdateProject(ctx, tenantID, projectID, func(p *Project) error {
		if patch.Title != nil {
			p.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			p.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.ActivityID != nil {
			p.ActivityID = strings.TrimSpace(*patch.ActivityID)
		}
		if patch.Order != nil {
			p.Order = *patch.Order
		}
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrProjectNotFound
	}
	return updated, nil
}

// DeleteProject removes a project. Its tasks stay and become unassigned.
func (s *Service) DeleteProject(ctx context.Context, tenantID, projectID string) error {
	deleted, err := s.repo.DeleteProject(ctx, tenantID, projectID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrProjectNotFound
	}
	return nil
}

// ReorderProjects renumbers the projects of one activity to follow ids. An empty activity
// reorders the projects without one.
func (s *Service) ReorderProjects(ctx context.Context, tenantID, activityID string, ids []string) ([]Project, error) {
	filter := ProjectFilter{ActivityID: activityID, Unassigned: activityID == ""}
	existing, err := s.repo.ListProjects(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	known := make([]string, 0, len(existing))
	for _, p := range existing {
		known = append(known, p.ID)
	}
	if err := s.reorder(ctx, tenantID, KindProject, known, ids); err != nil {
		return nil, err
	}
	return s.ListProjects(ctx, tenantID, filter)
}
