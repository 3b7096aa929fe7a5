package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"example.com/taskflow/internal/ordering"
)

// DefaultPollInterval is how often Watch refreshes the board.
const DefaultPollInterval = 5 * time.Second

// Board is the local view of activities, their projects, and the tasks of each project.
// Tasks without a project are kept under the "" key. Board is safe for concurrent use.
type Board struct {
	client *Client
	logger *log.Logger
	now    func() time.Time

	mu         sync.RWMutex
	activities []Activity
	projects   map[string][]Project
	tasks      map[string][]Task
	lastTemp   int64
}

// BoardOption customises a Board.
type BoardOption func(*Board)

// WithLogger sets the logger used for failed requests.
func WithLogger(logger *log.Logger) BoardOption {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the clock used for placeholder IDs.
func WithClock(now func() time.Time) BoardOption {
	return func(b *Board) { b.now = now }
}

// NewBoard creates an empty board. Call Refresh or Watch to load it.
func NewBoard(c *Client, opts ...BoardOption) *Board {
	b := &Board{
		client:   c,
		logger:   log.New(os.Stderr, "[board] ", log.LstdFlags),
		now:      time.Now,
		projects: make(map[string][]Project),
		tasks:    make(map[string][]Task),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Activities returns a snapshot in display order.
func (b *Board) Activities() []Activity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Activity(nil), b.activities...)
}

// Projects returns a snapshot of the projects of activityID ("" for projects without one).
func (b *Board) Projects(activityID string) []Project {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Project(nil), b.projects[activityID]...)
}

// Tasks returns a snapshot of the tasks of projectID ("" for unassigned tasks).
func (b *Board) Tasks(projectID string) []Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Task(nil), b.tasks[projectID]...)
}

// tempID returns temp-<unix ms>, bumped when two placeholders share a millisecond.
// Callers hold b.mu.
func (b *Board) tempID() string {
	ms := b.now().UnixMilli()
	if ms <= b.lastTemp {
		ms = b.lastTemp + 1
	}
	b.lastTemp = ms
	return fmt.Sprintf("temp-%d", ms)
}

// Refresh reloads every list from the API. Placeholders of in-flight creates survive.
func (b *Board) Refresh(ctx context.Context) error {
	activities, err := b.client.ListActivities(ctx)
	if err != nil {
		return fmt.Errorf("fetch activities: %w", err)
	}
	projects, err := b.client.ListProjects(ctx, "")
	if err != nil {
		return fmt.Errorf("fetch projects: %w", err)
	}
	tasks, err := b.client.ListTasks(ctx, TaskQuery{})
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}

	projectsBy := make(map[string][]Project)
	for _, p := range projects {
		projectsBy[p.ActivityID] = append(projectsBy[p.ActivityID], p)
	}
	tasksBy := make(map[string][]Task)
	for _, t := range tasks {
		tasksBy[t.ProjectID] = append(tasksBy[t.ProjectID], t)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var pendingActivities []Activity
	for _, a := range b.activities {
		if a.Pending {
			pendingActivities = append(pendingActivities, a)
		}
	}
	b.activities = append(pendingActivities, activities...)
	for key, list := range b.projects {
		for _, p := range list {
			if p.Pending {
				projectsBy[key] = append(projectsBy[key], p)
			}
		}
	}
	for key, list := range b.tasks {
		for _, t := range list {
			if t.Pending {
				tasksBy[key] = append(tasksBy[key], t)
			}
		}
	}
	b.projects, b.tasks = projectsBy, tasksBy
	return nil
}

// Watch refreshes immediately and then every interval until ctx is done. Failed refreshes
// are logged and retried on the next tick.
func (b *Board) Watch(ctx context.Context, interval time.Duration, onChange func()) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := b.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Printf("refresh failed: %v", err)
		} else if onChange != nil {
			onChange()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// AddActivity shows a placeholder at the top of the board, creates the activity, and swaps
// the placeholder for the stored record. On failure the placeholder is removed.
func (b *Board) AddActivity(ctx context.Context, input ActivityInput) (Activity, error) {
	b.mu.Lock()
	temp := Activity{ID: b.tempID(), Title: input.Title, Description: input.Description, Pending: true}
	b.activities = append([]Activity{temp}, b.activities...)
	b.mu.Unlock()

	created, err := b.client.CreateActivity(ctx, input)

	b.mu.Lock()
	defer b.mu.Unlock()
	idx := indexOf(b.activities, func(a Activity) bool { return a.ID == temp.ID })
	if err != nil {
		b.logger.Printf("add activity failed: %v", err)
		if idx >= 0 {
			b.activities = append(b.activities[:idx], b.activities[idx+1:]...)
		}
		return Activity{}, err
	}
	if idx >= 0 {
		b.activities[idx] = created
	} else {
		b.activities = append([]Activity{created}, b.activities...)
	}
	return created, nil
}

// AddProject appends a placeholder to the activity's projects and reconciles it.
func (b *Board) AddProject(ctx context.Context, input ProjectInput) (Project, error) {
	key := input.ActivityID
	b.mu.Lock()
	temp := Project{ID: b.tempID(), Title: input.Title, Description: input.Description, ActivityID: key, Pending: true}
	b.projects[key] = append(b.projects[key], temp)
	b.mu.Unlock()

	created, err := b.client.CreateProject(ctx, input)

	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.projects[key]
	idx := indexOf(list, func(p Project) bool { return p.ID == temp.ID })
	if err != nil {
		b.logger.Printf("add project failed: %v", err)
		if idx >= 0 {
			b.projects[key] = append(list[:idx], list[idx+1:]...)
		}
		return Project{}, err
	}
	if idx >= 0 {
		list[idx] = created
	} else {
		b.projects[key] = append(list, created)
	}
	return created, nil
}

// AddTask appends a placeholder to the project's tasks and reconciles it.
func (b *Board) AddTask(ctx context.Context, input TaskInput) (Task, error) {
	key := input.ProjectID
	b.mu.Lock()
	temp := Task{ID: b.tempID(), Title: input.Title, Notes: input.Notes, ProjectID: key, Status: "active", Progress: "Not started", GoalType: "Daily", Pending: true}
	b.tasks[key] = append(b.tasks[key], temp)
	b.mu.Unlock()

	created, err := b.client.CreateTask(ctx, input)

	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.tasks[key]
	idx := indexOf(list, func(t Task) bool { return t.ID == temp.ID })
	if err != nil {
		b.logger.Printf("add task failed: %v", err)
		if idx >= 0 {
			b.tasks[key] = append(list[:idx], list[idx+1:]...)
		}
		return Task{}, err
	}
	if idx >= 0 {
		list[idx] = created
	} else {
		b.tasks[key] = append(list, created)
	}
	return created, nil
}

// orderChange is one PUT produced by a move.
type orderChange struct {
	id    string
	order float64
}

// planMove splices ids/orders and returns the order updates. Placeholders move
// locally only: orders are planned over the persisted entries, so a placeholder's
// value never acts as a neighbour and placeholders get no updates.
func planMove(ids []string, orders []float64, pending []bool, from, to int) ([]int, []orderChange) {
	n := len(ids)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return nil, nil
	}
	perm := ordering.Move(indexes(n), from, to)
	if pending[from] {
		return perm, nil
	}

	var persisted []int
	movedAt := -1
	for _, src := range perm {
		if pending[src] {
			continue
		}
		if src == from {
			movedAt = len(persisted)
		}
		persisted = append(persisted, src)
	}
	values := make([]float64, len(persisted))
	for i, src := range persisted {
		values[i] = orders[src]
	}

	var changes []orderChange
	for _, u := range ordering.Plan(values, movedAt) {
		src := persisted[u.Index]
		orders[src] = u.Order
		changes = append(changes, orderChange{id: ids[src], order: u.Order})
	}
	return perm, changes
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// persist sends order changes one request at a time. Failures are logged and joined.
func (b *Board) persist(ctx context.Context, kind string, changes []orderChange, put func(context.Context, string, float64) error) error {
	var errs []error
	for _, c := range changes {
		if err := put(ctx, c.id, c.order); err != nil {
			b.logger.Printf("persist %s order %s: %v", kind, c.id, err)
			errs = append(errs, fmt.Errorf("%s %s: %w", kind, c.id, err))
		}
	}
	return errors.Join(errs...)
}

// MoveActivity moves the activity at from to to and persists the new order indexes.
func (b *Board) MoveActivity(ctx context.Context, from, to int) error {
	b.mu.Lock()
	list := b.activities
	ids, orders, pending := make([]string, len(list)), make([]float64, len(list)), make([]bool, len(list))
	for i, a := range list {
		ids[i], orders[i], pending[i] = a.ID, a.Order, a.Pending
	}
	perm, changes := planMove(ids, orders, pending, from, to)
	if perm != nil {
		next := make([]Activity, len(list))
		for i, src := range perm {
			next[i] = list[src]
			next[i].Order = orders[src]
		}
		b.activities = next
	}
	b.mu.Unlock()

	return b.persist(ctx, "activity", changes, func(ctx context.Context, id string, order float64) error {
		_, err := b.client.UpdateActivity(ctx, id, ActivityPatch{Order: &order})
		return err
	})
}

// MoveProject reorders the projects of activityID.
func (b *Board) MoveProject(ctx context.Context, activityID string, from, to int) error {
	b.mu.Lock()
	list := b.projects[activityID]
	ids, orders, pending := make([]string, len(list)), make([]float64, len(list)), make([]bool, len(list))
	for i, p := range list {
		ids[i], orders[i], pending[i] = p.ID, p.Order, p.Pending
	}
	perm, changes := planMove(ids, orders, pending, from, to)
	if perm != nil {
		next := make([]Project, len(list))
		for i, src := range perm {
			next[i] = list[src]
			next[i].Order = orders[src]
		}
		b.projects[activityID] = next
	}
	b.mu.Unlock()

	return b.persist(ctx, "project", changes, func(ctx context.Context, id string, order float64) error {
		_, err := b.client.UpdateProject(ctx, id, ProjectPatch{Order: &order})
		return err
	})
}

// MoveTask reorders the tasks of projectID.
func (b *Board) MoveTask(ctx context.Context, projectID string, from, to int) error {
	b.mu.Lock()
	list := b.tasks[projectID]
	ids, orders, pending := make([]string, len(list)), make([]float64, len(list)), make([]bool, len(list))
	for i, t := range list {
		ids[i], orders[i], pending[i] = t.ID, t.Order, t.Pending
	}
	perm, changes := planMove(ids, orders, pending, from, to)
	if perm != nil {
		next := make([]Task, len(list))
		for i, src := range perm {
			next[i] = list[src]
			next[i].Order = orders[src]
		}
		b.tasks[projectID] = next
	}
	b.mu.Unlock()

	return b.persist(ctx, "task", changes, func(ctx context.Context, id string, order float64) error {
		_, err := b.client.UpdateTask(ctx, id, TaskPatch{Order: &order})
		return err
	})
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, item := range items {
		if match(item) {
			return i
		}
	}
	return -1
}
