package domain

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/taskflow/internal/ordering"
)

// TaskInput is the payload for creating a task.
type TaskInput struct {
	Title     string
	Notes     string
	ProjectID string
}

// TaskPatch holds optional task changes. An empty ProjectID unassigns the task.
type TaskPatch struct {
	Title     *string
	Notes     *string
	Status    *string
	Progress  *string
	Rounds    *int
	Goal      *int
	GoalType  *string
	ProjectID *string
	Order     *float64
}

// MediaUpload describes an incoming attachment.
type MediaUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// ListTasks returns tasks sorted by order.
func (s *Service) ListTasks(ctx context.Context, tenantID string, filter TaskFilter) ([]Task, error) {
	tasks, err := s.repo.ListTasks(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	sortTasks(tasks)
	return tasks, nil
}

func sortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// CreateTask appends a task to its project.
func (s *Service) CreateTask(ctx context.Context, tenantID string, input TaskInput) (*Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	projectID := strings.TrimSpace(input.ProjectID)
	order, err := s.nextTaskOrder(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	task := Task{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		ProjectID: projectID,
		Title:     title,
		Notes:     strings.TrimSpace(input.Notes),
		Status:    TaskStatusActive,
		Progress:  ProgressNotStarted,
		GoalType:  GoalDaily,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	task.log("Task created", title, now)

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return &task, nil
}

// nextTaskOrder verifies the project and returns an order placing a task last in it.
func (s *Service) nextTaskOrder(ctx context.Context, tenantID, projectID string) (float64, error) {
	filter := TaskFilter{Unassigned: true}
	if projectID != "" {
		project, err := s.repo.GetProject(ctx, tenantID, projectID)
		if err != nil {
			return 0, err
		}
		if project == nil {
			return 0, validationError(fmt.Sprintf("project %q does not exist", projectID))
		}
		filter = TaskFilter{ProjectID: projectID}
	}
	siblings, err := s.repo.ListTasks(ctx, tenantID, filter)
	if err != nil {
		return 0, err
	}
	orders := make([]float64, 0, len(siblings))
	for _, t := range siblings {
		orders = append(orders, t.Order)
	}
	return ordering.Last(orders), nil
}

// GetTask fetches by ID.
func (s *Service) GetTask(ctx context.Context, tenantID, taskID string) (*Task, error) {
	task, err := s.repo.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// DeleteTask removes a task and its round records. Stored media files are removed
// best-effort after the record is gone.
func (s *Service) DeleteTask(ctx context.Context, tenantID, taskID string) error {
	task, err := s.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteTask(ctx, tenantID, taskID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTaskNotFound
	}
	s.removeFiles(ctx, tenantID, task.Media...)
	return nil
}

type normalizedPatch struct {
	TaskPatch
	status   TaskStatus
	progress Progress
	goalType GoalType
	order    *float64
}

func (s *Service) normalizeTaskPatch(patch TaskPatch) (normalizedPatch, error) {
	n := normalizedPatch{TaskPatch: patch, order: patch.Order}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return n, validationError("title must not be empty")
	}
	if patch.Status != nil {
		status, err := ParseTaskStatus(*patch.Status)
		if err != nil {
			return n, err
		}
		n.status = status
	}
	if patch.Progress != nil {
		progress, err := ParseProgress(*patch.Progress)
		if err != nil {
			return n, err
		}
		n.progress = progress
	}
	if patch.GoalType != nil {
		goalType, err := ParseGoalType(*patch.GoalType)
		if err != nil {
			return n, err
		}
		n.goalType = goalType
	}
	if patch.Rounds != nil && *patch.Rounds < 0 {
		return n, validationError("rounds must not be negative")
	}
	if patch.Goal != nil && *patch.Goal < 0 {
		return n, validationError("goal must not be negative")
	}
	return n, nil
}

// UpdateTask applies a partial update and records what changed in the task's activity log.
func (s *Service) UpdateTask(ctx context.Context, tenantID, taskID string, patch TaskPatch) (*Task, error) {
	n, err := s.normalizeTaskPatch(patch)
	if err != nil {
		return nil, err
	}

	var projectID string
	var reassignOrder *float64
	if patch.ProjectID != nil {
		projectID = strings.TrimSpace(*patch.ProjectID)
		current, err := s.GetTask(ctx, tenantID, taskID)
		if err != nil {
			return nil, err
		}
		if current.ProjectID != projectID {
			order, err := s.nextTaskOrder(ctx, tenantID, projectID)
			if err != nil {
				return nil, err
			}
			reassignOrder = &order
		}
	}

	now := s.clock()
	updated, err := s.repo.UpdateTask(ctx, tenantID, taskID, func(t *Task) (TaskEffects, error) {
		var effects TaskEffects
		if n.Title != nil {
			if title := strings.TrimSpace(*n.Title); title != t.Title {
				t.log("Title updated", fmt.Sprintf("%s → %s", t.Title, title), now)
				t.Title = title
			}
		}
		if n.Notes != nil && *n.Notes != t.Notes {
			t.Notes = *n.Notes
			t.log("Notes updated", "", now)
		}
		if n.Status != nil && n.status != t.Status {
			t.log("Status changed", fmt.Sprintf("%s → %s", t.Status, n.status), now)
			t.Status = n.status
			if n.status == TaskStatusCompleted {
				completed := now
				t.CompletedAt = &completed
			} else {
				t.CompletedAt = nil
			}
		}
		if n.Progress != nil && n.progress != t.Progress {
			t.log("Progress updated", fmt.Sprintf("%s → %s", t.Progress, n.progress), now)
			t.Progress = n.progress
		}
		if n.Rounds != nil && *n.Rounds != t.Rounds {
			for round := t.Rounds + 1; round <= *n.Rounds; round++ {
				effects.RoundRecords = append(effects.RoundRecords, RoundRecord{
					ID:        uuid.NewString(),
					TenantID:  tenantID,
					TaskID:    t.ID,
					Round:     round,
					Timestamp: now,
				})
			}
			t.log("Rounds updated", fmt.Sprintf("%d → %d", t.Rounds, *n.Rounds), now)
			t.Rounds = *n.Rounds
		}
		goalChanged := false
		if n.Goal != nil && *n.Goal != t.Goal {
			t.Goal = *n.Goal
			goalChanged = true
		}
		if n.GoalType != nil && n.goalType != t.GoalType {
			t.GoalType = n.goalType
			goalChanged = true
		}
		if goalChanged {
			t.log("Goal updated", fmt.Sprintf("%d (%s)", t.Goal, t.GoalType), now)
		}
		if n.ProjectID != nil && projectID != t.ProjectID {
			details := "Unassigned"
			if projectID != "" {
				details = projectID
			}
			t.log("Assigned to project", details, now)
			t.ProjectID = projectID
			if reassignOrder != nil && n.order == nil {
				t.Order = *reassignOrder
			}
		}
		if n.order != nil {
			t.Order = *n.order
		}
		t.UpdatedAt = now
		return effects, nil
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrTaskNotFound
	}
	return updated, nil
}

// AddDetailedNote appends a checklist note.
func (s *Service) AddDetailedNote(ctx context.Context, tenantID, taskID, text string) (*Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("note text is required")
	}
	now := s.clock()
	return s.mutateTask(ctx, tenantID, taskID, func(t *Task) (TaskEffects, error) {
		t.DetailedNotes = append(t.DetailedNotes, Note{Text: text, Timestamp: now})
		t.log("Note added", text, now)
		t.UpdatedAt = now
		return TaskEffects{}, nil
	})
}

// StartTimer opens a time entry. Starting a running timer leaves the task unchanged.
func (s *Service) StartTimer(ctx context.Context, tenantID, taskID string) (*Task, error) {
	now := s.clock()
	return s.mutateTask(ctx, tenantID, taskID, func(t *Task) (TaskEffects, error) {
		if t.Running() {
			return TaskEffects{}, nil
		}
		t.TimeEntries = append(t.TimeEntries, TimeEntry{StartTime: now})
		t.log("Timer started", "", now)
		t.UpdatedAt = now
		return TaskEffects{}, nil
	})
}

// StopTimer closes the open time entry. Stopping an idle timer leaves the task unchanged.
func (s *Service) StopTimer(ctx context.Context, tenantID, taskID string) (*Task, error) {
	now := s.clock()
	return s.mutateTask(ctx, tenantID, taskID, func(t *Task) (TaskEffects, error) {
		idx := t.openEntry()
		if idx < 0 {
			return TaskEffects{}, nil
		}
		end := now
		entry := &t.TimeEntries[idx]
		entry.EndTime = &end
		entry.Duration = int64(end.Sub(entry.StartTime) / time.Second)
		if entry.Duration < 0 {
			entry.Duration = 0
		}
		t.log("Timer stopped", fmt.Sprintf("Tracked %d sec", entry.Duration), now)
		t.UpdatedAt = now
		return TaskEffects{}, nil
	})
}

// AttachMedia stores the upload and records it on the task.
func (s *Service) AttachMedia(ctx context.Context, tenantID, taskID string, upload MediaUpload) (*Task, error) {
	if s.media == nil {
		return nil, fmt.Errorf("media storage is not configured")
	}
	filename := filepath.Base(strings.TrimSpace(upload.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, validationError("filename is required")
	}
	if _, err := s.GetTask(ctx, tenantID, taskID); err != nil {
		return nil, err
	}

	stored, err := s.media.Save(ctx, tenantID, filename, upload.Body)
	if err != nil {
		return nil, fmt.Errorf("store media: %w", err)
	}

	now := s.clock()
	task, err := s.mutateTask(ctx, tenantID, taskID, func(t *Task) (TaskEffects, error) {
		t.Media = append(t.Media, Media{
			ID:          uuid.NewString(),
			Key:         stored.Key,
			Filename:    filename,
			ContentType: upload.ContentType,
			Size:        stored.Size,
			URL:         stored.URL,
			UploadedAt:  now,
		})
		t.log("Media attached", filename, now)
		t.UpdatedAt = now
		return TaskEffects{}, nil
	})
	if err != nil {
		_ = s.media.Remove(ctx, tenantID, stored.Key)
		return nil, err
	}
	return task, nil
}

// RemoveMedia detaches an attachment. The stored file is deleted best-effort once the
// record no longer references it.
func (s *Service) RemoveMedia(ctx context.Context, tenantID, taskID, mediaID string) (*Task, error) {
	now := s.clock()
	var removed Media
	task, err := s.mutateTask(ctx, tenantID, taskID, func(t *Task) (TaskEffects, error) {
		for i, m := range t.Media {
			if m.ID == mediaID {
				removed = m
				t.Media = append(t.Media[:i], t.Media[i+1:]...)
				t.log("Media removed", m.Filename, now)
				t.UpdatedAt = now
				return TaskEffects{}, nil
			}
		}
		return TaskEffects{}, ErrMediaNotFound
	})
	if err != nil {
		return nil, err
	}
	s.removeFiles(ctx, tenantID, removed)
	return task, nil
}

// ReorderTasks renumbers the tasks of one project to follow ids. An empty project
// reorders the unassigned tasks.
func (s *Service) ReorderTasks(ctx context.Context, tenantID, projectID string, ids []string) ([]Task, error) {
	filter := TaskFilter{ProjectID: projectID, Unassigned: projectID == ""}
	existing, err := s.repo.ListTasks(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	known := make([]string, 0, len(existing))
	for _, t := range existing {
		known = append(known, t.ID)
	}
	if err := s.reorder(ctx, tenantID, KindTask, known, ids); err != nil {
		return nil, err
	}
	return s.ListTasks(ctx, tenantID, filter)
}

// RoundRecords returns the rounds of a task, newest first.
func (s *Service) RoundRecords(ctx context.Context, tenantID, taskID string, cursor *Cursor, limit int) ([]RoundRecord, *Cursor, error) {
	if _, err := s.GetTask(ctx, tenantID, taskID); err != nil {
		return nil, nil, err
	}
	if limit < 0 {
		return nil, nil, validationError("limit must not be negative")
	}
	return s.repo.ListRoundRecords(ctx, tenantID, taskID, cursor, limit)
}

// GoalProgress counts the rounds recorded in the task's current goal period.
func (s *Service) GoalProgress(ctx context.Context, tenantID, taskID string) (*GoalProgress, error) {
	task, err := s.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	goalType := task.GoalType
	if goalType == "" {
		goalType = GoalDaily
	}
	start := goalType.PeriodStart(s.localNow())
	count, err := s.repo.CountRoundRecordsSince(ctx, tenantID, taskID, start.UTC())
	if err != nil {
		return nil, err
	}
	return &GoalProgress{
		TaskID:       task.ID,
		Goal:         task.Goal,
		GoalType:     goalType,
		PeriodStart:  start,
		PeriodRounds: count,
		TotalRounds:  task.Rounds,
		Met:          task.Goal > 0 && count >= task.Goal,
	}, nil
}

func (s *Service) mutateTask(ctx context.Context, tenantID, taskID string, mutate TaskMutator) (*Task, error) {
	updated, err := s.repo.UpdateTask(ctx, tenantID, taskID, mutate)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrTaskNotFound
	}
	return updated, nil
}
