package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DayLayout is the format used for calendar days.
const DayLayout = "2006-01-02"

// PomodoroSession is one completed work interval.
type PomodoroSession struct {
	ID          string
	TenantID    string
	TaskID      string
	Day         string
	CompletedAt time.Time
}

// PomodoroCount is the number of sessions logged on a day.
type PomodoroCount struct {
	Date          string
	SessionsCount int
}

// LogPomodoroSession records a completed work interval for today.
func (s *Service) LogPomodoroSession(ctx context.Context, tenantID, taskID string) (*PomodoroSession, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID != "" {
		if _, err := s.GetTask(ctx, tenantID, taskID); err != nil {
			return nil, err
		}
	}
	now := s.now()
	session := PomodoroSession{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		TaskID:      taskID,
		Day:         now.In(s.loc).Format(DayLayout),
		CompletedAt: now.UTC(),
	}
	if err := s.repo.CreatePomodoroSession(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CountPomodoroSessions counts the sessions of day (YYYY-MM-DD). An empty day means today.
func (s *Service) CountPomodoroSessions(ctx context.Context, tenantID, day string) (*PomodoroCount, error) {
	day = strings.TrimSpace(day)
	if day == "" {
		day = s.localNow().Format(DayLayout)
	}
	if _, err := time.Parse(DayLayout, day); err != nil {
		return nil, validationError(fmt.Sprintf("invalid date %q, want YYYY-MM-DD", day))
	}
	count, err := s.repo.CountPomodoroSessions(ctx, tenantID, day, day)
	if err != nil {
		return nil, err
	}
	return &PomodoroCount{Date: day, SessionsCount: count}, nil
}
