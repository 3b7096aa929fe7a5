package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	recentActivityLimit = 10
	maxTrendBuckets     = 366
)

// Granularity selects the default stats window and the trend bucket size.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// Alerts are the counters behind the contextual banner.
type Alerts struct {
	TasksCompletedToday   int
	TotalTasks            int
	TasksWithGoals        int
	GoalsCompleted        int
	PomodoroSessionsToday int
}

// StatsQuery selects the stats window. Start and End are inclusive YYYY-MM-DD days.
type StatsQuery struct {
	Granularity string
	Start       string
	End         string
}

// TrendPoint is the number of completions in one bucket.
type TrendPoint struct {
	Period    string
	Completed int
}

// RecentActivity is an activity log entry with its task.
type RecentActivity struct {
	TaskID    string
	TaskTitle string
	Action    string
	Details   string
	Timestamp time.Time
}

// Stats summarises productivity over a window.
type Stats struct {
	Granularity       Granularity
	Start             string
	End               string
	TotalTasks        int
	CompletedTasks    int
	PendingTasks      int
	TotalTimeWorked   int64
	PomodoroSessions  int
	ProductivityTrend []TrendPoint
	RecentActivity    []RecentActivity
}

// Alerts computes today's counters.
func (s *Service) Alerts(ctx context.Context, tenantID string) (*Alerts, error) {
	tasks, err := s.repo.ListTasks(ctx, tenantID, TaskFilter{})
	if err != nil {
		return nil, err
	}
	local := s.localNow()
	todayStart := GoalDaily.PeriodStart(local)
	todayEnd := todayStart.AddDate(0, 0, 1)

	alerts := &Alerts{TotalTasks: len(tasks)}
	for _, t := range tasks {
		if t.CompletedAt != nil && !t.CompletedAt.Before(todayStart) && t.CompletedAt.Before(todayEnd) {
			alerts.TasksCompletedToday++
		}
		if t.Goal > 0 {
			alerts.TasksWithGoals++
			if t.GoalMet() {
				alerts.GoalsCompleted++
			}
		}
	}

	day := local.Format(DayLayout)
	sessions, err := s.repo.CountPomodoroSessions(ctx, tenantID, day, day)
	if err != nil {
		return nil, err
	}
	alerts.PomodoroSessionsToday = sessions
	return alerts, nil
}

func parseGranularity(input string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(input))); g {
	case "":
		return GranularityDaily, nil
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return g, nil
	}
	return "", validationError(fmt.Sprintf("invalid granularity %q", input))
}

// statsWindow resolves the half-open window [from, to) in the service location.
func (s *Service) statsWindow(g Granularity, startDay, endDay string) (time.Time, time.Time, error) {
	today := GoalDaily.PeriodStart(s.localNow())
	from, to := today, today.AddDate(0, 0, 1)
	switch g {
	case GranularityWeekly:
		from = today.AddDate(0, 0, -6)
	case GranularityMonthly:
		from = GoalMonthly.PeriodStart(today).AddDate(0, -11, 0)
	}

	if startDay != "" {
		parsed, err := time.ParseInLocation(DayLayout, startDay, s.loc)
		if err != nil {
			return from, to, validationError(fmt.Sprintf("invalid startDate %q", startDay))
		}
		from = parsed
	}
	if endDay != "" {
		parsed, err := time.ParseInLocation(DayLayout, endDay, s.loc)
		if err != nil {
			return from, to, validationError(fmt.Sprintf("invalid endDate %q", endDay))
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return from, to, validationError("endDate must not be before startDate")
	}
	return from, to, nil
}

func bucketKey(g Granularity, t time.Time) string {
	if g == GranularityMonthly {
		return t.Format("2006-01")
	}
	return t.Format(DayLayout)
}

func trendBuckets(g Granularity, from, to time.Time) []TrendPoint {
	var points []TrendPoint
	cursor := from
	if g == GranularityMonthly {
		cursor = GoalMonthly.PeriodStart(from)
	}
	for cursor.Before(to) && len(points) < maxTrendBuckets {
		points = append(points, TrendPoint{Period: bucketKey(g, cursor)})
		if g == GranularityMonthly {
			cursor = cursor.AddDate(0, 1, 0)
		} else {
			cursor = cursor.AddDate(0, 0, 1)
		}
	}
	return points
}

// Stats computes dashboard totals for the requested window.
func (s *Service) Stats(ctx context.Context, tenantID string, query StatsQuery) (*Stats, error) {
	g, err := parseGranularity(query.Granularity)
	if err != nil {
		return nil, err
	}
	from, to, err := s.statsWindow(g, strings.TrimSpace(query.Start), strings.TrimSpace(query.End))
	if err != nil {
		return nil, err
	}

	tasks, err := s.repo.ListTasks(ctx, tenantID, TaskFilter{})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Granularity:       g,
		Start:             from.Format(DayLayout),
		End:               to.AddDate(0, 0, -1).Format(DayLayout),
		TotalTasks:        len(tasks),
		ProductivityTrend: trendBuckets(g, from, to),
	}
	index := make(map[string]int, len(stats.ProductivityTrend))
	for i, p := range stats.ProductivityTrend {
		index[p.Period] = i
	}

	now := s.clock()
	var worked time.Duration
	var recent []RecentActivity
	for _, t := range tasks {
		if t.Status == TaskStatusCompleted {
			stats.CompletedTasks++
		}
		if t.CompletedAt != nil && !t.CompletedAt.Before(from) && t.CompletedAt.Before(to) {
			if i, ok := index[bucketKey(g, t.CompletedAt.In(s.loc))]; ok {
				stats.ProductivityTrend[i].Completed++
			}
		}
		worked += t.TrackedBetween(from, to, now)
		for _, entry := range t.ActivityLogs {
			if entry.Timestamp.Before(from) || !entry.Timestamp.Before(to) {
				continue
			}
			recent = append(recent, RecentActivity{
				TaskID:    t.ID,
				TaskTitle: t.Title,
				Action:    entry.Action,
				Details:   entry.Details,
				Timestamp: entry.Timestamp,
			})
		}
	}
	stats.PendingTasks = stats.TotalTasks - stats.CompletedTasks
	stats.TotalTimeWorked = int64(worked / time.Second)

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if len(recent) > recentActivityLimit {
		recent = recent[:recentActivityLimit]
	}
	stats.RecentActivity = recent

	sessions, err := s.repo.CountPomodoroSessions(ctx, tenantID, stats.Start, stats.End)
	if err != nil {
		return nil, err
	}
	stats.PomodoroSessions = sessions
	return stats, nil
}
