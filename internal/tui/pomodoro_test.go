package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"example.com/taskflow/internal/client"
	"example.com/taskflow/internal/pomodoro"
)

type fakeLogger struct {
	logged []string
	count  int
	err    error
}

func (f *fakeLogger) LogPomodoroSession(_ context.Context, taskID string) (client.PomodoroSession, error) {
	if f.err != nil {
		return client.PomodoroSession{}, f.err
	}
	f.logged = append(f.logged, taskID)
	f.count++
	return client.PomodoroSession{ID: "s1", TaskID: taskID}, nil
}

func (f *fakeLogger) PomodoroCount(_ context.Context, date string) (client.PomodoroCount, error) {
	return client.PomodoroCount{Date: date, SessionsCount: f.count}, nil
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m pomodoroModel, msg tea.Msg) (pomodoroModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(pomodoroModel)
	require.True(t, ok)
	return model, cmd
}

func TestWorkCompletionLogsSession(t *testing.T) {
	logger := &fakeLogger{}
	m, err := newPomodoroModel(context.Background(), logger, "task-1", 2*time.Second, time.Second)
	require.NoError(t, err)

	m, cmd := update(t, m, key(" "))
	require.True(t, m.timer.Running())
	require.NotNil(t, cmd)

	m, cmd = update(t, m, tickMsg{gen: m.gen})
	require.NotNil(t, cmd, "first tick schedules the next one")
	m, cmd = update(t, m, tickMsg{gen: m.gen})
	require.Equal(t, pomodoro.ModeBreak, m.timer.Mode())
	require.False(t, m.timer.Running())
	require.NotNil(t, cmd)

	msg := cmd()
	require.IsType(t, loggedMsg{}, msg)
	require.Equal(t, []string{"task-1"}, logger.logged)

	m, cmd = update(t, m, msg)
	require.Contains(t, m.lastLog, "Session logged")
	m, _ = update(t, m, cmd())
	require.Equal(t, 1, m.sessions)
	require.Contains(t, m.View(), "Sessions today")
}

func TestStaleTicksAreIgnored(t *testing.T) {
	m, err := newPomodoroModel(context.Background(), &fakeLogger{}, "", 0, 0)
	require.NoError(t, err)

	m, _ = update(t, m, key(" "))
	stale := m.gen
	m, _ = update(t, m, key(" "))
	require.False(t, m.timer.Running())
	m, _ = update(t, m, key(" "))
	require.NotEqual(t, stale, m.gen)

	m, cmd := update(t, m, tickMsg{gen: stale})
	require.Nil(t, cmd)
	require.Equal(t, pomodoro.DefaultWork, m.timer.Remaining())
}

func TestLogFailureIsReported(t *testing.T) {
	logger := &fakeLogger{err: errors.New("offline")}
	m, err := newPomodoroModel(context.Background(), logger, "", time.Second, time.Second)
	require.NoError(t, err)

	m, _ = update(t, m, key(" "))
	m, cmd := update(t, m, tickMsg{gen: m.gen})
	m, _ = update(t, m, cmd())
	require.Contains(t, m.lastLog, "offline")
}

func TestAdjustWorkLengthWhilePaused(t *testing.T) {
	m, err := newPomodoroModel(context.Background(), &fakeLogger{}, "", 0, 0)
	require.NoError(t, err)

	m, _ = update(t, m, key("+"))
	require.Equal(t, pomodoro.DefaultWork+time.Minute, m.timer.Remaining())

	m, _ = update(t, m, key(" "))
	m, _ = update(t, m, key("-"))
	require.Contains(t, m.lastLog, "Pause before")

	m, _ = update(t, m, key("r"))
	require.False(t, m.timer.Running())
	_, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
}
