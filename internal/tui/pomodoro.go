package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"example.com/taskflow/internal/client"
	"example.com/taskflow/internal/pomodoro"
	"example.com/taskflow/internal/ui"
)

// SessionLogger records finished work intervals. *client.Client satisfies it.
type SessionLogger interface {
	LogPomodoroSession(ctx context.Context, taskID string) (client.PomodoroSession, error)
	PomodoroCount(ctx context.Context, date string) (client.PomodoroCount, error)
}

const tickInterval = time.Second

type pomodoroModel struct {
	ctx    context.Context
	log    SessionLogger
	taskID string
	timer  *pomodoro.Timer

	// gen invalidates tick loops left over from an earlier start.
	gen int

	sessions int
	lastLog  string
	width    int
}

type tickMsg struct{ gen int }

type countMsg struct {
	count int
	err   error
}

type loggedMsg struct {
	err error
}

func newPomodoroModel(ctx context.Context, log SessionLogger, taskID string, work, brk time.Duration) (pomodoroModel, error) {
	timer := pomodoro.New()
	if work > 0 || brk > 0 {
		w, b := timer.Durations()
		if work > 0 {
			w = work
		}
		if brk > 0 {
			b = brk
		}
		if err := timer.SetDurations(w, b); err != nil {
			return pomodoroModel{}, err
		}
	}
	return pomodoroModel{
		ctx:     ctx,
		log:     log,
		taskID:  taskID,
		timer:   timer,
		lastLog: "Press space to start.",
	}, nil
}

func (m pomodoroModel) Init() tea.Cmd {
	return m.countCmd()
}

func (m pomodoroModel) countCmd() tea.Cmd {
	return func() tea.Msg {
		c, err := m.log.PomodoroCount(m.ctx, "")
		return countMsg{count: c.SessionsCount, err: err}
	}
}

func (m pomodoroModel) logCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := m.log.LogPomodoroSession(m.ctx, m.taskID)
		return loggedMsg{err: err}
	}
}

func tickCmd(gen int) tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return tickMsg{gen: gen} })
}

func (m pomodoroModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case countMsg:
		if msg.err != nil {
			m.lastLog = "Count failed: " + msg.err.Error()
			return m, nil
		}
		m.sessions = msg.count
		return m, nil
	case loggedMsg:
		if msg.err != nil {
			m.lastLog = "Logging session failed: " + msg.err.Error()
			return m, nil
		}
		m.lastLog = "Session logged. Take a break."
		return m, m.countCmd()
	case tickMsg:
		if msg.gen != m.gen || !m.timer.Running() {
			return m, nil
		}
		switch m.timer.Tick(tickInterval) {
		case pomodoro.EventWorkCompleted:
			m.lastLog = "Work interval done. Logging…"
			return m, m.logCmd()
		case pomodoro.EventBreakCompleted:
			m.lastLog = "Break over. Press space for the next round."
			return m, nil
		}
		return m, tickCmd(m.gen)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "s":
			if m.timer.Running() {
				m.timer.Pause()
				m.lastLog = "Paused."
				return m, nil
			}
			m.timer.Start()
			m.gen++
			m.lastLog = "Running."
			return m, tickCmd(m.gen)
		case "r":
			m.timer.Reset()
			m.lastLog = "Reset."
			return m, nil
		case "+", "-":
			if m.timer.Running() {
				m.lastLog = "Pause before changing durations."
				return m, nil
			}
			work, brk := m.timer.Durations()
			if msg.String() == "+" {
				work += time.Minute
			} else if work > time.Minute {
				work -= time.Minute
			}
			_ = m.timer.SetDurations(work, brk)
			m.lastLog = fmt.Sprintf("Work length %s.", pomodoro.Format(work))
			return m, nil
		}
	}
	return m, nil
}

func (m pomodoroModel) View() string {
	var b strings.Builder

	b.WriteString(ui.Heading(ui.IconTomato, "Pomodoro"))
	b.WriteString("\n\n")

	mode := ui.H2.Render("Work")
	if m.timer.Mode() == pomodoro.ModeBreak {
		mode = ui.Good.Render("Break")
	}
	state := ui.Muted.Render("paused")
	if m.timer.Running() {
		state = ui.Warn.Render("running")
	}
	b.WriteString(mode + "  " + state + "\n")
	b.WriteString(ui.Panel.Render(ui.Clock.Render(pomodoro.Format(m.timer.Remaining()))))
	b.WriteString("\n\n")

	work, brk := m.timer.Durations()
	b.WriteString(ui.LabelValue("Work", pomodoro.Format(work)) + "  " + ui.LabelValue("Break", pomodoro.Format(brk)) + "\n")
	b.WriteString(ui.LabelValue("Sessions today", m.sessions) + "\n")
	if m.taskID != "" {
		b.WriteString(ui.LabelValue("Task", m.taskID) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(ui.Muted.Render("space start/pause · r reset · +/- work length · q quit"))
	b.WriteString("\n")
	b.WriteString(ui.Muted.Render(m.lastLog))
	b.WriteString("\n")
	return b.String()
}

// RunPomodoro runs the interactive timer until the user quits. Finished work intervals
// are logged against taskID, which may be empty.
func RunPomodoro(ctx context.Context, log SessionLogger, taskID string, work, brk time.Duration, out io.Writer) error {
	m, err := newPomodoroModel(ctx, log, taskID, work, brk)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithOutput(out), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
