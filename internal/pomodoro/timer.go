// Package pomodoro implements the work/break countdown used by the terminal timer.
package pomodoro

import (
	"errors"
	"fmt"
	"time"
)

// Mode is the interval being counted down.
type Mode string

const (
	ModeWork  Mode = "work"
	ModeBreak Mode = "break"
)

// Default interval lengths.
const (
	DefaultWork  = 25 * time.Minute
	DefaultBreak = 5 * time.Minute
)

// Event reports what a Tick finished.
type Event int

const (
	EventNone Event = iota
	// EventWorkCompleted fires once per finished work interval. Callers log a session.
	EventWorkCompleted
	EventBreakCompleted
)

// Timer is a countdown that alternates between work and break. It is driven by Tick and
// is not safe for concurrent use.
type Timer struct {
	work      time.Duration
	brk       time.Duration
	mode      Mode
	remaining time.Duration
	running   bool
}

// New returns a stopped timer in work mode with the default durations.
func New() *Timer {
	return &Timer{work: DefaultWork, brk: DefaultBreak, mode: ModeWork, remaining: DefaultWork}
}

func (t *Timer) Mode() Mode               { return t.mode }
func (t *Timer) Remaining() time.Duration { return t.remaining }
func (t *Timer) Running() bool            { return t.running }

// Durations returns the configured work and break lengths.
func (t *Timer) Durations() (work, brk time.Duration) {
	return t.work, t.brk
}

func (t *Timer) Start() { t.running = true }
func (t *Timer) Pause() { t.running = false }

// Reset stops the timer and refills the current mode.
func (t *Timer) Reset() {
	t.running = false
	t.remaining = t.current()
}

// SetDurations changes the interval lengths. A stopped timer is refilled right away; a
// running one picks them up at the next mode switch.
func (t *Timer) SetDurations(work, brk time.Duration) error {
	if work <= 0 || brk <= 0 {
		return errors.New("durations must be positive")
	}
	t.work, t.brk = work, brk
	if !t.running {
		t.remaining = t.current()
	}
	return nil
}

// Tick advances a running timer by elapsed. Reaching zero switches mode and stops.
func (t *Timer) Tick(elapsed time.Duration) Event {
	if !t.running || elapsed <= 0 {
		return EventNone
	}
	t.remaining -= elapsed
	if t.remaining > 0 {
		return EventNone
	}

	t.running = false
	if t.mode == ModeWork {
		t.mode = ModeBreak
		t.remaining = t.brk
		return EventWorkCompleted
	}
	t.mode = ModeWork
	t.remaining = t.work
	return EventBreakCompleted
}

func (t *Timer) current() time.Duration {
	if t.mode == ModeBreak {
		return t.brk
	}
	return t.work
}

// Format renders d as MM:SS, rounding partial seconds up.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
