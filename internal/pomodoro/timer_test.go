package pomodoro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkIntervalCompletes(t *testing.T) {
	timer := New()
	require.Equal(t, ModeWork, timer.Mode())
	require.Equal(t, DefaultWork, timer.Remaining())

	require.Equal(t, EventNone, timer.Tick(time.Minute), "stopped timers ignore ticks")
	require.Equal(t, DefaultWork, timer.Remaining())

	timer.Start()
	require.Equal(t, EventNone, timer.Tick(24*time.Minute))
	require.Equal(t, "01:00", Format(timer.Remaining()))

	require.Equal(t, EventWorkCompleted, timer.Tick(time.Minute))
	require.Equal(t, ModeBreak, timer.Mode())
	require.Equal(t, DefaultBreak, timer.Remaining())
	require.False(t, timer.Running())

	timer.Start()
	require.Equal(t, EventBreakCompleted, timer.Tick(10*time.Minute))
	require.Equal(t, ModeWork, timer.Mode())
	require.Equal(t, DefaultWork, timer.Remaining())
	require.False(t, timer.Running())
}

func TestPauseResetAndDurations(t *testing.T) {
	timer := New()
	timer.Start()
	timer.Tick(90 * time.Second)
	timer.Pause()
	require.Equal(t, EventNone, timer.Tick(time.Hour))
	require.Equal(t, "23:30", Format(timer.Remaining()))

	timer.Reset()
	require.Equal(t, DefaultWork, timer.Remaining())

	require.Error(t, timer.SetDurations(0, time.Minute))
	require.NoError(t, timer.SetDurations(50*time.Minute, 10*time.Minute))
	require.Equal(t, 50*time.Minute, timer.Remaining())

	timer.Start()
	timer.Tick(time.Minute)
	require.NoError(t, timer.SetDurations(30*time.Minute, 10*time.Minute))
	require.Equal(t, 49*time.Minute, timer.Remaining(), "running timers keep their countdown")
}

func TestFormat(t *testing.T) {
	require.Equal(t, "25:00", Format(25*time.Minute))
	require.Equal(t, "00:01", Format(100*time.Millisecond))
	require.Equal(t, "00:00", Format(-time.Second))
	require.Equal(t, "90:00", Format(90*time.Minute))
}
