package ui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoalBar(t *testing.T) {
	require.Contains(t, GoalBar(1, 4, 8), "[##------] 1/4")
	require.Contains(t, GoalBar(6, 4, 4), "[####] 6/4")
	require.Contains(t, GoalBar(3, 0, 4), "3 rounds")
}

func TestSeconds(t *testing.T) {
	require.Equal(t, "1h2m3s", Seconds(3723))
	require.Equal(t, "0s", Seconds(0))
}
