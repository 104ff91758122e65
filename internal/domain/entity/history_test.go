package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestScoreHistoryWindow(t *testing.T) {
	var h ScoreHistory
	for i := 0; i < 10; i++ {
		h = h.Append(float64(i)/10, day(i))
	}

	require.Len(t, h, MaxHistoryEntries)
	// Oldest entries fall off the front; order is preserved.
	assert.Equal(t, []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}, h.Scores())
}

func TestScoreHistoryKeepsDuplicates(t *testing.T) {
	var h ScoreHistory
	h = h.Append(0.5, day(0))
	h = h.Append(0.5, day(1))
	h = h.Append(0.5, day(2))

	assert.Len(t, h, 3)
}

func TestLastDrop(t *testing.T) {
	var h ScoreHistory

	_, ok := h.LastDrop()
	assert.False(t, ok)

	h = h.Append(0.9, day(0))
	_, ok = h.LastDrop()
	assert.False(t, ok)

	h = h.Append(0.3, day(1))
	drop, ok := h.LastDrop()
	require.True(t, ok)
	assert.InDelta(t, 0.6, drop, 1e-9)

	// A rising score yields a negative drop.
	h = h.Append(0.8, day(2))
	drop, ok = h.LastDrop()
	require.True(t, ok)
	assert.InDelta(t, -0.5, drop, 1e-9)
}

func TestCountBelow(t *testing.T) {
	var h ScoreHistory
	for i, s := range []float64{0.1, 0.19, 0.2, 0.5, 0.15} {
		h = h.Append(s, day(i))
	}
	// Strictly below: the reading exactly at the threshold does not count.
	assert.Equal(t, 3, h.CountBelow(0.2))
}
