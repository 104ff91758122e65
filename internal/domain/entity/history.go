package entity

import "time"

// MaxHistoryEntries bounds the score history window. Seven entries cover a
// week of daily passes, which is what the trend reports render.
const MaxHistoryEntries = 7

type ScoreEntry struct {
	Timestamp time.Time `yaml:"timestamp"`
	Score     float64   `yaml:"score"`
}

// ScoreHistory is a strict FIFO window: Append never reorders and never
// deduplicates, so repeated runs with an unchanged score still produce
// distinct entries.
type ScoreHistory []ScoreEntry

// Append returns the history with the new entry added, dropping the oldest
// entries once the window exceeds MaxHistoryEntries.
func (h ScoreHistory) Append(score float64, now time.Time) ScoreHistory {
	h = append(h, ScoreEntry{Timestamp: now, Score: score})
	if len(h) > MaxHistoryEntries {
		h = h[len(h)-MaxHistoryEntries:]
	}
	return h
}

// Scores projects the window to its raw values, oldest first.
func (h ScoreHistory) Scores() []float64 {
	out := make([]float64, len(h))
	for i, e := range h {
		out[i] = e.Score
	}
	return out
}

// Last returns the most recent score, or ok=false for an empty window.
func (h ScoreHistory) Last() (float64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[len(h)-1].Score, true
}

// Previous returns the second most recent score, or ok=false when fewer
// than two readings exist.
func (h ScoreHistory) Previous() (float64, bool) {
	if len(h) < 2 {
		return 0, false
	}
	return h[len(h)-2].Score, true
}

// LastDrop returns the delta between the two most recent readings
// (positive means the score fell). ok=false when fewer than two readings
// exist.
func (h ScoreHistory) LastDrop() (float64, bool) {
	prev, ok := h.Previous()
	if !ok {
		return 0, false
	}
	last, _ := h.Last()
	return prev - last, true
}

// CountBelow counts readings strictly below the threshold across the
// window.
func (h ScoreHistory) CountBelow(threshold float64) int {
	n := 0
	for _, e := range h {
		if e.Score < threshold {
			n++
		}
	}
	return n
}
