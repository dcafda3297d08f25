// Package progress converts status snapshots into the progress percentage
// shown to the user while a generation is in flight.
package progress

import (
	"math"
	"time"

	"github.com/phrazzld/genwatch/internal/generation"
)

// Displayed progress bounds. Complete is reserved for a confirmed success.
const (
	Complete      = 100
	MaxInFlight   = 99
	DefaultWindow = 8 * time.Second
)

// Estimator tracks the displayed progress of a single task.
// The sequence of values it returns never decreases, and it only reaches
// Complete after a success snapshot. It is not safe for concurrent use;
// each task's poller owns its estimator.
type Estimator struct {
	startedAt time.Time
	window    time.Duration
	last      int
}

// NewEstimator creates an estimator for a task started at startedAt.
// window bounds how long synthetic, time-based progress is shown before the
// worker reports real progress. A non-positive window uses DefaultWindow.
func NewEstimator(startedAt time.Time, window time.Duration) *Estimator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Estimator{
		startedAt: startedAt,
		window:    window,
	}
}

// Observe folds a snapshot taken at now into the displayed progress and returns it.
func (e *Estimator) Observe(snapshot generation.StatusSnapshot, now time.Time) int {
	if snapshot.Phase == generation.PhaseSuccess && snapshot.HasUsableResult() {
		e.last = Complete
		return e.last
	}
	if snapshot.RawProgress != nil {
		e.raise(clamp(*snapshot.RawProgress))
		return e.last
	}
	return e.Tick(now)
}

// Tick advances synthetic progress for a poll that produced no progress value,
// for example a failed fetch.
func (e *Estimator) Tick(now time.Time) int {
	elapsed := now.Sub(e.startedAt)
	if elapsed < 0 || elapsed >= e.window {
		return e.last
	}
	ratio := float64(elapsed) * 100 / float64(e.window)
	e.raise(clamp(ratio))
	return e.last
}

// Current returns the last displayed value
func (e *Estimator) Current() int {
	return e.last
}

func (e *Estimator) raise(v int) {
	if v > e.last {
		e.last = v
	}
}

func clamp(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= MaxInFlight {
		return MaxInFlight
	}
	return int(math.Floor(v))
}
