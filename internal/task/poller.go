package task

import (
	"context"
	"time"

	"github.com/phrazzld/genwatch/internal/events"
	"github.com/phrazzld/genwatch/internal/generation"
)

// poll drives one task until it reaches a terminal state or its context is
// canceled. The first fetch happens one interval after registration.
func (r *Registry) poll(e *entry) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if done := r.pollOnce(e); done {
				return
			}
		}
	}
}

// pollOnce performs a single attempt and reports whether polling is over.
func (r *Registry) pollOnce(e *entry) bool {
	r.mu.Lock()
	if r.tasks[e.task.TaskID] != e {
		// Unregistered or replaced while we slept
		r.mu.Unlock()
		return true
	}
	e.task.AttemptCount++
	task := e.task
	r.mu.Unlock()

	logger := r.logger.With(
		"task_id", task.TaskID,
		"attempt", task.AttemptCount,
	)

	fetchCtx, cancel := context.WithTimeout(e.ctx, r.config.StatusTimeout)
	snapshot, err := r.client.FetchStatus(fetchCtx, task.TaskID, task.AuthToken)
	cancel()

	if e.ctx.Err() != nil {
		return true
	}

	now := r.now()
	var displayed int
	switch {
	case err != nil:
		r.metrics.PollFailed()
		logger.Warn("status poll failed, retrying next tick", "error", err)
		displayed = e.estimator.Tick(now)

	case snapshot.Phase == generation.PhaseSuccess && snapshot.HasUsableResult():
		r.report(e, e.estimator.Observe(snapshot, now))
		r.finish(e, OutcomeSucceeded, events.NewSuccess(
			task.TaskID,
			task.OwnerMessageID,
			snapshot.ResultURL,
			task.Character,
			snapshot.GenerationTimeSeconds,
		))
		return true

	case snapshot.Phase == generation.PhaseFailure:
		logger.Info("generation failed remotely", "error_text", snapshot.ErrorText)
		r.finish(e, OutcomeFailed, events.NewFailure(
			task.TaskID,
			task.OwnerMessageID,
			task.Character,
			events.ReasonRemoteFailure,
			snapshot.ErrorText,
		))
		return true

	case snapshot.Phase == generation.PhaseSuccess:
		logger.Debug("success status without usable result, continuing to poll",
			"error", generation.ErrMalformedSnapshot,
			"result_url", snapshot.ResultURL)
		displayed = e.estimator.Observe(snapshot, now)

	default:
		displayed = e.estimator.Observe(snapshot, now)
	}

	if !r.report(e, displayed) {
		return true
	}

	if task.AttemptCount >= r.config.MaxAttempts {
		logger.Warn("generation timed out", "max_attempts", r.config.MaxAttempts)
		r.finish(e, OutcomeTimedOut, events.NewFailure(
			task.TaskID,
			task.OwnerMessageID,
			task.Character,
			events.ReasonTimeout,
			ErrPollTimeout.Error(),
		))
		return true
	}
	return false
}

// report records the displayed progress if e is still tracked
func (r *Registry) report(e *entry, displayed int) bool {
	r.mu.Lock()
	if r.tasks[e.task.TaskID] != e {
		r.mu.Unlock()
		return false
	}
	e.displayed = displayed
	taskID := e.task.TaskID
	r.mu.Unlock()

	if r.onProgress != nil {
		r.onProgress(taskID, displayed)
	}
	return true
}

// finish removes e from the registry and publishes n. Only the caller that
// actually removes the entry publishes, so each task has one terminal event.
func (r *Registry) finish(e *entry, outcome string, n events.Notification) {
	r.mu.Lock()
	if r.tasks[e.task.TaskID] != e {
		r.mu.Unlock()
		return
	}
	delete(r.tasks, e.task.TaskID)
	r.finished.Add(e.task.TaskID, n)
	elapsed := r.now().Sub(e.task.StartedAt)
	r.mu.Unlock()

	e.cancel()
	r.forget(n.TaskID)
	r.metrics.TaskFinished(outcome)

	r.logger.Info("generation task finished",
		"task_id", n.TaskID,
		"outcome", outcome,
		"elapsed", elapsed)

	r.publisher.Publish(context.Background(), n)
}
