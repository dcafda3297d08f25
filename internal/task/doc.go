// Package task tracks in-flight remote generation jobs.
// It provides the Registry, which owns the authoritative set of tracked tasks,
// and the per-task poller that drives status polls until a terminal outcome is
// published on the notification bus. Tracked tasks can be persisted through a
// TaskStore so polling resumes after an application restart.
package task
