// Package redisstore persists tracked generation tasks in Redis so the task
// registry can recover them after a restart. Tasks are stored as JSON values
// in a single hash keyed by task id.
package redisstore
