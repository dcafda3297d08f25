// Package api handles incoming HTTP requests for task tracking, notification
// streaming and generation submission. It translates HTTP concerns to calls on
// the task registry, the notification bus and the generation client.
package api
