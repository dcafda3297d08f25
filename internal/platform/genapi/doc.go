// Package genapi implements the HTTP client for the remote image generation
// worker. It fetches job status for the task poller and submits new generation
// requests on behalf of the submission proxy.
package genapi
