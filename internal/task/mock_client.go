package task

import (
	"context"
	"sync"

	"github.com/phrazzld/genwatch/internal/generation"
)

// MockStatusClient implements StatusClient for testing
type MockStatusClient struct {
	mu    sync.Mutex
	calls map[string]int

	FetchStatusFn func(ctx context.Context, taskID, authToken string, attempt int) (generation.StatusSnapshot, error)
}

// NewMockStatusClient creates a client that answers with script, one entry
// per poll. Once the script is exhausted its last entry repeats.
func NewMockStatusClient(script ...generation.StatusSnapshot) *MockStatusClient {
	c := &MockStatusClient{calls: make(map[string]int)}
	c.FetchStatusFn = func(ctx context.Context, taskID, authToken string, attempt int) (generation.StatusSnapshot, error) {
		if len(script) == 0 {
			return generation.StatusSnapshot{Phase: generation.PhasePending}, nil
		}
		if attempt > len(script) {
			attempt = len(script)
		}
		return script[attempt-1], nil
	}
	return c
}

// FetchStatus records the call and delegates to FetchStatusFn
func (c *MockStatusClient) FetchStatus(
	ctx context.Context,
	taskID, authToken string,
) (generation.StatusSnapshot, error) {
	c.mu.Lock()
	c.calls[taskID]++
	attempt := c.calls[taskID]
	c.mu.Unlock()

	return c.FetchStatusFn(ctx, taskID, authToken, attempt)
}

// Calls returns how many times taskID was polled
func (c *MockStatusClient) Calls(taskID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[taskID]
}

var _ StatusClient = (*MockStatusClient)(nil)
