package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/phrazzld/genwatch/internal/events"
)

// Conversation is a mounted chat view: a message list kept current by
// notifications from the bus. It is safe for concurrent use.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
	logger   *slog.Logger
}

// NewConversation creates an empty conversation
func NewConversation(logger *slog.Logger) *Conversation {
	return &Conversation{
		logger: logger.With("component", "conversation"),
	}
}

// Mount subscribes the conversation to sub and returns the unmount function.
func (c *Conversation) Mount(sub events.Subscriber) (unmount func()) {
	return sub.Subscribe(c)
}

// Add reconciles an optimistic or streamed message into the conversation
func (c *Conversation) Add(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = Reconcile(c.messages, m)
}

// Remove drops a message by ID
func (c *Conversation) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = Remove(c.messages, id)
}

// LoadHistory replaces the conversation with a history page, keeping the
// in-flight messages that are not part of it.
func (c *Conversation) LoadHistory(history []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = MergeHistory(history, c.messages)
}

// Messages returns a copy of the current list
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// HandleNotification implements events.Listener
func (c *Conversation) HandleNotification(ctx context.Context, n events.Notification) error {
	c.mu.Lock()
	c.messages = ApplyNotification(c.messages, n)
	count := len(c.messages)
	c.mu.Unlock()

	c.logger.Debug("applied generation outcome",
		"task_id", n.TaskID,
		"owner_message_id", n.OwnerMessageID,
		"kind", n.Kind,
		"message_count", count)
	return nil
}

var _ events.Listener = (*Conversation)(nil)
