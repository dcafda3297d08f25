package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrInvalidBusConfig is returned when the bus configuration is invalid
var ErrInvalidBusConfig = errors.New("invalid notification bus configuration")

// BusConfig holds configuration for the notification bus
type BusConfig struct {
	// PendingTTL is how long a buffered notification stays deliverable
	PendingTTL time.Duration

	// SettleDelay is the pause between a new subscription and the flush of
	// buffered notifications, so a just-mounted consumer can finish its setup
	SettleDelay time.Duration

	// DedupeSize bounds how many task ids are remembered for at-most-once delivery
	DedupeSize int
}

// DefaultBusConfig returns a BusConfig with reasonable defaults
func DefaultBusConfig() BusConfig {
	return BusConfig{
		PendingTTL:  30 * time.Second,
		SettleDelay: 100 * time.Millisecond,
		DedupeSize:  4096,
	}
}

// Metrics receives bus activity counts. Implementations must be safe for concurrent use.
type Metrics interface {
	NotificationDelivered(kind Kind)
	NotificationBuffered()
	NotificationExpired(count int)
	NotificationDuplicate()
}

type noopMetrics struct{}

func (noopMetrics) NotificationDelivered(Kind) {}
func (noopMetrics) NotificationBuffered()      {}
func (noopMetrics) NotificationExpired(int)    {}
func (noopMetrics) NotificationDuplicate()     {}

// BusOption customizes a Bus
type BusOption func(*Bus)

// WithClock overrides the time source used to age buffered notifications
func WithClock(now func() time.Time) BusOption {
	return func(b *Bus) {
		b.now = now
	}
}

// WithMetrics attaches a metrics sink
func WithMetrics(m Metrics) BusOption {
	return func(b *Bus) {
		b.metrics = m
	}
}

type subscription struct {
	id       uuid.UUID
	listener Listener
}

// Bus fans terminal notifications out to every current subscriber and buffers
// successes published while nobody is subscribed.
type Bus struct {
	mu      sync.Mutex
	subs    []subscription
	pending []PendingNotification
	timers  map[uuid.UUID]*time.Timer
	seen    *lru.Cache[string, struct{}]
	closed  bool
	config  BusConfig
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// NewBus creates a new notification bus
func NewBus(config BusConfig, logger *slog.Logger, opts ...BusOption) (*Bus, error) {
	if config.PendingTTL <= 0 {
		return nil, fmt.Errorf("%w: pending ttl must be positive", ErrInvalidBusConfig)
	}
	if config.SettleDelay < 0 {
		return nil, fmt.Errorf("%w: settle delay cannot be negative", ErrInvalidBusConfig)
	}

	seen, err := lru.New[string, struct{}](config.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBusConfig, err)
	}

	b := &Bus{
		timers:  make(map[uuid.UUID]*time.Timer),
		seen:    seen,
		config:  config,
		logger:  logger.With("component", "notification_bus"),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Subscribe registers a listener. After the settle delay, any buffered
// notifications still within their TTL are flushed to all current listeners.
func (b *Bus) Subscribe(listener Listener) func() {
	id := uuid.New()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, subscription{id: id, listener: listener})
	b.timers[id] = time.AfterFunc(b.config.SettleDelay, func() { b.flush(id) })
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("listener subscribed", "subscriber_id", id, "listener_count", count)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Bus) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("listener unsubscribed", "subscriber_id", id, "listener_count", count)
}

// Publish delivers n to every current listener, or buffers it when there are
// none. A task's outcome is published at most once; repeated calls for the
// same task id are dropped. Buffered notifications still within their TTL
// are delivered ahead of n.
func (b *Bus) Publish(ctx context.Context, n Notification) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.seen.Contains(n.TaskID) {
		b.mu.Unlock()
		b.metrics.NotificationDuplicate()
		b.logger.Warn("dropping duplicate terminal notification",
			"task_id", n.TaskID,
			"kind", n.Kind)
		return
	}
	b.seen.Add(n.TaskID, struct{}{})
	b.dispatchLocked(ctx, n)
}

// Replay re-sends an outcome that was already published, for a consumer that
// lost it and asked for the task again. It skips the duplicate check but
// otherwise delivers or buffers like Publish. A replay of an outcome that is
// still buffered is dropped since the buffered copy will be delivered.
func (b *Bus) Replay(ctx context.Context, n Notification) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.pendingLocked(n.TaskID) {
		b.mu.Unlock()
		b.logger.Debug("outcome already buffered, skipping replay", "task_id", n.TaskID)
		return
	}
	b.seen.Add(n.TaskID, struct{}{})
	b.logger.Info("replaying terminal notification",
		"task_id", n.TaskID,
		"kind", n.Kind)
	b.dispatchLocked(ctx, n)
}

// dispatchLocked is called with b.mu held and releases it. With listeners
// present, the fresh backlog goes out first so delivery keeps publish order.
func (b *Bus) dispatchLocked(ctx context.Context, n Notification) {
	listeners := b.listenersLocked()
	if len(listeners) == 0 {
		b.bufferLocked(n)
		b.mu.Unlock()
		return
	}
	backlog := b.freshLocked(b.now())
	b.pending = nil
	b.mu.Unlock()

	for _, p := range backlog {
		b.deliver(ctx, listeners, p.Notification)
	}
	b.deliver(ctx, listeners, n)
}

// pendingLocked reports whether taskID is buffered. Must be called with b.mu held.
func (b *Bus) pendingLocked(taskID string) bool {
	for _, p := range b.pending {
		if p.TaskID == taskID {
			return true
		}
	}
	return false
}

// bufferLocked must be called with b.mu held
func (b *Bus) bufferLocked(n Notification) {
	if n.Kind != KindSucceeded {
		b.logger.Warn("no listeners for failure notification, dropping",
			"task_id", n.TaskID,
			"reason", n.Reason)
		return
	}

	now := b.now()
	b.pending = b.freshLocked(now)
	b.pending = append(b.pending, PendingNotification{Notification: n, EnqueuedAt: now})
	b.metrics.NotificationBuffered()
	b.logger.Info("no listeners, buffering notification",
		"task_id", n.TaskID,
		"pending_count", len(b.pending),
		"ttl", b.config.PendingTTL)
}

// freshLocked drops buffered entries older than the TTL. Must be called with b.mu held.
func (b *Bus) freshLocked(now time.Time) []PendingNotification {
	fresh := b.pending[:0]
	expired := 0
	for _, p := range b.pending {
		if now.Sub(p.EnqueuedAt) > b.config.PendingTTL {
			expired++
			continue
		}
		fresh = append(fresh, p)
	}
	if expired > 0 {
		b.metrics.NotificationExpired(expired)
		b.logger.Debug("expired buffered notifications", "count", expired)
	}
	return fresh
}

func (b *Bus) flush(subscriberID uuid.UUID) {
	b.mu.Lock()
	delete(b.timers, subscriberID)
	if b.closed {
		b.mu.Unlock()
		return
	}
	fresh := b.freshLocked(b.now())
	listeners := b.listenersLocked()
	if len(listeners) == 0 {
		// Everyone left during the settle delay; keep entries for the next subscriber
		b.pending = fresh
		b.mu.Unlock()
		return
	}
	b.pending = nil
	b.mu.Unlock()

	if len(fresh) == 0 {
		return
	}

	b.logger.Info("flushing buffered notifications",
		"count", len(fresh),
		"listener_count", len(listeners))

	ctx := context.Background()
	for _, p := range fresh {
		b.deliver(ctx, listeners, p.Notification)
	}
}

// listenersLocked copies the current listeners. Must be called with b.mu held.
func (b *Bus) listenersLocked() []Listener {
	listeners := make([]Listener, len(b.subs))
	for i, s := range b.subs {
		listeners[i] = s.listener
	}
	return listeners
}

func (b *Bus) deliver(ctx context.Context, listeners []Listener, n Notification) {
	b.logger.Debug("delivering notification",
		"task_id", n.TaskID,
		"kind", n.Kind,
		"listener_count", len(listeners))

	for i, l := range listeners {
		if err := b.invoke(ctx, l, n); err != nil {
			b.logger.Error("listener failed to handle notification",
				"error", err,
				"listener_index", i,
				"task_id", n.TaskID)
		}
	}
	b.metrics.NotificationDelivered(n.Kind)
}

func (b *Bus) invoke(ctx context.Context, l Listener, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.HandleNotification(ctx, n)
}

// PendingCount returns the number of buffered notifications, expired ones included
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// ListenerCount returns the number of current subscribers
func (b *Bus) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops pending flushes and drops all listeners and buffered notifications.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.subs = nil
	b.pending = nil
	b.logger.Info("notification bus closed")
}

var (
	_ Publisher  = (*Bus)(nil)
	_ Subscriber = (*Bus)(nil)
)
