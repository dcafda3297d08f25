package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/phrazzld/genwatch/internal/events"
	"github.com/phrazzld/genwatch/internal/progress"
)

const (
	// storeTimeout bounds TaskStore calls made outside a request context
	storeTimeout = 5 * time.Second

	defaultFinishedCapacity = 4096
)

// Config holds configuration for the task registry
type Config struct {
	// PollInterval is the fixed delay between status polls of one task
	PollInterval time.Duration

	// MaxAttempts is the number of polls after which a task times out
	MaxAttempts int

	// SyntheticWindow bounds how long time-based progress is shown
	SyntheticWindow time.Duration

	// StatusTimeout bounds a single status fetch
	StatusTimeout time.Duration

	// FinishedCapacity bounds how many finished outcomes are kept for replay
	FinishedCapacity int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		PollInterval:    2 * time.Second,
		MaxAttempts:     120,
		SyntheticWindow: progress.DefaultWindow,
		StatusTimeout:   10 * time.Second,

		FinishedCapacity: defaultFinishedCapacity,
	}
}

// MaxLifetime is the longest a task can be polled before timing out
func (c Config) MaxLifetime() time.Duration {
	return c.PollInterval * time.Duration(c.MaxAttempts)
}

// ProgressFunc is called after every poll with the task's displayed progress
type ProgressFunc func(taskID string, displayed int)

// Option customizes a Registry
type Option func(*Registry)

// WithStore persists tracked tasks for recovery
func WithStore(store TaskStore) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithMetrics attaches a metrics sink
func WithMetrics(m Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock overrides the time source used for progress and recovery
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithProgressListener registers a callback for displayed progress updates.
// It runs on the poller goroutine and must not block.
func WithProgressListener(fn ProgressFunc) Option {
	return func(r *Registry) {
		r.onProgress = fn
	}
}

// entry is the registry's record of one tracked task. task and displayed are
// guarded by Registry.mu; estimator is owned by the entry's poller.
type entry struct {
	task      Task
	displayed int
	estimator *progress.Estimator
	ctx       context.Context
	cancel    context.CancelFunc
}

// Registry is the authoritative set of in-flight generation tasks.
// Each registered task has exactly one poller goroutine, started on
// registration and stopped on unregistration or a terminal outcome.
type Registry struct {
	mu      sync.Mutex
	tasks   map[string]*entry
	stopped bool

	// finished holds the outcome of recently finished tasks by task id
	finished *lru.Cache[string, events.Notification]

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	client     StatusClient
	publisher  events.Publisher
	store      TaskStore
	config     Config
	logger     *slog.Logger
	metrics    Metrics
	now        func() time.Time
	onProgress ProgressFunc
}

// NewRegistry creates a registry that polls through client and publishes
// terminal outcomes to publisher.
func NewRegistry(
	config Config,
	client StatusClient,
	publisher events.Publisher,
	logger *slog.Logger,
	opts ...Option,
) (*Registry, error) {
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if config.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w: max attempts must be positive", ErrInvalidConfig)
	}
	if client == nil || publisher == nil {
		return nil, fmt.Errorf("%w: status client and publisher are required", ErrInvalidConfig)
	}
	if config.StatusTimeout <= 0 {
		config.StatusTimeout = config.PollInterval
	}
	if config.FinishedCapacity <= 0 {
		config.FinishedCapacity = defaultFinishedCapacity
	}
	finished, err := lru.New[string, events.Notification](config.FinishedCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		tasks:      make(map[string]*entry),
		finished:   finished,
		ctx:        ctx,
		cancelFunc: cancel,
		client:     client,
		publisher:  publisher,
		config:     config,
		logger:     logger.With("component", "task_registry"),
		metrics:    noopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register starts tracking a task and its poller. Registering a task id that
// is already tracked is a no-op and returns false. Registering a task that
// already finished starts no poller: its outcome is replayed to subscribers
// and ErrTaskFinished is returned.
func (r *Registry) Register(ctx context.Context, reg Registration) (bool, error) {
	if err := reg.Validate(); err != nil {
		return false, err
	}

	startedAt := reg.StartedAt
	if startedAt.IsZero() {
		startedAt = r.now()
	}

	return r.track(ctx, Task{
		TaskID:         reg.TaskID,
		OwnerMessageID: reg.OwnerMessageID,
		Character:      reg.Character,
		StartedAt:      startedAt,
		AuthToken:      reg.AuthToken,
	})
}

func (r *Registry) track(ctx context.Context, task Task) (bool, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false, ErrRegistryStopped
	}
	if _, exists := r.tasks[task.TaskID]; exists {
		r.mu.Unlock()
		r.logger.Debug("task already tracked", "task_id", task.TaskID)
		return false, nil
	}
	if n, done := r.finished.Get(task.TaskID); done {
		r.mu.Unlock()
		r.logger.Info("task already finished, replaying outcome",
			"task_id", task.TaskID,
			"kind", n.Kind)
		r.publisher.Replay(context.WithoutCancel(ctx), n)
		return false, ErrTaskFinished
	}

	pollCtx, cancel := context.WithCancel(r.ctx)
	e := &entry{
		task:      task,
		estimator: progress.NewEstimator(task.StartedAt, r.config.SyntheticWindow),
		ctx:       pollCtx,
		cancel:    cancel,
	}
	r.tasks[task.TaskID] = e
	r.wg.Add(1)
	r.mu.Unlock()

	r.persist(ctx, task)
	r.metrics.TaskRegistered()
	r.logger.Info("tracking generation task",
		"task_id", task.TaskID,
		"owner_message_id", task.OwnerMessageID,
		"attempt_count", task.AttemptCount)

	go r.poll(e)
	return true, nil
}

// Unregister stops tracking a task without publishing an outcome.
// It returns false if the task was not tracked.
func (r *Registry) Unregister(taskID string) bool {
	r.mu.Lock()
	e, ok := r.tasks[taskID]
	if ok {
		delete(r.tasks, taskID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	e.cancel()
	r.forget(taskID)
	r.metrics.TaskFinished(OutcomeUnregistered)
	r.logger.Info("stopped tracking generation task", "task_id", taskID)
	return true
}

// Get returns a copy of a tracked task
func (r *Registry) Get(taskID string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return e.task, true
}

// List returns copies of all tracked tasks ordered by start time
func (r *Registry) List() []Task {
	r.mu.Lock()
	tasks := make([]Task, 0, len(r.tasks))
	for _, e := range r.tasks {
		tasks = append(tasks, e.task)
	}
	r.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].StartedAt.Equal(tasks[j].StartedAt) {
			return tasks[i].TaskID < tasks[j].TaskID
		}
		return tasks[i].StartedAt.Before(tasks[j].StartedAt)
	})
	return tasks
}

// Progress returns the displayed progress of a tracked task
func (r *Registry) Progress(taskID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[taskID]
	if !ok {
		return 0, false
	}
	return e.displayed, true
}

// Count returns the number of tracked tasks
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Recover re-registers tasks persisted by a previous run. Tasks that have
// outlived the polling ceiling are discarded. Attempts already spent are
// estimated from the elapsed time so the ceiling still holds.
func (r *Registry) Recover(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	tasks, err := r.store.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persisted tasks: %w", err)
	}

	now := r.now()
	recovered, discarded := 0, 0
	for _, task := range tasks {
		elapsed := now.Sub(task.StartedAt)
		if elapsed >= r.config.MaxLifetime() {
			discarded++
			if err := r.store.DeleteTask(ctx, task.TaskID); err != nil {
				r.logger.Error("failed to delete expired task",
					"task_id", task.TaskID,
					"error", err)
			}
			continue
		}

		if spent := int(elapsed / r.config.PollInterval); spent > task.AttemptCount {
			task.AttemptCount = spent
		}
		added, err := r.track(ctx, task)
		if errors.Is(err, ErrTaskFinished) {
			r.forget(task.TaskID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to recover task %s: %w", task.TaskID, err)
		}
		if added {
			recovered++
		}
	}

	r.logger.Info("recovered persisted tasks",
		"recovered_count", recovered,
		"discarded_count", discarded)
	return nil
}

// Stop halts every poller and waits for them to exit. Tracked tasks stay in
// the store so the next run can recover them.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	count := len(r.tasks)
	r.tasks = make(map[string]*entry)
	r.mu.Unlock()

	r.cancelFunc()
	r.wg.Wait()
	r.logger.Info("task registry stopped", "abandoned_count", count)
}

func (r *Registry) persist(ctx context.Context, task Task) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := r.store.SaveTask(ctx, task); err != nil {
		r.logger.Error("failed to persist task", "task_id", task.TaskID, "error", err)
	}
}

func (r *Registry) forget(taskID string) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.DeleteTask(ctx, taskID); err != nil {
		r.logger.Error("failed to delete persisted task", "task_id", taskID, "error", err)
	}
}
