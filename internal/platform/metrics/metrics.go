// Package metrics exposes Prometheus collectors for task tracking and
// notification delivery.
package metrics

import (
	"net/http"

	"github.com/phrazzld/genwatch/internal/events"
	"github.com/phrazzld/genwatch/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "genwatch"

// Metrics implements task.Metrics and events.Metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	tasksRegistered prometheus.Counter
	tasksFinished   *prometheus.CounterVec
	pollFailures    prometheus.Counter

	delivered  *prometheus.CounterVec
	buffered   prometheus.Counter
	expired    prometheus.Counter
	duplicates prometheus.Counter
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "registered_total",
			Help:      "Generation tasks that started being tracked.",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "finished_total",
			Help:      "Generation tasks that stopped being tracked, by outcome.",
		}, []string{"outcome"}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "poll_failures_total",
			Help:      "Status polls that failed with a transient error.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivered_total",
			Help:      "Terminal notifications delivered to listeners, by kind.",
		}, []string{"kind"}),
		buffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "buffered_total",
			Help:      "Notifications buffered because no listener was subscribed.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "expired_total",
			Help:      "Buffered notifications dropped after their TTL.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "duplicates_total",
			Help:      "Repeated terminal notifications dropped for an already published task.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasksRegistered,
		m.tasksFinished,
		m.pollFailures,
		m.delivered,
		m.buffered,
		m.expired,
		m.duplicates,
	)
	return m
}

// TrackGauges registers gauges read on every scrape
func (m *Metrics) TrackGauges(activeTasks, pendingNotifications, listeners func() int) {
	m.registry.MustRegister(
		gaugeFunc("tasks", "active", "Generation tasks currently tracked.", activeTasks),
		gaugeFunc("notifications", "pending", "Notifications waiting for a listener.", pendingNotifications),
		gaugeFunc("notifications", "listeners", "Current notification listeners.", listeners),
	)
}

func gaugeFunc(subsystem, name, help string, fn func() int) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TaskRegistered implements task.Metrics
func (m *Metrics) TaskRegistered() {
	m.tasksRegistered.Inc()
}

// TaskFinished implements task.Metrics
func (m *Metrics) TaskFinished(outcome string) {
	m.tasksFinished.WithLabelValues(outcome).Inc()
}

// PollFailed implements task.Metrics
func (m *Metrics) PollFailed() {
	m.pollFailures.Inc()
}

// NotificationDelivered implements events.Metrics
func (m *Metrics) NotificationDelivered(kind events.Kind) {
	m.delivered.WithLabelValues(string(kind)).Inc()
}

// NotificationBuffered implements events.Metrics
func (m *Metrics) NotificationBuffered() {
	m.buffered.Inc()
}

// NotificationExpired implements events.Metrics
func (m *Metrics) NotificationExpired(count int) {
	m.expired.Add(float64(count))
}

// NotificationDuplicate implements events.Metrics
func (m *Metrics) NotificationDuplicate() {
	m.duplicates.Inc()
}

var (
	_ task.Metrics   = (*Metrics)(nil)
	_ events.Metrics = (*Metrics)(nil)
)
