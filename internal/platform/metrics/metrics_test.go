package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/genwatch/internal/events"
	"github.com/phrazzld/genwatch/internal/task"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.TaskRegistered()
	m.TaskRegistered()
	m.TaskFinished(task.OutcomeSucceeded)
	m.TaskFinished(task.OutcomeTimedOut)
	m.TaskFinished(task.OutcomeTimedOut)
	m.PollFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksFinished.WithLabelValues(task.OutcomeSucceeded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksFinished.WithLabelValues(task.OutcomeTimedOut)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pollFailures))
}

func TestNotificationMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.NotificationDelivered(events.KindSucceeded)
	m.NotificationDelivered(events.KindFailed)
	m.NotificationBuffered()
	m.NotificationExpired(3)
	m.NotificationDuplicate()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.delivered.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.delivered.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buffered))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicates))
}

func TestHandlerExposesGauges(t *testing.T) {
	t.Parallel()

	m := New()
	m.TrackGauges(func() int { return 4 }, func() int { return 1 }, func() int { return 2 })
	m.TaskRegistered()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "genwatch_tasks_active 4")
	assert.Contains(t, string(body), "genwatch_notifications_pending 1")
	assert.Contains(t, string(body), "genwatch_notifications_listeners 2")
	assert.Contains(t, string(body), "genwatch_tasks_registered_total 1")
}
