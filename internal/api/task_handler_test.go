package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/genwatch/internal/api/shared"
	"github.com/phrazzld/genwatch/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestRegisterTask(t *testing.T) {
	t.Parallel()

	tracker := newMockTracker()
	router := newTaskRouter(NewTaskHandler(tracker, discardLogger()))
	body := `{"task_id":"t1","owner_message_id":"m1","character":{"id":"c1","name":"Mira"}}`

	rec := doRequest(t, router, http.MethodPost, "/tasks", body, map[string]string{
		"Authorization": "Bearer secret-token",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, "m1", resp.OwnerMessageID)
	require.NotNil(t, resp.Character)
	assert.Equal(t, "Mira", resp.Character.Name)
	assert.NotContains(t, rec.Body.String(), "secret-token")

	regs := tracker.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "secret-token", regs[0].AuthToken)

	t.Run("already tracked answers 200", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/tasks", body, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, tracker.List(), 1)
	})
}

func TestRegisterTaskBadRequests(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		body    string
		message string
	}{
		{name: "empty body", body: "", message: "Request body is required"},
		{name: "malformed json", body: `{"task_id":`, message: "Invalid request format"},
		{name: "missing owner", body: `{"task_id":"t1"}`, message: "Invalid owner_message_id: required field"},
		{name: "missing task id", body: `{"owner_message_id":"m1"}`, message: "Invalid task_id: required field"},
		{name: "blank task id", body: `{"task_id":"  ","owner_message_id":"m1"}`, message: "Invalid task_id: required field"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := newMockTracker()
			router := newTaskRouter(NewTaskHandler(tracker, discardLogger()))

			req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.message, decodeError(t, rec).Error)
			assert.Empty(t, tracker.List())
		})
	}
}

func TestRegisterTaskRegistryStopped(t *testing.T) {
	t.Parallel()

	tracker := newMockTracker()
	tracker.RegisterErr = task.ErrRegistryStopped
	router := newTaskRouter(NewTaskHandler(tracker, discardLogger()))

	rec := doRequest(t, router, http.MethodPost, "/tasks", `{"task_id":"t1","owner_message_id":"m1"}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Service is shutting down", decodeError(t, rec).Error)
}

func TestRegisterTaskAlreadyFinished(t *testing.T) {
	t.Parallel()

	tracker := newMockTracker()
	tracker.RegisterErr = task.ErrTaskFinished
	router := newTaskRouter(NewTaskHandler(tracker, discardLogger()))

	rec := doRequest(t, router, http.MethodPost, "/tasks", `{"task_id":"t1","owner_message_id":"m1"}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Task already finished", decodeError(t, rec).Error)
}

func TestListAndGetTasks(t *testing.T) {
	t.Parallel()

	tracker := newMockTracker()
	router := newTaskRouter(NewTaskHandler(tracker, discardLogger()))
	for _, id := range []string{"b", "a"} {
		rec := doRequest(t, router, http.MethodPost, "/tasks", `{"task_id":"`+id+`","owner_message_id":"m-`+id+`"}`, nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	tracker.SetProgress("a", 42)

	t.Run("list", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/tasks", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp TaskListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Tasks, 2)
		assert.Equal(t, "a", resp.Tasks[0].TaskID)
		assert.Equal(t, 42, resp.Tasks[0].Progress)
		assert.Equal(t, "b", resp.Tasks[1].TaskID)
	})

	t.Run("get", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/tasks/a", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp TaskResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "m-a", resp.OwnerMessageID)
		assert.Equal(t, 42, resp.Progress)
	})

	t.Run("get unknown", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/tasks/missing", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Task not found", decodeError(t, rec).Error)
	})
}

func TestListTasksEmpty(t *testing.T) {
	t.Parallel()

	router := newTaskRouter(NewTaskHandler(newMockTracker(), discardLogger()))
	rec := doRequest(t, router, http.MethodGet, "/tasks", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tasks":[]}`, rec.Body.String())
}

func TestUnregisterTask(t *testing.T) {
	t.Parallel()

	tracker := newMockTracker()
	router := newTaskRouter(NewTaskHandler(tracker, discardLogger()))
	doRequest(t, router, http.MethodPost, "/tasks", `{"task_id":"t1","owner_message_id":"m1"}`, nil)

	rec := doRequest(t, router, http.MethodDelete, "/tasks/t1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, tracker.List())

	rec = doRequest(t, router, http.MethodDelete, "/tasks/t1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
