package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/genwatch/internal/config"
	"github.com/phrazzld/genwatch/internal/platform/logger"
	"github.com/phrazzld/genwatch/internal/platform/redisstore"
	"github.com/phrazzld/genwatch/internal/task"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWorker starts a fake generation worker. Submissions answer with job-1,
// which reports pending twice and then completes.
func newWorker(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate-image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"task_id":"job-1"}`)
	})
	mux.HandleFunc("GET /generation-status/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) < 3 {
			_, _ = io.WriteString(w, `{"status":"processing","progress":40}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"completed","result":{"image_url":"https://cdn.example.com/job-1.png","generation_time":3.5}}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &polls
}

func testConfig(workerURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "debug",
			ShutdownTimeout: 2 * time.Second,
		},
		Generation: config.GenerationConfig{
			BaseURL:        workerURL,
			RequestTimeout: 2 * time.Second,
			SubmitRetries:  0,
			StreamLifetime: time.Minute,
		},
		Tracker: config.TrackerConfig{
			PollInterval:    5 * time.Millisecond,
			MaxAttempts:     50,
			SyntheticWindow: 50 * time.Millisecond,
			StatusTimeout:   time.Second,
		},
		Notifications: config.NotificationConfig{
			PendingTTL:   30 * time.Second,
			SettleDelay:  time.Millisecond,
			DedupeSize:   64,
			Heartbeat:    time.Minute,
			StreamBuffer: 8,
		},
		Redis: config.RedisConfig{KeyPrefix: "genwatch-test"},
	}
}

func TestApplicationEndToEnd(t *testing.T) {
	worker, _ := newWorker(t)
	log, logs := logger.GetTestLogger(t)

	app, err := newApplication(context.Background(), testConfig(worker.URL), log, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	baseURL := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- app.serve(ctx, ln, app.setupRouter()) }()

	// Subscribe before submitting
	streamReq, err := http.NewRequest(http.MethodGet, baseURL+"/api/notifications", nil)
	require.NoError(t, err)
	streamResp, err := http.DefaultClient.Do(streamReq)
	require.NoError(t, err)
	defer streamResp.Body.Close()
	require.Equal(t, http.StatusOK, streamResp.StatusCode)
	require.Eventually(t, func() bool { return app.bus.ListenerCount() == 1 }, time.Second, time.Millisecond)

	body := `{"owner_message_id":"msg-1","character":{"name":"Mira"},"payload":{"prompt":"a lighthouse"}}`
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/generations", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer user-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	data := readDataLine(t, bufio.NewReader(streamResp.Body))
	var n struct {
		TaskID         string `json:"task_id"`
		OwnerMessageID string `json:"owner_message_id"`
		Kind           string `json:"kind"`
		ResultURL      string `json:"result_url"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &n))
	assert.Equal(t, "job-1", n.TaskID)
	assert.Equal(t, "msg-1", n.OwnerMessageID)
	assert.Equal(t, "succeeded", n.Kind)
	assert.Equal(t, "https://cdn.example.com/job-1.png", n.ResultURL)
	assert.Equal(t, 0, app.registry.Count())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	logger.AssertLogContains(t, logs, "Server shutdown completed")
}

func readDataLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				lines <- data
				return
			}
		}
	}()
	select {
	case data, ok := <-lines:
		require.True(t, ok, "stream ended without data")
		return data
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
		return ""
	}
}

func TestHealthAndMetrics(t *testing.T) {
	worker, _ := newWorker(t)
	log, _ := logger.GetTestLogger(t)

	app, err := newApplication(context.Background(), testConfig(worker.URL), log, nil)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)
	router := app.setupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","active_tasks":0}`, rec.Body.String())

	reg := httptest.NewRequest(http.MethodPost, "/api/tasks",
		bytes.NewBufferString(`{"task_id":"job-2","owner_message_id":"m2"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, reg)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "genwatch_tasks_registered_total 1")
	assert.Contains(t, rec.Body.String(), "genwatch_tasks_active")
}

func TestApplicationRecoversPersistedTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	worker, polls := newWorker(t)
	log, _ := logger.GetTestLogger(t)
	cfg := testConfig(worker.URL)

	store := redisstore.NewTaskStore(client, cfg.Redis.KeyPrefix, log)
	require.NoError(t, store.SaveTask(context.Background(), task.Task{
		TaskID:         "job-1",
		OwnerMessageID: "m1",
		StartedAt:      time.Now(),
	}))

	app, err := newApplication(context.Background(), cfg, log, client)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)

	require.Eventually(t, func() bool { return polls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return app.registry.Count() == 0 }, 2*time.Second, time.Millisecond)

	// The finished task is removed from the store and its success is buffered
	tasks, err := store.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, 1, app.bus.PendingCount())
}

func TestRunReleasesResourcesWhenPortIsTaken(t *testing.T) {
	occupied, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = occupied.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	worker, _ := newWorker(t)
	log, logs := logger.GetTestLogger(t)
	cfg := testConfig(worker.URL)
	cfg.Server.Port = occupied.Addr().(*net.TCPAddr).Port

	app, err := newApplication(context.Background(), cfg, log, client)
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")

	_, err = app.registry.Register(context.Background(), task.Registration{TaskID: "t1", OwnerMessageID: "m1"})
	assert.ErrorIs(t, err, task.ErrRegistryStopped)
	assert.ErrorIs(t, client.Ping(context.Background()).Err(), redis.ErrClosed)
	logger.AssertLogContains(t, logs, "Application shutdown completed")
}

func TestSetupAppStoreDisabled(t *testing.T) {
	log, logs := logger.GetTestLogger(t)

	client, err := setupAppStore(context.Background(), testConfig("http://worker"), log)
	require.NoError(t, err)
	assert.Nil(t, client)
	logger.AssertLogContains(t, logs, "Task persistence disabled")
}

func TestSetupAppStoreUnreachable(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	cfg := testConfig("http://worker")
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	_, err := setupAppStore(context.Background(), cfg, log)
	assert.ErrorIs(t, err, redisstore.ErrConnection)
}

func TestNewApplicationRejectsInvalidConfig(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	cfg := testConfig("http://worker")
	cfg.Tracker.MaxAttempts = 0

	_, err := newApplication(context.Background(), cfg, log, nil)
	assert.ErrorIs(t, err, task.ErrInvalidConfig)
}
