package genapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/genwatch/internal/config"
	"github.com/phrazzld/genwatch/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.GenerationConfig{
		BaseURL:        server.URL,
		RequestTimeout: 2 * time.Second,
		SubmitRetries:  2,
		StreamLifetime: time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(config.GenerationConfig{}, nil)
	assert.Error(t, err)
}

func TestFetchStatus(t *testing.T) {
	t.Parallel()

	t.Run("normalizes response and forwards token", func(t *testing.T) {
		var gotPath, gotAuth string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"SUCCESS","result":{"image_url":"https://cdn/a.png"}}`))
		})

		snapshot, err := client.FetchStatus(context.Background(), "t7", "secret")

		require.NoError(t, err)
		assert.Equal(t, "/generation-status/t7", gotPath)
		assert.Equal(t, "Bearer secret", gotAuth)
		assert.Equal(t, generation.PhaseSuccess, snapshot.Phase)
		assert.Equal(t, "https://cdn/a.png", snapshot.ResultURL)
	})

	t.Run("omits authorization without token", func(t *testing.T) {
		var gotAuth string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"status":"generating","progress":12}`))
		})

		snapshot, err := client.FetchStatus(context.Background(), "t1", "")

		require.NoError(t, err)
		assert.Empty(t, gotAuth)
		require.NotNil(t, snapshot.RawProgress)
		assert.Equal(t, 12.0, *snapshot.RawProgress)
	})

	t.Run("http error is transient", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		})

		_, err := client.FetchStatus(context.Background(), "t1", "")

		require.Error(t, err)
		assert.ErrorIs(t, err, generation.ErrTransientPoll)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("invalid body is transient", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>oops</html>`))
		})

		_, err := client.FetchStatus(context.Background(), "t1", "")

		assert.ErrorIs(t, err, generation.ErrTransientPoll)
		assert.ErrorIs(t, err, generation.ErrInvalidPayload)
	})

	t.Run("canceled context is transient", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"pending"}`))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.FetchStatus(ctx, "t1", "")

		assert.ErrorIs(t, err, generation.ErrTransientPoll)
	})
}

func TestSubmitDirectResult(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate-image", r.URL.Path)
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cloud_url":"https://cdn/b.png","generation_time":4.5}`))
	})

	result, err := client.Submit(context.Background(), []byte(`{"prompt":"a cat"}`), "tok")

	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"a cat"}`, string(gotBody))
	assert.False(t, result.IsStream())
	assert.Equal(t, "https://cdn/b.png", result.ResultURL)
	require.NotNil(t, result.GenerationTimeSeconds)
	assert.Equal(t, 4.5, *result.GenerationTimeSeconds)
}

func TestSubmitTaskReference(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"task_id":42}`))
	})

	result, err := client.Submit(context.Background(), []byte(`{}`), "")

	require.NoError(t, err)
	assert.Equal(t, "42", result.TaskID)
	assert.Empty(t, result.ResultURL)
}

func TestSubmitStream(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"task_id\":\"t9\"}\n\n"))
	})

	result, err := client.Submit(context.Background(), []byte(`{}`), "")

	require.NoError(t, err)
	require.True(t, result.IsStream())
	defer result.Stream.Close()

	data, err := io.ReadAll(result.Stream)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"task_id\":\"t9\"}\n\n", string(data))
}

func TestSubmitRetries(t *testing.T) {
	t.Parallel()

	t.Run("retries server errors then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"image_url":"https://cdn/c.png"}`))
		})

		result, err := client.Submit(context.Background(), []byte(`{}`), "")

		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, "https://cdn/c.png", result.ResultURL)
	})

	t.Run("gives up after configured retries", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "slow down", http.StatusTooManyRequests)
		})

		_, err := client.Submit(context.Background(), []byte(`{}`), "")

		require.Error(t, err)
		assert.ErrorIs(t, err, generation.ErrSubmitFailed)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad prompt", http.StatusBadRequest)
		})

		_, err := client.Submit(context.Background(), []byte(`{}`), "")

		require.Error(t, err)
		assert.ErrorIs(t, err, generation.ErrSubmitFailed)
		assert.Contains(t, err.Error(), "bad prompt")
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestSubmitInvalidDirectBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Submit(context.Background(), []byte(`{}`), "")

	assert.ErrorIs(t, err, generation.ErrSubmitFailed)
	assert.ErrorIs(t, err, generation.ErrInvalidPayload)
}

func TestSubmitWithoutResultOrTaskID(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "status only", body: `{"status":"queued"}`},
		{name: "relative url", body: `{"image_url":"/media/a.png"}`},
		{name: "null task id", body: `{"task_id":null}`},
		{name: "blank task id", body: `{"task_id":" "}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			})

			result, err := client.Submit(context.Background(), []byte(`{}`), "")

			assert.Nil(t, result)
			assert.ErrorIs(t, err, generation.ErrSubmitFailed)
			assert.ErrorIs(t, err, generation.ErrInvalidPayload)
		})
	}
}
