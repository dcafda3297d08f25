package genapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phrazzld/genwatch/internal/config"
	"github.com/phrazzld/genwatch/internal/generation"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
)

const (
	statusPath = "/generation-status/{taskId}"
	submitPath = "/generate-image"

	// maxErrorBody caps how much of an error response is kept for logging
	maxErrorBody = 2048

	// maxResultBody caps a direct (non-streamed) submit response
	maxResultBody = 1 << 20

	submitBackoffBase = 200 * time.Millisecond
	submitBackoffMax  = 5 * time.Second
)

// Client talks to the remote generation worker.
type Client struct {
	http    *resty.Client
	retries uint64
	logger  *slog.Logger
}

// SubmitResult is the worker's answer to a generation request. Exactly one of
// ResultURL, TaskID or Stream is meaningful.
type SubmitResult struct {
	// ResultURL is set when the worker produced the image synchronously
	ResultURL string

	// TaskID is set when the worker answered with a plain JSON job reference
	TaskID string

	GenerationTimeSeconds *float64

	// Stream is the raw event stream when the worker answered with
	// text/event-stream. The caller must close it.
	Stream io.ReadCloser

	ContentType string

	// Body is the raw JSON of a non-streamed response
	Body []byte
}

// IsStream reports whether the result must be consumed as an event stream
func (r *SubmitResult) IsStream() bool {
	return r.Stream != nil
}

// NewClient creates a client for the worker at cfg.BaseURL.
// RequestTimeout bounds the wait for response headers only, so long event
// streams are not cut off.
func NewClient(cfg config.GenerationConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generation base url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "genapi_client")

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTransport(transport).
		SetHeader("Accept", "application/json").
		SetLogger(&restyLogger{logger: logger})

	return &Client{
		http:    client,
		retries: cfg.SubmitRetries,
		logger:  logger,
	}, nil
}

// FetchStatus performs one status poll for taskID. Network failures, non-2xx
// responses and unparsable bodies are all wrapped in generation.ErrTransientPoll.
func (c *Client) FetchStatus(
	ctx context.Context,
	taskID, authToken string,
) (generation.StatusSnapshot, error) {
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("taskId", taskID)
	if authToken != "" {
		req.SetAuthToken(authToken)
	}

	resp, err := req.Get(statusPath)
	if err != nil {
		return generation.StatusSnapshot{}, fmt.Errorf("%w: %v", generation.ErrTransientPoll, err)
	}
	if resp.IsError() {
		return generation.StatusSnapshot{}, fmt.Errorf("%w: status endpoint returned %d: %s",
			generation.ErrTransientPoll, resp.StatusCode(), truncate(resp.Body()))
	}

	snapshot, err := generation.NormalizeStatusSnapshot(resp.Body())
	if err != nil {
		return generation.StatusSnapshot{}, fmt.Errorf("%w: %w", generation.ErrTransientPoll, err)
	}
	return snapshot, nil
}

// Submit forwards a generation request body to the worker. Connection errors,
// 5xx and 429 responses are retried with exponential backoff. The response is
// not buffered when it is an event stream.
func (c *Client) Submit(ctx context.Context, body []byte, authToken string) (*SubmitResult, error) {
	backoff := retry.WithMaxRetries(c.retries,
		retry.WithCappedDuration(submitBackoffMax, retry.NewExponential(submitBackoffBase)))

	var resp *resty.Response
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		req := c.http.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json, text/event-stream").
			SetBody(body)
		if authToken != "" {
			req.SetAuthToken(authToken)
		}

		r, err := req.Post(submitPath)
		if err != nil {
			c.logger.Warn("submit attempt failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		if r.StatusCode() >= http.StatusBadRequest {
			errBody := readAndClose(r.RawBody(), maxErrorBody)
			statusErr := fmt.Errorf("worker returned %d: %s", r.StatusCode(), errBody)
			if isRetryableStatus(r.StatusCode()) {
				c.logger.Warn("submit attempt rejected", "attempt", attempt, "status", r.StatusCode())
				return retry.RetryableError(statusErr)
			}
			return statusErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", generation.ErrSubmitFailed, err)
	}

	contentType := resp.Header().Get("Content-Type")
	if strings.HasPrefix(strings.ToLower(contentType), "text/event-stream") {
		c.logger.Debug("worker answered with event stream", "attempts", attempt)
		return &SubmitResult{Stream: resp.RawBody(), ContentType: contentType}, nil
	}

	raw := readAndClose(resp.RawBody(), maxResultBody)
	result, err := parseDirectResult(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", generation.ErrSubmitFailed, err)
	}
	result.ContentType = contentType
	return result, nil
}

// parseDirectResult extracts the image URL or task id from a JSON submit response.
// A response carrying neither is an invalid payload.
func parseDirectResult(raw []byte) (*SubmitResult, error) {
	if !gjson.ValidBytes(raw) {
		return nil, generation.ErrInvalidPayload
	}
	doc := gjson.ParseBytes(raw)

	result := &SubmitResult{Body: raw}
	for _, path := range []string{"image_url", "cloud_url", "imageUrl", "result.image_url", "result.cloud_url"} {
		if v := doc.Get(path); v.Type == gjson.String && generation.IsUsableResultURL(v.String()) {
			result.ResultURL = v.String()
			break
		}
	}
	if id := doc.Get("task_id"); id.Exists() && id.Type != gjson.Null {
		result.TaskID = strings.TrimSpace(id.String())
	}
	if result.ResultURL == "" && result.TaskID == "" {
		return nil, fmt.Errorf("%w: neither a usable image url nor a task id", generation.ErrInvalidPayload)
	}
	if t := doc.Get("generation_time"); t.Type == gjson.Number {
		seconds := t.Float()
		result.GenerationTimeSeconds = &seconds
	}
	return result, nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func readAndClose(body io.ReadCloser, limit int64) []byte {
	if body == nil {
		return nil
	}
	defer func() { _ = body.Close() }()
	// A partial read is still useful for error messages
	data, _ := io.ReadAll(io.LimitReader(body, limit))
	return data
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
