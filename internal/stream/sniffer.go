package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/genwatch/internal/task"
	"github.com/tidwall/gjson"
)

// ErrNoTaskID is returned when a stream ends without carrying a task id
var ErrNoTaskID = errors.New("stream ended without a task id")

// maxLineSize bounds a single stream line
const maxLineSize = 1 << 20

var taskIDPaths = []string{"task_id", "result.task_id", "data.task_id"}

// SniffTaskID reads r line by line and returns the first task id carried by a
// `data: {json}` line. Non-JSON lines and lines without a task id are skipped.
func SniffTaskID(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" || !gjson.Valid(payload) {
			continue
		}
		for _, path := range taskIDPaths {
			v := gjson.Get(payload, path)
			if !v.Exists() || v.Type == gjson.Null {
				continue
			}
			if id := strings.TrimSpace(v.String()); id != "" {
				return id, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stream: %w", err)
	}
	return "", ErrNoTaskID
}

// Registrar starts tracking a task; *task.Registry satisfies it.
type Registrar interface {
	Register(ctx context.Context, reg task.Registration) (bool, error)
}

// Result reports what the sniffer found on its branch
type Result struct {
	TaskID     string
	Registered bool
	Err        error
}

// Sniffer registers tasks whose ids arrive inside streamed responses.
type Sniffer struct {
	registrar Registrar
	logger    *slog.Logger
}

// NewSniffer creates a sniffer that registers found tasks with registrar
func NewSniffer(registrar Registrar, logger *slog.Logger) *Sniffer {
	return &Sniffer{
		registrar: registrar,
		logger:    logger.With("component", "stream_sniffer"),
	}
}

// Attach replaces resp.Body with the primary branch of a split and sniffs the
// other branch in the background. reg supplies everything but the task id.
// The returned channel receives exactly one Result and is then closed.
func (s *Sniffer) Attach(resp *http.Response, reg task.Registration) <-chan Result {
	primary, results := s.AttachBody(resp.Body, reg)
	resp.Body = primary
	return results
}

// AttachBody is Attach for a bare body. The caller reads and closes the
// returned reader in place of body.
func (s *Sniffer) AttachBody(body io.ReadCloser, reg task.Registration) (io.ReadCloser, <-chan Result) {
	primary, secondary := Tee(body)
	results := make(chan Result, 1)
	go s.sniff(secondary, reg, results)
	return primary, results
}

func (s *Sniffer) sniff(r io.ReadCloser, reg task.Registration, results chan<- Result) {
	defer close(results)

	taskID, err := SniffTaskID(r)
	// Release our branch as soon as the id is known
	_ = r.Close()
	if err != nil {
		s.logger.Debug("no task id found in stream",
			"owner_message_id", reg.OwnerMessageID,
			"error", err)
		results <- Result{Err: err}
		return
	}

	reg.TaskID = taskID
	added, err := s.registrar.Register(context.Background(), reg)
	if err != nil {
		s.logger.Error("failed to register sniffed task",
			"task_id", taskID,
			"owner_message_id", reg.OwnerMessageID,
			"error", err)
		results <- Result{TaskID: taskID, Err: err}
		return
	}

	s.logger.Info("registered task from stream",
		"task_id", taskID,
		"owner_message_id", reg.OwnerMessageID,
		"added", added)
	results <- Result{TaskID: taskID, Registered: added}
}
