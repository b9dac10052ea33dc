package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/metrics"
)

// Path is the endpoint of the cleanup handler.
const Path = "/v1/cleanup"

// retryAfterSeconds is advertised when a cleanup is already running.
const retryAfterSeconds = "30"

// RunFunc performs one cleanup.
type RunFunc func(ctx context.Context) (*metrics.Metric, error)

// Handler triggers a cleanup per request.
type Handler struct {
	Path string
	fn   RunFunc
	lock chan bool
}

// Summary reports the counts of a cleanup.
type Summary struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	DryRun  int `json:"dryRun"`
	Scanned int `json:"scanned"`
}

// Timing reports how long a cleanup took.
type Timing struct {
	DurationMS int64  `json:"duration_ms"`
	Duration   string `json:"duration"`
}

// Response is the body of a completed cleanup request.
type Response struct {
	Summary    Summary `json:"summary"`
	Timing     Timing  `json:"timing"`
	Error      string  `json:"error,omitempty"`
	Timestamp  string  `json:"timestamp"`
	APIVersion string  `json:"api_version"`
}

// New creates a handler running fn under lock.
// A nil lock creates one; pass the scheduler's lock to share it.
func New(fn RunFunc, lock chan bool) *Handler {
	if lock == nil {
		lock = make(chan bool, 1)
		lock <- true

		logrus.Debug("Initialized new cleanup lock channel")
	}

	return &Handler{
		Path: Path,
		fn:   fn,
		lock: lock,
	}
}

// Handle runs a cleanup and answers with its summary.
//
// Only POST is accepted. While another cleanup holds the lock the request is
// answered with 429 and a Retry-After header.
func (handle *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Info("Received HTTP API cleanup request")

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return
	}

	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		logrus.WithError(err).Debug("Failed to read request body")
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)

		return
	}

	select {
	case chanValue := <-handle.lock:
		defer func() { handle.lock <- chanValue }()
	default:
		logrus.Debug("Skipped cleanup, another cleanup already in progress")

		w.Header().Set("Retry-After", retryAfterSeconds)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "another cleanup is already running",
			"api_version": "v1",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})

		return
	}

	startTime := time.Now()
	metric, err := handle.fn(r.Context())
	duration := time.Since(startTime)

	response := Response{
		Timing: Timing{
			DurationMS: duration.Milliseconds(),
			Duration:   duration.String(),
		},
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIVersion: "v1",
	}

	if metric != nil {
		response.Summary = Summary{
			Deleted: metric.Deleted,
			Failed:  metric.Failed,
			Skipped: metric.Skipped,
			DryRun:  metric.Planned,
			Scanned: metric.Scanned,
		}
	}

	status := http.StatusOK
	if err != nil {
		response.Error = err.Error()
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, response)
}

// writeJSON encodes body before writing the header so encoding errors still get a 500.
func writeJSON(w http.ResponseWriter, status int, body any) {
	var buf bytes.Buffer

	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(buf.Bytes()); err != nil {
		logrus.WithError(err).Error("Failed to write response")
	}
}
