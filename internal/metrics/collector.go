// Package metrics records run telemetry as date-stamped JSONL event files
// plus a per-model aggregate summary, with an optional Prometheus bridge.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taxray/internal/logging"
)

// Event is one recorded metrics event. Events append to
// <dir>/<YYYY-MM-DD>_<event_type>.jsonl.
type Event struct {
	Timestamp      float64                `json:"timestamp"`
	Datetime       string                 `json:"datetime"`
	Hostname       string                 `json:"hostname"`
	EventType      string                 `json:"event_type"`
	ElapsedSeconds float64                `json:"elapsed_seconds"`
	Data           map[string]interface{} `json:"data"`
}

// Collector appends metrics events to JSONL files. Recording never fails a
// caller: write errors are logged and swallowed.
type Collector struct {
	dir      string
	hostname string
	start    time.Time
	mu       sync.Mutex

	now func() time.Time // overridable for tests
}

// NewCollector creates a collector writing into dir.
func NewCollector(dir string) (*Collector, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Collector{
		dir:      dir,
		hostname: hostname,
		start:    time.Now(),
		now:      time.Now,
	}, nil
}

// RecordEvent appends an event of the given type.
func (c *Collector) RecordEvent(eventType string, data map[string]interface{}) {
	now := c.now()
	event := Event{
		Timestamp:      float64(now.UnixNano()) / 1e9,
		Datetime:       now.Format(time.RFC3339),
		Hostname:       c.hostname,
		EventType:      eventType,
		ElapsedSeconds: now.Sub(c.start).Seconds(),
		Data:           data,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, fmt.Sprintf("%s_%s.jsonl", now.Format("2006-01-02"), eventType))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logging.Get(logging.CategoryMetrics).Error("Failed to open metrics file %s: %v", path, err)
		return
	}
	defer f.Close()

	line, err := json.Marshal(event)
	if err != nil {
		logging.Get(logging.CategoryMetrics).Error("Failed to marshal metrics event: %v", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		logging.Get(logging.CategoryMetrics).Error("Failed to write metrics event: %v", err)
	}
}

// RecordModelRun records a generation event with token accounting and a
// memory snapshot taken at completion.
func (c *Collector) RecordModelRun(model string, promptTokens, completionTokens int, duration time.Duration, success bool, runErr error) {
	durationMs := float64(duration.Milliseconds())
	total := promptTokens + completionTokens

	data := map[string]interface{}{
		"model_name":        model,
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
		"total_tokens":      total,
		"duration_ms":       durationMs,
		"success":           success,
	}
	if durationMs > 0 {
		data["tokens_per_second"] = float64(total) / durationMs * 1000
	} else {
		data["tokens_per_second"] = 0.0
	}
	if runErr != nil {
		data["error"] = runErr.Error()
	}
	if snap := CaptureMemory(); snap != nil {
		snap.fill(data)
	}

	c.RecordEvent("model_run", data)
}

// RecordQuery records a retrieval query event.
func (c *Collector) RecordQuery(queryType, queryText string, numResults int, duration time.Duration, success bool, queryErr error) {
	data := map[string]interface{}{
		"query_type":   queryType,
		"query_length": len(queryText),
		"num_results":  numResults,
		"duration_ms":  float64(duration.Milliseconds()),
		"success":      success,
	}
	if queryErr != nil {
		data["error"] = queryErr.Error()
	}

	c.RecordEvent("query", data)
}

// RecordError records an error event.
func (c *Collector) RecordError(component, errorType, message string) {
	c.RecordEvent("error", map[string]interface{}{
		"component":  component,
		"error_type": errorType,
		"message":    message,
	})
}

// Dir returns the metrics directory.
func (c *Collector) Dir() string {
	return c.dir
}
