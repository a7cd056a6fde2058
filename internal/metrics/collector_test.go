package metrics

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordModelRun_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector(dir)
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}
	fixed := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.RecordModelRun("llama3:8b", 100, 50, 1500*time.Millisecond, true, nil)
	c.RecordModelRun("llama3:8b", 80, 0, 200*time.Millisecond, false, errors.New("timeout"))

	path := filepath.Join(dir, "2025-03-14_model_run.jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("metrics file not created: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid JSONL line: %v", err)
		}
		events = append(events, e)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if first.EventType != "model_run" {
		t.Errorf("event_type = %q", first.EventType)
	}
	if first.Data["model_name"] != "llama3:8b" {
		t.Errorf("model_name = %v", first.Data["model_name"])
	}
	if first.Data["total_tokens"].(float64) != 150 {
		t.Errorf("total_tokens = %v", first.Data["total_tokens"])
	}
	if first.Data["tokens_per_second"].(float64) != 100 {
		t.Errorf("tokens_per_second = %v, want 100", first.Data["tokens_per_second"])
	}
	if first.Hostname == "" {
		t.Error("hostname missing")
	}

	second := events[1]
	if second.Data["success"].(bool) {
		t.Error("second run should be a failure")
	}
	if second.Data["error"] != "timeout" {
		t.Errorf("error = %v", second.Data["error"])
	}
}

func TestRecordModelRun_IncludesMemorySnapshot(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector(dir)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.RecordModelRun("phi4", 10, 5, time.Second, true, nil)

	f, err := os.Open(filepath.Join(dir, "2025-03-14_model_run.jsonl"))
	if err != nil {
		t.Fatalf("metrics file not created: %v", err)
	}
	defer f.Close()

	var e Event
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("no event written")
	}
	if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
		t.Fatalf("invalid JSONL line: %v", err)
	}

	for _, field := range []string{"system_percent", "system_used_gb", "system_available_gb", "process_rss_gb"} {
		v, ok := e.Data[field].(float64)
		if !ok {
			t.Fatalf("model_run event missing memory field %q: %v", field, e.Data)
		}
		if v < 0 {
			t.Errorf("%s = %v, want non-negative", field, v)
		}
	}
	if pct := e.Data["system_percent"].(float64); pct <= 0 || pct > 100 {
		t.Errorf("system_percent = %v, want within (0, 100]", pct)
	}
}

func TestRecordQueryAndError_SeparateFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector(dir)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.RecordQuery("vector", "what is a tax deduction", 5, 120*time.Millisecond, true, nil)
	c.RecordError("retrieval", "recall_failed", "store unavailable")

	if _, err := os.Stat(filepath.Join(dir, "2025-03-14_query.jsonl")); err != nil {
		t.Errorf("query file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "2025-03-14_error.jsonl")); err != nil {
		t.Errorf("error file missing: %v", err)
	}
}

func TestSummary_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSummary(dir)
	if err != nil {
		t.Fatalf("LoadSummary on empty dir failed: %v", err)
	}

	s.RecordRun("phi4", 2*time.Second, true)
	s.RecordRun("phi4", 4*time.Second, true)
	s.RecordRun("phi4", time.Second, false)
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadSummary(dir)
	if err != nil {
		t.Fatalf("LoadSummary failed: %v", err)
	}
	stats := loaded.Models["phi4"]
	if stats == nil {
		t.Fatal("phi4 stats missing")
	}
	if stats.Processed != 2 || stats.Errors != 1 {
		t.Errorf("processed=%d errors=%d, want 2/1", stats.Processed, stats.Errors)
	}
	if stats.AverageTimePerDoc != 3.0 {
		t.Errorf("average = %v, want 3.0", stats.AverageTimePerDoc)
	}
}

func TestSummary_Report(t *testing.T) {
	s := &Summary{Models: map[string]*ModelStats{
		"mixtral:8x7b": {Processed: 3, Errors: 1, TotalTime: 90, AverageTimePerDoc: 30},
	}}
	report := s.Report()
	if !strings.Contains(report, "Model: mixtral:8x7b") {
		t.Errorf("report missing model header: %q", report)
	}
	if !strings.Contains(report, "Processed Documents: 3") {
		t.Errorf("report missing processed count: %q", report)
	}

	empty := &Summary{Models: map[string]*ModelStats{}}
	if !strings.Contains(empty.Report(), "No metrics data") {
		t.Error("empty report should say no data")
	}
}

func TestPrometheusBridge_Counters(t *testing.T) {
	b := NewPrometheusBridge()

	b.RecordModelRun("llama3:8b", 100, 50, 2*time.Second, true)
	b.RecordModelRun("llama3:8b", 100, 0, time.Second, false)
	b.RecordError("runner", "generate_failed")

	if got := testutil.ToFloat64(b.modelRuns.WithLabelValues("llama3:8b", "true")); got != 1 {
		t.Errorf("successful runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.modelRuns.WithLabelValues("llama3:8b", "false")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.modelTokens.WithLabelValues("llama3:8b", "prompt")); got != 200 {
		t.Errorf("prompt tokens = %v, want 200", got)
	}
	if got := testutil.ToFloat64(b.errors.WithLabelValues("runner", "generate_failed")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.tokensPerSecond.WithLabelValues("llama3:8b")); got != 100 {
		t.Errorf("tokens/s gauge = %v, want 100", got)
	}
}
