// Package trace implements the append-only JSONL event trail of a run.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates trace event types.
type EventType string

const (
	EventRunStart         EventType = "run_start"
	EventRunComplete      EventType = "run_complete"
	EventTestStart        EventType = "test_start"
	EventTestComplete     EventType = "test_complete"
	EventStateChange      EventType = "state_change"
	EventStepStart        EventType = "step_start"
	EventStepComplete     EventType = "step_complete"
	EventArtifactCaptured EventType = "artifact_captured"
	EventSessionError     EventType = "session_error"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	TestCase  string         `json:"test_case,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream. A nil *Writer
// discards events, so callers need not guard every emit.
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	closer    io.Closer
	runID     string
	enc       *json.Encoder
	redaction []*CompiledRedaction
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:     w,
		runID: runID,
		enc:   json.NewEncoder(w),
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.closer = f
	return tw, nil
}

// SetRedactions configures patterns scrubbed from free-text values such as
// typed input.
func (tw *Writer) SetRedactions(rules []*CompiledRedaction) {
	if tw == nil {
		return
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.redaction = rules
}

// Redact applies the configured redaction rules to s.
func (tw *Writer) Redact(s string) string {
	if tw == nil {
		return s
	}
	tw.mu.Lock()
	rules := tw.redaction
	tw.mu.Unlock()
	return RedactOutput(s, rules)
}

// Close closes the underlying file, if the writer owns one.
func (tw *Writer) Close() error {
	if tw == nil || tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, testCase string, data map[string]any) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		TestCase:  testCase,
		Data:      data,
	}
	return tw.enc.Encode(evt)
}

// EmitStepStart emits a step_start event.
func (tw *Writer) EmitStepStart(testCase string, index int, kind, detail string) error {
	return tw.Emit(EventStepStart, testCase, map[string]any{
		"index":  index,
		"kind":   kind,
		"detail": tw.Redact(detail),
	})
}

// EmitStepComplete emits a step_complete event.
func (tw *Writer) EmitStepComplete(testCase string, index int, status string, elapsed time.Duration, reason string) error {
	data := map[string]any{
		"index":    index,
		"status":   status,
		"duration": elapsed.String(),
	}
	if reason != "" {
		data["reason"] = tw.Redact(reason)
	}
	return tw.Emit(EventStepComplete, testCase, data)
}

// EmitStateChange emits a state_change event.
func (tw *Writer) EmitStateChange(testCase, state string, index int) error {
	return tw.Emit(EventStateChange, testCase, map[string]any{
		"state": state,
		"index": index,
	})
}
