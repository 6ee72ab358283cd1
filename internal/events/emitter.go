// Package events carries pipeline stage events to their consumers: NDJSON on a writer for the CLI and a
// broadcast hub for the websocket monitor.
package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the orchestrator and the request surfaces.
const (
	TypeRunStarted    = "run_started"
	TypeStage         = "stage"
	TypeSignals       = "signals"
	TypeVerdict       = "verdict"
	TypeEscalation    = "escalation"
	TypeRunFinished   = "run_finished"
	TypeIngestFailure = "ingest_failed"
	TypeReportWritten = "report_written"
)

// Stage statuses.
const (
	StatusWorking = "working"
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Event is one stage record. Agent, Message and Status mirror the websocket monitor payload.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id,omitempty"`
	Agent     string                 `json:"agent,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(evt Event) error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) error { return nil }

// Emitter writes NDJSON events to an io.Writer safely across goroutines.
type Emitter struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewEmitter returns a new NDJSON emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{writer: w}
}

// Emit serializes the event to JSON and appends a newline.
func (e *Emitter) Emit(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.writer.Write(append(payload, '\n')); err != nil {
		return err
	}

	return nil
}

// Multi fans an event out to every sink and returns the first error.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Emit(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	var first error
	for _, s := range m {
		if err := s.Emit(evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}
