// ABOUTME: Engine lifecycle event types and the event sink contract.
// ABOUTME: Every state transition emits exactly one event, delivered synchronously to the sink.
package pipeline

import "time"

// EventType identifies the kind of engine lifecycle event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventRunPaused    EventType = "run.paused"
	EventRunResumed   EventType = "run.resumed"

	EventStageStarted   EventType = "stage.started"
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"
	EventStageRetrying  EventType = "stage.retrying"
	EventStageSkipped   EventType = "stage.skipped"

	// EventStageRestored signals the partial-recovery path: a stage found
	// "running" with committed data was restored without re-running.
	EventStageRestored EventType = "stage.restored"

	// EventStageFreshStart signals degraded recovery: the resume-point stage
	// had no preserved data and is re-run from scratch. Reported distinctly
	// so the operator is not misled by a stale "running" status.
	EventStageFreshStart EventType = "stage.fresh_start"
)

// Event is one engine lifecycle event. Events are emitted synchronously with
// the state transition they describe, so a consumer never observes a
// transition without its event or vice versa.
type Event struct {
	Type        EventType      `json:"type"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Stage       string         `json:"stage,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Sink consumes engine events. Sinks must not block for long; they run on
// the orchestrator goroutine.
type Sink func(Event)

// MultiSink fans one event out to several sinks in order. Nil sinks are
// skipped.
func MultiSink(sinks ...Sink) Sink {
	return func(evt Event) {
		for _, s := range sinks {
			if s != nil {
				s(evt)
			}
		}
	}
}
