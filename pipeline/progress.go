// ABOUTME: Append-only NDJSON event logger for pipeline execution observability.
// ABOUTME: Writes engine events to progress.ndjson and maintains a live.json status snapshot.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LiveState is the current run snapshot, rewritten atomically after each
// event so external tools can poll for status.
type LiveState struct {
	ExecutionID string   `json:"execution_id"`
	Status      string   `json:"status"`
	ActiveStage string   `json:"active_stage"`
	Completed   []string `json:"completed"`
	Failed      []string `json:"failed"`
	StartedAt   string   `json:"started_at"`
	UpdatedAt   string   `json:"updated_at"`
	EventCount  int      `json:"event_count"`
}

// ProgressLogger writes engine events to an append-only NDJSON file and
// maintains a live.json snapshot. Its HandleEvent method satisfies Sink.
type ProgressLogger struct {
	dir    string
	file   *os.File
	state  LiveState
	mu     sync.Mutex
	closed bool

	// WriteErrors counts write failures encountered (for diagnostics).
	WriteErrors int
}

// NewProgressLogger creates a progress logger writing into dir, which is
// created if needed.
func NewProgressLogger(dir string) (*ProgressLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create progress dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "progress.ndjson"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	pl := &ProgressLogger{
		dir:  dir,
		file: f,
		state: LiveState{
			Status:    string(ExecPending),
			Completed: []string{},
			Failed:    []string{},
		},
	}

	if err := pl.writeLiveJSON(); err != nil {
		f.Close()
		return nil, err
	}
	return pl, nil
}

// HandleEvent appends the event to the NDJSON log, updates the live state,
// and atomically rewrites live.json.
func (p *ProgressLogger) HandleEvent(evt Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)

	// Append to the NDJSON file (best-effort: state is updated even on write failure)
	line, err := json.Marshal(evt)
	if err != nil {
		p.WriteErrors++
		fmt.Fprintf(os.Stderr, "[progress] marshal error: %v\n", err)
	} else {
		line = append(line, '\n')
		if _, err := p.file.Write(line); err != nil {
			p.WriteErrors++
			fmt.Fprintf(os.Stderr, "[progress] write error: %v\n", err)
		}
	}

	if evt.ExecutionID != "" {
		p.state.ExecutionID = evt.ExecutionID
	}

	switch evt.Type {
	case EventRunStarted, EventRunResumed:
		p.state.Status = string(ExecRunning)
		p.state.StartedAt = evt.Timestamp.UTC().Format(time.RFC3339)
	case EventStageStarted:
		p.state.ActiveStage = evt.Stage
	case EventStageCompleted, EventStageRestored:
		p.state.Completed = append(p.state.Completed, evt.Stage)
		p.state.ActiveStage = ""
	case EventStageFailed:
		p.state.Failed = append(p.state.Failed, evt.Stage)
		p.state.ActiveStage = ""
	case EventRunCompleted:
		p.state.Status = string(ExecCompleted)
	case EventRunFailed:
		p.state.Status = string(ExecFailed)
	case EventRunPaused:
		p.state.Status = string(ExecPaused)
		p.state.ActiveStage = ""
	}

	p.state.EventCount++
	p.state.UpdatedAt = now

	if err := p.writeLiveJSON(); err != nil {
		fmt.Fprintf(os.Stderr, "[progress] live.json write error: %v\n", err)
	}
}

// Close closes the underlying NDJSON file. After Close, HandleEvent is a no-op.
func (p *ProgressLogger) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.file.Close()
}

// State returns a copy of the current live state.
func (p *ProgressLogger) State() LiveState {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := p.state
	cp.Completed = append([]string(nil), p.state.Completed...)
	cp.Failed = append([]string(nil), p.state.Failed...)
	return cp
}

// writeLiveJSON atomically writes the current state to live.json.
// Caller must hold p.mu.
func (p *ProgressLogger) writeLiveJSON() error {
	return writeJSONAtomic(filepath.Join(p.dir, "live.json"), p.state)
}

// ReadProgress parses a progress.ndjson file written by a ProgressLogger,
// returning one Event per line. A missing file yields an empty slice.
func ReadProgress(dir string) ([]Event, error) {
	f, err := os.Open(filepath.Join(dir, "progress.ndjson"))
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return nil, fmt.Errorf("parse event line %d: %w", lineNo, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan progress log: %w", err)
	}
	return events, nil
}
