// ABOUTME: StateManager owning the single current-execution slot and all checkpointed mutations.
// ABOUTME: Implements start/complete/fail stage, pause, resume with deep copy, and terminal transitions.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrNoActiveExecution is returned when a mutation requires a current
	// execution and none is loaded.
	ErrNoActiveExecution = errors.New("no active execution")

	// ErrAlreadyCompleted is returned when resume targets a terminal,
	// completed execution.
	ErrAlreadyCompleted = errors.New("execution already completed")
)

// StateManager wraps a Store with the single-slot current-execution model:
// at most one execution is actively mutated per process, and every mutation
// is immediately checkpointed. The slot is an explicit field here rather
// than package state so it can be owned by the orchestrator and tested in
// isolation.
type StateManager struct {
	store   *Store
	mu      sync.Mutex
	current *Execution
}

// NewStateManager creates a StateManager over the given store with an empty
// current slot.
func NewStateManager(store *Store) *StateManager {
	return &StateManager{store: store}
}

// Create allocates a new pending execution, persists it immediately, and
// loads it into the current slot. Any previously loaded execution is
// replaced; its state is whatever was last checkpointed.
func (m *StateManager) Create(input, entity string, roles, stageOrder []string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := NewExecution(input, entity, roles, stageOrder)
	if err := m.store.Save(e); err != nil {
		return nil, fmt.Errorf("checkpoint new execution: %w", err)
	}
	m.current = e
	return e, nil
}

// Current returns the execution in the current slot, or nil. The returned
// pointer is the live record; callers other than the orchestrator must treat
// it as read-only.
func (m *StateManager) Current() *Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StartStage marks the stage running and checkpoints before the stage
// function is invoked, so an interruption during the call is observable on
// reload. The execution itself transitions to running on the first stage.
func (m *StateManager) StartStage(stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sr, err := m.stage(stage)
	if err != nil {
		return err
	}

	now := time.Now()
	sr.Status = StageRunning
	sr.StartedAt = &now
	sr.Error = ""
	m.current.Status = ExecRunning
	m.current.touch()
	return m.checkpoint()
}

// CompleteStage marks the stage completed with its result and checkpoints.
func (m *StateManager) CompleteStage(stage string, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sr, err := m.stage(stage)
	if err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", stage, err)
	}

	now := time.Now()
	sr.Status = StageCompleted
	sr.Data = data
	sr.CompletedAt = &now
	sr.Error = ""
	m.current.touch()
	return m.checkpoint()
}

// FailStage records a stage failure without advancing, increments its retry
// counter, and checkpoints.
func (m *StateManager) FailStage(stage, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sr, err := m.stage(stage)
	if err != nil {
		return err
	}

	sr.Status = StageFailed
	sr.Error = errMsg
	sr.Retries++
	m.current.touch()
	return m.checkpoint()
}

// SkipStage marks a stage skipped with a reason and checkpoints. Used for
// optional stages that failed but should not block the run.
func (m *StateManager) SkipStage(stage, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sr, err := m.stage(stage)
	if err != nil {
		return err
	}

	sr.Status = StageSkipped
	sr.Error = reason
	m.current.touch()
	return m.checkpoint()
}

// RestoreStage promotes a stage that was interrupted mid-flight but has
// committed data back to completed, without re-running it. This is the
// partial-recovery path on resume.
func (m *StateManager) RestoreStage(stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sr, err := m.stage(stage)
	if err != nil {
		return err
	}
	if len(sr.Data) == 0 {
		return fmt.Errorf("stage %q has no data to restore", stage)
	}

	now := time.Now()
	sr.Status = StageCompleted
	sr.CompletedAt = &now
	sr.Error = ""
	m.current.touch()
	return m.checkpoint()
}

// PauseExecution marks the current execution paused with the given reason and
// checkpoints. The current slot is deliberately NOT cleared: stage results
// written before the interrupt must survive into the checkpoint, and repeated
// pause/resume cycles must not lose the identity of the run being paused.
func (m *StateManager) PauseExecution(reason string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoActiveExecution
	}
	if reason == "" {
		reason = "paused by operator"
	}

	m.current.Status = ExecPaused
	m.current.Error = reason
	m.current.touch()
	if err := m.checkpoint(); err != nil {
		return nil, err
	}
	return m.current.Clone(), nil
}

// ResumeExecution loads a stored execution into the current slot for
// continuation. The stored record is deep-copied so mutations of the resumed
// run never corrupt the last-known-good checkpoint, and any prior slot
// occupant is cleared first so no state leaks between runs. The resumed copy
// is not checkpointed here; the next stage transition writes it.
func (m *StateManager) ResumeExecution(id string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if stored.Status == ExecCompleted {
		return nil, fmt.Errorf("execution %q: %w", id, ErrAlreadyCompleted)
	}

	m.current = nil

	e := stored.Clone()
	e.Status = ExecRunning
	e.Error = ""
	e.touch()
	m.current = e
	return e, nil
}

// CompleteExecution marks the current execution completed with its final
// result, checkpoints, and clears the slot so a later run can never observe
// a stale current pointer.
func (m *StateManager) CompleteExecution(finalResult any) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoActiveExecution
	}

	if finalResult != nil {
		data, err := json.Marshal(finalResult)
		if err != nil {
			return nil, fmt.Errorf("marshal final result: %w", err)
		}
		m.current.FinalResult = data
	}

	now := time.Now()
	m.current.Status = ExecCompleted
	m.current.CompletedAt = &now
	m.current.Error = ""
	m.current.touch()
	if err := m.checkpoint(); err != nil {
		return nil, err
	}

	done := m.current
	m.current = nil
	return done, nil
}

// FailExecution marks the current execution failed with the given error,
// checkpoints, and clears the slot.
func (m *StateManager) FailExecution(errMsg string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoActiveExecution
	}

	m.current.Status = ExecFailed
	m.current.Error = errMsg
	m.current.touch()
	if err := m.checkpoint(); err != nil {
		return nil, err
	}

	failed := m.current
	m.current = nil
	return failed, nil
}

// StageData returns the committed result data for a stage of the current
// execution, or ok=false when the slot is empty or the stage has no data.
func (m *StateManager) StageData(stage string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, false
	}
	sr := m.current.Stages[stage]
	if sr == nil || len(sr.Data) == 0 {
		return nil, false
	}
	return sr.Data, true
}

// Store exposes the underlying execution store for read-only listing.
func (m *StateManager) Store() *Store {
	return m.store
}

// stage resolves a named stage of the current execution. Caller holds m.mu.
func (m *StateManager) stage(name string) (*StageResult, error) {
	if m.current == nil {
		return nil, ErrNoActiveExecution
	}
	sr := m.current.Stages[name]
	if sr == nil {
		return nil, fmt.Errorf("unknown stage %q", name)
	}
	return sr, nil
}

// checkpoint writes the current execution. Caller holds m.mu.
func (m *StateManager) checkpoint() error {
	if err := m.store.Save(m.current); err != nil {
		return fmt.Errorf("checkpoint %s: %w", m.current.ID, err)
	}
	return nil
}

// ResolveResumable maps an operator reference (an execution id or a
// 1-based ordinal into the newest-first resumable list) to an execution.
func ResolveResumable(execs []*Execution, ref string) (*Execution, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(execs) {
			return nil, fmt.Errorf("ordinal %d out of range: %d resumable execution(s)", n, len(execs))
		}
		return execs[n-1], nil
	}
	for _, e := range execs {
		if e.ID == ref {
			return e, nil
		}
	}
	return nil, fmt.Errorf("execution %q: %w", ref, ErrNotFound)
}
