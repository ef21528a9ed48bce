// ABOUTME: Pipeline orchestrator: run loop, cooperative interrupt handling, resume-point logic.
// ABOUTME: Drives the stage registry against the StateManager, emitting one event per state transition.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrRunInProgress is returned when Run or Resume is called while another
// execution is already being driven by this engine.
var ErrRunInProgress = errors.New("a run is already in progress")

// ContextBuilder assembles the bounded context bundle injected into each
// stage invocation.
type ContextBuilder interface {
	Build(entity, stage string, exec *Execution) string
}

// Recorder receives run observations for cross-run learning. Recorded data
// biases future context, never correctness.
type Recorder interface {
	Observe(eventType string, payload map[string]any, importance int)
	RecordOutcome(entity, stage string, success bool, elapsed time.Duration)
	EndRun(entity, status string)
}

// EngineConfig wires the orchestrator's collaborators. State and Registry
// are required; the rest are optional.
type EngineConfig struct {
	State    *StateManager
	Registry *Registry
	Context  ContextBuilder
	Recorder Recorder
	Sink     Sink
}

// Engine is the pipeline orchestrator. One engine drives at most one
// execution at a time; stages run strictly sequentially because each stage's
// context depends on prior stages' results.
type Engine struct {
	state    *StateManager
	registry *Registry
	builder  ContextBuilder
	recorder Recorder
	sink     Sink
	stopped  atomic.Bool
	running  atomic.Bool
}

// NewEngine creates an orchestrator from the given configuration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.State == nil {
		return nil, fmt.Errorf("engine config: State is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine config: Registry is required")
	}
	return &Engine{
		state:    cfg.State,
		registry: cfg.Registry,
		builder:  cfg.Context,
		recorder: cfg.Recorder,
		sink:     cfg.Sink,
	}, nil
}

// Run creates a new execution for the input and drives it through every
// stage. A cooperative interrupt (Stop or context cancellation) returns the
// execution in paused state with a nil error; callers distinguish outcomes
// by Status.
func (e *Engine) Run(ctx context.Context, input string) (*Execution, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.running.Store(false)

	entity, roles := ParseQuery(input)
	if entity == "" {
		return nil, fmt.Errorf("empty input")
	}

	exec, err := e.state.Create(input, entity, roles, e.registry.Names())
	if err != nil {
		return nil, err
	}

	e.emit(Event{Type: EventRunStarted, ExecutionID: exec.ID, Data: map[string]any{
		"input":  input,
		"entity": entity,
	}})

	return e.execute(ctx, exec, 0)
}

// Resume reloads a stored execution and continues from the resume point: the
// first stage not completed. A "running" stage with committed data is
// restored without re-running (partial recovery); a "running" or "failed"
// stage with no data is re-run from scratch with an explicit fresh-start
// event so stale status strings never set false expectations.
func (e *Engine) Resume(ctx context.Context, id string) (*Execution, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.running.Store(false)

	exec, err := e.state.ResumeExecution(id)
	if err != nil {
		return nil, err
	}

	resumeStage, pending := exec.ResumePoint()
	if !pending {
		// Interrupted after the last stage committed: just finalize.
		e.emit(Event{Type: EventRunResumed, ExecutionID: exec.ID})
		return e.finish(exec)
	}

	idx := e.registry.Index(resumeStage)
	if idx < 0 {
		return exec, fmt.Errorf("checkpoint references unknown stage %q", resumeStage)
	}

	e.emit(Event{Type: EventRunResumed, ExecutionID: exec.ID, Stage: resumeStage})

	sr := exec.Stage(resumeStage)
	startIdx := idx
	switch {
	case sr.Status == StageRunning && len(sr.Data) > 0:
		if err := e.state.RestoreStage(resumeStage); err != nil {
			return exec, err
		}
		e.emit(Event{Type: EventStageRestored, ExecutionID: exec.ID, Stage: resumeStage, Data: map[string]any{
			"message": "data preserved from interrupted run, stage not re-run",
		}})
		startIdx = idx + 1
	case (sr.Status == StageRunning || sr.Status == StageFailed) && len(sr.Data) == 0:
		e.emit(Event{Type: EventStageFreshStart, ExecutionID: exec.ID, Stage: resumeStage, Data: map[string]any{
			"message": "no data preserved for stage, starting fresh",
		}})
	}

	return e.execute(ctx, exec, startIdx)
}

// Stop requests an interrupt of the current run at the next safe point:
// after the in-flight stage call returns, or immediately if between stages.
// Idempotent; safe to call with nothing running.
func (e *Engine) Stop() {
	e.stopped.Store(true)
}

// Busy reports whether the engine is currently driving an execution.
func (e *Engine) Busy() bool {
	return e.running.Load()
}

// acquire claims the single run slot. Run and Resume hold it for their whole
// lifetime: overlapping calls would fight over the StateManager's current
// slot and cross-contaminate checkpoints.
func (e *Engine) acquire() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	e.stopped.Store(false)
	return nil
}

// execute drives stages[startIdx:] to completion, pausing on interrupt.
func (e *Engine) execute(ctx context.Context, exec *Execution, startIdx int) (*Execution, error) {
	task := e.newTask(exec)
	stages := e.registry.Stages()

	for i := startIdx; i < len(stages); i++ {
		st := stages[i]

		if reason, interrupted := e.interrupted(ctx); interrupted {
			return e.pause(exec, reason)
		}

		// Satisfied on a prior run (restored or skipped); never re-run.
		if sr := exec.Stage(st.Name); sr != nil &&
			(sr.Status == StageCompleted || sr.Status == StageSkipped) {
			continue
		}

		task.Context = ""
		if e.builder != nil {
			task.Context = e.builder.Build(exec.Entity, st.Name, exec)
		}

		e.emit(Event{Type: EventStageStarted, ExecutionID: exec.ID, Stage: st.Name})
		if err := e.state.StartStage(st.Name); err != nil {
			return exec, err
		}

		started := time.Now()
		result, err := e.runWithRetry(ctx, st, task)
		elapsed := time.Since(started)

		if err != nil {
			// An interrupt observed mid-stage: the stage stays exactly as
			// last checkpointed (running, no data) and the run pauses.
			if reason, interrupted := e.interruptError(ctx, err); interrupted {
				return e.pause(exec, reason)
			}

			if ferr := e.state.FailStage(st.Name, err.Error()); ferr != nil {
				return exec, ferr
			}
			e.recordOutcome(exec.Entity, st.Name, false, elapsed)
			e.emit(Event{Type: EventStageFailed, ExecutionID: exec.ID, Stage: st.Name, Data: map[string]any{
				"error": err.Error(),
			}})

			if st.Optional {
				reason := fmt.Sprintf("optional stage failed, continuing with degraded data: %v", err)
				if serr := e.state.SkipStage(st.Name, reason); serr != nil {
					return exec, serr
				}
				e.observe("stage_degraded", map[string]any{"stage": st.Name, "error": err.Error()}, 6)
				e.emit(Event{Type: EventStageSkipped, ExecutionID: exec.ID, Stage: st.Name, Data: map[string]any{
					"reason": reason,
				}})
				continue
			}

			msg := fmt.Sprintf("stage %q failed: %v", st.Name, err)
			failed, ferr := e.state.FailExecution(msg)
			if ferr != nil {
				return exec, ferr
			}
			e.emit(Event{Type: EventRunFailed, ExecutionID: exec.ID, Data: map[string]any{"error": msg}})
			e.endRun(exec.Entity, failed.Status)
			return failed, fmt.Errorf("%s", msg)
		}

		if err := e.state.CompleteStage(st.Name, result); err != nil {
			return exec, err
		}
		task.Results[st.Name] = exec.Stages[st.Name].Data
		e.recordOutcome(exec.Entity, st.Name, true, elapsed)
		e.observe("stage_completed", map[string]any{
			"stage":      st.Name,
			"elapsed_ms": elapsed.Milliseconds(),
		}, 5)
		e.emit(Event{Type: EventStageCompleted, ExecutionID: exec.ID, Stage: st.Name, Data: map[string]any{
			"result": json.RawMessage(exec.Stages[st.Name].Data),
		}})
	}

	if reason, interrupted := e.interrupted(ctx); interrupted {
		return e.pause(exec, reason)
	}
	return e.finish(exec)
}

// finish commits the terminal completed transition and emits its event.
func (e *Engine) finish(exec *Execution) (*Execution, error) {
	completed, err := e.state.CompleteExecution(finalResult(exec))
	if err != nil {
		return exec, err
	}
	e.emit(Event{Type: EventRunCompleted, ExecutionID: exec.ID})
	e.endRun(exec.Entity, completed.Status)
	return completed, nil
}

// pause commits the paused transition and emits its event. No further
// mutation happens after this point.
func (e *Engine) pause(exec *Execution, reason string) (*Execution, error) {
	paused, err := e.state.PauseExecution(reason)
	if err != nil {
		return exec, err
	}
	e.emit(Event{Type: EventRunPaused, ExecutionID: exec.ID, Data: map[string]any{"reason": reason}})
	return paused, nil
}

// runWithRetry executes a stage under its retry policy, emitting a retrying
// event before every re-attempt.
func (e *Engine) runWithRetry(ctx context.Context, st Stage, task *Task) (any, error) {
	policy := st.Retry.normalize()

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			e.emit(Event{Type: EventStageRetrying, ExecutionID: task.ExecutionID, Stage: st.Name, Data: map[string]any{
				"attempt": attempt + 1,
			}})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.Backoff.DelayForAttempt(attempt - 1)):
			}
		}

		result, err := safeRun(ctx, st, task)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.ShouldRetry(err) || e.stopped.Load() {
			break
		}
	}
	return nil, lastErr
}

// safeRun converts a stage panic into an error so a misbehaving stage can
// never propagate past the stage boundary uncaught.
func safeRun(ctx context.Context, st Stage, task *Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %q panicked: %v", st.Name, r)
		}
	}()
	return st.Run(ctx, task)
}

// interrupted reports a pending cooperative interrupt between stages.
func (e *Engine) interrupted(ctx context.Context) (reason string, ok bool) {
	select {
	case <-ctx.Done():
		return "interrupt signal received: " + ctx.Err().Error(), true
	default:
	}
	if e.stopped.Load() {
		return "stop requested by operator", true
	}
	return "", false
}

// interruptError reports whether a stage error was caused by an interrupt
// rather than a genuine stage failure.
func (e *Engine) interruptError(ctx context.Context, err error) (reason string, ok bool) {
	if ctx.Err() != nil {
		return "interrupt signal received: " + ctx.Err().Error(), true
	}
	if e.stopped.Load() {
		return "stop requested by operator", true
	}
	return "", false
}

// newTask builds the stage task, prefilling results already committed by a
// prior run.
func (e *Engine) newTask(exec *Execution) *Task {
	results := make(map[string]json.RawMessage)
	for name, sr := range exec.Stages {
		if sr.Status == StageCompleted && len(sr.Data) > 0 {
			results[name] = sr.Data
		}
	}
	return &Task{
		ExecutionID: exec.ID,
		Input:       exec.Input,
		Entity:      exec.Entity,
		Roles:       append([]string(nil), exec.Roles...),
		Results:     results,
	}
}

// finalResult picks the last stage in order with committed data.
func finalResult(exec *Execution) any {
	for i := len(exec.StageOrder) - 1; i >= 0; i-- {
		sr := exec.Stages[exec.StageOrder[i]]
		if sr != nil && len(sr.Data) > 0 {
			return json.RawMessage(sr.Data)
		}
	}
	return nil
}

func (e *Engine) emit(evt Event) {
	if e.sink == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	e.sink(evt)
}

func (e *Engine) observe(eventType string, payload map[string]any, importance int) {
	if e.recorder != nil {
		e.recorder.Observe(eventType, payload, importance)
	}
}

func (e *Engine) recordOutcome(entity, stage string, success bool, elapsed time.Duration) {
	if e.recorder != nil {
		e.recorder.RecordOutcome(entity, stage, success, elapsed)
	}
}

func (e *Engine) endRun(entity string, status ExecutionStatus) {
	if e.recorder != nil {
		e.recorder.EndRun(entity, string(status))
	}
}
