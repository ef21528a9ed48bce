// ABOUTME: Execution and StageResult data model for resumable research pipeline runs.
// ABOUTME: Provides ULID run id generation, query parsing, resume-point lookup, and deep cloning.
package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ExecutionStatus is the lifecycle status of a pipeline run.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "pending"
	ExecRunning   ExecutionStatus = "running"
	ExecPaused    ExecutionStatus = "paused"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
)

// StageStatus is the status of a single stage within an execution.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageResult records the outcome of one stage. A stage interrupted mid-flight
// is left as "running" with no Data; a stage that committed partial data before
// an interrupt keeps that Data alongside the "running" status.
type StageResult struct {
	Status      StageStatus     `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Retries     int             `json:"retries"`
}

// Execution is one end-to-end pipeline run for one input. It is the unit of
// checkpointing: every mutation is followed by an atomic write of the whole
// record.
type Execution struct {
	ID          string                  `json:"id"`
	Input       string                  `json:"input"`
	Entity      string                  `json:"entity"`
	Roles       []string                `json:"roles,omitempty"`
	Status      ExecutionStatus         `json:"status"`
	StageOrder  []string                `json:"stage_order"`
	Stages      map[string]*StageResult `json:"stages"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Error       string                  `json:"error,omitempty"`
	FinalResult json.RawMessage         `json:"final_result,omitempty"`
}

// NewExecutionID produces a ULID run id. ULIDs sort lexically by creation
// time, so newest-first listings fall out of a reverse string sort.
func NewExecutionID() string {
	return ulid.Make().String()
}

// NewExecution creates a pending execution with one pending StageResult per
// stage in order.
func NewExecution(input, entity string, roles, stageOrder []string) *Execution {
	now := time.Now()
	stages := make(map[string]*StageResult, len(stageOrder))
	for _, name := range stageOrder {
		stages[name] = &StageResult{Status: StagePending}
	}
	return &Execution{
		ID:         NewExecutionID(),
		Input:      input,
		Entity:     entity,
		Roles:      roles,
		Status:     ExecPending,
		StageOrder: stageOrder,
		Stages:     stages,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Stage returns the StageResult for the named stage, or nil if unknown.
func (e *Execution) Stage(name string) *StageResult {
	return e.Stages[name]
}

// ResumePoint returns the first stage whose status is not completed or
// skipped. ok is false when every stage is already satisfied.
func (e *Execution) ResumePoint() (name string, ok bool) {
	for _, stage := range e.StageOrder {
		sr := e.Stages[stage]
		if sr == nil {
			return stage, true
		}
		if sr.Status != StageCompleted && sr.Status != StageSkipped {
			return stage, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the execution. Mutating the clone never
// affects the original's stage results or raw data, which is what keeps a
// resumed run from corrupting the last-known-good checkpoint.
func (e *Execution) Clone() *Execution {
	cp := *e
	cp.Roles = append([]string(nil), e.Roles...)
	cp.StageOrder = append([]string(nil), e.StageOrder...)
	cp.Stages = make(map[string]*StageResult, len(e.Stages))
	for name, sr := range e.Stages {
		s := *sr
		s.Data = append(json.RawMessage(nil), sr.Data...)
		if sr.StartedAt != nil {
			t := *sr.StartedAt
			s.StartedAt = &t
		}
		if sr.CompletedAt != nil {
			t := *sr.CompletedAt
			s.CompletedAt = &t
		}
		cp.Stages[name] = &s
	}
	cp.FinalResult = append(json.RawMessage(nil), e.FinalResult...)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (e *Execution) touch() {
	e.UpdatedAt = time.Now()
}

// ParseQuery splits an operator query like
// "Acme Robotics, Roles: CTO, VP Engineering" into the target entity and the
// requested roles. Without a "Roles:" marker the whole query is the entity.
func ParseQuery(input string) (entity string, roles []string) {
	entity = strings.TrimSpace(input)

	lower := strings.ToLower(input)
	idx := strings.Index(lower, "roles:")
	if idx < 0 {
		return entity, nil
	}

	entity = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(input[:idx]), ","))
	for _, r := range strings.Split(input[idx+len("roles:"):], ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return entity, roles
}
