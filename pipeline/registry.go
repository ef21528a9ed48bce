// ABOUTME: Ordered named stage registry and the Task passed to stage functions.
// ABOUTME: Stages are pure functions of (task, context) -> (result, error) with per-stage failure policy.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// Task carries everything a stage function may read: the original input, the
// normalized entity, the context bundle assembled for this invocation, and
// the committed results of prior stages.
type Task struct {
	ExecutionID string
	Input       string
	Entity      string
	Roles       []string

	// Context is the bounded context bundle from the context builder. Empty
	// when no builder is configured.
	Context string

	// Results maps completed stage names to their committed result data.
	Results map[string]json.RawMessage
}

// Result unmarshals a prior stage's committed data into v. Returns false
// when the stage has no committed data.
func (t *Task) Result(stage string, v any) (bool, error) {
	data, ok := t.Results[stage]
	if !ok || len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s result: %w", stage, err)
	}
	return true, nil
}

// StageFunc is one unit of pipeline work. External-service failures must be
// returned as errors, never panics; the engine converts them into recorded
// stage failures.
type StageFunc func(ctx context.Context, task *Task) (any, error)

// Stage is a named pipeline stage with its failure policy.
type Stage struct {
	Name string
	Run  StageFunc

	// Optional stages fail soft: on error the stage is marked failed but the
	// run continues with degraded data.
	Optional bool

	// Retry is the in-run retry policy. Zero value means a single attempt.
	Retry RetryPolicy
}

// Registry is the ordered sequence of stages for a pipeline.
type Registry struct {
	stages []Stage
	index  map[string]int
}

// NewRegistry validates and builds a registry. Stage names must be unique
// and non-empty, and every stage needs a Run function.
func NewRegistry(stages ...Stage) (*Registry, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("registry needs at least one stage")
	}

	index := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage %d has no name", i)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("stage %q has no run function", s.Name)
		}
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", s.Name)
		}
		index[s.Name] = i
	}
	return &Registry{stages: stages, index: index}, nil
}

// Stages returns the stages in order.
func (r *Registry) Stages() []Stage {
	return r.stages
}

// Names returns the stage names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name
	}
	return names
}

// Index returns the position of a stage by name, or -1 if unknown.
func (r *Registry) Index(name string) int {
	i, ok := r.index[name]
	if !ok {
		return -1
	}
	return i
}
