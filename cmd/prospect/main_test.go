// ABOUTME: Tests for CLI helpers: resumable ordinals for history output and
// ABOUTME: run outcome exit codes.
package main

import (
	"errors"
	"testing"

	"github.com/2389-research/prospect/pipeline"
)

func TestResumableOrdinalsNumbersNewestFirst(t *testing.T) {
	execs := []*pipeline.Execution{
		{ID: "newest", Status: pipeline.ExecPaused},
		{ID: "done", Status: pipeline.ExecCompleted},
		{ID: "older", Status: pipeline.ExecFailed},
		{ID: "oldest", Status: pipeline.ExecRunning},
	}

	ordinals := resumableOrdinals(execs)
	if len(ordinals) != 3 {
		t.Fatalf("got %d ordinals, want 3", len(ordinals))
	}
	if ordinals["newest"] != 1 || ordinals["older"] != 2 || ordinals["oldest"] != 3 {
		t.Errorf("ordinals = %v", ordinals)
	}
	if _, ok := ordinals["done"]; ok {
		t.Error("completed run should not get an ordinal")
	}
}

func TestReportOutcomeExitCodes(t *testing.T) {
	tests := []struct {
		name string
		exec *pipeline.Execution
		err  error
		want int
	}{
		{"error", &pipeline.Execution{ID: "x", Status: pipeline.ExecFailed}, errors.New("boom"), 1},
		{"paused is clean exit", &pipeline.Execution{ID: "x", Status: pipeline.ExecPaused}, nil, 0},
		{"completed", &pipeline.Execution{Entity: "Acme", Status: pipeline.ExecCompleted, Stages: map[string]*pipeline.StageResult{}}, nil, 0},
		{"nil execution", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reportOutcome(tt.exec, tt.err); got != tt.want {
				t.Errorf("reportOutcome = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClip(t *testing.T) {
	if got := clip("short", 10); got != "short" {
		t.Errorf("clip short = %q", got)
	}
	if got := clip("a very long entity name", 10); got != "a very ..." {
		t.Errorf("clip long = %q", got)
	}
}
