// ABOUTME: Tests for the StateManager: checkpoint-on-every-transition, pause/resume
// ABOUTME: slot semantics, deep-copy on resume, and resumable reference resolution.
package pipeline

import (
	"errors"
	"strings"
	"testing"
)

func newTestState(t *testing.T) *StateManager {
	t.Helper()
	return NewStateManager(newTestStore(t))
}

func createTestExecution(t *testing.T, m *StateManager, stages ...string) *Execution {
	t.Helper()
	if len(stages) == 0 {
		stages = []string{"discovery", "verification"}
	}
	e, err := m.Create("Acme", "Acme", nil, stages)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return e
}

func TestCreatePersistsImmediately(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m)

	stored, err := m.Store().Get(e.ID)
	if err != nil {
		t.Fatalf("Get after Create: %v", err)
	}
	if stored.Status != ExecPending {
		t.Errorf("stored status = %q, want pending", stored.Status)
	}
	if m.Current() == nil || m.Current().ID != e.ID {
		t.Error("Create did not load the execution into the current slot")
	}
}

func TestStartStageCheckpointsBeforeInvocation(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m)

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	// The checkpoint written by StartStage is what a crash during the stage
	// call would leave behind: stage running, no data.
	stored, err := m.Store().Get(e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != ExecRunning {
		t.Errorf("execution status = %q, want running", stored.Status)
	}
	sr := stored.Stages["discovery"]
	if sr.Status != StageRunning {
		t.Errorf("stage status = %q, want running", sr.Status)
	}
	if len(sr.Data) != 0 {
		t.Errorf("unexpected stage data before completion: %s", sr.Data)
	}
	if sr.StartedAt == nil {
		t.Error("StartedAt not set")
	}
}

func TestCompleteStagePersistsResult(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m)

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := m.CompleteStage("discovery", map[string]string{"name": "Acme"}); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	stored, _ := m.Store().Get(e.ID)
	sr := stored.Stages["discovery"]
	if sr.Status != StageCompleted {
		t.Errorf("stage status = %q, want completed", sr.Status)
	}
	if !strings.Contains(string(sr.Data), `"Acme"`) {
		t.Errorf("stage data = %s, want name Acme", sr.Data)
	}
	if sr.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestFailStageIncrementsRetries(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m)

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := m.FailStage("discovery", "boom"); err != nil {
		t.Fatalf("FailStage: %v", err)
	}
	if err := m.FailStage("discovery", "boom again"); err != nil {
		t.Fatalf("FailStage: %v", err)
	}

	stored, _ := m.Store().Get(e.ID)
	sr := stored.Stages["discovery"]
	if sr.Status != StageFailed || sr.Error != "boom again" {
		t.Errorf("stage = %q/%q, want failed/boom again", sr.Status, sr.Error)
	}
	if sr.Retries != 2 {
		t.Errorf("retries = %d, want 2", sr.Retries)
	}
}

func TestRestoreStageRequiresData(t *testing.T) {
	m := newTestState(t)
	createTestExecution(t, m)

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := m.RestoreStage("discovery"); err == nil {
		t.Error("expected error restoring a stage with no data")
	}

	if err := m.CompleteStage("discovery", "data"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if err := m.RestoreStage("discovery"); err != nil {
		t.Errorf("RestoreStage with data: %v", err)
	}
}

func TestUnknownStage(t *testing.T) {
	m := newTestState(t)
	createTestExecution(t, m)

	if err := m.StartStage("nope"); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestMutationsWithoutActiveExecution(t *testing.T) {
	m := newTestState(t)

	if err := m.StartStage("discovery"); !errors.Is(err, ErrNoActiveExecution) {
		t.Errorf("StartStage: %v, want ErrNoActiveExecution", err)
	}
	if _, err := m.PauseExecution("x"); !errors.Is(err, ErrNoActiveExecution) {
		t.Errorf("PauseExecution: %v, want ErrNoActiveExecution", err)
	}
	if _, err := m.CompleteExecution(nil); !errors.Is(err, ErrNoActiveExecution) {
		t.Errorf("CompleteExecution: %v, want ErrNoActiveExecution", err)
	}
}

func TestPauseKeepsSlotAndCheckpoints(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m)

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := m.CompleteStage("discovery", "data"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	paused, err := m.PauseExecution("operator interrupt")
	if err != nil {
		t.Fatalf("PauseExecution: %v", err)
	}
	if paused.Status != ExecPaused {
		t.Errorf("status = %q, want paused", paused.Status)
	}

	// Completed stage results survive the pause checkpoint.
	stored, _ := m.Store().Get(e.ID)
	if stored.Status != ExecPaused {
		t.Errorf("stored status = %q, want paused", stored.Status)
	}
	if stored.Stages["discovery"].Status != StageCompleted {
		t.Error("completed stage lost across pause checkpoint")
	}

	// The slot still references the paused run.
	if cur := m.Current(); cur == nil || cur.ID != e.ID {
		t.Error("pause cleared the current slot")
	}
}

func TestResumeDeepCopiesAndClearsSlotFirst(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m)

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := m.CompleteStage("discovery", "data"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if _, err := m.PauseExecution("interrupt"); err != nil {
		t.Fatalf("PauseExecution: %v", err)
	}

	resumed, err := m.ResumeExecution(e.ID)
	if err != nil {
		t.Fatalf("ResumeExecution: %v", err)
	}
	if resumed.Status != ExecRunning {
		t.Errorf("resumed status = %q, want running", resumed.Status)
	}
	if resumed.Error != "" {
		t.Errorf("resumed error = %q, want cleared", resumed.Error)
	}

	// Mutating the resumed copy must not corrupt the stored checkpoint until
	// the next transition checkpoints it.
	resumed.Stages["discovery"].Data[1] = 'X'
	resumed.Stages["discovery"].Status = StageFailed
	stored, _ := m.Store().Get(e.ID)
	if string(stored.Stages["discovery"].Data) != `"data"` {
		t.Errorf("resumed copy shares data with stored checkpoint: %s", stored.Stages["discovery"].Data)
	}
	if stored.Stages["discovery"].Status != StageCompleted {
		t.Error("resumed copy shares stage results with stored checkpoint")
	}
	if stored.Status != ExecPaused {
		t.Errorf("resume checkpointed prematurely: stored status = %q", stored.Status)
	}
}

func TestResumeSwapsSlotWithoutLeakage(t *testing.T) {
	m := newTestState(t)

	a := NewExecution("Acme", "Acme", []string{"CTO"}, []string{"discovery"})
	a.Status = ExecPaused
	b := NewExecution("Globex", "Globex", nil, []string{"discovery"})
	b.Status = ExecPaused
	for _, e := range []*Execution{a, b} {
		if err := m.Store().Save(e); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if _, err := m.ResumeExecution(a.ID); err != nil {
		t.Fatalf("resume A: %v", err)
	}
	if _, err := m.ResumeExecution(b.ID); err != nil {
		t.Fatalf("resume B: %v", err)
	}

	cur := m.Current()
	if cur == nil || cur.ID != b.ID {
		t.Fatalf("current = %+v, want B", cur)
	}
	if cur.Entity != "Globex" || len(cur.Roles) != 0 {
		t.Errorf("B carries A's fields: %+v", cur)
	}

	// Mutating through the slot touches only B's stored record.
	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	storedA, err := m.Store().Get(a.ID)
	if err != nil {
		t.Fatalf("Get A: %v", err)
	}
	if storedA.Stages["discovery"].Status != StagePending {
		t.Errorf("A's stage mutated via B's slot: %q", storedA.Stages["discovery"].Status)
	}
}

func TestResumeCompletedExecution(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m, "discovery")

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := m.CompleteStage("discovery", "data"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if _, err := m.CompleteExecution("final"); err != nil {
		t.Fatalf("CompleteExecution: %v", err)
	}

	if _, err := m.ResumeExecution(e.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("resume completed: %v, want ErrAlreadyCompleted", err)
	}
}

func TestCompleteExecutionClearsSlot(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m, "discovery")

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := m.CompleteStage("discovery", "data"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	done, err := m.CompleteExecution(map[string]string{"verdict": "ok"})
	if err != nil {
		t.Fatalf("CompleteExecution: %v", err)
	}
	if done.Status != ExecCompleted || done.CompletedAt == nil {
		t.Errorf("done = %q/%v, want completed with timestamp", done.Status, done.CompletedAt)
	}
	if !strings.Contains(string(done.FinalResult), "verdict") {
		t.Errorf("final result = %s", done.FinalResult)
	}
	if m.Current() != nil {
		t.Error("CompleteExecution left the slot occupied")
	}

	stored, _ := m.Store().Get(e.ID)
	if stored.Status != ExecCompleted {
		t.Errorf("stored status = %q, want completed", stored.Status)
	}
}

func TestFailExecutionClearsSlot(t *testing.T) {
	m := newTestState(t)
	e := createTestExecution(t, m)

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	failed, err := m.FailExecution("stage exploded")
	if err != nil {
		t.Fatalf("FailExecution: %v", err)
	}
	if failed.Status != ExecFailed || failed.Error != "stage exploded" {
		t.Errorf("failed = %q/%q", failed.Status, failed.Error)
	}
	if m.Current() != nil {
		t.Error("FailExecution left the slot occupied")
	}

	stored, _ := m.Store().Get(e.ID)
	if stored.Status != ExecFailed {
		t.Errorf("stored status = %q, want failed", stored.Status)
	}
}

func TestStageData(t *testing.T) {
	m := newTestState(t)
	createTestExecution(t, m)

	if _, ok := m.StageData("discovery"); ok {
		t.Error("expected no data before completion")
	}

	if err := m.StartStage("discovery"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := m.CompleteStage("discovery", "payload"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	data, ok := m.StageData("discovery")
	if !ok || string(data) != `"payload"` {
		t.Errorf("StageData = %s, %v", data, ok)
	}
}

func TestResolveResumable(t *testing.T) {
	a := NewExecution("A", "A", nil, []string{"discovery"})
	b := NewExecution("B", "B", nil, []string{"discovery"})
	execs := []*Execution{b, a} // newest first

	got, err := ResolveResumable(execs, "1")
	if err != nil || got.ID != b.ID {
		t.Errorf("ordinal 1 = %v, %v; want newest", got, err)
	}
	got, err = ResolveResumable(execs, "2")
	if err != nil || got.ID != a.ID {
		t.Errorf("ordinal 2 = %v, %v; want oldest", got, err)
	}
	if _, err := ResolveResumable(execs, "3"); err == nil {
		t.Error("expected out-of-range error for ordinal 3")
	}

	got, err = ResolveResumable(execs, a.ID)
	if err != nil || got.ID != a.ID {
		t.Errorf("by id = %v, %v", got, err)
	}
	if _, err := ResolveResumable(execs, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown ref: %v, want ErrNotFound", err)
	}
}
