// ABOUTME: Tests for the engine-to-TUI event bridge and tea.Cmd factories.
package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/prospect/pipeline"
)

func TestBridgeDropsEventsBeforeSendAttached(t *testing.T) {
	b := NewEventBridge(nil)
	// Must not panic with no send function.
	b.HandleEvent(pipeline.Event{Type: pipeline.EventStageStarted, Stage: "discovery"})
}

func TestBridgeForwardsEventsAfterSetSend(t *testing.T) {
	var got []tea.Msg
	b := NewEventBridge(nil)
	b.SetSend(func(msg tea.Msg) { got = append(got, msg) })

	evt := pipeline.Event{Type: pipeline.EventStageCompleted, Stage: "discovery"}
	b.HandleEvent(evt)

	if len(got) != 1 {
		t.Fatalf("forwarded %d messages, want 1", len(got))
	}
	msg, ok := got[0].(EngineEventMsg)
	if !ok {
		t.Fatalf("message type = %T", got[0])
	}
	if msg.Event.Type != pipeline.EventStageCompleted || msg.Event.Stage != "discovery" {
		t.Errorf("event = %+v", msg.Event)
	}
}

func TestRunCmdProducesRunResult(t *testing.T) {
	engine := newTestEngine(t)

	msg := RunCmd(context.Background(), engine, "Acme Robotics")()
	result, ok := msg.(RunResultMsg)
	if !ok {
		t.Fatalf("message type = %T", msg)
	}
	if result.Err != nil {
		t.Fatalf("run error: %v", result.Err)
	}
	if result.Exec == nil || result.Exec.Status != pipeline.ExecCompleted {
		t.Errorf("exec = %+v", result.Exec)
	}
}

func TestResumeCmdReportsMissingExecution(t *testing.T) {
	engine := newTestEngine(t)

	msg := ResumeCmd(context.Background(), engine, "no-such-id")()
	result, ok := msg.(RunResultMsg)
	if !ok {
		t.Fatalf("message type = %T", msg)
	}
	if result.Err == nil {
		t.Error("expected error resuming unknown execution")
	}
}

func TestTickCmdSendsTickMsg(t *testing.T) {
	msg := TickCmd(time.Millisecond)()
	if _, ok := msg.(TickMsg); !ok {
		t.Errorf("message type = %T, want TickMsg", msg)
	}
}
