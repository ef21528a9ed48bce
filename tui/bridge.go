// ABOUTME: Bridge connecting the pipeline engine to the Bubble Tea message loop.
// ABOUTME: Provides an event Sink plus tea.Cmd factories for running and ticking.
package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/prospect/pipeline"
)

// EventBridge wraps a tea.Program's Send method for injecting engine events
// into the Bubble Tea message loop. The send function can be attached after
// construction because the engine sink is wired before the program exists.
type EventBridge struct {
	mu   sync.RWMutex
	send func(msg tea.Msg)
}

// NewEventBridge creates an EventBridge that sends messages via the given
// function. Typically called with program.Send, or nil followed by SetSend.
func NewEventBridge(send func(msg tea.Msg)) *EventBridge {
	return &EventBridge{send: send}
}

// SetSend attaches the program's Send method. Events arriving before SetSend
// are dropped.
func (b *EventBridge) SetSend(send func(msg tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

// HandleEvent satisfies pipeline.Sink. It wraps the event in an
// EngineEventMsg and sends it to the TUI.
func (b *EventBridge) HandleEvent(evt pipeline.Event) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send != nil {
		send(EngineEventMsg{Event: evt})
	}
}

// RunCmd returns a tea.Cmd that starts a new run for the given input. When
// the run finishes (or fails), it sends a RunResultMsg.
func RunCmd(ctx context.Context, engine *pipeline.Engine, input string) tea.Cmd {
	return func() tea.Msg {
		exec, err := engine.Run(ctx, input)
		return RunResultMsg{Exec: exec, Err: err}
	}
}

// ResumeCmd returns a tea.Cmd that resumes a stored execution by ID.
func ResumeCmd(ctx context.Context, engine *pipeline.Engine, id string) tea.Cmd {
	return func() tea.Msg {
		exec, err := engine.Resume(ctx, id)
		return RunResultMsg{Exec: exec, Err: err}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
