// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Each type wraps a domain event or result for the tea.Msg interface.
package tui

import (
	"time"

	"github.com/2389-research/prospect/pipeline"
)

// EngineEventMsg wraps a pipeline.Event for the Bubble Tea message loop.
type EngineEventMsg struct {
	Event pipeline.Event
}

// RunResultMsg signals that the run has finished executing.
type RunResultMsg struct {
	Exec *pipeline.Execution
	Err  error
}

// TickMsg is sent periodically to update the elapsed timer.
type TickMsg struct {
	Time time.Time
}
