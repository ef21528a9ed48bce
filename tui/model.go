// ABOUTME: Bubble Tea model rendering a live research run: stage list, event log, status footer.
// ABOUTME: Implements tea.Model; quit requests a cooperative engine stop before exiting.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/prospect/pipeline"
)

const maxLogLines = 8

// Model is the Bubble Tea model for a single research run.
type Model struct {
	engine *pipeline.Engine
	runCmd tea.Cmd
	entity string

	spinner    spinner.Model
	stageOrder []string
	statuses   map[string]pipeline.StageStatus
	active     string
	log        []string

	startedAt time.Time
	elapsed   time.Duration
	done      bool
	stopping  bool
	exec      *pipeline.Execution
	err       error
	width     int
}

// NewModel creates a run view. runCmd is the command that drives the engine
// (RunCmd or ResumeCmd); stageOrder is the registry's stage names in order.
func NewModel(engine *pipeline.Engine, runCmd tea.Cmd, entity string, stageOrder []string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = RunningStyle

	statuses := make(map[string]pipeline.StageStatus, len(stageOrder))
	for _, name := range stageOrder {
		statuses[name] = pipeline.StagePending
	}

	return Model{
		engine:     engine,
		runCmd:     runCmd,
		entity:     entity,
		spinner:    sp,
		stageOrder: stageOrder,
		statuses:   statuses,
		startedAt:  time.Now(),
	}
}

// Exec returns the finished execution, if the run produced one.
func (m Model) Exec() *pipeline.Execution {
	return m.exec
}

// Err returns the run error, if any.
func (m Model) Err() error {
	return m.err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.runCmd, m.spinner.Tick, TickCmd(time.Second))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done {
				return m, tea.Quit
			}
			// Cooperative stop: the run pauses at the next safe point and a
			// RunResultMsg arrives once the checkpoint is committed.
			m.stopping = true
			m.engine.Stop()
			return m, nil
		}
		return m, nil

	case EngineEventMsg:
		return m.handleEvent(msg.Event), nil

	case RunResultMsg:
		m.done = true
		m.exec = msg.Exec
		m.err = msg.Err
		m.elapsed = time.Since(m.startedAt)
		return m, tea.Quit

	case TickMsg:
		if !m.done {
			m.elapsed = time.Since(m.startedAt)
			return m, TickCmd(time.Second)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleEvent(evt pipeline.Event) Model {
	switch evt.Type {
	case pipeline.EventStageStarted:
		m.statuses[evt.Stage] = pipeline.StageRunning
		m.active = evt.Stage
	case pipeline.EventStageCompleted, pipeline.EventStageRestored:
		m.statuses[evt.Stage] = pipeline.StageCompleted
		m.active = ""
	case pipeline.EventStageFailed:
		m.statuses[evt.Stage] = pipeline.StageFailed
		m.active = ""
	case pipeline.EventStageSkipped:
		m.statuses[evt.Stage] = pipeline.StageSkipped
	}

	m.log = append(m.log, formatEvent(evt))
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("prospect: "+m.entity) + "\n\n")

	for _, name := range m.stageOrder {
		status := m.statuses[name]
		marker := "  "
		if name == m.active && !m.done {
			marker = m.spinner.View()
		}
		line := fmt.Sprintf("%s %-14s %s", marker, name, statusLabel(status))
		b.WriteString(StyleForStatus(status).Render(line) + "\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n" + FooterStyle.Render(m.footer()) + "\n")
	return b.String()
}

func (m Model) footer() string {
	elapsed := m.elapsed.Round(time.Second)
	switch {
	case m.done && m.err != nil:
		return fmt.Sprintf("failed after %s: %v", elapsed, m.err)
	case m.done && m.exec != nil:
		return fmt.Sprintf("%s in %s (q to exit)", m.exec.Status, elapsed)
	case m.stopping:
		return fmt.Sprintf("stopping at next safe point... %s", elapsed)
	}
	return fmt.Sprintf("running %s (q to stop)", elapsed)
}

func statusLabel(status pipeline.StageStatus) string {
	switch status {
	case pipeline.StageCompleted:
		return "done"
	case pipeline.StageFailed:
		return "failed"
	case pipeline.StageSkipped:
		return "skipped"
	case pipeline.StageRunning:
		return "running"
	}
	return "pending"
}

func formatEvent(evt pipeline.Event) string {
	ts := LogTimestampStyle.Render(evt.Timestamp.Format("15:04:05"))
	label := string(evt.Type)
	if evt.Stage != "" {
		label += " " + evt.Stage
	}
	style := LogEventStyle
	if evt.Type == pipeline.EventStageFailed || evt.Type == pipeline.EventRunFailed {
		style = LogErrorStyle
		if msg, ok := evt.Data["error"].(string); ok && msg != "" {
			label += ": " + truncateLine(msg, 60)
		}
	}
	return ts + " " + style.Render(label)
}

func truncateLine(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
