// ABOUTME: Lipgloss style constants for the run view: stage statuses, header, footer.
// ABOUTME: StyleForStatus maps a StageStatus to its display style.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/prospect/pipeline"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	PendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	SkippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	LogTimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	LogEventStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	LogErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	FooterStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
)

// StyleForStatus maps a stage status to its display style.
func StyleForStatus(status pipeline.StageStatus) lipgloss.Style {
	switch status {
	case pipeline.StageRunning:
		return RunningStyle
	case pipeline.StageCompleted:
		return CompletedStyle
	case pipeline.StageFailed:
		return FailedStyle
	case pipeline.StageSkipped:
		return SkippedStyle
	}
	return PendingStyle
}
