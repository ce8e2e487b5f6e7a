package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	panelStyle    lipgloss.Style
	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	graphStyle    lipgloss.Style
	helpStyle     lipgloss.Style
	dialStyle     lipgloss.Style
	statusLocked  lipgloss.Style
	statusLocking lipgloss.Style
	statusFault   lipgloss.Style
	statusPaused  lipgloss.Style
)

func init() {
	applyTheme(CurrentTheme)
}

func applyTheme(t Theme) {
	panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Muted).
		Padding(1, 2).
		Width(46)
	headerStyle = lipgloss.NewStyle().Foreground(t.Primary).Bold(true).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(t.Muted).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(t.Text)
	graphStyle = lipgloss.NewStyle().Foreground(t.Accent).Padding(1, 0)
	helpStyle = lipgloss.NewStyle().Foreground(t.Muted).Italic(true).MarginTop(1)
	dialStyle = lipgloss.NewStyle().Foreground(t.Primary).Padding(1, 2)
	statusLocked = lipgloss.NewStyle().Foreground(t.Success).Bold(true)
	statusLocking = lipgloss.NewStyle().Foreground(t.Warning).Bold(true)
	statusFault = lipgloss.NewStyle().Foreground(t.Error).Bold(true)
	statusPaused = lipgloss.NewStyle().Foreground(t.Muted).Bold(true)
}

// ProgressBar renders fraction (0..1) of width cells.
func ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	filled = max(0, min(filled, width))
	return valueStyle.Render(strings.Repeat("█", filled) + strings.Repeat("░", width-filled))
}
