// Package cli drives wizard sessions in a terminal with lipgloss-styled output.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	blush = lipgloss.Color("#E8A0BF")
	teal  = lipgloss.Color("#4ECDC4")
	amber = lipgloss.Color("#FFE66D")
	coral = lipgloss.Color("#FF6B6B")
	mint  = lipgloss.Color("#95E1D3")
	gray  = lipgloss.Color("#666666")
	rule  = lipgloss.Color("#333")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(blush).MarginBottom(1)
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(blush)
	successStyle = lipgloss.NewStyle().Foreground(teal)
	warningStyle = lipgloss.NewStyle().Foreground(amber)
	errorStyle   = lipgloss.NewStyle().Foreground(coral)
	infoStyle    = lipgloss.NewStyle().Foreground(mint)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(rule).
			Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(rule)

	cellStyle = lipgloss.NewStyle().PaddingRight(2)

	// SubtleStyle dims secondary text such as step hints and defaults.
	SubtleStyle = lipgloss.NewStyle().Foreground(gray)
)

// Message icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	RingIcon    = "💍"
	LockIcon    = "🔒"
)

func withIcon(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess renders a completed-action line.
func FormatSuccess(message string) string { return withIcon(successStyle, SuccessIcon, message) }

// FormatError renders a failure line.
func FormatError(message string) string { return withIcon(errorStyle, ErrorIcon, message) }

// FormatWarning renders a caution line.
func FormatWarning(message string) string { return withIcon(warningStyle, WarningIcon, message) }

// FormatInfo renders a neutral notice.
func FormatInfo(message string) string { return withIcon(infoStyle, InfoIcon, message) }

// FormatTitle renders a step or section heading.
func FormatTitle(title string) string { return withIcon(titleStyle, RingIcon, title) }

// FormatPrompt renders the label in front of an input.
func FormatPrompt(prompt string) string {
	return promptStyle.Render(prompt + " → ")
}

// RenderBox frames content under a title.
func RenderBox(title, content string) string {
	heading := titleStyle.UnsetMargins().Render(title)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}

// RenderTable lays out rows under headers in padded columns.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	renderRow := func(cells []string, style lipgloss.Style) string {
		out := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			out[i] = cellStyle.Width(widths[i] + 2).Render(cell)
		}
		return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, out...))
	}

	lines := []string{renderRow(headers, headerStyle)}
	for _, row := range rows {
		lines = append(lines, renderRow(row, lipgloss.NewStyle()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
