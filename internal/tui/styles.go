package tui

import "github.com/charmbracelet/lipgloss"

var (
	matrixGreen = lipgloss.Color("#00ff41")
	dimGreen    = lipgloss.Color("#008f11")
	errorRed    = lipgloss.Color("#ff5f5f")
)

type styles struct {
	header     lipgloss.Style
	userLabel  lipgloss.Style
	botLabel   lipgloss.Style
	timestamp  lipgloss.Style
	body       lipgloss.Style
	pending    lipgloss.Style
	quickTitle lipgloss.Style
	quickItem  lipgloss.Style
	status     lipgloss.Style
	offline    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Foreground(matrixGreen).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(dimGreen),
		userLabel:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true),
		botLabel:   lipgloss.NewStyle().Foreground(matrixGreen).Bold(true),
		timestamp:  lipgloss.NewStyle().Foreground(dimGreen),
		body:       lipgloss.NewStyle().PaddingLeft(2),
		pending:    lipgloss.NewStyle().Foreground(dimGreen).Italic(true).PaddingLeft(2),
		quickTitle: lipgloss.NewStyle().Foreground(dimGreen),
		quickItem:  lipgloss.NewStyle().Foreground(matrixGreen),
		status:     lipgloss.NewStyle().Foreground(dimGreen),
		offline:    lipgloss.NewStyle().Foreground(errorRed),
	}
}
