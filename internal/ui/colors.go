package ui

import "github.com/charmbracelet/lipgloss"

// palette groups the [lipgloss.Style] set the views render with.
type palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
	help  lipgloss.Style
}

// styles is the package stylesheet. The warning and error styles double as
// the quota pressure colors on the dashboard.
var styles = palette{
	title: lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true).MarginBottom(1),
	ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true),
	warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
	err:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F56")).Bold(true),
	help:  lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Italic(true),
}
