package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Component is the interface for all TUI components.
type Component interface {
	// Init initializes the component.
	Init() tea.Cmd

	// Update handles messages and returns the updated component.
	Update(msg tea.Msg) (Component, tea.Cmd)

	// View renders the component.
	View() string

	// Title returns the component title.
	Title() string

	// SetSize sets the component dimensions.
	SetSize(width, height int)
}

// RefreshMsg asks a component to reload its data.
type RefreshMsg struct{}

// Styles groups the styles shared by views.
type Styles struct {
	Title     lipgloss.Style
	Selected  lipgloss.Style
	Row       lipgloss.Style
	Favorite  lipgloss.Style
	Pending   lipgloss.Style
	Muted     lipgloss.Style
	TabActive lipgloss.Style
	Tab       lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Key       lipgloss.Style
	Bar       lipgloss.Style
}

// DefaultStyles returns default styling.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
		Selected: lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("229")),
		Row: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Favorite: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")),
		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		TabActive: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("62")),
		Tab: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("238")),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160")),
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("34")),
		Key: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
		Bar: lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Padding(0, 1),
	}
}

// Truncate truncates a string to fit within a width.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}

// PadRight pads a string to a given width.
func PadRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}
