package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().Faint(true)

	// ErrorStyle for error messages.
	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	// StaleStyle marks a batch carried forward from an earlier scan.
	StaleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// FormatPnL formats unrealized pnl with an indicator of its change since the
// previous poll.
func FormatPnL(current float64, previous float64, seen bool) string {
	s := fmt.Sprintf("%.2f", current)

	if !seen {
		return s
	}

	if current > previous {
		return s + " ▲"
	} else if current < previous {
		return s + " ▼"
	}

	return s
}
