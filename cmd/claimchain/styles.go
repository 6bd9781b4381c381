package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"claimchain/internal/types"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#808890"))
)

// renderChainStatus colors a chain status for terminal output.
func renderChainStatus(status types.ChainStatus) string {
	switch status {
	case types.ChainVerified:
		return successStyle.Render(string(status))
	case types.ChainTestsFailing:
		return failStyle.Render(string(status))
	case types.ChainNotStarted:
		return mutedStyle.Render(string(status))
	default:
		return warnStyle.Render(string(status))
	}
}

func renderOutcome(success bool) string {
	if success {
		return successStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

// shortID keeps tables readable; full IDs are in the run snapshots.
func shortID(id types.ID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func heading(format string, args ...any) string {
	return headingStyle.Render(fmt.Sprintf(format, args...))
}
