package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Header and footer styles
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	styleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Per-row styles
var (
	styleTaskID = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	stylePhaseRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow"))

	stylePhaseComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	stylePhaseFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	styleBar = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62"))

	styleLastLine = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)
