package cli

import "github.com/charmbracelet/lipgloss"

var (
	answerStyle    = lipgloss.NewStyle().Width(100)
	headingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	referenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingLeft(2)
)
