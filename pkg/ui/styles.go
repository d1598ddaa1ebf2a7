package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle          = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888")).PaddingLeft(1)
	emptyStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Align(lipgloss.Center)
	userBubbleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#2563EB")).Padding(0, 1)
	assistantBubbleStyle = lipgloss.NewStyle().Padding(0, 1)
	sourcesStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).PaddingLeft(1)
	thinkingStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	errorStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statusStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("118"))
	helpStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	inputBorderStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
)
