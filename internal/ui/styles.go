package ui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by the renderer.
type Styles struct {
	Roster         lipgloss.Style
	RosterSelected lipgloss.Style
	RosterPending  lipgloss.Style

	PresenceOnline  lipgloss.Style
	PresenceAway    lipgloss.Style
	PresenceDND     lipgloss.Style
	PresenceOffline lipgloss.Style

	ChatIncoming lipgloss.Style
	ChatOutgoing lipgloss.Style
	ChatSystem   lipgloss.Style
	Composing    lipgloss.Style

	StatusBar   lipgloss.Style
	StatusError lipgloss.Style
	InputPrompt lipgloss.Style
}

// DefaultStyles returns the default style set.
func DefaultStyles() *Styles {
	return &Styles{
		Roster:         lipgloss.NewStyle(),
		RosterSelected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
		RosterPending:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),

		PresenceOnline:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		PresenceAway:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		PresenceDND:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		PresenceOffline: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),

		ChatIncoming: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		ChatOutgoing: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		ChatSystem:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		Composing:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),

		StatusBar:   lipgloss.NewStyle().Background(lipgloss.Color("236")).Foreground(lipgloss.Color("252")),
		StatusError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		InputPrompt: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	}
}
