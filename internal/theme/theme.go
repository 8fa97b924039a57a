// Package theme holds the terminal styles used by the command-line client.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section titles such as the page header.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// HelpStyle is used for hints and secondary text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// MessagePanelStyle wraps a displayed message body.
var MessagePanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// UnreadStyle marks unread rows.
var UnreadStyle = lipgloss.NewStyle().Bold(true)

// StarStyle colors the star marker.
var StarStyle = lipgloss.NewStyle().Foreground(ColorYellow)

// Star returns the star marker for starred, or a blank of equal width.
func Star(starred bool) string {
	if starred {
		return StarStyle.Render("*")
	}
	return " "
}

// DirectionStyle returns the style for a thread message direction.
func DirectionStyle(t model.MessageType) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch t {
	case model.MessageSent:
		return base.Foreground(ColorBlue)
	case model.MessageReceived:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// ErrorStyle returns a color-coded style for an error category.
func ErrorStyle(kind mailerr.Category) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch kind {
	case mailerr.CategoryUnauthenticated:
		return base.Foreground(ColorOrange)
	case mailerr.CategoryValidation:
		return base.Foreground(ColorYellow)
	case mailerr.CategoryNone:
		return base.Foreground(ColorGray)
	default:
		return base.Foreground(ColorRed)
	}
}
