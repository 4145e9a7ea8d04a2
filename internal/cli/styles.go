package cli

import (
	"github.com/charmbracelet/lipgloss"

	"amari/pkg/domain"
)

// Palette shared by all terminal output.
const (
	colorPrimary   = lipgloss.Color("#7C3AED")
	colorMuted     = lipgloss.Color("#6B7280")
	colorSuccess   = lipgloss.Color("#10B981")
	colorError     = lipgloss.Color("#EF4444")
	colorWarning   = lipgloss.Color("#F59E0B")
	colorHighlight = lipgloss.Color("#3B82F6")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	warningStyle  = lipgloss.NewStyle().Foreground(colorWarning)
	slugStyle     = lipgloss.NewStyle().Foreground(colorHighlight)
)

var kindStyles = map[domain.Kind]lipgloss.Style{
	domain.KindCategory: titleStyle,
	domain.KindFamily:   slugStyle.Bold(true),
	domain.KindProduct:  subtitleStyle,
	domain.KindIndex:    subtitleStyle.Italic(true),
}

func kindStyle(k domain.Kind) lipgloss.Style {
	if s, ok := kindStyles[k]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

func statusStyle(s domain.Status) lipgloss.Style {
	switch s {
	case domain.StatusDirect:
		return successStyle
	case domain.StatusImplied:
		return warningStyle
	default:
		return errorStyle
	}
}
