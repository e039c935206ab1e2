// Package tui provides the terminal now-playing surface.
package tui

import (
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
)

// Color palette
var (
	colorPrimary   = lipgloss.Color("#1DB954") // spotify green
	colorSuccess   = lipgloss.Color("#22C55E")
	colorWarning   = lipgloss.Color("#EAB308")
	colorError     = lipgloss.Color("#EF4444")
	colorInfo      = lipgloss.Color("#3B82F6")
	colorMuted     = lipgloss.Color("#6B7280")
	colorSurface   = lipgloss.Color("#282828")
	colorText      = lipgloss.Color("#FFFFFF")
	colorSubtext   = lipgloss.Color("#B3B3B3")
	colorBorder    = lipgloss.Color("#404040")
	colorHighlight = lipgloss.Color("#1ED760")
)

// Tab bar styles
var (
	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#000000")).
			Background(colorPrimary).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(colorSubtext).
				Background(colorSurface).
				Padding(0, 2)

	tabBarStyle = lipgloss.NewStyle().
			Background(colorSurface).
			PaddingLeft(1)
)

// Content styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorHighlight).
			MarginBottom(1)

	trackStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText)

	artistStyle = lipgloss.NewStyle().
			Foreground(colorSubtext)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true).
			Width(20)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Background(colorSurface).
			PaddingLeft(1).
			PaddingRight(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	linkStyle = lipgloss.NewStyle().
			Foreground(colorInfo).
			Underline(true)
)

// logLevelStyles colours captured log lines; levels without an entry render plain.
var logLevelStyles = map[log.Level]lipgloss.Style{
	log.PanicLevel: lipgloss.NewStyle().Foreground(colorError).Bold(true),
	log.FatalLevel: lipgloss.NewStyle().Foreground(colorError).Bold(true),
	log.ErrorLevel: lipgloss.NewStyle().Foreground(colorError),
	log.WarnLevel:  lipgloss.NewStyle().Foreground(colorWarning),
	log.InfoLevel:  lipgloss.NewStyle().Foreground(colorInfo),
	log.DebugLevel: lipgloss.NewStyle().Foreground(colorMuted),
}

func levelStyle(level log.Level) lipgloss.Style {
	if style, ok := logLevelStyles[level]; ok {
		return style
	}
	return lipgloss.NewStyle()
}
