package tui

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Tab identifiers
const (
	tabPlaying = iota
	tabSession
	tabLogs
)

// App is the root bubbletea model that contains all tab sub-models.
type App struct {
	activeTab int
	tabs      []string

	ctrl    Controller
	focused bool

	playing playingTabModel
	session sessionTabModel
	logs    logsTabModel

	width  int
	height int
	ready  bool
}

// localeChangedMsg is broadcast to all tabs when the user toggles locale.
type localeChangedMsg struct{}

// NewApp creates the root TUI application model. hook may be nil, in which case
// the logs tab only shows its placeholder.
func NewApp(ctrl Controller, feed *ViewFeed, hook *LogHook) App {
	return App{
		activeTab: tabPlaying,
		tabs:      TabNames(),
		ctrl:      ctrl,
		playing:   newPlayingTabModel(ctrl, feed),
		session:   newSessionTabModel(ctrl),
		logs:      newLogsTabModel(hook),
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.playing.Init(), a.session.Init(), a.logs.Init(), a.reportFocus(true))
}

func (a App) reportFocus(focused bool) tea.Cmd {
	return func() tea.Msg {
		a.ctrl.SetFocused(focused)
		return nil
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		contentH := max(a.height-4, 1) // tab bar + status bar
		a.playing.SetSize(a.width, contentH)
		a.session.SetSize(a.width, contentH)
		a.logs.SetSize(a.width, contentH)
		return a, nil

	case tea.FocusMsg:
		a.focused = true
		return a, a.reportFocus(true)

	case tea.BlurMsg:
		a.focused = false
		return a, a.reportFocus(false)

	// Background feeds keep flowing regardless of the active tab.
	case viewMsg, spinner.TickMsg, loginMsg, logoutMsg, clearNoticeMsg:
		var cmd tea.Cmd
		a.playing, cmd = a.playing.Update(msg)
		return a, cmd
	case sessionMsg, sessionTickMsg:
		var cmd tea.Cmd
		a.session, cmd = a.session.Update(msg)
		return a, cmd
	case logBatchMsg:
		var cmd tea.Cmd
		a.logs, cmd = a.logs.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Sequence(a.reportFocus(false), tea.Quit)
		case "L":
			ToggleLocale()
			a.tabs = TabNames()
			var cmd tea.Cmd
			a.logs, cmd = a.logs.Update(localeChangedMsg{})
			return a, cmd
		case "tab":
			a.activeTab = (a.activeTab + 1) % len(a.tabs)
			return a, nil
		case "shift+tab":
			a.activeTab = (a.activeTab - 1 + len(a.tabs)) % len(a.tabs)
			return a, nil
		}
	}

	var cmd tea.Cmd
	switch a.activeTab {
	case tabPlaying:
		a.playing, cmd = a.playing.Update(msg)
	case tabSession:
		a.session, cmd = a.session.Update(msg)
	case tabLogs:
		a.logs, cmd = a.logs.Update(msg)
	}
	return a, cmd
}

func (a App) View() string {
	if !a.ready {
		return T("initializing_tui")
	}

	var sb strings.Builder
	sb.WriteString(a.renderTabBar())
	sb.WriteString("\n")

	switch a.activeTab {
	case tabPlaying:
		sb.WriteString(a.playing.View())
	case tabSession:
		sb.WriteString(a.session.View())
	case tabLogs:
		sb.WriteString(a.logs.View())
	}

	sb.WriteString("\n")
	sb.WriteString(a.renderStatusBar())
	return sb.String()
}

func (a App) renderTabBar() string {
	var tabs []string
	for i, name := range a.tabs {
		if i == a.activeTab {
			tabs = append(tabs, tabActiveStyle.Render(name))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(name))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	return tabBarStyle.Width(a.width).Render(tabBar)
}

func (a App) renderStatusBar() string {
	left := strings.TrimRight(T("status_left"), " ")
	right := strings.TrimRight(T("status_right"), " ")

	width := max(a.width, 1)
	// statusBarStyle has left/right padding(1), so content area is width-2.
	contentWidth := max(width-2, 0)

	if lipgloss.Width(left) > contentWidth {
		left = fitStringWidth(left, contentWidth)
		right = ""
	}
	remaining := max(contentWidth-lipgloss.Width(left), 0)
	if lipgloss.Width(right) > remaining {
		right = fitStringWidth(right, remaining)
	}
	gap := max(contentWidth-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return statusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func fitStringWidth(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(text) <= maxWidth {
		return text
	}
	out := ""
	for _, r := range text {
		next := out + string(r)
		if lipgloss.Width(next) > maxWidth {
			break
		}
		out = next
	}
	return out
}

// Run starts the TUI and blocks until the user quits or ctx is cancelled. output
// defaults to stdout. Focus reporting drives the "tui" visibility source of the
// polling loop.
func Run(ctx context.Context, ctrl Controller, feed *ViewFeed, hook *LogHook, output io.Writer) error {
	if output == nil {
		output = os.Stdout
	}
	app := NewApp(ctrl, feed, hook)
	p := tea.NewProgram(app,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	ctrl.SetFocused(false)
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
