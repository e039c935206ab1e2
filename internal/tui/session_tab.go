package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// sessionTabModel shows authentication and polling state.
type sessionTabModel struct {
	ctrl    Controller
	session Session
	loaded  bool
	width   int
	height  int
}

type sessionMsg Session

type sessionTickMsg struct{}

const sessionRefreshInterval = 2 * time.Second

func newSessionTabModel(ctrl Controller) sessionTabModel {
	return sessionTabModel{ctrl: ctrl}
}

func (m sessionTabModel) Init() tea.Cmd {
	return m.fetch
}

func (m sessionTabModel) fetch() tea.Msg {
	return sessionMsg(m.ctrl.Session())
}

func (m sessionTabModel) Update(msg tea.Msg) (sessionTabModel, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionMsg:
		m.session = Session(msg)
		m.loaded = true
		return m, tea.Tick(sessionRefreshInterval, func(time.Time) tea.Msg { return sessionTickMsg{} })
	case sessionTickMsg:
		return m, m.fetch
	case tea.KeyMsg:
		if msg.String() == "r" {
			return m, m.fetch
		}
	}
	return m, nil
}

func (m *sessionTabModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m sessionTabModel) View() string {
	if !m.loaded {
		return T("loading")
	}
	s := m.session

	authValue := warningStyle.Render(s.AuthState)
	if s.Authenticated {
		authValue = successStyle.Render("● " + s.AuthState)
	}
	rows := [][2]string{
		{T("session_auth"), authValue},
		{T("session_polling"), boolText(s.Polling)},
		{T("session_visible"), boolText(s.Visible)},
		{T("session_viewers"), fmt.Sprintf("%d", s.Viewers)},
		{T("session_interval"), s.Interval.String()},
		{T("session_policy"), orNotSet(s.DevicePolicy)},
		{T("session_store"), orNotSet(s.Store)},
		{T("session_server"), orNotSet(s.PageURL)},
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(row[0]), valueStyle.Render(row[1])))
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(T("session_title")))
	sb.WriteString("\n")
	sb.WriteString(sectionStyle.Render(strings.Join(lines, "\n")))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("session_help")))
	return sb.String()
}

func boolText(v bool) string {
	if v {
		return successStyle.Render(T("bool_yes"))
	}
	return T("bool_no")
}

func orNotSet(v string) string {
	if strings.TrimSpace(v) == "" {
		return subtitleStyle.Render(T("not_set"))
	}
	return v
}
