package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/router-for-me/NowPlaying/internal/browser"
	"github.com/router-for-me/NowPlaying/internal/view"
)

// Hooks replaced in tests.
var (
	writeClipboard = clipboard.WriteAll
	openURL        = browser.OpenURL
)

// playingTabModel renders the current view and the login/logout/copy actions.
type playingTabModel struct {
	ctrl     Controller
	feed     *ViewFeed
	spinner  spinner.Model
	progress progress.Model

	current view.View
	hasView bool

	loginPending bool
	authURL      string
	notice       string
	noticeErr    bool

	width  int
	height int
}

type loginMsg struct {
	url string
	err error
}

type logoutMsg struct{}

type clearNoticeMsg struct{}

func newPlayingTabModel(ctrl Controller, feed *ViewFeed) playingTabModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPrimary)
	bar := progress.New(progress.WithSolidFill(string(colorPrimary)), progress.WithoutPercentage())
	return playingTabModel{
		ctrl:     ctrl,
		feed:     feed,
		spinner:  sp,
		progress: bar,
	}
}

func (m playingTabModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.feed.wait)
}

func (m playingTabModel) busy() bool {
	return !m.hasView || m.loginPending
}

func (m playingTabModel) Update(msg tea.Msg) (playingTabModel, tea.Cmd) {
	switch msg := msg.(type) {
	case viewMsg:
		m.current = view.View(msg)
		m.hasView = true
		if m.current.LoggedIn {
			m.loginPending = false
			m.authURL = ""
		}
		return m, m.feed.wait

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginMsg:
		if msg.err != nil {
			m.loginPending = false
			return m.setNotice(fmt.Sprintf(T("login_failed"), msg.err.Error()), true)
		}
		m.authURL = msg.url
		return m, nil

	case logoutMsg:
		m.authURL = ""
		m.loginPending = false
		return m.setNotice(T("logged_out"), false)

	case clearNoticeMsg:
		m.notice = ""
		m.noticeErr = false
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "l":
			if m.current.LoggedIn || m.loginPending {
				return m, nil
			}
			m.loginPending = true
			m.notice = ""
			return m, tea.Batch(m.spinner.Tick, m.login)
		case "o":
			if !m.current.LoggedIn {
				return m, nil
			}
			return m, m.logout
		case "r":
			m.ctrl.TriggerNow()
			return m.setNotice(T("refreshing"), false)
		case "c":
			return m.copyLink()
		}
	}
	return m, nil
}

func (m playingTabModel) login() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url, err := m.ctrl.InitiateLogin(ctx)
	if err == nil {
		// The URL stays on screen, so a failed launch needs no further handling.
		_ = openURL(url)
	}
	return loginMsg{url: url, err: err}
}

func (m playingTabModel) logout() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.ctrl.Logout(ctx)
	return logoutMsg{}
}

func (m playingTabModel) copyLink() (playingTabModel, tea.Cmd) {
	target := m.current.TrackURL
	if !m.current.LoggedIn {
		target = m.authURL
	}
	if target == "" {
		return m.setNotice(T("nothing_to_copy"), true)
	}
	if err := writeClipboard(target); err != nil {
		return m.setNotice(fmt.Sprintf(T("copy_failed"), err.Error()), true)
	}
	return m.setNotice(fmt.Sprintf(T("copied"), target), false)
}

func (m playingTabModel) setNotice(text string, isErr bool) (playingTabModel, tea.Cmd) {
	m.notice = text
	m.noticeErr = isErr
	return m, tea.Tick(4*time.Second, func(time.Time) tea.Msg { return clearNoticeMsg{} })
}

func (m *playingTabModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.progress.Width = max(min(w-8, 60), 10)
}

func (m playingTabModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("♫ " + TabNames()[tabPlaying]))
	sb.WriteString("\n")

	switch {
	case !m.hasView:
		sb.WriteString(m.spinner.View() + " " + subtitleStyle.Render(T("playing_waiting")))
	case !m.current.LoggedIn:
		sb.WriteString(m.renderLoggedOut())
	default:
		sb.WriteString(sectionStyle.Render(m.renderTrack()))
	}
	sb.WriteString("\n")

	if m.notice != "" {
		style := successStyle
		if m.noticeErr {
			style = errorStyle
		}
		sb.WriteString(style.Render(m.notice))
		sb.WriteString("\n")
	}
	sb.WriteString(helpStyle.Render(T("playing_help")))
	return sb.String()
}

func (m playingTabModel) renderLoggedOut() string {
	var sb strings.Builder
	sb.WriteString(warningStyle.Render(T("playing_logged_out")))
	sb.WriteString("\n")
	sb.WriteString(subtitleStyle.Render(m.current.StatusText))
	sb.WriteString("\n")
	if m.loginPending {
		sb.WriteString("\n" + m.spinner.View() + " " + T("login_pending") + "\n")
	}
	if m.authURL != "" {
		sb.WriteString(T("login_url") + "\n")
		sb.WriteString(linkStyle.Render(m.authURL) + "\n")
	}
	return sb.String()
}

func (m playingTabModel) renderTrack() string {
	v := m.current
	var sb strings.Builder
	if v.Title != "" {
		sb.WriteString(trackStyle.Render(v.Title))
		sb.WriteString("\n")
	}
	if v.Artists != "" {
		sb.WriteString(artistStyle.Render(v.Artists))
		sb.WriteString("\n")
	}
	if v.DurationMs > 0 {
		ratio := float64(v.ProgressMs) / float64(v.DurationMs)
		sb.WriteString("\n")
		sb.WriteString(m.progress.ViewAs(min(max(ratio, 0), 1)))
		sb.WriteString(" ")
		sb.WriteString(helpStyle.Render(formatMs(v.ProgressMs) + " / " + formatMs(v.DurationMs)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	status := valueStyle
	if !v.IsPlaying {
		status = subtitleStyle
	}
	sb.WriteString(status.Render(v.StatusText))
	if v.TrackURL != "" {
		sb.WriteString("\n")
		sb.WriteString(linkStyle.Render(v.TrackURL))
	}
	if v.Lyrics != "" {
		sb.WriteString("\n\n")
		sb.WriteString(subtitleStyle.Render(firstLines(v.Lyrics, max(m.height-14, 4))))
	}
	return sb.String()
}

func formatMs(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func firstLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[:n], "\n") + "\n…"
}
