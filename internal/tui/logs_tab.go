package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
)

const logsTabMaxLines = 2000

// logFilters maps the number keys to the most verbose level shown.
var logFilters = map[string]log.Level{
	"1": log.TraceLevel,
	"2": log.InfoLevel,
	"3": log.WarnLevel,
	"4": log.ErrorLevel,
}

type logsTabModel struct {
	hook      *LogHook
	viewport  viewport.Model
	lines     []logLine
	dropped   int
	threshold log.Level
	following bool
	width     int
	ready     bool
}

// logBatchMsg carries everything the hook buffered since the previous batch.
type logBatchMsg struct {
	lines   []logLine
	dropped int
}

func newLogsTabModel(hook *LogHook) logsTabModel {
	return logsTabModel{
		hook:      hook,
		threshold: log.TraceLevel,
		following: true,
	}
}

func (m logsTabModel) Init() tea.Cmd {
	if m.hook == nil {
		return nil
	}
	return m.nextBatch
}

func (m logsTabModel) nextBatch() tea.Msg {
	<-m.hook.Ready()
	lines, dropped := m.hook.Drain()
	return logBatchMsg{lines: lines, dropped: dropped}
}

func (m logsTabModel) Update(msg tea.Msg) (logsTabModel, tea.Cmd) {
	switch msg := msg.(type) {
	case localeChangedMsg:
		m.refresh()
		return m, nil
	case logBatchMsg:
		m.lines = append(m.lines, msg.lines...)
		m.dropped += msg.dropped
		if over := len(m.lines) - logsTabMaxLines; over > 0 {
			m.lines = m.lines[over:]
			m.dropped += over
		}
		m.refresh()
		return m, m.nextBatch
	case tea.KeyMsg:
		key := msg.String()
		if level, ok := logFilters[key]; ok {
			m.threshold = level
			m.refresh()
			return m, nil
		}
		switch key {
		case "a":
			m.following = !m.following
			m.refresh()
			return m, nil
		case "x":
			m.lines, m.dropped = nil, 0
			m.refresh()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		// Scrolling away from the bottom pauses following; returning resumes it.
		m.following = m.viewport.AtBottom()
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *logsTabModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.render())
	if m.following {
		m.viewport.GotoBottom()
	}
}

func (m *logsTabModel) SetSize(w, h int) {
	m.width = w
	if m.ready {
		m.viewport.Width, m.viewport.Height = w, h
		return
	}
	m.viewport = viewport.New(w, h)
	m.ready = true
	m.refresh()
}

func (m logsTabModel) View() string {
	if !m.ready {
		return T("loading")
	}
	return m.viewport.View()
}

func (m logsTabModel) render() string {
	status := successStyle.Render(T("logs_auto_scroll"))
	if !m.following {
		status = warningStyle.Render(T("logs_paused"))
	}
	filter := "ALL"
	if m.threshold < log.TraceLevel {
		filter = strings.ToUpper(m.threshold.String()) + "+"
	}

	var sb strings.Builder
	header := fmt.Sprintf(" %s  %s  %s: %s  %s: %d", T("logs_title"), status, T("logs_filter"), filter, T("logs_lines"), len(m.lines))
	if m.dropped > 0 {
		header += fmt.Sprintf(" (-%d)", m.dropped)
	}
	sb.WriteString(titleStyle.Render(header))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("logs_help")))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", max(m.width, 0)))
	sb.WriteString("\n")

	if len(m.lines) == 0 {
		sb.WriteString(subtitleStyle.Render(T("logs_waiting")))
		return sb.String()
	}
	for _, line := range m.lines {
		if !visibleAt(m.threshold, line.level) {
			continue
		}
		sb.WriteString(levelStyle(line.level).Render(line.text))
		sb.WriteString("\n")
	}
	return sb.String()
}

// visibleAt reports whether a line at level passes the threshold; logrus orders
// levels from panic (most severe) to trace.
func visibleAt(threshold, level log.Level) bool {
	return level <= threshold
}
