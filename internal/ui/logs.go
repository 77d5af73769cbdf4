package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/pulse/internal/logtail"
)

// updateLogView refills the log viewport from the last tail, following the end.
func (m *Model) updateLogView() {
	entries := logtail.Filter(m.logLines, m.logLevel)
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, m.colorizeEntry(e))
	}
	m.logView.SetContent(strings.Join(lines, "\n"))
	m.logView.GotoBottom()
}

// colorizeEntry highlights the level of a parsed record. Unrecognised
// lines are shown as-is.
func (m Model) colorizeEntry(e logtail.Entry) string {
	if e.Level == logtail.LevelUnknown {
		return truncate(e.Raw, m.width)
	}
	styles := m.theme.Styles()
	level := lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.theme.LevelColor(e.Level))).
		Bold(true).
		Render(padRight(e.Level.String(), 5))

	var b strings.Builder
	if ts := shortTime(e.Time); ts != "" {
		b.WriteString(styles.FaintText.Render(ts))
		b.WriteString(" ")
	}
	b.WriteString(level)
	b.WriteString(" ")
	msg := e.Message
	if msg == "" {
		msg = e.Raw
	}
	b.WriteString(styles.Text.Render(truncate(msg, m.width-16)))
	return b.String()
}

// renderLog renders the log panel below the table.
func (m Model) renderLog() string {
	styles := m.theme.Styles()
	title := styles.AccentText.Bold(true).Render("Log") + " " +
		styles.FaintText.Render("≥ "+m.logLevel.String()+"  "+truncateMiddle(m.logPath, 60))
	return styles.Panel.Width(m.width).Render(title + "\n" + m.logView.View())
}

// shortTime keeps the clock part of an RFC 3339 timestamp.
func shortTime(ts string) string {
	if idx := strings.IndexByte(ts, 'T'); idx >= 0 && len(ts) >= idx+9 {
		return ts[idx+1 : idx+9]
	}
	return ts
}
