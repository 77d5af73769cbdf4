package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/five82/pulse/internal/sheets"
	"github.com/five82/pulse/internal/state"
)

// renderHeader renders the status bar: logo, sync indicator, data age and counts.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)
	compact := m.width < LayoutCompactWidth
	now := m.clock.Now()
	snap := m.snapshot

	parts := []string{
		bg.Render("pulse", styles.Logo),
		m.renderIndicator(snap.Indicator()),
	}

	if !snap.LastSyncAt.IsZero() {
		parts = append(parts,
			bg.Render("synced", styles.MutedText)+bg.Spaces(1)+
				bg.Render(humanize.RelTime(snap.LastSyncAt, now, "ago", "from now"), styles.Text))
	}
	if snap.IsStale && !snap.StaleSince.IsZero() && !compact {
		parts = append(parts,
			bg.Render("stale for", styles.MutedText)+bg.Spaces(1)+
				bg.Render(formatAge(now.Sub(snap.StaleSince)), styles.WarningText))
	}

	parts = append(parts,
		bg.Render("Rows:", styles.MutedText)+bg.Spaces(1)+
			bg.Render(fmt.Sprintf("%d", len(snap.Rows)), styles.Text))
	if pending := sheets.CountPending(snap.Rows, m.pendingRule); pending > 0 {
		parts = append(parts,
			bg.Render("Pending:", styles.MutedText)+bg.Spaces(1)+
				bg.Render(fmt.Sprintf("%d", pending), styles.WarningText.Bold(true)))
	}

	if !compact && snap.Tier != "" {
		parts = append(parts, bg.Render("cadence "+string(snap.Tier), styles.FaintText))
	}
	if m.forcing {
		parts = append(parts, bg.Render("refreshing...", styles.InfoText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, sep))
}

func (m Model) renderIndicator(ind state.Indicator) string {
	label := strings.ToUpper(string(ind))
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.theme.Background)).
		Background(lipgloss.Color(m.theme.IndicatorColor(ind))).
		Bold(true).
		Padding(0, 1).
		Render("● " + label)
}

// renderFooter renders the key help line.
func (m Model) renderFooter() string {
	return m.theme.Styles().Footer.Width(m.width).Render(m.help.View(m.keys))
}

// formatAge renders a duration compactly: "now", "42s", "5m", "3h".
func formatAge(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}
