package ui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/pulse/internal/sheets"
)

const pendingMarker = "●"

// fixed column widths, not counting the two cells of padding per column
const (
	markerWidth    = 1
	idWidth        = 14
	statusWidth    = 14
	approvalWidth  = 10
	processedWidth = 20
	minExtraWidth  = 8
	cellPadding    = 2
)

// tableColumns lays out the rows table for the terminal width. Extra
// columns only appear once the terminal is wide enough to hold them.
func (m Model) tableColumns(width int) []table.Column {
	cols := []table.Column{
		{Title: "", Width: markerWidth},
		{Title: "ID", Width: idWidth},
		{Title: "Status", Width: statusWidth},
		{Title: "Approval", Width: approvalWidth},
		{Title: "Processed", Width: processedWidth},
	}
	extras := m.visibleExtras(width)
	if len(extras) == 0 {
		return cols
	}

	used := 0
	for _, c := range cols {
		used += c.Width + cellPadding
	}
	each := (width-used)/len(extras) - cellPadding
	if each < minExtraWidth {
		each = minExtraWidth
	}
	for _, name := range extras {
		cols = append(cols, table.Column{Title: columnTitle(name), Width: each})
	}
	return cols
}

func (m Model) visibleExtras(width int) []string {
	if width < LayoutExtraColumnsWidth {
		return nil
	}
	var out []string
	for _, name := range m.columns {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// updateTable rebuilds columns and rows from the current snapshot.
func (m *Model) updateTable() {
	cols := m.tableColumns(m.width)
	m.table.SetRows(nil)
	m.table.SetColumns(cols)
	m.table.SetRows(m.tableRows(m.snapshot.Rows, cols))
}

// tableRows renders rows pending-first, then by ID. Each table row has
// exactly one cell per column.
func (m Model) tableRows(rows []sheets.Row, cols []table.Column) []table.Row {
	sorted := sortRows(rows, m.pendingRule)
	extras := m.visibleExtras(m.width)

	out := make([]table.Row, 0, len(sorted))
	for _, r := range sorted {
		marker := ""
		if r.IsPending(m.pendingRule) {
			marker = pendingMarker
		}
		cells := table.Row{marker, r.ID, r.Status, r.Approval, r.LastProcessed}
		for _, name := range extras {
			cells = append(cells, r.Field(name))
		}
		out = append(out, cells[:len(cols)])
	}
	return out
}

func sortRows(rows []sheets.Row, rule sheets.PendingRule) []sheets.Row {
	sorted := sheets.CloneRows(rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].IsPending(rule), sorted[j].IsPending(rule)
		if pi != pj {
			return pi
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// renderRows renders the table or a placeholder while there is nothing to show.
func (m Model) renderRows() string {
	styles := m.theme.Styles()
	switch {
	case !m.snapshot.HasData && len(m.snapshot.Rows) == 0:
		return m.placeholder(styles.WarningText.Render("Waiting for first sync..."))
	case len(m.snapshot.Rows) == 0:
		return m.placeholder(styles.MutedText.Render("No rows"))
	}
	return m.table.View()
}

func (m Model) placeholder(text string) string {
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.table.Height()).
		Padding(1, 2).
		Render(text)
}

// columnTitle turns a field path such as "deal.owner_name" into "Owner Name".
func columnTitle(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, part := range parts {
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
