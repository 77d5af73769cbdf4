package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which the header drops detail.
	LayoutCompactWidth = 100

	// LayoutExtraColumnsWidth is the minimum width to show configured extra columns.
	LayoutExtraColumnsWidth = 120
)

// Log panel limits.
const (
	// LogPanelLines is the number of log lines tailed for the panel.
	LogPanelLines = 200

	// LogPanelHeight is the panel height including its border.
	LogPanelHeight = 10
)

// DefaultUIInterval is the default UI refresh interval.
const DefaultUIInterval = time.Second
