// Package delta reports whether a fetched row set differs materially from
// the last one handed to the dashboard.
//
// Only the identity, status, approval and last-processed columns take part
// in the comparison. Row order is ignored, so a proxy that returns the same
// rows in a different order never counts as a change.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/five82/pulse/internal/sheets"
)

// Fingerprint returns an order-independent digest of the rows.
func Fingerprint(rows []sheets.Row) string {
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, rowKey(row))
	}
	sort.Strings(keys)

	hash := sha256.Sum256([]byte(strings.Join(keys, "\n")))
	return hex.EncodeToString(hash[:])
}

// rowKey quotes each field so separators inside cell values cannot make two
// different rows collide.
func rowKey(row sheets.Row) string {
	fields := []string{row.ID, row.Status, row.Approval, row.LastProcessed}
	for i, f := range fields {
		fields[i] = strconv.Quote(f)
	}
	return strings.Join(fields, "|")
}

// Detector remembers the fingerprint of the last reported row set.
// The zero value is ready to use and treats the first call as a change.
type Detector struct {
	mu   sync.Mutex
	last string
	seen bool
}

// HasChanged reports whether rows differ from the previously stored set and
// stores the new fingerprint when they do.
func (d *Detector) HasChanged(rows []sheets.Row) bool {
	fp := Fingerprint(rows)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen && fp == d.last {
		return false
	}
	d.last = fp
	d.seen = true
	return true
}

// Last returns the stored fingerprint, or "" before the first call.
func (d *Detector) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Reset forgets the stored fingerprint so the next call reports a change.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
	d.seen = false
}
