package sheets

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Row is one pipeline record from the spreadsheet proxy. Only the identity,
// status, approval and last-processed columns are interpreted; the complete
// upstream record is kept in Fields and passed through untouched.
type Row struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Approval      string          `json:"approval"`
	LastProcessed string          `json:"lastProcessed"`
	Fields        json.RawMessage `json:"fields,omitempty"`
}

// PendingRule decides whether a row still has unfinished work.
type PendingRule struct {
	Statuses       []string // matched case-insensitively against Row.Status
	ApprovedMarker string   // approval value that means "approved, not yet processed"
}

// DefaultPendingRule mirrors the statuses the sales sheet uses for rows that
// are still moving through automation.
func DefaultPendingRule() PendingRule {
	return PendingRule{
		Statuses:       []string{"pending", "processing", "queued", "in progress"},
		ApprovedMarker: "approved",
	}
}

// IsPending reports whether the row is waiting on upstream processing.
func (r Row) IsPending(rule PendingRule) bool {
	status := normalize(r.Status)
	if status != "" {
		for _, candidate := range rule.Statuses {
			if status == normalize(candidate) {
				return true
			}
		}
	}
	marker := normalize(rule.ApprovedMarker)
	if marker != "" && normalize(r.Approval) == marker && strings.TrimSpace(r.LastProcessed) == "" {
		return true
	}
	return false
}

// Field returns a value from the raw upstream record, or "" when it is
// absent. name is first matched as a top-level column header, which may hold
// dots or spaces, and otherwise read as a gjson path such as contact.email.
func (r Row) Field(name string) string {
	if len(r.Fields) == 0 || name == "" {
		return ""
	}
	record := gjson.ParseBytes(r.Fields)
	if value, ok := record.Map()[name]; ok {
		return strings.TrimSpace(value.String())
	}
	return strings.TrimSpace(record.Get(name).String())
}

// CountPending returns how many rows satisfy the rule.
func CountPending(rows []Row, rule PendingRule) int {
	n := 0
	for _, row := range rows {
		if row.IsPending(rule) {
			n++
		}
	}
	return n
}

// CloneRows copies the slice so callers cannot mutate shared state.
func CloneRows(rows []Row) []Row {
	if len(rows) == 0 {
		return nil
	}
	dup := make([]Row, len(rows))
	copy(dup, rows)
	return dup
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
