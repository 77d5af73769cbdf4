package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestRowIsPending(t *testing.T) {
	rule := DefaultPendingRule()
	tests := []struct {
		name string
		row  Row
		want bool
	}{
		{name: "pending status", row: Row{Status: "Pending"}, want: true},
		{name: "in progress padded", row: Row{Status: "  In Progress "}, want: true},
		{name: "approved unprocessed", row: Row{Status: "new", Approval: "APPROVED"}, want: true},
		{name: "approved processed", row: Row{Status: "new", Approval: "approved", LastProcessed: "2026-01-01"}},
		{name: "closed", row: Row{Status: "closed"}},
		{name: "empty", row: Row{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.row.IsPending(rule); got != tt.want {
				t.Fatalf("IsPending(%#v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}

	if (Row{Approval: "approved"}).IsPending(PendingRule{}) {
		t.Fatalf("empty rule should match nothing")
	}
}

func TestCountPendingAndClone(t *testing.T) {
	rows := []Row{{ID: "a", Status: "queued"}, {ID: "b", Status: "done"}, {ID: "c", Status: "processing"}}
	if got := CountPending(rows, DefaultPendingRule()); got != 2 {
		t.Fatalf("CountPending = %d, want 2", got)
	}

	dup := CloneRows(rows)
	dup[0].ID = "mutated"
	if rows[0].ID != "a" {
		t.Fatalf("CloneRows shares backing array")
	}
	if CloneRows(nil) != nil {
		t.Fatalf("CloneRows(nil) should be nil")
	}
}

func TestRowField(t *testing.T) {
	row := Row{Fields: json.RawMessage(`{"amount":1200,"owner":" sam ","nested":{"x":1}}`)}
	if got := row.Field("amount"); got != "1200" {
		t.Fatalf("amount = %q", got)
	}
	if got := row.Field("owner"); got != "sam" {
		t.Fatalf("owner = %q", got)
	}
	if got := row.Field("missing"); got != "" {
		t.Fatalf("missing = %q", got)
	}
	if got := (Row{}).Field("owner"); got != "" {
		t.Fatalf("no fields = %q", got)
	}
}

func TestRowFieldPaths(t *testing.T) {
	row := Row{Fields: json.RawMessage(`{
		"contact": {"email": "a@example.com", "phones": ["555-0100"]},
		"deal.owner": "header with a dot",
		"deal": {"owner": "nested owner"},
		"Next Step": " call back "
	}`)}
	tests := []struct {
		name string
		want string
	}{
		{name: "contact.email", want: "a@example.com"},
		{name: "contact.phones.0", want: "555-0100"},
		{name: "deal.owner", want: "header with a dot"},
		{name: "Next Step", want: "call back"},
		{name: "contact.fax", want: ""},
		{name: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := row.Field(tt.name); got != tt.want {
				t.Fatalf("Field(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestQuotaErrorWrapping(t *testing.T) {
	base := &QuotaError{StatusCode: 429}
	wrapped := fmt.Errorf("fetch rows: %w", base)
	if !IsQuotaExceeded(wrapped) {
		t.Fatalf("wrapped quota error not detected")
	}
	if !errors.Is(wrapped, ErrQuotaExceeded) {
		t.Fatalf("errors.Is did not match ErrQuotaExceeded")
	}
	if IsQuotaExceeded(errors.New("status 429 in text only")) {
		t.Fatalf("textual 429 must not be classified as quota")
	}
	if IsQuotaExceeded(nil) {
		t.Fatalf("nil classified as quota")
	}
}
