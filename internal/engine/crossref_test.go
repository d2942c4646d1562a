package engine

import (
	"testing"
	"time"
)

func refTime(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestCrossReferenceMatchKey(t *testing.T) {
	record := map[string]any{
		"email":      "  Jane.Doe@Example.com ",
		"identifier": "JDOE",
		"data": map[string]any{
			"upn": "jane@corp.example",
		},
	}
	cases := []struct {
		name string
		cond CrossReference
		want string
	}{
		{"explicit match_field wins", CrossReference{MatchField: "data.upn", MatchOn: []MatchPair{{PrimaryField: "identifier"}}}, "jane@corp.example"},
		{"first match_on pair", CrossReference{MatchOn: []MatchPair{{PrimaryField: "identifier"}, {PrimaryField: "email"}}}, "jdoe"},
		{"match_on empty primary field defaults to email", CrossReference{MatchOn: []MatchPair{{ReferenceField: "mail"}}}, "jane.doe@example.com"},
		{"default email normalized", CrossReference{}, "jane.doe@example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.matchKey(record); got != tc.want {
				t.Fatalf("matchKey = %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("falls back to identifier when email blank", func(t *testing.T) {
		rec := map[string]any{"email": "  ", "identifier": "SVC-42"}
		if got := (CrossReference{}).matchKey(rec); got != "svc-42" {
			t.Fatalf("matchKey = %q, want %q", got, "svc-42")
		}
	})
	t.Run("empty when nothing resolves", func(t *testing.T) {
		if got := (CrossReference{}).matchKey(map[string]any{}); got != "" {
			t.Fatalf("matchKey = %q, want empty", got)
		}
	})
}

func TestReferenceRecordActive(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{"active", true},
		{"Active", true},
		{"", true},
		{"terminated", false},
		{"on_leave", false},
	}
	for _, tc := range cases {
		r := ReferenceRecord{EmploymentStatus: tc.status}
		if got := r.Active(); got != tc.want {
			t.Fatalf("Active(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestCrossReferenceAnalysis(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []map[string]any{
		{"id": "r1", "identifier": "alice", "email": "alice@example.com", "status": "active"},
		{"id": "r2", "identifier": "bob", "email": "bob@example.com", "status": "active"},
		{"id": "r3", "identifier": "carol", "email": "carol@example.com", "status": "active"},
		{"id": "r4", "identifier": "dave", "email": "dave@example.com", "status": "disabled"},
	}
	references := []ReferenceRecord{
		{Identifier: "alice", Email: "ALICE@example.com", EmploymentStatus: "active"},
		{Identifier: "bob", Email: "bob@example.com", EmploymentStatus: "terminated", TerminationDate: refTime("2026-05-02")},
		// carol has no row at all; dave has an empty status and counts as active.
		{Identifier: "dave", Email: "dave@example.com"},
	}

	check := Check{
		ID:      "check_1",
		Name:    "Leavers with access",
		Enabled: true,
		Condition: CrossReference{
			Mode: ModeMissingInSecondary,
		},
		SeverityRules: []SeverityRule{
			{
				Condition: &Comparison{Op: ">", Left: Operand{Var: "days_since_termination"}, Right: Operand{Literal: 14}},
				Severity:  "critical",
			},
		},
		OutputFields: DefaultOutputFields,
	}

	result, err := Run(RunInput{
		ReviewID:    "rev-1",
		FrameworkID: "fw-1",
		Checks:      []Check{check},
		Records:     records,
		References:  references,
	}, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(result.Findings))
	}
	f := result.Findings[0]
	if f.RecordCount != 2 {
		t.Fatalf("record_count = %d, want 2 (terminated bob, unmatched carol)", f.RecordCount)
	}
	got := map[string]bool{}
	for _, id := range f.AffectedRecordIDs {
		got[id] = true
	}
	if !got["r2"] || !got["r3"] || got["r1"] || got["r4"] {
		t.Fatalf("affected ids = %v, want r2 and r3 only", f.AffectedRecordIDs)
	}
	// Bob was terminated 30 days before the run, so the severity rule on
	// days_since_termination fires.
	if f.Severity != "critical" {
		t.Fatalf("severity = %q, want critical", f.Severity)
	}
}

func TestCrossReferencePrimaryFilter(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []map[string]any{
		{"id": "r1", "email": "gone@example.com", "status": "active"},
		{"id": "r2", "email": "gone-too@example.com", "status": "disabled"},
	}

	check := Check{
		ID:      "check_1",
		Name:    "Orphaned active accounts",
		Enabled: true,
		Condition: CrossReference{
			Mode:          ModeMissingInSecondary,
			PrimaryFilter: Equals{Field: "status", Value: "active"},
		},
	}

	result, err := Run(RunInput{
		ReviewID:    "rev-1",
		FrameworkID: "fw-1",
		Checks:      []Check{check},
		Records:     records,
	}, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(result.Findings))
	}
	f := result.Findings[0]
	if f.RecordCount != 1 || f.AffectedRecordIDs[0] != "r1" {
		t.Fatalf("affected = %v, want only r1 (filter drops disabled accounts)", f.AffectedRecordIDs)
	}
}

func TestCrossReferenceReservedModeMatchesNothing(t *testing.T) {
	result, err := Run(RunInput{
		ReviewID:    "rev-1",
		FrameworkID: "fw-1",
		Checks: []Check{{
			ID:        "check_1",
			Name:      "reserved mode",
			Enabled:   true,
			Condition: CrossReference{Mode: "present_in_both"},
		}},
		Records: []map[string]any{{"id": "r1", "email": "x@example.com"}},
	}, time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Findings) != 0 {
		t.Fatalf("findings = %d, want 0 for reserved mode", len(result.Findings))
	}
}
