package engine

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestMatchComparisons(t *testing.T) {
	record := map[string]any{
		"status":        "active",
		"account_type":  "service",
		"login_count":   float64(12),
		"days_inactive": float64(95),
		"roles":         []any{"VIEWER", "EDITOR"},
		"manager":       nil,
		"extended_attributes": map[string]any{
			"mfa_enrolled": false,
		},
	}
	settings := map[string]any{
		"inactivity_threshold": float64(90),
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals string", Equals{Field: "status", Value: "active"}, true},
		{"equals mismatch", Equals{Field: "status", Value: "disabled"}, false},
		{"equals int vs float", Equals{Field: "login_count", Value: 12}, true},
		{"equals string not number", Equals{Field: "login_count", Value: "12"}, false},
		{"equals nested path", Equals{Field: "extended_attributes.mfa_enrolled", Value: false}, true},
		{"equals missing field vs nil", Equals{Field: "manager", Value: nil}, true},
		{"not_equals", NotEquals{Field: "status", Value: "disabled"}, true},
		{"greater_than true", GreaterThan{Field: "login_count", Value: 10}, true},
		{"greater_than equal boundary", GreaterThan{Field: "login_count", Value: 12}, false},
		{"greater_than coerces string value", GreaterThan{Field: "login_count", Value: "10"}, true},
		{"greater_than non-numeric field", GreaterThan{Field: "status", Value: 10}, false},
		{"greater_than_or_equal boundary", GreaterThanOrEqual{Field: "login_count", Value: 12}, true},
		{"greater_than settings placeholder", GreaterThan{Field: "days_inactive", Value: "${settings.inactivity_threshold}"}, true},
		{"settings placeholder missing key", GreaterThan{Field: "days_inactive", Value: "${settings.no_such_key}"}, false},
		{"contains list member", Contains{Field: "roles", Value: "EDITOR"}, true},
		{"contains list absent", Contains{Field: "roles", Value: "ADMIN"}, false},
		{"contains substring", Contains{Field: "account_type", Value: "serv"}, true},
		{"contains missing field", Contains{Field: "nope", Value: "x"}, false},
		{"unknown operator never matches", Unknown{Operator: "regex_match"}, false},
		{"role_match nested in conditions is false", RoleMatch{Field: "roles", Patterns: []string{"*"}, Mode: "any"}, false},
		{
			"compound and",
			Compound{Operator: OpAnd, Conditions: []Condition{
				Equals{Field: "status", Value: "active"},
				GreaterThan{Field: "login_count", Value: 10},
			}},
			true,
		},
		{
			"compound and short-circuits false",
			Compound{Operator: OpAnd, Conditions: []Condition{
				Equals{Field: "status", Value: "disabled"},
				Unknown{},
			}},
			false,
		},
		{
			"compound or",
			Compound{Operator: OpOr, Conditions: []Condition{
				Equals{Field: "status", Value: "disabled"},
				Equals{Field: "account_type", Value: "service"},
			}},
			true,
		},
		{"empty and is vacuously true", Compound{Operator: OpAnd}, true},
		{"empty or is false", Compound{Operator: OpOr}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Match(tc.cond, record, settings, testNow); got != tc.want {
				t.Fatalf("Match(%#v) = %v, want %v", tc.cond, got, tc.want)
			}
		})
	}
}

func TestMatchOlderThanDays(t *testing.T) {
	cases := []struct {
		name  string
		value any
		days  any
		want  bool
	}{
		{"well past threshold", "2025-01-01T00:00:00Z", 90, true},
		{"exactly at threshold", testNow.AddDate(0, 0, -90).Format(time.RFC3339), 90, true},
		{"one day short", testNow.AddDate(0, 0, -89).Format(time.RFC3339), 90, false},
		{"bare date form", "2026-01-15", 90, true},
		{"same instant zero threshold", testNow.Format(time.RFC3339), 0, true},
		{"future timestamp zero threshold", testNow.Add(6 * time.Hour).Format(time.RFC3339), 0, false},
		{"future timestamp never older", testNow.AddDate(0, 0, 5).Format(time.RFC3339), 0, false},
		{"no offset form", "2026-05-20T08:00:00", 90, false},
		{"unparseable timestamp", "yesterday", 90, false},
		{"missing field", nil, 90, false},
		{"threshold as string", "2025-01-01T00:00:00Z", "90", true},
		{"threshold unparseable", "2025-01-01T00:00:00Z", "soon", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := map[string]any{}
			if tc.value != nil {
				record["last_activity"] = tc.value
			}
			cond := OlderThanDays{Field: "last_activity", Value: tc.days}
			if got := Match(cond, record, nil, testNow); got != tc.want {
				t.Fatalf("older_than_days(%v, %v) = %v, want %v", tc.value, tc.days, got, tc.want)
			}
		})
	}
}

func TestResolveFieldPaths(t *testing.T) {
	record := map[string]any{
		"identifier": "u-1",
		"data": map[string]any{
			"profile": map[string]any{"region": "emea"},
			"tags":    []any{"a", "b"},
		},
	}
	cases := []struct {
		path string
		want any
	}{
		{"identifier", "u-1"},
		{"data.profile.region", "emea"},
		{"data.missing", nil},
		{"data.tags.0", nil},
		{"identifier.sub", nil},
		{"", nil},
	}
	for _, tc := range cases {
		if got := ResolveField(record, tc.path); got != tc.want {
			t.Fatalf("ResolveField(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
