package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultOutputFields is used when a check definition omits output_fields.
var DefaultOutputFields = []string{"identifier", "display_name", "email", "status"}

// DecodeChecks parses a framework's checks array. Individual check fields
// are decoded permissively: a malformed condition becomes Unknown rather
// than failing the whole framework.
func DecodeChecks(raw []byte) ([]Check, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var defs []map[string]any
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("decode checks: %w", err)
	}
	out := make([]Check, 0, len(defs))
	for i, def := range defs {
		out = append(out, decodeCheck(def, i))
	}
	return out, nil
}

func decodeCheck(def map[string]any, ordinal int) Check {
	c := Check{
		ID:                     asString(def["id"]),
		Name:                   asString(def["name"]),
		DefaultSeverity:        asString(def["default_severity"]),
		Enabled:                true,
		Condition:              DecodeCondition(asMap(def["condition"])),
		ExplainabilityTemplate: asString(def["explainability_template"]),
		OutputFields:           asStringSlice(def["output_fields"]),
	}
	if c.ID == "" {
		c.ID = fmt.Sprintf("check_%d", ordinal+1)
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if enabled, ok := def["enabled"].(bool); ok {
		c.Enabled = enabled
	}
	if filter := asMap(def["filter"]); filter != nil {
		cond := DecodeCondition(filter)
		c.Filter = cond
	}
	if rules, ok := def["severity_rules"].([]any); ok {
		for _, r := range rules {
			rule := asMap(r)
			if rule == nil {
				continue
			}
			c.SeverityRules = append(c.SeverityRules, SeverityRule{
				Condition: decodeComparison(asMap(rule["condition"])),
				Severity:  asString(rule["severity"]),
			})
		}
	}
	if c.OutputFields == nil {
		c.OutputFields = DefaultOutputFields
	}
	return c
}

// DecodeCondition turns one JSON condition node into its tagged variant.
func DecodeCondition(node map[string]any) Condition {
	if node == nil {
		return Unknown{}
	}
	switch asString(node["type"]) {
	case "compound":
		op := OpAnd
		if strings.EqualFold(asString(node["operator"]), string(OpOr)) {
			op = OpOr
		}
		var subs []Condition
		if list, ok := node["conditions"].([]any); ok {
			for _, item := range list {
				subs = append(subs, DecodeCondition(asMap(item)))
			}
		}
		return Compound{Operator: op, Conditions: subs}
	case "role_match":
		field := asString(node["field"])
		if field == "" {
			field = "roles"
		}
		mode := asString(node["mode"])
		if mode == "" {
			mode = "any"
		}
		return RoleMatch{
			Field:    field,
			Patterns: asStringSlice(node["patterns"]),
			Mode:     mode,
		}
	case "cross_reference":
		mode := asString(node["mode"])
		if mode == "" {
			mode = ModeMissingInSecondary
		}
		cr := CrossReference{
			Mode:       mode,
			MatchField: asString(node["match_field"]),
		}
		if pairs, ok := node["match_on"].([]any); ok {
			for _, item := range pairs {
				pair := asMap(item)
				if pair == nil {
					continue
				}
				cr.MatchOn = append(cr.MatchOn, MatchPair{
					PrimaryField:   asString(pair["primary_field"]),
					ReferenceField: asString(pair["reference_field"]),
				})
			}
		}
		if primary := asMap(node["primary_dataset"]); primary != nil {
			if filter := asMap(primary["filter"]); filter != nil {
				cr.PrimaryFilter = DecodeCondition(filter)
			}
		}
		return cr
	}

	field := asString(node["field"])
	value := node["value"]
	switch asString(node["operator"]) {
	case "equals":
		return Equals{Field: field, Value: value}
	case "not_equals":
		return NotEquals{Field: field, Value: value}
	case "greater_than":
		return GreaterThan{Field: field, Value: value}
	case "greater_than_or_equal":
		return GreaterThanOrEqual{Field: field, Value: value}
	case "older_than_days":
		return OlderThanDays{Field: field, Value: value}
	case "contains":
		return Contains{Field: field, Value: value}
	default:
		return Unknown{Operator: asString(node["operator"])}
	}
}

// decodeComparison parses the severity sublanguage: one comparison key
// mapping to a [left, right] pair where either side may be a
// {"var": name} reference.
func decodeComparison(node map[string]any) *Comparison {
	if node == nil {
		return nil
	}
	for _, op := range comparisonOperators {
		raw, ok := node[op]
		if !ok {
			continue
		}
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			return nil
		}
		return &Comparison{
			Op:    op,
			Left:  decodeOperand(pair[0]),
			Right: decodeOperand(pair[1]),
		}
	}
	return nil
}

func decodeOperand(v any) Operand {
	if m := asMap(v); m != nil {
		if name, ok := m["var"].(string); ok {
			return Operand{Var: name}
		}
	}
	return Operand{Literal: v}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringify(item))
		}
		return out
	default:
		return nil
	}
}
