// Package engine evaluates a framework's declarative checks against a
// batch of normalized records and produces findings. The engine is pure:
// it reads nothing but its arguments and touches no store, so the same
// inputs always produce the same findings and run checksum.
package engine

import (
	"math"
	"strings"
	"time"
)

// Condition is the closed set of check condition kinds. Decoding never
// fails: anything unrecognized becomes Unknown, which matches nothing, so
// malformed check definitions degrade to "no match" instead of aborting
// an analysis run.
type Condition interface {
	isCondition()
}

type BoolOperator string

const (
	OpAnd BoolOperator = "AND"
	OpOr  BoolOperator = "OR"
)

// Compound combines sub-conditions with AND/OR. An empty AND is
// vacuously true; an empty OR is false.
type Compound struct {
	Operator   BoolOperator
	Conditions []Condition
}

type Equals struct {
	Field string
	Value any
}

type NotEquals struct {
	Field string
	Value any
}

type GreaterThan struct {
	Field string
	Value any
}

type GreaterThanOrEqual struct {
	Field string
	Value any
}

// OlderThanDays is true when the resolved field parses as a timestamp at
// least Value whole days in the past.
type OlderThanDays struct {
	Field string
	Value any
}

// Contains tests list membership when the field resolves to a list,
// substring containment otherwise.
type Contains struct {
	Field string
	Value any
}

// RoleMatch is a check-level condition: the field resolves to a list of
// role strings matched case-insensitively against glob patterns.
type RoleMatch struct {
	Field    string
	Patterns []string
	Mode     string
}

// CrossReference is a check-level condition comparing the primary record
// set against reference datasets. See crossref.go.
type CrossReference struct {
	Mode          string
	MatchField    string
	MatchOn       []MatchPair
	PrimaryFilter Condition
}

// Unknown stands in for any operator the engine does not recognize.
type Unknown struct {
	Operator string
}

func (Compound) isCondition()           {}
func (Equals) isCondition()             {}
func (NotEquals) isCondition()          {}
func (GreaterThan) isCondition()        {}
func (GreaterThanOrEqual) isCondition() {}
func (OlderThanDays) isCondition()      {}
func (Contains) isCondition()           {}
func (RoleMatch) isCondition()          {}
func (CrossReference) isCondition()     {}
func (Unknown) isCondition()            {}

// Match evaluates a condition against one record. Comparison literals may
// be "${settings.<key>}" placeholders resolved from the settings mapping;
// now anchors age-based conditions. Check-level kinds (RoleMatch,
// CrossReference) nested here evaluate false.
func Match(cond Condition, record, settings map[string]any, now time.Time) bool {
	switch c := cond.(type) {
	case Compound:
		if c.Operator == OpOr {
			for _, sub := range c.Conditions {
				if Match(sub, record, settings, now) {
					return true
				}
			}
			return false
		}
		for _, sub := range c.Conditions {
			if !Match(sub, record, settings, now) {
				return false
			}
		}
		return true
	case Equals:
		return looseEqual(resolve(record, c.Field), substituteSettings(c.Value, settings))
	case NotEquals:
		return !looseEqual(resolve(record, c.Field), substituteSettings(c.Value, settings))
	case GreaterThan:
		actual, aok := toFloat(resolve(record, c.Field))
		expected, eok := toFloat(substituteSettings(c.Value, settings))
		return aok && eok && actual > expected
	case GreaterThanOrEqual:
		actual, aok := toFloat(resolve(record, c.Field))
		expected, eok := toFloat(substituteSettings(c.Value, settings))
		return aok && eok && actual >= expected
	case OlderThanDays:
		ts, ok := parseTimestamp(resolve(record, c.Field))
		if !ok {
			return false
		}
		threshold, ok := toInt(substituteSettings(c.Value, settings))
		if !ok {
			return false
		}
		return wholeDays(now.Sub(ts)) >= threshold
	case Contains:
		actual := resolve(record, c.Field)
		value := substituteSettings(c.Value, settings)
		switch list := actual.(type) {
		case []any:
			for _, item := range list {
				if looseEqual(item, value) {
					return true
				}
			}
			return false
		case []string:
			for _, item := range list {
				if looseEqual(item, value) {
					return true
				}
			}
			return false
		default:
			return strings.Contains(stringify(actual), stringify(value))
		}
	case RoleMatch, CrossReference, Unknown:
		return false
	default:
		return false
	}
}

func resolve(record map[string]any, field string) any {
	if field == "" {
		return nil
	}
	return ResolveField(record, field)
}

// wholeDays floors, so a timestamp exactly N days old reports N and a
// future timestamp reports a negative count rather than rounding up to
// zero.
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}
