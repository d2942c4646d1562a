package engine

import (
	"strconv"
	"strings"
)

// DefaultSeverity applies when a check names none and no rule fires.
const DefaultSeverity = "medium"

var comparisonOperators = []string{">", ">=", "<", "<=", "=="}

// SeverityRule overrides a check's default severity when its comparison
// holds against the run context. Rules are ordered; the first match wins.
type SeverityRule struct {
	Condition *Comparison
	Severity  string
}

// Comparison is one node of the restricted severity sublanguage:
// a single operator over a variable reference or literal on each side.
type Comparison struct {
	Op    string
	Left  Operand
	Right Operand
}

type Operand struct {
	Var     string
	Literal any
}

func (o Operand) value(ctx map[string]any) any {
	if o.Var != "" {
		return ctx[o.Var]
	}
	return o.Literal
}

// Eval returns false for any operand that fails numeric coercion; a
// malformed rule must never abort the run.
func (c *Comparison) Eval(ctx map[string]any) bool {
	if c == nil {
		return false
	}
	left := c.Left.value(ctx)
	right := c.Right.value(ctx)
	if c.Op == "==" {
		return looseEqual(left, right)
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return false
	}
	switch c.Op {
	case ">":
		return lf > rf
	case ">=":
		return lf >= rf
	case "<":
		return lf < rf
	case "<=":
		return lf <= rf
	default:
		return false
	}
}

// ResolveSeverity applies the check's ordered severity rules against the
// run context, falling back to the check's default severity.
func ResolveSeverity(check Check, ctx map[string]any) string {
	fallback := check.DefaultSeverity
	if fallback == "" {
		fallback = DefaultSeverity
	}
	for _, rule := range check.SeverityRules {
		if rule.Condition != nil && rule.Condition.Eval(ctx) {
			if rule.Severity != "" {
				return rule.Severity
			}
			return fallback
		}
	}
	return fallback
}

// RenderExplanation fills the check's explainability template, or builds
// a default sentence when the check has none.
func RenderExplanation(template, checkName string, recordCount int) string {
	if template != "" {
		return strings.ReplaceAll(template, "${record_count}", strconv.Itoa(recordCount))
	}
	return "Check '" + checkName + "' triggered for " + strconv.Itoa(recordCount) + " record(s)."
}
