package engine

import (
	"time"

	"github.com/certiview/certiview/internal/platform/canonical"
)

// Check is one declarative rule of a framework.
type Check struct {
	ID                     string
	Name                   string
	DefaultSeverity        string
	Enabled                bool
	Condition              Condition
	Filter                 Condition
	SeverityRules          []SeverityRule
	ExplainabilityTemplate string
	OutputFields           []string
}

// RunInput carries everything one analysis run needs. Settings arrive as
// an explicit argument; the engine never reads ambient state.
type RunInput struct {
	ReviewID    string
	FrameworkID string
	Settings    map[string]any
	Checks      []Check
	Records     []map[string]any
	References  []ReferenceRecord
}

// Finding is one compliance exception produced by a check that matched at
// least one record.
type Finding struct {
	CheckID           string
	CheckName         string
	Severity          string
	Explanation       string
	RecordCount       int
	AffectedRecordIDs []string
	OutputFields      []string
}

type RunResult struct {
	Findings    []Finding
	Checksum    string
	CheckCount  int
	RecordCount int
}

// Run evaluates every enabled check against the record batch. Checks with
// zero affected records produce no finding. The checksum binds the run's
// inputs for later auditability.
func Run(in RunInput, now time.Time) (RunResult, error) {
	result := RunResult{
		CheckCount:  len(in.Checks),
		RecordCount: len(in.Records),
	}

	for _, check := range in.Checks {
		if !check.Enabled {
			continue
		}

		var affected []map[string]any
		severityCtx := map[string]any{}

		switch cond := check.Condition.(type) {
		case RoleMatch:
			for _, rec := range in.Records {
				roles, ok := asRoleList(ResolveField(rec, cond.Field))
				if !ok {
					continue
				}
				if MatchRoles(roles, cond.Patterns, cond.Mode) {
					affected = append(affected, rec)
				}
			}
		case CrossReference:
			affected = resolveCrossReference(check, cond, in, severityCtx, now)
		default:
			for _, rec := range in.Records {
				if Match(check.Condition, rec, in.Settings, now) {
					affected = append(affected, rec)
				}
			}
		}

		if len(affected) == 0 {
			continue
		}

		ids := make([]string, 0, len(affected))
		for _, rec := range affected {
			ids = append(ids, stringify(rec["id"]))
		}
		result.Findings = append(result.Findings, Finding{
			CheckID:           check.ID,
			CheckName:         check.Name,
			Severity:          ResolveSeverity(check, severityCtx),
			Explanation:       RenderExplanation(check.ExplainabilityTemplate, check.Name, len(affected)),
			RecordCount:       len(affected),
			AffectedRecordIDs: ids,
			OutputFields:      check.OutputFields,
		})
	}

	checksum, err := canonical.Hash(map[string]any{
		"review_id":    in.ReviewID,
		"framework_id": in.FrameworkID,
		"check_count":  result.CheckCount,
		"record_count": result.RecordCount,
	})
	if err != nil {
		return RunResult{}, err
	}
	result.Checksum = checksum
	return result, nil
}

// resolveCrossReference flags primary records missing from the active
// reference population. A matched-but-inactive reference with a
// termination date exposes days_since_termination to severity rules.
func resolveCrossReference(check Check, cond CrossReference, in RunInput, severityCtx map[string]any, now time.Time) []map[string]any {
	filter := check.Filter
	if filter == nil {
		filter = cond.PrimaryFilter
	}
	primary := in.Records
	if filter != nil {
		primary = primary[:0:0]
		for _, rec := range in.Records {
			if Match(filter, rec, in.Settings, now) {
				primary = append(primary, rec)
			}
		}
	}

	if cond.Mode != ModeMissingInSecondary {
		return nil
	}

	idx := buildReferenceIndex(in.References)
	var affected []map[string]any
	for _, rec := range primary {
		key := cond.matchKey(rec)
		if key == "" || idx.isActive(key) {
			continue
		}
		if ref, ok := idx.records[key]; ok && ref.TerminationDate != nil {
			severityCtx["days_since_termination"] = daysBetween(*ref.TerminationDate, now)
		}
		affected = append(affected, rec)
	}
	return affected
}

func daysBetween(from, to time.Time) int {
	fromDay := from.UTC().Truncate(24 * time.Hour)
	toDay := to.UTC().Truncate(24 * time.Hour)
	return int(toDay.Sub(fromDay).Hours() / 24)
}
