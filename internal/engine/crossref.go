package engine

import (
	"strings"
	"time"
)

// ModeMissingInSecondary flags primary records whose match key is absent
// from the active reference population. Other modes are reserved and
// currently match nothing.
const ModeMissingInSecondary = "present_in_primary_absent_in_secondary"

// MatchPair configures which primary field joins against which reference
// field. Only the first pair's primary side participates today; the
// reference side is implied by the index keys (email and identifier).
type MatchPair struct {
	PrimaryField   string
	ReferenceField string
}

// ReferenceRecord is the engine's view of one row of a reference dataset
// (e.g. an HR roster).
type ReferenceRecord struct {
	Identifier       string
	DisplayName      string
	Email            string
	EmploymentStatus string
	TerminationDate  *time.Time
}

// Active reports whether the reference record counts as present in the
// secondary population. An empty employment status is treated as active.
func (r ReferenceRecord) Active() bool {
	return r.EmploymentStatus == "" || strings.EqualFold(r.EmploymentStatus, "active")
}

// referenceIndex is keyed by normalized email and identifier. Later
// records overwrite earlier ones for the same key.
type referenceIndex struct {
	active  map[string]struct{}
	records map[string]ReferenceRecord
}

func buildReferenceIndex(refs []ReferenceRecord) referenceIndex {
	idx := referenceIndex{
		active:  make(map[string]struct{}),
		records: make(map[string]ReferenceRecord),
	}
	for _, ref := range refs {
		for _, raw := range []string{ref.Email, ref.Identifier} {
			key := normalizeKey(raw)
			if key == "" {
				continue
			}
			idx.records[key] = ref
			if ref.Active() {
				idx.active[key] = struct{}{}
			}
		}
	}
	return idx
}

func (idx referenceIndex) isActive(key string) bool {
	_, ok := idx.active[key]
	return ok
}

// matchKey resolves the join key for one primary record. Fallback chain,
// most specific first: explicit match_field, then the first match_on
// pair's primary field, then email and finally identifier.
func (c CrossReference) matchKey(record map[string]any) string {
	var candidate any
	switch {
	case c.MatchField != "":
		candidate = ResolveField(record, c.MatchField)
	case len(c.MatchOn) > 0:
		field := c.MatchOn[0].PrimaryField
		if field == "" {
			field = "email"
		}
		candidate = ResolveField(record, field)
	default:
		candidate = record["email"]
		if normalizeKey(stringify(candidate)) == "" {
			candidate = record["identifier"]
		}
	}
	return normalizeKey(stringify(candidate))
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
