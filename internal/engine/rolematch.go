package engine

import (
	"path"
	"strings"
)

// matchPattern does case-insensitive glob matching. Patterns anchor at
// both ends: "ADMIN*" matches only strings starting with ADMIN, while
// "*ADMIN*" matches ADMIN anywhere. Invalid patterns match nothing.
func matchPattern(pattern, s string) bool {
	ok, err := path.Match(strings.ToUpper(pattern), strings.ToUpper(s))
	return err == nil && ok
}

// MatchRoles reports whether a record's role list satisfies the patterns.
// Mode "any" needs at least one role matching at least one pattern; any
// other mode needs every role to match at least one pattern (vacuously
// true for an empty role list).
func MatchRoles(roles, patterns []string, mode string) bool {
	if mode == "any" {
		for _, role := range roles {
			if roleMatchesAny(role, patterns) {
				return true
			}
		}
		return false
	}
	for _, role := range roles {
		if !roleMatchesAny(role, patterns) {
			return false
		}
	}
	return true
}

func roleMatchesAny(role string, patterns []string) bool {
	for _, p := range patterns {
		if matchPattern(p, role) {
			return true
		}
	}
	return false
}

// asRoleList normalizes a resolved field into a role string list. A
// missing field is an empty list; a non-list value is not a role list at
// all and the record is skipped.
func asRoleList(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringify(item))
		}
		return out, true
	default:
		return nil, false
	}
}
