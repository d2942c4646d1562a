package engine

import "strings"

// ResolveField walks a dotted path ("a.b.c") through nested mappings.
// Any missing or non-mapping intermediate yields nil, never an error.
func ResolveField(record map[string]any, path string) any {
	var current any = record
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
