package audit

import (
	"encoding/json"

	"github.com/certiview/certiview/internal/platform/canonical"
)

// normalizeState passes a snapshot through the same JSON encode/decode a
// store applies when persisting and replaying it. Hashing the normalized
// form keeps the content hash stable across a storage round trip: a
// non-UTC time.Time or an integer beyond float64 precision would
// otherwise hash differently before and after persistence.
func normalizeState(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// hashPayload builds the mapping that gets canonicalized and hashed.
// Field set and null handling must stay stable forever: changing either
// invalidates every previously written chain.
func hashPayload(rec Record, previousHash *string) map[string]any {
	var actorID any
	if rec.ActorID != nil {
		actorID = rec.ActorID.String()
	}
	var entityID any
	if rec.EntityID != nil {
		entityID = rec.EntityID.String()
	}
	var before any
	if rec.BeforeState != nil {
		before = rec.BeforeState
	}
	var after any
	if rec.AfterState != nil {
		after = rec.AfterState
	}
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	var requestID any
	if rec.RequestID != nil {
		requestID = *rec.RequestID
	}
	var prev any
	if previousHash != nil {
		prev = *previousHash
	}
	return map[string]any{
		"actor_id":      actorID,
		"actor_type":    rec.ActorType,
		"action":        rec.Action,
		"entity_type":   rec.EntityType,
		"entity_id":     entityID,
		"before_state":  before,
		"after_state":   after,
		"metadata":      metadata,
		"request_id":    requestID,
		"previous_hash": prev,
	}
}

// ComputeHash returns the content hash for a record chained onto
// previousHash (nil for the first entry). States and metadata are
// normalized first, so the hash covers the persisted form of a record
// rather than the caller's in-memory one.
func ComputeHash(rec Record, previousHash *string) (string, error) {
	var err error
	if rec.BeforeState, err = normalizeState(rec.BeforeState); err != nil {
		return "", err
	}
	if rec.AfterState, err = normalizeState(rec.AfterState); err != nil {
		return "", err
	}
	if rec.Metadata, err = normalizeState(rec.Metadata); err != nil {
		return "", err
	}
	return canonical.Hash(hashPayload(rec, previousHash))
}
