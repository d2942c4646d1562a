// Package audit implements the tamper-evident audit log: every
// state-changing action is appended as a hash-chained entry whose content
// hash binds the full payload plus the previous entry's hash. Mutating any
// persisted entry breaks the chain from that point forward, which the
// verifier detects by replaying it.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Record is the caller-supplied portion of an audit entry. The store
// assigns the sequence id, timestamp and both hashes.
type Record struct {
	ActorID     *uuid.UUID
	ActorType   string
	Action      string
	EntityType  string
	EntityID    *uuid.UUID
	BeforeState map[string]any
	AfterState  map[string]any
	Metadata    map[string]any
	RequestID   *string
}

// Entry is one immutable row of the audit log. PreviousHash is nil only
// for the first entry ever written.
type Entry struct {
	ID           int64
	Timestamp    time.Time
	ActorID      *uuid.UUID
	ActorType    string
	Action       string
	EntityType   string
	EntityID     *uuid.UUID
	BeforeState  map[string]any
	AfterState   map[string]any
	Metadata     map[string]any
	RequestID    *string
	PreviousHash *string
	ContentHash  string
}

// Record re-extracts the hashed portion of an entry for verification.
func (e Entry) Record() Record {
	return Record{
		ActorID:     e.ActorID,
		ActorType:   e.ActorType,
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		BeforeState: e.BeforeState,
		AfterState:  e.AfterState,
		Metadata:    e.Metadata,
		RequestID:   e.RequestID,
	}
}
