// Package service orchestrates the core subsystems against the store:
// the audit recorder every mutating operation calls, and the analysis
// runner that turns a review's records into findings.
package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/certiview/certiview/internal/platform/audit"
	"github.com/certiview/certiview/internal/platform/metrics"
)

// AuditEvent is the contract every mutating operation honors: who did
// what to which entity, with before/after snapshots.
type AuditEvent struct {
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

// AuditRecorder appends hash-chained entries and runs chain verification.
type AuditRecorder struct {
	store   audit.Store
	metrics *metrics.Metrics
}

func NewAuditRecorder(store audit.Store, m *metrics.Metrics) *AuditRecorder {
	return &AuditRecorder{store: store, metrics: m}
}

func (ev AuditEvent) record() audit.Record {
	actorType := ev.ActorType
	if actorType == "" {
		actorType = "USER"
	}
	return audit.Record{
		ActorID:     ev.ActorID,
		ActorType:   actorType,
		Action:      ev.Action,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		BeforeState: ev.BeforeState,
		AfterState:  ev.AfterState,
		Metadata:    ev.Metadata,
		RequestID:   ev.RequestID,
	}
}

func (r *AuditRecorder) Record(ctx context.Context, ev AuditEvent) (audit.Entry, error) {
	entry, err := r.store.Append(ctx, ev.record())
	return r.finish(ev, entry, err)
}

// RecordTx appends the entry inside the caller's transaction when the
// store supports that, so the audited mutation and its trail entry
// commit atomically. Non-transactional stores fall back to a plain
// append.
func (r *AuditRecorder) RecordTx(ctx context.Context, tx *sql.Tx, ev AuditEvent) (audit.Entry, error) {
	txStore, ok := r.store.(audit.TxAppender)
	if !ok || tx == nil {
		return r.Record(ctx, ev)
	}
	entry, err := txStore.AppendTx(ctx, tx, ev.record())
	return r.finish(ev, entry, err)
}

func (r *AuditRecorder) finish(ev AuditEvent, entry audit.Entry, err error) (audit.Entry, error) {
	if err != nil {
		r.metrics.AuditAppend("error")
		log.WithError(err).WithFields(log.Fields{
			"action":      ev.Action,
			"entity_type": ev.EntityType,
		}).Error("audit append failed")
		return audit.Entry{}, err
	}
	r.metrics.AuditAppend("success")
	log.WithFields(log.Fields{
		"audit_id":    entry.ID,
		"action":      entry.Action,
		"entity_type": entry.EntityType,
	}).Debug("audit entry appended")
	return entry, nil
}

// Verify replays the full chain and reports the first broken link, if
// any. Safe to run while writers append.
func (r *AuditRecorder) Verify(ctx context.Context) (audit.VerificationResult, error) {
	result, err := audit.Verify(ctx, r.store)
	if err != nil {
		return audit.VerificationResult{}, err
	}
	r.metrics.ChainVerified(result.Valid, result.CheckedEntries)
	if !result.Valid {
		log.WithField("first_invalid_id", *result.FirstInvalidID).Warn(result.Message)
	}
	return result, nil
}

// Entries exposes the raw chain for the operational listing endpoint.
func (r *AuditRecorder) Entries(ctx context.Context) ([]audit.Entry, error) {
	return r.store.Entries(ctx)
}
