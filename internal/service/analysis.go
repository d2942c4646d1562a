package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/certiview/certiview/internal/domain"
	"github.com/certiview/certiview/internal/engine"
	"github.com/certiview/certiview/internal/platform/clock"
	"github.com/certiview/certiview/internal/platform/metrics"
)

var ErrReviewNotFound = errors.New("review not found")

// Analysis runs a review's bound framework against its current record
// set. A run supersedes the review's previous findings wholesale: the
// delete, the inserts, the review stamp and the audit entry commit in
// one transaction, so a crash mid-run cannot leave a partial finding set
// or an unaudited run behind.
type Analysis struct {
	db       *sql.DB
	clk      clock.Clock
	metrics  *metrics.Metrics
	recorder *AuditRecorder
}

func NewAnalysis(db *sql.DB, clk clock.Clock, m *metrics.Metrics, recorder *AuditRecorder) *Analysis {
	return &Analysis{db: db, clk: clk, metrics: m, recorder: recorder}
}

// RunMeta identifies the caller for the audit trail.
type RunMeta struct {
	ActorID   *uuid.UUID
	ActorType string
	RequestID *string
}

type RunSummary struct {
	FindingsCreated int    `json:"findings_created"`
	Checksum        string `json:"analysis_checksum"`
}

func (s *Analysis) Run(ctx context.Context, reviewID uuid.UUID, meta RunMeta) (RunSummary, error) {
	review, err := s.loadReview(ctx, reviewID)
	if err != nil {
		s.metrics.AnalysisRun("error", 0)
		return RunSummary{}, err
	}
	framework, err := s.loadFramework(ctx, review.FrameworkID)
	if err != nil {
		s.metrics.AnalysisRun("error", 0)
		return RunSummary{}, err
	}
	records, err := s.loadRecords(ctx, reviewID)
	if err != nil {
		s.metrics.AnalysisRun("error", 0)
		return RunSummary{}, err
	}
	references, err := s.loadReferenceRecords(ctx, reviewID)
	if err != nil {
		s.metrics.AnalysisRun("error", 0)
		return RunSummary{}, err
	}

	payloads := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		payloads = append(payloads, rec.Payload())
	}
	refs := make([]engine.ReferenceRecord, 0, len(references))
	for _, ref := range references {
		refs = append(refs, ref.Engine())
	}

	result, err := engine.Run(engine.RunInput{
		ReviewID:    review.ID.String(),
		FrameworkID: framework.ID.String(),
		Settings:    framework.Settings,
		Checks:      framework.Checks,
		Records:     payloads,
		References:  refs,
	}, s.clk.Now())
	if err != nil {
		s.metrics.AnalysisRun("error", 0)
		return RunSummary{}, fmt.Errorf("run analysis: %w", err)
	}

	if err := s.persistRun(ctx, review, result, meta); err != nil {
		s.metrics.AnalysisRun("error", 0)
		return RunSummary{}, err
	}
	s.metrics.AnalysisRun("success", len(result.Findings))

	log.WithFields(log.Fields{
		"review_id":    review.ID,
		"framework_id": framework.ID,
		"findings":     len(result.Findings),
		"records":      result.RecordCount,
		"checksum":     result.Checksum,
	}).Info("analysis run completed")

	return RunSummary{FindingsCreated: len(result.Findings), Checksum: result.Checksum}, nil
}

// persistRun swaps the review's findings, stamps it analyzed and appends
// the audit entry, all in one transaction: a run that cannot be audited
// does not land.
func (s *Analysis) persistRun(ctx context.Context, review domain.Review, result engine.RunResult, meta RunMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteFindings(ctx, tx, review.ID); err != nil {
		return fmt.Errorf("delete stale findings: %w", err)
	}
	now := s.clk.Now()
	for _, f := range result.Findings {
		finding := domain.Finding{
			ID:                uuid.New(),
			ReviewID:          review.ID,
			CheckID:           f.CheckID,
			CheckName:         f.CheckName,
			Severity:          f.Severity,
			Explainability:    f.Explanation,
			Status:            "open",
			RecordCount:       f.RecordCount,
			AffectedRecordIDs: f.AffectedRecordIDs,
			OutputFields:      f.OutputFields,
			CreatedAt:         now,
		}
		if err := s.insertFinding(ctx, tx, finding); err != nil {
			return fmt.Errorf("insert finding for check %s: %w", f.CheckID, err)
		}
	}
	if err := s.stampReview(ctx, tx, review.ID, result.Checksum); err != nil {
		return fmt.Errorf("stamp review: %w", err)
	}
	if s.recorder != nil {
		prevChecksum := ""
		if review.AnalysisChecksum != nil {
			prevChecksum = *review.AnalysisChecksum
		}
		entityID := review.ID
		if _, err := s.recorder.RecordTx(ctx, tx, AuditEvent{
			ActorID:    meta.ActorID,
			ActorType:  meta.ActorType,
			Action:     "analyze",
			EntityType: "review",
			EntityID:   &entityID,
			BeforeState: map[string]any{
				"status":            review.Status,
				"analysis_checksum": prevChecksum,
			},
			AfterState: map[string]any{
				"status":            "analyzed",
				"analysis_checksum": result.Checksum,
			},
			Metadata: map[string]any{
				"findings_created": len(result.Findings),
				"check_count":      result.CheckCount,
				"record_count":     result.RecordCount,
			},
			RequestID: meta.RequestID,
		}); err != nil {
			return fmt.Errorf("record analysis audit entry: %w", err)
		}
	}
	return tx.Commit()
}
