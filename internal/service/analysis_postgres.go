package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/certiview/certiview/internal/domain"
	"github.com/certiview/certiview/internal/engine"
)

func (s *Analysis) loadReview(ctx context.Context, id uuid.UUID) (domain.Review, error) {
	const q = `
SELECT id, name, application_id, framework_id, framework_version_label, status, analysis_checksum
FROM reviews
WHERE id = $1 AND is_active
`
	var (
		r        domain.Review
		checksum sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&r.ID, &r.Name, &r.ApplicationID, &r.FrameworkID, &r.FrameworkVersionLabel, &r.Status, &checksum,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, ErrReviewNotFound
	}
	if err != nil {
		return domain.Review{}, err
	}
	if checksum.Valid {
		r.AnalysisChecksum = &checksum.String
	}
	return r, nil
}

func (s *Analysis) loadFramework(ctx context.Context, id uuid.UUID) (domain.Framework, error) {
	const q = `
SELECT id, name, review_type, version_major, version_minor, version_patch,
       settings, checks, status, is_immutable
FROM frameworks
WHERE id = $1
`
	var (
		f                domain.Framework
		settings, checks []byte
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&f.ID, &f.Name, &f.ReviewType, &f.VersionMajor, &f.VersionMinor, &f.VersionPatch,
		&settings, &checks, &f.Status, &f.IsImmutable,
	)
	if err != nil {
		return domain.Framework{}, fmt.Errorf("load framework %s: %w", id, err)
	}
	f.Settings = map[string]any{}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &f.Settings); err != nil {
			return domain.Framework{}, fmt.Errorf("decode framework settings: %w", err)
		}
	}
	if f.Checks, err = engine.DecodeChecks(checks); err != nil {
		return domain.Framework{}, err
	}
	return f, nil
}

func (s *Analysis) loadRecords(ctx context.Context, reviewID uuid.UUID) ([]domain.ExtractedRecord, error) {
	const q = `
SELECT r.id, r.extraction_id, r.record_index,
       r.identifier, r.display_name, r.email, r.status, r.last_activity,
       r.department, r.manager, r.account_type,
       r.roles, r.extended_attributes, r.data
FROM extracted_records r
JOIN extractions e ON r.extraction_id = e.id
WHERE e.review_id = $1 AND e.is_active
ORDER BY r.record_index ASC
`
	rows, err := s.db.QueryContext(ctx, q, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExtractedRecord
	for rows.Next() {
		var (
			rec                                 domain.ExtractedRecord
			identifier, displayName, email      sql.NullString
			status, department, manager, acctTy sql.NullString
			lastActivity                        sql.NullTime
			roles, extended, data               []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.ExtractionID, &rec.RecordIndex,
			&identifier, &displayName, &email, &status, &lastActivity,
			&department, &manager, &acctTy,
			&roles, &extended, &data,
		); err != nil {
			return nil, err
		}
		rec.Identifier = identifier.String
		rec.DisplayName = displayName.String
		rec.Email = email.String
		rec.Status = status.String
		rec.Department = department.String
		rec.Manager = manager.String
		rec.AccountType = acctTy.String
		if lastActivity.Valid {
			t := lastActivity.Time.UTC()
			rec.LastActivity = &t
		}
		if len(roles) > 0 {
			if err := json.Unmarshal(roles, &rec.Roles); err != nil {
				return nil, fmt.Errorf("record %s roles: %w", rec.ID, err)
			}
		}
		if len(extended) > 0 {
			if err := json.Unmarshal(extended, &rec.ExtendedAttributes); err != nil {
				return nil, fmt.Errorf("record %s extended_attributes: %w", rec.ID, err)
			}
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Data); err != nil {
				return nil, fmt.Errorf("record %s data: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Analysis) loadReferenceRecords(ctx context.Context, reviewID uuid.UUID) ([]domain.ReferenceRecord, error) {
	const q = `
SELECT r.id, r.dataset_id, r.record_index,
       r.identifier, r.display_name, r.email, r.employment_status, r.department, r.termination_date
FROM reference_records r
JOIN review_reference_datasets rd ON r.dataset_id = rd.reference_dataset_id
WHERE rd.review_id = $1
ORDER BY r.dataset_id, r.record_index ASC
`
	rows, err := s.db.QueryContext(ctx, q, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReferenceRecord
	for rows.Next() {
		var (
			rec                            domain.ReferenceRecord
			identifier, displayName, email sql.NullString
			employmentStatus, department   sql.NullString
			terminationDate                sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID, &rec.DatasetID, &rec.RecordIndex,
			&identifier, &displayName, &email, &employmentStatus, &department, &terminationDate,
		); err != nil {
			return nil, err
		}
		rec.Identifier = identifier.String
		rec.DisplayName = displayName.String
		rec.Email = email.String
		rec.EmploymentStatus = employmentStatus.String
		rec.Department = department.String
		if terminationDate.Valid {
			t := terminationDate.Time.UTC()
			rec.TerminationDate = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Analysis) deleteFindings(ctx context.Context, tx *sql.Tx, reviewID uuid.UUID) error {
	const q = `DELETE FROM findings WHERE review_id = $1`
	_, err := tx.ExecContext(ctx, q, reviewID)
	return err
}

func (s *Analysis) insertFinding(ctx context.Context, tx *sql.Tx, f domain.Finding) error {
	affected, err := json.Marshal(f.AffectedRecordIDs)
	if err != nil {
		return err
	}
	outputFields, err := json.Marshal(f.OutputFields)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO findings (
  id, review_id, check_id, check_name, severity, explainability,
  status, record_count, affected_record_ids, output_fields, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11)
`
	_, err = tx.ExecContext(ctx, q,
		f.ID, f.ReviewID, f.CheckID, f.CheckName, f.Severity, f.Explainability,
		f.Status, f.RecordCount, affected, outputFields, f.CreatedAt,
	)
	return err
}

func (s *Analysis) stampReview(ctx context.Context, tx *sql.Tx, reviewID uuid.UUID, checksum string) error {
	const q = `
UPDATE reviews
SET status = 'analyzed', analysis_checksum = $2, updated_at = NOW()
WHERE id = $1
`
	_, err := tx.ExecContext(ctx, q, reviewID, checksum)
	return err
}
