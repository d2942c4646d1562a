// Package domain holds the persisted shapes of the access-review system:
// frameworks and their checks, reviews, extracted and reference records,
// and the findings an analysis run generates.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/certiview/certiview/internal/engine"
)

// Framework is a versioned bundle of checks. Once published it is
// immutable; reviews bind to one framework version for their lifetime.
type Framework struct {
	ID           uuid.UUID
	Name         string
	ReviewType   string
	VersionMajor int
	VersionMinor int
	VersionPatch int
	Settings     map[string]any
	Checks       []engine.Check
	Status       string
	IsImmutable  bool
}

type Review struct {
	ID                    uuid.UUID
	Name                  string
	ApplicationID         uuid.UUID
	FrameworkID           uuid.UUID
	FrameworkVersionLabel string
	Status                string
	AnalysisChecksum      *string
}

// ExtractedRecord is one normalized row produced by upstream extraction.
// Immutable after creation.
type ExtractedRecord struct {
	ID                 uuid.UUID
	ExtractionID       uuid.UUID
	RecordIndex        int
	Identifier         string
	DisplayName        string
	Email              string
	Status             string
	LastActivity       *time.Time
	Department         string
	Manager            string
	AccountType        string
	Roles              []string
	ExtendedAttributes map[string]any
	Data               map[string]any
}

// Payload renders the record as the nested mapping the condition
// evaluator operates on. Key set is part of the check-definition
// contract; checks reference these names in their field paths.
func (r ExtractedRecord) Payload() map[string]any {
	var lastActivity any
	if r.LastActivity != nil {
		lastActivity = *r.LastActivity
	}
	roles := r.Roles
	if roles == nil {
		roles = []string{}
	}
	extended := r.ExtendedAttributes
	if extended == nil {
		extended = map[string]any{}
	}
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		"id":                  r.ID.String(),
		"identifier":          r.Identifier,
		"display_name":        r.DisplayName,
		"email":               r.Email,
		"status":              r.Status,
		"last_activity":       lastActivity,
		"department":          r.Department,
		"manager":             r.Manager,
		"account_type":        r.AccountType,
		"roles":               roles,
		"extended_attributes": extended,
		"data":                data,
	}
}

type ReferenceDataset struct {
	ID          uuid.UUID
	Name        string
	DataType    string
	RecordCount int
	IsActive    bool
}

// ReferenceRecord is one row of a reference dataset, e.g. an HR roster
// entry used to cross-check extracted access records.
type ReferenceRecord struct {
	ID               uuid.UUID
	DatasetID        uuid.UUID
	RecordIndex      int
	Identifier       string
	DisplayName      string
	Email            string
	EmploymentStatus string
	Department       string
	TerminationDate  *time.Time
}

// Engine converts to the analysis engine's reference view.
func (r ReferenceRecord) Engine() engine.ReferenceRecord {
	return engine.ReferenceRecord{
		Identifier:       r.Identifier,
		DisplayName:      r.DisplayName,
		Email:            r.Email,
		EmploymentStatus: r.EmploymentStatus,
		TerminationDate:  r.TerminationDate,
	}
}

// Finding is a generated compliance exception. Findings for a review are
// superseded wholesale on re-analysis; disposition fields stay nil until
// a human acts.
type Finding struct {
	ID                uuid.UUID
	ReviewID          uuid.UUID
	CheckID           string
	CheckName         string
	Severity          string
	Explainability    string
	Disposition       *string
	DispositionBy     *uuid.UUID
	DispositionAt     *time.Time
	DispositionNote   *string
	Status            string
	RecordCount       int
	AffectedRecordIDs []string
	OutputFields      []string
	CreatedAt         time.Time
}
