package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/certiview/certiview/internal/platform/clock"
)

// ErrChainContention is returned when a concurrent writer advanced the
// tail between the tail read and the insert. The unique index on
// previous_hash rejects the second writer; callers retry the whole
// read-tail-then-write sequence.
var ErrChainContention = errors.New("audit chain tail moved, retry append")

// PostgresStore persists the chain in the audit_log table. The append
// runs the tail read and the insert inside one transaction and locks the
// tail row, so concurrent writers linearize instead of forking the chain.
// The unique index on previous_hash backstops stores running at weaker
// isolation levels.
type PostgresStore struct {
	db  *sql.DB
	clk clock.Clock
}

func NewPostgresStore(db *sql.DB, clk clock.Clock) *PostgresStore {
	return &PostgresStore{db: db, clk: clk}
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) (Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = tx.Rollback() }()

	e, err := s.AppendTx(ctx, tx, rec)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return Entry{}, ErrChainContention
		}
		return Entry{}, err
	}
	return e, nil
}

// AppendTx chains an entry inside the caller's transaction. The entry
// becomes visible only when the caller commits, so a mutation and its
// audit record land atomically.
func (s *PostgresStore) AppendTx(ctx context.Context, tx *sql.Tx, rec Record) (Entry, error) {
	const tailQ = `
SELECT content_hash
FROM audit_log
ORDER BY id DESC
LIMIT 1
FOR UPDATE
`
	var prev *string
	var tail string
	switch err := tx.QueryRowContext(ctx, tailQ).Scan(&tail); {
	case err == nil:
		prev = &tail
	case errors.Is(err, sql.ErrNoRows):
	default:
		return Entry{}, err
	}

	hash, err := ComputeHash(rec, prev)
	if err != nil {
		return Entry{}, err
	}

	before, err := stateJSON(rec.BeforeState)
	if err != nil {
		return Entry{}, err
	}
	after, err := stateJSON(rec.AfterState)
	if err != nil {
		return Entry{}, err
	}
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return Entry{}, err
	}

	const insQ = `
INSERT INTO audit_log (
  timestamp, actor_id, actor_type, action, entity_type, entity_id,
  before_state, after_state, metadata, request_id, previous_hash, content_hash
)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb, $10, $11, $12)
RETURNING id, timestamp
`
	e := Entry{
		ActorID:      rec.ActorID,
		ActorType:    rec.ActorType,
		Action:       rec.Action,
		EntityType:   rec.EntityType,
		EntityID:     rec.EntityID,
		BeforeState:  rec.BeforeState,
		AfterState:   rec.AfterState,
		Metadata:     metadata,
		RequestID:    rec.RequestID,
		PreviousHash: prev,
		ContentHash:  hash,
	}
	err = tx.QueryRowContext(ctx, insQ,
		s.clk.Now(),
		uuidOrNil(rec.ActorID),
		rec.ActorType,
		rec.Action,
		rec.EntityType,
		uuidOrNil(rec.EntityID),
		before,
		after,
		metadataJSON,
		rec.RequestID,
		prev,
		hash,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return Entry{}, ErrChainContention
		}
		return Entry{}, err
	}
	return e, nil
}

func (s *PostgresStore) Entries(ctx context.Context) ([]Entry, error) {
	const q = `
SELECT id, timestamp, actor_id, actor_type, action, entity_type, entity_id,
       before_state, after_state, metadata, request_id, previous_hash, content_hash
FROM audit_log
ORDER BY id ASC
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			actorID, entityID  sql.NullString
			before, after      []byte
			metadata           []byte
			requestID, prevRaw sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &actorID, &e.ActorType, &e.Action, &e.EntityType, &entityID,
			&before, &after, &metadata, &requestID, &prevRaw, &e.ContentHash,
		); err != nil {
			return nil, err
		}
		if e.ActorID, err = parseUUIDPtr(actorID); err != nil {
			return nil, fmt.Errorf("entry %d actor_id: %w", e.ID, err)
		}
		if e.EntityID, err = parseUUIDPtr(entityID); err != nil {
			return nil, fmt.Errorf("entry %d entity_id: %w", e.ID, err)
		}
		if e.BeforeState, err = parseState(before); err != nil {
			return nil, fmt.Errorf("entry %d before_state: %w", e.ID, err)
		}
		if e.AfterState, err = parseState(after); err != nil {
			return nil, fmt.Errorf("entry %d after_state: %w", e.ID, err)
		}
		e.Metadata = map[string]any{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("entry %d metadata: %w", e.ID, err)
			}
		}
		if requestID.Valid {
			v := requestID.String
			e.RequestID = &v
		}
		if prevRaw.Valid {
			v := prevRaw.String
			e.PreviousHash = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func stateJSON(state map[string]any) (any, error) {
	if state == nil {
		return nil, nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func parseState(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseUUIDPtr(v sql.NullString) (*uuid.UUID, error) {
	if !v.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(v.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
